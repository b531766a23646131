package roster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	shifts         map[int64]Shift
	allocations    map[int64]Allocation
	invitesOpen    map[int64]int
	nextShiftID    int64
	nextAllocation int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		shifts:      make(map[int64]Shift),
		allocations: make(map[int64]Allocation),
		invitesOpen: make(map[int64]int),
	}
}

func (m *memoryRepo) CreateShift(ctx context.Context, shift Shift) (int64, error) {
	m.nextShiftID++
	shift.ID = m.nextShiftID
	m.shifts[shift.ID] = shift
	return shift.ID, nil
}

func (m *memoryRepo) GetShift(ctx context.Context, id int64) (Shift, error) {
	shift, ok := m.shifts[id]
	if !ok {
		return Shift{}, ErrNotFound
	}
	return shift, nil
}

func (m *memoryRepo) ListShifts(ctx context.Context, filter ShiftFilter) ([]Shift, error) {
	var out []Shift
	for _, shift := range m.shifts {
		if filter.VenueID > 0 && shift.VenueID != filter.VenueID {
			continue
		}
		if filter.Status != "" && shift.Status != filter.Status {
			continue
		}
		out = append(out, shift)
	}
	return out, nil
}

func (m *memoryRepo) UpdateShiftStatus(ctx context.Context, id int64, status ShiftStatus) error {
	shift, ok := m.shifts[id]
	if !ok {
		return ErrNotFound
	}
	shift.Status = status
	m.shifts[id] = shift
	return nil
}

func (m *memoryRepo) CancelShiftCascade(ctx context.Context, shiftID int64) error {
	if err := m.UpdateShiftStatus(ctx, shiftID, ShiftStatusCancelled); err != nil {
		return err
	}
	m.invitesOpen[shiftID] = 0
	return nil
}

func (m *memoryRepo) GetAllocation(ctx context.Context, id int64) (Allocation, error) {
	alloc, ok := m.allocations[id]
	if !ok {
		return Allocation{}, ErrNotFound
	}
	return alloc, nil
}

func (m *memoryRepo) ListAllocations(ctx context.Context, shiftID int64) ([]Allocation, error) {
	var out []Allocation
	for _, alloc := range m.allocations {
		if alloc.ShiftID == shiftID {
			out = append(out, alloc)
		}
	}
	return out, nil
}

func (m *memoryRepo) CountActiveAllocations(ctx context.Context, shiftID int64) (int, error) {
	count := 0
	for _, alloc := range m.allocations {
		if alloc.ShiftID == shiftID && alloc.Status.Active() {
			count++
		}
	}
	return count, nil
}

func (m *memoryRepo) UpdateAllocationStatus(ctx context.Context, id int64, status AllocationStatus) error {
	alloc, ok := m.allocations[id]
	if !ok {
		return ErrNotFound
	}
	alloc.Status = status
	m.allocations[id] = alloc
	return nil
}

func (m *memoryRepo) seedAllocation(shiftID, workerID int64, status AllocationStatus) int64 {
	m.nextAllocation++
	m.allocations[m.nextAllocation] = Allocation{
		ID: m.nextAllocation, ShiftID: shiftID, WorkerID: workerID, Status: status,
	}
	return m.nextAllocation
}

func validInput() CreateShiftInput {
	start := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	return CreateShiftInput{
		VenueID:   3,
		RoleID:    2,
		StartAt:   start,
		EndAt:     start.Add(8 * time.Hour),
		Headcount: 2,
		CreatedBy: 55,
	}
}

func TestCreateShift(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	shift, err := svc.CreateShift(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, ShiftStatusDraft, shift.Status)
	assert.Equal(t, 2, shift.Headcount)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), shift.Date)
}

func TestCreateShiftValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)

	input := validInput()
	input.EndAt = input.StartAt
	_, err := svc.CreateShift(context.Background(), input)
	assert.ErrorIs(t, err, ErrInvalidShiftTimes)

	input = validInput()
	input.Headcount = 0
	_, err = svc.CreateShift(context.Background(), input)
	assert.ErrorIs(t, err, ErrHeadcountRequired)
}

func TestPublishShift(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	shift, err := svc.CreateShift(context.Background(), validInput())
	require.NoError(t, err)

	published, err := svc.PublishShift(context.Background(), shift.ID, 55)
	require.NoError(t, err)
	assert.Equal(t, ShiftStatusPublished, published.Status)

	// Publishing again is a no-op.
	again, err := svc.PublishShift(context.Background(), shift.ID, 55)
	require.NoError(t, err)
	assert.Equal(t, ShiftStatusPublished, again.Status)
}

func TestPublishCancelledShift(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	shift, err := svc.CreateShift(context.Background(), validInput())
	require.NoError(t, err)

	_, err = svc.CancelShift(context.Background(), shift.ID, 55)
	require.NoError(t, err)

	_, err = svc.PublishShift(context.Background(), shift.ID, 55)
	assert.ErrorIs(t, err, ErrShiftCancelled)
}

func TestCancelShiftIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	shift, err := svc.CreateShift(context.Background(), validInput())
	require.NoError(t, err)

	cancelled, err := svc.CancelShift(context.Background(), shift.ID, 55)
	require.NoError(t, err)
	assert.Equal(t, ShiftStatusCancelled, cancelled.Status)

	again, err := svc.CancelShift(context.Background(), shift.ID, 55)
	require.NoError(t, err)
	assert.Equal(t, ShiftStatusCancelled, again.Status)
}

func TestOpenSlots(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	shift, err := svc.CreateShift(context.Background(), validInput())
	require.NoError(t, err)

	open, err := svc.OpenSlots(context.Background(), shift.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, open)

	repo.seedAllocation(shift.ID, 7, AllocationStatusAllocated)
	repo.seedAllocation(shift.ID, 8, AllocationStatusCancelled)

	open, err = svc.OpenSlots(context.Background(), shift.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, open)
}

func TestConfirmAllocation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	shift, err := svc.CreateShift(context.Background(), validInput())
	require.NoError(t, err)
	allocID := repo.seedAllocation(shift.ID, 7, AllocationStatusAllocated)

	alloc, err := svc.ConfirmAllocation(context.Background(), allocID, 7)
	require.NoError(t, err)
	assert.Equal(t, AllocationStatusConfirmed, alloc.Status)

	// Confirming twice is a no-op.
	alloc, err = svc.ConfirmAllocation(context.Background(), allocID, 7)
	require.NoError(t, err)
	assert.Equal(t, AllocationStatusConfirmed, alloc.Status)
}

func TestConfirmAllocationGuards(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	shift, err := svc.CreateShift(context.Background(), validInput())
	require.NoError(t, err)

	allocID := repo.seedAllocation(shift.ID, 7, AllocationStatusAllocated)
	_, err = svc.ConfirmAllocation(context.Background(), allocID, 99)
	assert.ErrorIs(t, err, ErrNotFound)

	started := repo.seedAllocation(shift.ID, 8, AllocationStatusInProgress)
	_, err = svc.ConfirmAllocation(context.Background(), started, 8)
	assert.ErrorIs(t, err, ErrAllocationClosed)
}

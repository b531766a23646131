package timeclock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shiftline/shiftline/internal/roster"
)

type memRepo struct {
	shifts         map[int64]roster.Shift
	allocations    map[int64]roster.Allocation
	records        map[int64]Record
	approvals      map[int64]ShiftTimeApproval
	nextRecordID   int64
	nextApprovalID int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		shifts:      make(map[int64]roster.Shift),
		allocations: make(map[int64]roster.Allocation),
		records:     make(map[int64]Record),
		approvals:   make(map[int64]ShiftTimeApproval),
	}
}

type memTx struct {
	repo *memRepo
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memTx{repo: r})
}

func (r *memRepo) GetRecord(ctx context.Context, id int64) (Record, error) {
	rec, ok := r.records[id]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (r *memRepo) ListByWorker(ctx context.Context, workerID int64, from, to time.Time) ([]Record, error) {
	var out []Record
	for _, rec := range r.records {
		if rec.WorkerID == workerID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (t *memTx) GetShift(ctx context.Context, shiftID int64) (roster.Shift, error) {
	sh, ok := t.repo.shifts[shiftID]
	if !ok {
		return roster.Shift{}, roster.ErrNotFound
	}
	return sh, nil
}

func (t *memTx) GetActiveAllocation(ctx context.Context, shiftID, workerID int64) (roster.Allocation, error) {
	for _, alloc := range t.repo.allocations {
		if alloc.ShiftID == shiftID && alloc.WorkerID == workerID && alloc.Status.Active() {
			return alloc, nil
		}
	}
	return roster.Allocation{}, roster.ErrNotFound
}

func (t *memTx) GetOpenRecord(ctx context.Context, shiftID, workerID int64) (Record, error) {
	for _, rec := range t.repo.records {
		if rec.ShiftID == shiftID && rec.WorkerID == workerID && rec.Open() {
			return rec, nil
		}
	}
	return Record{}, ErrRecordNotFound
}

func (t *memTx) GetPendingManualRecord(ctx context.Context, shiftID, workerID int64) (Record, error) {
	for _, rec := range t.repo.records {
		if rec.ShiftID == shiftID && rec.WorkerID == workerID && rec.ManualEntryStatus == ManualStatusPending {
			return rec, nil
		}
	}
	return Record{}, ErrRecordNotFound
}

func (t *memTx) GetRecordForUpdate(ctx context.Context, id int64) (Record, error) {
	return t.repo.GetRecord(ctx, id)
}

func (t *memTx) InsertRecord(ctx context.Context, rec Record) (int64, error) {
	t.repo.nextRecordID++
	rec.ID = t.repo.nextRecordID
	t.repo.records[rec.ID] = rec
	return rec.ID, nil
}

func (t *memTx) UpdateRecord(ctx context.Context, rec Record) error {
	if _, ok := t.repo.records[rec.ID]; !ok {
		return ErrRecordNotFound
	}
	t.repo.records[rec.ID] = rec
	return nil
}

func (t *memTx) UpdateAllocationStatus(ctx context.Context, id int64, status roster.AllocationStatus) error {
	alloc, ok := t.repo.allocations[id]
	if !ok {
		return roster.ErrNotFound
	}
	alloc.Status = status
	t.repo.allocations[id] = alloc
	return nil
}

func (t *memTx) InsertApproval(ctx context.Context, approval ShiftTimeApproval) (int64, error) {
	t.repo.nextApprovalID++
	approval.ID = t.repo.nextApprovalID
	t.repo.approvals[approval.ID] = approval
	return approval.ID, nil
}

type capturedEvents struct {
	submitted []ShiftTimeApproval
}

func (c *capturedEvents) ManualEntrySubmitted(ctx context.Context, approval ShiftTimeApproval) error {
	c.submitted = append(c.submitted, approval)
	return nil
}

func testPolicy() Policy {
	return Policy{
		MaxShiftDuration:  16 * time.Hour,
		ManualEntryWindow: 24 * time.Hour,
		SmallDeviation:    15 * time.Minute,
	}
}

// shiftDay pins tests to a fixed "today".
var shiftDay = time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)

func seedShiftAndAllocation(repo *memRepo, shiftID, workerID int64) roster.Shift {
	shift := roster.Shift{
		ID:        shiftID,
		VenueID:   1,
		RoleID:    1,
		Date:      shiftDay,
		StartAt:   shiftDay.Add(9 * time.Hour),
		EndAt:     shiftDay.Add(17 * time.Hour),
		Headcount: 1,
		Status:    roster.ShiftStatusPublished,
	}
	repo.shifts[shiftID] = shift
	allocID := int64(len(repo.allocations) + 1)
	repo.allocations[allocID] = roster.Allocation{
		ID:       allocID,
		ShiftID:  shiftID,
		WorkerID: workerID,
		Status:   roster.AllocationStatusConfirmed,
	}
	return shift
}

func newClockService(repo *memRepo, events EventSink, at time.Time) *Service {
	svc := NewService(repo, testPolicy(), events, nil)
	svc.WithNow(func() time.Time { return at })
	return svc
}

func TestClockInThenOut(t *testing.T) {
	repo := newMemRepo()
	seedShiftAndAllocation(repo, 1, 100)
	svc := newClockService(repo, nil, shiftDay.Add(9*time.Hour))

	rec, err := svc.ClockIn(context.Background(), 1, 100, "front door")
	require.NoError(t, err)
	require.NotNil(t, rec.ClockIn)
	require.Nil(t, rec.ClockOut)
	require.Equal(t, ManualStatusAuto, rec.ManualEntryStatus)
	require.Equal(t, roster.AllocationStatusInProgress, repo.allocations[rec.AllocationID].Status)

	svc.WithNow(func() time.Time { return shiftDay.Add(17 * time.Hour) })
	closed, err := svc.ClockOut(context.Background(), rec.ID, 100, "front door")
	require.NoError(t, err)
	require.NotNil(t, closed.ClockOut)
	require.InDelta(t, 8.0, closed.TotalHours, 1e-9)
	require.Equal(t, roster.AllocationStatusCompleted, repo.allocations[closed.AllocationID].Status)
}

func TestClockInNotAllocated(t *testing.T) {
	repo := newMemRepo()
	seedShiftAndAllocation(repo, 1, 100)
	svc := newClockService(repo, nil, shiftDay.Add(10*time.Hour))

	_, err := svc.ClockIn(context.Background(), 1, 999, "")
	require.ErrorIs(t, err, ErrNotAllocated)
}

func TestClockInShiftNotToday(t *testing.T) {
	repo := newMemRepo()
	seedShiftAndAllocation(repo, 1, 100)

	svc := newClockService(repo, nil, shiftDay.AddDate(0, 0, -1).Add(10*time.Hour))
	_, err := svc.ClockIn(context.Background(), 1, 100, "")
	require.ErrorIs(t, err, ErrShiftInFuture)

	svc = newClockService(repo, nil, shiftDay.AddDate(0, 0, 2).Add(10*time.Hour))
	_, err = svc.ClockIn(context.Background(), 1, 100, "")
	require.ErrorIs(t, err, ErrShiftInPast)
}

func TestClockInAfterShiftEnd(t *testing.T) {
	repo := newMemRepo()
	seedShiftAndAllocation(repo, 1, 100)
	svc := newClockService(repo, nil, shiftDay.Add(18*time.Hour))

	_, err := svc.ClockIn(context.Background(), 1, 100, "")
	require.ErrorIs(t, err, ErrShiftInPast)
}

func TestClockInTwice(t *testing.T) {
	repo := newMemRepo()
	seedShiftAndAllocation(repo, 1, 100)
	svc := newClockService(repo, nil, shiftDay.Add(9*time.Hour))

	_, err := svc.ClockIn(context.Background(), 1, 100, "")
	require.NoError(t, err)
	_, err = svc.ClockIn(context.Background(), 1, 100, "")
	require.ErrorIs(t, err, ErrAlreadyClockedIn)
}

func TestClockOutGuards(t *testing.T) {
	repo := newMemRepo()
	seedShiftAndAllocation(repo, 1, 100)
	svc := newClockService(repo, nil, shiftDay.Add(9*time.Hour))

	rec, err := svc.ClockIn(context.Background(), 1, 100, "")
	require.NoError(t, err)

	_, err = svc.ClockOut(context.Background(), rec.ID, 999, "")
	require.ErrorIs(t, err, ErrRecordNotFound)

	_, err = svc.ClockOut(context.Background(), rec.ID, 100, "")
	require.NoError(t, err)

	_, err = svc.ClockOut(context.Background(), rec.ID, 100, "")
	require.ErrorIs(t, err, ErrAlreadyClockedOut)
}

func TestManualEntryInvalidRange(t *testing.T) {
	repo := newMemRepo()
	shift := seedShiftAndAllocation(repo, 1, 100)
	svc := newClockService(repo, nil, shiftDay.Add(20*time.Hour))

	_, err := svc.SubmitManualEntry(context.Background(), ManualEntryInput{
		ShiftID:        1,
		WorkerID:       100,
		RequestedStart: shift.EndAt,
		RequestedEnd:   shift.StartAt,
	})
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestManualEntryExceedsMaxDuration(t *testing.T) {
	repo := newMemRepo()
	shift := seedShiftAndAllocation(repo, 1, 100)
	svc := newClockService(repo, nil, shiftDay.Add(20*time.Hour))

	_, err := svc.SubmitManualEntry(context.Background(), ManualEntryInput{
		ShiftID:        1,
		WorkerID:       100,
		RequestedStart: shift.StartAt,
		RequestedEnd:   shift.StartAt.Add(17 * time.Hour),
		Reason:         "double shift",
	})
	require.ErrorIs(t, err, ErrExceedsMaxDuration)
}

func TestManualEntryOutsideWindow(t *testing.T) {
	repo := newMemRepo()
	shift := seedShiftAndAllocation(repo, 1, 100)
	svc := newClockService(repo, nil, shiftDay.Add(20*time.Hour))

	_, err := svc.SubmitManualEntry(context.Background(), ManualEntryInput{
		ShiftID:        1,
		WorkerID:       100,
		RequestedStart: shift.StartAt.Add(-30 * time.Hour),
		RequestedEnd:   shift.StartAt.Add(-20 * time.Hour),
		Reason:         "wrong week",
	})
	require.ErrorIs(t, err, ErrOutsideShiftWindow)
}

func TestManualEntryReasonRequired(t *testing.T) {
	repo := newMemRepo()
	shift := seedShiftAndAllocation(repo, 1, 100)
	events := &capturedEvents{}
	svc := newClockService(repo, events, shiftDay.Add(20*time.Hour))

	// End deviates 20 minutes from the scheduled 17:00, past the
	// 15-minute threshold, so a reason is mandatory.
	input := ManualEntryInput{
		ShiftID:        1,
		WorkerID:       100,
		RequestedStart: shift.StartAt.Add(5 * time.Minute),
		RequestedEnd:   shift.EndAt.Add(20 * time.Minute),
	}
	_, err := svc.SubmitManualEntry(context.Background(), input)
	require.ErrorIs(t, err, ErrReasonRequired)
	require.Empty(t, events.submitted)

	input.Reason = "traffic"
	result, err := svc.SubmitManualEntry(context.Background(), input)
	require.NoError(t, err)
	require.NotZero(t, result.RecordID)
	require.NotZero(t, result.ApprovalID)

	rec := repo.records[result.RecordID]
	require.Equal(t, ManualStatusPending, rec.ManualEntryStatus)
	require.NotNil(t, rec.ProposedClockIn)
	require.NotNil(t, rec.ProposedClockOut)
	require.Nil(t, rec.ClockIn)

	approval := repo.approvals[result.ApprovalID]
	require.Equal(t, ApprovalStatusPending, approval.Status)
	require.Equal(t, result.RecordID, approval.RecordID)
	require.Len(t, events.submitted, 1)
}

func TestManualEntrySmallDeviationNoReason(t *testing.T) {
	repo := newMemRepo()
	shift := seedShiftAndAllocation(repo, 1, 100)
	svc := newClockService(repo, nil, shiftDay.Add(20*time.Hour))

	// Within the 15-minute threshold on both ends: no reason needed.
	_, err := svc.SubmitManualEntry(context.Background(), ManualEntryInput{
		ShiftID:        1,
		WorkerID:       100,
		RequestedStart: shift.StartAt.Add(5 * time.Minute),
		RequestedEnd:   shift.EndAt.Add(10 * time.Minute),
	})
	require.NoError(t, err)
}

func TestManualEntryAlreadyPending(t *testing.T) {
	repo := newMemRepo()
	shift := seedShiftAndAllocation(repo, 1, 100)
	svc := newClockService(repo, nil, shiftDay.Add(20*time.Hour))

	input := ManualEntryInput{
		ShiftID:        1,
		WorkerID:       100,
		RequestedStart: shift.StartAt,
		RequestedEnd:   shift.EndAt,
	}
	_, err := svc.SubmitManualEntry(context.Background(), input)
	require.NoError(t, err)

	_, err = svc.SubmitManualEntry(context.Background(), input)
	require.ErrorIs(t, err, ErrAlreadyPending)
}

func TestManualEntryNotAllocated(t *testing.T) {
	repo := newMemRepo()
	shift := seedShiftAndAllocation(repo, 1, 100)
	svc := newClockService(repo, nil, shiftDay.Add(20*time.Hour))

	_, err := svc.SubmitManualEntry(context.Background(), ManualEntryInput{
		ShiftID:        1,
		WorkerID:       999,
		RequestedStart: shift.StartAt,
		RequestedEnd:   shift.EndAt,
	})
	require.ErrorIs(t, err, ErrNotAllocated)
}

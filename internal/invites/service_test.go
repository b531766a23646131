package invites

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shiftline/shiftline/internal/roster"
)

type memoryRepo struct {
	mu           sync.Mutex
	shifts       map[int64]roster.Shift
	invites      map[int64]Invite
	allocations  map[int64]roster.Allocation
	nextInviteID int64
	nextAllocID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		shifts:      make(map[int64]roster.Shift),
		invites:     make(map[int64]Invite),
		allocations: make(map[int64]roster.Allocation),
	}
}

type memoryTx struct {
	repo *memoryRepo
}

// WithTx serializes callers on a mutex the way the shift row lock does in
// Postgres, and rolls back by restoring a snapshot when the callback fails.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	invitesSnap := make(map[int64]Invite, len(r.invites))
	for k, v := range r.invites {
		invitesSnap[k] = v
	}
	allocSnap := make(map[int64]roster.Allocation, len(r.allocations))
	for k, v := range r.allocations {
		allocSnap[k] = v
	}
	nextInvite, nextAlloc := r.nextInviteID, r.nextAllocID

	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.invites = invitesSnap
		r.allocations = allocSnap
		r.nextInviteID, r.nextAllocID = nextInvite, nextAlloc
		return err
	}
	return nil
}

func (r *memoryRepo) GetInvite(ctx context.Context, id int64) (Invite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invites[id]
	if !ok {
		return Invite{}, ErrNotFound
	}
	return inv, nil
}

func (r *memoryRepo) ListByShift(ctx context.Context, shiftID int64) ([]Invite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Invite
	for _, inv := range r.invites {
		if inv.ShiftID == shiftID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *memoryRepo) ExpirePending(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, inv := range r.invites {
		if inv.Status == StatusPending && inv.CreatedAt.Before(cutoff) {
			inv.Status = StatusExpired
			r.invites[id] = inv
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) LockShift(ctx context.Context, shiftID int64) (roster.Shift, error) {
	sh, ok := t.repo.shifts[shiftID]
	if !ok {
		return roster.Shift{}, roster.ErrNotFound
	}
	return sh, nil
}

func (t *memoryTx) GetInvite(ctx context.Context, id int64) (Invite, error) {
	inv, ok := t.repo.invites[id]
	if !ok {
		return Invite{}, ErrNotFound
	}
	return inv, nil
}

func (t *memoryTx) CountActiveAllocations(ctx context.Context, shiftID int64) (int, error) {
	count := 0
	for _, alloc := range t.repo.allocations {
		if alloc.ShiftID == shiftID && alloc.Status.Active() {
			count++
		}
	}
	return count, nil
}

func (t *memoryTx) HasOpenInviteOrAllocation(ctx context.Context, shiftID, workerID int64) (bool, error) {
	for _, inv := range t.repo.invites {
		if inv.ShiftID == shiftID && inv.WorkerID == workerID && inv.Status == StatusPending {
			return true, nil
		}
	}
	for _, alloc := range t.repo.allocations {
		if alloc.ShiftID == shiftID && alloc.WorkerID == workerID && alloc.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) InsertInvite(ctx context.Context, invite Invite) (Invite, error) {
	t.repo.nextInviteID++
	invite.ID = t.repo.nextInviteID
	t.repo.invites[invite.ID] = invite
	return invite, nil
}

func (t *memoryTx) InsertAllocation(ctx context.Context, shiftID, workerID int64) (roster.Allocation, error) {
	t.repo.nextAllocID++
	alloc := roster.Allocation{
		ID:       t.repo.nextAllocID,
		ShiftID:  shiftID,
		WorkerID: workerID,
		Status:   roster.AllocationStatusAllocated,
	}
	t.repo.allocations[alloc.ID] = alloc
	return alloc, nil
}

func (t *memoryTx) UpdateInviteStatus(ctx context.Context, id int64, status Status) error {
	inv, ok := t.repo.invites[id]
	if !ok {
		return ErrNotFound
	}
	inv.Status = status
	t.repo.invites[id] = inv
	return nil
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, nil, 72*time.Hour)
}

func seedShift(repo *memoryRepo, id int64, headcount int, status roster.ShiftStatus) {
	repo.shifts[id] = roster.Shift{
		ID:        id,
		VenueID:   1,
		RoleID:    1,
		Headcount: headcount,
		Status:    status,
		StartAt:   time.Now().Add(24 * time.Hour),
		EndAt:     time.Now().Add(32 * time.Hour),
	}
}

func seedInvite(repo *memoryRepo, id, shiftID, workerID int64, status Status) {
	repo.invites[id] = Invite{
		ID:        id,
		ShiftID:   shiftID,
		WorkerID:  workerID,
		Status:    status,
		CreatedAt: time.Now(),
	}
	if id > repo.nextInviteID {
		repo.nextInviteID = id
	}
}

func TestAcceptInviteLastSlotRace(t *testing.T) {
	repo := newMemoryRepo()
	seedShift(repo, 1, 1, roster.ShiftStatusPublished)
	seedInvite(repo, 1, 1, 100, StatusPending)
	seedInvite(repo, 2, 1, 200, StatusPending)
	svc := newTestService(repo)

	type result struct {
		alloc roster.Allocation
		err   error
	}
	results := make(chan result, 2)
	var wg sync.WaitGroup
	for _, attempt := range []struct{ inviteID, workerID int64 }{{1, 100}, {2, 200}} {
		wg.Add(1)
		go func(inviteID, workerID int64) {
			defer wg.Done()
			alloc, err := svc.AcceptInvite(context.Background(), inviteID, workerID)
			results <- result{alloc: alloc, err: err}
		}(attempt.inviteID, attempt.workerID)
	}
	wg.Wait()
	close(results)

	var wins, filled int
	for res := range results {
		switch {
		case res.err == nil:
			wins++
			require.NotZero(t, res.alloc.ID)
		case errors.Is(res.err, ErrSlotFilled):
			filled++
		default:
			t.Fatalf("unexpected error: %v", res.err)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, filled)
	require.Len(t, repo.allocations, 1)
}

func TestAcceptInviteNeverOverbooks(t *testing.T) {
	const headcount = 3
	const attempts = 8

	repo := newMemoryRepo()
	seedShift(repo, 1, headcount, roster.ShiftStatusPublished)
	for i := int64(1); i <= attempts; i++ {
		seedInvite(repo, i, 1, 100+i, StatusPending)
	}
	svc := newTestService(repo)

	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := int64(1); i <= attempts; i++ {
		wg.Add(1)
		go func(inviteID int64) {
			defer wg.Done()
			_, err := svc.AcceptInvite(context.Background(), inviteID, 100+inviteID)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var wins, filled int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSlotFilled):
			filled++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, headcount, wins)
	require.Equal(t, attempts-headcount, filled)
	require.Len(t, repo.allocations, headcount)
}

// committedStore models visibility the way Postgres runs these transactions
// at read committed: every statement reads the latest committed state, a
// transaction's own writes stay private until commit, and the shift row lock
// is held from LockShift until the transaction ends. It records the
// committed allocation count visible at each transaction's first statement
// so tests can prove an interleaving really overlapped a commit.
type committedStore struct {
	mu           sync.Mutex
	shifts       map[int64]roster.Shift
	invites      map[int64]Invite
	allocations  map[int64]roster.Allocation
	nextInviteID int64
	nextAllocID  int64

	shiftLock sync.Mutex

	// firstReadAllocs records, per invite, the committed active-allocation
	// count at the first statement of the transaction that read it first.
	firstReadAllocs map[int64]int

	// afterFirstRead runs after a transaction's first statement, outside
	// the store lock. Tests use it to order interleavings.
	afterFirstRead func(inviteID int64)
}

func newCommittedStore() *committedStore {
	return &committedStore{
		shifts:          make(map[int64]roster.Shift),
		invites:         make(map[int64]Invite),
		allocations:     make(map[int64]roster.Allocation),
		firstReadAllocs: make(map[int64]int),
	}
}

func (s *committedStore) countActiveLocked() int {
	count := 0
	for _, alloc := range s.allocations {
		if alloc.Status.Active() {
			count++
		}
	}
	return count
}

type committedTx struct {
	store        *committedStore
	locked       bool
	firstDone    bool
	inviteWrites map[int64]Status
	newInvites   []Invite
	allocWrites  []roster.Allocation
}

func (s *committedStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &committedTx{store: s, inviteWrites: make(map[int64]Status)}
	err := fn(ctx, tx)
	if err == nil {
		s.mu.Lock()
		for id, status := range tx.inviteWrites {
			inv := s.invites[id]
			inv.Status = status
			s.invites[id] = inv
		}
		for _, inv := range tx.newInvites {
			s.invites[inv.ID] = inv
		}
		for _, alloc := range tx.allocWrites {
			s.allocations[alloc.ID] = alloc
		}
		s.mu.Unlock()
	}
	if tx.locked {
		s.shiftLock.Unlock()
	}
	return err
}

func (s *committedStore) GetInvite(ctx context.Context, id int64) (Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[id]
	if !ok {
		return Invite{}, ErrNotFound
	}
	return inv, nil
}

func (s *committedStore) ListByShift(ctx context.Context, shiftID int64) ([]Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Invite
	for _, inv := range s.invites {
		if inv.ShiftID == shiftID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (s *committedStore) ExpirePending(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (t *committedTx) firstStatement(inviteID int64) {
	if t.firstDone {
		return
	}
	t.firstDone = true
	t.store.mu.Lock()
	t.store.firstReadAllocs[inviteID] = t.store.countActiveLocked()
	hook := t.store.afterFirstRead
	t.store.mu.Unlock()
	if hook != nil {
		hook(inviteID)
	}
}

func (t *committedTx) LockShift(ctx context.Context, shiftID int64) (roster.Shift, error) {
	t.store.shiftLock.Lock()
	t.locked = true
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	sh, ok := t.store.shifts[shiftID]
	if !ok {
		return roster.Shift{}, roster.ErrNotFound
	}
	return sh, nil
}

func (t *committedTx) GetInvite(ctx context.Context, id int64) (Invite, error) {
	t.store.mu.Lock()
	inv, ok := t.store.invites[id]
	t.store.mu.Unlock()
	if status, dirty := t.inviteWrites[id]; dirty && ok {
		inv.Status = status
	}
	t.firstStatement(id)
	if !ok {
		return Invite{}, ErrNotFound
	}
	return inv, nil
}

func (t *committedTx) CountActiveAllocations(ctx context.Context, shiftID int64) (int, error) {
	t.store.mu.Lock()
	count := t.store.countActiveLocked()
	t.store.mu.Unlock()
	for _, alloc := range t.allocWrites {
		if alloc.ShiftID == shiftID && alloc.Status.Active() {
			count++
		}
	}
	return count, nil
}

func (t *committedTx) HasOpenInviteOrAllocation(ctx context.Context, shiftID, workerID int64) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, inv := range t.store.invites {
		if inv.ShiftID == shiftID && inv.WorkerID == workerID && inv.Status == StatusPending {
			return true, nil
		}
	}
	for _, alloc := range t.store.allocations {
		if alloc.ShiftID == shiftID && alloc.WorkerID == workerID && alloc.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (t *committedTx) InsertInvite(ctx context.Context, invite Invite) (Invite, error) {
	t.store.mu.Lock()
	t.store.nextInviteID++
	invite.ID = t.store.nextInviteID
	t.store.mu.Unlock()
	t.newInvites = append(t.newInvites, invite)
	return invite, nil
}

func (t *committedTx) InsertAllocation(ctx context.Context, shiftID, workerID int64) (roster.Allocation, error) {
	t.store.mu.Lock()
	t.store.nextAllocID++
	id := t.store.nextAllocID
	t.store.mu.Unlock()
	alloc := roster.Allocation{
		ID:       id,
		ShiftID:  shiftID,
		WorkerID: workerID,
		Status:   roster.AllocationStatusAllocated,
	}
	t.allocWrites = append(t.allocWrites, alloc)
	return alloc, nil
}

func (t *committedTx) UpdateInviteStatus(ctx context.Context, id int64, status Status) error {
	t.store.mu.Lock()
	_, ok := t.store.invites[id]
	t.store.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	t.inviteWrites[id] = status
	return nil
}

// An accept whose first read predates a concurrent winner's commit must
// still observe that commit once it acquires the shift lock. The post-lock
// invite re-read and allocation count run against the latest committed
// state, not the snapshot from before the lock wait, so the loser gets
// ErrSlotFilled instead of a second allocation.
func TestAcceptInviteSeesCommitAfterLockWait(t *testing.T) {
	store := newCommittedStore()
	store.shifts[1] = roster.Shift{
		ID:        1,
		VenueID:   1,
		RoleID:    1,
		Headcount: 1,
		Status:    roster.ShiftStatusPublished,
		StartAt:   time.Now().Add(24 * time.Hour),
		EndAt:     time.Now().Add(32 * time.Hour),
	}
	store.invites[1] = Invite{ID: 1, ShiftID: 1, WorkerID: 100, Status: StatusPending, CreatedAt: time.Now()}
	store.invites[2] = Invite{ID: 2, ShiftID: 1, WorkerID: 200, Status: StatusPending, CreatedAt: time.Now()}
	store.nextInviteID = 2

	loserStarted := make(chan struct{})
	winnerDone := make(chan struct{})
	store.afterFirstRead = func(inviteID int64) {
		if inviteID == 2 {
			close(loserStarted)
			<-winnerDone
		}
	}

	svc := NewService(store, nil, nil, 72*time.Hour)

	var loserErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, loserErr = svc.AcceptInvite(context.Background(), 2, 200)
	}()

	// The loser has taken its first read; now the winner runs to commit.
	<-loserStarted
	alloc, err := svc.AcceptInvite(context.Background(), 1, 100)
	require.NoError(t, err)
	require.NotZero(t, alloc.ID)
	close(winnerDone)
	wg.Wait()

	require.ErrorIs(t, loserErr, ErrSlotFilled)
	// The loser's first read saw zero allocations; only the fresh post-lock
	// count kept it from overbooking the slot.
	require.Equal(t, 0, store.firstReadAllocs[2])
	require.Len(t, store.allocations, 1)
	require.Equal(t, StatusAccepted, store.invites[1].Status)
	require.Equal(t, StatusPending, store.invites[2].Status)
}

func TestAcceptInviteAlreadyResolved(t *testing.T) {
	repo := newMemoryRepo()
	seedShift(repo, 1, 2, roster.ShiftStatusPublished)
	seedInvite(repo, 1, 1, 100, StatusPending)
	svc := newTestService(repo)

	_, err := svc.AcceptInvite(context.Background(), 1, 100)
	require.NoError(t, err)

	_, err = svc.AcceptInvite(context.Background(), 1, 100)
	require.ErrorIs(t, err, ErrInviteNotPending)
	require.Len(t, repo.allocations, 1)
}

func TestAcceptInviteWorkerMismatch(t *testing.T) {
	repo := newMemoryRepo()
	seedShift(repo, 1, 1, roster.ShiftStatusPublished)
	seedInvite(repo, 1, 1, 100, StatusPending)
	svc := newTestService(repo)

	_, err := svc.AcceptInvite(context.Background(), 1, 999)
	require.ErrorIs(t, err, ErrNotFound)
	require.Empty(t, repo.allocations)
}

func TestAcceptInviteShiftNotOpen(t *testing.T) {
	repo := newMemoryRepo()
	seedShift(repo, 1, 1, roster.ShiftStatusDraft)
	seedInvite(repo, 1, 1, 100, StatusPending)
	svc := newTestService(repo)

	_, err := svc.AcceptInvite(context.Background(), 1, 100)
	require.ErrorIs(t, err, ErrShiftNotOpen)
}

func TestAcceptInviteExpiredOnAccess(t *testing.T) {
	repo := newMemoryRepo()
	seedShift(repo, 1, 1, roster.ShiftStatusPublished)
	seedInvite(repo, 1, 1, 100, StatusPending)
	svc := newTestService(repo)
	svc.WithNow(func() time.Time { return time.Now().Add(100 * time.Hour) })

	_, err := svc.AcceptInvite(context.Background(), 1, 100)
	require.ErrorIs(t, err, ErrInviteNotPending)

	inv, err := repo.GetInvite(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, inv.Status)
}

func TestDeclineInviteIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	seedShift(repo, 1, 1, roster.ShiftStatusPublished)
	seedInvite(repo, 1, 1, 100, StatusPending)
	svc := newTestService(repo)

	first, err := svc.DeclineInvite(context.Background(), 1, 100)
	require.NoError(t, err)
	require.Equal(t, StatusDeclined, first.Status)

	second, err := svc.DeclineInvite(context.Background(), 1, 100)
	require.NoError(t, err)
	require.Equal(t, StatusDeclined, second.Status)
}

func TestCancelInviteIdempotentOnAccepted(t *testing.T) {
	repo := newMemoryRepo()
	seedShift(repo, 1, 1, roster.ShiftStatusPublished)
	seedInvite(repo, 1, 1, 100, StatusPending)
	svc := newTestService(repo)

	_, err := svc.AcceptInvite(context.Background(), 1, 100)
	require.NoError(t, err)

	inv, err := svc.CancelInvite(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, inv.Status)
}

func TestCreateInvitesConflictRejectsBatch(t *testing.T) {
	repo := newMemoryRepo()
	seedShift(repo, 1, 2, roster.ShiftStatusPublished)
	seedInvite(repo, 1, 1, 100, StatusPending)
	svc := newTestService(repo)

	_, err := svc.CreateInvites(context.Background(), 1, []int64{200, 100}, 1)
	require.ErrorIs(t, err, ErrConflict)

	// The conflicting batch must not leave partial invites behind.
	list, err := svc.ListByShift(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestCreateInvites(t *testing.T) {
	repo := newMemoryRepo()
	seedShift(repo, 1, 2, roster.ShiftStatusPublished)
	svc := newTestService(repo)

	created, err := svc.CreateInvites(context.Background(), 1, []int64{100, 200}, 7)
	require.NoError(t, err)
	require.Len(t, created, 2)
	for _, inv := range created {
		require.Equal(t, StatusPending, inv.Status)
		require.NotEmpty(t, inv.Code)
		require.EqualValues(t, 7, inv.InvitedBy)
	}
}

func TestCreateInvitesUnpublishedShift(t *testing.T) {
	repo := newMemoryRepo()
	seedShift(repo, 1, 2, roster.ShiftStatusDraft)
	svc := newTestService(repo)

	_, err := svc.CreateInvites(context.Background(), 1, []int64{100}, 7)
	require.ErrorIs(t, err, ErrShiftNotOpen)
}

func TestExpireStale(t *testing.T) {
	repo := newMemoryRepo()
	seedShift(repo, 1, 2, roster.ShiftStatusPublished)
	repo.invites[1] = Invite{ID: 1, ShiftID: 1, WorkerID: 100, Status: StatusPending, CreatedAt: time.Now().Add(-100 * time.Hour)}
	repo.invites[2] = Invite{ID: 2, ShiftID: 1, WorkerID: 200, Status: StatusPending, CreatedAt: time.Now()}
	svc := newTestService(repo)

	n, err := svc.ExpireStale(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Equal(t, StatusExpired, repo.invites[1].Status)
	require.Equal(t, StatusPending, repo.invites[2].Status)
}

package invites

import "time"

// Status enumerates invite lifecycle statuses.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal reports whether the invite can no longer change state.
func (s Status) Terminal() bool {
	switch s {
	case StatusAccepted, StatusDeclined, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Invite offers a shift slot to a specific worker. Several invites for the
// same shift race for the shift's open headcount.
type Invite struct {
	ID          int64
	ShiftID     int64
	WorkerID    int64
	Code        string
	InvitedBy   int64
	Status      Status
	CreatedAt   time.Time
	RespondedAt *time.Time
}

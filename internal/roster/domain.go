package roster

import (
	"time"
)

// ShiftStatus enumerates shift lifecycle statuses.
type ShiftStatus string

const (
	ShiftStatusDraft     ShiftStatus = "draft"
	ShiftStatusPublished ShiftStatus = "published"
	ShiftStatusCancelled ShiftStatus = "cancelled"
)

// AllocationStatus enumerates allocation lifecycle statuses.
type AllocationStatus string

const (
	AllocationStatusAllocated  AllocationStatus = "allocated"
	AllocationStatusConfirmed  AllocationStatus = "confirmed"
	AllocationStatusInProgress AllocationStatus = "in_progress"
	AllocationStatusCompleted  AllocationStatus = "completed"
	AllocationStatusCancelled  AllocationStatus = "cancelled"
)

// Active reports whether the allocation counts against shift headcount.
func (s AllocationStatus) Active() bool {
	return s != AllocationStatusCancelled && s != ""
}

// Shift is a scheduled work slot at a venue.
type Shift struct {
	ID        int64
	VenueID   int64
	RoleID    int64
	Date      time.Time
	StartAt   time.Time
	EndAt     time.Time
	Headcount int
	Status    ShiftStatus
	CreatedBy int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Allocation assigns a worker to a shift.
type Allocation struct {
	ID        int64
	ShiftID   int64
	WorkerID  int64
	Status    AllocationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateShiftInput carries the fields required to draft a shift.
type CreateShiftInput struct {
	VenueID   int64
	RoleID    int64
	StartAt   time.Time
	EndAt     time.Time
	Headcount int
	CreatedBy int64
}

// ShiftFilter narrows shift listings.
type ShiftFilter struct {
	VenueID int64
	From    time.Time
	To      time.Time
	Status  ShiftStatus
}

package timeclock

import "time"

// ManualEntryStatus tracks the manual-submission lane of a record.
type ManualEntryStatus string

const (
	ManualStatusNone     ManualEntryStatus = "none"
	ManualStatusAuto     ManualEntryStatus = "auto_clocked"
	ManualStatusPending  ManualEntryStatus = "pending"
	ManualStatusApproved ManualEntryStatus = "approved"
	ManualStatusRejected ManualEntryStatus = "rejected"
	ManualStatusModified ManualEntryStatus = "modified"
)

// RecordStatus tracks the overall lifecycle of a record.
type RecordStatus string

const (
	RecordStatusPending  RecordStatus = "pending"
	RecordStatusApproved RecordStatus = "approved"
	RecordStatusDisputed RecordStatus = "disputed"
)

// Record is one worker attendance attempt for a shift. A record is either
// auto-sourced (clock_in/clock_out written directly) or manual-sourced
// (proposed times awaiting approval), never both at once.
type Record struct {
	ID                int64
	ShiftID           int64
	WorkerID          int64
	AllocationID      int64
	ClockIn           *time.Time
	ClockOut          *time.Time
	ClockInLocation   string
	ClockOutLocation  string
	ProposedClockIn   *time.Time
	ProposedClockOut  *time.Time
	Reason            string
	ManagerNotes      string
	ManualEntryStatus ManualEntryStatus
	Status            RecordStatus
	TotalHours        float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Open reports whether the record has an unclosed auto clock-in.
func (r Record) Open() bool {
	return r.ClockIn != nil && r.ClockOut == nil
}

// ApprovalStatus enumerates shift-time approval statuses.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
	ApprovalStatusModified ApprovalStatus = "modified"
)

// Resolved reports whether a manager already decided this approval.
func (s ApprovalStatus) Resolved() bool {
	return s != ApprovalStatusPending && s != ""
}

// ShiftTimeApproval is a correction request tied to one timekeeping record.
// At most one pending approval exists per record at any time.
type ShiftTimeApproval struct {
	ID                 int64
	RecordID           int64
	ShiftID            int64
	WorkerID           int64
	VenueID            int64
	RequestedStart     time.Time
	RequestedEnd       time.Time
	OriginalShiftStart time.Time
	OriginalShiftEnd   time.Time
	Reason             string
	Status             ApprovalStatus
	ManagerID          *int64
	ManagerNotes       string
	CreatedAt          time.Time
	ResolvedAt         *time.Time
}

// ManualEntryInput carries a worker's manual time submission.
type ManualEntryInput struct {
	ShiftID        int64
	WorkerID       int64
	RequestedStart time.Time
	RequestedEnd   time.Time
	Reason         string
}

// ManualEntryResult links the stored record with its pending approval.
type ManualEntryResult struct {
	RecordID   int64
	ApprovalID int64
}

// HoursBetween derives the billable hours for a closed interval.
func HoursBetween(in, out time.Time) float64 {
	if !out.After(in) {
		return 0
	}
	return out.Sub(in).Hours()
}

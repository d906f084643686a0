package models

import "time"

// LeaveType classifies a leave request.
type LeaveType string

const (
	LeaveSick      LeaveType = "SICK"
	LeavePersonal  LeaveType = "PERSONAL"
	LeaveFamily    LeaveType = "FAMILY"
	LeaveEmergency LeaveType = "EMERGENCY"
	LeaveOther     LeaveType = "OTHER"
)

// LeaveStatus is Pending until it moves once, terminally, to Approved or Rejected.
type LeaveStatus string

const (
	LeavePending  LeaveStatus = "PENDING"
	LeaveApproved LeaveStatus = "APPROVED"
	LeaveRejected LeaveStatus = "REJECTED"
)

// LeaveRequest is a student's request to be excused over a date range.
type LeaveRequest struct {
	ID         string      `db:"id" json:"id"`
	StudentID  string      `db:"student_id" json:"student_id"`
	LeaveType  LeaveType   `db:"leave_type" json:"leave_type"`
	StartDate  time.Time   `db:"start_date" json:"start_date"`
	EndDate    time.Time   `db:"end_date" json:"end_date"`
	Reason     string      `db:"reason" json:"reason"`
	Status     LeaveStatus `db:"status" json:"status"`
	ApprovedBy *string     `db:"approved_by" json:"approved_by,omitempty"`
	DecidedAt  *time.Time  `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at" json:"updated_at"`
}

// Days returns the inclusive calendar dates covered by the request.
func (l LeaveRequest) Days() []time.Time {
	start, end := DateOnly(l.StartDate), DateOnly(l.EndDate)
	if start.After(end) {
		return nil
	}
	days := make([]time.Time, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// LeaveFilter narrows leave listings. StudentIDs scopes non-staff callers.
type LeaveFilter struct {
	StudentIDs []string
	StudentID  string
	Status     LeaveStatus
	Page       int
	PageSize   int
}

// LeaveDecision is the outcome of an approve or reject call.
type LeaveDecision struct {
	LeaveRequest   LeaveRequest `json:"leave_request"`
	ReconciledRows int          `json:"reconciled_rows"`
}

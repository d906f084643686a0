package dto

// CreateLeaveRequest is the student-submitted payload.
type CreateLeaveRequest struct {
	LeaveType string `json:"leave_type" validate:"required,oneof=SICK PERSONAL FAMILY EMERGENCY OTHER"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Reason    string `json:"reason" validate:"required,max=2000"`
}

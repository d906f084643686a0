package dto

// MarkAttendanceRequest is a staff member recording attendance.
type MarkAttendanceRequest struct {
	StudentID  string  `json:"student_id" validate:"required"`
	SubjectID  string  `json:"subject_id" validate:"required"`
	ScheduleID *string `json:"schedule_id,omitempty"`
	Date       string  `json:"date" validate:"required,datetime=2006-01-02"`
	Status     string  `json:"status" validate:"required,oneof=PRESENT ABSENT LATE EXCUSED"`
	Notes      string  `json:"notes" validate:"max=500"`
}

// SelfMarkRequest is a student recording their own attendance for today.
type SelfMarkRequest struct {
	Status string `json:"status" validate:"required,oneof=PRESENT ABSENT LATE"`
}

// GroupAttendanceEntry is one student's mark within a group submission.
type GroupAttendanceEntry struct {
	StudentID string `json:"student_id" validate:"required"`
	Status    string `json:"status" validate:"required,oneof=PRESENT ABSENT LATE EXCUSED"`
	Notes     string `json:"notes" validate:"max=500"`
}

// MarkGroupAttendanceRequest records a schedule's attendance for its group. Date defaults to today.
type MarkGroupAttendanceRequest struct {
	Date    string                 `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Entries []GroupAttendanceEntry `json:"entries" validate:"required,min=1,max=500,dive"`
}

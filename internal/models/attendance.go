package models

import "time"

// AttendanceStatus is the observed presence for a student on a date.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "PRESENT"
	AttendanceAbsent  AttendanceStatus = "ABSENT"
	AttendanceLate    AttendanceStatus = "LATE"
	AttendanceExcused AttendanceStatus = "EXCUSED"
)

// Valid reports whether s is a known status.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceExcused:
		return true
	}
	return false
}

// SelfReportable reports whether a student may record s for themselves.
func (s AttendanceStatus) SelfReportable() bool {
	return s == AttendancePresent || s == AttendanceAbsent || s == AttendanceLate
}

// Attendance is one row per (student, subject, date).
type Attendance struct {
	ID              string           `db:"id" json:"id"`
	StudentID       string           `db:"student_id" json:"student_id"`
	SubjectID       string           `db:"subject_id" json:"subject_id"`
	ScheduleID      *string          `db:"schedule_id" json:"schedule_id,omitempty"`
	Date            time.Time        `db:"date" json:"date"`
	Status          AttendanceStatus `db:"status" json:"status"`
	Notes           string           `db:"notes" json:"notes"`
	CreatedBy       *string          `db:"created_by" json:"created_by,omitempty"`
	MarkedByStudent bool             `db:"marked_by_student" json:"marked_by_student"`
	LeaveRequestID  *string          `db:"leave_request_id" json:"leave_request_id,omitempty"`
	MarkedAt        time.Time        `db:"marked_at" json:"marked_at"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceFilter narrows attendance listings. StudentIDs scopes non-staff callers.
type AttendanceFilter struct {
	StudentIDs []string
	StudentID  string
	SubjectID  string
	Status     AttendanceStatus
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
}

// AttendanceStats summarises a filtered set of rows.
type AttendanceStats struct {
	Total                int     `json:"total"`
	Present              int     `json:"present"`
	Absent               int     `json:"absent"`
	Late                 int     `json:"late"`
	Excused              int     `json:"excused"`
	AttendancePercentage float64 `json:"attendance_percentage"`
}

// AttendanceStatusCount is a grouped count row.
type AttendanceStatusCount struct {
	Status AttendanceStatus `db:"status"`
	Count  int              `db:"count"`
}

// AbsenceTally is a student's absence count within the sweep window.
type AbsenceTally struct {
	StudentID   string  `db:"student_id"`
	StudentName string  `db:"student_name"`
	GroupID     *string `db:"group_id"`
	Absences    int     `db:"absences"`
}

// GroupAttendanceResult reports what a group submission wrote.
type GroupAttendanceResult struct {
	ScheduleID string       `json:"schedule_id"`
	Date       time.Time    `json:"date"`
	Saved      int          `json:"saved"`
	Records    []Attendance `json:"records"`
}

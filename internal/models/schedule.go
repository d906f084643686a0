package models

import "time"

// ScheduleState replaces the boolean soft-delete flag with an explicit lifecycle.
type ScheduleState string

const (
	ScheduleActive  ScheduleState = "ACTIVE"
	ScheduleRetired ScheduleState = "RETIRED"
)

// Schedule binds a subject to a group on a weekday and time slot.
type Schedule struct {
	ID         string        `db:"id" json:"id"`
	SubjectID  string        `db:"subject_id" json:"subject_id"`
	GroupID    string        `db:"group_id" json:"group_id"`
	TeacherID  *string       `db:"teacher_id" json:"teacher_id,omitempty"`
	TimeSlotID string        `db:"time_slot_id" json:"time_slot_id"`
	Day        Weekday       `db:"day" json:"day"`
	Room       string        `db:"room" json:"room"`
	State      ScheduleState `db:"state" json:"state"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updated_at"`
}

// Active reports whether the schedule occupies its slot.
func (s Schedule) Active() bool {
	return s.State == ScheduleActive
}

// ScheduleDetail is a schedule joined with the names needed for display and conflict messages.
type ScheduleDetail struct {
	Schedule
	SubjectName        string  `db:"subject_name" json:"subject_name"`
	GroupName          string  `db:"group_name" json:"group_name"`
	TimeSlotName       string  `db:"time_slot_name" json:"time_slot_name"`
	TimeSlotOrder      int     `db:"time_slot_order" json:"time_slot_order"`
	StartTime          string  `db:"start_time" json:"start_time"`
	EndTime            string  `db:"end_time" json:"end_time"`
	EffectiveTeacherID *string `db:"effective_teacher_id" json:"effective_teacher_id,omitempty"`
	TeacherName        *string `db:"teacher_name" json:"teacher_name,omitempty"`
}

// ScheduleFilter describes query params for listing schedules.
type ScheduleFilter struct {
	GroupID   string
	TeacherID string
	SubjectID string
	Day       Weekday
	State     ScheduleState
	Page      int
	PageSize  int
}

// ScheduleConflict names the active schedule a proposal collided with.
type ScheduleConflict struct {
	ScheduleID  string  `json:"schedule_id"`
	SubjectName string  `json:"subject_name"`
	GroupName   string  `json:"group_name"`
	TeacherName *string `json:"teacher_name,omitempty"`
	Day         Weekday `json:"day"`
	TimeSlot    string  `json:"time_slot"`
	Room        string  `json:"room"`
}

// NewScheduleConflict summarises detail for an error response.
func NewScheduleConflict(detail ScheduleDetail) ScheduleConflict {
	return ScheduleConflict{
		ScheduleID:  detail.ID,
		SubjectName: detail.SubjectName,
		GroupName:   detail.GroupName,
		TeacherName: detail.TeacherName,
		Day:         detail.Day,
		TimeSlot:    detail.TimeSlotName,
		Room:        detail.Room,
	}
}

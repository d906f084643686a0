package dto

// ScheduleProposal is the input to a create or edit of a schedule.
type ScheduleProposal struct {
	GroupID    string  `json:"group_id" validate:"required"`
	Day        string  `json:"day" validate:"required"`
	TimeSlotID string  `json:"time_slot_id" validate:"required"`
	SubjectID  string  `json:"subject_id" validate:"required"`
	TeacherID  *string `json:"teacher_id,omitempty"`
	Room       string  `json:"room" validate:"required,max=64"`
}

package models

import "time"

// NotificationType tags what produced a notification.
type NotificationType string

const (
	NotificationAbsence       NotificationType = "ABSENCE"
	NotificationLeaveRequest  NotificationType = "LEAVE_REQUEST"
	NotificationLeaveApproved NotificationType = "LEAVE_APPROVED"
	NotificationLeaveRejected NotificationType = "LEAVE_REJECTED"
	NotificationGeneral       NotificationType = "GENERAL"
)

// Notification is a side-effect record with a read flag and nothing else.
type Notification struct {
	ID             string           `db:"id" json:"id"`
	RecipientID    string           `db:"recipient_id" json:"recipient_id"`
	SenderID       *string          `db:"sender_id" json:"sender_id,omitempty"`
	Type           NotificationType `db:"type" json:"type"`
	Title          string           `db:"title" json:"title"`
	Message        string           `db:"message" json:"message"`
	IsRead         bool             `db:"is_read" json:"is_read"`
	StudentID      *string          `db:"student_id" json:"student_id,omitempty"`
	LeaveRequestID *string          `db:"leave_request_id" json:"leave_request_id,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

// NotificationFilter narrows a recipient's inbox.
type NotificationFilter struct {
	RecipientID string
	UnreadOnly  bool
	Type        NotificationType
	Page        int
	PageSize    int
}

// AbsenceSweepResult reports what one sweep run produced.
type AbsenceSweepResult struct {
	WindowStart     time.Time `json:"window_start"`
	StudentsFlagged int       `json:"students_flagged"`
	Notifications   int       `json:"notifications"`
	Failures        int       `json:"failures"`
}

// BroadcastAudience selects who receives a staff broadcast.
type BroadcastAudience string

const (
	AudienceAllStudents BroadcastAudience = "ALL_STUDENTS"
	AudienceAllParents  BroadcastAudience = "ALL_PARENTS"
	AudienceGroup       BroadcastAudience = "GROUP"
)


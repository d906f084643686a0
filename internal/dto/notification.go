package dto

// BroadcastRequest is a GENERAL notification sent by staff to an audience.
type BroadcastRequest struct {
	Title    string `json:"title" validate:"required,max=200"`
	Message  string `json:"message" validate:"required,max=4000"`
	Audience string `json:"audience" validate:"required,oneof=ALL_STUDENTS ALL_PARENTS GROUP"`
	GroupID  string `json:"group_id" validate:"required_if=Audience GROUP"`
}

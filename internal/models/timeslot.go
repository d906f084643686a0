package models

// TimeSlot is an admin-defined named period. StartTime and EndTime use the 15:04:05 layout.
type TimeSlot struct {
	ID        string `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	StartTime string `db:"start_time" json:"start_time"`
	EndTime   string `db:"end_time" json:"end_time"`
	SortOrder int    `db:"sort_order" json:"sort_order"`
	IsActive  bool   `db:"is_active" json:"is_active"`
}

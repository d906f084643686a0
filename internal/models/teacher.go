package models

import "time"

// Teacher represents a teaching staff profile.
type Teacher struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Name       string    `db:"name" json:"name"`
	Degree     string    `db:"degree" json:"degree"`
	Department string    `db:"department" json:"department"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

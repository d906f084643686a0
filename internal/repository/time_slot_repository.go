package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendance-api/internal/models"
)

const timeSlotColumns = `id, name, start_time::text AS start_time, end_time::text AS end_time, sort_order, is_active`

// TimeSlotRepository reads admin-configured periods.
type TimeSlotRepository struct {
	db *sqlx.DB
}

// NewTimeSlotRepository creates a time slot repository.
func NewTimeSlotRepository(db *sqlx.DB) *TimeSlotRepository {
	return &TimeSlotRepository{db: db}
}

// FindByID loads a time slot, active or not.
func (r *TimeSlotRepository) FindByID(ctx context.Context, id string) (*models.TimeSlot, error) {
	var slot models.TimeSlot
	if err := r.db.GetContext(ctx, &slot, `SELECT `+timeSlotColumns+` FROM time_slots WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &slot, nil
}


package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendance-api/internal/models"
)

const scheduleDetailSelect = `SELECT s.id, s.subject_id, s.group_id, s.teacher_id, s.time_slot_id, s.day, s.room, s.state, s.created_at, s.updated_at,
	sub.name AS subject_name, g.name AS group_name, ts.name AS time_slot_name, ts.sort_order AS time_slot_order,
	ts.start_time::text AS start_time, ts.end_time::text AS end_time,
	COALESCE(s.teacher_id, sub.teacher_id) AS effective_teacher_id, t.name AS teacher_name
FROM schedules s
JOIN subjects sub ON sub.id = s.subject_id
JOIN groups g ON g.id = s.group_id
JOIN time_slots ts ON ts.id = s.time_slot_id
LEFT JOIN teachers t ON t.id = COALESCE(s.teacher_id, sub.teacher_id)`

const scheduleOrder = ` ORDER BY array_position(ARRAY['MONDAY','TUESDAY','WEDNESDAY','THURSDAY','FRIDAY','SATURDAY','SUNDAY']::text[], s.day), ts.sort_order, s.id`

// ScheduleStore is the slice of schedule persistence a conflict check runs against.
type ScheduleStore interface {
	FindByID(ctx context.Context, id string) (*models.Schedule, error)
	FindActiveByGroupSlot(ctx context.Context, groupID string, day models.Weekday, timeSlotID, excludeID string) ([]models.ScheduleDetail, error)
	FindActiveByTeacherSlot(ctx context.Context, teacherID string, day models.Weekday, timeSlotID, excludeID string) ([]models.ScheduleDetail, error)
	Create(ctx context.Context, schedule *models.Schedule) error
	Update(ctx context.Context, schedule *models.Schedule) error
}

// ScheduleRepository provides persistence for schedules.
type ScheduleRepository struct {
	db *sqlx.DB
	q  sqlx.ExtContext
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db, q: db}
}

// InTx runs fn against a store bound to one SERIALIZABLE transaction.
func (r *ScheduleRepository) InTx(ctx context.Context, fn func(ScheduleStore) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin schedule tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&ScheduleRepository{db: r.db, q: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return mapPQError("commit schedule tx", err)
	}
	return nil
}

// List returns schedules with optional filtering and pagination.
func (r *ScheduleRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.GroupID != "" {
		args = append(args, filter.GroupID)
		conditions = append(conditions, fmt.Sprintf("s.group_id = $%d", len(args)))
	}
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		conditions = append(conditions, fmt.Sprintf("COALESCE(s.teacher_id, sub.teacher_id) = $%d", len(args)))
	}
	if filter.SubjectID != "" {
		args = append(args, filter.SubjectID)
		conditions = append(conditions, fmt.Sprintf("s.subject_id = $%d", len(args)))
	}
	if filter.Day != "" {
		args = append(args, filter.Day)
		conditions = append(conditions, fmt.Sprintf("s.day = $%d", len(args)))
	}
	if filter.State != "" {
		args = append(args, filter.State)
		conditions = append(conditions, fmt.Sprintf("s.state = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	limit, offset := paging(filter.Page, filter.PageSize)
	query := scheduleDetailSelect + where + scheduleOrder + fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	var schedules []models.ScheduleDetail
	if err := sqlx.SelectContext(ctx, r.q, &schedules, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list schedules: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM schedules s JOIN subjects sub ON sub.id = s.subject_id" + where
	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count schedules: %w", err)
	}

	return schedules, total, nil
}

// FindByID loads a schedule by id regardless of state.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	const query = `SELECT id, subject_id, group_id, teacher_id, time_slot_id, day, room, state, created_at, updated_at FROM schedules WHERE id = $1`
	var sched models.Schedule
	if err := sqlx.GetContext(ctx, r.q, &sched, query, id); err != nil {
		return nil, err
	}
	return &sched, nil
}

// FindDetailByID loads a schedule with its joined names.
func (r *ScheduleRepository) FindDetailByID(ctx context.Context, id string) (*models.ScheduleDetail, error) {
	var detail models.ScheduleDetail
	if err := sqlx.GetContext(ctx, r.q, &detail, scheduleDetailSelect+" WHERE s.id = $1", id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindActiveByGroupSlot returns active schedules holding the group's (day, slot), skipping excludeID.
func (r *ScheduleRepository) FindActiveByGroupSlot(ctx context.Context, groupID string, day models.Weekday, timeSlotID, excludeID string) ([]models.ScheduleDetail, error) {
	query := scheduleDetailSelect + ` WHERE s.state = 'ACTIVE' AND s.group_id = $1 AND s.day = $2 AND s.time_slot_id = $3 AND ($4 = '' OR s.id <> $4)` + scheduleOrder
	var schedules []models.ScheduleDetail
	if err := sqlx.SelectContext(ctx, r.q, &schedules, query, groupID, day, timeSlotID, excludeID); err != nil {
		return nil, mapPQError("find group slot conflicts", err)
	}
	return schedules, nil
}

// FindActiveByTeacherSlot returns active schedules whose effective teacher holds (day, slot), skipping excludeID.
func (r *ScheduleRepository) FindActiveByTeacherSlot(ctx context.Context, teacherID string, day models.Weekday, timeSlotID, excludeID string) ([]models.ScheduleDetail, error) {
	query := scheduleDetailSelect + ` WHERE s.state = 'ACTIVE' AND COALESCE(s.teacher_id, sub.teacher_id) = $1 AND s.day = $2 AND s.time_slot_id = $3 AND ($4 = '' OR s.id <> $4)` + scheduleOrder
	var schedules []models.ScheduleDetail
	if err := sqlx.SelectContext(ctx, r.q, &schedules, query, teacherID, day, timeSlotID, excludeID); err != nil {
		return nil, mapPQError("find teacher slot conflicts", err)
	}
	return schedules, nil
}

// ListActiveByGroup returns the group's active weekly timetable.
func (r *ScheduleRepository) ListActiveByGroup(ctx context.Context, groupID string) ([]models.ScheduleDetail, error) {
	query := scheduleDetailSelect + ` WHERE s.state = 'ACTIVE' AND s.group_id = $1` + scheduleOrder
	var schedules []models.ScheduleDetail
	if err := sqlx.SelectContext(ctx, r.q, &schedules, query, groupID); err != nil {
		return nil, fmt.Errorf("list schedules by group: %w", err)
	}
	return schedules, nil
}

// ListActiveByTeacher returns active schedules the teacher effectively teaches.
func (r *ScheduleRepository) ListActiveByTeacher(ctx context.Context, teacherID string) ([]models.ScheduleDetail, error) {
	query := scheduleDetailSelect + ` WHERE s.state = 'ACTIVE' AND COALESCE(s.teacher_id, sub.teacher_id) = $1` + scheduleOrder
	var schedules []models.ScheduleDetail
	if err := sqlx.SelectContext(ctx, r.q, &schedules, query, teacherID); err != nil {
		return nil, fmt.Errorf("list schedules by teacher: %w", err)
	}
	return schedules, nil
}

// Create stores a new active schedule.
func (r *ScheduleRepository) Create(ctx context.Context, schedule *models.Schedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	if schedule.State == "" {
		schedule.State = models.ScheduleActive
	}
	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	const query = `INSERT INTO schedules (id, subject_id, group_id, teacher_id, time_slot_id, day, room, state, created_at, updated_at) VALUES (:id, :subject_id, :group_id, :teacher_id, :time_slot_id, :day, :room, :state, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.q, query, schedule); err != nil {
		return mapPQError("create schedule", err)
	}
	return nil
}

// Update rewrites a schedule's assignment fields. State is left untouched.
func (r *ScheduleRepository) Update(ctx context.Context, schedule *models.Schedule) error {
	schedule.UpdatedAt = time.Now().UTC()
	const query = `UPDATE schedules SET subject_id = :subject_id, group_id = :group_id, teacher_id = :teacher_id, time_slot_id = :time_slot_id, day = :day, room = :room, updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.q, query, schedule)
	if err != nil {
		return mapPQError("update schedule", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Retire moves a schedule to RETIRED, freeing its slot. Retiring twice is a no-op.
func (r *ScheduleRepository) Retire(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `UPDATE schedules SET state = 'RETIRED', updated_at = $2 WHERE id = $1`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("retire schedule: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/attendance-api/internal/models"
)

const attendanceColumns = `id, student_id, subject_id, schedule_id, date, status, notes, created_by, marked_by_student, leave_request_id, marked_at, created_at, updated_at`

// AttendanceRepository persists attendance rows keyed by (student, subject, date).
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository creates an attendance repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Upsert writes record over any existing row for the same key and reports whether a new row was inserted.
// An empty note or nil schedule keeps what the existing row already holds.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.Attendance) (bool, error) {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.MarkedAt.IsZero() {
		record.MarkedAt = now
	}
	record.Date = models.DateOnly(record.Date)
	record.CreatedAt = now
	record.UpdatedAt = now

	const query = `INSERT INTO attendance (id, student_id, subject_id, schedule_id, date, status, notes, created_by, marked_by_student, leave_request_id, marked_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (student_id, subject_id, date)
DO UPDATE SET schedule_id = COALESCE(EXCLUDED.schedule_id, attendance.schedule_id),
	status = EXCLUDED.status,
	notes = CASE WHEN EXCLUDED.notes = '' THEN attendance.notes ELSE EXCLUDED.notes END,
	created_by = EXCLUDED.created_by,
	marked_by_student = EXCLUDED.marked_by_student,
	leave_request_id = EXCLUDED.leave_request_id,
	marked_at = EXCLUDED.marked_at,
	updated_at = EXCLUDED.updated_at
RETURNING id, created_at, (xmax = 0) AS inserted`

	var inserted bool
	err := r.db.QueryRowxContext(ctx, query,
		record.ID, record.StudentID, record.SubjectID, record.ScheduleID, record.Date, record.Status, record.Notes,
		record.CreatedBy, record.MarkedByStudent, record.LeaveRequestID, record.MarkedAt, record.CreatedAt, record.UpdatedAt,
	).Scan(&record.ID, &record.CreatedAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("upsert attendance: %w", err)
	}
	return inserted, nil
}

func attendanceWhere(filter models.AttendanceFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.StudentIDs != nil {
		args = append(args, pq.Array(filter.StudentIDs))
		conditions = append(conditions, fmt.Sprintf("student_id = ANY($%d)", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.SubjectID != "" {
		args = append(args, filter.SubjectID)
		conditions = append(conditions, fmt.Sprintf("subject_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, models.DateOnly(*filter.From))
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, models.DateOnly(*filter.To))
		conditions = append(conditions, fmt.Sprintf("date <= $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// List returns attendance rows newest first.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error) {
	where, args := attendanceWhere(filter)
	limit, offset := paging(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM attendance%s ORDER BY date DESC, student_id LIMIT %d OFFSET %d", attendanceColumns, where, limit, offset)
	var rows []models.Attendance
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM attendance"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return rows, total, nil
}

// CountByStatus groups the filtered rows by status.
func (r *AttendanceRepository) CountByStatus(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceStatusCount, error) {
	where, args := attendanceWhere(filter)
	var counts []models.AttendanceStatusCount
	if err := r.db.SelectContext(ctx, &counts, "SELECT status, COUNT(*) AS count FROM attendance"+where+" GROUP BY status", args...); err != nil {
		return nil, fmt.Errorf("count attendance by status: %w", err)
	}
	return counts, nil
}

// AbsenceTallies returns students with at least threshold ABSENT rows dated on or after since.
func (r *AttendanceRepository) AbsenceTallies(ctx context.Context, since time.Time, threshold int) ([]models.AbsenceTally, error) {
	const query = `SELECT a.student_id, st.name AS student_name, st.group_id, COUNT(*) AS absences
FROM attendance a
JOIN students st ON st.id = a.student_id
WHERE a.status = 'ABSENT' AND a.date >= $1
GROUP BY a.student_id, st.name, st.group_id
HAVING COUNT(*) >= $2
ORDER BY a.student_id`
	var tallies []models.AbsenceTally
	if err := r.db.SelectContext(ctx, &tallies, query, models.DateOnly(since), threshold); err != nil {
		return nil, fmt.Errorf("absence tallies: %w", err)
	}
	return tallies, nil
}

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

const leaveColumns = `id, student_id, leave_type, start_date, end_date, reason, status, approved_by, decided_at, created_at, updated_at`

// LeaveRequestRepository persists leave requests.
type LeaveRequestRepository struct {
	db *sqlx.DB
}

// NewLeaveRequestRepository creates a leave request repository.
func NewLeaveRequestRepository(db *sqlx.DB) *LeaveRequestRepository {
	return &LeaveRequestRepository{db: db}
}

// Create stores a new pending request.
func (r *LeaveRequestRepository) Create(ctx context.Context, leave *models.LeaveRequest) error {
	if leave.ID == "" {
		leave.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	leave.Status = models.LeavePending
	leave.CreatedAt = now
	leave.UpdatedAt = now

	const query = `INSERT INTO leave_requests (id, student_id, leave_type, start_date, end_date, reason, status, approved_by, decided_at, created_at, updated_at) VALUES (:id, :student_id, :leave_type, :start_date, :end_date, :reason, :status, :approved_by, :decided_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, leave); err != nil {
		return fmt.Errorf("create leave request: %w", err)
	}
	return nil
}

// FindByID loads a leave request.
func (r *LeaveRequestRepository) FindByID(ctx context.Context, id string) (*models.LeaveRequest, error) {
	var leave models.LeaveRequest
	if err := r.db.GetContext(ctx, &leave, `SELECT `+leaveColumns+` FROM leave_requests WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &leave, nil
}

// Resolve moves a PENDING request to status. It returns sql.ErrNoRows when the request is missing or already resolved.
func (r *LeaveRequestRepository) Resolve(ctx context.Context, id string, status models.LeaveStatus, approverID string, decidedAt time.Time) (*models.LeaveRequest, error) {
	query := `UPDATE leave_requests SET status = $2, approved_by = $3, decided_at = $4, updated_at = $4
WHERE id = $1 AND status = 'PENDING'
RETURNING ` + leaveColumns
	var leave models.LeaveRequest
	if err := r.db.GetContext(ctx, &leave, query, id, status, approverID, decidedAt); err != nil {
		return nil, err
	}
	return &leave, nil
}

// List returns leave requests newest first.
func (r *LeaveRequestRepository) List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequest, int, error) {
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
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	limit, offset := paging(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s FROM leave_requests%s ORDER BY created_at DESC LIMIT %d OFFSET %d", leaveColumns, where, limit, offset)
	var leaves []models.LeaveRequest
	if err := r.db.SelectContext(ctx, &leaves, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list leave requests: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM leave_requests"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count leave requests: %w", err)
	}
	return leaves, total, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/attendance-api/internal/models"
)

// RecipientRepository resolves which user accounts a notification should reach.
type RecipientRepository struct {
	db *sqlx.DB
}

// NewRecipientRepository creates a recipient repository.
func NewRecipientRepository(db *sqlx.DB) *RecipientRepository {
	return &RecipientRepository{db: db}
}

// SubjectTeacherUserID returns the login of the subject's default teacher, or "" when there is none.
func (r *RecipientRepository) SubjectTeacherUserID(ctx context.Context, subjectID string) (string, error) {
	const query = `SELECT t.user_id FROM subjects sub JOIN teachers t ON t.id = sub.teacher_id WHERE sub.id = $1 AND t.user_id IS NOT NULL`
	var userID string
	if err := r.db.GetContext(ctx, &userID, query, subjectID); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("subject teacher user: %w", err)
	}
	return userID, nil
}

// UserIDsByRoles lists active users holding any of roles.
func (r *RecipientRepository) UserIDsByRoles(ctx context.Context, roles ...models.UserRole) ([]string, error) {
	values := make([]string, len(roles))
	for i, role := range roles {
		values[i] = string(role)
	}
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM users WHERE active = TRUE AND role = ANY($1) ORDER BY id`, pq.Array(values)); err != nil {
		return nil, fmt.Errorf("users by roles: %w", err)
	}
	return ids, nil
}

// StudentUserID returns the student's own login, or "" when unlinked.
func (r *RecipientRepository) StudentUserID(ctx context.Context, studentID string) (string, error) {
	var userID sql.NullString
	if err := r.db.GetContext(ctx, &userID, `SELECT user_id FROM students WHERE id = $1`, studentID); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("student user: %w", err)
	}
	return userID.String, nil
}

// ParentUserIDs lists every parent linked to the student.
func (r *RecipientRepository) ParentUserIDs(ctx context.Context, studentID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT parent_user_id FROM student_parents WHERE student_id = $1 ORDER BY parent_user_id`, studentID); err != nil {
		return nil, fmt.Errorf("parent users: %w", err)
	}
	return ids, nil
}

// GroupTeacherUserIDs lists the distinct logins of effective teachers on the group's active schedules.
func (r *RecipientRepository) GroupTeacherUserIDs(ctx context.Context, groupID string) ([]string, error) {
	const query = `SELECT DISTINCT t.user_id
FROM schedules s
JOIN subjects sub ON sub.id = s.subject_id
JOIN teachers t ON t.id = COALESCE(s.teacher_id, sub.teacher_id)
WHERE s.group_id = $1 AND s.state = 'ACTIVE' AND t.user_id IS NOT NULL
ORDER BY t.user_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, groupID); err != nil {
		return nil, fmt.Errorf("group teacher users: %w", err)
	}
	return ids, nil
}

// GroupStudentUserIDs lists the logins of students placed in the group.
func (r *RecipientRepository) GroupStudentUserIDs(ctx context.Context, groupID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM students WHERE group_id = $1 AND user_id IS NOT NULL ORDER BY user_id`, groupID); err != nil {
		return nil, fmt.Errorf("group student users: %w", err)
	}
	return ids, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendance-api/internal/models"
)

const studentColumns = `st.id, st.user_id, st.name, st.course_id, st.group_id, st.created_at, st.updated_at`

// StudentRepository reads student profiles and their parent links.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository creates a student repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID loads a student.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, `SELECT `+studentColumns+` FROM students st WHERE st.id = $1`, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByUserID loads the student profile behind a login.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, `SELECT `+studentColumns+` FROM students st WHERE st.user_id = $1`, userID); err != nil {
		return nil, err
	}
	return &student, nil
}

// ListByParent returns the children linked to a parent login.
func (r *StudentRepository) ListByParent(ctx context.Context, parentUserID string) ([]models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students st
JOIN student_parents sp ON sp.student_id = st.id
WHERE sp.parent_user_id = $1
ORDER BY st.name`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, parentUserID); err != nil {
		return nil, fmt.Errorf("list students by parent: %w", err)
	}
	return students, nil
}

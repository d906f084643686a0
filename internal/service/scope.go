package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/attendance-api/internal/models"
	appErrors "github.com/noah-isme/attendance-api/pkg/errors"
)

type studentDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
	ListByParent(ctx context.Context, parentUserID string) ([]models.Student, error)
}

type teacherDirectory interface {
	FindByUserID(ctx context.Context, userID string) (*models.Teacher, error)
}

// visibleStudentIDs returns the students actor may see. A nil slice means no restriction.
func visibleStudentIDs(ctx context.Context, students studentDirectory, actor models.Actor) ([]string, error) {
	switch actor.Role {
	case models.RoleAdmin, models.RoleManager, models.RoleTeacher:
		return nil, nil
	case models.RoleStudent:
		student, err := students.FindByUserID(ctx, actor.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return []string{}, nil
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
		}
		return []string{student.ID}, nil
	case models.RoleParent:
		children, err := students.ListByParent(ctx, actor.UserID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load linked students")
		}
		ids := make([]string, 0, len(children))
		for _, child := range children {
			ids = append(ids, child.ID)
		}
		return ids, nil
	}
	return []string{}, nil
}

func canSeeStudent(visible []string, studentID string) bool {
	if visible == nil {
		return true
	}
	for _, id := range visible {
		if id == studentID {
			return true
		}
	}
	return false
}

// ownStudent resolves the student profile behind a STUDENT login.
func ownStudent(ctx context.Context, students studentDirectory, actor models.Actor) (*models.Student, error) {
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can perform this action")
	}
	student, err := students.FindByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no student profile is linked to this account")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	return student, nil
}

// ownTeacher resolves the teacher profile behind a TEACHER login.
func ownTeacher(ctx context.Context, teachers teacherDirectory, actor models.Actor) (*models.Teacher, error) {
	teacher, err := teachers.FindByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no teacher profile is linked to this account")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher profile")
	}
	return teacher, nil
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-api/internal/dto"
	"github.com/noah-isme/attendance-api/internal/models"
	appErrors "github.com/noah-isme/attendance-api/pkg/errors"
)

type leaveRepository interface {
	Create(ctx context.Context, leave *models.LeaveRequest) error
	FindByID(ctx context.Context, id string) (*models.LeaveRequest, error)
	Resolve(ctx context.Context, id string, status models.LeaveStatus, approverID string, decidedAt time.Time) (*models.LeaveRequest, error)
	List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequest, int, error)
}

type leaveReconciler interface {
	Reconcile(ctx context.Context, leave models.LeaveRequest, approverID string) (int, error)
}

type leaveNotifier interface {
	LeaveRequested(ctx context.Context, leave models.LeaveRequest, student models.Student)
	LeaveResolved(ctx context.Context, leave models.LeaveRequest, student models.Student, approverID string)
}

// LeaveService manages the leave request lifecycle.
type LeaveService struct {
	repo       leaveRepository
	students   studentDirectory
	reconciler leaveReconciler
	notifier   leaveNotifier
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewLeaveService constructs the leave service.
func NewLeaveService(repo leaveRepository, students studentDirectory, reconciler leaveReconciler, notifier leaveNotifier, validate *validator.Validate, logger *zap.Logger) *LeaveService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaveService{
		repo:       repo,
		students:   students,
		reconciler: reconciler,
		notifier:   notifier,
		validator:  validate,
		logger:     logger,
		now:        time.Now,
	}
}

// Create files a PENDING leave request for the calling student.
func (s *LeaveService) Create(ctx context.Context, actor models.Actor, req dto.CreateLeaveRequest) (*models.LeaveRequest, error) {
	student, err := ownStudent(ctx, s.students, actor)
	if err != nil {
		return nil, err
	}

	req.LeaveType = strings.ToUpper(strings.TrimSpace(req.LeaveType))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leave request payload")
	}
	start, err := models.ParseDate(req.StartDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid start_date")
	}
	end, err := models.ParseDate(req.EndDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid end_date")
	}
	if start.After(end) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_date must not be after end_date")
	}

	leave := &models.LeaveRequest{
		StudentID: student.ID,
		LeaveType: models.LeaveType(req.LeaveType),
		StartDate: start,
		EndDate:   end,
		Reason:    strings.TrimSpace(req.Reason),
	}
	if err := s.repo.Create(ctx, leave); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create leave request")
	}

	s.logger.Info("leave request created", zap.String("leave_request_id", leave.ID), zap.String("student_id", student.ID))
	s.notifier.LeaveRequested(ctx, *leave, *student)
	return leave, nil
}

// Approve resolves a pending request as APPROVED and excuses the covered attendance.
func (s *LeaveService) Approve(ctx context.Context, actor models.Actor, id string) (*models.LeaveDecision, error) {
	return s.decide(ctx, actor, id, models.LeaveApproved)
}

// Reject resolves a pending request as REJECTED.
func (s *LeaveService) Reject(ctx context.Context, actor models.Actor, id string) (*models.LeaveDecision, error) {
	return s.decide(ctx, actor, id, models.LeaveRejected)
}

func (s *LeaveService) decide(ctx context.Context, actor models.Actor, id string, status models.LeaveStatus) (*models.LeaveDecision, error) {
	leave, err := s.repo.Resolve(ctx, id, status, actor.UserID, s.now().UTC())
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve leave request")
		}
		return nil, s.resolveFailure(ctx, id)
	}

	student := models.Student{ID: leave.StudentID}
	if loaded, err := s.students.FindByID(ctx, leave.StudentID); err == nil {
		student = *loaded
	} else {
		s.logger.Warn("leave student lookup failed", zap.String("leave_request_id", leave.ID), zap.Error(err))
	}

	decision := &models.LeaveDecision{LeaveRequest: *leave}
	if status == models.LeaveApproved {
		rows, err := s.reconciler.Reconcile(ctx, *leave, actor.UserID)
		if err != nil {
			s.logger.Error("leave reconciliation failed", zap.String("leave_request_id", leave.ID), zap.Error(err))
		}
		decision.ReconciledRows = rows
	}

	s.logger.Info("leave request resolved",
		zap.String("leave_request_id", leave.ID),
		zap.String("status", string(status)),
		zap.String("approver_id", actor.UserID),
		zap.Int("reconciled_rows", decision.ReconciledRows),
	)
	s.notifier.LeaveResolved(ctx, *leave, student, actor.UserID)
	return decision, nil
}

// resolveFailure explains why a conditional resolve touched no row.
func (s *LeaveService) resolveFailure(ctx context.Context, id string) error {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return lookupError(err, "leave request")
	}
	return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("leave request already %s", strings.ToLower(string(existing.Status))))
}

// List returns the leave requests visible to actor.
func (s *LeaveService) List(ctx context.Context, actor models.Actor, filter models.LeaveFilter) ([]models.LeaveRequest, *models.Pagination, error) {
	visible, err := visibleStudentIDs(ctx, s.students, actor)
	if err != nil {
		return nil, nil, err
	}
	if filter.StudentID != "" && !canSeeStudent(visible, filter.StudentID) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "cannot view this student's leave requests")
	}
	filter.StudentIDs = visible
	filter.Page, filter.PageSize = models.NormalisePage(filter.Page, filter.PageSize)
	if filter.Status != "" {
		filter.Status = models.LeaveStatus(strings.ToUpper(string(filter.Status)))
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list leave requests")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a single leave request when actor may see it.
func (s *LeaveService) Get(ctx context.Context, actor models.Actor, id string) (*models.LeaveRequest, error) {
	leave, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "leave request")
	}
	visible, err := visibleStudentIDs(ctx, s.students, actor)
	if err != nil {
		return nil, err
	}
	if !canSeeStudent(visible, leave.StudentID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
	}
	return leave, nil
}

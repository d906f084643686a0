package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-api/internal/dto"
	"github.com/noah-isme/attendance-api/internal/models"
	appErrors "github.com/noah-isme/attendance-api/pkg/errors"
	"github.com/noah-isme/attendance-api/pkg/jobs"
	"github.com/noah-isme/attendance-api/pkg/middleware/requestid"
)

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, id, recipientID string) (bool, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
}

type recipientResolver interface {
	SubjectTeacherUserID(ctx context.Context, subjectID string) (string, error)
	UserIDsByRoles(ctx context.Context, roles ...models.UserRole) ([]string, error)
	StudentUserID(ctx context.Context, studentID string) (string, error)
	ParentUserIDs(ctx context.Context, studentID string) ([]string, error)
	GroupTeacherUserIDs(ctx context.Context, groupID string) ([]string, error)
	GroupStudentUserIDs(ctx context.Context, groupID string) ([]string, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// AbsenceEvent describes an attendance row that was just created as ABSENT.
type AbsenceEvent struct {
	Attendance  models.Attendance
	StudentName string
	SubjectName string
}

// notificationBatch resolves its recipients lazily so queued batches do the lookups off the request path.
type notificationBatch struct {
	kind      models.NotificationType
	requestID string
	build     func(ctx context.Context) ([]models.Notification, error)
}

// NotificationService records in-app notifications. Trigger methods never fail the caller.
type NotificationService struct {
	store      notificationStore
	recipients recipientResolver
	queue      jobEnqueuer
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	timeout    time.Duration
}

// NewNotificationService constructs the service. Triggers write synchronously until UseQueue is called.
func NewNotificationService(store notificationStore, recipients recipientResolver, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *NotificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		store:      store,
		recipients: recipients,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		timeout:    10 * time.Second,
	}
}

// UseQueue hands trigger batches to q. HandleJob must be the queue's handler.
func (s *NotificationService) UseQueue(q jobEnqueuer) {
	s.queue = q
}

// HandleJob processes a queued batch. Failures are logged, never retried.
func (s *NotificationService) HandleJob(ctx context.Context, job jobs.Job) error {
	batch, ok := job.Payload.(notificationBatch)
	if !ok {
		s.logger.Error("unexpected notification job payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	s.run(ctx, batch)
	return nil
}

// AttendanceMarked notifies the subject's teacher that a student was marked absent.
func (s *NotificationService) AttendanceMarked(ctx context.Context, event AbsenceEvent) {
	record := event.Attendance
	if record.Status != models.AttendanceAbsent {
		return
	}
	s.fire(ctx, notificationBatch{
		kind: models.NotificationAbsence,
		build: func(ctx context.Context) ([]models.Notification, error) {
			teacherUserID, err := s.recipients.SubjectTeacherUserID(ctx, record.SubjectID)
			if err != nil || teacherUserID == "" {
				return nil, err
			}
			studentID := record.StudentID
			return []models.Notification{{
				RecipientID: teacherUserID,
				Type:        models.NotificationAbsence,
				Title:       "Student absent",
				Message:     fmt.Sprintf("%s was absent from %s on %s.", event.StudentName, event.SubjectName, record.Date.Format(models.DateLayout)),
				StudentID:   &studentID,
			}}, nil
		},
	})
}

// LeaveRequested notifies every admin and manager of a new leave request.
func (s *NotificationService) LeaveRequested(ctx context.Context, leave models.LeaveRequest, student models.Student) {
	s.fire(ctx, notificationBatch{
		kind: models.NotificationLeaveRequest,
		build: func(ctx context.Context) ([]models.Notification, error) {
			staff, err := s.recipients.UserIDsByRoles(ctx, models.RoleAdmin, models.RoleManager)
			if err != nil {
				return nil, err
			}
			title := fmt.Sprintf("New leave request from %s", student.Name)
			message := fmt.Sprintf("%s requests %s leave from %s to %s.\n\nReason: %s",
				student.Name, leave.LeaveType, leave.StartDate.Format(models.DateLayout), leave.EndDate.Format(models.DateLayout), leave.Reason)
			batch := make([]models.Notification, 0, len(staff))
			for _, userID := range staff {
				batch = append(batch, leaveNotification(userID, student.UserID, models.NotificationLeaveRequest, title, message, leave))
			}
			return batch, nil
		},
	})
}

// LeaveResolved notifies the student and each linked parent of an approval or rejection.
func (s *NotificationService) LeaveResolved(ctx context.Context, leave models.LeaveRequest, student models.Student, approverID string) {
	kind := models.NotificationLeaveRejected
	verb := "rejected"
	if leave.Status == models.LeaveApproved {
		kind = models.NotificationLeaveApproved
		verb = "approved"
	}
	s.fire(ctx, notificationBatch{
		kind: kind,
		build: func(ctx context.Context) ([]models.Notification, error) {
			period := fmt.Sprintf("%s to %s", leave.StartDate.Format(models.DateLayout), leave.EndDate.Format(models.DateLayout))
			sender := &approverID
			var batch []models.Notification

			studentUserID, err := s.recipients.StudentUserID(ctx, leave.StudentID)
			if err != nil {
				return nil, err
			}
			if studentUserID != "" {
				batch = append(batch, leaveNotification(studentUserID, sender, kind,
					fmt.Sprintf("Your leave request was %s", verb),
					fmt.Sprintf("Your leave request for %s was %s.", period, verb), leave))
			}

			parents, err := s.recipients.ParentUserIDs(ctx, leave.StudentID)
			if err != nil {
				return batch, err
			}
			for _, parentID := range parents {
				batch = append(batch, leaveNotification(parentID, sender, kind,
					fmt.Sprintf("Leave request for %s was %s", student.Name, verb),
					fmt.Sprintf("The leave request of %s for %s was %s.", student.Name, period, verb), leave))
			}
			return batch, nil
		},
	})
}

// Broadcast sends a GENERAL notification from a staff member and returns how many were written.
func (s *NotificationService) Broadcast(ctx context.Context, actor models.Actor, req dto.BroadcastRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid broadcast payload")
	}

	var (
		recipients []string
		err        error
	)
	switch models.BroadcastAudience(req.Audience) {
	case models.AudienceAllStudents:
		recipients, err = s.recipients.UserIDsByRoles(ctx, models.RoleStudent)
	case models.AudienceAllParents:
		recipients, err = s.recipients.UserIDsByRoles(ctx, models.RoleParent)
	case models.AudienceGroup:
		recipients, err = s.recipients.GroupStudentUserIDs(ctx, req.GroupID)
	}
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve broadcast recipients")
	}

	sender := actor.UserID
	batch := make([]models.Notification, 0, len(recipients))
	for _, userID := range recipients {
		batch = append(batch, models.Notification{
			RecipientID: userID,
			SenderID:    &sender,
			Type:        models.NotificationGeneral,
			Title:       req.Title,
			Message:     req.Message,
		})
	}
	sent, _ := s.Send(ctx, models.NotificationGeneral, batch)
	return sent, nil
}

// Send writes batch synchronously and reports how many rows were written and how many failed.
func (s *NotificationService) Send(ctx context.Context, kind models.NotificationType, batch []models.Notification) (int, int) {
	sent, failed := 0, 0
	for i := range batch {
		n := batch[i]
		if err := s.store.Create(ctx, &n); err != nil {
			failed++
			s.metrics.RecordNotification(string(kind), false)
			s.logger.Warn("notification write failed",
				zap.String("type", string(kind)),
				zap.String("recipient_id", n.RecipientID),
				zap.Error(err),
			)
			continue
		}
		sent++
		s.metrics.RecordNotification(string(kind), true)
	}
	return sent, failed
}

// List returns the caller's own notifications.
func (s *NotificationService) List(ctx context.Context, actor models.Actor, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, int, error) {
	filter.RecipientID = actor.UserID
	filter.Page, filter.PageSize = models.NormalisePage(filter.Page, filter.PageSize)

	items, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	unread, err := s.store.CountUnread(ctx, actor.UserID)
	if err != nil {
		return nil, nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unread notifications")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, unread, nil
}

// MarkRead flags one of the caller's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, actor models.Actor, id string) error {
	ok, err := s.store.MarkRead(ctx, id, actor.UserID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return nil
}

// MarkAllRead flags every unread notification of the caller and returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, actor models.Actor) (int64, error) {
	count, err := s.store.MarkAllRead(ctx, actor.UserID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return count, nil
}

// fire never waits on the queue: a full or stopped queue falls back to an inline write.
func (s *NotificationService) fire(ctx context.Context, batch notificationBatch) {
	batch.requestID = requestid.FromContext(ctx)
	if s.queue != nil {
		err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: string(batch.kind), Payload: batch})
		if err == nil {
			return
		}
		s.logger.Warn("notification enqueue failed, writing inline",
			zap.String("type", string(batch.kind)),
			zap.String("request_id", batch.requestID),
			zap.Bool("queue_full", errors.Is(err, jobs.ErrQueueFull)),
			zap.Error(err),
		)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	s.run(ctx, batch)
}

func (s *NotificationService) run(ctx context.Context, batch notificationBatch) {
	items, err := batch.build(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.metrics.RecordNotification(string(batch.kind), false)
		s.logger.Warn("notification recipients lookup failed", zap.String("type", string(batch.kind)), zap.String("request_id", batch.requestID), zap.Error(err))
	}
	if len(items) == 0 {
		return
	}
	sent, failed := s.Send(ctx, batch.kind, items)
	s.logger.Debug("notifications written", zap.String("type", string(batch.kind)), zap.String("request_id", batch.requestID), zap.Int("sent", sent), zap.Int("failed", failed))
}

func leaveNotification(recipientID string, sender *string, kind models.NotificationType, title, message string, leave models.LeaveRequest) models.Notification {
	studentID := leave.StudentID
	leaveID := leave.ID
	return models.Notification{
		RecipientID:    recipientID,
		SenderID:       sender,
		Type:           kind,
		Title:          title,
		Message:        message,
		StudentID:      &studentID,
		LeaveRequestID: &leaveID,
	}
}

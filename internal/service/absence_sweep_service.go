package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-api/internal/models"
	appErrors "github.com/noah-isme/attendance-api/pkg/errors"
)

type absenceTallier interface {
	AbsenceTallies(ctx context.Context, since time.Time, threshold int) ([]models.AbsenceTally, error)
}

type sweepRecipients interface {
	ParentUserIDs(ctx context.Context, studentID string) ([]string, error)
	GroupTeacherUserIDs(ctx context.Context, groupID string) ([]string, error)
}

type notificationSender interface {
	Send(ctx context.Context, kind models.NotificationType, batch []models.Notification) (int, int)
}

// AbsenceSweepConfig tunes the excessive-absence scan.
type AbsenceSweepConfig struct {
	WindowDays int
	Threshold  int
}

// AbsenceSweepService flags students with repeated recent absences to their parents and teachers.
// Runs are not de-duplicated: sweeping twice over the same window notifies twice.
type AbsenceSweepService struct {
	tallies    absenceTallier
	recipients sweepRecipients
	sender     notificationSender
	cfg        AbsenceSweepConfig
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

// NewAbsenceSweepService constructs the sweep. Non-positive config values fall back to 10 days and 3 absences.
func NewAbsenceSweepService(tallies absenceTallier, recipients sweepRecipients, sender notificationSender, cfg AbsenceSweepConfig, metrics *MetricsService, logger *zap.Logger) *AbsenceSweepService {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 10
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AbsenceSweepService{
		tallies:    tallies,
		recipients: recipients,
		sender:     sender,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Run performs one sweep over ABSENT rows dated on or after today minus the window.
func (s *AbsenceSweepService) Run(ctx context.Context) (*models.AbsenceSweepResult, error) {
	since := models.DateOnly(s.now().UTC()).AddDate(0, 0, -s.cfg.WindowDays)
	result := &models.AbsenceSweepResult{WindowStart: since}

	tallies, err := s.tallies.AbsenceTallies(ctx, since, s.cfg.Threshold)
	if err != nil {
		s.metrics.RecordSweep(0, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to tally absences")
	}

	for _, tally := range tallies {
		if err := ctx.Err(); err != nil {
			s.metrics.RecordSweep(result.StudentsFlagged, err)
			return result, fmt.Errorf("absence sweep interrupted: %w", err)
		}
		result.StudentsFlagged++

		batch := s.studentBatch(ctx, tally, result)
		sent, failed := s.sender.Send(ctx, models.NotificationAbsence, batch)
		result.Notifications += sent
		result.Failures += failed
	}

	s.metrics.RecordSweep(result.StudentsFlagged, nil)
	s.logger.Info("absence sweep finished",
		zap.Time("window_start", since),
		zap.Int("threshold", s.cfg.Threshold),
		zap.Int("students_flagged", result.StudentsFlagged),
		zap.Int("notifications", result.Notifications),
		zap.Int("failures", result.Failures),
	)
	return result, nil
}

// Task adapts Run to the cron scheduler's task signature.
func (s *AbsenceSweepService) Task(ctx context.Context) error {
	_, err := s.Run(ctx)
	return err
}

func (s *AbsenceSweepService) studentBatch(ctx context.Context, tally models.AbsenceTally, result *models.AbsenceSweepResult) []models.Notification {
	studentID := tally.StudentID
	title := fmt.Sprintf("%s has missed several classes", tally.StudentName)
	var batch []models.Notification

	parents, err := s.recipients.ParentUserIDs(ctx, tally.StudentID)
	if err != nil {
		result.Failures++
		s.logger.Warn("sweep parent lookup failed", zap.String("student_id", tally.StudentID), zap.Error(err))
	}
	for _, parentID := range parents {
		batch = append(batch, models.Notification{
			RecipientID: parentID,
			Type:        models.NotificationAbsence,
			Title:       title,
			Message:     fmt.Sprintf("Your child %s was absent %d times in the last %d days. Please look into the reason.", tally.StudentName, tally.Absences, s.cfg.WindowDays),
			StudentID:   &studentID,
		})
	}

	if tally.GroupID == nil {
		return batch
	}
	teachers, err := s.recipients.GroupTeacherUserIDs(ctx, *tally.GroupID)
	if err != nil {
		result.Failures++
		s.logger.Warn("sweep teacher lookup failed", zap.String("student_id", tally.StudentID), zap.String("group_id", *tally.GroupID), zap.Error(err))
	}
	for _, teacherID := range teachers {
		batch = append(batch, models.Notification{
			RecipientID: teacherID,
			Type:        models.NotificationAbsence,
			Title:       title,
			Message:     fmt.Sprintf("Student %s was absent %d times in the last %d days.", tally.StudentName, tally.Absences, s.cfg.WindowDays),
			StudentID:   &studentID,
		})
	}
	return batch
}

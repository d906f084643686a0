package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-api/internal/models"
	appErrors "github.com/noah-isme/attendance-api/pkg/errors"
)

type attendanceUpserter interface {
	Upsert(ctx context.Context, record *models.Attendance) (bool, error)
}

type groupTimetableReader interface {
	ListActiveByGroup(ctx context.Context, groupID string) ([]models.ScheduleDetail, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// ReconciliationService rewrites attendance to EXCUSED across an approved leave's date range.
type ReconciliationService struct {
	attendance   attendanceUpserter
	schedules    groupTimetableReader
	students     studentReader
	matchWeekday bool
	metrics      *MetricsService
	logger       *zap.Logger
}

// NewReconciliationService builds the service. With matchWeekday false every active schedule of the
// group is excused on every date in range; with true only schedules meeting on that date's weekday are.
func NewReconciliationService(attendance attendanceUpserter, schedules groupTimetableReader, students studentReader, matchWeekday bool, metrics *MetricsService, logger *zap.Logger) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationService{
		attendance:   attendance,
		schedules:    schedules,
		students:     students,
		matchWeekday: matchWeekday,
		metrics:      metrics,
		logger:       logger,
	}
}

type attendanceKey struct {
	subjectID string
	date      time.Time
}

// Reconcile upserts one EXCUSED row per (subject, date) the leave covers and returns how many rows were written.
// A failed row is logged and skipped; the rest are still written.
func (s *ReconciliationService) Reconcile(ctx context.Context, leave models.LeaveRequest, approverID string) (int, error) {
	if leave.Status != models.LeaveApproved {
		return 0, appErrors.Clone(appErrors.ErrPreconditionFailed, "only approved leave requests can be reconciled")
	}

	student, err := s.students.FindByID(ctx, leave.StudentID)
	if err != nil {
		return 0, lookupError(err, "student")
	}
	if student.GroupID == nil {
		s.logger.Warn("leave reconciliation skipped, student has no group", zap.String("leave_request_id", leave.ID), zap.String("student_id", student.ID))
		return 0, nil
	}

	schedules, err := s.schedules.ListActiveByGroup(ctx, *student.GroupID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group schedules")
	}

	written, failed := 0, 0
	seen := make(map[attendanceKey]struct{})
	for _, day := range leave.Days() {
		weekday := models.WeekdayOf(day)
		for _, sched := range schedules {
			if s.matchWeekday && sched.Day != weekday {
				continue
			}
			key := attendanceKey{subjectID: sched.SubjectID, date: day}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			if err := ctx.Err(); err != nil {
				s.metrics.RecordReconciliation(written, failed)
				return written, fmt.Errorf("reconcile leave %s: %w", leave.ID, err)
			}

			scheduleID := sched.ID
			record := &models.Attendance{
				StudentID:      leave.StudentID,
				SubjectID:      sched.SubjectID,
				ScheduleID:     &scheduleID,
				Date:           day,
				Status:         models.AttendanceExcused,
				CreatedBy:      &approverID,
				LeaveRequestID: &leave.ID,
			}
			if _, err := s.attendance.Upsert(ctx, record); err != nil {
				failed++
				s.logger.Error("excused attendance write failed",
					zap.String("leave_request_id", leave.ID),
					zap.String("subject_id", sched.SubjectID),
					zap.String("date", day.Format(models.DateLayout)),
					zap.Error(err),
				)
				continue
			}
			written++
		}
	}

	s.metrics.RecordReconciliation(written, failed)
	s.logger.Info("leave reconciled",
		zap.String("leave_request_id", leave.ID),
		zap.String("student_id", leave.StudentID),
		zap.Int("rows_written", written),
		zap.Int("rows_failed", failed),
		zap.Bool("match_weekday", s.matchWeekday),
	)
	return written, nil
}

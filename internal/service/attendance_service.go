package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-api/internal/dto"
	"github.com/noah-isme/attendance-api/internal/models"
	appErrors "github.com/noah-isme/attendance-api/pkg/errors"
)

type attendanceRepository interface {
	Upsert(ctx context.Context, record *models.Attendance) (bool, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error)
	CountByStatus(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceStatusCount, error)
}

type scheduleDetailReader interface {
	FindDetailByID(ctx context.Context, id string) (*models.ScheduleDetail, error)
}

type absenceNotifier interface {
	AttendanceMarked(ctx context.Context, event AbsenceEvent)
}

// AttendanceService records and reports per-subject attendance.
type AttendanceService struct {
	repo      attendanceRepository
	students  studentDirectory
	teachers  teacherDirectory
	subjects  subjectReader
	schedules scheduleDetailReader
	notifier  absenceNotifier
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo attendanceRepository, students studentDirectory, teachers teacherDirectory, subjects subjectReader, schedules scheduleDetailReader, notifier absenceNotifier, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		repo:      repo,
		students:  students,
		teachers:  teachers,
		subjects:  subjects,
		schedules: schedules,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// Mark records attendance on behalf of a student, overwriting any row for the same subject and date.
func (s *AttendanceService) Mark(ctx context.Context, actor models.Actor, req dto.MarkAttendanceRequest) (*models.Attendance, error) {
	req.Status = strings.ToUpper(strings.TrimSpace(req.Status))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	date, err := models.ParseDate(req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		return nil, lookupError(err, "student")
	}
	subject, err := s.subjects.FindByID(ctx, req.SubjectID)
	if err != nil {
		return nil, lookupError(err, "subject")
	}
	owner := subject.TeacherID
	if req.ScheduleID != nil && *req.ScheduleID != "" {
		schedule, err := s.schedules.FindDetailByID(ctx, *req.ScheduleID)
		if err != nil {
			return nil, lookupError(err, "schedule")
		}
		if schedule.SubjectID != subject.ID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "schedule does not belong to the subject")
		}
		if !inGroup(student, schedule.GroupID) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student is not in the schedule's group")
		}
		owner = schedule.EffectiveTeacherID
	} else {
		req.ScheduleID = nil
	}
	if err := s.authorizeTeacher(ctx, actor, owner); err != nil {
		return nil, err
	}

	markedBy := actor.UserID
	record := &models.Attendance{
		StudentID:  student.ID,
		SubjectID:  subject.ID,
		ScheduleID: req.ScheduleID,
		Date:       date,
		Status:     models.AttendanceStatus(req.Status),
		Notes:      strings.TrimSpace(req.Notes),
		CreatedBy:  &markedBy,
		MarkedAt:   s.now().UTC(),
	}
	return s.save(ctx, record, student.Name, subject.Name)
}

// MarkGroup records one schedule's attendance for students of its group in a single submission.
func (s *AttendanceService) MarkGroup(ctx context.Context, actor models.Actor, scheduleID string, req dto.MarkGroupAttendanceRequest) (*models.GroupAttendanceResult, error) {
	for i := range req.Entries {
		req.Entries[i].StudentID = strings.TrimSpace(req.Entries[i].StudentID)
		req.Entries[i].Status = strings.ToUpper(strings.TrimSpace(req.Entries[i].Status))
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid group attendance payload")
	}

	now := s.now().UTC()
	date := models.DateOnly(now)
	if req.Date != "" {
		parsed, err := models.ParseDate(req.Date)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date")
		}
		date = parsed
	}

	schedule, err := s.schedules.FindDetailByID(ctx, scheduleID)
	if err != nil {
		return nil, lookupError(err, "schedule")
	}
	if !schedule.Active() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schedule is retired")
	}
	if err := s.authorizeTeacher(ctx, actor, schedule.EffectiveTeacherID); err != nil {
		return nil, err
	}

	students := make([]*models.Student, len(req.Entries))
	seen := make(map[string]struct{}, len(req.Entries))
	var outsiders []string
	for i, entry := range req.Entries {
		if _, dup := seen[entry.StudentID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student "+entry.StudentID+" is listed more than once")
		}
		seen[entry.StudentID] = struct{}{}

		student, err := s.students.FindByID(ctx, entry.StudentID)
		if err != nil {
			return nil, lookupError(err, "student")
		}
		if !inGroup(student, schedule.GroupID) {
			outsiders = append(outsiders, student.ID)
		}
		students[i] = student
	}
	if len(outsiders) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "students are not in the schedule's group", map[string]interface{}{
			"group_id":    schedule.GroupID,
			"student_ids": outsiders,
		})
	}

	markedBy := actor.UserID
	schedID := schedule.ID
	result := &models.GroupAttendanceResult{ScheduleID: schedule.ID, Date: date, Records: make([]models.Attendance, 0, len(req.Entries))}
	for i, entry := range req.Entries {
		record := &models.Attendance{
			StudentID:  students[i].ID,
			SubjectID:  schedule.SubjectID,
			ScheduleID: &schedID,
			Date:       date,
			Status:     models.AttendanceStatus(entry.Status),
			Notes:      strings.TrimSpace(entry.Notes),
			CreatedBy:  &markedBy,
			MarkedAt:   now,
		}
		saved, err := s.save(ctx, record, students[i].Name, schedule.SubjectName)
		if err != nil {
			return nil, err
		}
		result.Records = append(result.Records, *saved)
	}
	result.Saved = len(result.Records)
	return result, nil
}

// SelfMark lets a student record today's attendance on a schedule of their own group.
func (s *AttendanceService) SelfMark(ctx context.Context, actor models.Actor, scheduleID string, req dto.SelfMarkRequest) (*models.Attendance, error) {
	student, err := ownStudent(ctx, s.students, actor)
	if err != nil {
		return nil, err
	}
	req.Status = strings.ToUpper(strings.TrimSpace(req.Status))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance status")
	}

	schedule, err := s.schedules.FindDetailByID(ctx, scheduleID)
	if err != nil {
		return nil, lookupError(err, "schedule")
	}
	if !schedule.Active() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schedule is retired")
	}
	if !inGroup(student, schedule.GroupID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "schedule does not belong to your group")
	}

	now := s.now().UTC()
	markedBy := actor.UserID
	schedID := schedule.ID
	record := &models.Attendance{
		StudentID:       student.ID,
		SubjectID:       schedule.SubjectID,
		ScheduleID:      &schedID,
		Date:            models.DateOnly(now),
		Status:          models.AttendanceStatus(req.Status),
		CreatedBy:       &markedBy,
		MarkedByStudent: true,
		MarkedAt:        now,
	}
	return s.save(ctx, record, student.Name, schedule.SubjectName)
}

func (s *AttendanceService) save(ctx context.Context, record *models.Attendance, studentName, subjectName string) (*models.Attendance, error) {
	inserted, err := s.repo.Upsert(ctx, record)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance")
	}

	s.logger.Info("attendance recorded",
		zap.String("student_id", record.StudentID),
		zap.String("subject_id", record.SubjectID),
		zap.String("date", record.Date.Format(models.DateLayout)),
		zap.String("status", string(record.Status)),
		zap.Bool("inserted", inserted),
		zap.Bool("self_marked", record.MarkedByStudent),
	)
	if inserted && record.Status == models.AttendanceAbsent {
		s.notifier.AttendanceMarked(ctx, AbsenceEvent{Attendance: *record, StudentName: studentName, SubjectName: subjectName})
	}
	return record, nil
}

// authorizeTeacher limits TEACHER callers to classes they teach. owner is the effective teacher id.
func (s *AttendanceService) authorizeTeacher(ctx context.Context, actor models.Actor, owner *string) error {
	if actor.Role != models.RoleTeacher {
		return nil
	}
	teacher, err := ownTeacher(ctx, s.teachers, actor)
	if err != nil {
		return err
	}
	if owner == nil || *owner != teacher.ID {
		return appErrors.Clone(appErrors.ErrForbidden, "you do not teach this class")
	}
	return nil
}

func inGroup(student *models.Student, groupID string) bool {
	return student.GroupID != nil && *student.GroupID == groupID
}

// List returns attendance rows visible to actor.
func (s *AttendanceService) List(ctx context.Context, actor models.Actor, filter models.AttendanceFilter) ([]models.Attendance, *models.Pagination, error) {
	filter, err := s.scope(ctx, actor, filter)
	if err != nil {
		return nil, nil, err
	}
	filter.Page, filter.PageSize = models.NormalisePage(filter.Page, filter.PageSize)

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Stats counts visible rows by status and derives the attendance percentage (present over total).
func (s *AttendanceService) Stats(ctx context.Context, actor models.Actor, filter models.AttendanceFilter) (*models.AttendanceStats, error) {
	filter, err := s.scope(ctx, actor, filter)
	if err != nil {
		return nil, err
	}

	counts, err := s.repo.CountByStatus(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute attendance stats")
	}

	stats := &models.AttendanceStats{}
	for _, c := range counts {
		stats.Total += c.Count
		switch c.Status {
		case models.AttendancePresent:
			stats.Present = c.Count
		case models.AttendanceAbsent:
			stats.Absent = c.Count
		case models.AttendanceLate:
			stats.Late = c.Count
		case models.AttendanceExcused:
			stats.Excused = c.Count
		}
	}
	if stats.Total > 0 {
		stats.AttendancePercentage = math.Round(float64(stats.Present)/float64(stats.Total)*10000) / 100
	}
	return stats, nil
}

func (s *AttendanceService) scope(ctx context.Context, actor models.Actor, filter models.AttendanceFilter) (models.AttendanceFilter, error) {
	if filter.Status != "" {
		filter.Status = models.AttendanceStatus(strings.ToUpper(string(filter.Status)))
		if !filter.Status.Valid() {
			return filter, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
		}
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return filter, appErrors.Clone(appErrors.ErrValidation, "from must not be after to")
	}

	visible, err := visibleStudentIDs(ctx, s.students, actor)
	if err != nil {
		return filter, err
	}
	if filter.StudentID != "" && !canSeeStudent(visible, filter.StudentID) {
		return filter, appErrors.Clone(appErrors.ErrForbidden, "cannot view this student's attendance")
	}
	filter.StudentIDs = visible
	return filter, nil
}

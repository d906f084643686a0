package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-api/internal/dto"
	"github.com/noah-isme/attendance-api/internal/models"
	"github.com/noah-isme/attendance-api/internal/repository"
	appErrors "github.com/noah-isme/attendance-api/pkg/errors"
)

type scheduleRepository interface {
	InTx(ctx context.Context, fn func(repository.ScheduleStore) error) error
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Schedule, error)
	FindDetailByID(ctx context.Context, id string) (*models.ScheduleDetail, error)
	ListActiveByGroup(ctx context.Context, groupID string) ([]models.ScheduleDetail, error)
	ListActiveByTeacher(ctx context.Context, teacherID string) ([]models.ScheduleDetail, error)
	Retire(ctx context.Context, id string) error
}

type timeSlotReader interface {
	FindByID(ctx context.Context, id string) (*models.TimeSlot, error)
}

type groupReader interface {
	FindByID(ctx context.Context, id string) (*models.Group, error)
}

type subjectReader interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type teacherReader interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

// ScheduleLookups bundles the reference data a proposal is validated against.
type ScheduleLookups struct {
	TimeSlots timeSlotReader
	Groups    groupReader
	Subjects  subjectReader
	Teachers  teacherReader
}

// ScheduleService owns conflict detection for weekly class assignments.
type ScheduleService struct {
	repo      scheduleRepository
	lookups   ScheduleLookups
	cache     *CacheService
	metrics   *MetricsService
	calendar  CalendarOptions
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleService instantiates ScheduleService.
func NewScheduleService(repo scheduleRepository, lookups ScheduleLookups, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{
		repo:      repo,
		lookups:   lookups,
		cache:     cache,
		metrics:   metrics,
		calendar:  CalendarOptions{Name: "Group timetable", Location: time.UTC},
		validator: validate,
		logger:    logger,
	}
}

func groupTimetableKey(groupID string) string {
	return "timetable:group:" + groupID
}

// ProposeAssignment checks proposal against every active schedule and, when nothing collides,
// inserts it (excludingID empty) or rewrites the schedule excludingID.
func (s *ScheduleService) ProposeAssignment(ctx context.Context, proposal dto.ScheduleProposal, excludingID string) (*models.Schedule, error) {
	if err := s.validator.Struct(proposal); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}

	day, ok := models.ParseWeekday(proposal.Day)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidDay, fmt.Sprintf("unrecognised day %q", proposal.Day))
	}

	slot, err := s.lookups.TimeSlots.FindByID(ctx, proposal.TimeSlotID)
	if err != nil {
		return nil, lookupError(err, "time slot")
	}
	if !slot.IsActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidTimeSlot, fmt.Sprintf("time slot %s is not active", slot.Name))
	}
	if _, err := s.lookups.Groups.FindByID(ctx, proposal.GroupID); err != nil {
		return nil, lookupError(err, "group")
	}
	subject, err := s.lookups.Subjects.FindByID(ctx, proposal.SubjectID)
	if err != nil {
		return nil, lookupError(err, "subject")
	}

	var override *string
	if proposal.TeacherID != nil && *proposal.TeacherID != "" {
		if _, err := s.lookups.Teachers.FindByID(ctx, *proposal.TeacherID); err != nil {
			return nil, lookupError(err, "teacher")
		}
		override = proposal.TeacherID
	}
	effectiveTeacher := override
	if effectiveTeacher == nil {
		effectiveTeacher = subject.TeacherID
	}

	schedule := &models.Schedule{
		SubjectID:  subject.ID,
		GroupID:    proposal.GroupID,
		TeacherID:  override,
		TimeSlotID: slot.ID,
		Day:        day,
		Room:       proposal.Room,
		State:      models.ScheduleActive,
	}
	var previousGroup string

	err = s.repo.InTx(ctx, func(store repository.ScheduleStore) error {
		if excludingID != "" {
			existing, err := store.FindByID(ctx, excludingID)
			if err != nil {
				return lookupError(err, "schedule")
			}
			schedule.ID = existing.ID
			schedule.State = existing.State
			schedule.CreatedAt = existing.CreatedAt
			previousGroup = existing.GroupID
		}

		clashes, err := store.FindActiveByGroupSlot(ctx, schedule.GroupID, day, slot.ID, excludingID)
		if err != nil {
			return err
		}
		if len(clashes) > 0 {
			s.metrics.RecordScheduleConflict("group")
			clash := clashes[0]
			return appErrors.WithDetails(appErrors.ErrGroupConflict,
				fmt.Sprintf("group %s already has %s on %s during %s", clash.GroupName, clash.SubjectName, day, clash.TimeSlotName),
				models.NewScheduleConflict(clash))
		}

		if effectiveTeacher != nil {
			clashes, err = store.FindActiveByTeacherSlot(ctx, *effectiveTeacher, day, slot.ID, excludingID)
			if err != nil {
				return err
			}
			if len(clashes) > 0 {
				s.metrics.RecordScheduleConflict("teacher")
				clash := clashes[0]
				teacher := "the teacher"
				if clash.TeacherName != nil {
					teacher = *clash.TeacherName
				}
				return appErrors.WithDetails(appErrors.ErrTeacherConflict,
					fmt.Sprintf("%s already teaches group %s on %s during %s", teacher, clash.GroupName, day, clash.TimeSlotName),
					models.NewScheduleConflict(clash))
			}
		}

		if excludingID == "" {
			return store.Create(ctx, schedule)
		}
		return store.Update(ctx, schedule)
	})
	if err != nil {
		var appErr *appErrors.Error
		switch {
		case errors.As(err, &appErr):
			return nil, appErr
		case errors.Is(err, repository.ErrConcurrentWrite):
			s.metrics.RecordScheduleConflict("concurrent")
			return nil, appErrors.Clone(appErrors.ErrConflict, "schedule slot was modified concurrently, retry")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save schedule")
	}

	s.cache.Invalidate(ctx, groupTimetableKey(schedule.GroupID))
	if previousGroup != "" && previousGroup != schedule.GroupID {
		s.cache.Invalidate(ctx, groupTimetableKey(previousGroup))
	}

	s.logger.Info("schedule saved",
		zap.String("schedule_id", schedule.ID),
		zap.String("group_id", schedule.GroupID),
		zap.String("day", string(day)),
		zap.String("time_slot_id", slot.ID),
		zap.Bool("edit", excludingID != ""),
	)
	return schedule, nil
}

// Retire frees a schedule's slot. Historical attendance keeps pointing at it.
func (s *ScheduleService) Retire(ctx context.Context, id string) error {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return lookupError(err, "schedule")
	}
	if err := s.repo.Retire(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retire schedule")
	}
	s.cache.Invalidate(ctx, groupTimetableKey(existing.GroupID))
	s.logger.Info("schedule retired", zap.String("schedule_id", id), zap.String("group_id", existing.GroupID))
	return nil
}

// Get returns one schedule with display names.
func (s *ScheduleService) Get(ctx context.Context, id string) (*models.ScheduleDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "schedule")
	}
	return detail, nil
}

// List returns schedules with pagination metadata.
func (s *ScheduleService) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDetail, *models.Pagination, error) {
	if filter.Day != "" {
		day, ok := models.ParseWeekday(string(filter.Day))
		if !ok {
			return nil, nil, appErrors.Clone(appErrors.ErrInvalidDay, fmt.Sprintf("unrecognised day %q", filter.Day))
		}
		filter.Day = day
	}
	schedules, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	page, size := models.NormalisePage(filter.Page, filter.PageSize)
	return schedules, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListByGroup returns the group's active timetable, served from cache when possible.
// The flag reports whether the cache answered.
func (s *ScheduleService) ListByGroup(ctx context.Context, groupID string) ([]models.ScheduleDetail, bool, error) {
	var cached []models.ScheduleDetail
	if s.cache.Get(ctx, groupTimetableKey(groupID), &cached) {
		return cached, true, nil
	}

	if _, err := s.lookups.Groups.FindByID(ctx, groupID); err != nil {
		return nil, false, lookupError(err, "group")
	}
	schedules, err := s.repo.ListActiveByGroup(ctx, groupID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list group schedules")
	}
	s.cache.Set(ctx, groupTimetableKey(groupID), schedules, 0)
	return schedules, false, nil
}

// ListByTeacher returns active schedules the teacher effectively teaches.
func (s *ScheduleService) ListByTeacher(ctx context.Context, teacherID string) ([]models.ScheduleDetail, error) {
	if _, err := s.lookups.Teachers.FindByID(ctx, teacherID); err != nil {
		return nil, lookupError(err, "teacher")
	}
	schedules, err := s.repo.ListActiveByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teacher schedules")
	}
	return schedules, nil
}

func lookupError(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load "+entity)
}

package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-api/internal/dto"
	"github.com/noah-isme/attendance-api/internal/models"
	"github.com/noah-isme/attendance-api/internal/repository"
	appErrors "github.com/noah-isme/attendance-api/pkg/errors"
)

// fakeScheduleRepo keeps schedules in memory and answers the conflict queries the way the SQL does.
type fakeScheduleRepo struct {
	schedules map[string]*models.Schedule
	subjects  map[string]*models.Subject
	nextID    int
	txErr     error
	creates   int
	updates   int
}

func newFakeScheduleRepo(subjects map[string]*models.Subject) *fakeScheduleRepo {
	return &fakeScheduleRepo{schedules: map[string]*models.Schedule{}, subjects: subjects}
}

func (f *fakeScheduleRepo) InTx(ctx context.Context, fn func(repository.ScheduleStore) error) error {
	if f.txErr != nil {
		return f.txErr
	}
	return fn(f)
}

func (f *fakeScheduleRepo) effectiveTeacher(s *models.Schedule) *string {
	if s.TeacherID != nil {
		return s.TeacherID
	}
	if sub, ok := f.subjects[s.SubjectID]; ok {
		return sub.TeacherID
	}
	return nil
}

func (f *fakeScheduleRepo) detail(s *models.Schedule) models.ScheduleDetail {
	d := models.ScheduleDetail{
		Schedule:           *s,
		GroupName:          "Group " + s.GroupID,
		TimeSlotName:       "Slot " + s.TimeSlotID,
		StartTime:          "08:00:00",
		EndTime:            "09:30:00",
		EffectiveTeacherID: f.effectiveTeacher(s),
	}
	if sub, ok := f.subjects[s.SubjectID]; ok {
		d.SubjectName = sub.Name
	}
	if d.EffectiveTeacherID != nil {
		name := "Teacher " + *d.EffectiveTeacherID
		d.TeacherName = &name
	}
	return d
}

func (f *fakeScheduleRepo) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDetail, int, error) {
	var out []models.ScheduleDetail
	for _, s := range f.schedules {
		if filter.GroupID != "" && s.GroupID != filter.GroupID {
			continue
		}
		out = append(out, f.detail(s))
	}
	return out, len(out), nil
}

func (f *fakeScheduleRepo) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	if s, ok := f.schedules[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeScheduleRepo) FindDetailByID(ctx context.Context, id string) (*models.ScheduleDetail, error) {
	if s, ok := f.schedules[id]; ok {
		d := f.detail(s)
		return &d, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeScheduleRepo) FindActiveByGroupSlot(ctx context.Context, groupID string, day models.Weekday, timeSlotID, excludeID string) ([]models.ScheduleDetail, error) {
	var out []models.ScheduleDetail
	for _, s := range f.schedules {
		if s.Active() && s.GroupID == groupID && s.Day == day && s.TimeSlotID == timeSlotID && s.ID != excludeID {
			out = append(out, f.detail(s))
		}
	}
	return out, nil
}

func (f *fakeScheduleRepo) FindActiveByTeacherSlot(ctx context.Context, teacherID string, day models.Weekday, timeSlotID, excludeID string) ([]models.ScheduleDetail, error) {
	var out []models.ScheduleDetail
	for _, s := range f.schedules {
		t := f.effectiveTeacher(s)
		if s.Active() && t != nil && *t == teacherID && s.Day == day && s.TimeSlotID == timeSlotID && s.ID != excludeID {
			out = append(out, f.detail(s))
		}
	}
	return out, nil
}

func (f *fakeScheduleRepo) ListActiveByGroup(ctx context.Context, groupID string) ([]models.ScheduleDetail, error) {
	var out []models.ScheduleDetail
	for _, s := range f.schedules {
		if s.Active() && s.GroupID == groupID {
			out = append(out, f.detail(s))
		}
	}
	return out, nil
}

func (f *fakeScheduleRepo) ListActiveByTeacher(ctx context.Context, teacherID string) ([]models.ScheduleDetail, error) {
	var out []models.ScheduleDetail
	for _, s := range f.schedules {
		t := f.effectiveTeacher(s)
		if s.Active() && t != nil && *t == teacherID {
			out = append(out, f.detail(s))
		}
	}
	return out, nil
}

func (f *fakeScheduleRepo) Create(ctx context.Context, s *models.Schedule) error {
	f.nextID++
	f.creates++
	s.ID = fmt.Sprintf("sch-%d", f.nextID)
	if s.State == "" {
		s.State = models.ScheduleActive
	}
	cp := *s
	f.schedules[s.ID] = &cp
	return nil
}

func (f *fakeScheduleRepo) Update(ctx context.Context, s *models.Schedule) error {
	existing, ok := f.schedules[s.ID]
	if !ok {
		return sql.ErrNoRows
	}
	f.updates++
	cp := *s
	cp.State = existing.State
	f.schedules[s.ID] = &cp
	return nil
}

func (f *fakeScheduleRepo) Retire(ctx context.Context, id string) error {
	s, ok := f.schedules[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.State = models.ScheduleRetired
	return nil
}

type mapLookup[T any] map[string]*T

func (m mapLookup[T]) FindByID(ctx context.Context, id string) (*T, error) {
	if v, ok := m[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func strPtr(s string) *string { return &s }

type scheduleFixture struct {
	svc  *ScheduleService
	repo *fakeScheduleRepo
}

func newScheduleFixture() scheduleFixture {
	subjects := map[string]*models.Subject{
		"math":    {ID: "math", Name: "Mathematics", TeacherID: strPtr("t-1")},
		"physics": {ID: "physics", Name: "Physics", TeacherID: strPtr("t-1")},
		"history": {ID: "history", Name: "History", TeacherID: strPtr("t-2")},
		"art":     {ID: "art", Name: "Art"},
	}
	repo := newFakeScheduleRepo(subjects)
	lookups := ScheduleLookups{
		TimeSlots: mapLookup[models.TimeSlot]{
			"slot-1": {ID: "slot-1", Name: "First", StartTime: "08:00:00", EndTime: "09:30:00", IsActive: true},
			"slot-2": {ID: "slot-2", Name: "Second", StartTime: "09:40:00", EndTime: "11:10:00", IsActive: true},
			"slot-x": {ID: "slot-x", Name: "Legacy", StartTime: "18:00:00", EndTime: "19:30:00", IsActive: false},
		},
		Groups: mapLookup[models.Group]{
			"g-a": {ID: "g-a", Name: "A-Group"},
			"g-b": {ID: "g-b", Name: "B-Group"},
		},
		Subjects: mapLookup[models.Subject](subjects),
		Teachers: mapLookup[models.Teacher]{
			"t-1": {ID: "t-1", Name: "Aibek"},
			"t-2": {ID: "t-2", Name: "Nurlan"},
			"t-3": {ID: "t-3", Name: "Saltanat"},
		},
	}
	return scheduleFixture{svc: NewScheduleService(repo, lookups, nil, nil, nil, nil), repo: repo}
}

func proposal(group, day, slot, subject string) dto.ScheduleProposal {
	return dto.ScheduleProposal{GroupID: group, Day: day, TimeSlotID: slot, SubjectID: subject, Room: "101"}
}

func TestProposeAssignmentCreatesActiveSchedule(t *testing.T) {
	fx := newScheduleFixture()

	sched, err := fx.svc.ProposeAssignment(context.Background(), proposal("g-a", "monday", "slot-1", "math"), "")
	require.NoError(t, err)
	assert.NotEmpty(t, sched.ID)
	assert.Equal(t, models.Monday, sched.Day)
	assert.Equal(t, models.ScheduleActive, sched.State)
	assert.Nil(t, sched.TeacherID)
}

func TestProposeAssignmentGroupConflict(t *testing.T) {
	fx := newScheduleFixture()
	ctx := context.Background()

	first, err := fx.svc.ProposeAssignment(ctx, proposal("g-a", "MONDAY", "slot-1", "math"), "")
	require.NoError(t, err)

	_, err = fx.svc.ProposeAssignment(ctx, proposal("g-a", "MONDAY", "slot-1", "history"), "")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrGroupConflict.Code, appErr.Code)
	conflict, ok := appErr.Details.(models.ScheduleConflict)
	require.True(t, ok)
	assert.Equal(t, first.ID, conflict.ScheduleID)
	assert.Equal(t, "Mathematics", conflict.SubjectName)
	assert.Equal(t, 1, fx.repo.creates)
}

func TestProposeAssignmentTeacherConflictAcrossSubjects(t *testing.T) {
	fx := newScheduleFixture()
	ctx := context.Background()

	_, err := fx.svc.ProposeAssignment(ctx, proposal("g-a", "TUESDAY", "slot-1", "math"), "")
	require.NoError(t, err)

	// physics is also taught by t-1 by default
	_, err = fx.svc.ProposeAssignment(ctx, proposal("g-b", "TUESDAY", "slot-1", "physics"), "")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrTeacherConflict.Code))

	// an override teacher frees the slot for the other group
	p := proposal("g-b", "TUESDAY", "slot-1", "physics")
	p.TeacherID = strPtr("t-3")
	sched, err := fx.svc.ProposeAssignment(ctx, p, "")
	require.NoError(t, err)
	require.NotNil(t, sched.TeacherID)
	assert.Equal(t, "t-3", *sched.TeacherID)
}

func TestProposeAssignmentOverrideTeacherCollidesWithDefault(t *testing.T) {
	fx := newScheduleFixture()
	ctx := context.Background()

	_, err := fx.svc.ProposeAssignment(ctx, proposal("g-a", "WEDNESDAY", "slot-2", "history"), "")
	require.NoError(t, err)

	p := proposal("g-b", "WEDNESDAY", "slot-2", "art")
	p.TeacherID = strPtr("t-2")
	_, err = fx.svc.ProposeAssignment(ctx, p, "")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrTeacherConflict.Code))
}

func TestProposeAssignmentWithoutTeacherSkipsTeacherCheck(t *testing.T) {
	fx := newScheduleFixture()
	ctx := context.Background()

	_, err := fx.svc.ProposeAssignment(ctx, proposal("g-a", "THURSDAY", "slot-1", "art"), "")
	require.NoError(t, err)
	_, err = fx.svc.ProposeAssignment(ctx, proposal("g-b", "THURSDAY", "slot-1", "art"), "")
	require.NoError(t, err)
}

func TestProposeAssignmentNoOpEditSucceeds(t *testing.T) {
	fx := newScheduleFixture()
	ctx := context.Background()

	p := proposal("g-a", "FRIDAY", "slot-1", "math")
	created, err := fx.svc.ProposeAssignment(ctx, p, "")
	require.NoError(t, err)

	updated, err := fx.svc.ProposeAssignment(ctx, p, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, 1, fx.repo.updates)
	assert.Len(t, fx.repo.schedules, 1)
}

func TestProposeAssignmentEditIntoOccupiedSlot(t *testing.T) {
	fx := newScheduleFixture()
	ctx := context.Background()

	_, err := fx.svc.ProposeAssignment(ctx, proposal("g-a", "FRIDAY", "slot-1", "math"), "")
	require.NoError(t, err)
	second, err := fx.svc.ProposeAssignment(ctx, proposal("g-a", "FRIDAY", "slot-2", "history"), "")
	require.NoError(t, err)

	_, err = fx.svc.ProposeAssignment(ctx, proposal("g-a", "FRIDAY", "slot-1", "history"), second.ID)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrGroupConflict.Code))
}

func TestProposeAssignmentEditUnknownSchedule(t *testing.T) {
	fx := newScheduleFixture()

	_, err := fx.svc.ProposeAssignment(context.Background(), proposal("g-a", "FRIDAY", "slot-1", "math"), "missing")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}

func TestRetireFreesSlot(t *testing.T) {
	fx := newScheduleFixture()
	ctx := context.Background()

	first, err := fx.svc.ProposeAssignment(ctx, proposal("g-a", "MONDAY", "slot-2", "math"), "")
	require.NoError(t, err)
	require.NoError(t, fx.svc.Retire(ctx, first.ID))
	require.NoError(t, fx.svc.Retire(ctx, first.ID))

	_, err = fx.svc.ProposeAssignment(ctx, proposal("g-a", "MONDAY", "slot-2", "physics"), "")
	require.NoError(t, err)

	timetable, hit, err := fx.svc.ListByGroup(ctx, "g-a")
	assert.False(t, hit)
	require.NoError(t, err)
	require.Len(t, timetable, 1)
	assert.Equal(t, "physics", timetable[0].SubjectID)
}

func TestProposeAssignmentInvalidInputs(t *testing.T) {
	fx := newScheduleFixture()
	ctx := context.Background()

	_, err := fx.svc.ProposeAssignment(ctx, proposal("g-a", "FUNDAY", "slot-1", "math"), "")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidDay.Code))

	_, err = fx.svc.ProposeAssignment(ctx, proposal("g-a", "MONDAY", "slot-x", "math"), "")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidTimeSlot.Code))

	_, err = fx.svc.ProposeAssignment(ctx, proposal("g-a", "MONDAY", "slot-404", "math"), "")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))

	_, err = fx.svc.ProposeAssignment(ctx, proposal("g-z", "MONDAY", "slot-1", "math"), "")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))

	p := proposal("g-a", "MONDAY", "slot-1", "math")
	p.TeacherID = strPtr("t-404")
	_, err = fx.svc.ProposeAssignment(ctx, p, "")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))

	_, err = fx.svc.ProposeAssignment(ctx, dto.ScheduleProposal{GroupID: "g-a"}, "")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	assert.Empty(t, fx.repo.schedules)
}

func TestProposeAssignmentConcurrentWrite(t *testing.T) {
	fx := newScheduleFixture()
	fx.repo.txErr = fmt.Errorf("commit: %w", repository.ErrConcurrentWrite)

	_, err := fx.svc.ProposeAssignment(context.Background(), proposal("g-a", "MONDAY", "slot-1", "math"), "")
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "retry")
}

func TestScheduleListRejectsUnknownDay(t *testing.T) {
	fx := newScheduleFixture()

	_, _, err := fx.svc.List(context.Background(), models.ScheduleFilter{Day: "someday"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidDay.Code))
}

func TestGroupCalendarRendersWeeklyEvents(t *testing.T) {
	fx := newScheduleFixture()
	ctx := context.Background()

	sched, err := fx.svc.ProposeAssignment(ctx, proposal("g-a", "WEDNESDAY", "slot-1", "math"), "")
	require.NoError(t, err)

	// 2024-09-02 is a Monday
	anchor := time.Date(2024, 9, 2, 12, 0, 0, 0, time.UTC)
	feed, err := fx.svc.WithCalendar(CalendarOptions{Name: "Timetable"}).GroupCalendar(ctx, "g-a", anchor)
	require.NoError(t, err)

	body := string(feed)
	assert.True(t, strings.HasPrefix(body, "BEGIN:VCALENDAR"))
	assert.Contains(t, body, "UID:"+sched.ID+"@attendance-api")
	assert.Contains(t, body, "RRULE:FREQ=WEEKLY;BYDAY=WE")
	assert.Contains(t, body, "DTSTART:20240904T080000Z")
	assert.Contains(t, body, "X-WR-CALNAME:Timetable: A-Group")

	_, err = fx.svc.GroupCalendar(ctx, "g-z", anchor)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}

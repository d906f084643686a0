package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/noah-isme/attendance-api/internal/models"
	appErrors "github.com/noah-isme/attendance-api/pkg/errors"
)

const calendarProductID = "-//attendance-api//group timetable//EN"

// CalendarOptions controls how timetable feeds are rendered.
type CalendarOptions struct {
	Name     string
	Location *time.Location
}

// WithCalendar overrides the calendar name and the zone slot times are read in.
func (s *ScheduleService) WithCalendar(opts CalendarOptions) *ScheduleService {
	if opts.Name != "" {
		s.calendar.Name = opts.Name
	}
	if opts.Location != nil {
		s.calendar.Location = opts.Location
	}
	return s
}

// GroupCalendar renders the group's active timetable as an iCalendar feed with one weekly
// recurring event per schedule, starting from the first occurrence on or after anchor.
func (s *ScheduleService) GroupCalendar(ctx context.Context, groupID string, anchor time.Time) ([]byte, error) {
	group, err := s.lookups.Groups.FindByID(ctx, groupID)
	if err != nil {
		return nil, lookupError(err, "group")
	}
	schedules, _, err := s.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	loc := s.calendar.Location
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(calendarProductID)
	cal.SetXWRCalName(fmt.Sprintf("%s: %s", s.calendar.Name, group.Name))
	cal.SetXWRTimezone(loc.String())

	stamp := time.Now().UTC()
	for _, sched := range schedules {
		start, end, err := occurrence(anchor.In(loc), sched.Day, sched.StartTime, sched.EndTime)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable")
		}

		event := cal.AddEvent(sched.ID + "@attendance-api")
		event.SetDtStampTime(stamp)
		event.SetModifiedAt(sched.UpdatedAt)
		event.SetStartAt(start)
		event.SetEndAt(end)
		event.SetSummary(fmt.Sprintf("%s (%s)", sched.SubjectName, sched.GroupName))
		if sched.Room != "" {
			event.SetLocation(sched.Room)
		}
		if sched.TeacherName != nil {
			event.SetDescription(fmt.Sprintf("%s, %s", *sched.TeacherName, sched.TimeSlotName))
		} else {
			event.SetDescription(sched.TimeSlotName)
		}
		event.AddProperty(ics.ComponentPropertyRrule, "FREQ=WEEKLY;BYDAY="+models.WeekdayOf(start.UTC()).ICalDay())
	}

	return []byte(cal.Serialize()), nil
}

// occurrence finds the first date on or after anchor falling on day and attaches the slot's clock times.
func occurrence(anchor time.Time, day models.Weekday, startClock, endClock string) (time.Time, time.Time, error) {
	offset := (int(day.TimeWeekday()) - int(anchor.Weekday()) + 7) % 7
	date := anchor.AddDate(0, 0, offset)

	start, err := atClock(date, startClock)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := atClock(date, endClock)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func atClock(date time.Time, clock string) (time.Time, error) {
	layout := "15:04:05"
	if strings.Count(clock, ":") == 1 {
		layout = "15:04"
	}
	t, err := time.Parse(layout, clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse slot time %q: %w", clock, err)
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, date.Location()), nil
}

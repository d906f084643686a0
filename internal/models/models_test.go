package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWeekday(t *testing.T) {
	day, ok := ParseWeekday(" monday ")
	assert.True(t, ok)
	assert.Equal(t, Monday, day)

	_, ok = ParseWeekday("Funday")
	assert.False(t, ok)
}

func TestWeekdayOf(t *testing.T) {
	date, err := ParseDate("2024-09-02")
	require.NoError(t, err)
	assert.Equal(t, Monday, WeekdayOf(date))
	assert.Equal(t, time.Monday, Monday.TimeWeekday())
	assert.Equal(t, "SU", Sunday.ICalDay())
}

func TestRoleCapabilities(t *testing.T) {
	cases := []struct {
		role UserRole
		cap  Capability
		want bool
	}{
		{RoleAdmin, CapScheduleWrite, true},
		{RoleManager, CapAbsenceSweep, true},
		{RoleTeacher, CapScheduleWrite, false},
		{RoleTeacher, CapLeaveDecide, true},
		{RoleStudent, CapLeaveCreate, true},
		{RoleStudent, CapLeaveDecide, false},
		{RoleParent, CapAttendanceMark, false},
		{RoleParent, CapNotificationRead, true},
		{UserRole("GUEST"), CapScheduleRead, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.role.Can(tc.cap), "%s %s", tc.role, tc.cap)
	}
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole("parent")
	assert.True(t, ok)
	assert.Equal(t, RoleParent, role)

	_, ok = ParseRole("SUPERADMIN")
	assert.False(t, ok)
}

func TestLeaveRequestDays(t *testing.T) {
	start, _ := ParseDate("2024-02-28")
	end, _ := ParseDate("2024-03-01")
	leave := LeaveRequest{StartDate: start, EndDate: end}

	days := leave.Days()
	require.Len(t, days, 3)
	assert.Equal(t, "2024-02-29", days[1].Format(DateLayout))

	leave.StartDate, leave.EndDate = end, start
	assert.Empty(t, leave.Days())
}

func TestAttendanceStatus(t *testing.T) {
	assert.True(t, AttendanceExcused.Valid())
	assert.False(t, AttendanceExcused.SelfReportable())
	assert.True(t, AttendanceLate.SelfReportable())
	assert.False(t, AttendanceStatus("MAYBE").Valid())
}

func TestNormalisePage(t *testing.T) {
	page, size := NormalisePage(0, 500)
	assert.Equal(t, 1, page)
	assert.Equal(t, 100, size)
}

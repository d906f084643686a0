package models

// Capability names an operation guarded at the HTTP boundary.
type Capability string

const (
	CapScheduleRead       Capability = "schedule:read"
	CapScheduleWrite      Capability = "schedule:write"
	CapAttendanceRead     Capability = "attendance:read"
	CapAttendanceMark     Capability = "attendance:mark"
	CapAttendanceSelfMark Capability = "attendance:self-mark"
	CapLeaveRead          Capability = "leave:read"
	CapLeaveCreate        Capability = "leave:create"
	CapLeaveDecide        Capability = "leave:decide"
	CapNotificationRead   Capability = "notification:read"
	CapNotificationSend   Capability = "notification:send"
	CapAbsenceSweep       Capability = "absence:sweep"
)

var roleCapabilities = map[UserRole]map[Capability]struct{}{
	RoleAdmin: capSet(
		CapScheduleRead, CapScheduleWrite,
		CapAttendanceRead, CapAttendanceMark,
		CapLeaveRead, CapLeaveDecide,
		CapNotificationRead, CapNotificationSend, CapAbsenceSweep,
	),
	RoleManager: capSet(
		CapScheduleRead, CapScheduleWrite,
		CapAttendanceRead, CapAttendanceMark,
		CapLeaveRead, CapLeaveDecide,
		CapNotificationRead, CapNotificationSend, CapAbsenceSweep,
	),
	RoleTeacher: capSet(
		CapScheduleRead,
		CapAttendanceRead, CapAttendanceMark,
		CapLeaveRead, CapLeaveDecide,
		CapNotificationRead,
	),
	RoleStudent: capSet(
		CapScheduleRead,
		CapAttendanceRead, CapAttendanceSelfMark,
		CapLeaveRead, CapLeaveCreate,
		CapNotificationRead,
	),
	RoleParent: capSet(
		CapScheduleRead,
		CapAttendanceRead,
		CapLeaveRead,
		CapNotificationRead,
	),
}

func capSet(caps ...Capability) map[Capability]struct{} {
	set := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Can reports whether the role holds capability c.
func (r UserRole) Can(c Capability) bool {
	caps, ok := roleCapabilities[r]
	if !ok {
		return false
	}
	_, ok = caps[c]
	return ok
}

package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-api/internal/dto"
	"github.com/noah-isme/attendance-api/internal/models"
	appErrors "github.com/noah-isme/attendance-api/pkg/errors"
)

type memLeaveRepo struct {
	items  map[string]*models.LeaveRequest
	nextID int
}

func (m *memLeaveRepo) Create(ctx context.Context, leave *models.LeaveRequest) error {
	if m.items == nil {
		m.items = map[string]*models.LeaveRequest{}
	}
	m.nextID++
	leave.ID = fmt.Sprintf("leave-%d", m.nextID)
	leave.Status = models.LeavePending
	cp := *leave
	m.items[leave.ID] = &cp
	return nil
}

func (m *memLeaveRepo) FindByID(ctx context.Context, id string) (*models.LeaveRequest, error) {
	if l, ok := m.items[id]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memLeaveRepo) Resolve(ctx context.Context, id string, status models.LeaveStatus, approverID string, decidedAt time.Time) (*models.LeaveRequest, error) {
	l, ok := m.items[id]
	if !ok || l.Status != models.LeavePending {
		return nil, sql.ErrNoRows
	}
	l.Status = status
	l.ApprovedBy = &approverID
	l.DecidedAt = &decidedAt
	cp := *l
	return &cp, nil
}

func (m *memLeaveRepo) List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequest, int, error) {
	var out []models.LeaveRequest
	for _, l := range m.items {
		if filter.StudentIDs != nil && !canSeeStudent(filter.StudentIDs, l.StudentID) {
			continue
		}
		out = append(out, *l)
	}
	return out, len(out), nil
}

type countingReconciler struct {
	calls int
	rows  int
	err   error
}

func (c *countingReconciler) Reconcile(ctx context.Context, leave models.LeaveRequest, approverID string) (int, error) {
	c.calls++
	return c.rows, c.err
}

type recordingNotifier struct {
	requested []models.LeaveRequest
	resolved  []models.LeaveRequest
	absences  []AbsenceEvent
}

func (r *recordingNotifier) LeaveRequested(ctx context.Context, leave models.LeaveRequest, student models.Student) {
	r.requested = append(r.requested, leave)
}

func (r *recordingNotifier) LeaveResolved(ctx context.Context, leave models.LeaveRequest, student models.Student, approverID string) {
	r.resolved = append(r.resolved, leave)
}

func (r *recordingNotifier) AttendanceMarked(ctx context.Context, event AbsenceEvent) {
	r.absences = append(r.absences, event)
}

func scopedStudents() *stubStudents {
	return &stubStudents{
		byID: map[string]*models.Student{
			"s-1": {ID: "s-1", Name: "Aida", UserID: strPtr("u-stu-1"), GroupID: strPtr("g-a")},
			"s-2": {ID: "s-2", Name: "Bolot", UserID: strPtr("u-stu-2"), GroupID: strPtr("g-b")},
		},
		byUser:   map[string]string{"u-stu-1": "s-1", "u-stu-2": "s-2"},
		children: map[string][]string{"u-par-1": {"s-1"}},
	}
}

var (
	studentActor = models.Actor{UserID: "u-stu-1", Role: models.RoleStudent}
	parentActor  = models.Actor{UserID: "u-par-1", Role: models.RoleParent}
	managerActor = models.Actor{UserID: "u-mgr-1", Role: models.RoleManager}
	teacherActor = models.Actor{UserID: "u-tch-1", Role: models.RoleTeacher}
)

func newLeaveFixture() (*LeaveService, *memLeaveRepo, *countingReconciler, *recordingNotifier) {
	repo := &memLeaveRepo{}
	reconciler := &countingReconciler{rows: 6}
	notifier := &recordingNotifier{}
	svc := NewLeaveService(repo, scopedStudents(), reconciler, notifier, nil, nil)
	return svc, repo, reconciler, notifier
}

func leavePayload(start, end string) dto.CreateLeaveRequest {
	return dto.CreateLeaveRequest{LeaveType: "sick", StartDate: start, EndDate: end, Reason: "flu"}
}

func TestLeaveCreateByStudent(t *testing.T) {
	svc, _, _, notifier := newLeaveFixture()

	leave, err := svc.Create(context.Background(), studentActor, leavePayload("2024-09-02", "2024-09-04"))
	require.NoError(t, err)
	assert.Equal(t, "s-1", leave.StudentID)
	assert.Equal(t, models.LeavePending, leave.Status)
	assert.Equal(t, models.LeaveSick, leave.LeaveType)
	assert.Len(t, notifier.requested, 1)
}

func TestLeaveCreateValidation(t *testing.T) {
	svc, repo, _, notifier := newLeaveFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, studentActor, leavePayload("2024-09-05", "2024-09-04"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	bad := leavePayload("2024-09-02", "2024-09-04")
	bad.LeaveType = "VACATION"
	_, err = svc.Create(ctx, studentActor, bad)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = svc.Create(ctx, managerActor, leavePayload("2024-09-02", "2024-09-04"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))

	assert.Empty(t, repo.items)
	assert.Empty(t, notifier.requested)
}

func TestLeaveApproveReconcilesOnce(t *testing.T) {
	svc, _, reconciler, notifier := newLeaveFixture()
	ctx := context.Background()

	leave, err := svc.Create(ctx, studentActor, leavePayload("2024-09-02", "2024-09-04"))
	require.NoError(t, err)

	decision, err := svc.Approve(ctx, managerActor, leave.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaveApproved, decision.LeaveRequest.Status)
	assert.Equal(t, 6, decision.ReconciledRows)
	require.NotNil(t, decision.LeaveRequest.ApprovedBy)
	assert.Equal(t, managerActor.UserID, *decision.LeaveRequest.ApprovedBy)

	_, err = svc.Approve(ctx, managerActor, leave.ID)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "approved")

	_, err = svc.Reject(ctx, managerActor, leave.ID)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))

	assert.Equal(t, 1, reconciler.calls)
	assert.Len(t, notifier.resolved, 1)
}

func TestLeaveRejectDoesNotReconcile(t *testing.T) {
	svc, _, reconciler, notifier := newLeaveFixture()
	ctx := context.Background()

	leave, err := svc.Create(ctx, studentActor, leavePayload("2024-09-02", "2024-09-02"))
	require.NoError(t, err)

	decision, err := svc.Reject(ctx, teacherActor, leave.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaveRejected, decision.LeaveRequest.Status)
	assert.Zero(t, decision.ReconciledRows)
	assert.Zero(t, reconciler.calls)
	assert.Len(t, notifier.resolved, 1)
}

func TestLeaveApproveSurvivesReconcileFailure(t *testing.T) {
	svc, _, reconciler, notifier := newLeaveFixture()
	reconciler.err = fmt.Errorf("boom")
	ctx := context.Background()

	leave, err := svc.Create(ctx, studentActor, leavePayload("2024-09-02", "2024-09-02"))
	require.NoError(t, err)

	decision, err := svc.Approve(ctx, managerActor, leave.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaveApproved, decision.LeaveRequest.Status)
	assert.Len(t, notifier.resolved, 1)
}

func TestLeaveApproveUnknown(t *testing.T) {
	svc, _, _, _ := newLeaveFixture()

	_, err := svc.Approve(context.Background(), managerActor, "missing")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}

func TestLeaveListScopedByRole(t *testing.T) {
	svc, repo, _, _ := newLeaveFixture()
	ctx := context.Background()
	repo.items = map[string]*models.LeaveRequest{
		"l-1": {ID: "l-1", StudentID: "s-1", Status: models.LeavePending},
		"l-2": {ID: "l-2", StudentID: "s-2", Status: models.LeavePending},
	}

	items, page, err := svc.List(ctx, studentActor, models.LeaveFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "s-1", items[0].StudentID)
	assert.Equal(t, 1, page.Page)

	items, _, err = svc.List(ctx, parentActor, models.LeaveFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)

	items, _, err = svc.List(ctx, models.Actor{UserID: "u-par-9", Role: models.RoleParent}, models.LeaveFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)

	items, _, err = svc.List(ctx, managerActor, models.LeaveFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, _, err = svc.List(ctx, studentActor, models.LeaveFilter{StudentID: "s-2"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))

	_, err = svc.Get(ctx, parentActor, "l-2")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
	got, err := svc.Get(ctx, parentActor, "l-1")
	require.NoError(t, err)
	assert.Equal(t, "l-1", got.ID)
}

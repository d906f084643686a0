package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-api/internal/middleware"
	"github.com/noah-isme/attendance-api/internal/dto"
	"github.com/noah-isme/attendance-api/internal/models"
	appErrors "github.com/noah-isme/attendance-api/pkg/errors"
)

type leaveServiceMock struct {
	lastCreate dto.CreateLeaveRequest
	lastFilter models.LeaveFilter
	decided    map[string]models.LeaveStatus
}

func (m *leaveServiceMock) Create(ctx context.Context, actor models.Actor, req dto.CreateLeaveRequest) (*models.LeaveRequest, error) {
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students may request leave")
	}
	m.lastCreate = req
	return &models.LeaveRequest{ID: "leave-1", Status: models.LeavePending}, nil
}

func (m *leaveServiceMock) Approve(ctx context.Context, actor models.Actor, id string) (*models.LeaveDecision, error) {
	return m.decide(id, models.LeaveApproved)
}

func (m *leaveServiceMock) Reject(ctx context.Context, actor models.Actor, id string) (*models.LeaveDecision, error) {
	return m.decide(id, models.LeaveRejected)
}

func (m *leaveServiceMock) decide(id string, status models.LeaveStatus) (*models.LeaveDecision, error) {
	if m.decided == nil {
		m.decided = map[string]models.LeaveStatus{}
	}
	if prev, ok := m.decided[id]; ok {
		return nil, appErrors.Clone(appErrors.ErrConflict, "leave request already "+string(prev))
	}
	m.decided[id] = status
	rows := 0
	if status == models.LeaveApproved {
		rows = 6
	}
	return &models.LeaveDecision{LeaveRequest: models.LeaveRequest{ID: id, Status: status}, ReconciledRows: rows}, nil
}

func (m *leaveServiceMock) List(ctx context.Context, actor models.Actor, filter models.LeaveFilter) ([]models.LeaveRequest, *models.Pagination, error) {
	m.lastFilter = filter
	return nil, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (m *leaveServiceMock) Get(ctx context.Context, actor models.Actor, id string) (*models.LeaveRequest, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
}

func TestLeaveHandlerCreate(t *testing.T) {
	mockSvc := &leaveServiceMock{}
	handler := NewLeaveHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/leave-requests", `{"leave_type":"SICK","start_date":"2024-09-02","end_date":"2024-09-04","reason":"flu"}`, models.RoleStudent)
	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "2024-09-04", mockSvc.lastCreate.EndDate)
	id, ok := c.Get(middleware.AuditResourceIDKey)
	require.True(t, ok)
	assert.Equal(t, "leave-1", id)
}

func TestLeaveHandlerCreateForbiddenForParents(t *testing.T) {
	handler := NewLeaveHandler(&leaveServiceMock{})

	c, w := newTestContext(http.MethodPost, "/leave-requests", `{"leave_type":"SICK","start_date":"2024-09-02","end_date":"2024-09-04","reason":"flu"}`, models.RoleParent)
	handler.Create(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLeaveHandlerApproveThenRejectConflicts(t *testing.T) {
	handler := NewLeaveHandler(&leaveServiceMock{})

	c, w := newTestContext(http.MethodPost, "/leave-requests/leave-1/approve", "", models.RoleManager)
	c.Params = gin.Params{{Key: "id", Value: "leave-1"}}
	handler.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"reconciled_rows":6`)

	c, w = newTestContext(http.MethodPost, "/leave-requests/leave-1/reject", "", models.RoleManager)
	c.Params = gin.Params{{Key: "id", Value: "leave-1"}}
	handler.Reject(c)
	require.Equal(t, http.StatusConflict, w.Code)
	env := decode(t, w)
	assert.Equal(t, "CONFLICT", env.Error.Code)
}

func TestLeaveHandlerListAndGet(t *testing.T) {
	mockSvc := &leaveServiceMock{}
	handler := NewLeaveHandler(mockSvc)

	c, w := newTestContext(http.MethodGet, "/leave-requests?status=pending&studentId=s-1", "", models.RoleParent)
	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.LeavePending, mockSvc.lastFilter.Status)
	assert.Equal(t, "s-1", mockSvc.lastFilter.StudentID)

	c, w = newTestContext(http.MethodGet, "/leave-requests/other", "", models.RoleParent)
	c.Params = gin.Params{{Key: "id", Value: "other"}}
	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

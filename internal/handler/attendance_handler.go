package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendance-api/internal/dto"
	"github.com/noah-isme/attendance-api/internal/models"
	"github.com/noah-isme/attendance-api/pkg/response"
)

type attendanceService interface {
	Mark(ctx context.Context, actor models.Actor, req dto.MarkAttendanceRequest) (*models.Attendance, error)
	MarkGroup(ctx context.Context, actor models.Actor, scheduleID string, req dto.MarkGroupAttendanceRequest) (*models.GroupAttendanceResult, error)
	SelfMark(ctx context.Context, actor models.Actor, scheduleID string, req dto.SelfMarkRequest) (*models.Attendance, error)
	List(ctx context.Context, actor models.Actor, filter models.AttendanceFilter) ([]models.Attendance, *models.Pagination, error)
	Stats(ctx context.Context, actor models.Actor, filter models.AttendanceFilter) (*models.AttendanceStats, error)
}

// AttendanceHandler exposes attendance marking and reporting.
type AttendanceHandler struct {
	service attendanceService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(svc attendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// Mark godoc
// @Summary Record attendance for a student
// @Description Re-marking the same student, subject and date overwrites the row.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.MarkAttendanceRequest true "Attendance payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req dto.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "attendance"))
		return
	}
	record, err := h.service.Mark(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// MarkGroup godoc
// @Summary Record a schedule's attendance for students of its group
// @Description Teachers may only submit for schedules they teach. Date defaults to today.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body dto.MarkGroupAttendanceRequest true "Group attendance payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /schedules/{id}/attendance [post]
func (h *AttendanceHandler) MarkGroup(c *gin.Context) {
	var req dto.MarkGroupAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "attendance"))
		return
	}
	result, err := h.service.MarkGroup(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SelfMark godoc
// @Summary Student marks their own attendance for today
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body dto.SelfMarkRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /schedules/{id}/attendance/self [post]
func (h *AttendanceHandler) SelfMark(c *gin.Context) {
	var req dto.SelfMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "attendance"))
		return
	}
	record, err := h.service.SelfMark(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// List godoc
// @Summary List attendance rows visible to the caller
// @Tags Attendance
// @Produce json
// @Param studentId query string false "Student"
// @Param subjectId query string false "Subject"
// @Param status query string false "PRESENT, ABSENT, LATE or EXCUSED"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	filter, ok := h.filter(c)
	if !ok {
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Stats godoc
// @Summary Attendance counts and percentage
// @Tags Attendance
// @Produce json
// @Param studentId query string false "Student"
// @Param subjectId query string false "Subject"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance/stats [get]
func (h *AttendanceHandler) Stats(c *gin.Context) {
	filter, ok := h.filter(c)
	if !ok {
		return
	}
	stats, err := h.service.Stats(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

func (h *AttendanceHandler) filter(c *gin.Context) (models.AttendanceFilter, bool) {
	filter := models.AttendanceFilter{
		StudentID: c.Query("studentId"),
		SubjectID: c.Query("subjectId"),
		Status:    models.AttendanceStatus(strings.ToUpper(c.Query("status"))),
	}
	var err error
	if filter.From, err = dateQuery(c, "from"); err != nil {
		response.Error(c, err)
		return filter, false
	}
	if filter.To, err = dateQuery(c, "to"); err != nil {
		response.Error(c, err)
		return filter, false
	}
	filter.Page, filter.PageSize = pageParams(c)
	return filter, true
}

package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendance-api/internal/middleware"
	"github.com/noah-isme/attendance-api/internal/dto"
	"github.com/noah-isme/attendance-api/internal/models"
	"github.com/noah-isme/attendance-api/pkg/response"
)

type scheduleService interface {
	ProposeAssignment(ctx context.Context, proposal dto.ScheduleProposal, excludingID string) (*models.Schedule, error)
	Retire(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.ScheduleDetail, error)
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDetail, *models.Pagination, error)
	ListByGroup(ctx context.Context, groupID string) ([]models.ScheduleDetail, bool, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.ScheduleDetail, error)
	GroupCalendar(ctx context.Context, groupID string, anchor time.Time) ([]byte, error)
}

// ScheduleHandler manages schedule endpoints.
type ScheduleHandler struct {
	service scheduleService
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(svc scheduleService) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

// List godoc
// @Summary List schedules
// @Tags Schedules
// @Produce json
// @Param groupId query string false "Filter by group"
// @Param teacherId query string false "Filter by effective teacher"
// @Param subjectId query string false "Filter by subject"
// @Param day query string false "Filter by day (MONDAY..SUNDAY)"
// @Param state query string false "ACTIVE or RETIRED"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /schedules [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	filter := models.ScheduleFilter{
		GroupID:   c.Query("groupId"),
		TeacherID: c.Query("teacherId"),
		SubjectID: c.Query("subjectId"),
		Day:       models.Weekday(c.Query("day")),
		State:     models.ScheduleState(c.Query("state")),
	}
	filter.Page, filter.PageSize = pageParams(c)

	schedules, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, pagination)
}

// Get godoc
// @Summary Get schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedules/{id} [get]
func (h *ScheduleHandler) Get(c *gin.Context) {
	schedule, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// Create godoc
// @Summary Propose a new schedule
// @Description Rejected with GROUP_CONFLICT or TEACHER_CONFLICT when the slot is taken.
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body dto.ScheduleProposal true "Schedule payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /schedules [post]
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req dto.ScheduleProposal
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "schedule"))
		return
	}
	schedule, err := h.service.ProposeAssignment(c.Request.Context(), req, "")
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Set(middleware.AuditResourceIDKey, schedule.ID)
	response.Created(c, schedule)
}

// Update godoc
// @Summary Edit a schedule
// @Description The schedule being edited never conflicts with itself.
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body dto.ScheduleProposal true "Schedule payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/{id} [put]
func (h *ScheduleHandler) Update(c *gin.Context) {
	var req dto.ScheduleProposal
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "schedule"))
		return
	}
	schedule, err := h.service.ProposeAssignment(c.Request.Context(), req, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// Retire godoc
// @Summary Retire a schedule, freeing its slot
// @Tags Schedules
// @Param id path string true "Schedule ID"
// @Success 204
// @Router /schedules/{id} [delete]
func (h *ScheduleHandler) Retire(c *gin.Context) {
	if err := h.service.Retire(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListByGroup godoc
// @Summary Active weekly timetable of a group
// @Tags Schedules
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/schedules [get]
func (h *ScheduleHandler) ListByGroup(c *gin.Context) {
	schedules, hit, err := h.service.ListByGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, schedules, nil, middleware.Meta(c))
}

// GroupCalendar godoc
// @Summary Group timetable as an iCalendar feed
// @Tags Schedules
// @Produce text/calendar
// @Param id path string true "Group ID"
// @Param from query string false "First week anchor (YYYY-MM-DD), defaults to today"
// @Success 200 {string} string
// @Router /groups/{id}/schedules.ics [get]
func (h *ScheduleHandler) GroupCalendar(c *gin.Context) {
	anchor := time.Now().UTC()
	from, err := dateQuery(c, "from")
	if err != nil {
		response.Error(c, err)
		return
	}
	if from != nil {
		anchor = *from
	}

	feed, err := h.service.GroupCalendar(c.Request.Context(), c.Param("id"), anchor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Calendar(c, "timetable-"+c.Param("id")+".ics", feed)
}

// ListByTeacher godoc
// @Summary Active schedules a teacher effectively teaches
// @Tags Schedules
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/schedules [get]
func (h *ScheduleHandler) ListByTeacher(c *gin.Context) {
	schedules, err := h.service.ListByTeacher(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, nil)
}

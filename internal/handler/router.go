package handler

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-api/internal/middleware"
	"github.com/noah-isme/attendance-api/internal/models"
	"github.com/noah-isme/attendance-api/internal/service"
	"github.com/noah-isme/attendance-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/attendance-api/pkg/middleware/requestid"
)

// RouterDeps carries everything the HTTP surface is assembled from.
type RouterDeps struct {
	Logger         *zap.Logger
	Metrics        *service.MetricsService
	Tokens         middleware.TokenValidator
	Audit          middleware.AuditWriter
	AllowedOrigins []string
	APIPrefix      string
	Docs           bool

	Schedules     *ScheduleHandler
	Attendance    *AttendanceHandler
	Leave         *LeaveHandler
	Notifications *NotificationHandler
	Admin         *AdminHandler
	Auth          *AuthHandler
	Probes        *MetricsHandler
}

// NewRouter builds the gin engine with the global middleware chain and every API route.
func NewRouter(deps RouterDeps) *gin.Engine {
	logr := deps.Logger
	if logr == nil {
		logr = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(deps.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics, "/health", "/ready", "/metrics"))
	r.Use(middleware.ResponseMeta())

	r.GET("/health", deps.Probes.Health)
	r.GET("/ready", deps.Probes.Ready)
	r.GET("/metrics", deps.Probes.Prometheus)
	if deps.Docs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(deps.Audit, logr, action, resource)
	}
	can := middleware.RequireCapability

	api := r.Group(deps.APIPrefix)
	api.Use(middleware.JWT(deps.Tokens))

	api.GET("/auth/me", deps.Auth.Me)

	api.GET("/schedules", can(models.CapScheduleRead), deps.Schedules.List)
	api.GET("/schedules/:id", can(models.CapScheduleRead), deps.Schedules.Get)
	api.POST("/schedules", can(models.CapScheduleWrite), audit(models.AuditActionScheduleCreate, "schedule"), deps.Schedules.Create)
	api.PUT("/schedules/:id", can(models.CapScheduleWrite), audit(models.AuditActionScheduleUpdate, "schedule"), deps.Schedules.Update)
	api.DELETE("/schedules/:id", can(models.CapScheduleWrite), audit(models.AuditActionScheduleRetire, "schedule"), deps.Schedules.Retire)
	api.POST("/schedules/:id/attendance", can(models.CapAttendanceMark), audit(models.AuditActionAttendanceMark, "schedule"), deps.Attendance.MarkGroup)
	api.POST("/schedules/:id/attendance/self", can(models.CapAttendanceSelfMark), deps.Attendance.SelfMark)
	api.GET("/groups/:id/schedules", can(models.CapScheduleRead), deps.Schedules.ListByGroup)
	api.GET("/groups/:id/schedules.ics", can(models.CapScheduleRead), deps.Schedules.GroupCalendar)
	api.GET("/teachers/:id/schedules", can(models.CapScheduleRead), deps.Schedules.ListByTeacher)

	api.POST("/attendance", can(models.CapAttendanceMark), deps.Attendance.Mark)
	api.GET("/attendance", can(models.CapAttendanceRead), deps.Attendance.List)
	api.GET("/attendance/stats", can(models.CapAttendanceRead), deps.Attendance.Stats)

	api.POST("/leave-requests", can(models.CapLeaveCreate), audit(models.AuditActionLeaveCreate, "leave_request"), deps.Leave.Create)
	api.GET("/leave-requests", can(models.CapLeaveRead), deps.Leave.List)
	api.GET("/leave-requests/:id", can(models.CapLeaveRead), deps.Leave.Get)
	api.POST("/leave-requests/:id/approve", can(models.CapLeaveDecide), audit(models.AuditActionLeaveApprove, "leave_request"), deps.Leave.Approve)
	api.POST("/leave-requests/:id/reject", can(models.CapLeaveDecide), audit(models.AuditActionLeaveReject, "leave_request"), deps.Leave.Reject)

	api.GET("/notifications", can(models.CapNotificationRead), deps.Notifications.List)
	api.POST("/notifications/read-all", can(models.CapNotificationRead), deps.Notifications.MarkAllRead)
	api.POST("/notifications/:id/read", can(models.CapNotificationRead), deps.Notifications.MarkRead)
	api.POST("/notifications/broadcast", can(models.CapNotificationSend), deps.Notifications.Broadcast)

	api.POST("/admin/absence-sweep", can(models.CapAbsenceSweep), audit(models.AuditActionAbsenceSweep, "absence_sweep"), deps.Admin.RunAbsenceSweep)

	return r
}

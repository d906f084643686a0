package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/attendance-api/api/swagger"
	"github.com/noah-isme/attendance-api/internal/handler"
	"github.com/noah-isme/attendance-api/internal/repository"
	"github.com/noah-isme/attendance-api/internal/service"
	"github.com/noah-isme/attendance-api/pkg/cache"
	"github.com/noah-isme/attendance-api/pkg/config"
	"github.com/noah-isme/attendance-api/pkg/database"
	"github.com/noah-isme/attendance-api/pkg/jobs"
	"github.com/noah-isme/attendance-api/pkg/logger"
)

// @title Attendance API
// @version 1.0.0
// @description Class scheduling, attendance, leave and notifications for a university.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database unavailable", "error", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			logr.Sugar().Fatalw("migrations failed", "error", err)
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("redis unavailable", "error", err)
	}
	cacheRepo := repository.NewCacheRepository(redisClient, "attendance:")
	defer cacheRepo.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	leaveRepo := repository.NewLeaveRequestRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	recipientRepo := repository.NewRecipientRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Timetable.CacheTTL, logr, cfg.Redis.Enabled)

	location, err := time.LoadLocation(cfg.Timetable.Timezone)
	if err != nil {
		logr.Warn("unknown timetable timezone, using UTC", zap.String("timezone", cfg.Timetable.Timezone))
		location = time.UTC
	}
	scheduleSvc := service.NewScheduleService(scheduleRepo, service.ScheduleLookups{
		TimeSlots: repository.NewTimeSlotRepository(db),
		Groups:    repository.NewGroupRepository(db),
		Subjects:  subjectRepo,
		Teachers:  teacherRepo,
	}, cacheSvc, metrics, validate, logr).WithCalendar(service.CalendarOptions{
		Name:     cfg.Timetable.CalendarName,
		Location: location,
	})

	notificationSvc := service.NewNotificationService(notificationRepo, recipientRepo, metrics, validate, logr)
	var queue *jobs.Queue
	if cfg.Notifications.Async {
		queue = jobs.NewQueue("notifications", notificationSvc.HandleJob, jobs.QueueConfig{
			Workers:    cfg.Notifications.Workers,
			BufferSize: cfg.Notifications.BufferSize,
			MaxRetries: -1,
			Logger:     logr,
		})
		queue.Start(context.Background())
		notificationSvc.UseQueue(queue)
	}

	reconciliationSvc := service.NewReconciliationService(attendanceRepo, scheduleRepo, studentRepo, cfg.Reconciliation.MatchWeekday, metrics, logr)
	leaveSvc := service.NewLeaveService(leaveRepo, studentRepo, reconciliationSvc, notificationSvc, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, studentRepo, teacherRepo, subjectRepo, scheduleRepo, notificationSvc, validate, logr)
	sweepSvc := service.NewAbsenceSweepService(attendanceRepo, recipientRepo, notificationSvc, service.AbsenceSweepConfig{
		WindowDays: cfg.AbsenceSweep.WindowDays,
		Threshold:  cfg.AbsenceSweep.Threshold,
	}, metrics, logr)
	authSvc := service.NewAuthService(userRepo, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
	})

	scheduler := jobs.NewScheduler(logr, 5*time.Minute)
	if cfg.AbsenceSweep.Enabled {
		if err := scheduler.Register("absence-sweep", cfg.AbsenceSweep.Cron, sweepSvc.Task); err != nil {
			logr.Sugar().Fatalw("invalid absence sweep schedule", "error", err)
		}
		scheduler.Start()
	}

	router := handler.NewRouter(handler.RouterDeps{
		Logger:         logr,
		Metrics:        metrics,
		Tokens:         authSvc,
		Audit:          userRepo,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		APIPrefix:      cfg.APIPrefix,
		Docs:           cfg.Env != config.EnvProduction,
		Schedules:      handler.NewScheduleHandler(scheduleSvc),
		Attendance:     handler.NewAttendanceHandler(attendanceSvc),
		Leave:          handler.NewLeaveHandler(leaveSvc),
		Notifications:  handler.NewNotificationHandler(notificationSvc),
		Admin:          handler.NewAdminHandler(sweepSvc),
		Auth:           handler.NewAuthHandler(authSvc),
		Probes: handler.NewMetricsHandler(metrics, map[string]handler.Pinger{
			"postgres": db,
			"redis":    handler.PingFunc(cacheRepo.Ping),
		}),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server shutdown", zap.Error(err))
	}
	scheduler.Stop(shutdownCtx)
	if queue != nil {
		queue.Stop()
	}
}

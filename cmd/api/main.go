package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	_ "github.com/srms-dev/srms-api/api/swagger"
	"github.com/srms-dev/srms-api/internal/handler"
	"github.com/srms-dev/srms-api/internal/repository"
	"github.com/srms-dev/srms-api/internal/service"
	"github.com/srms-dev/srms-api/pkg/cache"
	"github.com/srms-dev/srms-api/pkg/config"
	"github.com/srms-dev/srms-api/pkg/database"
	"github.com/srms-dev/srms-api/pkg/export"
	"github.com/srms-dev/srms-api/pkg/jobs"
	"github.com/srms-dev/srms-api/pkg/logger"
)

// @title SRMS API
// @version 1.0.0
// @description Student result management backend
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching and rate limiting disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	classRepo := repository.NewClassRepository(db)
	resultRepo := repository.NewResultRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)
	reportRepo := repository.NewReportRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	configRepo := repository.NewConfigRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsService := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Analytics.CacheTTL, logr, cfg.Analytics.CacheEnabled && redisClient != nil)

	auditService := service.NewAuditService(auditRepo, logr, cfg.Audit.Retention)
	configService := service.NewConfigService(configRepo, validate, logr)
	if err := configService.SeedDefaults(ctx); err != nil {
		logr.Sugar().Fatalw("failed to seed configuration", "error", err)
	}

	authService := service.NewAuthService(userRepo, auditService, validate, logr, service.AuthConfig{
		AccessSecret:      cfg.JWT.AccessSecret,
		RefreshSecret:     cfg.JWT.RefreshSecret,
		AccessExpiration:  cfg.JWT.AccessExpiration,
		RefreshExpiration: cfg.JWT.RefreshExpiration,
		Issuer:            cfg.JWT.Issuer,
	})

	userService := service.NewUserService(userRepo, auditService, validate, logr)
	studentService := service.NewStudentService(studentRepo, userRepo, auditService, validate, logr)
	teacherService := service.NewTeacherService(teacherRepo, userRepo, subjectRepo, auditService, validate, logr)
	subjectService := service.NewSubjectService(subjectRepo, teacherRepo, auditService, validate, logr)
	classService := service.NewClassService(classRepo, studentRepo, teacherRepo, auditService, validate, logr)

	notificationService := service.NewNotificationService(notificationRepo, validate, logr, cfg.Notifications.ReadRetention)
	resultService := service.NewResultService(resultRepo, subjectRepo, studentRepo, teacherRepo, configService, auditService, notificationService, cacheService, validate, logr)
	attendanceService := service.NewAttendanceService(attendanceRepo, studentRepo, subjectRepo, teacherRepo, auditService, validate, logr)
	analyticsService := service.NewAnalyticsService(analyticsRepo, classRepo, subjectRepo, cacheService, metricsService, cfg.Analytics.CacheTTL, logr)

	storage, err := export.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init report storage", "error", err)
	}
	signer := export.NewSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	reportService := service.NewReportService(resultRepo, studentRepo, classRepo, analyticsRepo, reportRepo, storage, signer, service.ReportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.SignedURLTTL,
	}, validate, logr)

	// Background queues.
	exportQueue := jobs.NewQueue("report-export", reportService.ProcessExport, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr,
	})
	reportService.AttachQueue(exportQueue)
	exportQueue.Start(ctx)
	defer exportQueue.Stop()

	notifyQueue := jobs.NewQueue("notification-dispatch", notificationService.Dispatch, jobs.QueueConfig{
		Workers: cfg.Notifications.WorkerConcurrency,
		Logger:  logr,
	})
	notificationService.AttachQueue(notifyQueue)
	notifyQueue.Start(ctx)
	defer notifyQueue.Stop()

	// Retention sweeps.
	go auditService.RunCleanup(ctx, cfg.Audit.CleanupInterval)
	go notificationService.RunCleanup(ctx, cfg.Notifications.CleanupInterval)
	go reportService.RunCleanup(ctx, cfg.Reports.CleanupInterval)

	router := handler.NewRouter(handler.RouterDeps{
		Config:        cfg,
		Logger:        logr,
		Auth:          authService,
		Users:         userService,
		Students:      studentService,
		Teachers:      teacherService,
		Subjects:      subjectService,
		Classes:       classService,
		Results:       resultService,
		Attendance:    attendanceService,
		Analytics:     analyticsService,
		Reports:       reportService,
		Notifications: notificationService,
		Audit:         auditService,
		AppConfig:     configService,
		Metrics:       metricsService,
		Cache:         cacheRepo,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

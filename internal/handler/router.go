package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/srms-dev/srms-api/internal/middleware"
	"github.com/srms-dev/srms-api/internal/models"
	"github.com/srms-dev/srms-api/internal/repository"
	"github.com/srms-dev/srms-api/internal/service"
	"github.com/srms-dev/srms-api/pkg/config"
	"github.com/srms-dev/srms-api/pkg/logger"
	corsmiddleware "github.com/srms-dev/srms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/srms-dev/srms-api/pkg/middleware/requestid"
)

// RouterDeps bundles everything the HTTP layer needs.
type RouterDeps struct {
	Config *config.Config
	Logger *zap.Logger

	Auth          *service.AuthService
	Users         *service.UserService
	Students      *service.StudentService
	Teachers      *service.TeacherService
	Subjects      *service.SubjectService
	Classes       *service.ClassService
	Results       *service.ResultService
	Attendance    *service.AttendanceService
	Analytics     *service.AnalyticsService
	Reports       *service.ReportService
	Notifications *service.NotificationService
	Audit         *service.AuditService
	AppConfig     *service.ConfigService
	Metrics       *service.MetricsService

	Cache *repository.CacheRepository
}

// NewRouter builds the gin engine with all routes and middleware wired.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := NewAuthHandler(deps.Auth)
	userHandler := NewUserHandler(deps.Users)
	studentHandler := NewStudentHandler(deps.Students)
	teacherHandler := NewTeacherHandler(deps.Teachers)
	subjectHandler := NewSubjectHandler(deps.Subjects)
	classHandler := NewClassHandler(deps.Classes)
	resultHandler := NewResultHandler(deps.Results)
	attendanceHandler := NewAttendanceHandler(deps.Attendance)
	analyticsHandler := NewAnalyticsHandler(deps.Analytics)
	reportHandler := NewReportHandler(deps.Reports)
	notificationHandler := NewNotificationHandler(deps.Notifications)
	auditHandler := NewAuditHandler(deps.Audit)
	configHandler := NewConfigHandler(deps.AppConfig)

	authRequired := middleware.JWT(deps.Auth)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	staffOnly := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)

	var loginLimit, signupLimit gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		loginLimit = middleware.RateLimit(deps.Cache, int64(cfg.RateLimit.LoginPerMin), time.Minute, deps.Logger)
		signupLimit = middleware.RateLimit(deps.Cache, int64(cfg.RateLimit.SignupPerMin), time.Minute, deps.Logger)
	} else {
		passthrough := func(c *gin.Context) { c.Next() }
		loginLimit, signupLimit = passthrough, passthrough
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", signupLimit, authHandler.Register)
		auth.POST("/login", loginLimit, authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", authRequired, authHandler.Logout)
		auth.POST("/change-password", authRequired, authHandler.ChangePassword)
		auth.GET("/me", authRequired, authHandler.Me)
		auth.PUT("/me", authRequired, authHandler.UpdateMe)
	}

	users := api.Group("/users", authRequired, adminOnly)
	{
		users.GET("", userHandler.List)
		users.GET("/:id", userHandler.Get)
		users.PUT("/:id", userHandler.Update)
		users.DELETE("/:id", userHandler.Delete)
	}

	students := api.Group("/students", authRequired)
	{
		students.GET("/me", studentHandler.Me)
		students.GET("", staffOnly, studentHandler.List)
		students.GET("/:id", staffOnly, studentHandler.Get)
		students.POST("", adminOnly, studentHandler.Create)
		students.PUT("/:id", adminOnly, studentHandler.Update)
		students.DELETE("/:id", adminOnly, studentHandler.Delete)
	}

	teachers := api.Group("/teachers", authRequired)
	{
		teachers.GET("/me", teacherHandler.Me)
		teachers.GET("", staffOnly, teacherHandler.List)
		teachers.GET("/:id", staffOnly, teacherHandler.Get)
		teachers.POST("", adminOnly, teacherHandler.Create)
		teachers.PUT("/:id", adminOnly, teacherHandler.Update)
		teachers.DELETE("/:id", adminOnly, teacherHandler.Delete)
	}

	subjects := api.Group("/subjects", authRequired)
	{
		subjects.GET("", subjectHandler.List)
		subjects.GET("/:id", subjectHandler.Get)
		subjects.POST("", adminOnly, subjectHandler.Create)
		subjects.PUT("/:id", adminOnly, subjectHandler.Update)
		subjects.DELETE("/:id", adminOnly, subjectHandler.Delete)
	}

	classes := api.Group("/classes", authRequired)
	{
		classes.GET("", staffOnly, classHandler.List)
		classes.GET("/:id", staffOnly, classHandler.Get)
		classes.POST("", adminOnly, classHandler.Create)
		classes.PUT("/:id", adminOnly, classHandler.Update)
		classes.DELETE("/:id", adminOnly, classHandler.Delete)
		classes.GET("/:id/students", staffOnly, classHandler.Roster)
		classes.POST("/:id/students", adminOnly, classHandler.Enroll)
		classes.DELETE("/:id/students/:studentId", adminOnly, classHandler.RemoveStudent)
	}

	results := api.Group("/results", authRequired)
	{
		results.GET("", resultHandler.List)
		results.GET("/:id", resultHandler.Get)
		results.POST("", staffOnly, resultHandler.EnterMarks)
		results.PUT("/:id", staffOnly, resultHandler.Update)
		results.POST("/:id/approve", adminOnly, resultHandler.Approve)
		results.DELETE("/:id", adminOnly, resultHandler.Delete)
	}

	attendance := api.Group("/attendance", authRequired)
	{
		attendance.GET("", attendanceHandler.List)
		attendance.GET("/:id", staffOnly, attendanceHandler.Get)
		attendance.POST("", staffOnly, attendanceHandler.Mark)
		attendance.PUT("/:id", staffOnly, attendanceHandler.Update)
		attendance.DELETE("/:id", adminOnly, attendanceHandler.Delete)
		attendance.GET("/students/:studentId/summary", attendanceHandler.Summary)
	}

	analytics := api.Group("/analytics", authRequired, staffOnly)
	{
		analytics.GET("/top-performers", analyticsHandler.TopPerformers)
		analytics.GET("/subjects/:subjectId/distribution", analyticsHandler.Distribution)
		analytics.GET("/trends", analyticsHandler.Trends)
		analytics.GET("/system", middleware.RequireRoles(models.RoleAdmin), analyticsHandler.SystemMetrics)
	}

	reports := api.Group("/reports")
	{
		// Download authenticates through the signed token, not a session.
		reports.GET("/download/:token", reportHandler.Download)

		authed := reports.Group("", authRequired)
		authed.GET("/students/:studentId", reportHandler.StudentReport)
		authed.GET("/classes/:classId", staffOnly, reportHandler.ClassReport)
		authed.POST("/export", staffOnly, reportHandler.Export)
		authed.GET("/jobs", reportHandler.ListJobs)
		authed.GET("/jobs/:id", reportHandler.GetJob)
	}

	notifications := api.Group("/notifications", authRequired)
	{
		notifications.GET("", notificationHandler.List)
		notifications.POST("", staffOnly, notificationHandler.Create)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
		notifications.POST("/read-all", notificationHandler.MarkAllRead)
	}

	api.GET("/audit", authRequired, adminOnly, auditHandler.List)

	configGroup := api.Group("/config", authRequired, adminOnly)
	{
		configGroup.GET("", configHandler.List)
		configGroup.GET("/:key", configHandler.Get)
		configGroup.PUT("", configHandler.Upsert)
		configGroup.DELETE("/:key", configHandler.Delete)
	}

	return r
}

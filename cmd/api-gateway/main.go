package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/sma-bk-api/api/swagger"
	"github.com/noah-isme/sma-bk-api/internal/handler"
	"github.com/noah-isme/sma-bk-api/internal/middleware"
	"github.com/noah-isme/sma-bk-api/internal/models"
	"github.com/noah-isme/sma-bk-api/internal/repository"
	"github.com/noah-isme/sma-bk-api/internal/service"
	"github.com/noah-isme/sma-bk-api/pkg/cache"
	"github.com/noah-isme/sma-bk-api/pkg/config"
	"github.com/noah-isme/sma-bk-api/pkg/database"
	"github.com/noah-isme/sma-bk-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-bk-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-bk-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-bk-api/pkg/qrtoken"
)

// @title SMA BK API
// @version 1.0.0
// @description Violation classification and counseling escalation service
// @BasePath /
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
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()
	metrics := service.NewMetricsService()

	notifier := service.NewNotifier(service.LogSender{Logger: logr}, cfg.Notifications, logr)
	notifyCtx, stopNotify := context.WithCancel(context.Background())
	notifier.Start(notifyCtx)
	defer func() {
		stopNotify()
		notifier.Stop()
	}()

	catalogRepo := repository.NewCatalogRepository(db)
	caseRepo := repository.NewCaseRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	reservationRepo := repository.NewReservationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	signer := qrtoken.NewSigner(cfg.QRToken.Secret, cfg.QRToken.TTL)
	matcher := service.NewViolationMatcher(cfg.Matcher, logr)
	tokenService := service.NewTokenService(cfg.JWT.Secret)
	catalogService := service.NewCatalogService(catalogRepo, cacheRepo, cfg.Catalog.CacheTTL, validate, logr)
	schedulerService := service.NewSchedulerService(slotRepo, metrics, validate, logr, cfg.Booking.MaxRetries)
	reservationService := service.NewReservationService(reservationRepo, schedulerService, signer, notifier, metrics, validate, logr)
	caseService := service.NewCaseService(caseRepo, catalogService, reservationRepo, matcher, schedulerService, notifier, metrics, validate, logr)
	exportService := service.NewExportService(caseRepo, catalogRepo, logr)

	catalogHandler := handler.NewCatalogHandler(catalogService)
	caseHandler := handler.NewCaseHandler(caseService)
	slotHandler := handler.NewSlotHandler(schedulerService)
	reservationHandler := handler.NewReservationHandler(reservationService)
	exportHandler := handler.NewExportHandler(exportService)
	metricsHandler := handler.NewMetricsHandler(metrics)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenService))

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleCounselor, models.RoleStudentAffairs, models.RoleTeacher)
	counseling := middleware.RequireRoles(models.RoleAdmin, models.RoleCounselor, models.RoleStudentAffairs)
	admin := middleware.RequireRoles(models.RoleAdmin, models.RoleStudentAffairs)

	violations := api.Group("/violations")
	{
		violations.GET("", catalogHandler.List)
		violations.GET("/:id", catalogHandler.Get)
		violations.POST("", admin, catalogHandler.Create)
		violations.POST("/import", admin, catalogHandler.Import)
	}

	cases := api.Group("/cases")
	cases.Use(staff)
	{
		cases.POST("", caseHandler.Report)
		cases.GET("", caseHandler.List)
		cases.GET("/:id", caseHandler.Get)
		cases.POST("/:id/escalate", counseling, caseHandler.Escalate)
		cases.POST("/:id/complete", counseling, caseHandler.Complete)
		cases.POST("/:id/archive", counseling, caseHandler.Archive)
		cases.POST("/:id/match-override", counseling, caseHandler.OverrideMatch)
	}

	slots := api.Group("/slots")
	{
		slots.POST("", counseling, slotHandler.Create)
		slots.GET("", slotHandler.List)
		slots.GET("/available", slotHandler.Available)
	}

	reservations := api.Group("/reservations")
	{
		reservations.POST("", reservationHandler.Request)
		reservations.GET("", reservationHandler.List)
		reservations.GET("/:id", reservationHandler.Get)
		reservations.PATCH("/:id/status", counseling, reservationHandler.SetStatus)
		reservations.POST("/:id/attendance", counseling, reservationHandler.ConfirmAttendance)
		reservations.POST("/:id/complete", counseling, reservationHandler.Complete)
	}

	if cfg.Exports.Enabled {
		api.GET("/reports/cases/export", counseling, exportHandler.CaseRecap)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

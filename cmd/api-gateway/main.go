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

	_ "github.com/noah-isme/clinic-booking-api/api/swagger"
	"github.com/noah-isme/clinic-booking-api/internal/handler"
	"github.com/noah-isme/clinic-booking-api/internal/middleware"
	"github.com/noah-isme/clinic-booking-api/internal/repository"
	"github.com/noah-isme/clinic-booking-api/internal/router"
	"github.com/noah-isme/clinic-booking-api/internal/service"
	"github.com/noah-isme/clinic-booking-api/pkg/cache"
	"github.com/noah-isme/clinic-booking-api/pkg/config"
	"github.com/noah-isme/clinic-booking-api/pkg/database"
	"github.com/noah-isme/clinic-booking-api/pkg/jobs"
	"github.com/noah-isme/clinic-booking-api/pkg/logger"
)

// @title Clinic Booking API
// @version 1.0.0
// @description Therapist availability, slot generation and conflict-free appointment booking.
// @BasePath /api/v1
// @schemes http https
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database, logr)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, availability cache disabled", zap.Error(err))
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	loc := cfg.Scheduling.Location()
	validate := validator.New()
	metrics := service.NewMetricsService()
	if !cfg.Metrics.Enabled {
		metrics = nil
	}

	users := repository.NewUserRepository(db)
	appointmentRepo := repository.NewAppointmentRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	blockRepo := repository.NewAbsenceBlockRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Scheduling.CacheTTL, logr, cfg.Scheduling.CacheEnabled && redisClient != nil)
	availabilitySvc := service.NewAvailabilityService(availabilityRepo, blockRepo, users, cacheSvc, logr, service.AvailabilityConfig{
		Location: loc,
		CacheTTL: cfg.Scheduling.CacheTTL,
	})
	slotSvc := service.NewSlotService(availabilitySvc, appointmentRepo, loc)
	bookingSvc := service.NewBookingService(appointmentRepo, users, availabilitySvc, validate, metrics, logr, service.BookingConfig{
		Location:            loc,
		MinDurationMinutes:  cfg.Scheduling.MinDurationMinutes,
		EnforceAvailability: cfg.Scheduling.EnforceAvailability,
	})
	blockSvc := service.NewBlockService(blockRepo, appointmentRepo, users, availabilitySvc, nil, validate, metrics, logr, loc)
	agendaSvc := service.NewAgendaService(bookingSvc, loc, logr)
	notificationSvc := service.NewNotificationService(notificationRepo)
	sweepSvc := service.NewSweepService(appointmentRepo, notificationRepo, metrics, logr, service.SweepConfig{
		CompletionInterval: cfg.Sweeps.CompletionInterval,
		ReminderInterval:   cfg.Sweeps.ReminderInterval,
		ReminderLead:       cfg.Sweeps.ReminderLead,
		Location:           loc,
	})
	tokenSvc := service.NewTokenService(service.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	cascadeQueue := jobs.NewQueue("block-cascade", blockSvc.HandleCascadeJob, jobs.QueueConfig{
		Workers:    cfg.Cascade.WorkerConcurrency,
		MaxRetries: cfg.Cascade.WorkerRetries,
		RetryDelay: cfg.Cascade.RetryDelay,
		Logger:     logr,
		OnDrop: func(job jobs.Job, err error) {
			logr.Error("cascade retry abandoned; next start-up reconciliation will pick it up",
				zap.String("appointment_id", job.ID), zap.Error(err))
		},
	})
	blockSvc.SetQueue(cascadeQueue)
	cascadeQueue.Start(ctx)
	defer cascadeQueue.Stop()

	if n, err := blockSvc.ReconcileBlocks(ctx, time.Now().UTC()); err != nil {
		logr.Warn("absence block reconciliation failed", zap.Error(err))
	} else if n > 0 {
		logr.Info("absence block reconciliation cancelled leftover appointments", zap.Int("cancelled", n))
	}
	sweepSvc.Start(ctx)

	checks := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		checks["redis"] = handler.PingFunc(cacheRepo.Ping)
	}

	engine := router.New(&router.Config{
		APIPrefix:          cfg.APIPrefix,
		Logger:             logr,
		Tokens:             tokenSvc,
		Metrics:            metrics,
		BookingLimiter:     middleware.NewRateLimiter(cfg.RateLimit.BookingsPerMinute, cfg.RateLimit.Burst),
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:         cfg.Env != config.EnvProduction,
		Availability:       handler.NewAvailabilityHandler(availabilitySvc, slotSvc),
		Appointments:       handler.NewAppointmentHandler(bookingSvc, agendaSvc),
		Blocks:             handler.NewBlockHandler(blockSvc),
		Notifications:      handler.NewNotificationHandler(notificationSvc),
		Ops:                handler.NewMetricsHandler(metrics, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("timezone", loc.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

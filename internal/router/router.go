package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-booking-api/internal/handler"
	"github.com/noah-isme/clinic-booking-api/internal/middleware"
	"github.com/noah-isme/clinic-booking-api/internal/models"
	"github.com/noah-isme/clinic-booking-api/internal/service"
	"github.com/noah-isme/clinic-booking-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/clinic-booking-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/clinic-booking-api/pkg/middleware/requestid"
)

// Config holds everything the HTTP surface needs.
type Config struct {
	APIPrefix          string
	Logger             *zap.Logger
	Tokens             middleware.TokenValidator
	Metrics            *service.MetricsService
	BookingLimiter     *middleware.RateLimiter
	CORSAllowedOrigins []string
	EnableDocs         bool

	Availability  *handler.AvailabilityHandler
	Appointments  *handler.AppointmentHandler
	Blocks        *handler.BlockHandler
	Notifications *handler.NotificationHandler
	Ops           *handler.MetricsHandler
}

// New builds the gin engine with all routes configured.
func New(cfg *Config) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(cfg.Logger))
	r.Use(corsmiddleware.New(cfg.CORSAllowedOrigins))
	r.Use(middleware.Metrics(cfg.Metrics))

	r.GET("/health", cfg.Ops.Health)
	r.GET("/ready", cfg.Ops.Ready)
	if cfg.Ops.ExposesMetrics() {
		r.GET("/metrics", cfg.Ops.Prometheus)
	}
	if cfg.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix, middleware.JWT(cfg.Tokens))
	managers := middleware.RequireRolesOrSelf("id", models.RoleAdmin)

	therapists := api.Group("/therapists/:id")
	therapists.GET("/availability", cfg.Availability.Availability)
	therapists.GET("/slots", cfg.Availability.Slots)
	therapists.GET("/weekly-template", cfg.Availability.WeeklyTemplate)
	therapists.PUT("/weekly-template", managers, cfg.Availability.ReplaceWeeklyTemplate)
	therapists.PUT("/exceptions/:date", managers, cfg.Availability.UpsertException)
	therapists.DELETE("/exceptions/:date", managers, cfg.Availability.DeleteException)
	therapists.GET("/appointments", managers, cfg.Appointments.ListForDate)
	therapists.GET("/agenda", managers, cfg.Appointments.Agenda)
	therapists.GET("/blocks", cfg.Blocks.List)
	therapists.POST("/blocks", managers, cfg.Blocks.Apply)

	api.POST("/bookings",
		middleware.RequireRoles(models.RolePatient, models.RoleAdmin),
		cfg.BookingLimiter.Middleware(),
		cfg.Appointments.Book,
	)
	api.GET("/appointments/:id", cfg.Appointments.Get)
	api.PATCH("/appointments/:id/status", cfg.Appointments.UpdateStatus)
	api.DELETE("/blocks/:id", cfg.Blocks.Unblock)

	api.GET("/notifications", cfg.Notifications.List)
	api.PATCH("/notifications/:id/read", cfg.Notifications.MarkRead)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "route not found"}})
	})
	return r
}

package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/evlinhq/evlin-backend/internal/http/handlers"
	httpMW "github.com/evlinhq/evlin-backend/internal/http/middleware"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	AuthHandler    *httpH.AuthHandler
	AuthMiddleware *httpMW.AuthMiddleware

	StudentHandler      *httpH.StudentHandler
	AvailabilityHandler *httpH.AvailabilityHandler
	CourseHandler       *httpH.CourseHandler
	ScheduleHandler     *httpH.ScheduleHandler
	SessionHandler      *httpH.SessionHandler
	ChatHandler         *httpH.ChatHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("evlin-backend"))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Auth (public)
		if cfg.AuthHandler != nil {
			api.POST("/login", cfg.AuthHandler.Login)
		}
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Students
		if cfg.StudentHandler != nil {
			protected.POST("/students", cfg.StudentHandler.Create)
			protected.GET("/students", cfg.StudentHandler.List)
			protected.GET("/students/:id", cfg.StudentHandler.Get)
			protected.PUT("/students/:id", cfg.StudentHandler.Update)
		}

		// Availability
		if cfg.AvailabilityHandler != nil {
			protected.GET("/students/:id/availability", cfg.AvailabilityHandler.Get)
			protected.PUT("/students/:id/availability", cfg.AvailabilityHandler.Set)
		}

		// Course catalog
		if cfg.CourseHandler != nil {
			protected.GET("/courses", cfg.CourseHandler.Search)
			protected.GET("/courses/:code", cfg.CourseHandler.Get)
			protected.GET("/courses/:code/related", cfg.CourseHandler.Related)
		}

		// Schedules
		if cfg.ScheduleHandler != nil {
			protected.POST("/students/:id/schedules", cfg.ScheduleHandler.Propose)
			protected.GET("/students/:id/schedules", cfg.ScheduleHandler.ListForStudent)
			protected.GET("/students/:id/prerequisites/:code", cfg.ScheduleHandler.CheckPrerequisites)
			protected.POST("/students/:id/conflicts", cfg.ScheduleHandler.CheckConflicts)
			protected.GET("/schedules/:id", cfg.ScheduleHandler.Get)
			protected.POST("/schedules/:id/confirm", cfg.ScheduleHandler.Confirm)
			protected.POST("/schedules/:id/cancel", cfg.ScheduleHandler.Cancel)
		}

		// Sessions
		if cfg.SessionHandler != nil {
			protected.GET("/students/:id/sessions", cfg.SessionHandler.ListForStudent)
			protected.POST("/sessions/:id/checkin", cfg.SessionHandler.CheckIn)
			protected.POST("/sessions/:id/reschedule", cfg.SessionHandler.Reschedule)
			protected.GET("/sessions/:id/suggestions", cfg.SessionHandler.Suggestions)
			protected.GET("/sessions/:id/ledger", cfg.SessionHandler.Ledger)
		}

		// Assistant
		if cfg.ChatHandler != nil {
			protected.POST("/chat", cfg.ChatHandler.Chat)
		}
	}

	return r
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/evlinhq/evlin-backend/internal/agent"
	"github.com/evlinhq/evlin-backend/internal/data/db"
	"github.com/evlinhq/evlin-backend/internal/data/repos"
	httpserver "github.com/evlinhq/evlin-backend/internal/http"
	httpH "github.com/evlinhq/evlin-backend/internal/http/handlers"
	httpMW "github.com/evlinhq/evlin-backend/internal/http/middleware"
	"github.com/evlinhq/evlin-backend/internal/observability"
	"github.com/evlinhq/evlin-backend/internal/platform/envutil"
	"github.com/evlinhq/evlin-backend/internal/platform/genai"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
	"github.com/evlinhq/evlin-backend/internal/platform/neo4jdb"
	"github.com/evlinhq/evlin-backend/internal/platform/redisdb"
	"github.com/evlinhq/evlin-backend/internal/services"
)

func main() {
	_ = godotenv.Load()

	logMode := envutil.String("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "evlin-backend",
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),
	})
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			log.Warn("otel shutdown failed", "error", err)
		}
	}()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	pg := postgresService.DB()

	// Optional backends. Each degrades rather than blocking startup.
	graphDB, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Warn("Neo4j init failed; prerequisite graph disabled", "error", err)
		graphDB = nil
	}
	cache, err := redisdb.NewFromEnv(log)
	if err != nil {
		log.Warn("Redis init failed; course search cache disabled", "error", err)
		cache = nil
	}

	// Repos
	studentRepo := repos.NewStudentRepo(pg, log)
	courseRepo := repos.NewCourseRepo(pg, log)
	availabilityRepo := repos.NewAvailabilityRepo(pg, log)
	scheduleRepo := repos.NewScheduleRepo(pg, log)
	slotRepo := repos.NewScheduleSlotRepo(pg, log)
	sessionRepo := repos.NewSessionInstanceRepo(pg, log)
	ledgerRepo := repos.NewCheckinLogRepo(pg, log)
	conversationRepo := repos.NewConversationRepo(pg, log)

	// Services
	authService, err := services.NewAuthService(log)
	if err != nil {
		log.Fatal("Auth init failed", "error", err)
	}
	studentService := services.NewStudentService(pg, log, studentRepo)
	availabilityService := services.NewAvailabilityService(pg, log, availabilityRepo)
	conflictService := services.NewConflictService(pg, log, slotRepo, availabilityService)
	prereqService := services.NewPrerequisiteService(pg, log, scheduleRepo, graphDB)
	searchService := services.NewCourseSearchService(pg, log, courseRepo, cache, graphDB)
	sessionService := services.NewSessionService(pg, log, scheduleRepo, sessionRepo, ledgerRepo, conflictService, availabilityService)
	scheduleService := services.NewScheduleService(pg, log, scheduleRepo, slotRepo, courseRepo, sessionRepo, ledgerRepo, conflictService, prereqService, sessionService)

	// Assistant
	var loop *agent.Loop
	model, err := genai.NewClient(log)
	if err != nil {
		log.Warn("Gemini init failed; assistant disabled", "error", err)
	} else {
		registry := agent.NewRegistry(availabilityService, searchService, prereqService, conflictService, scheduleService, sessionService)
		loop = agent.NewLoop(log, model, registry, studentRepo, conversationRepo)
	}

	// Handlers
	var chatHandler *httpH.ChatHandler
	if loop != nil {
		chatHandler = httpH.NewChatHandler(loop)
	}
	server := httpserver.NewServer(httpserver.RouterConfig{
		Log:                 log,
		AuthHandler:         httpH.NewAuthHandler(authService),
		AuthMiddleware:      httpMW.NewAuthMiddleware(log, authService),
		StudentHandler:      httpH.NewStudentHandler(studentService),
		AvailabilityHandler: httpH.NewAvailabilityHandler(availabilityService),
		CourseHandler:       httpH.NewCourseHandler(searchService),
		ScheduleHandler:     httpH.NewScheduleHandler(scheduleService, prereqService, conflictService, searchService),
		SessionHandler:      httpH.NewSessionHandler(sessionService),
		ChatHandler:         chatHandler,
		HealthHandler:       httpH.NewHealthHandler(),
	})

	port := envutil.String("PORT", "8080")
	log.Info("API listening", "port", port)
	if err := server.Run(":" + port); err != nil {
		log.Fatal("server exited", "error", err)
	}
}

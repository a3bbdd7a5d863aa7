package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/evlinhq/evlin-backend/internal/data/db"
	"github.com/evlinhq/evlin-backend/internal/data/repos"
	"github.com/evlinhq/evlin-backend/internal/platform/envutil"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
	"github.com/evlinhq/evlin-backend/internal/platform/neo4jdb"
	"github.com/evlinhq/evlin-backend/internal/services"
	"github.com/evlinhq/evlin-backend/internal/temporalx"
	"github.com/evlinhq/evlin-backend/internal/temporalx/temporalworker"
)

// The worker runs the cron-driven maintenance pass: session generation,
// overdue sweeps, and schedule completion. It shares the data layer with the
// API but carries none of the HTTP surface.
func main() {
	_ = godotenv.Load()

	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	pg := postgresService.DB()

	graphDB, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Warn("Neo4j init failed; prerequisite graph disabled", "error", err)
		graphDB = nil
	}

	scheduleRepo := repos.NewScheduleRepo(pg, log)
	slotRepo := repos.NewScheduleSlotRepo(pg, log)
	courseRepo := repos.NewCourseRepo(pg, log)
	sessionRepo := repos.NewSessionInstanceRepo(pg, log)
	ledgerRepo := repos.NewCheckinLogRepo(pg, log)
	availabilityRepo := repos.NewAvailabilityRepo(pg, log)

	availabilityService := services.NewAvailabilityService(pg, log, availabilityRepo)
	conflictService := services.NewConflictService(pg, log, slotRepo, availabilityService)
	prereqService := services.NewPrerequisiteService(pg, log, scheduleRepo, graphDB)
	sessionService := services.NewSessionService(pg, log, scheduleRepo, sessionRepo, ledgerRepo, conflictService, availabilityService)
	scheduleService := services.NewScheduleService(pg, log, scheduleRepo, slotRepo, courseRepo, sessionRepo, ledgerRepo, conflictService, prereqService, sessionService)

	tc, err := temporalx.NewClient(log)
	if err != nil {
		log.Fatal("Temporal dial failed", "error", err)
	}
	if tc == nil {
		log.Fatal("TEMPORAL_ADDRESS is required for the worker")
	}
	defer tc.Close()

	runner, err := temporalworker.NewRunner(log, tc, sessionService, scheduleService)
	if err != nil {
		log.Fatal("Temporal worker init failed", "error", err)
	}
	if err := runner.Start(ctx); err != nil {
		log.Fatal("Temporal worker start failed", "error", err)
	}

	<-ctx.Done()
	log.Info("worker shutting down")
}

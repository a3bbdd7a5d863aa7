package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/evlinhq/evlin-backend/internal/platform/envutil"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
	"github.com/evlinhq/evlin-backend/internal/services"
	"github.com/evlinhq/evlin-backend/internal/temporalx"
	"github.com/evlinhq/evlin-backend/internal/temporalx/maintenance"
)

const maintenanceWorkflowID = "session-maintenance"

type Runner struct {
	log *logger.Logger

	tc        temporalsdkclient.Client
	sessions  services.SessionService
	schedules services.ScheduleService
}

func NewRunner(
	log *logger.Logger,
	tc temporalsdkclient.Client,
	sessions services.SessionService,
	schedules services.ScheduleService,
) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if sessions == nil || schedules == nil {
		return nil, fmt.Errorf("temporal worker missing deps")
	}
	return &Runner{
		log:       log,
		tc:        tc,
		sessions:  sessions,
		schedules: schedules,
	}, nil
}

// Start brings up the worker with retries, then ensures the cron-scheduled
// maintenance workflow exists. Blocks only until the worker is polling.
func (r *Runner) Start(ctx context.Context) error {
	if r == nil || r.tc == nil {
		return fmt.Errorf("temporal worker not initialized")
	}

	cfg := temporalx.LoadConfig()
	if r.log != nil {
		r.log.Info("starting Temporal worker", "address", cfg.Address, "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue)
	}

	maxWait := time.Duration(envutil.Int("TEMPORAL_WORKER_START_MAX_WAIT_SECONDS", 60)) * time.Second
	backoff := time.Duration(envutil.Int("TEMPORAL_WORKER_START_BACKOFF_MS", 250)) * time.Millisecond

	deadline := time.Now().Add(maxWait)
	for attempt := 1; ; attempt++ {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		w := r.newWorker(cfg)
		startErr := w.Start()
		if startErr == nil {
			if ctx != nil {
				go func() {
					<-ctx.Done()
					w.Stop()
				}()
			}
			if r.log != nil {
				r.log.Info("Temporal worker started", "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue, "attempts", attempt)
			}
			return r.scheduleMaintenance(ctx, cfg)
		}
		w.Stop()

		if maxWait <= 0 || time.Now().After(deadline) {
			var nfe *serviceerror.NamespaceNotFound
			if errors.As(startErr, &nfe) {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", cfg.Namespace, startErr)
			}
			return startErr
		}
		if r.log != nil {
			r.log.Warn("Temporal worker failed to start; retrying", "namespace", cfg.Namespace, "attempt", attempt, "error", startErr)
		}
		time.Sleep(clampBackoff(backoff, 5*time.Second, attempt))
	}
}

func (r *Runner) newWorker(cfg temporalx.Config) worker.Worker {
	concurrency := envutil.Int("WORKER_CONCURRENCY", 4)
	if concurrency < 1 {
		concurrency = 1
	}

	w := worker.New(r.tc, cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})

	acts := &maintenance.Activities{
		Log:       r.log,
		Sessions:  r.sessions,
		Schedules: r.schedules,
	}

	w.RegisterWorkflowWithOptions(maintenance.Workflow, workflow.RegisterOptions{Name: maintenance.WorkflowName})
	w.RegisterActivityWithOptions(acts.GenerateUpcoming, activity.RegisterOptions{Name: maintenance.ActivityGenerateUpcoming})
	w.RegisterActivityWithOptions(acts.SweepOverdue, activity.RegisterOptions{Name: maintenance.ActivitySweepOverdue})
	w.RegisterActivityWithOptions(acts.CompleteDue, activity.RegisterOptions{Name: maintenance.ActivityCompleteDue})
	return w
}

// scheduleMaintenance starts the cron workflow under a fixed ID. A run that
// already exists is fine; the cron keeps ticking across worker restarts.
func (r *Runner) scheduleMaintenance(ctx context.Context, cfg temporalx.Config) error {
	baseCtx := ctx
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	startCtx, cancel := context.WithTimeout(baseCtx, 10*time.Second)
	defer cancel()

	cron := envutil.String("MAINTENANCE_CRON", "*/30 * * * *")
	_, err := r.tc.ExecuteWorkflow(startCtx, temporalsdkclient.StartWorkflowOptions{
		ID:           maintenanceWorkflowID,
		TaskQueue:    cfg.TaskQueue,
		CronSchedule: cron,
	}, maintenance.WorkflowName)
	if err != nil {
		var already *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &already) {
			return nil
		}
		return fmt.Errorf("schedule maintenance workflow: %w", err)
	}
	if r.log != nil {
		r.log.Info("maintenance workflow scheduled", "workflow_id", maintenanceWorkflowID, "cron", cron)
	}
	return nil
}

func clampBackoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	sleep := base
	for i := 1; i < attempt; i++ {
		sleep *= 2
		if sleep >= max {
			return max
		}
	}
	return sleep
}

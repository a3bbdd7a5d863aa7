package maintenance

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Workflow runs one maintenance pass: fill in upcoming session instances,
// sweep overdue pending ones, and close out schedules past their end date.
// It is started on a cron schedule and does a single pass per invocation,
// so a failed pass never blocks the next tick.
func Workflow(ctx workflow.Context) (PassResult, error) {
	res := PassResult{}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 2 * time.Second,
			MaximumInterval: time.Minute,
			MaximumAttempts: 3,
		},
	})
	log := workflow.GetLogger(ctx)

	// Generation first so the sweep sees a fully materialized horizon.
	var gen GenerateResult
	if err := workflow.ExecuteActivity(ctx, ActivityGenerateUpcoming).Get(ctx, &gen); err != nil {
		return res, err
	}
	res.Generated = gen.Created

	var sweep SweepResult
	if err := workflow.ExecuteActivity(ctx, ActivitySweepOverdue).Get(ctx, &sweep); err != nil {
		return res, err
	}
	res.Missed = sweep.Missed
	res.Rescheduled = sweep.Rescheduled

	var done CompleteResult
	if err := workflow.ExecuteActivity(ctx, ActivityCompleteDue).Get(ctx, &done); err != nil {
		return res, err
	}
	res.Completed = done.Completed

	log.Info("maintenance pass finished",
		"generated", res.Generated,
		"missed", res.Missed,
		"rescheduled", res.Rescheduled,
		"completed", res.Completed,
	)
	return res, nil
}

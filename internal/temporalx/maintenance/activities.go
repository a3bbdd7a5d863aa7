package maintenance

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/evlinhq/evlin-backend/internal/platform/envutil"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
	"github.com/evlinhq/evlin-backend/internal/services"
)

type Activities struct {
	Log       *logger.Logger
	Sessions  services.SessionService
	Schedules services.ScheduleService
}

func (a *Activities) GenerateUpcoming(ctx context.Context) (GenerateResult, error) {
	res := GenerateResult{}
	if a == nil || a.Sessions == nil {
		return res, fmt.Errorf("maintenance: activity not configured")
	}
	activity.RecordHeartbeat(ctx, "generate")

	created, err := a.Sessions.GenerateUpcoming(ctx, time.Now().UTC())
	if err != nil {
		return res, err
	}
	res.Created = created
	return res, nil
}

func (a *Activities) SweepOverdue(ctx context.Context) (SweepResult, error) {
	res := SweepResult{}
	if a == nil || a.Sessions == nil {
		return res, fmt.Errorf("maintenance: activity not configured")
	}
	activity.RecordHeartbeat(ctx, "sweep")

	autoReschedule := envutil.Bool("SESSION_SWEEP_AUTO_RESCHEDULE", false)
	missed, rescheduled, err := a.Sessions.SweepOverdue(ctx, time.Now().UTC(), autoReschedule)
	if err != nil {
		return res, err
	}
	res.Missed = missed
	res.Rescheduled = rescheduled
	return res, nil
}

func (a *Activities) CompleteDue(ctx context.Context) (CompleteResult, error) {
	res := CompleteResult{}
	if a == nil || a.Schedules == nil {
		return res, fmt.Errorf("maintenance: activity not configured")
	}
	activity.RecordHeartbeat(ctx, "complete")

	completed, err := a.Schedules.CompleteDue(ctx, time.Now().UTC())
	if err != nil {
		return res, err
	}
	res.Completed = completed
	return res, nil
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/evlinhq/evlin-backend/internal/data/repos"
	types "github.com/evlinhq/evlin-backend/internal/domain"
	apperrors "github.com/evlinhq/evlin-backend/internal/pkg/errors"
	"github.com/evlinhq/evlin-backend/internal/pkg/timeutil"
	"github.com/evlinhq/evlin-backend/internal/platform/envutil"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
)

// RescheduleSuggestion is one conflict-free placement for a session that
// needs to move.
type RescheduleSuggestion struct {
	Date      time.Time `json:"date"`
	DayOfWeek int       `json:"day_of_week"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
}

// SessionService expands active schedules into dated session instances and
// owns every transition recorded in the check-in ledger.
type SessionService interface {
	// GenerateForSchedule materializes instances for every slot of an active
	// schedule between its effective window and the generation horizon.
	// Idempotent: re-running never duplicates a (slot, date) pair.
	GenerateForSchedule(ctx context.Context, scheduleID uuid.UUID, now time.Time) (int64, error)
	// GenerateUpcoming runs GenerateForSchedule over every active schedule.
	GenerateUpcoming(ctx context.Context, now time.Time) (int64, error)

	CheckIn(ctx context.Context, instanceID uuid.UUID, actor string, at time.Time) (*types.SessionInstance, error)
	AutoMiss(ctx context.Context, instanceID uuid.UUID, now time.Time) (*types.SessionInstance, error)
	Reschedule(ctx context.Context, instanceID uuid.UUID, newDate time.Time, newStart, newEnd, actor string) (*types.SessionInstance, error)

	// FindRescheduleSlots suggests conflict-free placements for the instance
	// within the next daysAhead days, preferring declared availability.
	FindRescheduleSlots(ctx context.Context, instanceID uuid.UUID, daysAhead, limit int) ([]RescheduleSuggestion, error)

	// SweepOverdue resolves every pending instance whose end time has fully
	// elapsed: auto-miss, or auto-reschedule into the next open window when
	// enabled.
	SweepOverdue(ctx context.Context, now time.Time, autoReschedule bool) (missed, rescheduled int, err error)

	ListForStudent(ctx context.Context, studentID uuid.UUID, from, to time.Time, statuses []string) ([]*types.SessionInstance, error)
	Ledger(ctx context.Context, instanceID uuid.UUID) ([]*types.CheckinLogEntry, error)
}

type sessionService struct {
	db           *gorm.DB
	log          *logger.Logger
	schedules    repos.ScheduleRepo
	sessions     repos.SessionInstanceRepo
	ledger       repos.CheckinLogRepo
	conflicts    ConflictService
	availability AvailabilityService

	horizonWeeks int
	sweepWorkers int
}

func NewSessionService(
	db *gorm.DB,
	log *logger.Logger,
	schedules repos.ScheduleRepo,
	sessions repos.SessionInstanceRepo,
	ledger repos.CheckinLogRepo,
	conflicts ConflictService,
	availability AvailabilityService,
) SessionService {
	return &sessionService{
		db:           db,
		log:          log.With("service", "SessionService"),
		schedules:    schedules,
		sessions:     sessions,
		ledger:       ledger,
		conflicts:    conflicts,
		availability: availability,
		horizonWeeks: envutil.Int("SESSION_HORIZON_WEEKS", 4),
		sweepWorkers: envutil.Int("SESSION_SWEEP_WORKERS", 4),
	}
}

func (s *sessionService) GenerateForSchedule(ctx context.Context, scheduleID uuid.UUID, now time.Time) (int64, error) {
	sch, err := s.schedules.GetByID(ctx, nil, scheduleID)
	if err != nil {
		return 0, err
	}
	if sch == nil {
		return 0, fmt.Errorf("schedule %s: %w", scheduleID, apperrors.ErrNotFound)
	}
	if sch.Status != types.ScheduleActive {
		return 0, fmt.Errorf("schedule %s is %s, not active: %w", scheduleID, sch.Status, apperrors.ErrInvalidState)
	}
	return s.generate(ctx, sch, now)
}

func (s *sessionService) generate(ctx context.Context, sch *types.Schedule, now time.Time) (int64, error) {
	today := dateOnly(now)
	from := dateOnly(sch.StartDate)
	if today.After(from) {
		from = today
	}
	until := today.AddDate(0, 0, s.horizonWeeks*7)
	if sch.EndDate != nil {
		end := dateOnly(*sch.EndDate)
		if end.Before(until) {
			until = end
		}
	}
	if until.Before(from) {
		return 0, nil
	}

	rows := []*types.SessionInstance{}
	for i := range sch.Slots {
		slot := &sch.Slots[i]
		for d := from; !d.After(until); d = d.AddDate(0, 0, 1) {
			if timeutil.Weekday(d) != slot.DayOfWeek {
				continue
			}
			rows = append(rows, &types.SessionInstance{
				ID:             uuid.New(),
				ScheduleID:     sch.ID,
				ScheduleSlotID: slot.ID,
				SessionDate:    d,
				StartTime:      slot.StartTime,
				EndTime:        slot.EndTime,
				Status:         types.SessionPending,
			})
		}
	}
	inserted, err := s.sessions.CreateIfAbsent(ctx, nil, rows)
	if err != nil {
		return 0, err
	}
	if inserted > 0 {
		s.log.Info("generated session instances",
			"schedule_id", sch.ID, "inserted", inserted, "window_until", until.Format("2006-01-02"))
	}
	return inserted, nil
}

func (s *sessionService) GenerateUpcoming(ctx context.Context, now time.Time) (int64, error) {
	active, err := s.schedules.ListByStatus(ctx, nil, []string{types.ScheduleActive})
	if err != nil {
		return 0, err
	}
	var total int64
	for _, sch := range active {
		n, err := s.generate(ctx, sch, now)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *sessionService) CheckIn(ctx context.Context, instanceID uuid.UUID, actor string, at time.Time) (*types.SessionInstance, error) {
	inst, err := s.sessions.GetByID(ctx, nil, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("session %s: %w", instanceID, apperrors.ErrNotFound)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.sessions.TransitionStatus(ctx, tx, instanceID, types.SessionPending, types.SessionCompleted,
			map[string]interface{}{"checked_in_at": at})
		if err != nil {
			return err
		}
		if !won {
			return fmt.Errorf("session %s already resolved: %w", instanceID, apperrors.ErrInvalidState)
		}
		return s.appendLedger(ctx, tx, instanceID, types.CheckinActionCheckIn, actor, map[string]any{
			"checked_in_at": at.UTC().Format(time.RFC3339),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.sessions.GetByID(ctx, nil, instanceID)
}

func (s *sessionService) AutoMiss(ctx context.Context, instanceID uuid.UUID, now time.Time) (*types.SessionInstance, error) {
	inst, err := s.sessions.GetByID(ctx, nil, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("session %s: %w", instanceID, apperrors.ErrNotFound)
	}
	if !sessionElapsed(inst, now) {
		return nil, fmt.Errorf("session %s has not ended yet: %w", instanceID, apperrors.ErrInvalidState)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.sessions.TransitionStatus(ctx, tx, instanceID, types.SessionPending, types.SessionMissed, nil)
		if err != nil {
			return err
		}
		if !won {
			return fmt.Errorf("session %s already resolved: %w", instanceID, apperrors.ErrInvalidState)
		}
		return s.appendLedger(ctx, tx, instanceID, types.CheckinActionAutoMiss, "system", map[string]any{
			"swept_at": now.UTC().Format(time.RFC3339),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.sessions.GetByID(ctx, nil, instanceID)
}

func (s *sessionService) Reschedule(ctx context.Context, instanceID uuid.UUID, newDate time.Time, newStart, newEnd, actor string) (*types.SessionInstance, error) {
	inst, err := s.sessions.GetByID(ctx, nil, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("session %s: %w", instanceID, apperrors.ErrNotFound)
	}
	if inst.Status != types.SessionPending {
		return nil, fmt.Errorf("session %s is %s, not pending: %w", instanceID, inst.Status, apperrors.ErrInvalidState)
	}
	if inst.Schedule == nil {
		return nil, fmt.Errorf("session %s has no schedule: %w", instanceID, apperrors.ErrNotFound)
	}
	if !timeutil.ValidRange(newStart, newEnd) {
		return nil, fmt.Errorf("range %s-%s: %w", newStart, newEnd, apperrors.ErrInvalidArgument)
	}

	candidate := CandidateSlot{
		DayOfWeek: timeutil.Weekday(newDate),
		StartTime: newStart,
		EndTime:   newEnd,
	}
	report, err := s.conflicts.Detect(ctx, inst.Schedule.StudentID, candidate)
	if err != nil {
		return nil, err
	}
	if report.Verdict == VerdictReject {
		return nil, conflictError(candidate, report)
	}

	replacement := &types.SessionInstance{
		ID:              uuid.New(),
		ScheduleID:      inst.ScheduleID,
		ScheduleSlotID:  inst.ScheduleSlotID,
		SessionDate:     dateOnly(newDate),
		StartTime:       newStart,
		EndTime:         newEnd,
		Status:          types.SessionPending,
		RescheduledFrom: &inst.ID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The target date may already carry a generated occurrence of this
		// slot; surface that as a conflict instead of tripping the unique
		// index on (schedule_slot_id, session_date).
		occupant, err := s.sessions.GetBySlotDate(ctx, tx, inst.ScheduleSlotID, replacement.SessionDate)
		if err != nil {
			return err
		}
		if occupant != nil {
			return &apperrors.SchedulingConflictError{
				DayOfWeek: candidate.DayOfWeek,
				StartTime: newStart,
				EndTime:   newEnd,
				Courses:   []string{"an existing session on " + replacement.SessionDate.Format("2006-01-02")},
			}
		}
		won, err := s.sessions.TransitionStatus(ctx, tx, instanceID, types.SessionPending, types.SessionRescheduled,
			map[string]interface{}{"rescheduled_to": replacement.ID})
		if err != nil {
			return err
		}
		if !won {
			return fmt.Errorf("session %s already resolved: %w", instanceID, apperrors.ErrInvalidState)
		}
		if _, err := s.sessions.Create(ctx, tx, replacement); err != nil {
			return err
		}
		return s.appendLedger(ctx, tx, instanceID, types.CheckinActionReschedule, actor, map[string]any{
			"new_instance_id": replacement.ID.String(),
			"new_date":        replacement.SessionDate.Format("2006-01-02"),
			"new_start":       newStart,
			"new_end":         newEnd,
		})
	})
	if err != nil {
		return nil, err
	}
	return replacement, nil
}

func (s *sessionService) FindRescheduleSlots(ctx context.Context, instanceID uuid.UUID, daysAhead, limit int) ([]RescheduleSuggestion, error) {
	inst, err := s.sessions.GetByID(ctx, nil, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("session %s: %w", instanceID, apperrors.ErrNotFound)
	}
	if inst.Schedule == nil {
		return nil, fmt.Errorf("session %s has no schedule: %w", instanceID, apperrors.ErrNotFound)
	}
	start, err := timeutil.ParseClock(inst.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := timeutil.ParseClock(inst.EndTime)
	if err != nil {
		return nil, err
	}
	duration := end - start
	if daysAhead <= 0 {
		daysAhead = 7
	}
	if limit <= 0 {
		limit = 3
	}

	studentID := inst.Schedule.StudentID
	out := []RescheduleSuggestion{}
	from := dateOnly(inst.SessionDate).AddDate(0, 0, 1)
	for i := 0; i < daysAhead && len(out) < limit; i++ {
		d := from.AddDate(0, 0, i)
		day := timeutil.Weekday(d)
		windows, err := s.availability.WindowsFor(ctx, studentID, day)
		if err != nil {
			return nil, err
		}
		for _, w := range windows {
			if w.Preference == types.PreferenceAvoid {
				continue
			}
			ws, err := timeutil.ParseClock(w.StartTime)
			if err != nil {
				continue
			}
			we, err := timeutil.ParseClock(w.EndTime)
			if err != nil {
				continue
			}
			if we-ws < duration {
				continue
			}
			candidate := CandidateSlot{
				DayOfWeek: day,
				StartTime: timeutil.FormatClock(ws),
				EndTime:   timeutil.FormatClock(ws + duration),
			}
			report, err := s.conflicts.Detect(ctx, studentID, candidate)
			if err != nil {
				return nil, err
			}
			if report.Verdict != VerdictOK {
				continue
			}
			out = append(out, RescheduleSuggestion{
				Date:      d,
				DayOfWeek: day,
				StartTime: candidate.StartTime,
				EndTime:   candidate.EndTime,
			})
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *sessionService) SweepOverdue(ctx context.Context, now time.Time, autoReschedule bool) (int, int, error) {
	// Anything dated before today has certainly ended; same-day sessions are
	// re-checked against their end clock below.
	cutoff := dateOnly(now).AddDate(0, 0, 1)
	pending, err := s.sessions.ListPendingBefore(ctx, nil, cutoff, 0)
	if err != nil {
		return 0, 0, err
	}

	var (
		mu                  sync.Mutex
		missed, rescheduled int
	)
	count := func(m, r int) {
		mu.Lock()
		missed += m
		rescheduled += r
		mu.Unlock()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.sweepWorkers)

	for _, inst := range pending {
		inst := inst
		if !sessionElapsed(inst, now) {
			continue
		}
		g.Go(func() error {
			if autoReschedule {
				if suggestions, err := s.FindRescheduleSlots(gctx, inst.ID, 7, 1); err == nil && len(suggestions) > 0 {
					sug := suggestions[0]
					if _, err := s.Reschedule(gctx, inst.ID, sug.Date, sug.StartTime, sug.EndTime, "system"); err == nil {
						count(0, 1)
						return nil
					}
				}
			}
			if _, err := s.AutoMiss(gctx, inst.ID, now); err != nil {
				// A concurrent check-in resolving the session first is fine.
				s.log.Warn("auto-miss skipped", "session_instance_id", inst.ID, "error", err)
				return nil
			}
			count(1, 0)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return missed, rescheduled, err
	}
	return missed, rescheduled, nil
}

func (s *sessionService) ListForStudent(ctx context.Context, studentID uuid.UUID, from, to time.Time, statuses []string) ([]*types.SessionInstance, error) {
	if studentID == uuid.Nil {
		return nil, fmt.Errorf("missing student id: %w", apperrors.ErrInvalidArgument)
	}
	return s.sessions.ListByStudentRange(ctx, nil, studentID, dateOnly(from), dateOnly(to), statuses)
}

func (s *sessionService) Ledger(ctx context.Context, instanceID uuid.UUID) ([]*types.CheckinLogEntry, error) {
	return s.ledger.ListBySession(ctx, nil, instanceID)
}

func (s *sessionService) appendLedger(ctx context.Context, tx *gorm.DB, instanceID uuid.UUID, action, actor string, details map[string]any) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return err
	}
	_, err = s.ledger.Append(ctx, tx, &types.CheckinLogEntry{
		SessionInstanceID: instanceID,
		Action:            action,
		PerformedBy:       actor,
		Details:           datatypes.JSON(raw),
	})
	return err
}

func sessionElapsed(inst *types.SessionInstance, now time.Time) bool {
	end, err := timeutil.ParseClock(inst.EndTime)
	if err != nil {
		end = 24 * 60
	}
	return now.After(timeutil.DateAt(dateOnly(inst.SessionDate), end, time.UTC))
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/evlinhq/evlin-backend/internal/data/repos"
	types "github.com/evlinhq/evlin-backend/internal/domain"
	apperrors "github.com/evlinhq/evlin-backend/internal/pkg/errors"
	"github.com/evlinhq/evlin-backend/internal/pkg/timeutil"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
)

// SlotRequest is one requested weekly block in a proposal.
type SlotRequest struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Location  string `json:"location,omitempty"`
}

// ProposeInput carries everything a proposal needs. StartDate is optional;
// when zero the schedule starts on the next Monday.
type ProposeInput struct {
	StudentID  uuid.UUID
	CourseCode string
	Slots      []SlotRequest
	StartDate  time.Time
}

// ScheduleService drives the enrollment state machine:
// proposed → active → completed, with cancelled reachable from either
// non-terminal state.
type ScheduleService interface {
	// Propose gates on conflicts and prerequisites, then writes the schedule
	// and its slots atomically.
	Propose(ctx context.Context, in ProposeInput) (*types.Schedule, error)
	// Confirm re-checks every slot against other schedules to catch races
	// since proposal; a newly-active conflict fails with StaleConflict. The
	// status flip is guarded, so of two concurrent confirms exactly one wins
	// and the loser sees InvalidState. Activation triggers session
	// generation.
	Confirm(ctx context.Context, scheduleID uuid.UUID) (*types.Schedule, error)
	// Cancel is allowed from proposed or active; for active schedules every
	// future pending session is cancelled with a ledger entry.
	Cancel(ctx context.Context, scheduleID uuid.UUID, actor string) (*types.Schedule, error)
	// CompleteDue flips active schedules whose end date has passed.
	CompleteDue(ctx context.Context, now time.Time) (int, error)

	GetByID(ctx context.Context, scheduleID uuid.UUID) (*types.Schedule, error)
	ListForStudent(ctx context.Context, studentID uuid.UUID, statuses []string) ([]*types.Schedule, error)
}

type scheduleService struct {
	db        *gorm.DB
	log       *logger.Logger
	schedules repos.ScheduleRepo
	slots     repos.ScheduleSlotRepo
	courses   repos.CourseRepo
	sessions  repos.SessionInstanceRepo
	ledger    repos.CheckinLogRepo
	conflicts ConflictService
	prereqs   PrerequisiteService
	generator SessionService
}

func NewScheduleService(
	db *gorm.DB,
	log *logger.Logger,
	schedules repos.ScheduleRepo,
	slots repos.ScheduleSlotRepo,
	courses repos.CourseRepo,
	sessions repos.SessionInstanceRepo,
	ledger repos.CheckinLogRepo,
	conflicts ConflictService,
	prereqs PrerequisiteService,
	generator SessionService,
) ScheduleService {
	return &scheduleService{
		db:        db,
		log:       log.With("service", "ScheduleService"),
		schedules: schedules,
		slots:     slots,
		courses:   courses,
		sessions:  sessions,
		ledger:    ledger,
		conflicts: conflicts,
		prereqs:   prereqs,
		generator: generator,
	}
}

func (s *scheduleService) Propose(ctx context.Context, in ProposeInput) (*types.Schedule, error) {
	if in.StudentID == uuid.Nil || in.CourseCode == "" {
		return nil, fmt.Errorf("missing student or course: %w", apperrors.ErrInvalidArgument)
	}
	if len(in.Slots) == 0 {
		return nil, fmt.Errorf("proposal needs at least one slot: %w", apperrors.ErrInvalidArgument)
	}

	course, err := s.courses.GetByCode(ctx, nil, in.CourseCode)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, fmt.Errorf("course %s: %w", in.CourseCode, apperrors.ErrNotFound)
	}

	prereq, err := s.prereqs.PrerequisitesMet(ctx, in.StudentID, course)
	if err != nil {
		return nil, err
	}
	if !prereq.Met {
		return nil, &apperrors.PrerequisiteUnmetError{CourseCode: course.Code, Missing: prereq.Missing}
	}

	for _, slot := range in.Slots {
		candidate := CandidateSlot{DayOfWeek: slot.DayOfWeek, StartTime: slot.StartTime, EndTime: slot.EndTime}
		report, err := s.conflicts.Detect(ctx, in.StudentID, candidate)
		if err != nil {
			return nil, err
		}
		if report.Verdict == VerdictReject {
			return nil, conflictError(candidate, report)
		}
		if report.Verdict == VerdictWarn {
			s.log.Info("proposal slot accepted with warning",
				"student_id", in.StudentID,
				"course_code", course.Code,
				"day", timeutil.DayName(slot.DayOfWeek),
				"availability", report.Availability,
				"overlap_count", len(report.Overlaps))
		}
	}

	startDate := in.StartDate
	if startDate.IsZero() {
		startDate = time.Now().UTC()
	}
	startDate = timeutil.NextMonday(startDate.UTC())
	endDate := startDate.AddDate(0, 0, course.DurationWeeks*7)

	exists, err := s.schedules.ExistsForStart(ctx, nil, in.StudentID, course.ID, startDate)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("schedule for %s starting %s already exists: %w",
			course.Code, startDate.Format("2006-01-02"), apperrors.ErrInvalidState)
	}

	schedule := &types.Schedule{
		ID:        uuid.New(),
		StudentID: in.StudentID,
		CourseID:  course.ID,
		Status:    types.ScheduleProposed,
		StartDate: startDate,
		EndDate:   &endDate,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.schedules.Create(ctx, tx, schedule); err != nil {
			return err
		}
		rows := make([]*types.ScheduleSlot, 0, len(in.Slots))
		for _, slot := range in.Slots {
			location := slot.Location
			if location == "" {
				location = "Home"
			}
			rows = append(rows, &types.ScheduleSlot{
				ID:         uuid.New(),
				ScheduleID: schedule.ID,
				DayOfWeek:  slot.DayOfWeek,
				StartTime:  slot.StartTime,
				EndTime:    slot.EndTime,
				Location:   location,
			})
		}
		_, err := s.slots.Create(ctx, tx, rows)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("schedule proposed",
		"schedule_id", schedule.ID,
		"student_id", in.StudentID,
		"course_code", course.Code,
		"start_date", startDate.Format("2006-01-02"))
	return s.schedules.GetByID(ctx, nil, schedule.ID)
}

func (s *scheduleService) Confirm(ctx context.Context, scheduleID uuid.UUID) (*types.Schedule, error) {
	schedule, err := s.schedules.GetByID(ctx, nil, scheduleID)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, fmt.Errorf("schedule %s: %w", scheduleID, apperrors.ErrNotFound)
	}
	if schedule.Status != types.ScheduleProposed {
		return nil, fmt.Errorf("schedule %s is %s, not proposed: %w", scheduleID, schedule.Status, apperrors.ErrInvalidState)
	}

	for i := range schedule.Slots {
		slot := &schedule.Slots[i]
		candidate := CandidateSlot{DayOfWeek: slot.DayOfWeek, StartTime: slot.StartTime, EndTime: slot.EndTime}
		report, err := s.conflicts.DetectExcluding(ctx, schedule.StudentID, candidate, schedule.ID)
		if err != nil {
			return nil, err
		}
		if report.Verdict == VerdictReject {
			conflictErr := conflictError(candidate, report)
			return nil, fmt.Errorf("%v: %w", conflictErr, apperrors.ErrStaleConflict)
		}
	}

	won, err := s.schedules.TransitionStatus(ctx, nil, scheduleID, types.ScheduleProposed, types.ScheduleActive)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, fmt.Errorf("schedule %s no longer proposed: %w", scheduleID, apperrors.ErrInvalidState)
	}

	if _, err := s.generator.GenerateForSchedule(ctx, scheduleID, time.Now().UTC()); err != nil {
		// Activation stands; the periodic sweep regenerates what this missed.
		s.log.Error("session generation after activation failed", "schedule_id", scheduleID, "error", err)
	}

	s.log.Info("schedule confirmed", "schedule_id", scheduleID, "student_id", schedule.StudentID)
	return s.schedules.GetByID(ctx, nil, scheduleID)
}

func (s *scheduleService) Cancel(ctx context.Context, scheduleID uuid.UUID, actor string) (*types.Schedule, error) {
	schedule, err := s.schedules.GetByID(ctx, nil, scheduleID)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, fmt.Errorf("schedule %s: %w", scheduleID, apperrors.ErrNotFound)
	}
	if schedule.Terminal() {
		return nil, fmt.Errorf("schedule %s is already %s: %w", scheduleID, schedule.Status, apperrors.ErrInvalidState)
	}
	wasActive := schedule.Status == types.ScheduleActive

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.schedules.TransitionStatus(ctx, tx, scheduleID, schedule.Status, types.ScheduleCancelled)
		if err != nil {
			return err
		}
		if !won {
			return fmt.Errorf("schedule %s changed state concurrently: %w", scheduleID, apperrors.ErrInvalidState)
		}
		if !wasActive {
			return nil
		}

		instances, err := s.sessions.ListBySchedule(ctx, tx, scheduleID)
		if err != nil {
			return err
		}
		today := dateOnly(time.Now().UTC())
		for _, inst := range instances {
			if inst.Status != types.SessionPending || inst.SessionDate.Before(today) {
				continue
			}
			won, err := s.sessions.TransitionStatus(ctx, tx, inst.ID, types.SessionPending, types.SessionCancelled, nil)
			if err != nil {
				return err
			}
			if !won {
				continue
			}
			if err := appendCancelEntry(ctx, tx, s.ledger, inst.ID, actor, scheduleID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("schedule cancelled", "schedule_id", scheduleID, "was_active", wasActive)
	return s.schedules.GetByID(ctx, nil, scheduleID)
}

func (s *scheduleService) CompleteDue(ctx context.Context, now time.Time) (int, error) {
	active, err := s.schedules.ListByStatus(ctx, nil, []string{types.ScheduleActive})
	if err != nil {
		return 0, err
	}
	completed := 0
	today := dateOnly(now)
	for _, sch := range active {
		if sch.EndDate == nil || !dateOnly(*sch.EndDate).Before(today) {
			continue
		}
		won, err := s.schedules.TransitionStatus(ctx, nil, sch.ID, types.ScheduleActive, types.ScheduleCompleted)
		if err != nil {
			return completed, err
		}
		if won {
			completed++
			s.log.Info("schedule completed", "schedule_id", sch.ID, "end_date", sch.EndDate.Format("2006-01-02"))
		}
	}
	return completed, nil
}

func (s *scheduleService) GetByID(ctx context.Context, scheduleID uuid.UUID) (*types.Schedule, error) {
	schedule, err := s.schedules.GetByID(ctx, nil, scheduleID)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, fmt.Errorf("schedule %s: %w", scheduleID, apperrors.ErrNotFound)
	}
	return schedule, nil
}

func (s *scheduleService) ListForStudent(ctx context.Context, studentID uuid.UUID, statuses []string) ([]*types.Schedule, error) {
	if studentID == uuid.Nil {
		return nil, fmt.Errorf("missing student id: %w", apperrors.ErrInvalidArgument)
	}
	return s.schedules.ListByStudent(ctx, nil, studentID, statuses)
}

func conflictError(candidate CandidateSlot, report *ConflictReport) error {
	courses := make([]string, 0, len(report.Overlaps))
	for _, o := range report.Overlaps {
		name := o.CourseCode
		if name == "" {
			name = o.ScheduleID.String()
		}
		courses = append(courses, name)
	}
	if len(courses) == 0 {
		courses = append(courses, "declared availability ("+report.Availability+")")
	}
	return &apperrors.SchedulingConflictError{
		DayOfWeek: candidate.DayOfWeek,
		StartTime: candidate.StartTime,
		EndTime:   candidate.EndTime,
		Courses:   courses,
	}
}

func appendCancelEntry(ctx context.Context, tx *gorm.DB, ledger repos.CheckinLogRepo, instanceID uuid.UUID, actor string, scheduleID uuid.UUID) error {
	_, err := ledger.Append(ctx, tx, &types.CheckinLogEntry{
		SessionInstanceID: instanceID,
		Action:            types.CheckinActionCancel,
		PerformedBy:       actor,
		Details:           datatypes.JSON(fmt.Sprintf(`{"schedule_id":%q,"reason":"schedule cancelled"}`, scheduleID)),
	})
	return err
}

package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/evlinhq/evlin-backend/internal/data/repos"
	types "github.com/evlinhq/evlin-backend/internal/domain"
	apperrors "github.com/evlinhq/evlin-backend/internal/pkg/errors"
	"github.com/evlinhq/evlin-backend/internal/pkg/timeutil"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
)

const (
	VerdictOK     = "ok"
	VerdictWarn   = "warn"
	VerdictReject = "reject"
)

// CandidateSlot is a weekly time block under consideration, before any
// schedule owns it.
type CandidateSlot struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Overlap names one existing commitment the candidate collides with.
type Overlap struct {
	ScheduleID     uuid.UUID `json:"schedule_id"`
	ScheduleStatus string    `json:"schedule_status"`
	CourseCode     string    `json:"course_code"`
	CourseTitle    string    `json:"course_title"`
	DayOfWeek      int       `json:"day_of_week"`
	StartTime      string    `json:"start_time"`
	EndTime        string    `json:"end_time"`
}

// ConflictReport is the full detector output. Overlaps keep the stored slot
// ordering (start time ascending) so repeated calls are identical.
type ConflictReport struct {
	Overlaps     []Overlap `json:"overlaps"`
	Availability string    `json:"availability"`
	Verdict      string    `json:"verdict"`
}

// ConflictService classifies a candidate slot against everything already
// committed for a student on that weekday.
type ConflictService interface {
	// Detect is a pure function of stored state: overlap scan over active and
	// proposed schedules plus an availability classification, folded into an
	// ok/warn/reject verdict.
	Detect(ctx context.Context, studentID uuid.UUID, candidate CandidateSlot) (*ConflictReport, error)
	// DetectExcluding behaves like Detect but ignores slots of one schedule,
	// which is how confirmation re-checks a proposal against everyone else.
	DetectExcluding(ctx context.Context, studentID uuid.UUID, candidate CandidateSlot, excludeScheduleID uuid.UUID) (*ConflictReport, error)
}

type conflictService struct {
	db           *gorm.DB
	log          *logger.Logger
	slots        repos.ScheduleSlotRepo
	availability AvailabilityService
}

func NewConflictService(db *gorm.DB, log *logger.Logger, slots repos.ScheduleSlotRepo, availability AvailabilityService) ConflictService {
	return &conflictService{
		db:           db,
		log:          log.With("service", "ConflictService"),
		slots:        slots,
		availability: availability,
	}
}

func (s *conflictService) Detect(ctx context.Context, studentID uuid.UUID, candidate CandidateSlot) (*ConflictReport, error) {
	return s.DetectExcluding(ctx, studentID, candidate, uuid.Nil)
}

func (s *conflictService) DetectExcluding(ctx context.Context, studentID uuid.UUID, candidate CandidateSlot, excludeScheduleID uuid.UUID) (*ConflictReport, error) {
	if studentID == uuid.Nil {
		return nil, fmt.Errorf("missing student id: %w", apperrors.ErrInvalidArgument)
	}
	if !timeutil.ValidDay(candidate.DayOfWeek) {
		return nil, fmt.Errorf("day_of_week %d out of range: %w", candidate.DayOfWeek, apperrors.ErrInvalidArgument)
	}
	candStart, err := timeutil.ParseClock(candidate.StartTime)
	if err != nil {
		return nil, err
	}
	candEnd, err := timeutil.ParseClock(candidate.EndTime)
	if err != nil {
		return nil, err
	}
	if candEnd <= candStart {
		return nil, fmt.Errorf("empty candidate range %s-%s: %w", candidate.StartTime, candidate.EndTime, apperrors.ErrInvalidArgument)
	}

	existing, err := s.slots.ListForStudentDay(ctx, nil, studentID, candidate.DayOfWeek,
		[]string{types.ScheduleActive, types.ScheduleProposed})
	if err != nil {
		return nil, err
	}

	report := &ConflictReport{Overlaps: []Overlap{}}
	activeOverlap := false
	for _, e := range existing {
		if excludeScheduleID != uuid.Nil && e.ScheduleID == excludeScheduleID {
			continue
		}
		es, err := timeutil.ParseClock(e.Slot.StartTime)
		if err != nil {
			s.log.Warn("skipping malformed stored slot", "slot_id", e.Slot.ID, "error", err)
			continue
		}
		ee, err := timeutil.ParseClock(e.Slot.EndTime)
		if err != nil {
			s.log.Warn("skipping malformed stored slot", "slot_id", e.Slot.ID, "error", err)
			continue
		}
		if !timeutil.Overlaps(candStart, candEnd, es, ee) {
			continue
		}
		report.Overlaps = append(report.Overlaps, Overlap{
			ScheduleID:     e.ScheduleID,
			ScheduleStatus: e.ScheduleStatus,
			CourseCode:     e.CourseCode,
			CourseTitle:    e.CourseTitle,
			DayOfWeek:      e.Slot.DayOfWeek,
			StartTime:      e.Slot.StartTime,
			EndTime:        e.Slot.EndTime,
		})
		if e.ScheduleStatus == types.ScheduleActive {
			activeOverlap = true
		}
	}

	pref, err := s.availability.Classify(ctx, studentID, candidate.DayOfWeek, candidate.StartTime, candidate.EndTime)
	if err != nil {
		return nil, err
	}
	report.Availability = pref

	anyOverlap := len(report.Overlaps) > 0
	badAvailability := pref == types.PreferenceAvoid || pref == types.PreferenceUnspecified
	switch {
	case activeOverlap:
		report.Verdict = VerdictReject
	case anyOverlap && badAvailability:
		report.Verdict = VerdictReject
	case anyOverlap || badAvailability:
		report.Verdict = VerdictWarn
	default:
		report.Verdict = VerdictOK
	}
	return report, nil
}

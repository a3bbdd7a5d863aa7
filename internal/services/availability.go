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

// AvailabilityService is the availability index: recurring weekly windows per
// student plus classification of a candidate time range against them.
type AvailabilityService interface {
	// WindowsFor returns the student's windows for one weekday, ordered by
	// start time. Windows are not merged; callers interpret overlaps.
	WindowsFor(ctx context.Context, studentID uuid.UUID, dayOfWeek int) ([]*types.AvailabilityWindow, error)
	// Classify returns the preference of the most specific window fully
	// containing [start,end), or PreferenceUnspecified when no window does.
	// Partial overlap is deliberately unspecified: callers must treat it
	// conservatively.
	Classify(ctx context.Context, studentID uuid.UUID, dayOfWeek int, startTime, endTime string) (string, error)
	ListAll(ctx context.Context, studentID uuid.UUID) ([]*types.AvailabilityWindow, error)
	// SetWindows replaces the student's declared windows wholesale.
	SetWindows(ctx context.Context, studentID uuid.UUID, windows []*types.AvailabilityWindow) error
}

type availabilityService struct {
	db      *gorm.DB
	log     *logger.Logger
	windows repos.AvailabilityRepo
}

func NewAvailabilityService(db *gorm.DB, log *logger.Logger, windows repos.AvailabilityRepo) AvailabilityService {
	return &availabilityService{
		db:      db,
		log:     log.With("service", "AvailabilityService"),
		windows: windows,
	}
}

func (s *availabilityService) WindowsFor(ctx context.Context, studentID uuid.UUID, dayOfWeek int) ([]*types.AvailabilityWindow, error) {
	if !timeutil.ValidDay(dayOfWeek) {
		return nil, fmt.Errorf("day_of_week %d out of range: %w", dayOfWeek, apperrors.ErrInvalidArgument)
	}
	if studentID == uuid.Nil {
		return nil, fmt.Errorf("missing student id: %w", apperrors.ErrInvalidArgument)
	}
	return s.windows.ListByStudentDay(ctx, nil, studentID, dayOfWeek)
}

func (s *availabilityService) Classify(ctx context.Context, studentID uuid.UUID, dayOfWeek int, startTime, endTime string) (string, error) {
	start, err := timeutil.ParseClock(startTime)
	if err != nil {
		return "", err
	}
	end, err := timeutil.ParseClock(endTime)
	if err != nil {
		return "", err
	}
	if end <= start {
		return "", fmt.Errorf("empty time range %s-%s: %w", startTime, endTime, apperrors.ErrInvalidArgument)
	}

	windows, err := s.WindowsFor(ctx, studentID, dayOfWeek)
	if err != nil {
		return "", err
	}

	best := ""
	bestSpan := 0
	for _, w := range windows {
		ws, err := timeutil.ParseClock(w.StartTime)
		if err != nil {
			s.log.Warn("skipping malformed availability window", "window_id", w.ID, "error", err)
			continue
		}
		we, err := timeutil.ParseClock(w.EndTime)
		if err != nil {
			s.log.Warn("skipping malformed availability window", "window_id", w.ID, "error", err)
			continue
		}
		if !timeutil.Contains(ws, we, start, end) {
			continue
		}
		span := we - ws
		switch {
		case best == "", span < bestSpan:
			best, bestSpan = w.Preference, span
		case span == bestSpan && preferenceRank(w.Preference) > preferenceRank(best):
			best = w.Preference
		}
	}
	if best == "" {
		return types.PreferenceUnspecified, nil
	}
	return best, nil
}

func (s *availabilityService) ListAll(ctx context.Context, studentID uuid.UUID) ([]*types.AvailabilityWindow, error) {
	if studentID == uuid.Nil {
		return nil, fmt.Errorf("missing student id: %w", apperrors.ErrInvalidArgument)
	}
	return s.windows.ListByStudent(ctx, nil, studentID)
}

func (s *availabilityService) SetWindows(ctx context.Context, studentID uuid.UUID, windows []*types.AvailabilityWindow) error {
	if studentID == uuid.Nil {
		return fmt.Errorf("missing student id: %w", apperrors.ErrInvalidArgument)
	}
	for _, w := range windows {
		if !timeutil.ValidDay(w.DayOfWeek) {
			return fmt.Errorf("day_of_week %d out of range: %w", w.DayOfWeek, apperrors.ErrInvalidArgument)
		}
		if !timeutil.ValidRange(w.StartTime, w.EndTime) {
			return fmt.Errorf("window %s-%s on %s: %w", w.StartTime, w.EndTime, timeutil.DayName(w.DayOfWeek), apperrors.ErrInvalidArgument)
		}
		switch w.Preference {
		case types.PreferenceAvailable, types.PreferenceAvoid, types.PreferencePreferred:
		default:
			return fmt.Errorf("unknown preference %q: %w", w.Preference, apperrors.ErrInvalidArgument)
		}
		w.StudentID = studentID
		if w.ID == uuid.Nil {
			w.ID = uuid.New()
		}
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.windows.ReplaceForStudent(ctx, tx, studentID, windows)
	})
}

// Equal-span containing windows resolve toward the stronger signal so a
// declared avoid is never shadowed by a same-sized available block.
func preferenceRank(p string) int {
	switch p {
	case types.PreferenceAvoid:
		return 2
	case types.PreferencePreferred:
		return 1
	default:
		return 0
	}
}

package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/evlinhq/evlin-backend/internal/data/graph"
	"github.com/evlinhq/evlin-backend/internal/data/repos"
	types "github.com/evlinhq/evlin-backend/internal/domain"
	apperrors "github.com/evlinhq/evlin-backend/internal/pkg/errors"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
	"github.com/evlinhq/evlin-backend/internal/platform/neo4jdb"
)

const (
	PrereqSourceGraph    = "graph"
	PrereqSourceFallback = "fallback"
)

// PrereqResult reports whether a course can be scheduled for a student and
// which store answered. Missing codes keep catalog order.
type PrereqResult struct {
	Met     bool     `json:"met"`
	Missing []string `json:"missing"`
	Source  string   `json:"source"`
}

// PrerequisiteService resolves prerequisite satisfaction, preferring the
// graph store and degrading to the flat catalog list when it is unreachable.
// Both strategies check membership against the student's completed schedules
// and must agree on equivalent data; Source lets callers see degraded mode.
type PrerequisiteService interface {
	PrerequisitesMet(ctx context.Context, studentID uuid.UUID, course *types.Course) (*PrereqResult, error)
}

// prereqLister is the strategy seam: given a course, name its direct
// prerequisites or report the source as unusable.
type prereqLister interface {
	list(ctx context.Context, course *types.Course) ([]string, error)
	source() string
}

type prereqService struct {
	db        *gorm.DB
	log       *logger.Logger
	schedules repos.ScheduleRepo
	graphSide prereqLister
	flatSide  prereqLister
}

func NewPrerequisiteService(db *gorm.DB, log *logger.Logger, schedules repos.ScheduleRepo, graphClient *neo4jdb.Client) PrerequisiteService {
	return &prereqService{
		db:        db,
		log:       log.With("service", "PrerequisiteService"),
		schedules: schedules,
		graphSide: &graphPrereqLister{client: graphClient},
		flatSide:  &flatPrereqLister{},
	}
}

func (s *prereqService) PrerequisitesMet(ctx context.Context, studentID uuid.UUID, course *types.Course) (*PrereqResult, error) {
	if studentID == uuid.Nil || course == nil {
		return nil, fmt.Errorf("missing student or course: %w", apperrors.ErrInvalidArgument)
	}

	lister := s.graphSide
	codes, err := lister.list(ctx, course)
	if err != nil {
		s.log.Warn("graph prerequisite lookup degraded to catalog list",
			"course_code", course.Code, "error", err)
		lister = s.flatSide
		codes, err = lister.list(ctx, course)
		if err != nil {
			return nil, err
		}
	}

	if len(codes) == 0 {
		return &PrereqResult{Met: true, Missing: []string{}, Source: lister.source()}, nil
	}

	completed, err := s.completedCourseCodes(ctx, studentID)
	if err != nil {
		return nil, err
	}

	missing := []string{}
	for _, code := range codes {
		if !completed[code] {
			missing = append(missing, code)
		}
	}
	return &PrereqResult{
		Met:     len(missing) == 0,
		Missing: missing,
		Source:  lister.source(),
	}, nil
}

// completedCourseCodes collects course codes from the student's completed
// schedules. Only completed counts; active enrollment is not credit.
func (s *prereqService) completedCourseCodes(ctx context.Context, studentID uuid.UUID) (map[string]bool, error) {
	schedules, err := s.schedules.ListByStudent(ctx, nil, studentID, []string{types.ScheduleCompleted})
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(schedules))
	for _, sch := range schedules {
		if sch.Course != nil && sch.Course.Code != "" {
			out[sch.Course.Code] = true
		}
	}
	return out, nil
}

type graphPrereqLister struct {
	client *neo4jdb.Client
}

func (g *graphPrereqLister) list(ctx context.Context, course *types.Course) ([]string, error) {
	if !g.client.Available() {
		return nil, apperrors.ErrStorageUnavailable
	}
	return graph.PrerequisitesOf(ctx, g.client, course.Code)
}

func (g *graphPrereqLister) source() string { return PrereqSourceGraph }

type flatPrereqLister struct{}

func (f *flatPrereqLister) list(_ context.Context, course *types.Course) ([]string, error) {
	return course.PrerequisiteCodes(), nil
}

func (f *flatPrereqLister) source() string { return PrereqSourceFallback }

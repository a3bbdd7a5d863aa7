package services

import (
	"context"
	"errors"
	"testing"

	types "github.com/evlinhq/evlin-backend/internal/domain"
	apperrors "github.com/evlinhq/evlin-backend/internal/pkg/errors"
)

func TestPrerequisitesFallBackToCatalogList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Hana")
	env.addCourse(t, "MATH-5A", nil, 12)
	mathB := env.addCourse(t, "MATH-6A", []string{"MATH-5A"}, 12)

	// No graph client is configured, so resolution degrades to the flat
	// catalog list.
	res, err := env.prereqs.PrerequisitesMet(ctx, student.ID, mathB)
	if err != nil {
		t.Fatalf("prerequisites: %v", err)
	}
	if res.Met {
		t.Fatal("expected unmet prerequisites")
	}
	if len(res.Missing) != 1 || res.Missing[0] != "MATH-5A" {
		t.Fatalf("missing: got=%v want=[MATH-5A]", res.Missing)
	}
	if res.Source != PrereqSourceFallback {
		t.Fatalf("source: got=%q want=%q", res.Source, PrereqSourceFallback)
	}
}

func TestPrerequisitesOnlyCompletedCounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Ivan")
	mathA := env.addCourse(t, "MATH-5A", nil, 12)
	mathB := env.addCourse(t, "MATH-6A", []string{"MATH-5A"}, 12)

	// Active enrollment is not credit.
	sch := env.addSchedule(t, student.ID, mathA.ID, types.ScheduleActive, futureMonday(), 12,
		SlotRequest{DayOfWeek: 0, StartTime: "09:00", EndTime: "10:00"})

	res, err := env.prereqs.PrerequisitesMet(ctx, student.ID, mathB)
	if err != nil {
		t.Fatalf("prerequisites: %v", err)
	}
	if res.Met {
		t.Fatal("active enrollment must not satisfy a prerequisite")
	}

	won, err := env.scheduleRepo.TransitionStatus(ctx, nil, sch.ID, types.ScheduleActive, types.ScheduleCompleted)
	if err != nil || !won {
		t.Fatalf("complete schedule: won=%v err=%v", won, err)
	}

	res, err = env.prereqs.PrerequisitesMet(ctx, student.ID, mathB)
	if err != nil {
		t.Fatalf("prerequisites: %v", err)
	}
	if !res.Met {
		t.Fatalf("completed prerequisite must satisfy: missing=%v", res.Missing)
	}
	if len(res.Missing) != 0 {
		t.Fatalf("missing should be empty, got %v", res.Missing)
	}
}

func TestPrerequisitesNoPrereqsIsMet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Jade")
	course := env.addCourse(t, "ART-5A", nil, 8)

	res, err := env.prereqs.PrerequisitesMet(ctx, student.ID, course)
	if err != nil {
		t.Fatalf("prerequisites: %v", err)
	}
	if !res.Met {
		t.Fatal("course without prerequisites must be met")
	}
}

type stubLister struct {
	codes []string
	err   error
	name  string
}

func (s *stubLister) list(context.Context, *types.Course) ([]string, error) {
	return s.codes, s.err
}

func (s *stubLister) source() string { return s.name }

func TestPrerequisitesGraphAndFallbackAgree(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Kai")
	course := env.addCourse(t, "MATH-7A", []string{"MATH-6A"}, 14)

	svc := env.prereqs.(*prereqService)

	// Healthy graph: same codes as the catalog list.
	svc.graphSide = &stubLister{codes: []string{"MATH-6A"}, name: PrereqSourceGraph}
	fromGraph, err := svc.PrerequisitesMet(ctx, student.ID, course)
	if err != nil {
		t.Fatalf("graph side: %v", err)
	}
	if fromGraph.Source != PrereqSourceGraph {
		t.Fatalf("source: got=%q want=%q", fromGraph.Source, PrereqSourceGraph)
	}

	// Broken graph: the resolver switches strategy, not answers.
	svc.graphSide = &stubLister{err: apperrors.ErrStorageUnavailable, name: PrereqSourceGraph}
	fromFallback, err := svc.PrerequisitesMet(ctx, student.ID, course)
	if err != nil {
		t.Fatalf("fallback side: %v", err)
	}
	if fromFallback.Source != PrereqSourceFallback {
		t.Fatalf("source: got=%q want=%q", fromFallback.Source, PrereqSourceFallback)
	}

	if fromGraph.Met != fromFallback.Met {
		t.Fatalf("verdicts disagree: graph=%v fallback=%v", fromGraph.Met, fromFallback.Met)
	}
	if len(fromGraph.Missing) != len(fromFallback.Missing) {
		t.Fatalf("missing sets disagree: graph=%v fallback=%v", fromGraph.Missing, fromFallback.Missing)
	}
}

func TestPrerequisitesInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Lena")

	if _, err := env.prereqs.PrerequisitesMet(ctx, student.ID, nil); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("nil course: got %v, want ErrInvalidArgument", err)
	}
}

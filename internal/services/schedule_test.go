package services

import (
	"context"
	"errors"
	"testing"
	"time"

	types "github.com/evlinhq/evlin-backend/internal/domain"
	apperrors "github.com/evlinhq/evlin-backend/internal/pkg/errors"
)

func TestProposeSnapsToMondayAndPersistsSlots(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Mira")
	env.addCourse(t, "MATH-5A", nil, 12)

	monday := futureMonday()
	wednesday := monday.AddDate(0, 0, 2)

	sch, err := env.schedules.Propose(ctx, ProposeInput{
		StudentID:  student.ID,
		CourseCode: "MATH-5A",
		StartDate:  wednesday,
		Slots: []SlotRequest{
			{DayOfWeek: 0, StartTime: "09:00", EndTime: "10:00"},
			{DayOfWeek: 2, StartTime: "09:00", EndTime: "10:00"},
		},
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if sch.Status != types.ScheduleProposed {
		t.Fatalf("status: got=%q want=%q", sch.Status, types.ScheduleProposed)
	}

	wantStart := monday.AddDate(0, 0, 7)
	if !sch.StartDate.Equal(wantStart) {
		t.Fatalf("start date must snap to next Monday: got=%s want=%s", sch.StartDate, wantStart)
	}
	if sch.EndDate == nil || !sch.EndDate.Equal(wantStart.AddDate(0, 0, 12*7)) {
		t.Fatalf("end date: got=%v", sch.EndDate)
	}
	if len(sch.Slots) != 2 {
		t.Fatalf("slots: got=%d want=2", len(sch.Slots))
	}

	// Same course, same computed start date: rejected, not duplicated.
	_, err = env.schedules.Propose(ctx, ProposeInput{
		StudentID:  student.ID,
		CourseCode: "MATH-5A",
		StartDate:  wednesday,
		Slots:      []SlotRequest{{DayOfWeek: 4, StartTime: "09:00", EndTime: "10:00"}},
	})
	if !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("duplicate proposal: got %v, want ErrInvalidState", err)
	}
}

func TestProposeRejectsOnActiveConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Nia")
	busy := env.addCourse(t, "SCI-7A", nil, 14)
	env.addCourse(t, "MATH-5A", nil, 12)

	env.addSchedule(t, student.ID, busy.ID, types.ScheduleActive, futureMonday(), 14,
		SlotRequest{DayOfWeek: 0, StartTime: "14:00", EndTime: "15:00"})

	_, err := env.schedules.Propose(ctx, ProposeInput{
		StudentID:  student.ID,
		CourseCode: "MATH-5A",
		Slots:      []SlotRequest{{DayOfWeek: 0, StartTime: "14:30", EndTime: "15:30"}},
	})
	if !errors.Is(err, apperrors.ErrSchedulingConflict) {
		t.Fatalf("got %v, want ErrSchedulingConflict", err)
	}
	var conflictErr *apperrors.SchedulingConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("error must carry slot detail: %v", err)
	}
	if len(conflictErr.Courses) == 0 || conflictErr.Courses[0] != "SCI-7A" {
		t.Fatalf("conflict must name the colliding course: %+v", conflictErr)
	}
}

func TestProposePrerequisiteGate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Omar")
	mathA := env.addCourse(t, "MATH-5A", nil, 12)
	env.addCourse(t, "MATH-6A", []string{"MATH-5A"}, 12)

	_, err := env.schedules.Propose(ctx, ProposeInput{
		StudentID:  student.ID,
		CourseCode: "MATH-6A",
		Slots:      []SlotRequest{{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00"}},
	})
	if !errors.Is(err, apperrors.ErrPrerequisiteUnmet) {
		t.Fatalf("got %v, want ErrPrerequisiteUnmet", err)
	}
	var unmet *apperrors.PrerequisiteUnmetError
	if !errors.As(err, &unmet) || len(unmet.Missing) != 1 || unmet.Missing[0] != "MATH-5A" {
		t.Fatalf("unexpected unmet detail: %v", err)
	}

	// Complete the prerequisite and the same proposal goes through.
	env.addSchedule(t, student.ID, mathA.ID, types.ScheduleCompleted, futureMonday().AddDate(0, 0, -7*13), 12)

	sch, err := env.schedules.Propose(ctx, ProposeInput{
		StudentID:  student.ID,
		CourseCode: "MATH-6A",
		Slots:      []SlotRequest{{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00"}},
	})
	if err != nil {
		t.Fatalf("propose after completion: %v", err)
	}
	if sch.Status != types.ScheduleProposed {
		t.Fatalf("status: got=%q", sch.Status)
	}
}

func TestConfirmActivatesAndGeneratesSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Pia")
	env.addCourse(t, "ELA-5A", nil, 4)

	sch, err := env.schedules.Propose(ctx, ProposeInput{
		StudentID:  student.ID,
		CourseCode: "ELA-5A",
		Slots:      []SlotRequest{{DayOfWeek: 0, StartTime: "09:00", EndTime: "10:00"}},
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	confirmed, err := env.schedules.Confirm(ctx, sch.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != types.ScheduleActive {
		t.Fatalf("status: got=%q want=%q", confirmed.Status, types.ScheduleActive)
	}

	n, err := env.sessionRepo.CountBySchedule(ctx, nil, sch.ID, nil)
	if err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if n == 0 {
		t.Fatal("confirmation must generate session instances")
	}

	// A second confirm finds the schedule already active.
	if _, err := env.schedules.Confirm(ctx, sch.ID); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("double confirm: got %v, want ErrInvalidState", err)
	}
}

func TestConfirmCatchesStaleConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Quin")
	env.addCourse(t, "MATH-5A", nil, 12)
	rival := env.addCourse(t, "SCI-5A", nil, 10)

	sch, err := env.schedules.Propose(ctx, ProposeInput{
		StudentID:  student.ID,
		CourseCode: "MATH-5A",
		Slots:      []SlotRequest{{DayOfWeek: 2, StartTime: "10:00", EndTime: "11:00"}},
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	// Another schedule becomes active on the same block between proposal
	// and confirmation.
	env.addSchedule(t, student.ID, rival.ID, types.ScheduleActive, futureMonday(), 10,
		SlotRequest{DayOfWeek: 2, StartTime: "10:30", EndTime: "11:30"})

	_, err = env.schedules.Confirm(ctx, sch.ID)
	if !errors.Is(err, apperrors.ErrStaleConflict) {
		t.Fatalf("got %v, want ErrStaleConflict", err)
	}

	// The proposal survives the failed confirm; cancelling frees the block.
	cancelled, err := env.schedules.Cancel(ctx, sch.ID, "parent")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != types.ScheduleCancelled {
		t.Fatalf("status: got=%q", cancelled.Status)
	}
}

func TestCancelActiveCancelsFutureSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Rosa")
	env.addCourse(t, "HIST-6A", nil, 4)

	sch, err := env.schedules.Propose(ctx, ProposeInput{
		StudentID:  student.ID,
		CourseCode: "HIST-6A",
		Slots:      []SlotRequest{{DayOfWeek: 0, StartTime: "09:00", EndTime: "10:00"}},
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := env.schedules.Confirm(ctx, sch.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	instances, err := env.sessionRepo.ListBySchedule(ctx, nil, sch.ID)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(instances) == 0 {
		t.Fatal("expected generated sessions")
	}

	if _, err := env.schedules.Cancel(ctx, sch.ID, "parent"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	instances, err = env.sessionRepo.ListBySchedule(ctx, nil, sch.ID)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	for _, inst := range instances {
		if inst.Status != types.SessionCancelled {
			t.Fatalf("future session left %q after cancel", inst.Status)
		}
		entries, err := env.sessions.Ledger(ctx, inst.ID)
		if err != nil {
			t.Fatalf("ledger: %v", err)
		}
		if len(entries) != 1 || entries[0].Action != types.CheckinActionCancel {
			t.Fatalf("expected one cancel ledger entry, got %+v", entries)
		}
	}

	// Cancelling twice is a state error.
	if _, err := env.schedules.Cancel(ctx, sch.ID, "parent"); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("double cancel: got %v, want ErrInvalidState", err)
	}
}

func TestCompleteDueFlipsPastSchedules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Sef")
	course := env.addCourse(t, "ART-5A", nil, 8)

	past := time.Now().UTC().AddDate(0, 0, -10*7)
	ended := env.addSchedule(t, student.ID, course.ID, types.ScheduleActive, past, 8)
	running := env.addSchedule(t, student.ID, course.ID, types.ScheduleActive, futureMonday(), 8)

	n, err := env.schedules.CompleteDue(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("complete due: %v", err)
	}
	if n != 1 {
		t.Fatalf("completed: got=%d want=1", n)
	}

	got, err := env.schedules.GetByID(ctx, ended.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != types.ScheduleCompleted {
		t.Fatalf("ended schedule: got=%q", got.Status)
	}
	got, err = env.schedules.GetByID(ctx, running.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != types.ScheduleActive {
		t.Fatalf("running schedule must stay active, got=%q", got.Status)
	}
}

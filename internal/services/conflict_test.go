package services

import (
	"context"
	"testing"

	types "github.com/evlinhq/evlin-backend/internal/domain"
)

func TestDetectRejectsActiveOverlap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Ada")
	course := env.addCourse(t, "MATH-6A", nil, 12)

	env.addSchedule(t, student.ID, course.ID, types.ScheduleActive, futureMonday(), 12,
		SlotRequest{DayOfWeek: 0, StartTime: "14:00", EndTime: "15:00"})

	report, err := env.conflicts.Detect(ctx, student.ID, CandidateSlot{DayOfWeek: 0, StartTime: "14:30", EndTime: "15:30"})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if report.Verdict != VerdictReject {
		t.Fatalf("active overlap: got=%q want=%q", report.Verdict, VerdictReject)
	}
	if len(report.Overlaps) != 1 {
		t.Fatalf("expected 1 overlap, got %d", len(report.Overlaps))
	}
	ov := report.Overlaps[0]
	if ov.CourseCode != "MATH-6A" || ov.StartTime != "14:00" || ov.EndTime != "15:00" {
		t.Fatalf("overlap must name the colliding slot: %+v", ov)
	}
}

func TestDetectTouchingEndpointsDoNotCollide(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Ben")
	course := env.addCourse(t, "ELA-6A", nil, 12)

	env.addSchedule(t, student.ID, course.ID, types.ScheduleActive, futureMonday(), 12,
		SlotRequest{DayOfWeek: 1, StartTime: "14:00", EndTime: "15:00"})
	env.setWindows(t, student.ID,
		window(1, "08:00", "18:00", types.PreferenceAvailable))

	report, err := env.conflicts.Detect(ctx, student.ID, CandidateSlot{DayOfWeek: 1, StartTime: "15:00", EndTime: "16:00"})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(report.Overlaps) != 0 {
		t.Fatalf("touching endpoints must not overlap: %+v", report.Overlaps)
	}
	if report.Verdict != VerdictOK {
		t.Fatalf("got=%q want=%q", report.Verdict, VerdictOK)
	}
}

func TestDetectWarnsOnProposedOverlap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Cleo")
	course := env.addCourse(t, "SCI-7A", nil, 12)

	env.addSchedule(t, student.ID, course.ID, types.ScheduleProposed, futureMonday(), 12,
		SlotRequest{DayOfWeek: 2, StartTime: "10:00", EndTime: "11:00"})
	env.setWindows(t, student.ID,
		window(2, "08:00", "18:00", types.PreferenceAvailable))

	report, err := env.conflicts.Detect(ctx, student.ID, CandidateSlot{DayOfWeek: 2, StartTime: "10:30", EndTime: "11:30"})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if report.Verdict != VerdictWarn {
		t.Fatalf("proposed overlap in good availability: got=%q want=%q", report.Verdict, VerdictWarn)
	}
}

func TestDetectProposedOverlapInAvoidWindowRejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Dev")
	course := env.addCourse(t, "HIST-6A", nil, 12)

	env.addSchedule(t, student.ID, course.ID, types.ScheduleProposed, futureMonday(), 12,
		SlotRequest{DayOfWeek: 3, StartTime: "12:00", EndTime: "13:00"})
	env.setWindows(t, student.ID,
		window(3, "12:00", "14:00", types.PreferenceAvoid))

	report, err := env.conflicts.Detect(ctx, student.ID, CandidateSlot{DayOfWeek: 3, StartTime: "12:00", EndTime: "13:00"})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if report.Verdict != VerdictReject {
		t.Fatalf("overlap plus avoid availability: got=%q want=%q", report.Verdict, VerdictReject)
	}
	if report.Availability != types.PreferenceAvoid {
		t.Fatalf("availability: got=%q want=%q", report.Availability, types.PreferenceAvoid)
	}
}

func TestDetectAvoidWindowAloneWarns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Elif")

	env.setWindows(t, student.ID,
		window(4, "12:00", "14:00", types.PreferenceAvoid))

	report, err := env.conflicts.Detect(ctx, student.ID, CandidateSlot{DayOfWeek: 4, StartTime: "12:00", EndTime: "13:00"})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if report.Verdict != VerdictWarn {
		t.Fatalf("avoid without overlap: got=%q want=%q", report.Verdict, VerdictWarn)
	}

	// Unspecified availability also warns rather than blocking.
	report, err = env.conflicts.Detect(ctx, student.ID, CandidateSlot{DayOfWeek: 5, StartTime: "12:00", EndTime: "13:00"})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if report.Verdict != VerdictWarn {
		t.Fatalf("unspecified availability: got=%q want=%q", report.Verdict, VerdictWarn)
	}
}

func TestDetectIgnoresTerminalSchedules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Finn")
	course := env.addCourse(t, "ART-5A", nil, 8)

	env.addSchedule(t, student.ID, course.ID, types.ScheduleCancelled, futureMonday(), 8,
		SlotRequest{DayOfWeek: 0, StartTime: "09:00", EndTime: "10:00"})
	env.setWindows(t, student.ID,
		window(0, "08:00", "12:00", types.PreferenceAvailable))

	report, err := env.conflicts.Detect(ctx, student.ID, CandidateSlot{DayOfWeek: 0, StartTime: "09:00", EndTime: "10:00"})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if report.Verdict != VerdictOK {
		t.Fatalf("cancelled schedules must not collide: got=%q", report.Verdict)
	}
}

func TestDetectExcludingSkipsOwnSchedule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Gita")
	course := env.addCourse(t, "MATH-7A", nil, 14)

	own := env.addSchedule(t, student.ID, course.ID, types.ScheduleProposed, futureMonday(), 14,
		SlotRequest{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:30"})
	env.setWindows(t, student.ID,
		window(1, "08:00", "12:00", types.PreferenceAvailable))

	candidate := CandidateSlot{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:30"}
	report, err := env.conflicts.DetectExcluding(ctx, student.ID, candidate, own.ID)
	if err != nil {
		t.Fatalf("detect excluding: %v", err)
	}
	if report.Verdict != VerdictOK {
		t.Fatalf("own slots must be excluded: got=%q", report.Verdict)
	}
}

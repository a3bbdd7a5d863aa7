package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/evlinhq/evlin-backend/internal/domain"
	apperrors "github.com/evlinhq/evlin-backend/internal/pkg/errors"
)

// activeScheduleWithSession builds an active schedule with one weekly slot
// and a single pending instance on the given date.
func activeScheduleWithSession(t *testing.T, env *testEnv, studentID uuid.UUID, date time.Time, start, end string) (*types.Schedule, *types.SessionInstance) {
	t.Helper()
	course := env.addCourse(t, "CRS-"+uuid.NewString()[:8], nil, 12)
	day := (int(date.Weekday()) + 6) % 7
	sch := env.addSchedule(t, studentID, course.ID, types.ScheduleActive, date.AddDate(0, 0, -28), 12,
		SlotRequest{DayOfWeek: day, StartTime: start, EndTime: end})

	slots, err := env.slotRepo.ListBySchedule(context.Background(), nil, sch.ID)
	if err != nil || len(slots) != 1 {
		t.Fatalf("list slots: n=%d err=%v", len(slots), err)
	}
	inst := &types.SessionInstance{
		ID:             uuid.New(),
		ScheduleID:     sch.ID,
		ScheduleSlotID: slots[0].ID,
		SessionDate:    time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		StartTime:      start,
		EndTime:        end,
		Status:         types.SessionPending,
	}
	if _, err := env.sessionRepo.Create(context.Background(), nil, inst); err != nil {
		t.Fatalf("create instance: %v", err)
	}
	return sch, inst
}

func TestGenerateForScheduleIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Tara")
	course := env.addCourse(t, "MATH-5A", nil, 12)

	start := futureMonday()
	sch := env.addSchedule(t, student.ID, course.ID, types.ScheduleActive, start, 12,
		SlotRequest{DayOfWeek: 0, StartTime: "09:00", EndTime: "10:00"},
		SlotRequest{DayOfWeek: 3, StartTime: "13:00", EndTime: "14:00"})

	now := start.AddDate(0, 0, -3)
	first, err := env.sessions.GenerateForSchedule(ctx, sch.ID, now)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if first == 0 {
		t.Fatal("expected instances on first generation")
	}

	second, err := env.sessions.GenerateForSchedule(ctx, sch.ID, now)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if second != 0 {
		t.Fatalf("regeneration must insert nothing, got %d", second)
	}

	total, err := env.sessionRepo.CountBySchedule(ctx, nil, sch.ID, nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != first {
		t.Fatalf("count drifted: got=%d want=%d", total, first)
	}
}

func TestGenerateRequiresActiveSchedule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Uma")
	course := env.addCourse(t, "ELA-5A", nil, 12)

	sch := env.addSchedule(t, student.ID, course.ID, types.ScheduleProposed, futureMonday(), 12,
		SlotRequest{DayOfWeek: 0, StartTime: "09:00", EndTime: "10:00"})

	_, err := env.sessions.GenerateForSchedule(ctx, sch.ID, time.Now().UTC())
	if !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}
}

func TestCheckInIsGuardedAndLedgered(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Vik")
	today := time.Now().UTC()
	_, inst := activeScheduleWithSession(t, env, student.ID, today, "09:00", "10:00")

	at := time.Now().UTC()
	got, err := env.sessions.CheckIn(ctx, inst.ID, "parent", at)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if got.Status != types.SessionCompleted {
		t.Fatalf("status: got=%q want=%q", got.Status, types.SessionCompleted)
	}
	if got.CheckedInAt == nil {
		t.Fatal("checked_in_at must be recorded")
	}

	entries, err := env.sessions.Ledger(ctx, inst.ID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != types.CheckinActionCheckIn || entries[0].PerformedBy != "parent" {
		t.Fatalf("unexpected ledger: %+v", entries)
	}

	// A second check-in loses the guard.
	if _, err := env.sessions.CheckIn(ctx, inst.ID, "parent", at); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("double check-in: got %v, want ErrInvalidState", err)
	}
	entries, _ = env.sessions.Ledger(ctx, inst.ID)
	if len(entries) != 1 {
		t.Fatalf("failed check-in must not append: %d entries", len(entries))
	}
}

func TestAutoMissOnlyAfterSessionEnds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Wes")

	tomorrow := time.Now().UTC().AddDate(0, 0, 1)
	_, future := activeScheduleWithSession(t, env, student.ID, tomorrow, "09:00", "10:00")

	if _, err := env.sessions.AutoMiss(ctx, future.ID, time.Now().UTC()); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("unelapsed session: got %v, want ErrInvalidState", err)
	}

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	_, past := activeScheduleWithSession(t, env, student.ID, yesterday, "09:00", "10:00")

	got, err := env.sessions.AutoMiss(ctx, past.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("auto miss: %v", err)
	}
	if got.Status != types.SessionMissed {
		t.Fatalf("status: got=%q want=%q", got.Status, types.SessionMissed)
	}
	entries, err := env.sessions.Ledger(ctx, past.ID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != types.CheckinActionAutoMiss || entries[0].PerformedBy != "system" {
		t.Fatalf("unexpected ledger: %+v", entries)
	}
}

func TestRescheduleRetainsOriginalAndLinksReplacement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Xin")
	env.setWindows(t, student.ID,
		window(0, "08:00", "18:00", types.PreferenceAvailable),
		window(1, "08:00", "18:00", types.PreferenceAvailable),
	)

	date := futureMonday()
	_, inst := activeScheduleWithSession(t, env, student.ID, date, "09:00", "10:00")

	newDate := date.AddDate(0, 0, 1)
	replacement, err := env.sessions.Reschedule(ctx, inst.ID, newDate, "11:00", "12:00", "parent")
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if replacement.Status != types.SessionPending {
		t.Fatalf("replacement status: got=%q", replacement.Status)
	}
	if replacement.RescheduledFrom == nil || *replacement.RescheduledFrom != inst.ID {
		t.Fatalf("replacement must back-reference the original: %+v", replacement)
	}

	original, err := env.sessionRepo.GetByID(ctx, nil, inst.ID)
	if err != nil {
		t.Fatalf("get original: %v", err)
	}
	if original.Status != types.SessionRescheduled {
		t.Fatalf("original status: got=%q want=%q", original.Status, types.SessionRescheduled)
	}
	if original.RescheduledTo == nil || *original.RescheduledTo != replacement.ID {
		t.Fatalf("original must link forward: %+v", original)
	}

	entries, err := env.sessions.Ledger(ctx, inst.ID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != types.CheckinActionReschedule {
		t.Fatalf("unexpected ledger: %+v", entries)
	}

	// The replacement cannot be rescheduled into a conflicting block.
	busyCourse := env.addCourse(t, "BUSY-1", nil, 12)
	env.addSchedule(t, student.ID, busyCourse.ID, types.ScheduleActive, date, 12,
		SlotRequest{DayOfWeek: 2, StartTime: "09:00", EndTime: "10:00"})
	_, err = env.sessions.Reschedule(ctx, replacement.ID, date.AddDate(0, 0, 2), "09:30", "10:30", "parent")
	if !errors.Is(err, apperrors.ErrSchedulingConflict) {
		t.Fatalf("got %v, want ErrSchedulingConflict", err)
	}
}

func TestFindRescheduleSlotsHonorsAvailabilityAndConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Yara")

	// Tuesday is open, Wednesday is declared avoid.
	env.setWindows(t, student.ID,
		window(1, "09:00", "12:00", types.PreferenceAvailable),
		window(2, "09:00", "12:00", types.PreferenceAvoid),
	)

	date := futureMonday()
	_, inst := activeScheduleWithSession(t, env, student.ID, date, "09:00", "10:00")

	suggestions, err := env.sessions.FindRescheduleSlots(ctx, inst.ID, 7, 5)
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}
	if len(suggestions) == 0 {
		t.Fatal("expected at least one suggestion")
	}
	for _, sug := range suggestions {
		if sug.DayOfWeek == 2 {
			t.Fatalf("avoid window must not be suggested: %+v", sug)
		}
		if sug.DayOfWeek != 1 {
			t.Fatalf("only the declared open day qualifies: %+v", sug)
		}
	}
}

func TestSweepOverdueMissesElapsedPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Zoe")

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	_, overdue := activeScheduleWithSession(t, env, student.ID, yesterday, "09:00", "10:00")

	tomorrow := time.Now().UTC().AddDate(0, 0, 1)
	_, upcoming := activeScheduleWithSession(t, env, student.ID, tomorrow, "09:00", "10:00")

	missed, rescheduled, err := env.sessions.SweepOverdue(ctx, time.Now().UTC(), false)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if missed != 1 || rescheduled != 0 {
		t.Fatalf("sweep counts: missed=%d rescheduled=%d", missed, rescheduled)
	}

	got, err := env.sessionRepo.GetByID(ctx, nil, overdue.ID)
	if err != nil {
		t.Fatalf("get overdue: %v", err)
	}
	if got.Status != types.SessionMissed {
		t.Fatalf("overdue: got=%q want=%q", got.Status, types.SessionMissed)
	}
	got, err = env.sessionRepo.GetByID(ctx, nil, upcoming.ID)
	if err != nil {
		t.Fatalf("get upcoming: %v", err)
	}
	if got.Status != types.SessionPending {
		t.Fatalf("upcoming must stay pending, got=%q", got.Status)
	}
}

func TestRescheduleOntoGeneratedOccurrenceIsConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Zoe")
	env.setWindows(t, student.ID,
		window(0, "08:00", "18:00", types.PreferenceAvailable),
	)

	course := env.addCourse(t, "MATH-6A", nil, 12)
	start := futureMonday()
	sch := env.addSchedule(t, student.ID, course.ID, types.ScheduleActive, start, 12,
		SlotRequest{DayOfWeek: 0, StartTime: "09:00", EndTime: "10:00"})
	if _, err := env.sessions.GenerateForSchedule(ctx, sch.ID, start.AddDate(0, 0, -3)); err != nil {
		t.Fatalf("generate: %v", err)
	}

	instances, err := env.sessionRepo.ListBySchedule(ctx, nil, sch.ID)
	if err != nil || len(instances) < 2 {
		t.Fatalf("list instances: n=%d err=%v", len(instances), err)
	}
	first := instances[0]

	// Next Monday already carries a generated occurrence of this slot; the
	// move must come back as a conflict, not a constraint violation.
	_, err = env.sessions.Reschedule(ctx, first.ID, first.SessionDate.AddDate(0, 0, 7), "11:00", "12:00", "parent")
	if !errors.Is(err, apperrors.ErrSchedulingConflict) {
		t.Fatalf("got %v, want ErrSchedulingConflict", err)
	}

	// Nothing moved: the original is still pending and unledgered.
	original, err := env.sessionRepo.GetByID(ctx, nil, first.ID)
	if err != nil {
		t.Fatalf("get original: %v", err)
	}
	if original.Status != types.SessionPending || original.RescheduledTo != nil {
		t.Fatalf("original must be untouched: %+v", original)
	}
	entries, err := env.sessions.Ledger(ctx, first.ID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("unexpected ledger entries: %+v", entries)
	}
}

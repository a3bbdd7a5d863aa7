package services

import (
	"context"
	"errors"
	"testing"

	types "github.com/evlinhq/evlin-backend/internal/domain"
	apperrors "github.com/evlinhq/evlin-backend/internal/pkg/errors"
)

func TestClassifyMostSpecificWindowWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Maya")

	// A broad available day with a narrower avoid block inside it.
	env.setWindows(t, student.ID,
		window(0, "08:00", "18:00", types.PreferenceAvailable),
		window(0, "12:00", "13:00", types.PreferenceAvoid),
	)

	got, err := env.availability.Classify(ctx, student.ID, 0, "12:00", "13:00")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got != types.PreferenceAvoid {
		t.Fatalf("narrower window must win: got=%q want=%q", got, types.PreferenceAvoid)
	}

	got, err = env.availability.Classify(ctx, student.ID, 0, "09:00", "10:00")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got != types.PreferenceAvailable {
		t.Fatalf("outside the avoid block: got=%q want=%q", got, types.PreferenceAvailable)
	}
}

func TestClassifyPartialOverlapIsUnspecified(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Leo")

	env.setWindows(t, student.ID,
		window(2, "09:00", "11:00", types.PreferencePreferred),
	)

	// 10:30-11:30 pokes out of the declared window; no window contains it.
	got, err := env.availability.Classify(ctx, student.ID, 2, "10:30", "11:30")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got != types.PreferenceUnspecified {
		t.Fatalf("partial overlap: got=%q want=%q", got, types.PreferenceUnspecified)
	}

	// A day with no windows at all is also unspecified.
	got, err = env.availability.Classify(ctx, student.ID, 5, "10:00", "11:00")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got != types.PreferenceUnspecified {
		t.Fatalf("empty day: got=%q want=%q", got, types.PreferenceUnspecified)
	}
}

func TestClassifyEqualSpanPrefersStrongerSignal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Noor")

	env.setWindows(t, student.ID,
		window(3, "14:00", "16:00", types.PreferenceAvailable),
		window(3, "14:00", "16:00", types.PreferenceAvoid),
	)

	got, err := env.availability.Classify(ctx, student.ID, 3, "14:30", "15:30")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got != types.PreferenceAvoid {
		t.Fatalf("equal spans: got=%q want=%q", got, types.PreferenceAvoid)
	}
}

func TestSetWindowsValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Iris")

	cases := []struct {
		name string
		w    *types.AvailabilityWindow
	}{
		{"bad day", window(7, "09:00", "10:00", types.PreferenceAvailable)},
		{"inverted range", window(1, "11:00", "10:00", types.PreferenceAvailable)},
		{"empty range", window(1, "10:00", "10:00", types.PreferenceAvailable)},
		{"unknown preference", window(1, "09:00", "10:00", "maybe")},
	}
	for _, tc := range cases {
		err := env.availability.SetWindows(ctx, student.ID, []*types.AvailabilityWindow{tc.w})
		if !errors.Is(err, apperrors.ErrInvalidArgument) {
			t.Fatalf("%s: got %v, want ErrInvalidArgument", tc.name, err)
		}
	}
}

func TestSetWindowsReplacesWholesale(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Omar")

	env.setWindows(t, student.ID,
		window(0, "09:00", "12:00", types.PreferenceAvailable),
		window(1, "09:00", "12:00", types.PreferenceAvailable),
	)
	env.setWindows(t, student.ID,
		window(4, "13:00", "15:00", types.PreferencePreferred),
	)

	all, err := env.availability.ListAll(ctx, student.ID)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 window after replace, got %d", len(all))
	}
	if all[0].DayOfWeek != 4 || all[0].Preference != types.PreferencePreferred {
		t.Fatalf("unexpected surviving window: %+v", all[0])
	}

	if _, err := env.availability.WindowsFor(ctx, student.ID, 9); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("day 9: got %v, want ErrInvalidArgument", err)
	}
}

func TestSetWindowsPersistsEveryWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.addStudent(t, "Nora")

	env.setWindows(t, student.ID,
		window(0, "08:00", "10:00", types.PreferenceAvailable),
		window(0, "10:00", "12:00", types.PreferencePreferred),
		window(3, "14:00", "16:00", types.PreferenceAvoid),
	)

	all, err := env.availability.ListAll(ctx, student.ID)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected all 3 windows stored, got %d", len(all))
	}
	seen := map[string]bool{}
	for _, w := range all {
		if seen[w.ID.String()] {
			t.Fatalf("duplicate window id %s", w.ID)
		}
		seen[w.ID.String()] = true
	}
}

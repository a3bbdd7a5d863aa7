package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/evlinhq/evlin-backend/internal/data/repos"
	"github.com/evlinhq/evlin-backend/internal/data/testutil"
	types "github.com/evlinhq/evlin-backend/internal/domain"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
)

// testEnv wires the full service stack over a throwaway database. The graph
// and cache clients stay nil, which exercises the degraded paths the same
// way a bare deployment would.
type testEnv struct {
	db  *gorm.DB
	log *logger.Logger

	studentRepo  repos.StudentRepo
	courseRepo   repos.CourseRepo
	windowRepo   repos.AvailabilityRepo
	scheduleRepo repos.ScheduleRepo
	slotRepo     repos.ScheduleSlotRepo
	sessionRepo  repos.SessionInstanceRepo
	ledgerRepo   repos.CheckinLogRepo

	availability AvailabilityService
	conflicts    ConflictService
	prereqs      PrerequisiteService
	sessions     SessionService
	schedules    ScheduleService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.DB(t)
	log := testutil.Logger(t)

	env := &testEnv{
		db:           db,
		log:          log,
		studentRepo:  repos.NewStudentRepo(db, log),
		courseRepo:   repos.NewCourseRepo(db, log),
		windowRepo:   repos.NewAvailabilityRepo(db, log),
		scheduleRepo: repos.NewScheduleRepo(db, log),
		slotRepo:     repos.NewScheduleSlotRepo(db, log),
		sessionRepo:  repos.NewSessionInstanceRepo(db, log),
		ledgerRepo:   repos.NewCheckinLogRepo(db, log),
	}
	env.availability = NewAvailabilityService(db, log, env.windowRepo)
	env.conflicts = NewConflictService(db, log, env.slotRepo, env.availability)
	env.prereqs = NewPrerequisiteService(db, log, env.scheduleRepo, nil)
	env.sessions = NewSessionService(db, log, env.scheduleRepo, env.sessionRepo, env.ledgerRepo, env.conflicts, env.availability)
	env.schedules = NewScheduleService(db, log, env.scheduleRepo, env.slotRepo, env.courseRepo, env.sessionRepo, env.ledgerRepo, env.conflicts, env.prereqs, env.sessions)
	return env
}

func (e *testEnv) addStudent(t *testing.T, firstName string) *types.Student {
	t.Helper()
	student := &types.Student{
		ID:         uuid.New(),
		FirstName:  firstName,
		LastName:   "Tester",
		GradeLevel: 6,
	}
	if _, err := e.studentRepo.Create(context.Background(), nil, []*types.Student{student}); err != nil {
		t.Fatalf("create student: %v", err)
	}
	return student
}

func (e *testEnv) addCourse(t *testing.T, code string, prereqCodes []string, durationWeeks int) *types.Course {
	t.Helper()
	prereqs, err := json.Marshal(prereqCodes)
	if err != nil {
		t.Fatalf("marshal prerequisites: %v", err)
	}
	course := &types.Course{
		ID:            uuid.New(),
		Code:          code,
		Title:         "Course " + code,
		Subject:       "math",
		GradeLevelMin: 4,
		GradeLevelMax: 8,
		DurationWeeks: durationWeeks,
		HoursPerWeek:  3,
		Difficulty:    "standard",
		Prerequisites: datatypes.JSON(prereqs),
		Tags:          datatypes.JSON([]byte(`[]`)),
		IsActive:      true,
	}
	if _, err := e.courseRepo.Create(context.Background(), nil, []*types.Course{course}); err != nil {
		t.Fatalf("create course %s: %v", code, err)
	}
	return course
}

func (e *testEnv) setWindows(t *testing.T, studentID uuid.UUID, windows ...*types.AvailabilityWindow) {
	t.Helper()
	if err := e.availability.SetWindows(context.Background(), studentID, windows); err != nil {
		t.Fatalf("set windows: %v", err)
	}
}

func window(day int, start, end, preference string) *types.AvailabilityWindow {
	return &types.AvailabilityWindow{
		DayOfWeek:  day,
		StartTime:  start,
		EndTime:    end,
		Preference: preference,
	}
}

// addSchedule inserts a schedule with one slot directly, bypassing the
// proposal gates, for tests that need a fixture in a specific state.
func (e *testEnv) addSchedule(t *testing.T, studentID, courseID uuid.UUID, status string, startDate time.Time, weeks int, slots ...SlotRequest) *types.Schedule {
	t.Helper()
	endDate := startDate.AddDate(0, 0, weeks*7)
	schedule := &types.Schedule{
		ID:        uuid.New(),
		StudentID: studentID,
		CourseID:  courseID,
		Status:    status,
		StartDate: startDate,
		EndDate:   &endDate,
	}
	if _, err := e.scheduleRepo.Create(context.Background(), nil, schedule); err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	rows := make([]*types.ScheduleSlot, 0, len(slots))
	for _, s := range slots {
		rows = append(rows, &types.ScheduleSlot{
			ID:         uuid.New(),
			ScheduleID: schedule.ID,
			DayOfWeek:  s.DayOfWeek,
			StartTime:  s.StartTime,
			EndTime:    s.EndTime,
			Location:   "Home",
		})
	}
	if len(rows) > 0 {
		if _, err := e.slotRepo.Create(context.Background(), nil, rows); err != nil {
			t.Fatalf("create slots: %v", err)
		}
	}
	return schedule
}

// futureMonday returns a Monday at least a week out, so proposal snapping
// and session generation never collide with the current week.
func futureMonday() time.Time {
	d := time.Now().UTC().AddDate(0, 0, 8)
	for (int(d.Weekday())+6)%7 != 0 {
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

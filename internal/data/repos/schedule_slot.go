package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/evlinhq/evlin-backend/internal/domain"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
)

// StudentSlot is a slot joined with the status of its owning schedule, the
// unit the conflict detector enumerates.
type StudentSlot struct {
	Slot           *types.ScheduleSlot
	ScheduleID     uuid.UUID
	ScheduleStatus string
	CourseCode     string
	CourseTitle    string
}

type ScheduleSlotRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.ScheduleSlot) ([]*types.ScheduleSlot, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ScheduleSlot, error)
	ListBySchedule(ctx context.Context, tx *gorm.DB, scheduleID uuid.UUID) ([]*types.ScheduleSlot, error)
	// ListForStudentDay returns every slot on the given weekday whose owning
	// schedule is in one of the given statuses, ordered by start time.
	ListForStudentDay(ctx context.Context, tx *gorm.DB, studentID uuid.UUID, dayOfWeek int, statuses []string) ([]*StudentSlot, error)
}

type scheduleSlotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewScheduleSlotRepo(db *gorm.DB, baseLog *logger.Logger) ScheduleSlotRepo {
	return &scheduleSlotRepo{db: db, log: baseLog.With("repo", "ScheduleSlotRepo")}
}

func (r *scheduleSlotRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.ScheduleSlot) ([]*types.ScheduleSlot, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.ScheduleSlot{}, nil
	}
	if err := t.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *scheduleSlotRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ScheduleSlot, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.ScheduleSlot
	if err := t.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *scheduleSlotRepo) ListBySchedule(ctx context.Context, tx *gorm.DB, scheduleID uuid.UUID) ([]*types.ScheduleSlot, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.ScheduleSlot
	if scheduleID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(ctx).
		Where("schedule_id = ?", scheduleID).
		Order("day_of_week ASC, start_time ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *scheduleSlotRepo) ListForStudentDay(ctx context.Context, tx *gorm.DB, studentID uuid.UUID, dayOfWeek int, statuses []string) ([]*StudentSlot, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	out := []*StudentSlot{}
	if studentID == uuid.Nil || len(statuses) == 0 {
		return out, nil
	}

	var schedules []*types.Schedule
	if err := t.WithContext(ctx).
		Preload("Course").
		Where("student_id = ? AND status IN ?", studentID, statuses).
		Find(&schedules).Error; err != nil {
		return nil, err
	}
	if len(schedules) == 0 {
		return out, nil
	}
	byID := make(map[uuid.UUID]*types.Schedule, len(schedules))
	ids := make([]uuid.UUID, 0, len(schedules))
	for _, s := range schedules {
		byID[s.ID] = s
		ids = append(ids, s.ID)
	}

	var slots []*types.ScheduleSlot
	if err := t.WithContext(ctx).
		Where("schedule_id IN ? AND day_of_week = ?", ids, dayOfWeek).
		Order("start_time ASC, created_at ASC").
		Find(&slots).Error; err != nil {
		return nil, err
	}
	for _, slot := range slots {
		sch := byID[slot.ScheduleID]
		if sch == nil {
			continue
		}
		ss := &StudentSlot{
			Slot:           slot,
			ScheduleID:     sch.ID,
			ScheduleStatus: sch.Status,
		}
		if sch.Course != nil {
			ss.CourseCode = sch.Course.Code
			ss.CourseTitle = sch.Course.Title
		}
		out = append(out, ss)
	}
	return out, nil
}

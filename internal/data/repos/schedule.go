package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/evlinhq/evlin-backend/internal/domain"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
)

type ScheduleRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.Schedule) (*types.Schedule, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Schedule, error)
	ListByStudent(ctx context.Context, tx *gorm.DB, studentID uuid.UUID, statuses []string) ([]*types.Schedule, error)
	ListByStatus(ctx context.Context, tx *gorm.DB, statuses []string) ([]*types.Schedule, error)
	ExistsForStart(ctx context.Context, tx *gorm.DB, studentID, courseID uuid.UUID, startDate time.Time) (bool, error)
	// TransitionStatus flips status only when the row is still in `from`,
	// returning whether this caller won. Losers of a concurrent confirm see
	// false, never a double activation.
	TransitionStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to string) (bool, error)
}

type scheduleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewScheduleRepo(db *gorm.DB, baseLog *logger.Logger) ScheduleRepo {
	return &scheduleRepo{db: db, log: baseLog.With("repo", "ScheduleRepo")}
}

func (r *scheduleRepo) Create(ctx context.Context, tx *gorm.DB, row *types.Schedule) (*types.Schedule, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil, nil
	}
	if err := t.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *scheduleRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Schedule, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.Schedule
	if err := t.WithContext(ctx).
		Preload("Course").
		Preload("Slots").
		Where("id = ?", id).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *scheduleRepo) ListByStudent(ctx context.Context, tx *gorm.DB, studentID uuid.UUID, statuses []string) ([]*types.Schedule, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.Schedule
	if studentID == uuid.Nil {
		return out, nil
	}
	q := t.WithContext(ctx).
		Preload("Course").
		Preload("Slots").
		Where("student_id = ?", studentID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Order("start_date ASC, created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *scheduleRepo) ListByStatus(ctx context.Context, tx *gorm.DB, statuses []string) ([]*types.Schedule, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.Schedule
	if len(statuses) == 0 {
		return out, nil
	}
	if err := t.WithContext(ctx).
		Preload("Slots").
		Where("status IN ?", statuses).
		Order("start_date ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *scheduleRepo) ExistsForStart(ctx context.Context, tx *gorm.DB, studentID, courseID uuid.UUID, startDate time.Time) (bool, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var n int64
	if err := t.WithContext(ctx).
		Model(&types.Schedule{}).
		Where("student_id = ? AND course_id = ? AND start_date = ?", studentID, courseID, startDate).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *scheduleRepo) TransitionStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to string) (bool, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	res := t.WithContext(ctx).
		Model(&types.Schedule{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

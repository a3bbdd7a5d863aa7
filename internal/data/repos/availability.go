package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/evlinhq/evlin-backend/internal/domain"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
)

type AvailabilityRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.AvailabilityWindow) ([]*types.AvailabilityWindow, error)
	ListByStudent(ctx context.Context, tx *gorm.DB, studentID uuid.UUID) ([]*types.AvailabilityWindow, error)
	ListByStudentDay(ctx context.Context, tx *gorm.DB, studentID uuid.UUID, dayOfWeek int) ([]*types.AvailabilityWindow, error)
	ReplaceForStudent(ctx context.Context, tx *gorm.DB, studentID uuid.UUID, rows []*types.AvailabilityWindow) error
}

type availabilityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAvailabilityRepo(db *gorm.DB, baseLog *logger.Logger) AvailabilityRepo {
	return &availabilityRepo{db: db, log: baseLog.With("repo", "AvailabilityRepo")}
}

func (r *availabilityRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.AvailabilityWindow) ([]*types.AvailabilityWindow, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.AvailabilityWindow{}, nil
	}
	if err := t.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *availabilityRepo) ListByStudent(ctx context.Context, tx *gorm.DB, studentID uuid.UUID) ([]*types.AvailabilityWindow, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.AvailabilityWindow
	if studentID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("day_of_week ASC, start_time ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *availabilityRepo) ListByStudentDay(ctx context.Context, tx *gorm.DB, studentID uuid.UUID, dayOfWeek int) ([]*types.AvailabilityWindow, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.AvailabilityWindow
	if studentID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(ctx).
		Where("student_id = ? AND day_of_week = ?", studentID, dayOfWeek).
		Order("start_time ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *availabilityRepo) ReplaceForStudent(ctx context.Context, tx *gorm.DB, studentID uuid.UUID, rows []*types.AvailabilityWindow) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if studentID == uuid.Nil {
		return nil
	}
	return t.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		if err := inner.Where("student_id = ?", studentID).Delete(&types.AvailabilityWindow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return inner.Create(&rows).Error
	})
}

package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/evlinhq/evlin-backend/internal/domain"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
)

type SessionInstanceRepo interface {
	// CreateIfAbsent inserts the given instances, silently skipping any row
	// whose (schedule_slot_id, session_date) already exists. Returns the
	// number of rows actually inserted.
	CreateIfAbsent(ctx context.Context, tx *gorm.DB, rows []*types.SessionInstance) (int64, error)
	Create(ctx context.Context, tx *gorm.DB, row *types.SessionInstance) (*types.SessionInstance, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.SessionInstance, error)
	// GetBySlotDate returns the instance occupying (slot, date), nil when the
	// date is free. Writers consult it before inserting into the unique pair.
	GetBySlotDate(ctx context.Context, tx *gorm.DB, slotID uuid.UUID, date time.Time) (*types.SessionInstance, error)
	ListBySchedule(ctx context.Context, tx *gorm.DB, scheduleID uuid.UUID) ([]*types.SessionInstance, error)
	ListByStudentRange(ctx context.Context, tx *gorm.DB, studentID uuid.UUID, from, to time.Time, statuses []string) ([]*types.SessionInstance, error)
	// ListPendingBefore returns pending instances dated strictly before the
	// cutoff, across all students. The auto-miss sweep feeds on this.
	ListPendingBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]*types.SessionInstance, error)
	CountBySchedule(ctx context.Context, tx *gorm.DB, scheduleID uuid.UUID, statuses []string) (int64, error)
	// TransitionStatus moves the instance from one status to another only if
	// it is still in the expected status. Returns whether this caller won.
	TransitionStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to string, extra map[string]interface{}) (bool, error)
	Update(ctx context.Context, tx *gorm.DB, row *types.SessionInstance) (*types.SessionInstance, error)
}

type sessionInstanceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionInstanceRepo(db *gorm.DB, baseLog *logger.Logger) SessionInstanceRepo {
	return &sessionInstanceRepo{db: db, log: baseLog.With("repo", "SessionInstanceRepo")}
}

func (r *sessionInstanceRepo) CreateIfAbsent(ctx context.Context, tx *gorm.DB, rows []*types.SessionInstance) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return 0, nil
	}
	res := t.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "schedule_slot_id"}, {Name: "session_date"}},
			DoNothing: true,
		}).
		Create(&rows)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *sessionInstanceRepo) Create(ctx context.Context, tx *gorm.DB, row *types.SessionInstance) (*types.SessionInstance, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if err := t.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *sessionInstanceRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.SessionInstance, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.SessionInstance
	if err := t.WithContext(ctx).
		Preload("Schedule").
		Preload("ScheduleSlot").
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

func (r *sessionInstanceRepo) GetBySlotDate(ctx context.Context, tx *gorm.DB, slotID uuid.UUID, date time.Time) (*types.SessionInstance, error) {
	if slotID == uuid.Nil {
		return nil, nil
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.SessionInstance
	if err := t.WithContext(ctx).
		Where("schedule_slot_id = ? AND session_date = ?", slotID, date).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *sessionInstanceRepo) ListBySchedule(ctx context.Context, tx *gorm.DB, scheduleID uuid.UUID) ([]*types.SessionInstance, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	out := []*types.SessionInstance{}
	if scheduleID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(ctx).
		Where("schedule_id = ?", scheduleID).
		Order("session_date ASC, start_time ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessionInstanceRepo) ListByStudentRange(ctx context.Context, tx *gorm.DB, studentID uuid.UUID, from, to time.Time, statuses []string) ([]*types.SessionInstance, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	out := []*types.SessionInstance{}
	if studentID == uuid.Nil {
		return out, nil
	}
	q := t.WithContext(ctx).
		Preload("Schedule").
		Preload("Schedule.Course").
		Joins("JOIN schedules ON schedules.id = session_instances.schedule_id").
		Where("schedules.student_id = ?", studentID).
		Where("session_instances.session_date >= ? AND session_instances.session_date <= ?", from, to)
	if len(statuses) > 0 {
		q = q.Where("session_instances.status IN ?", statuses)
	}
	if err := q.Order("session_instances.session_date ASC, session_instances.start_time ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessionInstanceRepo) ListPendingBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]*types.SessionInstance, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	out := []*types.SessionInstance{}
	q := t.WithContext(ctx).
		Where("status = ? AND session_date < ?", types.SessionPending, cutoff).
		Order("session_date ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessionInstanceRepo) CountBySchedule(ctx context.Context, tx *gorm.DB, scheduleID uuid.UUID, statuses []string) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if scheduleID == uuid.Nil {
		return 0, nil
	}
	var n int64
	q := t.WithContext(ctx).
		Model(&types.SessionInstance{}).
		Where("schedule_id = ?", scheduleID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *sessionInstanceRepo) TransitionStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to string, extra map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	t := tx
	if t == nil {
		t = r.db
	}
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := t.WithContext(ctx).
		Model(&types.SessionInstance{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *sessionInstanceRepo) Update(ctx context.Context, tx *gorm.DB, row *types.SessionInstance) (*types.SessionInstance, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if err := t.WithContext(ctx).Save(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/evlinhq/evlin-backend/internal/domain"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
)

// CheckinLogRepo is append-only. There is deliberately no update or delete.
type CheckinLogRepo interface {
	Append(ctx context.Context, tx *gorm.DB, entry *types.CheckinLogEntry) (*types.CheckinLogEntry, error)
	ListBySession(ctx context.Context, tx *gorm.DB, sessionInstanceID uuid.UUID) ([]*types.CheckinLogEntry, error)
}

type checkinLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCheckinLogRepo(db *gorm.DB, baseLog *logger.Logger) CheckinLogRepo {
	return &checkinLogRepo{db: db, log: baseLog.With("repo", "CheckinLogRepo")}
}

func (r *checkinLogRepo) Append(ctx context.Context, tx *gorm.DB, entry *types.CheckinLogEntry) (*types.CheckinLogEntry, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if err := t.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *checkinLogRepo) ListBySession(ctx context.Context, tx *gorm.DB, sessionInstanceID uuid.UUID) ([]*types.CheckinLogEntry, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	out := []*types.CheckinLogEntry{}
	if sessionInstanceID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(ctx).
		Where("session_instance_id = ?", sessionInstanceID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

package repos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/evlinhq/evlin-backend/internal/domain"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
)

type ConversationRepo interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.AgentConversation, error)
	// GetOrCreate returns the conversation for the student+agent pair,
	// creating an empty one when none exists.
	GetOrCreate(ctx context.Context, tx *gorm.DB, studentID *uuid.UUID, agentType string) (*types.AgentConversation, error)
	AppendTurns(ctx context.Context, tx *gorm.DB, id uuid.UUID, turns []types.ConversationTurn) (*types.AgentConversation, error)
	SetSummary(ctx context.Context, tx *gorm.DB, id uuid.UUID, summary string) error
}

type conversationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationRepo(db *gorm.DB, baseLog *logger.Logger) ConversationRepo {
	return &conversationRepo{db: db, log: baseLog.With("repo", "ConversationRepo")}
}

func (r *conversationRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.AgentConversation, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.AgentConversation
	if err := t.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *conversationRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, studentID *uuid.UUID, agentType string) (*types.AgentConversation, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	q := t.WithContext(ctx).Where("agent_type = ?", agentType)
	if studentID != nil && *studentID != uuid.Nil {
		q = q.Where("student_id = ?", *studentID)
	} else {
		q = q.Where("student_id IS NULL")
	}
	var out []*types.AgentConversation
	if err := q.Order("created_at DESC").Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) > 0 {
		return out[0], nil
	}
	conv := &types.AgentConversation{
		ID:        uuid.New(),
		StudentID: studentID,
		AgentType: agentType,
		Messages:  datatypes.JSON([]byte("[]")),
	}
	if err := t.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *conversationRepo) AppendTurns(ctx context.Context, tx *gorm.DB, id uuid.UUID, turns []types.ConversationTurn) (*types.AgentConversation, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	conv, err := r.GetByID(ctx, t, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, gorm.ErrRecordNotFound
	}
	existing := []types.ConversationTurn{}
	if len(conv.Messages) > 0 {
		if err := json.Unmarshal(conv.Messages, &existing); err != nil {
			r.log.Warn("resetting unreadable conversation log", "conversation_id", id, "error", err)
			existing = []types.ConversationTurn{}
		}
	}
	existing = append(existing, turns...)
	raw, err := json.Marshal(existing)
	if err != nil {
		return nil, err
	}
	conv.Messages = datatypes.JSON(raw)
	conv.UpdatedAt = time.Now().UTC()
	if err := t.WithContext(ctx).Save(conv).Error; err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *conversationRepo) SetSummary(ctx context.Context, tx *gorm.DB, id uuid.UUID, summary string) error {
	if id == uuid.Nil {
		return gorm.ErrRecordNotFound
	}
	t := tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctx).
		Model(&types.AgentConversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"summary": summary, "updated_at": time.Now().UTC()}).Error
}

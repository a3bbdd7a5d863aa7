package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	TurnRoleUser      = "user"
	TurnRoleAssistant = "assistant"
	TurnRoleTool      = "tool"
)

// ConversationTurn is one entry in the flat turn log. Tool turns carry the
// structured invocation and its result alongside any text.
type ConversationTurn struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolArgs   map[string]any `json:"tool_args,omitempty"`
	ToolResult string         `json:"tool_result,omitempty"`
	ToolError  string         `json:"tool_error,omitempty"`
	At         time.Time      `json:"at"`
}

// AgentConversation is the persisted turn log for one student and one agent
// type. The orchestration loop owns it for the duration of a session and only
// ever appends.
type AgentConversation struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID *uuid.UUID `gorm:"type:uuid;index" json:"student_id,omitempty"`
	Student   *Student   `gorm:"constraint:OnDelete:SET NULL;foreignKey:StudentID;references:ID" json:"student,omitempty"`

	AgentType string         `gorm:"column:agent_type;not null;index" json:"agent_type"`
	Messages  datatypes.JSON `gorm:"column:messages;type:jsonb" json:"messages"`
	Summary   string         `gorm:"column:summary;type:text" json:"summary,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (AgentConversation) TableName() string { return "agent_conversations" }

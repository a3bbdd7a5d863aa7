package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	SessionPending     = "pending"
	SessionCompleted   = "completed"
	SessionMissed      = "missed"
	SessionRescheduled = "rescheduled"
	SessionCancelled   = "cancelled"
)

// SessionInstance is one concrete dated occurrence of a ScheduleSlot. The
// (schedule_slot_id, session_date) uniqueness is what makes regeneration
// idempotent. RescheduledFrom/RescheduledTo are back-references between an
// original and its replacement — never ownership; the original is retained
// for audit.
type SessionInstance struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	ScheduleID     uuid.UUID     `gorm:"type:uuid;not null;index" json:"schedule_id"`
	Schedule       *Schedule     `gorm:"constraint:OnDelete:CASCADE;foreignKey:ScheduleID;references:ID" json:"schedule,omitempty"`
	ScheduleSlotID uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_session_slot_date" json:"schedule_slot_id"`
	ScheduleSlot   *ScheduleSlot `gorm:"foreignKey:ScheduleSlotID;references:ID" json:"schedule_slot,omitempty"`

	SessionDate time.Time `gorm:"column:session_date;type:date;not null;uniqueIndex:idx_session_slot_date;index" json:"session_date"`
	StartTime   string    `gorm:"column:start_time;type:varchar(5);not null" json:"start_time"`
	EndTime     string    `gorm:"column:end_time;type:varchar(5);not null" json:"end_time"`

	Status          string     `gorm:"column:status;not null;default:'pending';index" json:"status"`
	CheckedInAt     *time.Time `gorm:"column:checked_in_at" json:"checked_in_at,omitempty"`
	RescheduledFrom *uuid.UUID `gorm:"column:rescheduled_from;type:uuid" json:"rescheduled_from,omitempty"`
	RescheduledTo   *uuid.UUID `gorm:"column:rescheduled_to;type:uuid" json:"rescheduled_to,omitempty"`
	Notes           string     `gorm:"column:notes;type:text" json:"notes,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (SessionInstance) TableName() string { return "session_instances" }

func (s *SessionInstance) Resolved() bool { return s.Status != SessionPending }

package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	CheckinActionCheckIn    = "check_in"
	CheckinActionAutoMiss   = "auto_miss"
	CheckinActionReschedule = "reschedule"
	CheckinActionCancel     = "cancel"
)

// CheckinLogEntry is the append-only audit record for session transitions.
// Rows are write-once: no repo exposes an update or delete for them.
type CheckinLogEntry struct {
	ID                uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	SessionInstanceID uuid.UUID        `gorm:"type:uuid;not null;index" json:"session_instance_id"`
	SessionInstance   *SessionInstance `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionInstanceID;references:ID" json:"session_instance,omitempty"`

	Action      string         `gorm:"column:action;not null;index" json:"action"`
	PerformedBy string         `gorm:"column:performed_by" json:"performed_by,omitempty"`
	Details     datatypes.JSON `gorm:"column:details;type:jsonb" json:"details"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (CheckinLogEntry) TableName() string { return "checkin_log_entries" }

package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	PreferenceAvailable = "available"
	PreferenceAvoid     = "avoid"
	PreferencePreferred = "preferred"
	// PreferenceUnspecified is never stored; Classify returns it when no
	// window fully contains the asked-about range.
	PreferenceUnspecified = "unspecified"
)

// AvailabilityWindow is one recurring weekly availability block. Windows on
// the same day may overlap; interpreting overlaps is a detector concern, not
// a storage constraint.
type AvailabilityWindow struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID uuid.UUID `gorm:"type:uuid;not null;index:idx_availability_student_day" json:"student_id"`
	Student   *Student  `gorm:"constraint:OnDelete:CASCADE;foreignKey:StudentID;references:ID" json:"student,omitempty"`

	DayOfWeek  int    `gorm:"column:day_of_week;not null;index:idx_availability_student_day" json:"day_of_week"`
	StartTime  string `gorm:"column:start_time;type:varchar(5);not null" json:"start_time"`
	EndTime    string `gorm:"column:end_time;type:varchar(5);not null" json:"end_time"`
	Preference string `gorm:"column:preference;not null;default:'available'" json:"preference"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (AvailabilityWindow) TableName() string { return "availability_windows" }

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Course is immutable reference data relative to scheduling. The graph store
// may hold an equivalent node plus PREREQUISITE_FOR / RELATED_TO edges; the
// flat Prerequisites column is the fallback source of the same facts.
type Course struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Code          string         `gorm:"column:code;uniqueIndex;not null" json:"code"`
	Title         string         `gorm:"column:title;not null" json:"title"`
	Subject       string         `gorm:"column:subject;not null;index" json:"subject"`
	GradeLevelMin int            `gorm:"column:grade_level_min;not null" json:"grade_level_min"`
	GradeLevelMax int            `gorm:"column:grade_level_max;not null" json:"grade_level_max"`
	Description   string         `gorm:"column:description;type:text" json:"description,omitempty"`
	DurationWeeks int            `gorm:"column:duration_weeks;not null;default:12" json:"duration_weeks"`
	HoursPerWeek  float64        `gorm:"column:hours_per_week;not null;default:3" json:"hours_per_week"`
	Difficulty    string         `gorm:"column:difficulty;not null;default:'standard'" json:"difficulty"`
	Prerequisites datatypes.JSON `gorm:"column:prerequisites;type:jsonb" json:"prerequisites"`
	Tags          datatypes.JSON `gorm:"column:tags;type:jsonb" json:"tags"`
	IsActive      bool           `gorm:"column:is_active;not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Course) TableName() string { return "courses" }

// PrerequisiteCodes decodes the flat prerequisite list, preserving order.
func (c *Course) PrerequisiteCodes() []string {
	var out []string
	if len(c.Prerequisites) == 0 {
		return out
	}
	_ = json.Unmarshal(c.Prerequisites, &out)
	return out
}

func (c *Course) TagList() []string {
	var out []string
	if len(c.Tags) == 0 {
		return out
	}
	_ = json.Unmarshal(c.Tags, &out)
	return out
}

func (c *Course) FitsGrade(grade int) bool {
	return c.GradeLevelMin <= grade && grade <= c.GradeLevelMax
}

package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ScheduleProposed  = "proposed"
	ScheduleActive    = "active"
	ScheduleCompleted = "completed"
	ScheduleCancelled = "cancelled"
)

// Schedule is one student-course enrollment. The (student, course, start_date)
// uniqueness makes re-proposing the same course+date a rejection, not a
// duplicate.
type Schedule struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_schedule_student_course_start;index" json:"student_id"`
	Student   *Student  `gorm:"constraint:OnDelete:CASCADE;foreignKey:StudentID;references:ID" json:"student,omitempty"`
	CourseID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_schedule_student_course_start;index" json:"course_id"`
	Course    *Course   `gorm:"foreignKey:CourseID;references:ID" json:"course,omitempty"`

	Status    string     `gorm:"column:status;not null;default:'proposed';index" json:"status"`
	StartDate time.Time  `gorm:"column:start_date;type:date;not null;uniqueIndex:idx_schedule_student_course_start" json:"start_date"`
	EndDate   *time.Time `gorm:"column:end_date;type:date" json:"end_date,omitempty"`

	Slots []ScheduleSlot `gorm:"foreignKey:ScheduleID;references:ID" json:"slots,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Schedule) TableName() string { return "schedules" }

func (s *Schedule) Terminal() bool {
	return s.Status == ScheduleCompleted || s.Status == ScheduleCancelled
}

// ScheduleSlot is one recurring weekly time block owned by a schedule.
type ScheduleSlot struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ScheduleID uuid.UUID `gorm:"type:uuid;not null;index" json:"schedule_id"`
	Schedule   *Schedule `gorm:"constraint:OnDelete:CASCADE;foreignKey:ScheduleID;references:ID" json:"schedule,omitempty"`

	DayOfWeek int    `gorm:"column:day_of_week;not null;index" json:"day_of_week"`
	StartTime string `gorm:"column:start_time;type:varchar(5);not null" json:"start_time"`
	EndTime   string `gorm:"column:end_time;type:varchar(5);not null" json:"end_time"`
	Location  string `gorm:"column:location;not null;default:'Home'" json:"location"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (ScheduleSlot) TableName() string { return "schedule_slots" }

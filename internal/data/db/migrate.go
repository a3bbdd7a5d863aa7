package db

import (
	"gorm.io/gorm"

	"github.com/evlinhq/evlin-backend/internal/domain"
)

// AutoMigrateAll creates/updates every table this service owns. Uniqueness
// invariants (schedule per student+course+start date, session per slot+date)
// live in composite indexes on the models, so the store enforces them even
// when two writers race.
func (s *PostgresService) AutoMigrateAll() error {
	return AutoMigrate(s.db)
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Student{},
		&domain.Course{},
		&domain.AvailabilityWindow{},
		&domain.Schedule{},
		&domain.ScheduleSlot{},
		&domain.SessionInstance{},
		&domain.CheckinLogEntry{},
		&domain.AgentConversation{},
	)
}

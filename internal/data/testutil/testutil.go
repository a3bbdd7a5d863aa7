package testutil

import (
	"os"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/evlinhq/evlin-backend/internal/data/db"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
)

// DB returns a migrated database for repo and service tests. With
// TEST_POSTGRES_DSN set it runs against real Postgres; otherwise it uses an
// in-memory sqlite database, which is why the models avoid Postgres-only
// column defaults.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	var (
		conn *gorm.DB
		err  error
	)
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		conn, err = gorm.Open(postgres.Open(dsn), cfg)
	} else {
		// A named shared-cache database keeps every pooled connection on the
		// same in-memory store while isolating tests from each other.
		dsn := "file:" + sanitizeName(tb.Name()) + "?mode=memory&cache=shared"
		conn, err = gorm.Open(sqlite.Open(dsn), cfg)
	}
	if err != nil {
		tb.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrate(conn); err != nil {
		tb.Fatalf("migrate test database: %v", err)
	}
	tb.Cleanup(func() {
		sqlDB, derr := conn.DB()
		if derr == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

func sanitizeName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// Logger returns a development-mode logger for tests.
func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	log, err := logger.New("dev")
	if err != nil {
		tb.Fatalf("build test logger: %v", err)
	}
	tb.Cleanup(log.Sync)
	return log
}

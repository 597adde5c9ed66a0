package testutil

import (
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-cat/internal/data/db"
	"github.com/yungbote/neurobridge-cat/internal/platform/logger"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB returns a migrated database private to the test: in-memory SQLite, or
// Postgres when TEST_POSTGRES_DSN is set.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	cfg := db.Config{
		Driver: db.DriverSQLite,
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	}
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		cfg = db.Config{Driver: db.DriverPostgres, DSN: dsn}
	}
	svc, err := db.Open(cfg, Logger(tb))
	if err != nil {
		tb.Fatalf("failed to init test db: %v", err)
	}
	if err := svc.AutoMigrateAll(); err != nil {
		tb.Fatalf("failed to migrate test db: %v", err)
	}
	if cfg.Driver == db.DriverSQLite {
		tb.Cleanup(func() { _ = svc.Close() })
	}
	return svc.DB()
}

func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}

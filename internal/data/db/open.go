package db

import (
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
	"github.com/yungbote/neurobridge-cat/internal/platform/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver string
	DSN    string
	// Verbose logs every SQL statement.
	Verbose bool
}

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

// Open connects with the configured driver. An empty sqlite DSN opens a
// private in-memory database.
func Open(cfg Config, baseLog *logger.Logger) (*Service, error) {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	log := baseLog.With("service", "DBService", "driver", cfg.Driver)

	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverPostgres:
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, errors.Mark(errors.New("CAT_DB_DSN is required for postgres"), errors.ErrConfig)
		}
		dialector = postgres.Open(cfg.DSN)
	case DriverSQLite, "":
		dsn := cfg.DSN
		if strings.TrimSpace(dsn) == "" {
			dsn = "file::memory:"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, errors.Mark(errors.Newf("unsupported CAT_DB_DRIVER %q; expected sqlite or postgres", cfg.Driver), errors.ErrConfig)
	}

	level := gormLogger.Silent
	if cfg.Verbose {
		level = gormLogger.Info
	}
	log.Info("Connecting to database...")
	gdb, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(level),
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		return nil, errors.Mark(errors.Wrap(err, "connect database"), errors.ErrPersistence)
	}
	if dialector.Name() == "sqlite" {
		// one connection keeps an in-memory database alive and serializes writers
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	return &Service{db: gdb, log: log}, nil
}

func (s *Service) DB() *gorm.DB {
	return s.db
}

func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

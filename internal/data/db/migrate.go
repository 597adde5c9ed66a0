package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-cat/internal/domain/assessment"
	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
)

// Models lists every persisted record type.
func Models() []any {
	return []any{
		// exposure ledger
		&assessment.ItemExposure{},
		&assessment.ItemExclusion{},

		// session archive
		&assessment.AssessmentSession{},
		&assessment.AssessmentEvent{},
	}
}

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// EnsureIndexes adds the indexes AutoMigrate cannot express.
func EnsureIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_assessment_event_session_seq_unique
		ON assessment_event (session_id, seq);
	`).Error; err != nil {
		return errors.Wrap(err, "create idx_assessment_event_session_seq_unique")
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_assessment_session_status_started
		ON assessment_session (status, started_at);
	`).Error; err != nil {
		return errors.Wrap(err, "create idx_assessment_session_status_started")
	}
	return nil
}

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return errors.Mark(errors.Wrap(err, "auto migrate"), errors.ErrPersistence)
	}
	if err := EnsureIndexes(s.db); err != nil {
		s.log.Error("Index creation failed", "error", err)
		return errors.Mark(err, errors.ErrPersistence)
	}
	return nil
}

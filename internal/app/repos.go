package app

import (
	"gorm.io/gorm"

	assessmentrepo "github.com/yungbote/neurobridge-cat/internal/data/repos/assessment"
	"github.com/yungbote/neurobridge-cat/internal/platform/logger"
)

type Repos struct {
	ItemExposure  assessmentrepo.ItemExposureRepo
	ItemExclusion assessmentrepo.ItemExclusionRepo
	Session       assessmentrepo.SessionRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	if db == nil {
		return Repos{}
	}
	log.Info("Wiring repos...")
	return Repos{
		ItemExposure:  assessmentrepo.NewItemExposureRepo(db, log),
		ItemExclusion: assessmentrepo.NewItemExclusionRepo(db, log),
		Session:       assessmentrepo.NewSessionRepo(db, log),
	}
}

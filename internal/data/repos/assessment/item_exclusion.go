package assessment

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/neurobridge-cat/internal/domain/assessment"
	"github.com/yungbote/neurobridge-cat/internal/pkg/dbctx"
	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
	"github.com/yungbote/neurobridge-cat/internal/platform/logger"
)

type ItemExclusionRepo interface {
	Exclude(dbc dbctx.Context, itemID, reason string) error
	Include(dbc dbctx.Context, itemID string) error
	List(dbc dbctx.Context) ([]*types.ItemExclusion, error)
	ExcludedIDs(ctx context.Context) ([]string, error)
}

type itemExclusionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewItemExclusionRepo(db *gorm.DB, baseLog *logger.Logger) ItemExclusionRepo {
	return &itemExclusionRepo{db: db, log: baseLog.With("repo", "ItemExclusionRepo")}
}

// Exclude flags an item; excluding it again only refreshes the reason.
func (r *itemExclusionRepo) Exclude(dbc dbctx.Context, itemID, reason string) error {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return errors.Mark(errors.New("item id is required"), errors.ErrInvalidArgument)
	}
	row := &types.ItemExclusion{ItemID: itemID, Reason: reason, CreatedAt: time.Now().UTC()}
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"reason"}),
		}).
		Create(row).Error
}

func (r *itemExclusionRepo) Include(dbc dbctx.Context, itemID string) error {
	return dbc.DB(r.db).Where("item_id = ?", itemID).Delete(&types.ItemExclusion{}).Error
}

func (r *itemExclusionRepo) List(dbc dbctx.Context) ([]*types.ItemExclusion, error) {
	out := []*types.ItemExclusion{}
	if err := dbc.DB(r.db).Order("item_id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *itemExclusionRepo) ExcludedIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := dbctx.New(ctx).DB(r.db).
		Model(&types.ItemExclusion{}).
		Order("item_id ASC").
		Pluck("item_id", &ids).Error; err != nil {
		return nil, errors.Mark(errors.Wrap(err, "list excluded items"), errors.ErrPersistence)
	}
	return ids, nil
}

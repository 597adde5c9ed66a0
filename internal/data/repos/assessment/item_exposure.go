package assessment

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/neurobridge-cat/internal/domain/assessment"
	"github.com/yungbote/neurobridge-cat/internal/pkg/dbctx"
	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
	"github.com/yungbote/neurobridge-cat/internal/platform/logger"
)

type ItemExposureRepo interface {
	Get(dbc dbctx.Context, itemID string) (uint32, error)
	Increment(dbc dbctx.Context, itemID string) error
	ListAll(dbc dbctx.Context) ([]*types.ItemExposure, error)
	Reset(dbc dbctx.Context, itemIDs []string) error
}

type itemExposureRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewItemExposureRepo(db *gorm.DB, baseLog *logger.Logger) ItemExposureRepo {
	return &itemExposureRepo{db: db, log: baseLog.With("repo", "ItemExposureRepo")}
}

func (r *itemExposureRepo) Get(dbc dbctx.Context, itemID string) (uint32, error) {
	if itemID == "" {
		return 0, nil
	}
	var row types.ItemExposure
	err := dbc.DB(r.db).Where("item_id = ?", itemID).Limit(1).Find(&row).Error
	if err != nil {
		return 0, err
	}
	return row.Count, nil
}

// Increment adds one to the item's count in a single upsert, so concurrent
// writers never lose an update.
func (r *itemExposureRepo) Increment(dbc dbctx.Context, itemID string) error {
	if itemID == "" {
		return errors.Mark(errors.New("item id is required"), errors.ErrInvalidArgument)
	}
	now := time.Now().UTC()
	row := &types.ItemExposure{ItemID: itemID, Count: 1, UpdatedAt: now}
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "item_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"count":      gorm.Expr("item_exposure.count + 1"),
				"updated_at": now,
			}),
		}).
		Create(row).Error
}

func (r *itemExposureRepo) ListAll(dbc dbctx.Context) ([]*types.ItemExposure, error) {
	out := []*types.ItemExposure{}
	if err := dbc.DB(r.db).Order("item_id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Reset zeroes the given items, or every item when itemIDs is empty.
func (r *itemExposureRepo) Reset(dbc dbctx.Context, itemIDs []string) error {
	q := dbc.DB(r.db).Model(&types.ItemExposure{})
	if len(itemIDs) > 0 {
		q = q.Where("item_id IN ?", itemIDs)
	} else {
		q = q.Where("1 = 1")
	}
	return q.Updates(map[string]any{"count": 0, "updated_at": time.Now().UTC()}).Error
}

// ExposureLedger adapts an ItemExposureRepo to the exposure ledger contract.
type ExposureLedger struct {
	repo ItemExposureRepo
}

func NewExposureLedger(repo ItemExposureRepo) *ExposureLedger {
	return &ExposureLedger{repo: repo}
}

func (l *ExposureLedger) Count(ctx context.Context, itemID string) (uint32, error) {
	n, err := l.repo.Get(dbctx.New(ctx), itemID)
	if err != nil {
		return 0, errors.Mark(errors.Wrapf(err, "read exposure for %s", itemID), errors.ErrPersistence)
	}
	return n, nil
}

func (l *ExposureLedger) Bump(ctx context.Context, itemID string) error {
	if err := l.repo.Increment(dbctx.New(ctx), itemID); err != nil {
		return errors.Mark(errors.Wrapf(err, "bump exposure for %s", itemID), errors.ErrPersistence)
	}
	return nil
}

func (l *ExposureLedger) Snapshot(ctx context.Context) (map[string]uint32, error) {
	rows, err := l.repo.ListAll(dbctx.New(ctx))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "snapshot exposure"), errors.ErrPersistence)
	}
	out := make(map[string]uint32, len(rows))
	for _, row := range rows {
		out[row.ItemID] = row.Count
	}
	return out, nil
}

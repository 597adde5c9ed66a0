package exposure

import (
	"context"
	"sync"

	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
	"github.com/yungbote/neurobridge-cat/internal/platform/logger"
)

// FailureObserver receives ledger failures for metrics.
type FailureObserver interface {
	IncLedgerFailure(op string)
}

// Tracker wraps a Ledger with best-effort semantics: store failures are
// logged and never reach the session, and bumps made through this tracker are
// visible to its own reads even when the store is stale or unavailable.
type Tracker struct {
	store   Ledger
	log     *logger.Logger
	metrics FailureObserver

	mu    sync.RWMutex
	known map[string]uint32
}

func NewTracker(store Ledger, baseLog *logger.Logger, metrics FailureObserver) *Tracker {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &Tracker{
		store:   store,
		log:     baseLog.With("service", "ExposureTracker"),
		metrics: metrics,
		known:   map[string]uint32{},
	}
}

// Warm loads all counts when the store supports snapshots. A failed warm-up is
// logged and leaves the tracker empty.
func (t *Tracker) Warm(ctx context.Context) {
	snap, ok := t.store.(Snapshotter)
	if !ok {
		return
	}
	counts, err := snap.Snapshot(ctx)
	if err != nil {
		t.fail("snapshot", "", err)
		return
	}
	t.mu.Lock()
	for id, n := range counts {
		if n > t.known[id] {
			t.known[id] = n
		}
	}
	t.mu.Unlock()
	t.log.Debug("exposure ledger warmed", "items", len(counts))
}

// Count returns the larger of the store's count and what this process has
// already observed or written; zero when nothing is known.
func (t *Tracker) Count(ctx context.Context, itemID string) uint32 {
	n, err := t.store.Count(ctx, itemID)
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.failLocked("count", itemID, err)
		return t.known[itemID]
	}
	if n > t.known[itemID] {
		t.known[itemID] = n
	}
	return t.known[itemID]
}

// Bump records one administration. The local view is advanced before the
// store write so a failed write still counts for this process.
func (t *Tracker) Bump(ctx context.Context, itemID string) {
	t.mu.Lock()
	t.known[itemID]++
	t.mu.Unlock()
	if err := t.store.Bump(ctx, itemID); err != nil {
		t.fail("bump", itemID, err)
	}
}

func (t *Tracker) fail(op, itemID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failLocked(op, itemID, err)
}

func (t *Tracker) failLocked(op, itemID string, err error) {
	err = errors.Mark(err, errors.ErrPersistence)
	t.log.Warn("exposure ledger unavailable (continuing)", "op", op, "item_id", itemID, "error", err)
	if t.metrics != nil {
		t.metrics.IncLedgerFailure(op)
	}
}

// Package exposure tracks how often each item has been administered across
// sessions. It is the only process-wide state the engine shares.
package exposure

import (
	"context"
	"sync"
)

// Ledger is the persistence contract: a read and a single atomic increment
// per item. Implementations must be safe for concurrent use.
type Ledger interface {
	Count(ctx context.Context, itemID string) (uint32, error)
	Bump(ctx context.Context, itemID string) error
}

// Snapshotter is implemented by ledgers that can load every count at once,
// used to warm the tracker at process start.
type Snapshotter interface {
	Snapshot(ctx context.Context) (map[string]uint32, error)
}

// Counter is the read side the item selector consumes. It never fails.
type Counter interface {
	Count(ctx context.Context, itemID string) uint32
}

// Memory is an in-process ledger, used in tests and single-process runs.
type Memory struct {
	mu     sync.RWMutex
	counts map[string]uint32
}

func NewMemory() *Memory {
	return &Memory{counts: map[string]uint32{}}
}

// NewMemoryFrom seeds a ledger with existing counts.
func NewMemoryFrom(counts map[string]uint32) *Memory {
	m := NewMemory()
	for id, n := range counts {
		m.counts[id] = n
	}
	return m
}

func (m *Memory) Count(_ context.Context, itemID string) (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[itemID], nil
}

func (m *Memory) Bump(_ context.Context, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[itemID]++
	return nil
}

func (m *Memory) Snapshot(_ context.Context) (map[string]uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]uint32, len(m.counts))
	for id, n := range m.counts {
		out[id] = n
	}
	return out, nil
}

// Package cat picks the next item for an adaptive subtest.
//
// Each call filters the unadministered pool by exposure, gates anchor items,
// scores candidates by information at the current theta plus content need,
// and picks uniformly among the top K.
package cat

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/yungbote/neurobridge-cat/internal/assessment/exposure"
	"github.com/yungbote/neurobridge-cat/internal/assessment/irt"
	"github.com/yungbote/neurobridge-cat/internal/domain/assessment"
)

// State is the session bookkeeping the selector reads on each call.
type State struct {
	Theta               float64
	Administered        map[string]struct{}
	FamilyCounts        map[string]int
	AnchorsAdministered int
	N                   int
}

type PoolKind string

const (
	PoolAll        PoolKind = "all"
	PoolAnchors    PoolKind = "anchors"
	PoolNonAnchors PoolKind = "non_anchors"
)

type Candidate struct {
	ItemID string
	Score  float64
	Info   float64
	Need   float64
}

// Trace explains one selection. Useful for event logs and tests.
type Trace struct {
	Remaining       int
	Eligible        int
	ExposureRelaxed bool
	Pool            PoolKind
	ForceAnchor     bool
	Top             []Candidate
}

type Selector struct {
	items   []*assessment.Item
	anchors map[string]struct{}
	policy  Policy
	counter exposure.Counter
	rng     *rand.Rand

	miniRemaining int
}

// NewSelector builds a selector over a fixed pool. anchorIDs not present in
// items are ignored. A nil counter treats every exposure count as zero.
func NewSelector(items []*assessment.Item, anchorIDs []string, policy Policy, counter exposure.Counter, seed uint64) *Selector {
	policy.Anchors = policy.Anchors.normalized()
	anchors := make(map[string]struct{}, len(anchorIDs))
	for _, id := range anchorIDs {
		anchors[id] = struct{}{}
	}
	for _, it := range items {
		if it != nil && it.Anchor {
			anchors[it.ID] = struct{}{}
		}
	}
	return &Selector{
		items:         items,
		anchors:       anchors,
		policy:        policy,
		counter:       counter,
		rng:           rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		miniRemaining: policy.Anchors.MiniBlockN,
	}
}

func (s *Selector) IsAnchor(itemID string) bool {
	_, ok := s.anchors[itemID]
	return ok
}

// Next returns the next item, or nil when nothing is left to administer.
func (s *Selector) Next(ctx context.Context, st State) (*assessment.Item, Trace) {
	var tr Trace

	remaining := make([]*assessment.Item, 0, len(s.items))
	for _, it := range s.items {
		if it == nil {
			continue
		}
		if _, done := st.Administered[it.ID]; done {
			continue
		}
		remaining = append(remaining, it)
	}
	tr.Remaining = len(remaining)
	if len(remaining) == 0 {
		return nil, tr
	}

	pool := remaining
	if s.policy.MaxExposure > 0 && s.counter != nil {
		eligible := make([]*assessment.Item, 0, len(remaining))
		for _, it := range remaining {
			if s.counter.Count(ctx, it.ID) < s.policy.MaxExposure {
				eligible = append(eligible, it)
			}
		}
		if len(eligible) > 0 {
			pool = eligible
		} else {
			tr.ExposureRelaxed = true
		}
	}
	tr.Eligible = len(pool)

	pool, tr.Pool, tr.ForceAnchor = s.gate(pool, st)

	scored := make([]Candidate, 0, len(pool))
	byID := make(map[string]*assessment.Item, len(pool))
	for _, it := range pool {
		info := irt.Information(st.Theta, it)
		need := s.need(it, st)
		score := weightInformation*info + weightNeed*need
		if s.IsAnchor(it.ID) {
			score += anchorBonus
		}
		score += (s.rng.Float64() - 0.5) * jitterSpan
		scored = append(scored, Candidate{ItemID: it.ID, Score: score, Info: info, Need: need})
		byID[it.ID] = it
	}
	slices.SortStableFunc(scored, func(a, b Candidate) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return strings.Compare(a.ItemID, b.ItemID)
	})

	k := min(s.policy.topK(), len(scored))
	tr.Top = scored[:k]
	pick := byID[tr.Top[s.rng.IntN(k)].ItemID]

	if s.miniRemaining > 0 && s.IsAnchor(pick.ID) {
		s.miniRemaining--
	}
	return pick, tr
}

// gate restricts the pool to anchors or non-anchors. Anchors are forced while
// a mini-block is running or while the session is behind its anchor target;
// they are avoided once the session is over target or at the cap.
func (s *Selector) gate(pool []*assessment.Item, st State) ([]*assessment.Item, PoolKind, bool) {
	if len(s.anchors) == 0 {
		return pool, PoolAll, false
	}
	var anchorPool, otherPool []*assessment.Item
	for _, it := range pool {
		if s.IsAnchor(it.ID) {
			anchorPool = append(anchorPool, it)
		} else {
			otherPool = append(otherPool, it)
		}
	}

	ap := s.policy.Anchors
	n := st.N
	have := st.AnchorsAdministered
	desired := int(math.Round(float64(n+1) * ap.TargetProp))

	force := false
	if s.miniRemaining > 0 {
		force = true
	} else {
		under := have < min(desired, ap.MaxAnchors)
		early := ap.AvoidFirstTwo && n < 2
		force = under && !early
	}
	if have >= ap.MaxAnchors {
		force = false
	}

	switch {
	case force && len(anchorPool) > 0:
		return anchorPool, PoolAnchors, true
	case !force && len(otherPool) > 0:
		if have >= ap.MaxAnchors || have > max(ap.MinAnchors, desired+1) {
			return otherPool, PoolNonAnchors, false
		}
	}
	return pool, PoolAll, force
}

func (s *Selector) need(it *assessment.Item, st State) float64 {
	if len(s.policy.Blueprint) == 0 {
		return 0
	}
	total := max(1, st.N)
	current := float64(st.FamilyCounts[it.Family]) / float64(total)
	return s.policy.Blueprint[it.Family] - current
}

package cat

import (
	"context"
	"fmt"
	"testing"

	"github.com/yungbote/neurobridge-cat/internal/assessment/exposure"
	"github.com/yungbote/neurobridge-cat/internal/domain/assessment"
)

func makePool(n, anchors int) []*assessment.Item {
	out := make([]*assessment.Item, 0, n)
	for i := 0; i < n; i++ {
		fam := "matrix"
		if i%3 == 0 {
			fam = "series"
		}
		out = append(out, &assessment.Item{
			ID:     fmt.Sprintf("gf-%02d", i),
			Domain: "Gf",
			Family: fam,
			Model:  assessment.Model2PL,
			A:      0.8 + float64(i%5)*0.2,
			B:      -2 + float64(i)*4/float64(n),
			Anchor: i < anchors,
		})
	}
	return out
}

// run drives the selector the way a session would and returns the picks.
func run(t *testing.T, sel *Selector, steps int, tracker *exposure.Tracker) ([]string, int) {
	t.Helper()
	ctx := context.Background()
	st := State{Administered: map[string]struct{}{}, FamilyCounts: map[string]int{}}
	var picks []string
	for i := 0; i < steps; i++ {
		it, _ := sel.Next(ctx, st)
		if it == nil {
			break
		}
		if _, dup := st.Administered[it.ID]; dup {
			t.Fatalf("item %s selected twice", it.ID)
		}
		st.Administered[it.ID] = struct{}{}
		st.FamilyCounts[it.Family]++
		if sel.IsAnchor(it.ID) {
			st.AnchorsAdministered++
		}
		st.N++
		if tracker != nil {
			tracker.Bump(ctx, it.ID)
		}
		picks = append(picks, it.ID)
	}
	return picks, st.AnchorsAdministered
}

func TestSelectorNeverRepeats(t *testing.T) {
	items := makePool(12, 0)
	sel := NewSelector(items, nil, Policy{}, nil, 1)
	picks, _ := run(t, sel, 50, nil)
	if len(picks) != len(items) {
		t.Fatalf("picks: want=%d got=%d", len(items), len(picks))
	}
}

func TestSelectorExhaustsSmallPool(t *testing.T) {
	items := makePool(3, 0)
	tracker := exposure.NewTracker(exposure.NewMemory(), nil, nil)
	sel := NewSelector(items, nil, Policy{MaxExposure: 1}, tracker, 7)
	picks, _ := run(t, sel, 3, tracker)
	if len(picks) != 3 {
		t.Fatalf("picks: want=3 got=%d", len(picks))
	}
	st := State{Administered: map[string]struct{}{}, N: 3}
	for _, id := range picks {
		st.Administered[id] = struct{}{}
	}
	if it, tr := sel.Next(context.Background(), st); it != nil || tr.Remaining != 0 {
		t.Fatalf("next after exhaustion: want=nil got=%v", it)
	}
}

func TestSelectorHonoursExposureCap(t *testing.T) {
	items := makePool(6, 0)
	counts := map[string]uint32{}
	for _, it := range items[:4] {
		counts[it.ID] = 3
	}
	tracker := exposure.NewTracker(exposure.NewMemoryFrom(counts), nil, nil)
	sel := NewSelector(items, nil, Policy{MaxExposure: 3}, tracker, 3)

	ctx := context.Background()
	st := State{Administered: map[string]struct{}{}, FamilyCounts: map[string]int{}}
	for i := 0; i < 2; i++ {
		it, tr := sel.Next(ctx, st)
		if it == nil {
			t.Fatalf("step %d: unexpected exhaustion", i)
		}
		if counts[it.ID] >= 3 {
			t.Fatalf("step %d: capped item %s selected", i, it.ID)
		}
		if tr.ExposureRelaxed {
			t.Fatalf("step %d: cap relaxed with eligible items left", i)
		}
		st.Administered[it.ID] = struct{}{}
		st.N++
	}

	it, tr := sel.Next(ctx, st)
	if it == nil {
		t.Fatalf("fallback: want capped item, got nil")
	}
	if !tr.ExposureRelaxed {
		t.Fatalf("fallback: want ExposureRelaxed")
	}
}

func TestSelectorAnchorBounds(t *testing.T) {
	policy := Policy{Anchors: AnchorPolicy{TargetProp: 0.25, MinAnchors: 2, MaxAnchors: 6}}
	for seed := uint64(1); seed <= 25; seed++ {
		sel := NewSelector(makePool(40, 10), nil, policy, nil, seed)
		picks, anchors := run(t, sel, 20, nil)
		if len(picks) != 20 {
			t.Fatalf("seed %d: picks want=20 got=%d", seed, len(picks))
		}
		if anchors < 2 || anchors > 6 {
			t.Fatalf("seed %d: anchors want in [2,6] got=%d", seed, anchors)
		}
	}
}

func TestSelectorMiniBlockForcesAnchors(t *testing.T) {
	policy := Policy{Anchors: AnchorPolicy{TargetProp: 0.1, MinAnchors: 0, MaxAnchors: 6, MiniBlockN: 3}}
	sel := NewSelector(makePool(20, 5), nil, policy, nil, 11)
	picks, _ := run(t, sel, 3, nil)
	for i, id := range picks {
		if !sel.IsAnchor(id) {
			t.Fatalf("pick %d: want anchor got=%s", i, id)
		}
	}
}

func TestSelectorAvoidFirstTwo(t *testing.T) {
	policy := Policy{TopK: 1, Anchors: AnchorPolicy{TargetProp: 1, MinAnchors: 1, MaxAnchors: 6, AvoidFirstTwo: true}}
	sel := NewSelector(makePool(20, 5), nil, policy, nil, 5)
	ctx := context.Background()
	_, tr := sel.Next(ctx, State{})
	if tr.ForceAnchor {
		t.Fatalf("first item: anchors must not be forced")
	}
	_, tr = sel.Next(ctx, State{N: 2})
	if !tr.ForceAnchor || tr.Pool != PoolAnchors {
		t.Fatalf("third item: want forced anchor pool got=%+v", tr)
	}
}

func TestSelectorDeterministicForSeed(t *testing.T) {
	a, _ := run(t, NewSelector(makePool(30, 6), nil, Policy{}, nil, 42), 15, nil)
	b, _ := run(t, NewSelector(makePool(30, 6), nil, Policy{}, nil, 42), 15, nil)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("pick %d: want=%s got=%s", i, a[i], b[i])
		}
	}
}

func TestSelectorContentNeed(t *testing.T) {
	items := makePool(6, 0)
	sel := NewSelector(items, nil, Policy{Blueprint: map[string]float64{"series": 0.5, "matrix": 0.5}}, nil, 1)
	st := State{FamilyCounts: map[string]int{"matrix": 4}, N: 4}
	if got := sel.need(items[0], st); got != 0.5 {
		t.Fatalf("series need: want=0.5 got=%v", got)
	}
	if got := sel.need(items[1], st); got != -0.5 {
		t.Fatalf("matrix need: want=-0.5 got=%v", got)
	}
}

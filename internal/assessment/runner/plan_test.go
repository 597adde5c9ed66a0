package runner

import (
	"math"
	"testing"

	"github.com/yungbote/neurobridge-cat/internal/assessment/cat"
	"github.com/yungbote/neurobridge-cat/internal/assessment/estimate"
	"github.com/yungbote/neurobridge-cat/internal/domain/assessment"
	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
)

func TestParsePlanDefaults(t *testing.T) {
	p, err := ParsePlan([]byte(`{id: p, nodes: [{id: n, domain: fluid}]}`))
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}
	n := p.Nodes[0]
	if n.Domain != "Gf" || n.Mode != ModeCAT {
		t.Fatalf("node: domain=%s mode=%s", n.Domain, n.Mode)
	}
	if n.MinItems != 8 || n.MaxItems != 18 || n.SEMThreshold != 0.32 || n.TopK != 5 || n.MaxExposure != 50 {
		t.Fatalf("defaults: got=%+v", n)
	}
	if n.kind != estimate.KindMAP || n.anchors != cat.DefaultAnchorPolicy() {
		t.Fatalf("estimator/anchors: kind=%s anchors=%+v", n.kind, n.anchors)
	}
}

func TestParsePlanPartialAnchorPolicy(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want cat.AnchorPolicy
	}{
		{
			name: "target only",
			doc:  `{id: p, nodes: [{id: n, domain: Gf, anchor_policy: {target_prop: 0.25}}]}`,
			want: cat.AnchorPolicy{TargetProp: 0.25, MinAnchors: 2, MaxAnchors: 6},
		},
		{
			name: "bounds only",
			doc:  `{id: p, nodes: [{id: n, domain: Gf, anchor_policy: {min_anchors: 1, max_anchors: 3}}]}`,
			want: cat.AnchorPolicy{TargetProp: 0.22, MinAnchors: 1, MaxAnchors: 3},
		},
		{
			name: "explicit zero max",
			doc:  `{id: p, nodes: [{id: n, domain: Gf, anchor_policy: {min_anchors: 0, max_anchors: 0}}]}`,
			want: cat.AnchorPolicy{TargetProp: 0.22, MinAnchors: 0, MaxAnchors: 0},
		},
		{
			name: "mini block",
			doc:  `{id: p, nodes: [{id: n, domain: Gf, anchor_policy: {mini_block_n: 3, avoid_first_two: true}}]}`,
			want: cat.AnchorPolicy{TargetProp: 0.22, MinAnchors: 2, MaxAnchors: 6, MiniBlockN: 3, AvoidFirstTwo: true},
		},
	}
	for _, tc := range cases {
		p, err := ParsePlan([]byte(tc.doc))
		if err != nil {
			t.Fatalf("%s: ParsePlan: %v", tc.name, err)
		}
		if got := p.Nodes[0].anchors; got != tc.want {
			t.Fatalf("%s: want=%+v got=%+v", tc.name, tc.want, got)
		}
	}
}

func TestParsePlanMaxItemsNotBelowMin(t *testing.T) {
	p, err := ParsePlan([]byte(`{id: p, nodes: [{id: n, domain: Gf, min_items: 20, max_items: 10}]}`))
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}
	if p.Nodes[0].MaxItems != 20 {
		t.Fatalf("max items: want=20 got=%d", p.Nodes[0].MaxItems)
	}
}

func TestParsePlanRejects(t *testing.T) {
	cases := map[string]string{
		"no id":             `{nodes: [{id: n, domain: Gf}]}`,
		"no nodes":          `{id: p}`,
		"duplicate node":    `{id: p, nodes: [{id: n, domain: Gf}, {id: n, domain: Gq}]}`,
		"unknown mode":      `{id: p, nodes: [{id: n, domain: Gf, mode: essay}]}`,
		"fixed no items":    `{id: p, nodes: [{id: n, domain: Gf, mode: fixed}]}`,
		"unknown estimator": `{id: p, nodes: [{id: n, domain: Gf, estimator: MLE}]}`,
		"negative share":    `{id: p, nodes: [{id: n, domain: Gf, blueprint: {a: -1}}]}`,
	}
	for name, doc := range cases {
		if _, err := ParsePlan([]byte(doc)); !errors.Is(err, errors.ErrConfig) {
			t.Fatalf("%s: want ErrConfig got=%v", name, err)
		}
	}
}

func TestDefaultPlan(t *testing.T) {
	p, err := DefaultPlan()
	if err != nil {
		t.Fatalf("DefaultPlan: %v", err)
	}
	if p.ID != "full" || len(p.Nodes) != 8 {
		t.Fatalf("default plan: id=%s nodes=%d", p.ID, len(p.Nodes))
	}
	if !p.Nodes[0].ExcludeFromComposite {
		t.Fatalf("attention node must be excluded from the composite")
	}
}

func TestPlanValidateAgainstBank(t *testing.T) {
	b := testBank(t)
	if err := mustPlan(t).Validate(b); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	bad, _ := ParsePlan([]byte(`{id: p, nodes: [{id: n, domain: Gq}]}`))
	if err := bad.Validate(b); err == nil {
		t.Fatalf("Validate: want error for empty domain")
	}
}

func TestMergeSummaries(t *testing.T) {
	in := []assessment.DomainSummary{
		{Domain: "Gs", N: 30, Theta: 1, SEM: 1},
		{Domain: "Gf", N: 10, Theta: 0.2, SEM: 0.3},
		{Domain: "Gs", N: 30, Theta: 0, SEM: 1},
	}
	out := MergeSummaries(in)
	if len(out) != 2 || out[0].Domain != "Gs" || out[1].Domain != "Gf" {
		t.Fatalf("merge order: got=%+v", out)
	}
	if out[0].N != 60 || math.Abs(out[0].Theta-0.5) > 1e-12 || math.Abs(out[0].SEM-1/math.Sqrt2) > 1e-12 {
		t.Fatalf("merged Gs: got=%+v", out[0])
	}
}

package bank

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/yungbote/neurobridge-cat/internal/domain/assessment"
	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
)

const sampleBank = `
version: "2024.1"
items:
  - {id: gf-1, domain: Gf, family: matrix_reasoning, a: 1.2, b: -0.5}
  - {id: gf-2, domain: fluid, a: 0.9, b: 0.3, c: 0.2, anchor: true}
  - {id: gq-1, domain: Gq, family: number_pattern, model: 2pl, a: 1.0, b: 0}
`

func TestParseInfersModelAndFamily(t *testing.T) {
	b, err := Parse([]byte(sampleBank))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if b.Version != "2024.1" || b.Len() != 3 {
		t.Fatalf("bank: version=%q len=%d", b.Version, b.Len())
	}
	it, ok := b.Get("gf-2")
	if !ok {
		t.Fatalf("gf-2 missing")
	}
	if it.Model != assessment.Model3PL || it.Domain != "Gf" || it.Family != "matrix_reasoning" || !it.Anchor {
		t.Fatalf("gf-2: got=%+v", *it)
	}
	if got, _ := b.Get("gq-1"); got.Model != assessment.Model2PL {
		t.Fatalf("gq-1 model: want=2PL got=%s", got.Model)
	}
	if n := len(b.Domain("fluid")); n != 2 {
		t.Fatalf("Gf items: want=2 got=%d", n)
	}
	if got := b.Summary()["Gf"]["matrix_reasoning"]; got != 2 {
		t.Fatalf("summary: want=2 got=%d", got)
	}
}

func TestParseJSON(t *testing.T) {
	b, err := Parse([]byte(`{"items":[{"id":"x","domain":"Gv","a":1,"b":0}]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if b.Domains()[0] != "Gv" {
		t.Fatalf("domains: got=%v", b.Domains())
	}
}

func TestParseRejectsInvalidItems(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		code ConfigErrorCode
	}{
		{"empty", `items: []`, ConfigErrorEmptyBank},
		{"missing id", `items: [{domain: Gf, a: 1, b: 0}]`, ConfigErrorMissingID},
		{"duplicate", `items: [{id: a, domain: Gf, a: 1, b: 0}, {id: a, domain: Gf, a: 1, b: 1}]`, ConfigErrorDuplicateID},
		{"missing domain", `items: [{id: a, a: 1, b: 0}]`, ConfigErrorMissingDomain},
		{"missing a", `items: [{id: a, domain: Gf, b: 0}]`, ConfigErrorMissingParam},
		{"zero a", `items: [{id: a, domain: Gf, a: 0, b: 0}]`, ConfigErrorInvalidA},
		{"nan b", `items: [{id: a, domain: Gf, a: 1, b: .nan}]`, ConfigErrorInvalidB},
		{"c too large", `items: [{id: a, domain: Gf, a: 1, b: 0, c: 1}]`, ConfigErrorInvalidC},
		{"2PL with c", `items: [{id: a, domain: Gf, model: 2PL, a: 1, b: 0, c: 0.2}]`, ConfigErrorInvalidC},
		{"bad model", `items: [{id: a, domain: Gf, model: 4PL, a: 1, b: 0}]`, ConfigErrorUnknownModel},
		{"malformed", `items: {`, ConfigErrorMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("want ConfigError got=%v", err)
			}
			if ce.Code != tc.code {
				t.Fatalf("code: want=%s got=%s", tc.code, ce.Code)
			}
			if !errors.Is(err, errors.ErrConfig) {
				t.Fatalf("want errors.Is(ErrConfig)")
			}
		})
	}
}

func TestValidateItemInf(t *testing.T) {
	it := &assessment.Item{ID: "x", Domain: "Gf", Model: assessment.Model2PL, A: math.Inf(1)}
	if err := ValidateItem(it); err == nil {
		t.Fatalf("want error for infinite a")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.yaml")
	if err := os.WriteFile(path, []byte(sampleBank), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, errors.ErrConfig) {
		t.Fatalf("missing file: want ErrConfig got=%v", err)
	}
}

func TestPoolAndResolve(t *testing.T) {
	b, err := Parse([]byte(sampleBank))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	pool := b.Pool("Gf", []string{"gf-1", "gf-2"}, map[string]struct{}{"gf-1": {}})
	if len(pool) != 1 || pool[0].ID != "gf-2" {
		t.Fatalf("pool: got=%v", pool)
	}
	if got := b.Pool("Gf", nil, nil); len(got) != 2 {
		t.Fatalf("unrestricted pool: want=2 got=%d", len(got))
	}
	if _, err := b.Resolve("Gq", []string{"gf-1"}); err == nil {
		t.Fatalf("Resolve: want domain mismatch")
	}
	if _, err := b.Resolve("Gf", []string{"nope"}); err == nil {
		t.Fatalf("Resolve: want unknown item")
	}
}

func TestDeriveBlueprint(t *testing.T) {
	items := []*assessment.Item{{Family: "a"}, {Family: "a"}, {Family: "b"}, {Family: "c"}}
	bp := DeriveBlueprint(items)
	if bp["a"] != 0.5 || bp["b"] != 0.25 || bp["c"] != 0.25 {
		t.Fatalf("blueprint: got=%v", bp)
	}
	if DeriveBlueprint(nil) != nil {
		t.Fatalf("empty pool: want nil")
	}
}

func TestNormalizeBlueprint(t *testing.T) {
	bp, err := NormalizeBlueprint(map[string]float64{"a": 2, "b": 2})
	if err != nil {
		t.Fatalf("NormalizeBlueprint: %v", err)
	}
	if bp["a"] != 0.5 {
		t.Fatalf("a: want=0.5 got=%v", bp["a"])
	}
	if _, err := NormalizeBlueprint(map[string]float64{"a": -1}); err == nil {
		t.Fatalf("negative share: want error")
	}
}

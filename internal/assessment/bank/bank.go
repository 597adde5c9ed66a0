// Package bank loads, validates and indexes the item bank, and resolves the
// per-form item pools and exclusions a session draws from.
package bank

import (
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/neurobridge-cat/internal/domain/assessment"
	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
)

// document is the on-disk shape. IRT parameters are pointers so a missing
// value can be told apart from zero.
type document struct {
	Version string    `yaml:"version"`
	Items   []rawItem `yaml:"items"`
}

type rawItem struct {
	ID     string   `yaml:"id"`
	Domain string   `yaml:"domain"`
	Family string   `yaml:"family"`
	Model  string   `yaml:"model"`
	A      *float64 `yaml:"a"`
	B      *float64 `yaml:"b"`
	C      *float64 `yaml:"c"`
	Anchor bool     `yaml:"anchor"`
}

var domainAliases = map[string]string{
	"fluid":        "Gf",
	"verbal":       "Gc",
	"quant":        "Gq",
	"spatial":      "Gv",
	"wm":           "Gwm",
	"speed":        "Gs",
	"speed_symbol": "Gs",
	"speed_coding": "Gs",
}

var familyFallback = map[string]string{
	"Gf":  "matrix_reasoning",
	"Gc":  "controlled_analogy",
	"Gq":  "number_pattern",
	"Gv":  "mental_rotation",
	"Gwm": "working_memory",
	"Gs":  "speed_block",
}

// NormalizeDomain maps legacy domain names onto CHC codes.
func NormalizeDomain(d string) string {
	d = strings.TrimSpace(d)
	if mapped, ok := domainAliases[strings.ToLower(d)]; ok {
		return mapped
	}
	return d
}

type Bank struct {
	Version  string
	items    []*assessment.Item
	byID     map[string]*assessment.Item
	byDomain map[string][]*assessment.Item
}

func Load(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read item bank %s", path), errors.ErrConfig)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "item bank %s", path)
	}
	return b, nil
}

// Parse decodes a YAML or JSON bank document and validates every item.
func Parse(data []byte) (*Bank, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Code: ConfigErrorMalformed, Cause: err}
	}
	items := make([]assessment.Item, 0, len(doc.Items))
	for i, raw := range doc.Items {
		it, err := raw.toItem(i)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	b, err := New(items)
	if err != nil {
		return nil, err
	}
	b.Version = doc.Version
	return b, nil
}

func (r rawItem) toItem(idx int) (assessment.Item, error) {
	id := strings.TrimSpace(r.ID)
	if id == "" {
		return assessment.Item{}, &ConfigError{Code: ConfigErrorMissingID, Value: strconv.Itoa(idx)}
	}
	if r.A == nil {
		return assessment.Item{}, &ConfigError{Code: ConfigErrorMissingParam, ItemID: id, Value: "a"}
	}
	if r.B == nil {
		return assessment.Item{}, &ConfigError{Code: ConfigErrorMissingParam, ItemID: id, Value: "b"}
	}
	c := 0.0
	if r.C != nil {
		c = *r.C
	}
	model := assessment.Model(strings.ToUpper(strings.TrimSpace(r.Model)))
	if model == "" {
		model = assessment.Model2PL
		if c > 0 {
			model = assessment.Model3PL
		}
	}
	domain := NormalizeDomain(r.Domain)
	family := strings.TrimSpace(r.Family)
	if family == "" && domain != "" {
		family = familyFallback[domain]
		if family == "" {
			family = "misc"
		}
	}
	return assessment.Item{
		ID:     id,
		Domain: domain,
		Family: family,
		Model:  model,
		A:      *r.A,
		B:      *r.B,
		C:      c,
		Anchor: r.Anchor,
	}, nil
}

// New validates items and builds the indexes. Items keep their input order
// within each domain.
func New(items []assessment.Item) (*Bank, error) {
	if len(items) == 0 {
		return nil, &ConfigError{Code: ConfigErrorEmptyBank}
	}
	b := &Bank{
		items:    make([]*assessment.Item, 0, len(items)),
		byID:     make(map[string]*assessment.Item, len(items)),
		byDomain: map[string][]*assessment.Item{},
	}
	for i := range items {
		it := items[i]
		if err := ValidateItem(&it); err != nil {
			return nil, err
		}
		if _, dup := b.byID[it.ID]; dup {
			return nil, &ConfigError{Code: ConfigErrorDuplicateID, ItemID: it.ID}
		}
		p := &it
		b.items = append(b.items, p)
		b.byID[p.ID] = p
		b.byDomain[p.Domain] = append(b.byDomain[p.Domain], p)
	}
	return b, nil
}

// ValidateItem checks the fields every consumer of an item relies on.
func ValidateItem(it *assessment.Item) error {
	if it == nil || strings.TrimSpace(it.ID) == "" {
		return &ConfigError{Code: ConfigErrorMissingID, Value: "?"}
	}
	if strings.TrimSpace(it.Domain) == "" {
		return &ConfigError{Code: ConfigErrorMissingDomain, ItemID: it.ID}
	}
	if it.Model != assessment.Model2PL && it.Model != assessment.Model3PL {
		return &ConfigError{Code: ConfigErrorUnknownModel, ItemID: it.ID, Value: string(it.Model)}
	}
	if !finite(it.A) || it.A <= 0 {
		return &ConfigError{Code: ConfigErrorInvalidA, ItemID: it.ID, Value: formatFloat(it.A)}
	}
	if !finite(it.B) {
		return &ConfigError{Code: ConfigErrorInvalidB, ItemID: it.ID, Value: formatFloat(it.B)}
	}
	if !finite(it.C) || it.C < 0 || it.C >= 1 || (it.Model == assessment.Model2PL && it.C != 0) {
		return &ConfigError{Code: ConfigErrorInvalidC, ItemID: it.ID, Value: formatFloat(it.C)}
	}
	return nil
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

func formatFloat(x float64) string { return strconv.FormatFloat(x, 'g', -1, 64) }

func (b *Bank) Len() int { return len(b.items) }

func (b *Bank) Items() []*assessment.Item { return b.items }

func (b *Bank) Get(id string) (*assessment.Item, bool) {
	it, ok := b.byID[id]
	return it, ok
}

// Domain returns the domain's items in bank order.
func (b *Bank) Domain(domain string) []*assessment.Item {
	return b.byDomain[NormalizeDomain(domain)]
}

func (b *Bank) Domains() []string {
	out := make([]string, 0, len(b.byDomain))
	for d := range b.byDomain {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Summary counts items per domain and family.
func (b *Bank) Summary() map[string]map[string]int {
	out := make(map[string]map[string]int, len(b.byDomain))
	for d, items := range b.byDomain {
		fam := map[string]int{}
		for _, it := range items {
			fam[it.Family]++
		}
		out[d] = fam
	}
	return out
}

// Resolve looks up ids in order and checks they belong to domain.
func (b *Bank) Resolve(domain string, ids []string) ([]*assessment.Item, error) {
	domain = NormalizeDomain(domain)
	out := make([]*assessment.Item, 0, len(ids))
	for _, id := range ids {
		it, ok := b.byID[id]
		if !ok {
			return nil, &ConfigError{Code: ConfigErrorUnknownItem, ItemID: id}
		}
		if domain != "" && it.Domain != domain {
			return nil, &ConfigError{Code: ConfigErrorDomainMismatch, ItemID: id, Value: domain}
		}
		out = append(out, it)
	}
	return out, nil
}

// Pool returns the domain's items restricted to allowed (when non-nil) and
// without excluded ids.
func (b *Bank) Pool(domain string, allowed []string, excluded map[string]struct{}) []*assessment.Item {
	var allow map[string]struct{}
	if allowed != nil {
		allow = make(map[string]struct{}, len(allowed))
		for _, id := range allowed {
			allow[id] = struct{}{}
		}
	}
	src := b.Domain(domain)
	out := make([]*assessment.Item, 0, len(src))
	for _, it := range src {
		if allow != nil {
			if _, ok := allow[it.ID]; !ok {
				continue
			}
		}
		if _, skip := excluded[it.ID]; skip {
			continue
		}
		out = append(out, it)
	}
	return out
}

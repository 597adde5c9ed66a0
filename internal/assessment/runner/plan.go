package runner

import (
	_ "embed"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/neurobridge-cat/internal/assessment/bank"
	"github.com/yungbote/neurobridge-cat/internal/assessment/cat"
	"github.com/yungbote/neurobridge-cat/internal/assessment/estimate"
	"github.com/yungbote/neurobridge-cat/internal/assessment/session"
	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
)

//go:embed default_plan.yaml
var defaultPlanYAML []byte

const DefaultMaxExposure = 50

type Mode string

const (
	ModeCAT   Mode = "cat"
	ModeFixed Mode = "fixed"
	ModeSpeed Mode = "speed"
)

// Node is one step of a plan: a subtest over one domain.
type Node struct {
	ID       string `yaml:"id" json:"id"`
	Domain   string `yaml:"domain" json:"domain"`
	Mode     Mode   `yaml:"mode" json:"mode"`
	Title    string `yaml:"title,omitempty" json:"title,omitempty"`
	MinItems int    `yaml:"min_items,omitempty" json:"minItems,omitempty"`
	MaxItems int    `yaml:"max_items,omitempty" json:"maxItems,omitempty"`
	// SEMThreshold is the precision stop rule for cat nodes.
	SEMThreshold float64            `yaml:"stop_sem,omitempty" json:"stopSem,omitempty"`
	Estimator    string             `yaml:"estimator,omitempty" json:"estimator,omitempty"`
	GridStep     float64            `yaml:"grid_step,omitempty" json:"gridStep,omitempty"`
	PriorMean    float64            `yaml:"prior_mean,omitempty" json:"priorMean,omitempty"`
	PriorSD      float64            `yaml:"prior_sd,omitempty" json:"priorSd,omitempty"`
	TopK         int                `yaml:"top_k,omitempty" json:"topK,omitempty"`
	MaxExposure  uint32             `yaml:"max_exposure,omitempty" json:"maxExposure,omitempty"`
	Blueprint    map[string]float64 `yaml:"blueprint,omitempty" json:"blueprint,omitempty"`
	AnchorPolicy *AnchorPolicySpec  `yaml:"anchor_policy,omitempty" json:"anchorPolicy,omitempty"`
	// ItemIDs fixes the item order for fixed and speed nodes and restricts
	// the pool for cat nodes.
	ItemIDs              []string `yaml:"items,omitempty" json:"items,omitempty"`
	ExcludeFromComposite bool     `yaml:"exclude_from_composite,omitempty" json:"excludeFromComposite,omitempty"`

	kind    estimate.Kind
	anchors cat.AnchorPolicy
}

// AnchorPolicySpec is the plan form of cat.AnchorPolicy. Fields left out of
// the plan take their value from cat.DefaultAnchorPolicy.
type AnchorPolicySpec struct {
	TargetProp    *float64 `yaml:"target_prop,omitempty" json:"targetProp,omitempty"`
	MinAnchors    *int     `yaml:"min_anchors,omitempty" json:"minAnchors,omitempty"`
	MaxAnchors    *int     `yaml:"max_anchors,omitempty" json:"maxAnchors,omitempty"`
	AvoidFirstTwo *bool    `yaml:"avoid_first_two,omitempty" json:"avoidFirstTwo,omitempty"`
	MiniBlockN    *int     `yaml:"mini_block_n,omitempty" json:"miniBlockN,omitempty"`
}

// Resolve fills every unset field from the default policy. A nil spec is
// the default policy.
func (s *AnchorPolicySpec) Resolve() cat.AnchorPolicy {
	ap := cat.DefaultAnchorPolicy()
	if s == nil {
		return ap
	}
	if s.TargetProp != nil {
		ap.TargetProp = *s.TargetProp
	}
	if s.MinAnchors != nil {
		ap.MinAnchors = *s.MinAnchors
	}
	if s.MaxAnchors != nil {
		ap.MaxAnchors = *s.MaxAnchors
	}
	if s.AvoidFirstTwo != nil {
		ap.AvoidFirstTwo = *s.AvoidFirstTwo
	}
	if s.MiniBlockN != nil {
		ap.MiniBlockN = *s.MiniBlockN
	}
	return ap
}

type Plan struct {
	ID    string `yaml:"id" json:"id"`
	Seed  uint64 `yaml:"seed" json:"seed"`
	Nodes []Node `yaml:"nodes" json:"nodes"`
}

// DefaultPlan is the embedded full battery.
func DefaultPlan() (*Plan, error) {
	return ParsePlan(defaultPlanYAML)
}

func LoadPlan(path string) (*Plan, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPlan()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read plan %s", path), errors.ErrConfig)
	}
	p, err := ParsePlan(data)
	if err != nil {
		return nil, errors.Wrapf(err, "plan %s", path)
	}
	return p, nil
}

func ParsePlan(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode plan"), errors.ErrConfig)
	}
	if err := p.normalize(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Plan) normalize() error {
	if strings.TrimSpace(p.ID) == "" {
		return planErr("plan id is required")
	}
	if len(p.Nodes) == 0 {
		return planErr("plan %s has no nodes", p.ID)
	}
	seen := map[string]bool{}
	for i := range p.Nodes {
		n := &p.Nodes[i]
		if n.ID == "" {
			return planErr("node #%d has no id", i)
		}
		if seen[n.ID] {
			return planErr("duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
		if err := n.normalize(); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) normalize() error {
	n.Domain = bank.NormalizeDomain(n.Domain)
	if n.Domain == "" {
		return planErr("node %s has no domain", n.ID)
	}
	if n.Mode == "" {
		n.Mode = ModeCAT
	}
	n.Mode = Mode(strings.ToLower(string(n.Mode)))
	switch n.Mode {
	case ModeCAT:
	case ModeFixed, ModeSpeed:
		if len(n.ItemIDs) == 0 {
			return planErr("%s node %s lists no items", n.Mode, n.ID)
		}
	default:
		return planErr("node %s: unknown mode %q", n.ID, n.Mode)
	}
	kind, err := estimate.ParseKind(n.Estimator)
	if err != nil {
		return errors.Wrapf(err, "node %s", n.ID)
	}
	n.kind = kind
	if n.MinItems <= 0 {
		n.MinItems = session.DefaultMinItems
	}
	if n.MaxItems <= 0 {
		n.MaxItems = session.DefaultMaxItems
	}
	n.MaxItems = max(n.MaxItems, n.MinItems)
	if !(n.SEMThreshold > 0) {
		n.SEMThreshold = session.DefaultSEMThreshold
	}
	if n.TopK <= 0 {
		n.TopK = cat.DefaultTopK
	}
	if n.MaxExposure == 0 {
		n.MaxExposure = DefaultMaxExposure
	}
	if !(n.PriorSD > 0) {
		n.PriorMean, n.PriorSD = 0, 1
	}
	n.anchors = n.AnchorPolicy.Resolve()
	bp, err := bank.NormalizeBlueprint(n.Blueprint)
	if err != nil {
		return errors.Wrapf(err, "node %s", n.ID)
	}
	n.Blueprint = bp
	return nil
}

func (n *Node) prior() estimate.Prior {
	return estimate.Prior{Mean: n.PriorMean, SD: n.PriorSD}
}

func (n *Node) estimator() estimate.Estimator {
	return estimate.New(n.kind, n.GridStep)
}

// Validate checks that every listed item exists in b under the node's domain.
func (p *Plan) Validate(b *bank.Bank) error {
	for _, n := range p.Nodes {
		if _, err := b.Resolve(n.Domain, n.ItemIDs); err != nil {
			return errors.Wrapf(err, "node %s", n.ID)
		}
		if n.Mode == ModeCAT && len(n.ItemIDs) == 0 && len(b.Domain(n.Domain)) == 0 {
			return planErr("node %s: bank has no %s items", n.ID, n.Domain)
		}
	}
	return nil
}

func planErr(format string, args ...any) error {
	return errors.Mark(errors.Newf("invalid plan: "+format, args...), errors.ErrConfig)
}

package cat

import "math"

// AnchorPolicy controls how many anchor items a domain administers so scores
// from different forms can be linked later.
type AnchorPolicy struct {
	TargetProp    float64 `json:"target_prop" yaml:"target_prop"`
	MinAnchors    int     `json:"min_anchors" yaml:"min_anchors"`
	MaxAnchors    int     `json:"max_anchors" yaml:"max_anchors"`
	AvoidFirstTwo bool    `json:"avoid_first_two" yaml:"avoid_first_two"`
	// MiniBlockN forces an anchor-only run of this many items at the start.
	MiniBlockN int `json:"mini_block_n" yaml:"mini_block_n"`
}

func DefaultAnchorPolicy() AnchorPolicy {
	return AnchorPolicy{TargetProp: 0.22, MinAnchors: 2, MaxAnchors: 6}
}

func (p AnchorPolicy) normalized() AnchorPolicy {
	if math.IsNaN(p.TargetProp) || p.TargetProp < 0 {
		p.TargetProp = 0
	}
	if p.TargetProp > 1 {
		p.TargetProp = 1
	}
	if p.MinAnchors < 0 {
		p.MinAnchors = 0
	}
	if p.MaxAnchors < p.MinAnchors {
		p.MaxAnchors = p.MinAnchors
	}
	if p.MiniBlockN < 0 {
		p.MiniBlockN = 0
	}
	return p
}

const (
	DefaultTopK = 5

	weightInformation = 0.70
	weightNeed        = 0.26
	anchorBonus       = 0.04
	jitterSpan        = 0.05
)

// Policy is the per-domain selection configuration.
type Policy struct {
	TopK int
	// MaxExposure is the per-item administration cap; zero disables it.
	MaxExposure uint32
	// Blueprint maps item family to its target share of the domain.
	Blueprint map[string]float64
	Anchors   AnchorPolicy
}

func (p Policy) topK() int {
	if p.TopK <= 0 {
		return DefaultTopK
	}
	return p.TopK
}

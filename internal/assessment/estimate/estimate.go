// Package estimate turns a response history into an ability estimate. Two
// Bayesian estimators share one interface so the choice stays a per-subtest
// setting.
package estimate

import (
	"math"
	"strings"

	"github.com/yungbote/neurobridge-cat/internal/assessment/irt"
	"github.com/yungbote/neurobridge-cat/internal/domain/assessment"
	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
)

type Kind string

const (
	KindMAP Kind = "MAP"
	KindEAP Kind = "EAP"
)

// ParseKind accepts "map"/"eap" in any case; empty means MAP.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", "MAP":
		return KindMAP, nil
	case "EAP":
		return KindEAP, nil
	default:
		return "", errors.Mark(errors.Newf("unknown estimator %q", raw), errors.ErrConfig)
	}
}

// Prior is the normal prior on theta.
type Prior struct {
	Mean float64 `json:"mean" yaml:"mean"`
	SD   float64 `json:"sd" yaml:"sd"`
}

func DefaultPrior() Prior { return Prior{Mean: 0, SD: 1} }

func (p Prior) normalized() Prior {
	if math.IsNaN(p.Mean) || math.IsInf(p.Mean, 0) {
		p.Mean = 0
	}
	if !(p.SD > 0) || math.IsInf(p.SD, 0) {
		p.SD = 1
	}
	return p
}

// Estimate returns the prior itself as the estimate before any evidence.
func (p Prior) Estimate() assessment.AbilityEstimate {
	p = p.normalized()
	return assessment.AbilityEstimate{Theta: irt.ClampTheta(p.Mean), SEM: p.SD}
}

func (p Prior) density(theta float64) float64 {
	z := (theta - p.Mean) / p.SD
	return math.Exp(-0.5*z*z) / (math.Sqrt(2*math.Pi) * p.SD)
}

// Observation is one scored response reduced to what the likelihood needs.
type Observation struct {
	Params  irt.Params
	Correct bool
}

// Observe converts a response log to observations, dropping unscored
// responses. lookup resolves an item id to its record.
func Observe(responses []assessment.Response, lookup func(id string) *assessment.Item) []Observation {
	out := make([]Observation, 0, len(responses))
	for _, r := range responses {
		if r.Correct == nil {
			continue
		}
		it := lookup(r.ItemID)
		if it == nil {
			continue
		}
		out = append(out, Observation{Params: irt.ParamsOf(it), Correct: *r.Correct})
	}
	return out
}

// Result carries the estimate plus diagnostics for logging.
type Result struct {
	assessment.AbilityEstimate
	Iterations int
	// Degenerate is set when the posterior could not be formed and the prior
	// was returned instead.
	Degenerate bool
}

type Estimator interface {
	Kind() Kind
	// Estimate computes theta/sem from obs. start is the previous theta; only
	// iterative estimators use it.
	Estimate(obs []Observation, prior Prior, start float64) Result
}

// New builds the estimator for kind. gridStep only applies to EAP; zero
// selects the default.
func New(kind Kind, gridStep float64) Estimator {
	if kind == KindEAP {
		return NewEAP(gridStep)
	}
	return NewMAP()
}

// TotalInformation sums item information at theta.
func TotalInformation(obs []Observation, theta float64) float64 {
	total := 0.0
	for _, o := range obs {
		total += o.Params.Information(theta)
	}
	return total
}

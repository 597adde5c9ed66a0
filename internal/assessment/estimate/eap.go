package estimate

import (
	"math"

	"github.com/yungbote/neurobridge-cat/internal/assessment/irt"
)

const (
	DefaultGridStep = 0.1
	maxGridStep     = 0.25
)

// EAP integrates the posterior on a fixed quadrature grid over the theta
// range.
type EAP struct {
	grid []float64
}

// NewEAP builds the grid; step is held to [0.1, 0.25] and defaults to 0.1.
func NewEAP(step float64) *EAP {
	if !(step > 0) {
		step = DefaultGridStep
	}
	step = irt.ClampRange(step, DefaultGridStep, maxGridStep)
	n := int(math.Floor((irt.ThetaMax-irt.ThetaMin)/step + 1e-9))
	grid := make([]float64, 0, n+2)
	for i := 0; i <= n; i++ {
		grid = append(grid, irt.ThetaMin+float64(i)*step)
	}
	// the last point lands on ThetaMax only when step divides the range
	if last := grid[len(grid)-1]; irt.ThetaMax-last > 1e-9 {
		grid = append(grid, irt.ThetaMax)
	} else {
		grid[len(grid)-1] = irt.ThetaMax
	}
	return &EAP{grid: grid}
}

func (e *EAP) Kind() Kind { return KindEAP }

// Grid returns a copy of the quadrature points.
func (e *EAP) Grid() []float64 {
	return append([]float64(nil), e.grid...)
}

// Posterior returns normalised posterior weights on the grid. ok is false
// when the total weight is zero or not finite.
func (e *EAP) Posterior(obs []Observation, prior Prior) ([]float64, bool) {
	prior = prior.normalized()
	logw := make([]float64, len(e.grid))
	maxLog := math.Inf(-1)
	for i, theta := range e.grid {
		ll := math.Log(prior.density(theta))
		for _, o := range obs {
			ll += o.Params.LogLikelihood(theta, o.Correct)
		}
		logw[i] = ll
		if ll > maxLog {
			maxLog = ll
		}
	}
	if math.IsNaN(maxLog) || math.IsInf(maxLog, 0) {
		return nil, false
	}

	// Shifting by the max log weight leaves the normalised weights unchanged
	// and keeps long response strings from underflowing to zero.
	w := make([]float64, len(e.grid))
	sum := 0.0
	for i, lw := range logw {
		w[i] = math.Exp(lw - maxLog)
		sum += w[i]
	}
	if !(sum > 0) || math.IsInf(sum, 0) || math.IsNaN(sum) {
		return nil, false
	}
	for i := range w {
		w[i] /= sum
	}
	return w, true
}

func (e *EAP) Estimate(obs []Observation, prior Prior, _ float64) Result {
	w, ok := e.Posterior(obs, prior)
	if !ok {
		p := prior.normalized()
		return Result{AbilityEstimate: p.Estimate(), Degenerate: true}
	}
	mean := 0.0
	for i, theta := range e.grid {
		mean += theta * w[i]
	}
	variance := 0.0
	for i, theta := range e.grid {
		d := theta - mean
		variance += d * d * w[i]
	}
	res := Result{Iterations: 1}
	res.Theta = mean
	res.SEM = math.Sqrt(variance)
	if !(res.SEM > 0) {
		// A posterior collapsed onto one grid point still has at least half a
		// grid step of uncertainty.
		res.SEM = prior.normalized().SD
		if len(e.grid) > 1 {
			res.SEM = (e.grid[1] - e.grid[0]) / 2
		}
	}
	return res
}

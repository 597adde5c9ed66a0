package estimate

import (
	"math"

	"github.com/yungbote/neurobridge-cat/internal/assessment/irt"
)

const (
	mapMaxIter   = 14
	mapTolerance = 1e-3
)

// MAP finds the posterior mode with Newton-Raphson, using expected
// information for the curvature so the step is always an ascent direction.
type MAP struct {
	MaxIter   int
	Tolerance float64
}

func NewMAP() *MAP {
	return &MAP{MaxIter: mapMaxIter, Tolerance: mapTolerance}
}

func (m *MAP) Kind() Kind { return KindMAP }

func (m *MAP) Estimate(obs []Observation, prior Prior, start float64) Result {
	prior = prior.normalized()
	priorInfo := 1.0 / (prior.SD * prior.SD)

	theta := start
	if math.IsNaN(theta) || math.IsInf(theta, 0) {
		theta = prior.Mean
	}
	theta = irt.ClampTheta(theta)

	iters := 0
	for iters < m.MaxIter {
		iters++
		grad := -(theta - prior.Mean) * priorInfo
		hess := -priorInfo
		for _, o := range obs {
			grad += scoreContribution(o, theta)
			hess -= o.Params.Information(theta)
		}
		step := grad / hess
		theta = irt.ClampTheta(theta - step)
		if math.Abs(step) < m.Tolerance {
			break
		}
	}

	info := TotalInformation(obs, theta) + priorInfo
	res := Result{Iterations: iters}
	res.Theta = theta
	res.SEM = 1.0 / math.Sqrt(info)
	return res
}

// scoreContribution is d/dtheta of the log-likelihood of one response:
// a(x-p) for 2PL, and the chain-rule form p'(x-p)/(p(1-p)) for 3PL.
func scoreContribution(o Observation, theta float64) float64 {
	x := 0.0
	if o.Correct {
		x = 1
	}
	p := o.Params.Prob(theta)
	if o.Params.C <= 0 {
		return o.Params.A * (x - p)
	}
	pq := math.Max(1e-9, p*(1-p))
	return o.Params.Slope(theta) * (x - p) / pq
}

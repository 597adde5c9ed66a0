// Package irt holds the item response functions the engine is built on. All
// functions are pure and safe for concurrent use.
package irt

import (
	"math"

	"github.com/yungbote/neurobridge-cat/internal/domain/assessment"
)

const (
	// ThetaMin and ThetaMax bound the practical ability range.
	ThetaMin = -4.0
	ThetaMax = 4.0

	probEpsilon = 1e-9
)

// Params are the logistic parameters of one item. C is ignored for 2PL.
type Params struct {
	A float64
	B float64
	C float64
}

// ParamsOf extracts the scoring parameters of an item.
func ParamsOf(it *assessment.Item) Params {
	return Params{A: it.A, B: it.B, C: it.Guessing()}
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		z := math.Exp(-x)
		return 1.0 / (1.0 + z)
	}
	z := math.Exp(x)
	return z / (1.0 + z)
}

// P2PL is the two-parameter logistic probability of a correct response.
func P2PL(theta, a, b float64) float64 {
	return sigmoid(a * (theta - b))
}

// P3PL adds a lower asymptote c to the 2PL curve.
func P3PL(theta, a, b, c float64) float64 {
	return c + (1-c)*P2PL(theta, a, b)
}

// Prob evaluates the item's own model.
func (p Params) Prob(theta float64) float64 {
	if p.C > 0 {
		return P3PL(theta, p.A, p.B, p.C)
	}
	return P2PL(theta, p.A, p.B)
}

// Information is the Fisher information of the item at theta.
//
// For 3PL items this is the usual operational approximation
// (a(1-c)p*(1-p*))^2 / (p(1-p)) with p* the 2PL curve and the denominator held
// away from zero; it is not the exact 3PL information.
func (p Params) Information(theta float64) float64 {
	ps := P2PL(theta, p.A, p.B)
	if p.C <= 0 {
		return p.A * p.A * ps * (1 - ps)
	}
	p3 := p.C + (1-p.C)*ps
	dp := p.A * (1 - p.C) * ps * (1 - ps)
	return dp * dp / math.Max(probEpsilon, p3*(1-p3))
}

// Slope is dP/dtheta of the item's model.
func (p Params) Slope(theta float64) float64 {
	ps := P2PL(theta, p.A, p.B)
	return p.A * (1 - p.C) * ps * (1 - ps)
}

// LogLikelihood is x*ln(p) + (1-x)*ln(1-p) with p clamped to avoid -Inf.
func (p Params) LogLikelihood(theta float64, correct bool) float64 {
	prob := ClampRange(p.Prob(theta), probEpsilon, 1-probEpsilon)
	if correct {
		return math.Log(prob)
	}
	return math.Log(1 - prob)
}

// Information is a convenience wrapper over Params.Information.
func Information(theta float64, it *assessment.Item) float64 {
	return ParamsOf(it).Information(theta)
}

// ClampRange clamps x to [lo, hi]; NaN maps to lo.
func ClampRange(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// ClampTheta clamps theta into [ThetaMin, ThetaMax].
func ClampTheta(theta float64) float64 {
	return ClampRange(theta, ThetaMin, ThetaMax)
}

// Logit is the inverse logistic with p held inside (0.001, 0.999).
func Logit(p float64) float64 {
	p = ClampRange(p, 0.001, 0.999)
	return math.Log(p / (1.0 - p))
}

package estimate

import (
	"math"

	"github.com/yungbote/neurobridge-cat/internal/assessment/irt"
)

// SpeedProxy converts a processing-speed tally into a theta proxy. Speed
// blocks are not calibrated items, so the estimate is a smoothed log-odds of
// accuracy shrunk toward zero for short blocks.
func SpeedProxy(attempted, correct int) Result {
	if attempted < 0 {
		attempted = 0
	}
	if correct < 0 {
		correct = 0
	}
	if correct > attempted {
		correct = attempted
	}
	att := math.Max(1, float64(attempted))
	adjAcc := (float64(correct) + 0.5) / (att + 1.0)
	scale := irt.ClampRange(math.Sqrt(att/30), 0.4, 1.25)
	theta := irt.ClampRange(irt.Logit(adjAcc)/1.6, -3, 3) * scale

	info := math.Max(1e-6, att/18)
	res := Result{Iterations: 1}
	res.Theta = theta
	res.SEM = 1 / math.Sqrt(info)
	return res
}

// Package simulate runs synthetic respondents with known abilities through a
// plan to measure estimation accuracy and item exposure.
package simulate

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/neurobridge-cat/internal/assessment/irt"
	"github.com/yungbote/neurobridge-cat/internal/assessment/runner"
	"github.com/yungbote/neurobridge-cat/internal/domain/assessment"
	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
	"github.com/yungbote/neurobridge-cat/internal/platform/logger"
)

const (
	DefaultRespondents = 200
	DefaultParallel    = 8
	// DefaultCorrelation is the loading of every domain on the general factor.
	DefaultCorrelation = 0.6
)

type Config struct {
	Respondents int
	Parallel    int
	Seed        uint64
	Correlation float64
	// PageItems is the mean number of items a simulated respondent of
	// average speed attempts on one speed page.
	PageItems float64
	AgeYears  *float64
}

func (c Config) normalized() Config {
	if c.Respondents <= 0 {
		c.Respondents = DefaultRespondents
	}
	if c.Parallel <= 0 {
		c.Parallel = DefaultParallel
	}
	if c.Correlation < 0 || c.Correlation > 1 || math.IsNaN(c.Correlation) {
		c.Correlation = DefaultCorrelation
	}
	if c.PageItems <= 0 {
		c.PageItems = 8
	}
	return c
}

type DomainStats struct {
	Domain    string  `json:"domain"`
	N         int     `json:"n"`
	Bias      float64 `json:"bias"`
	RMSE      float64 `json:"rmse"`
	MeanItems float64 `json:"meanItems"`
	MeanSEM   float64 `json:"meanSem"`
}

type Report struct {
	Respondents     int           `json:"respondents"`
	Domains         []DomainStats `json:"domains"`
	MeanComposite   float64       `json:"meanComposite"`
	ItemsExposed    int           `json:"itemsExposed"`
	MaxExposure     int           `json:"maxExposure"`
	MaxExposureItem string        `json:"maxExposureItem,omitempty"`
	MaxExposureRate float64       `json:"maxExposureRate"`
	Elapsed         time.Duration `json:"elapsed"`
}

// Respondent is one simulated test-taker.
type Respondent struct {
	ID        string
	TrueTheta map[string]float64
	// Speed lists domains answered with a page tally.
	Speed map[string]bool

	pageItems  float64
	rng        *rand.Rand
	mu         sync.Mutex
	onExposure func(itemID string)
}

// NewRespondent draws per-domain abilities loading on a shared general factor.
func NewRespondent(id string, domains []string, correlation float64, seed uint64) *Respondent {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	g := rng.NormFloat64()
	unique := math.Sqrt(1 - correlation*correlation)
	theta := make(map[string]float64, len(domains))
	for _, d := range domains {
		theta[d] = correlation*g + unique*rng.NormFloat64()
	}
	return &Respondent{ID: id, TrueTheta: theta, pageItems: 8, rng: rng}
}

// Present answers with the IRT response probability at the true ability.
// Speed domains report a page tally instead of a single answer.
func (r *Respondent) Present(_ context.Context, domain string, item *assessment.Item, _ assessment.AbilityEstimate) (runner.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.onExposure != nil {
		r.onExposure(item.ID)
	}
	theta := r.TrueTheta[domain]
	rt := 1500 + 400*r.rng.NormFloat64()
	if rt < 200 {
		rt = 200
	}
	if r.Speed[domain] {
		mean := r.pageItems * (1 + 0.25*theta)
		attempted := max(1, int(math.Round(mean+r.rng.NormFloat64())))
		p := 1 / (1 + math.Exp(-1.6*theta))
		correct := 0
		for i := 0; i < attempted; i++ {
			if r.rng.Float64() < p {
				correct++
			}
		}
		return runner.Outcome{RTMs: &rt, Tally: &runner.Tally{Attempted: attempted, Correct: correct}}, nil
	}
	ok := r.rng.Float64() < irt.ParamsOf(item).Prob(theta)
	return runner.Outcome{Correct: &ok, RTMs: &rt}, nil
}

type outcome struct {
	truth  map[string]float64
	result *runner.Result
}

// Batch runs cfg.Respondents through plan with at most cfg.Parallel sessions
// in flight. All sessions share the runner's exposure ledger. With
// Parallel > 1 selection order depends on scheduling, so only Parallel = 1
// is reproducible.
func Batch(ctx context.Context, r *runner.Runner, plan *runner.Plan, cfg Config, log *logger.Logger) (*Report, error) {
	if r == nil || plan == nil {
		return nil, errors.Mark(errors.New("simulation needs a runner and a plan"), errors.ErrInvalidArgument)
	}
	if log == nil {
		log = logger.Nop()
	}
	cfg = cfg.normalized()
	log = log.With("service", "Simulator", "plan_id", plan.ID, "respondents", cfg.Respondents)
	started := time.Now()

	domains, speed := planDomains(plan)
	results := make([]outcome, cfg.Respondents)

	var expMu sync.Mutex
	exposure := map[string]int{}
	countExposure := func(id string) {
		expMu.Lock()
		exposure[id]++
		expMu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Parallel)
	for i := 0; i < cfg.Respondents; i++ {
		g.Go(func() error {
			id := "sim-" + strconv.Itoa(i)
			resp := NewRespondent(id, domains, cfg.Correlation, cfg.Seed+uint64(i))
			resp.Speed = speed
			resp.pageItems = cfg.PageItems
			resp.onExposure = countExposure
			res, err := r.Run(gctx, plan, runner.Respondent{ID: id, AgeYears: cfg.AgeYears}, resp)
			if err != nil {
				return errors.Wrapf(err, "respondent %s", id)
			}
			results[i] = outcome{truth: resp.TrueTheta, result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("Simulation failed", "error", err)
		return nil, err
	}

	rep := summarize(results, exposure, cfg.Respondents)
	rep.Elapsed = time.Since(started)
	log.Info("Simulation finished",
		"elapsed", rep.Elapsed.String(),
		"max_exposure_rate", rep.MaxExposureRate,
		"mean_composite", rep.MeanComposite,
	)
	return rep, nil
}

func planDomains(plan *runner.Plan) ([]string, map[string]bool) {
	seen := map[string]struct{}{}
	speed := map[string]bool{}
	var out []string
	for _, n := range plan.Nodes {
		if n.Mode == runner.ModeSpeed {
			speed[n.Domain] = true
		}
		if _, ok := seen[n.Domain]; ok {
			continue
		}
		seen[n.Domain] = struct{}{}
		out = append(out, n.Domain)
	}
	sort.Strings(out)
	return out, speed
}

type acc struct {
	n        int
	sumErr   float64
	sumSqErr float64
	sumItems float64
	sumSEM   float64
}

func summarize(results []outcome, exposure map[string]int, respondents int) *Report {
	byDomain := map[string]*acc{}
	var compositeSum float64
	var compositeN int
	for _, o := range results {
		if o.result == nil {
			continue
		}
		for _, s := range o.result.Summaries() {
			truth, ok := o.truth[s.Domain]
			if !ok {
				continue
			}
			a := byDomain[s.Domain]
			if a == nil {
				a = &acc{}
				byDomain[s.Domain] = a
			}
			d := s.Theta - truth
			a.n++
			a.sumErr += d
			a.sumSqErr += d * d
			a.sumItems += float64(s.N)
			a.sumSEM += s.SEM
		}
		if o.result.Report != nil {
			compositeSum += o.result.Report.Composite.Index
			compositeN++
		}
	}

	rep := &Report{Respondents: respondents}
	for domain, a := range byDomain {
		n := float64(a.n)
		rep.Domains = append(rep.Domains, DomainStats{
			Domain:    domain,
			N:         a.n,
			Bias:      a.sumErr / n,
			RMSE:      math.Sqrt(a.sumSqErr / n),
			MeanItems: a.sumItems / n,
			MeanSEM:   a.sumSEM / n,
		})
	}
	sort.Slice(rep.Domains, func(i, j int) bool { return rep.Domains[i].Domain < rep.Domains[j].Domain })
	if compositeN > 0 {
		rep.MeanComposite = compositeSum / float64(compositeN)
	}

	rep.ItemsExposed = len(exposure)
	for id, c := range exposure {
		if c > rep.MaxExposure || (c == rep.MaxExposure && id < rep.MaxExposureItem) {
			rep.MaxExposure = c
			rep.MaxExposureItem = id
		}
	}
	if respondents > 0 {
		rep.MaxExposureRate = float64(rep.MaxExposure) / float64(respondents)
	}
	return rep
}

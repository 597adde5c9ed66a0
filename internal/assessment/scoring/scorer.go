// Package scoring turns finished domain summaries into a composite report:
// age-adjusted thetas, a weighted composite theta, an information-pooled SEM,
// and index, percentile and 95% interval on the norm pack's scale.
package scoring

import (
	"math"
	"sort"

	"github.com/yungbote/neurobridge-cat/internal/domain/assessment"
	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
	"github.com/yungbote/neurobridge-cat/internal/platform/logger"
)

const (
	ciZ = 1.96
	// DefaultCompositeSEM is used when no domain carries information.
	DefaultCompositeSEM = 0.3
)

// DefaultWeights is the CHC loading table for the composite.
var DefaultWeights = map[string]float64{
	"Gf":  0.22,
	"Gv":  0.16,
	"Gq":  0.18,
	"Gwm": 0.18,
	"Gs":  0.12,
	"Gc":  0.14,
}

type Options struct {
	AgeYears  *float64
	AgeBandID string
	// Weights overrides both the pack and the default table when set.
	Weights map[string]float64
}

type Interval struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

type Score struct {
	Theta      float64  `json:"theta"`
	SEM        float64  `json:"sem"`
	Index      float64  `json:"index"`
	Percentile float64  `json:"percentile"`
	CI95       Interval `json:"ci95"`
	Source     Source   `json:"source"`
}

type DomainScore struct {
	Score
	Label    string  `json:"label,omitempty"`
	RawTheta float64 `json:"rawTheta"`
	N        int     `json:"n"`
	Weight   float64 `json:"weight"`
	// Scaled is the subtest scaled score, mean 10 sd 3.
	Scaled float64 `json:"scaled"`
}

type Report struct {
	NormVersion string                 `json:"normVersion,omitempty"`
	AgeYears    *float64               `json:"ageYears,omitempty"`
	AgeBandID   string                 `json:"ageBandId,omitempty"`
	Composite   Score                  `json:"composite"`
	Domains     map[string]DomainScore `json:"domains"`
}

type Scorer struct {
	pack       *NormPack
	defaultSEM float64
	log        *logger.Logger
}

// NewScorer accepts a nil pack, which scores everything on the baseline.
func NewScorer(pack *NormPack, defaultSEM float64, baseLog *logger.Logger) *Scorer {
	if !(defaultSEM > 0) || math.IsInf(defaultSEM, 0) {
		defaultSEM = DefaultCompositeSEM
	}
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &Scorer{pack: pack, defaultSEM: defaultSEM, log: baseLog.With("service", "CompositeScorer")}
}

func (s *Scorer) Pack() *NormPack { return s.pack }

// Score computes the report. Every summary must be a finished domain with a
// finite theta and positive sem; nothing is rounded here.
func (s *Scorer) Score(summaries []assessment.DomainSummary, opts Options) (Report, error) {
	if len(summaries) == 0 {
		return Report{}, errors.Mark(errors.New("no domain summaries to score"), errors.ErrInvalidArgument)
	}
	seen := make(map[string]struct{}, len(summaries))
	for _, d := range summaries {
		if _, dup := seen[d.Domain]; dup {
			return Report{}, errors.Mark(errors.Newf("duplicate domain %q", d.Domain), errors.ErrInvalidArgument)
		}
		seen[d.Domain] = struct{}{}
		if !finite(d.Theta) || !(d.SEM > 0) || math.IsInf(d.SEM, 0) {
			return Report{}, errors.Mark(errors.Newf("domain %q: theta=%v sem=%v not usable", d.Domain, d.Theta, d.SEM), errors.ErrInvalidArgument)
		}
	}

	weights := s.weights(summaries, opts.Weights)

	rep := Report{
		AgeYears:  opts.AgeYears,
		AgeBandID: opts.AgeBandID,
		Domains:   make(map[string]DomainScore, len(summaries)),
	}
	if s.pack != nil {
		rep.NormVersion = s.pack.Version
	}

	num, infoSum := 0.0, 0.0
	for _, d := range summaries {
		adjusted := AdjustTheta(d.Domain, d.Theta, opts.AgeYears)
		m, src := s.pack.DomainMapping(d.Domain)
		w := weights[d.Domain]
		rep.Domains[d.Domain] = DomainScore{
			Score:    project(m, src, adjusted, d.SEM),
			Label:    s.pack.label(d.Domain),
			RawTheta: d.Theta,
			N:        d.N,
			Weight:   w,
			Scaled:   10 + 3*m.Z(adjusted),
		}
		num += w * adjusted
		infoSum += 1 / (d.SEM * d.SEM)
	}

	theta := num
	sem := s.defaultSEM
	if infoSum > 0 && finite(infoSum) {
		sem = 1 / math.Sqrt(infoSum)
	}
	m, src, band := s.pack.CompositeMapping(opts.AgeBandID, opts.AgeYears)
	if band != "" {
		rep.AgeBandID = band
	}
	if opts.AgeBandID != "" && src != SourceAgeBand {
		s.log.Warn("age band not usable; falling back", "age_band", opts.AgeBandID, "source", src)
	}
	rep.Composite = project(m, src, theta, sem)
	return rep, nil
}

// weights resolves each present domain's weight and rescales them to sum to 1.
// If every present domain has zero weight they are weighted equally.
func (s *Scorer) weights(summaries []assessment.DomainSummary, override map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(summaries))
	total := 0.0
	for _, d := range summaries {
		var w float64
		switch v, ok := s.pack.weight(d.Domain); {
		case override != nil:
			w = override[d.Domain]
		case ok:
			w = v
		default:
			w = DefaultWeights[d.Domain]
		}
		if !finite(w) || w < 0 {
			w = 0
		}
		out[d.Domain] = w
		total += w
	}
	if total <= 0 {
		for k := range out {
			out[k] = 1 / float64(len(out))
		}
		return out
	}
	for k, w := range out {
		out[k] = w / total
	}
	return out
}

func project(m Mapping, src Source, theta, sem float64) Score {
	return Score{
		Theta:      theta,
		SEM:        sem,
		Index:      m.Index(theta),
		Percentile: NormalCDF(m.Z(theta)) * 100,
		CI95: Interval{
			Lo: m.Index(theta - ciZ*sem),
			Hi: m.Index(theta + ciZ*sem),
		},
		Source: src,
	}
}

func NormalCDF(z float64) float64 {
	return 0.5 * math.Erfc(-z/math.Sqrt2)
}

// DomainsSorted lists the report's domains alphabetically.
func (r Report) DomainsSorted() []string {
	out := make([]string, 0, len(r.Domains))
	for d := range r.Domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Rounded is the presentation form: indices, percentiles and intervals to one
// decimal, thetas and sems to three.
func (r Report) Rounded() Report {
	out := r
	out.Composite = r.Composite.rounded()
	out.Domains = make(map[string]DomainScore, len(r.Domains))
	for k, d := range r.Domains {
		d.Score = d.Score.rounded()
		d.RawTheta = round(d.RawTheta, 3)
		d.Weight = round(d.Weight, 3)
		d.Scaled = round(d.Scaled, 1)
		out.Domains[k] = d
	}
	return out
}

func (s Score) rounded() Score {
	s.Theta = round(s.Theta, 3)
	s.SEM = round(s.SEM, 3)
	s.Index = round(s.Index, 1)
	s.Percentile = round(s.Percentile, 1)
	s.CI95 = Interval{Lo: round(s.CI95.Lo, 1), Hi: round(s.CI95.Hi, 1)}
	return s
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

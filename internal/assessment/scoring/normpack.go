package scoring

import (
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
)

// Mapping is a linear theta-to-index transform.
type Mapping struct {
	Mean      float64 `json:"mean" yaml:"mean"`
	SD        float64 `json:"sd" yaml:"sd"`
	ThetaMean float64 `json:"thetaMean" yaml:"thetaMean"`
	ThetaSD   float64 `json:"thetaSd" yaml:"thetaSd"`
}

func BaselineMapping() Mapping {
	return Mapping{Mean: 100, SD: 15, ThetaMean: 0, ThetaSD: 1}
}

func (m Mapping) Valid() bool {
	return finite(m.Mean) && finite(m.SD) && finite(m.ThetaMean) && finite(m.ThetaSD) &&
		m.SD > 0 && m.ThetaSD > 0
}

func (m Mapping) Z(theta float64) float64 { return (theta - m.ThetaMean) / m.ThetaSD }

func (m Mapping) Index(theta float64) float64 { return m.Mean + m.SD*m.Z(theta) }

// DomainNorm is one domain's entry in a norm pack. Mean/SD locate the domain's
// theta distribution; ScoreMean/ScoreSD give the index scale.
type DomainNorm struct {
	Label     string   `json:"label,omitempty" yaml:"label"`
	Mean      float64  `json:"mean" yaml:"mean"`
	SD        float64  `json:"sd" yaml:"sd"`
	Weight    *float64 `json:"weight,omitempty" yaml:"weight"`
	ScoreMean float64  `json:"scoreMean" yaml:"scoreMean"`
	ScoreSD   float64  `json:"scoreSd" yaml:"scoreSd"`
}

func (d DomainNorm) mapping() Mapping {
	return Mapping{Mean: d.ScoreMean, SD: d.ScoreSD, ThetaMean: d.Mean, ThetaSD: d.SD}
}

// AgeBand re-centres the composite mapping for a reference group. MinAge and
// MaxAge are optional and only used to pick a band from an age.
type AgeBand struct {
	ID        string   `json:"id" yaml:"id"`
	Label     string   `json:"label,omitempty" yaml:"label"`
	MinAge    *float64 `json:"minAge,omitempty" yaml:"minAge"`
	MaxAge    *float64 `json:"maxAge,omitempty" yaml:"maxAge"`
	ThetaMean float64  `json:"thetaMean" yaml:"thetaMean"`
	ThetaSD   float64  `json:"thetaSd" yaml:"thetaSd"`
	N         int      `json:"n,omitempty" yaml:"n"`
}

func (b AgeBand) contains(age float64) bool {
	if b.MinAge == nil && b.MaxAge == nil {
		return false
	}
	if b.MinAge != nil && age < *b.MinAge {
		return false
	}
	if b.MaxAge != nil && age >= *b.MaxAge {
		return false
	}
	return true
}

// NormPack is read-only scoring configuration.
type NormPack struct {
	Version   string                `json:"version,omitempty" yaml:"version"`
	Indices   map[string]DomainNorm `json:"indices,omitempty" yaml:"indices"`
	AgeBands  []AgeBand             `json:"ageBands,omitempty" yaml:"ageBands"`
	ThetaToIQ *Mapping              `json:"thetaToIQ,omitempty" yaml:"thetaToIQ"`
}

func LoadNormPack(path string) (*NormPack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read norm pack %s", path), errors.ErrConfig)
	}
	p, err := ParseNormPack(data)
	if err != nil {
		return nil, errors.Wrapf(err, "norm pack %s", path)
	}
	return p, nil
}

// ParseNormPack decodes a YAML or JSON pack. Numeric fields are checked when
// used; invalid entries fall back to the baseline mapping.
func ParseNormPack(data []byte) (*NormPack, error) {
	var p NormPack
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode norm pack"), errors.ErrConfig)
	}
	for i, b := range p.AgeBands {
		if strings.TrimSpace(b.ID) == "" {
			return nil, errors.Mark(errors.Newf("age band #%d has no id", i), errors.ErrConfig)
		}
	}
	return &p, nil
}

// Source names which mapping produced a score.
type Source string

const (
	SourceAgeBand  Source = "age_band"
	SourcePack     Source = "pack"
	SourceDomain   Source = "domain"
	SourceBaseline Source = "baseline"
)

func (p *NormPack) band(id string, age *float64) (AgeBand, bool) {
	if p == nil {
		return AgeBand{}, false
	}
	if id != "" {
		for _, b := range p.AgeBands {
			if b.ID == id {
				return b, true
			}
		}
		return AgeBand{}, false
	}
	if age != nil {
		for _, b := range p.AgeBands {
			if b.contains(*age) {
				return b, true
			}
		}
	}
	return AgeBand{}, false
}

// CompositeMapping prefers a valid age-band mapping, then the pack-level
// thetaToIQ, then the baseline.
func (p *NormPack) CompositeMapping(bandID string, age *float64) (Mapping, Source, string) {
	scale := BaselineMapping()
	packOK := false
	if p != nil && p.ThetaToIQ != nil && p.ThetaToIQ.Valid() {
		scale = *p.ThetaToIQ
		packOK = true
	}
	if b, ok := p.band(bandID, age); ok {
		m := Mapping{Mean: scale.Mean, SD: scale.SD, ThetaMean: b.ThetaMean, ThetaSD: b.ThetaSD}
		if m.Valid() {
			return m, SourceAgeBand, b.ID
		}
	}
	if packOK {
		return scale, SourcePack, ""
	}
	return BaselineMapping(), SourceBaseline, ""
}

// DomainMapping uses the pack's domain entry when valid, else the baseline.
func (p *NormPack) DomainMapping(domain string) (Mapping, Source) {
	if p != nil {
		if d, ok := p.Indices[domain]; ok {
			if m := d.mapping(); m.Valid() {
				return m, SourceDomain
			}
		}
	}
	return BaselineMapping(), SourceBaseline
}

func (p *NormPack) weight(domain string) (float64, bool) {
	if p == nil {
		return 0, false
	}
	d, ok := p.Indices[domain]
	if !ok || d.Weight == nil || !finite(*d.Weight) || *d.Weight < 0 {
		return 0, false
	}
	return *d.Weight, true
}

func (p *NormPack) label(domain string) string {
	if p == nil {
		return ""
	}
	return p.Indices[domain].Label
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

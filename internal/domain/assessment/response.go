package assessment

// AbilityEstimate is a point estimate of theta with its standard error.
type AbilityEstimate struct {
	Theta float64 `json:"theta"`
	SEM   float64 `json:"sem"`
}

// Response is the immutable record of one administered item. Correct is nil
// for an unscored interaction; such responses are excluded from likelihoods.
type Response struct {
	ItemID      string   `json:"itemId"`
	Family      string   `json:"family,omitempty"`
	Correct     *bool    `json:"correct"`
	RTMs        *float64 `json:"rtMs"`
	ThetaBefore float64  `json:"thetaBefore"`
	ThetaAfter  float64  `json:"thetaAfter"`
	SEMAfter    float64  `json:"semAfter"`
}

// Scored reports whether the response contributes to the likelihood.
func (r Response) Scored() bool { return r.Correct != nil }

// DomainSummary is the read-only snapshot a finished subtest produces.
type DomainSummary struct {
	Domain    string     `json:"domain" yaml:"domain"`
	N         int        `json:"n" yaml:"n"`
	Theta     float64    `json:"theta" yaml:"theta"`
	SEM       float64    `json:"sem" yaml:"sem"`
	Responses []Response `json:"responses,omitempty" yaml:"-"`
}

package runner

import (
	"context"

	"github.com/yungbote/neurobridge-cat/internal/domain/assessment"
)

// Tally is the attempted/correct count a speed page reports.
type Tally struct {
	Attempted int `json:"attempted"`
	Correct   int `json:"correct"`
}

// Outcome is what the presentation layer returns for one item. Correct is
// nil for an unanswered or unscored interaction.
type Outcome struct {
	Correct *bool          `json:"correct"`
	RTMs    *float64       `json:"rtMs,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
	Tally   *Tally         `json:"tally,omitempty"`
}

// Presenter shows an item and blocks until the respondent answers. The runner
// calls it at most once per selected item.
type Presenter interface {
	Present(ctx context.Context, domain string, item *assessment.Item, current assessment.AbilityEstimate) (Outcome, error)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(ctx context.Context, domain string, item *assessment.Item, current assessment.AbilityEstimate) (Outcome, error)

func (f PresenterFunc) Present(ctx context.Context, domain string, item *assessment.Item, current assessment.AbilityEstimate) (Outcome, error) {
	return f(ctx, domain, item, current)
}

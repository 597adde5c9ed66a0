package bank

import (
	"math"
	"strconv"

	"github.com/yungbote/neurobridge-cat/internal/domain/assessment"
)

// DeriveBlueprint returns each family's share of the pool. A session without
// explicit targets uses this so coverage tracks the bank's own composition.
func DeriveBlueprint(items []*assessment.Item) map[string]float64 {
	if len(items) == 0 {
		return nil
	}
	counts := map[string]int{}
	for _, it := range items {
		counts[it.Family]++
	}
	out := make(map[string]float64, len(counts))
	for fam, n := range counts {
		out[fam] = float64(n) / float64(len(items))
	}
	return out
}

// NormalizeBlueprint rescales explicit targets to sum to 1. Negative or
// non-finite shares are rejected.
func NormalizeBlueprint(targets map[string]float64) (map[string]float64, error) {
	if len(targets) == 0 {
		return nil, nil
	}
	sum := 0.0
	for fam, share := range targets {
		if math.IsNaN(share) || math.IsInf(share, 0) || share < 0 {
			return nil, &ConfigError{Code: ConfigErrorInvalidBlueprint, ItemID: fam, Value: strconv.FormatFloat(share, 'g', -1, 64)}
		}
		sum += share
	}
	if sum <= 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(targets))
	for fam, share := range targets {
		out[fam] = share / sum
	}
	return out, nil
}

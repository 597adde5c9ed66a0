package runner

import (
	"math"

	"github.com/yungbote/neurobridge-cat/internal/domain/assessment"
)

// MergeSummaries combines summaries that share a domain (for example two
// processing-speed tasks) into one, pooling by precision. Order follows each
// domain's first appearance.
func MergeSummaries(in []assessment.DomainSummary) []assessment.DomainSummary {
	order := make([]string, 0, len(in))
	groups := map[string][]assessment.DomainSummary{}
	for _, s := range in {
		if _, ok := groups[s.Domain]; !ok {
			order = append(order, s.Domain)
		}
		groups[s.Domain] = append(groups[s.Domain], s)
	}
	out := make([]assessment.DomainSummary, 0, len(order))
	for _, d := range order {
		g := groups[d]
		if len(g) == 1 {
			out = append(out, g[0])
			continue
		}
		merged := assessment.DomainSummary{Domain: d}
		num, info := 0.0, 0.0
		for _, s := range g {
			w := 1 / (s.SEM * s.SEM)
			num += w * s.Theta
			info += w
			merged.N += s.N
			merged.Responses = append(merged.Responses, s.Responses...)
		}
		merged.Theta = num / info
		merged.SEM = 1 / math.Sqrt(info)
		out = append(out, merged)
	}
	return out
}

package scoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mealcart/commerce-router/internal/types"
)

// componentPhrases render each component as a short justification.
var componentPhrases = map[string]string{
	types.ComponentPrice:        "competitive pricing",
	types.ComponentSpeed:        "fast estimated delivery",
	types.ComponentAvailability: "full item availability",
	types.ComponentMargin:       "strong margin contribution",
	types.ComponentReliability:  "proven delivery reliability",
}

// Explain renders a short human-readable justification for the winning
// breakdown: the one or two components where the winner exceeds the
// candidate-set average by the largest margin. Pure and deterministic
// given the breakdowns.
func Explain(winner types.ScoreBreakdown, all []types.ScoreBreakdown) string {
	if len(all) == 1 {
		return fmt.Sprintf("selected %s as the only available provider", winner.ProviderID)
	}

	type edge struct {
		component string
		delta     float64
	}

	edges := make([]edge, 0, len(types.ScoreComponents))
	for _, component := range types.ScoreComponents {
		sum := 0.0
		for _, b := range all {
			sum += b.Components[component]
		}
		avg := sum / float64(len(all))
		edges = append(edges, edge{component: component, delta: winner.Components[component] - avg})
	}

	// Sort by advantage descending; canonical component order breaks ties
	// so the wording is reproducible.
	order := map[string]int{}
	for i, c := range types.ScoreComponents {
		order[c] = i
	}
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].delta != edges[j].delta {
			return edges[i].delta > edges[j].delta
		}
		return order[edges[i].component] < order[edges[j].component]
	})

	reasons := []string{componentPhrases[edges[0].component]}
	// Include a second factor only when it is a genuine advantage.
	if edges[1].delta > 0 {
		reasons = append(reasons, componentPhrases[edges[1].component])
	}

	return fmt.Sprintf("selected for %s", strings.Join(reasons, " and "))
}

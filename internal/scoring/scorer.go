package scoring

import (
	"sort"

	"github.com/mealcart/commerce-router/internal/types"
)

// NeutralReliability is the reliability score assumed for providers with
// no recorded history.
const NeutralReliability = 50.0

// Score turns a quote set into normalized component scores and a single
// weighted ranking. All five components are normalized to [0,100] across
// the candidate set for this call; the weighted total uses the supplied
// preset. The returned breakdowns are sorted by weighted total descending
// (ties broken by lower total price, then provider id) and the first
// entry's provider id is the winner.
//
// Score is a pure function: identical inputs always produce identical
// breakdowns and winner.
func Score(quotes []types.Quote, weights types.WeightConfig, reliability map[string]float64) ([]types.ScoreBreakdown, string, error) {
	if len(quotes) == 0 {
		return nil, "", types.NewValidationError("cannot score an empty quote set")
	}
	if err := weights.Validate(); err != nil {
		return nil, "", err
	}

	totals := make([]float64, len(quotes))
	midpoints := make([]float64, len(quotes))
	revenues := make([]float64, len(quotes))
	for i := range quotes {
		totals[i] = float64(quotes[i].TotalCents)
		midpoints[i] = quotes[i].DeliveryEstimate.Midpoint()
		revenues[i] = quotes[i].ProviderRevenueCents()
	}

	priceScores := normalizeInverse(totals)
	speedScores := normalizeInverse(midpoints)
	marginScores := normalizeDirect(revenues)

	breakdowns := make([]types.ScoreBreakdown, len(quotes))
	for i := range quotes {
		quote := quotes[i]

		rel, ok := reliability[quote.ProviderID]
		if !ok {
			rel = NeutralReliability
		}
		rel = clampScore(rel)

		components := map[string]float64{
			types.ComponentPrice:        priceScores[i],
			types.ComponentSpeed:        speedScores[i],
			types.ComponentAvailability: availabilityScore(&quote),
			types.ComponentMargin:       marginScores[i],
			types.ComponentReliability:  rel,
		}

		weightedTotal := 0.0
		for _, component := range types.ScoreComponents {
			weightedTotal += weights.Weights[component] * components[component]
		}

		q := quote
		breakdowns[i] = types.ScoreBreakdown{
			ProviderID:    quote.ProviderID,
			Components:    components,
			WeightedTotal: weightedTotal,
			Quote:         &q,
		}
	}

	sortBreakdowns(breakdowns)
	breakdowns[0].Explanation = Explain(breakdowns[0], breakdowns)

	return breakdowns, breakdowns[0].ProviderID, nil
}

// normalizeInverse maps values onto [0,100] with the smallest value
// scoring 100. When all candidates are equal (including a singleton set)
// every candidate scores 100.
func normalizeInverse(values []float64) []float64 {
	min, max := minMax(values)
	scores := make([]float64, len(values))
	if max == min {
		for i := range scores {
			scores[i] = 100
		}
		return scores
	}
	for i, v := range values {
		scores[i] = 100 * (1 - (v-min)/(max-min))
	}
	return scores
}

// normalizeDirect maps values onto [0,100] with the largest value scoring
// 100, used for margin where higher provider revenue is better.
func normalizeDirect(values []float64) []float64 {
	min, max := minMax(values)
	scores := make([]float64, len(values))
	if max == min {
		for i := range scores {
			scores[i] = 100
		}
		return scores
	}
	for i, v := range values {
		scores[i] = 100 * (v - min) / (max - min)
	}
	return scores
}

// availabilityScore gives full credit for found items and 80% credit for
// substitutions. An empty request scores 100: nothing required, nothing
// missing.
func availabilityScore(q *types.Quote) float64 {
	requested := q.ItemsRequested()
	if requested == 0 {
		return 100
	}
	score := 100 * (float64(q.ItemsFound) + 0.8*float64(q.ItemsSubstituted)) / float64(requested)
	return clampScore(score)
}

// sortBreakdowns orders by weighted total descending. Ties go to the
// lower total price; equal prices fall back to provider id so the result
// is fully deterministic.
func sortBreakdowns(breakdowns []types.ScoreBreakdown) {
	sort.SliceStable(breakdowns, func(i, j int) bool {
		return breakdownLess(breakdowns[i], breakdowns[j])
	})
}

func breakdownLess(a, b types.ScoreBreakdown) bool {
	if a.WeightedTotal != b.WeightedTotal {
		return a.WeightedTotal > b.WeightedTotal
	}
	if a.Quote.TotalCents != b.Quote.TotalCents {
		return a.Quote.TotalCents < b.Quote.TotalCents
	}
	return a.ProviderID < b.ProviderID
}

func minMax(values []float64) (float64, float64) {
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Package tokens provides the token-count estimate shared by the context
// builder and the cost accounting layer. The estimate intentionally matches
// the heuristic used when computing provider cost so budget math and prompt
// budgeting agree with each other.
package tokens

import "math"

// charsPerToken is the rough average for English prose on OpenAI tokenizers.
const charsPerToken = 4

// Estimate returns an estimated token count for the given text.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	n := int(math.Ceil(float64(len(text)) / charsPerToken))
	if n < 1 {
		n = 1
	}
	return n
}

// EstimateAll sums the estimates over several texts.
func EstimateAll(texts []string) int {
	total := 0
	for _, t := range texts {
		total += Estimate(t)
	}
	return total
}

// Cost converts a token count to dollars at the given per-1K-token rate.
func Cost(tokens int, pricePer1K float64) float64 {
	return float64(tokens) / 1000 * pricePer1K
}

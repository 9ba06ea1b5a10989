package filing

import "strings"

// Other is reported when no industry keyword appears in the text.
const Other = "Other"

type Classifier struct {
	rules []IndustryRule
}

func NewClassifier(rules []IndustryRule) *Classifier {
	return &Classifier{rules: rules}
}

// Classify scores every industry by raw substring counts of its keywords in
// the lower-cased text. The first industry reaching the top score wins.
func (c *Classifier) Classify(text string) (industry, sector string) {
	lower := strings.ToLower(text)

	best, bestScore := -1, 0
	for i, rule := range c.rules {
		score := 0
		for _, kw := range rule.Keywords {
			if kw == "" {
				continue
			}
			score += strings.Count(lower, strings.ToLower(kw))
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	if best < 0 {
		return Other, Other
	}
	winner := c.rules[best]
	if winner.Sector == "" {
		return winner.Industry, Other
	}
	return winner.Industry, winner.Sector
}

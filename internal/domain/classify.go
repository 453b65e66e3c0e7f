package domain

import "strings"

// Classify returns the domain whose keyword list has the most distinct
// case-insensitive substring matches in text. Ties go to the earlier domain
// in table order. ok is false when nothing matches.
func (t *Tables) Classify(text string) (d Domain, ok bool) {
	lower := strings.ToLower(text)
	best := 0
	for _, candidate := range t.order {
		score := countContained(lower, t.entries[candidate].keywords)
		if score > best {
			d, best = candidate, score
		}
	}
	return d, best > 0
}

// KeywordHits counts the distinct classifier keywords of d present in text.
func (t *Tables) KeywordHits(text string, d Domain) int {
	return countContained(strings.ToLower(text), t.entries[d].keywords)
}

func (t *Tables) IndicatorHits(text string) int {
	return countContained(strings.ToLower(text), t.indicators)
}

// ClassifyMetric starts from the domain default and lets an explicit metric
// term in the text override it.
func (t *Tables) ClassifyMetric(text string, d Domain) Metric {
	lower := strings.ToLower(text)
	for _, o := range t.overrides {
		if countContained(lower, o.terms) > 0 {
			return o.metric
		}
	}
	return t.DefaultMetric(d)
}

// ClassifyIdeaType compares newly-viable and evergreen phrase hits. Ties,
// including no hits at all, are newly viable.
func (t *Tables) ClassifyIdeaType(text string) IdeaType {
	lower := strings.ToLower(text)
	if countContained(lower, t.evergreen) > countContained(lower, t.newlyViable) {
		return Evergreen
	}
	return NewlyViable
}

// ConceptKeywordMatches returns the concept keywords of d found in text, in
// table order.
func (t *Tables) ConceptKeywordMatches(text string, d Domain) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, k := range t.entries[d].conceptKeywords {
		if strings.Contains(lower, k) {
			out = append(out, k)
		}
	}
	return out
}

// TagConcept lists every domain with a non-generic concept keyword contained
// in concept, in table order.
func (t *Tables) TagConcept(concept string) []Domain {
	lower := strings.ToLower(concept)
	var out []Domain
	for _, d := range t.order {
		for _, k := range t.entries[d].conceptKeywords {
			if _, skip := t.generic[k]; skip {
				continue
			}
			if strings.Contains(lower, k) {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

func countContained(lower string, terms []string) int {
	n := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			n++
		}
	}
	return n
}

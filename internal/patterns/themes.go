package patterns

import "github.com/joelkehle/ideasynth/internal/domain"

// Themes maps each domain to the concepts tagged with it, in first-seen
// order.
type Themes map[domain.Domain][]string

// Overlap is a pair of domains whose themes share at least one concept.
type Overlap struct {
	First  domain.Domain
	Second domain.Domain
	Shared []string
}

// ClusterThemes tags every concept with each domain whose concept keywords
// it contains. A concept may land in several themes.
func ClusterThemes(tables *domain.Tables, docs []DocumentConcepts) Themes {
	themes := Themes{}
	seen := map[domain.Domain]map[string]struct{}{}
	for _, doc := range docs {
		for _, c := range doc.Concepts {
			for _, d := range tables.TagConcept(c) {
				if seen[d] == nil {
					seen[d] = map[string]struct{}{}
				}
				if _, dup := seen[d][c]; dup {
					continue
				}
				seen[d][c] = struct{}{}
				themes[d] = append(themes[d], c)
			}
		}
	}
	return themes
}

// Overlaps lists domain pairs (table order, first < second) whose themes
// share concepts.
func Overlaps(tables *domain.Tables, themes Themes) []Overlap {
	order := tables.Domains()
	var out []Overlap
	for i := 0; i < len(order); i++ {
		left := themes[order[i]]
		if len(left) == 0 {
			continue
		}
		for j := i + 1; j < len(order); j++ {
			right := themes[order[j]]
			if len(right) == 0 {
				continue
			}
			inRight := make(map[string]struct{}, len(right))
			for _, c := range right {
				inRight[c] = struct{}{}
			}
			var shared []string
			for _, c := range left {
				if _, ok := inRight[c]; ok {
					shared = append(shared, c)
				}
			}
			if len(shared) > 0 {
				out = append(out, Overlap{First: order[i], Second: order[j], Shared: shared})
			}
		}
	}
	return out
}

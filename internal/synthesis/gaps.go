package synthesis

import (
	"fmt"
	"strings"

	"github.com/joelkehle/ideasynth/internal/domain"
	"github.com/joelkehle/ideasynth/internal/patterns"
)

const (
	UnderrepresentedConfidence = 0.6
	CrossDomainConfidence      = 0.7
	gapKeywordCount            = 3
)

// Gaps emits one idea per domain with fewer than patterns.MinDocuments
// grouped documents (table order, empty domains included), then one per
// overlapping domain pair.
func Gaps(tables *domain.Tables, groupSizes map[domain.Domain]int, overlaps []patterns.Overlap) []domain.CandidateIdea {
	var out []domain.CandidateIdea
	for _, d := range tables.Domains() {
		n := groupSizes[d]
		if n >= patterns.MinDocuments {
			continue
		}
		keywords := head(tables.ConceptKeywords(d), gapKeywordCount)
		metric := tables.DefaultMetric(d)
		out = append(out, domain.CandidateIdea{
			Title: fmt.Sprintf("Comprehensive %s Intervention Program", d.DisplayName()),
			Description: fmt.Sprintf("This intervention focuses on addressing the gap in %s research by implementing a comprehensive program using %s. Key metrics: %s. Expected impact: significant improvement in %s outcomes.",
				d, strings.Join(keywords, ", "), metric, d),
			Domain:           d,
			PrimaryMetric:    metric,
			IdeaType:         domain.Evergreen,
			ConfidenceScore:  UnderrepresentedConfidence,
			ExtractionMethod: domain.MethodPatternRecognition,
			ProvenanceNotes:  fmt.Sprintf("Underrepresented domain: %d contributing documents", n),
		})
	}
	for _, o := range overlaps {
		metric := tables.DefaultMetric(o.First)
		out = append(out, domain.CandidateIdea{
			Title: fmt.Sprintf("Cross-Domain %s-%s Integration", o.First.DisplayName(), o.Second.DisplayName()),
			Description: fmt.Sprintf("This intervention leverages synergies between %s and %s domains using %s. Key metrics: %s. Expected impact: enhanced outcomes through cross-domain collaboration.",
				o.First, o.Second, strings.Join(head(o.Shared, gapKeywordCount), ", "), metric),
			Domain:           o.First,
			PrimaryMetric:    metric,
			IdeaType:         domain.NewlyViable,
			ConfidenceScore:  CrossDomainConfidence,
			ExtractionMethod: domain.MethodPatternRecognition,
			ProvenanceNotes:  fmt.Sprintf("Cross-domain overlap between %s and %s", o.First, o.Second),
		})
	}
	return out
}

package synthesis

import (
	"fmt"
	"strings"

	"github.com/joelkehle/ideasynth/internal/concepts"
	"github.com/joelkehle/ideasynth/internal/domain"
	"github.com/joelkehle/ideasynth/internal/patterns"
)

const (
	ThemeConfidence         = 0.75
	GapFillingConfidence    = 0.70
	ComplementaryConfidence = 0.80
	ComprehensiveConfidence = 0.85
	maxListedConcepts       = 3
)

// CrossDocument runs the four insight-driven strategies in fixed order:
// theme integration, gap filling, complementary synthesis, comprehensive
// integration. Each contributes at most one idea and only when its input
// list is non-empty.
func CrossDocument(tables *domain.Tables, ins patterns.Insights) []domain.CandidateIdea {
	base := domain.CandidateIdea{
		Domain:            ins.Domain,
		PrimaryMetric:     tables.DefaultMetric(ins.Domain),
		IdeaType:          domain.NewlyViable,
		SourceDocumentIDs: ins.SourceDocumentIDs,
	}
	name := ins.Domain.DisplayName()
	lower := strings.ToLower(name)
	var out []domain.CandidateIdea

	if len(ins.CommonThemes) > 0 {
		themes := head(ins.CommonThemes, maxListedConcepts)
		idea := base
		idea.Title = fmt.Sprintf("Cross-Study %s Theme: %s", name, concepts.TitleCase(strings.Join(themes, ", ")))
		idea.Description = fmt.Sprintf("%s recur across %d %s studies. An intervention built around these shared themes draws on evidence that independent teams have already converged on.",
			quoteList(themes), ins.SourceCount, lower)
		idea.ConfidenceScore = ThemeConfidence
		idea.ExtractionMethod = domain.MethodThemeIntegration
		idea.KeyInnovation = "Builds on themes replicated across independent studies"
		idea.ProvenanceNotes = fmt.Sprintf("Common themes shared by at least 2 of %d documents", ins.SourceCount)
		out = append(out, idea)
	}

	if len(ins.RareConcepts) > 0 {
		rare := ins.RareConcepts[0]
		idea := base
		idea.Title = fmt.Sprintf("Scaling %s Beyond a Single %s Study", concepts.TitleCase(rare), name)
		idea.Description = fmt.Sprintf("Only one of %d %s studies mentions %q. Testing it in the settings covered by the other studies would fill a gap the rest of the literature leaves open.",
			ins.SourceCount, lower, rare)
		idea.ConfidenceScore = GapFillingConfidence
		idea.ExtractionMethod = domain.MethodGapFilling
		idea.KeyInnovation = fmt.Sprintf("Extends %s to contexts where it has not been studied", rare)
		idea.ProvenanceNotes = "Rare concept found in exactly one document"
		out = append(out, idea)
	}

	if len(ins.ComplementaryPairs) > 0 {
		p := ins.ComplementaryPairs[0]
		idea := base
		idea.Title = fmt.Sprintf("Combining %s with %s for %s", concepts.TitleCase(p.First), concepts.TitleCase(p.Second), name)
		idea.Description = fmt.Sprintf("%q and %q come from different studies that never reference each other. Pairing them in one %s program tests whether their effects compound.",
			p.First, p.Second, lower)
		idea.ConfidenceScore = ComplementaryConfidence
		idea.ExtractionMethod = domain.MethodComplementary
		idea.KeyInnovation = fmt.Sprintf("Joins %s and %s in a single delivery model", p.First, p.Second)
		idea.ProvenanceNotes = fmt.Sprintf("Complementary concepts from documents %s and %s", p.FirstDocID, p.SecondDocID)
		idea.SourceDocumentIDs = []string{p.FirstDocID, p.SecondDocID}
		out = append(out, idea)
	}

	if len(ins.FrequentConcepts) > 0 {
		frequent := head(ins.FrequentConcepts, maxListedConcepts)
		idea := base
		idea.Title = fmt.Sprintf("Multi-Study %s Program Combining %s", name, concepts.TitleCase(strings.Join(frequent, ", ")))
		idea.Description = fmt.Sprintf("A comprehensive %s program assembled from the %d concepts that recur across %d studies, led by %s.",
			lower, len(ins.FrequentConcepts), ins.SourceCount, quoteList(frequent))
		idea.ConfidenceScore = ComprehensiveConfidence
		idea.ExtractionMethod = domain.MethodComprehensive
		idea.ExpectedImpact = fmt.Sprintf("Broad %s gains from combining the most frequently reported elements", lower)
		idea.ProvenanceNotes = fmt.Sprintf("%d frequent concepts across %d documents", len(ins.FrequentConcepts), ins.SourceCount)
		out = append(out, idea)
	}
	return out
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}

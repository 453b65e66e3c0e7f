// Package report renders a finished run as Markdown, HTML or PDF.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/joelkehle/ideasynth/internal/dedup"
	"github.com/joelkehle/ideasynth/internal/pipeline"
	"github.com/joelkehle/ideasynth/internal/scoring"
)

const Disclaimer = "Scores are heuristic estimates from domain tables and keyword evidence. " +
	"They rank ideas for human review and are not cost-effectiveness analyses."

// DefaultTop is how many ideas each ranked section lists.
const DefaultTop = 10

// BuildMarkdown renders the run. top <= 0 means DefaultTop.
func BuildMarkdown(run pipeline.RunResult, top int) string {
	if top <= 0 {
		top = DefaultTop
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Idea Synthesis Report\n\n")
	fmt.Fprintf(&b, "- Run ID: %s\n", sanitize(run.RunID))
	fmt.Fprintf(&b, "- Date: %s\n", reportDate(run.Metadata))
	fmt.Fprintf(&b, "- Mode: %s\n", run.Metadata.Mode)
	if run.Metadata.DomainFilter != "" {
		fmt.Fprintf(&b, "- Domain filter: %s\n", run.Metadata.DomainFilter)
	}
	fmt.Fprintf(&b, "- Documents: %d read, %d skipped, %d unclassified\n",
		run.Metadata.DocumentsRead, run.Metadata.DocumentsSkipped, run.Metadata.DocumentsUnclassified)
	fmt.Fprintf(&b, "- Candidates: %d generated, %d duplicates discarded\n\n",
		run.Metadata.CandidatesGenerated, run.Metadata.DuplicatesDiscarded)
	fmt.Fprintf(&b, "%s\n\n", Disclaimer)

	if failures := run.Failures(); len(failures) > 0 {
		fmt.Fprintf(&b, "> DEGRADED: %d collaborator failure(s). Ideas from the affected strategies are missing.\n", len(failures))
		for _, f := range failures {
			scope := ""
			if f.Scope != "" {
				scope = " (" + sanitize(f.Scope) + ")"
			}
			fmt.Fprintf(&b, "> - `%s`%s: %s\n", f.Stage, scope, sanitize(f.Failure))
		}
		b.WriteString("\n")
	}

	writeTopIdeas(&b, run.Ranked, top)
	writeContrarian(&b, run.Contrarian, top)
	writeIdeaDetails(&b, run.Ranked, top)
	writeHowItWorks(&b)
	writeStages(&b, run)
	return b.String()
}

func writeTopIdeas(b *strings.Builder, ranked []pipeline.RankedIdea, top int) {
	fmt.Fprintf(b, "## Top Ideas\n\n")
	if len(ranked) == 0 {
		fmt.Fprintf(b, "No ideas survived this run.\n\n")
		return
	}
	fmt.Fprintf(b, "| # | Idea | Domain | Type | Overall | Impact | Neglectedness | Tractability | Scalability |\n")
	fmt.Fprintf(b, "|---|---|---|---|---|---|---|---|---|\n")
	for i, r := range head(ranked, top) {
		ev := r.Evaluation
		fmt.Fprintf(b, "| %d | %s | %s | %s | %.2f | %.1f | %.1f | %.1f | %.1f |\n",
			i+1, sanitizeCell(r.Idea.Title), r.Idea.Domain.DisplayName(), r.Idea.IdeaType,
			ev.OverallScore, ev.ImpactScore, ev.NeglectednessScore, ev.TractabilityScore, ev.ScalabilityScore)
	}
	b.WriteString("\n")
}

func writeContrarian(b *strings.Builder, ideas []pipeline.ContrarianIdea, top int) {
	if len(ideas) == 0 {
		return
	}
	fmt.Fprintf(b, "## Contrarian View\n\n")
	fmt.Fprintf(b, "The same ideas re-ranked to favour neglected, underfunded and newly viable opportunities.\n\n")
	fmt.Fprintf(b, "| # | Idea | Contrarian | Overall | Reasoning |\n")
	fmt.Fprintf(b, "|---|---|---|---|---|\n")
	for i, c := range head(ideas, top) {
		fmt.Fprintf(b, "| %d | %s | %.2f | %.2f | %s |\n",
			i+1, sanitizeCell(c.Idea.Title), c.ContrarianScore, c.Evaluation.OverallScore, sanitizeCell(c.ContrarianReasoning))
	}
	b.WriteString("\n")
}

func writeIdeaDetails(b *strings.Builder, ranked []pipeline.RankedIdea, top int) {
	if len(ranked) == 0 {
		return
	}
	fmt.Fprintf(b, "## Idea Details\n\n")
	for i, r := range head(ranked, top) {
		idea, ev := r.Idea, r.Evaluation
		fmt.Fprintf(b, "### %d. %s\n\n", i+1, sanitize(idea.Title))
		if d := sanitize(idea.Description); d != "" {
			fmt.Fprintf(b, "%s\n\n", d)
		}
		fmt.Fprintf(b, "- Domain: %s (metric: %s)\n", idea.Domain.DisplayName(), idea.PrimaryMetric)
		fmt.Fprintf(b, "- Method: %s, confidence %.2f\n", idea.ExtractionMethod, idea.ConfidenceScore)
		if len(idea.SourceDocumentIDs) > 0 {
			fmt.Fprintf(b, "- Sources: %s\n", sanitize(strings.Join(idea.SourceDocumentIDs, ", ")))
		}
		if v := sanitize(idea.KeyInnovation); v != "" {
			fmt.Fprintf(b, "- Key innovation: %s\n", v)
		}
		if v := sanitize(idea.ExpectedImpact); v != "" {
			fmt.Fprintf(b, "- Expected impact: %s\n", v)
		}
		if v := sanitize(idea.Challenges); v != "" {
			fmt.Fprintf(b, "- Challenges: %s\n", v)
		}
		fmt.Fprintf(b, "- Impact: %.1f (%s)\n", ev.ImpactScore, sanitize(ev.ImpactNotes))
		fmt.Fprintf(b, "- Neglectedness: %.1f (%s)\n", ev.NeglectednessScore, sanitize(ev.NeglectednessNotes))
		fmt.Fprintf(b, "- Tractability: %.1f (%s)\n", ev.TractabilityScore, sanitize(ev.TractabilityNotes))
		fmt.Fprintf(b, "- Scalability: %.1f (%s)\n", ev.ScalabilityScore, sanitize(ev.ScalabilityNotes))
		writeBenchmark(b, ev.Benchmark)
		b.WriteString("\n")
	}
}

func writeBenchmark(b *strings.Builder, bc scoring.BenchmarkComparison) {
	if !bc.Available {
		fmt.Fprintf(b, "- Benchmark: not available\n")
		return
	}
	name := sanitize(bc.Name)
	if bc.URL != "" {
		name = fmt.Sprintf("[%s](%s)", name, bc.URL)
	}
	fmt.Fprintf(b, "- Benchmark: %s at $%s per unit; this idea est. $%s per unit (%.2fx relative effectiveness)\n",
		name, scoring.FormatUSD(bc.CostPerUnit), scoring.FormatUSD(bc.EstimatedCostPerUnit), bc.RelativeEffectiveness)
}

func writeHowItWorks(b *strings.Builder) {
	fmt.Fprintf(b, "## How This Report Works\n\n")
	fmt.Fprintf(b, "Ideas come from four strategies, merged in this order:\n\n")
	fmt.Fprintf(b, "1. **Direct extraction**: single sentences that classify into a domain with enough confidence\n")
	fmt.Fprintf(b, "2. **Cross-document synthesis**: shared themes, rare concepts and complementary pairs within a domain\n")
	fmt.Fprintf(b, "3. **Generative assist**: model-written ideas over a domain's sources, or a deterministic stand-in\n")
	fmt.Fprintf(b, "4. **Gap analysis**: underrepresented domains and concepts shared across domains\n\n")
	fmt.Fprintf(b, "Titles whose word sets overlap by more than %.0f%% are treated as duplicates; the earlier idea wins. "+
		"Each survivor is scored 0-10 on impact, neglectedness, tractability and scalability, and the weighted sum is the overall score.\n\n",
		100*dedup.Threshold)
}

func writeStages(b *strings.Builder, run pipeline.RunResult) {
	if len(run.Stages) == 0 {
		return
	}
	fmt.Fprintf(b, "## Stage Summary\n\n")
	fmt.Fprintf(b, "| Stage | Scope | Ideas | Skipped | Failure |\n")
	fmt.Fprintf(b, "|---|---|---|---|---|\n")
	for _, s := range run.Stages {
		fmt.Fprintf(b, "| %s | %s | %d | %d | %s |\n", s.Stage, sanitizeCell(s.Scope), s.Ideas, s.Skipped, sanitizeCell(s.Failure))
	}
	b.WriteString("\n")
}

func reportDate(m pipeline.RunMetadata) string {
	t := m.CompletedAt
	if t.IsZero() {
		t = m.StartedAt
	}
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(time.RFC3339)
}

func head[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sanitize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}

// sanitizeCell prepares text for a markdown table cell: newlines are
// flattened and pipes escaped.
func sanitizeCell(s string) string {
	return strings.ReplaceAll(sanitize(s), "|", "\\|")
}

package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/ideasynth/internal/domain"
)

func fixedScorer() *Scorer {
	s := NewScorer(domain.Default())
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func idea(d domain.Domain, t domain.IdeaType) domain.CandidateIdea {
	tables := domain.Default()
	return domain.CandidateIdea{
		Title:           string(d) + " " + string(t),
		Domain:          d,
		IdeaType:        t,
		PrimaryMetric:   tables.DefaultMetric(d),
		ConfidenceScore: 0.5,
	}
}

func TestEvaluateHealthNewlyViable(t *testing.T) {
	ev := fixedScorer().Evaluate(idea(domain.Health, domain.NewlyViable))

	assert.InDelta(t, 7.0, ev.ImpactScore, 1e-9)
	assert.InDelta(t, 3.0, ev.NeglectednessScore, 1e-9)
	assert.InDelta(t, 6.5, ev.TractabilityScore, 1e-9)
	assert.InDelta(t, 8.5, ev.ScalabilityScore, 1e-9)
	assert.InDelta(t, 5.85, ev.OverallScore, 1e-9)
	assert.Equal(t, 10_000_000_000.0, ev.AnnualFundingEstimate)
	assert.Equal(t, "Domain: health, Type: newly_viable, Confidence: 0.50, Domain factor: 1.2", ev.ImpactNotes)
	assert.Equal(t, "Domain: health, Estimated annual funding: $10,000,000,000 (Well funded)", ev.NeglectednessNotes)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), ev.EvaluatedAt)

	b := ev.Benchmark
	require.True(t, b.Available)
	assert.Equal(t, "GiveWell", b.Name)
	assert.Equal(t, 100.0, b.CostPerUnit)
	assert.InDelta(t, 1000.0/7.0, b.EstimatedCostPerUnit, 1e-9)
	assert.InDelta(t, 0.7, b.RelativeEffectiveness, 1e-9)
	assert.InDelta(t, 10.0/7.0, b.CostEffectivenessRatio, 1e-9)
}

func TestEvaluateAnimalWelfareEvergreen(t *testing.T) {
	ev := fixedScorer().Evaluate(idea(domain.AnimalWelfare, domain.Evergreen))
	assert.InDelta(t, 4.5, ev.ImpactScore, 1e-9)
	assert.InDelta(t, 9.0, ev.NeglectednessScore, 1e-9)
	assert.InDelta(t, 9.0, ev.TractabilityScore, 1e-9)
	assert.InDelta(t, 9.0, ev.ScalabilityScore, 1e-9)
	assert.InDelta(t, 7.2, ev.OverallScore, 1e-9)
	assert.Contains(t, ev.NeglectednessNotes, "$200,000,000 (Highly neglected)")
	assert.Equal(t, "The Humane League", ev.Benchmark.Name)
}

func TestNeglectednessNotesBands(t *testing.T) {
	assert.Contains(t, neglectednessNotes(domain.Wellbeing, 1_000_000_000), "(Moderately neglected)")
	assert.Contains(t, neglectednessNotes(domain.Education, 5_000_000_000), "(Well funded)")
	assert.NotContains(t, neglectednessNotes(domain.Health, 0), "(")
}

func TestEvaluateDefaultsMissingConfidence(t *testing.T) {
	i := idea(domain.Climate, domain.NewlyViable)
	i.ConfidenceScore = 0
	ev := fixedScorer().Evaluate(i)
	assert.Equal(t, 0.5, ev.ImpactConfidence)
}

func TestScoresStayInRange(t *testing.T) {
	s := fixedScorer()
	for _, d := range domain.Default().Domains() {
		for _, typ := range []domain.IdeaType{domain.NewlyViable, domain.Evergreen} {
			ev := s.Evaluate(idea(d, typ))
			for name, v := range map[string]float64{
				"impact":        ev.ImpactScore,
				"neglectedness": ev.NeglectednessScore,
				"tractability":  ev.TractabilityScore,
				"scalability":   ev.ScalabilityScore,
				"overall":       ev.OverallScore,
			} {
				assert.GreaterOrEqual(t, v, 0.0, "%s/%s %s", d, typ, name)
				assert.LessOrEqual(t, v, MaxScore, "%s/%s %s", d, typ, name)
			}
			assert.True(t, ev.Benchmark.Available, "%s/%s", d, typ)
		}
	}
}

func TestOverallClamps(t *testing.T) {
	w := domain.Default().Weights()
	assert.Equal(t, MaxScore, Overall(w, 20, 20, 20, 20))
	assert.Equal(t, 0.0, Overall(w, -5, -5, -5, -5))
}

func TestBenchmarkUnavailable(t *testing.T) {
	s := fixedScorer()
	assert.False(t, s.compare(domain.MetricDALYs, 0).Available)
	assert.False(t, s.compare(domain.Metric("qalys"), 5).Available)
}

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "500,000,000", FormatUSD(5e8))
	assert.Equal(t, "999", FormatUSD(999))
}

func TestContrarianExample(t *testing.T) {
	ev := Evaluation{OverallScore: 9.2, NeglectednessScore: 8.0, AnnualFundingEstimate: 500_000_000}
	score, reasoning := Contrarian(domain.Default(), domain.CandidateIdea{Domain: domain.AnimalWelfare, IdeaType: domain.NewlyViable}, ev)
	assert.Equal(t, 10.0, score)
	assert.Equal(t, "Highly neglected area with low funding; Newly viable opportunity that might be overlooked; Low funding suggests potential for high marginal impact", reasoning)
}

func TestContrarianReasoning(t *testing.T) {
	tables := domain.Default()
	score, reasoning := Contrarian(tables, domain.CandidateIdea{Domain: domain.Education, IdeaType: domain.Evergreen}, Evaluation{OverallScore: 5, NeglectednessScore: 5, AnnualFundingEstimate: 5e9})
	assert.InDelta(t, 5.3, score, 1e-9)
	assert.Equal(t, "Long-term effects might be underestimated", reasoning)

	score, reasoning = Contrarian(tables, domain.CandidateIdea{Domain: domain.Wellbeing, IdeaType: domain.Evergreen}, Evaluation{OverallScore: 6, NeglectednessScore: 7, AnnualFundingEstimate: 1e9})
	assert.Equal(t, 6.0, score)
	assert.Equal(t, "Standard evaluation", reasoning)
}

func TestRankStableAndLimited(t *testing.T) {
	in := []RankedIdea{
		{Idea: domain.CandidateIdea{Title: "a"}, Evaluation: Evaluation{OverallScore: 5}},
		{Idea: domain.CandidateIdea{Title: "b"}, Evaluation: Evaluation{OverallScore: 7}},
		{Idea: domain.CandidateIdea{Title: "c"}, Evaluation: Evaluation{OverallScore: 5}},
		{Idea: domain.CandidateIdea{Title: "d"}, Evaluation: Evaluation{OverallScore: 6}},
	}
	got := Rank(in, 0)
	var titles []string
	for _, r := range got {
		titles = append(titles, r.Idea.Title)
		assert.Equal(t, r.Evaluation.OverallScore, r.Idea.PriorityScore)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, titles)
	assert.Zero(t, in[0].Idea.PriorityScore, "input slice untouched")

	assert.Len(t, Rank(in, 2), 2)
}

func TestContrarianRankReorders(t *testing.T) {
	s := fixedScorer()
	var in []RankedIdea
	for _, i := range []domain.CandidateIdea{
		idea(domain.Health, domain.NewlyViable),
		idea(domain.AnimalWelfare, domain.NewlyViable),
		idea(domain.Climate, domain.NewlyViable),
	} {
		in = append(in, RankedIdea{Idea: i, Evaluation: s.Evaluate(i)})
	}
	ranked := Rank(in, 0)
	contrarian := ContrarianRank(domain.Default(), ranked, 0)
	require.Len(t, contrarian, 3)

	assert.Equal(t, domain.AnimalWelfare, ranked[0].Idea.Domain)
	assert.Equal(t, domain.AnimalWelfare, contrarian[0].Idea.Domain)
	assert.InDelta(t, 8.85, contrarian[0].ContrarianScore, 1e-9)
	assert.Equal(t, domain.Health, contrarian[1].Idea.Domain)
	assert.InDelta(t, 6.35, contrarian[1].ContrarianScore, 1e-9)
	assert.Equal(t, domain.Climate, contrarian[2].Idea.Domain)
	assert.InDelta(t, 6.05, contrarian[2].ContrarianScore, 1e-9)
	for _, c := range contrarian {
		assert.GreaterOrEqual(t, c.ContrarianScore, c.Evaluation.OverallScore)
	}
}

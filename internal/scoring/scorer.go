// Package scoring evaluates candidate ideas on impact, neglectedness,
// tractability and scalability, and ranks them.
package scoring

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joelkehle/ideasynth/internal/domain"
)

const (
	MaxScore = 10.0

	baseImpact            = 5.0
	defaultConfidence     = 0.5
	newlyViableImpact     = 1.0
	evergreenImpact       = 0.5
	evergreenNeglect      = 1.0
	evergreenTractability = 1.0
	newlyViableTractable  = -0.5
	newlyViableScale      = 0.5

	highlyNeglectedFunding     = 1_000_000_000
	moderatelyNeglectedFunding = 5_000_000_000
)

// BenchmarkComparison relates an idea's implied cost per unit of impact to
// the reference intervention for its metric.
type BenchmarkComparison struct {
	Available              bool    `json:"benchmark_available"`
	Name                   string  `json:"benchmark_name,omitempty"`
	URL                    string  `json:"benchmark_url,omitempty"`
	CostPerUnit            float64 `json:"benchmark_cost_per_unit,omitempty"`
	EstimatedCostPerUnit   float64 `json:"estimated_cost_per_unit,omitempty"`
	RelativeEffectiveness  float64 `json:"relative_effectiveness,omitempty"`
	CostEffectivenessRatio float64 `json:"cost_effectiveness_ratio,omitempty"`
}

// Evaluation is created once per idea and never mutated.
type Evaluation struct {
	ImpactScore           float64             `json:"impact_score"`
	ImpactConfidence      float64             `json:"impact_confidence"`
	ImpactNotes           string              `json:"impact_notes"`
	NeglectednessScore    float64             `json:"neglectedness_score"`
	AnnualFundingEstimate float64             `json:"annual_funding_estimate"`
	NeglectednessNotes    string              `json:"neglectedness_notes"`
	TractabilityScore     float64             `json:"tractability_score"`
	TractabilityNotes     string              `json:"tractability_notes"`
	ScalabilityScore      float64             `json:"scalability_score"`
	ScalabilityNotes      string              `json:"scalability_notes"`
	OverallScore          float64             `json:"overall_score"`
	Benchmark             BenchmarkComparison `json:"benchmark_comparison"`
	EvaluatedAt           time.Time           `json:"evaluated_at"`
}

type Scorer struct {
	tables *domain.Tables
	now    func() time.Time
}

func NewScorer(tables *domain.Tables) *Scorer {
	return &Scorer{tables: tables, now: func() time.Time { return time.Now().UTC() }}
}

// Evaluate is a pure function of the idea and the tables apart from
// EvaluatedAt.
func (s *Scorer) Evaluate(idea domain.CandidateIdea) Evaluation {
	profile, ok := s.tables.Profile(idea.Domain)
	if !ok {
		profile = domain.ScoringProfile{ImpactFactor: 1, Neglectedness: 5, Tractability: 5, Scalability: 5}
	}
	newlyViable := idea.IdeaType == domain.NewlyViable
	evergreen := idea.IdeaType == domain.Evergreen

	impact := baseImpact * profile.ImpactFactor
	switch {
	case newlyViable:
		impact += newlyViableImpact
	case evergreen:
		impact += evergreenImpact
	}
	confidence := idea.ConfidenceScore
	if confidence == 0 {
		confidence = defaultConfidence
	}

	neglect := profile.Neglectedness
	tract := profile.Tractability
	scale := profile.Scalability
	if evergreen {
		neglect += evergreenNeglect
		tract += evergreenTractability
	}
	if newlyViable {
		tract += newlyViableTractable
		scale += newlyViableScale
	}

	ev := Evaluation{
		ImpactScore:           clamp(impact),
		ImpactConfidence:      confidence,
		ImpactNotes:           fmt.Sprintf("Domain: %s, Type: %s, Confidence: %.2f, Domain factor: %g", idea.Domain, idea.IdeaType, confidence, profile.ImpactFactor),
		NeglectednessScore:    clamp(neglect),
		AnnualFundingEstimate: profile.AnnualFundingUSD,
		NeglectednessNotes:    neglectednessNotes(idea.Domain, profile.AnnualFundingUSD),
		TractabilityScore:     clamp(tract),
		TractabilityNotes:     fmt.Sprintf("Domain: %s, Type: %s", idea.Domain, idea.IdeaType),
		ScalabilityScore:      clamp(scale),
		ScalabilityNotes:      fmt.Sprintf("Domain: %s, Type: %s", idea.Domain, idea.IdeaType),
		EvaluatedAt:           s.now(),
	}
	ev.OverallScore = Overall(s.tables.Weights(), ev.ImpactScore, ev.NeglectednessScore, ev.TractabilityScore, ev.ScalabilityScore)
	ev.Benchmark = s.compare(idea.PrimaryMetric, ev.ImpactScore)
	return ev
}

// Overall is the weighted sum of the four sub-scores, clamped to [0,10].
func Overall(w domain.Weights, impact, neglect, tract, scale float64) float64 {
	return clamp(w.Impact*impact + w.Neglectedness*neglect + w.Tractability*tract + w.Scalability*scale)
}

func (s *Scorer) compare(m domain.Metric, impact float64) BenchmarkComparison {
	b, ok := s.tables.Benchmark(m)
	if !ok || impact <= 0 {
		return BenchmarkComparison{}
	}
	estimated := b.CostPerUnit * (MaxScore / impact)
	return BenchmarkComparison{
		Available:              true,
		Name:                   b.Name,
		URL:                    b.URL,
		CostPerUnit:            b.CostPerUnit,
		EstimatedCostPerUnit:   estimated,
		RelativeEffectiveness:  impact / MaxScore,
		CostEffectivenessRatio: estimated / b.CostPerUnit,
	}
}

func neglectednessNotes(d domain.Domain, funding float64) string {
	notes := fmt.Sprintf("Domain: %s, Estimated annual funding: $%s", d, FormatUSD(funding))
	switch {
	case funding <= 0:
	case funding < highlyNeglectedFunding:
		notes += " (Highly neglected)"
	case funding < moderatelyNeglectedFunding:
		notes += " (Moderately neglected)"
	default:
		notes += " (Well funded)"
	}
	return notes
}

var usd = message.NewPrinter(language.English)

// FormatUSD renders a whole-dollar amount with thousands separators.
func FormatUSD(v float64) string {
	return usd.Sprintf("%d", int64(math.Round(v)))
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(v, MaxScore))
}

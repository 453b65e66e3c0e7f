package synthesis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/ideasynth/internal/concepts"
	"github.com/joelkehle/ideasynth/internal/domain"
	"github.com/joelkehle/ideasynth/internal/patterns"
)

type brokenExtractor struct{}

func (brokenExtractor) Extract(context.Context, string) (concepts.Extraction, error) {
	return concepts.Extraction{}, errors.New("model not loaded")
}

func TestDirectExtractChildMortality(t *testing.T) {
	x := NewDirectExtractor(domain.Default(), concepts.NewRuleExtractor(), nil)
	doc := domain.Document{
		ID:       "doc-1",
		Title:    "CHW trial",
		Abstract: "A 2024 clinical trial found that community health worker home visits reduced child mortality by 22% at low cost",
	}
	ideas, ok := x.Extract(context.Background(), doc).Value()
	require.True(t, ok)
	require.Len(t, ideas, 1)

	idea := ideas[0]
	assert.Equal(t, "Clinical Trial for Health", idea.Title)
	assert.Equal(t, domain.Health, idea.Domain)
	assert.Equal(t, domain.MetricDALYs, idea.PrimaryMetric)
	assert.Equal(t, domain.NewlyViable, idea.IdeaType)
	assert.Equal(t, domain.MethodNLP, idea.ExtractionMethod)
	assert.InDelta(t, 0.5, idea.ConfidenceScore, 1e-9)
	assert.Equal(t, []string{"doc-1"}, idea.SourceDocumentIDs)
	assert.Equal(t, doc.Abstract, idea.SourceSentence)
}

func TestDirectExtractReadsLongFullTextParagraphs(t *testing.T) {
	x := NewDirectExtractor(domain.Default(), concepts.NewRuleExtractor(), nil)
	doc := domain.Document{
		ID:       "doc-2",
		Title:    "Field notes",
		Abstract: "The weather was pleasant on that long afternoon.",
		FullText: "Vaccine therapy works here.\n\nThe vaccine therapy treatment program improved outcomes for children across districts.",
	}
	ideas, ok := x.Extract(context.Background(), doc).Value()
	require.True(t, ok)
	require.Len(t, ideas, 1)
	assert.Equal(t, "Vaccine Therapy Treatment Program for Health", ideas[0].Title)
	assert.InDelta(t, 0.95, ideas[0].ConfidenceScore, 1e-9)
}

func TestDirectExtractSkipsFullTextNoLongerThanAbstract(t *testing.T) {
	x := NewDirectExtractor(domain.Default(), concepts.NewRuleExtractor(), nil)
	abstract := "A 2024 clinical trial found that community health worker home visits reduced child mortality by 22% at low cost"
	doc := domain.Document{ID: "doc-3", Title: "CHW trial", Abstract: abstract, FullText: abstract}
	ideas, ok := x.Extract(context.Background(), doc).Value()
	require.True(t, ok)
	assert.Len(t, ideas, 1)
}

func TestDirectExtractFallsBackToLeadingWords(t *testing.T) {
	x := NewDirectExtractor(domain.Default(), brokenExtractor{}, nil)
	doc := domain.Document{ID: "doc-3", Title: "Microfinance loans boosted household income in rural Kenya markets"}
	ideas, ok := x.Extract(context.Background(), doc).Value()
	require.True(t, ok)
	require.Len(t, ideas, 1)
	assert.Equal(t, "Microfinance Loans Boosted Household Income In", ideas[0].Title)
	assert.Equal(t, domain.EconomicDevelopment, ideas[0].Domain)
	assert.Equal(t, domain.MetricLogIncome, ideas[0].PrimaryMetric)
}

func TestDirectExtractCancelled(t *testing.T) {
	x := NewDirectExtractor(domain.Default(), concepts.NewRuleExtractor(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := x.Extract(ctx, domain.Document{ID: "d", Title: "A vaccine therapy program for rural children in Malawi"})
	assert.False(t, res.IsOk())
}

func TestConfidenceBounds(t *testing.T) {
	tables := domain.Default()
	full := "The effective vaccine program and treatment therapy approach with prevention strategy and intervention method solution shows clinical trial success"
	assert.Equal(t, 1.0, Confidence(tables, full, domain.Health))
	assert.InDelta(t, 0.45, Confidence(tables, "vaccine therapy for rural children", domain.Health), 1e-9)
	assert.GreaterOrEqual(t, Confidence(tables, "vaccine", domain.Health), MinConfidence)
}

func climateInsights() patterns.Insights {
	return patterns.Insights{
		Domain:           domain.Climate,
		SourceCount:      3,
		CommonThemes:     []string{"carbon pricing"},
		FrequentConcepts: []string{"carbon pricing", "carbon"},
		RareConcepts:     []string{"industrial emissions", "rural households"},
		ComplementaryPairs: []patterns.Pair{
			{First: "industrial emissions", Second: "rural households", FirstDocID: "c1", SecondDocID: "c2"},
		},
		SourceDocumentIDs: []string{"c1", "c2", "c3"},
	}
}

func TestCrossDocumentStrategiesInOrder(t *testing.T) {
	ideas := CrossDocument(domain.Default(), climateInsights())
	require.Len(t, ideas, 4)

	titles := make([]string, len(ideas))
	for i, idea := range ideas {
		titles[i] = idea.Title
		assert.Equal(t, domain.MetricCO2, idea.PrimaryMetric)
		assert.Equal(t, domain.NewlyViable, idea.IdeaType)
		assert.Equal(t, domain.Climate, idea.Domain)
	}
	assert.Equal(t, []string{
		"Cross-Study Climate Theme: Carbon Pricing",
		"Scaling Industrial Emissions Beyond a Single Climate Study",
		"Combining Industrial Emissions with Rural Households for Climate",
		"Multi-Study Climate Program Combining Carbon Pricing, Carbon",
	}, titles)
	assert.Equal(t, []float64{ThemeConfidence, GapFillingConfidence, ComplementaryConfidence, ComprehensiveConfidence},
		[]float64{ideas[0].ConfidenceScore, ideas[1].ConfidenceScore, ideas[2].ConfidenceScore, ideas[3].ConfidenceScore})
	assert.Equal(t, domain.MethodComplementary, ideas[2].ExtractionMethod)
	assert.Equal(t, []string{"c1", "c2"}, ideas[2].SourceDocumentIDs)
	assert.Equal(t, []string{"c1", "c2", "c3"}, ideas[3].SourceDocumentIDs)
}

func TestCrossDocumentSkipsEmptyInputs(t *testing.T) {
	assert.Empty(t, CrossDocument(domain.Default(), patterns.Insights{Domain: domain.Health, SourceCount: 2}))

	ins := climateInsights()
	ins.CommonThemes = nil
	ins.ComplementaryPairs = nil
	ideas := CrossDocument(domain.Default(), ins)
	require.Len(t, ideas, 2)
	assert.Equal(t, domain.MethodGapFilling, ideas[0].ExtractionMethod)
	assert.Equal(t, domain.MethodComprehensive, ideas[1].ExtractionMethod)
}

func TestGapsUnderrepresentedAndCrossDomain(t *testing.T) {
	tables := domain.Default()
	sizes := map[domain.Domain]int{domain.Health: 1, domain.Climate: 3}
	overlaps := []patterns.Overlap{{First: domain.Health, Second: domain.Wellbeing, Shared: []string{"community clinic"}}}

	ideas := Gaps(tables, sizes, overlaps)
	require.Len(t, ideas, 6)

	var gapDomains []domain.Domain
	for _, idea := range ideas[:5] {
		gapDomains = append(gapDomains, idea.Domain)
		assert.Equal(t, domain.Evergreen, idea.IdeaType)
		assert.Equal(t, UnderrepresentedConfidence, idea.ConfidenceScore)
		assert.Equal(t, domain.MethodPatternRecognition, idea.ExtractionMethod)
	}
	assert.Equal(t, []domain.Domain{domain.Health, domain.Education, domain.EconomicDevelopment, domain.AnimalWelfare, domain.Wellbeing}, gapDomains)
	assert.Equal(t, "Comprehensive Health Intervention Program", ideas[0].Title)
	assert.Contains(t, ideas[0].Description, "intervention, treatment, prevention")
	assert.Equal(t, domain.MetricWALYs, ideas[3].PrimaryMetric)

	cross := ideas[5]
	assert.Equal(t, "Cross-Domain Health-Wellbeing Integration", cross.Title)
	assert.Equal(t, domain.Health, cross.Domain)
	assert.Equal(t, domain.NewlyViable, cross.IdeaType)
	assert.Equal(t, CrossDomainConfidence, cross.ConfidenceScore)
	assert.Contains(t, cross.Description, "community clinic")
}

func TestGapsNothingMissing(t *testing.T) {
	tables := domain.Default()
	sizes := map[domain.Domain]int{}
	for _, d := range tables.Domains() {
		sizes[d] = 2
	}
	assert.Empty(t, Gaps(tables, sizes, nil))
}

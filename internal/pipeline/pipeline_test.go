package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/joelkehle/ideasynth/internal/concepts"
	"github.com/joelkehle/ideasynth/internal/dedup"
	"github.com/joelkehle/ideasynth/internal/domain"
	"github.com/joelkehle/ideasynth/internal/synthesis"
	"github.com/joelkehle/ideasynth/internal/telemetry"
)

type sliceSource struct {
	docs   []domain.Document
	err    error
	domain string
}

func (s *sliceSource) ListDocuments(_ context.Context, d string) ([]domain.Document, error) {
	s.domain = d
	if s.err != nil {
		return nil, s.err
	}
	return s.docs, nil
}

type recordingSink struct {
	mu   sync.Mutex
	runs []RunResult
	err  error
}

func (s *recordingSink) SaveRun(_ context.Context, run RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.runs = append(s.runs, run)
	return nil
}

type fixedCaller struct{ reply string }

func (c fixedCaller) GenerateJSON(context.Context, string) (string, error) { return c.reply, nil }

const childMortality = "A 2024 clinical trial found that community health worker home visits reduced child mortality by 22% at low cost"

func climateDocs() []domain.Document {
	return []domain.Document{
		{ID: "c1", Title: "Carbon pricing in Europe", Abstract: "Carbon pricing for industrial emissions lowers costs.", DomainHint: "climate"},
		{ID: "c2", Title: "Carbon pricing and rural households", Abstract: "Carbon pricing revenue for rooftop solar grants.", DomainHint: "climate"},
	}
}

func newTestPipeline(src DocumentSource, opts Options) *Pipeline {
	return New(src, domain.Default(), concepts.NewRuleExtractor(), opts)
}

func methods(run RunResult) map[domain.ExtractionMethod]int {
	out := map[domain.ExtractionMethod]int{}
	for _, r := range run.Ranked {
		out[r.Idea.ExtractionMethod]++
	}
	return out
}

func titles(run RunResult) []string {
	var out []string
	for _, r := range run.Ranked {
		out = append(out, r.Idea.Title)
	}
	return out
}

func hasTitlePrefix(run RunResult, prefix string) bool {
	for _, title := range titles(run) {
		if strings.HasPrefix(title, prefix) {
			return true
		}
	}
	return false
}

func TestSingleDocumentDomainYieldsGapButNoCrossDocumentIdeas(t *testing.T) {
	src := &sliceSource{docs: []domain.Document{{ID: "h1", Title: "CHW trial", Abstract: childMortality, DomainHint: "health"}}}
	run, err := newTestPipeline(src, Options{}).Run(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, ReportModeComplete, run.Metadata.Mode)
	assert.NotEmpty(t, run.RunID)
	for m := range methods(run) {
		assert.False(t, strings.HasPrefix(string(m), "cross_paper_"), "unexpected cross-document idea %s", m)
	}
	assert.Zero(t, methods(run)[domain.MethodTraditionalSynthesis])
	assert.Contains(t, titles(run), "Comprehensive Health Intervention Program")
	assert.Contains(t, titles(run), "Clinical Trial for Health")
	assert.Equal(t, 1, methods(run)[domain.MethodNLP])
}

func TestClimateRunUsesDeterministicFallback(t *testing.T) {
	src := &sliceSource{docs: climateDocs()}
	run, err := newTestPipeline(src, Options{}).Run(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, ReportModeComplete, run.Metadata.Mode)
	assert.False(t, run.Metadata.AssistAvailable)
	m := methods(run)
	assert.Equal(t, 1, m[domain.MethodThemeIntegration])
	assert.Equal(t, 1, m[domain.MethodGapFilling])
	assert.Equal(t, 1, m[domain.MethodComplementary])
	assert.Equal(t, 1, m[domain.MethodComprehensive])
	assert.Equal(t, 1, m[domain.MethodTraditionalSynthesis])
	assert.True(t, hasTitlePrefix(run, "Cross-Study Climate Theme: Carbon Pricing"))
	assert.NotContains(t, titles(run), "Comprehensive Climate Intervention Program")

	// Both documents open with a carbon-pricing sentence; only the first
	// direct idea survives.
	require.NotEmpty(t, run.Discards)
	assert.Equal(t, "Carbon Pricing for Climate", run.Discards[0].Loser)
	assert.Equal(t, len(run.Discards), run.Metadata.DuplicatesDiscarded)
}

func TestNonJSONAssistReplyDegradesButCompletes(t *testing.T) {
	assistant := synthesis.NewAssistant(domain.Default(), fixedCaller{reply: "Sure! Here are three ideas."}, synthesis.AssistOptions{}, nil)
	run, err := newTestPipeline(&sliceSource{docs: climateDocs()}, Options{Assistant: assistant}).Run(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, ReportModeDegraded, run.Metadata.Mode)
	assert.True(t, run.Metadata.AssistAvailable)
	assert.Zero(t, methods(run)[domain.MethodAISynthesis])
	assert.Zero(t, methods(run)[domain.MethodTraditionalSynthesis])
	assert.NotZero(t, methods(run)[domain.MethodThemeIntegration])

	failures := run.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, StageAssist, failures[0].Stage)
	assert.Equal(t, "climate", failures[0].Scope)
	assert.Contains(t, failures[0].Failure, synthesis.ErrMalformedResponse.Error())
}

func TestAssistIdeasMergeAfterCrossDocument(t *testing.T) {
	reply := `{"ideas":[{"title":"Carbon Dividend Pilot for Rural Households","description":"Return carbon revenue as household dividends to cut CO2."}]}`
	assistant := synthesis.NewAssistant(domain.Default(), fixedCaller{reply: reply}, synthesis.AssistOptions{}, nil)
	run, err := newTestPipeline(&sliceSource{docs: climateDocs()}, Options{Assistant: assistant}).Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, ReportModeComplete, run.Metadata.Mode)
	assert.Equal(t, 1, methods(run)[domain.MethodAISynthesis])
	assert.Contains(t, titles(run), "Carbon Dividend Pilot for Rural Households")
}

func TestRankedIdeasAreDistinctAndInRange(t *testing.T) {
	docs := append(climateDocs(),
		domain.Document{ID: "h1", Title: "CHW trial", Abstract: childMortality},
		domain.Document{ID: "h2", Title: "Bed nets", Abstract: "The vaccine therapy treatment program improved outcomes for children across districts."},
		domain.Document{ID: "a1", Title: "Cage-free campaigns", Abstract: "Corporate campaigns reduce animal suffering on livestock farms with strong welfare protection."},
	)
	run, err := newTestPipeline(&sliceSource{docs: docs}, Options{Workers: 2}).Run(context.Background(), "")
	require.NoError(t, err)
	require.NotEmpty(t, run.Ranked)

	for i := range run.Ranked {
		ev := run.Ranked[i].Evaluation
		for _, v := range []float64{ev.ImpactScore, ev.NeglectednessScore, ev.TractabilityScore, ev.ScalabilityScore, ev.OverallScore} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 10.0)
		}
		assert.Equal(t, ev.OverallScore, run.Ranked[i].Idea.PriorityScore)
		if i > 0 {
			assert.GreaterOrEqual(t, run.Ranked[i-1].Evaluation.OverallScore, ev.OverallScore)
		}
		for j := i + 1; j < len(run.Ranked); j++ {
			assert.LessOrEqual(t, dedup.TitleSimilarity(run.Ranked[i].Idea.Title, run.Ranked[j].Idea.Title), dedup.Threshold)
		}
		if run.Ranked[i].Idea.ExtractionMethod == domain.MethodNLP {
			assert.GreaterOrEqual(t, run.Ranked[i].Idea.ConfidenceScore, synthesis.MinConfidence)
		}
	}
	require.Len(t, run.Contrarian, len(run.Ranked))
	for _, c := range run.Contrarian {
		assert.LessOrEqual(t, c.ContrarianScore, 10.0)
		assert.NotEmpty(t, c.ContrarianReasoning)
	}
}

func TestRankLimit(t *testing.T) {
	run, err := newTestPipeline(&sliceSource{docs: climateDocs()}, Options{RankLimit: 2}).Run(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, run.Ranked, 2)
	assert.Len(t, run.Contrarian, 2)
	assert.Greater(t, run.Metadata.CandidatesGenerated, 2)
}

func TestInvalidDocumentsAreSkippedAndCounted(t *testing.T) {
	docs := append(climateDocs(),
		domain.Document{ID: "", Title: "No id"},
		domain.Document{ID: "x1", Title: ""},
		domain.Document{ID: "c1", Title: "Duplicate id"},
	)
	run, err := newTestPipeline(&sliceSource{docs: docs}, Options{}).Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, run.Metadata.DocumentsRead)
	assert.Equal(t, 3, run.Metadata.DocumentsSkipped)
	assert.Equal(t, StageReport{Stage: StageDocuments, Skipped: 3}, run.Stages[0])
	assert.Equal(t, ReportModeComplete, run.Metadata.Mode)
}

func TestOptionalFieldsNeverDropDocuments(t *testing.T) {
	docs := []domain.Document{
		{ID: "h1", Title: "CHW trial", Abstract: childMortality, DomainHint: "health", URL: "www.who.int/report"},
		{ID: "h2", Title: "Vaccine trial", Abstract: "A vaccine therapy treatment program lowered child mortality.", DomainHint: "space"},
	}
	run, err := newTestPipeline(&sliceSource{docs: docs}, Options{}).Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, run.Metadata.DocumentsRead)
	assert.Zero(t, run.Metadata.DocumentsSkipped)
	assert.Zero(t, run.Metadata.DocumentsUnclassified)
	assert.NotContains(t, titles(run), "Comprehensive Health Intervention Program")
}

func TestUnclassifiedDocumentsAreCounted(t *testing.T) {
	docs := append(climateDocs(), domain.Document{ID: "u1", Title: "Weather diary", Abstract: "The weather was pleasant on that long afternoon."})
	run, err := newTestPipeline(&sliceSource{docs: docs}, Options{}).Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, run.Metadata.DocumentsUnclassified)
}

func TestSourceFailureIsFatal(t *testing.T) {
	_, err := newTestPipeline(&sliceSource{err: errors.New("database locked")}, Options{}).Run(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, StageDocuments, StageNameFromError(err))
	assert.Contains(t, err.Error(), "database locked")
}

func TestDomainFilter(t *testing.T) {
	src := &sliceSource{docs: climateDocs()}
	run, err := newTestPipeline(src, Options{}).Run(context.Background(), " Climate ")
	require.NoError(t, err)
	assert.Equal(t, "climate", src.domain)
	assert.Equal(t, "climate", run.Metadata.DomainFilter)
	for _, r := range run.Ranked {
		assert.Equal(t, domain.Climate, r.Idea.Domain, r.Idea.Title)
	}

	_, err = newTestPipeline(src, Options{}).Run(context.Background(), "astronomy")
	assert.Error(t, err)
}

func TestSinkReceivesRunAndFailureDegrades(t *testing.T) {
	sink := &recordingSink{}
	run, err := newTestPipeline(&sliceSource{docs: climateDocs()}, Options{Sink: sink}).Run(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, sink.runs, 1)
	assert.Equal(t, run.RunID, sink.runs[0].RunID)
	assert.Contains(t, run.Metadata.StagesExecuted, StageSave)

	failing := &recordingSink{err: errors.New("disk full")}
	run, err = newTestPipeline(&sliceSource{docs: climateDocs()}, Options{Sink: failing}).Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, ReportModeDegraded, run.Metadata.Mode)
	require.Len(t, run.Failures(), 1)
	assert.Equal(t, StageSave, run.Failures()[0].Stage)
	assert.NotEmpty(t, run.Ranked)
}

func TestProgressSpansAndMetrics(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	metrics := telemetry.NewMetrics()

	var stages []string
	var mu sync.Mutex
	p := newTestPipeline(&sliceSource{docs: climateDocs()}, Options{Tracer: tp.Tracer("test"), Metrics: metrics})
	run, err := p.RunWithProgress(context.Background(), "", func(stage, _ string) {
		mu.Lock()
		stages = append(stages, stage)
		mu.Unlock()
	})
	require.NoError(t, err)

	assert.Equal(t, []string{StageDocuments, StageDirect, StageCrossDocument, StageAssist, StageGaps, StageDedup, StageScoring}, stages)

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "pipeline.Run")
	assert.Contains(t, names, "pipeline.direct_extraction")
	assert.Contains(t, names, "pipeline.generative_assist")
	assert.Contains(t, names, "pipeline.scoring")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.IdeasGenerated.WithLabelValues(string(domain.MethodThemeIntegration))))
	assert.Equal(t, float64(run.Metadata.DuplicatesDiscarded), testutil.ToFloat64(metrics.DuplicatesDiscarded))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.RunDuration))
}

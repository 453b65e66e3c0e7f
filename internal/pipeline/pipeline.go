// Package pipeline runs one synthesis pass over the document store: direct
// extraction, cross-document analysis, generative assist, gap analysis,
// deduplication and scoring.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joelkehle/ideasynth/internal/concepts"
	"github.com/joelkehle/ideasynth/internal/dedup"
	"github.com/joelkehle/ideasynth/internal/domain"
	"github.com/joelkehle/ideasynth/internal/patterns"
	"github.com/joelkehle/ideasynth/internal/scoring"
	"github.com/joelkehle/ideasynth/internal/synthesis"
	"github.com/joelkehle/ideasynth/internal/telemetry"
)

const (
	DefaultWorkers   = 4
	DefaultRankLimit = 50
)

type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

type StageProgressFn func(stage, message string)

type Options struct {
	Workers int
	// RankLimit caps both ranked views; zero means DefaultRankLimit and a
	// negative value keeps everything.
	RankLimit int
	// Assistant defaults to the deterministic fallback.
	Assistant synthesis.Assistant
	Sink      ResultSink
	Logger    *zap.Logger
	Tracer    trace.Tracer
	Metrics   *telemetry.Metrics
}

type Pipeline struct {
	source    DocumentSource
	tables    *domain.Tables
	direct    *synthesis.DirectExtractor
	analyzer  *patterns.Analyzer
	assistant synthesis.Assistant
	scorer    *scoring.Scorer
	validate  *validator.Validate
	sink      ResultSink
	workers   int
	rankLimit int
	log       *zap.Logger
	tracer    trace.Tracer
	metrics   *telemetry.Metrics
}

func New(source DocumentSource, tables *domain.Tables, extractor concepts.Extractor, opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("ideasynth")
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.RankLimit == 0 {
		opts.RankLimit = DefaultRankLimit
	}
	if opts.Assistant == nil {
		opts.Assistant = synthesis.NewAssistant(tables, nil, synthesis.AssistOptions{}, opts.Logger)
	}
	return &Pipeline{
		source:    source,
		tables:    tables,
		direct:    synthesis.NewDirectExtractor(tables, extractor, opts.Logger),
		analyzer:  patterns.NewAnalyzer(tables, extractor, opts.Logger),
		assistant: opts.Assistant,
		scorer:    scoring.NewScorer(tables),
		validate:  validator.New(),
		sink:      opts.Sink,
		workers:   opts.Workers,
		rankLimit: opts.RankLimit,
		log:       opts.Logger,
		tracer:    opts.Tracer,
		metrics:   opts.Metrics,
	}
}

func (p *Pipeline) Run(ctx context.Context, domainFilter string) (RunResult, error) {
	return p.runWithProgress(ctx, domainFilter, nil)
}

func (p *Pipeline) RunWithProgress(ctx context.Context, domainFilter string, progress StageProgressFn) (RunResult, error) {
	return p.runWithProgress(ctx, domainFilter, progress)
}

// runWithProgress only returns an error when the filter is invalid or the
// document source cannot be read. Every other failure lands in the stage
// reports and degrades the run.
func (p *Pipeline) runWithProgress(ctx context.Context, domainFilter string, progress StageProgressFn) (RunResult, error) {
	started := time.Now()
	res := RunResult{
		RunID: uuid.NewString(),
		Metadata: RunMetadata{
			StartedAt:       started.UTC(),
			Mode:            ReportModeComplete,
			AssistAvailable: p.assistant.Available(),
		},
	}
	var filter domain.Domain
	if domainFilter != "" {
		d, err := domain.ParseDomain(domainFilter)
		if err != nil {
			return res, &StageError{Stage: StageDocuments, Err: err}
		}
		filter = d
		res.Metadata.DomainFilter = string(d)
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("run.id", res.RunID),
		attribute.String("run.domain", string(filter)),
	))
	defer span.End()

	docs, err := p.loadDocuments(ctx, filter, &res, progress)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "document source unavailable")
		return res, err
	}
	groups := p.groupDocuments(docs, &res)

	perDoc := p.runDocuments(ctx, docs, groups, &res, progress)
	insights, cross := p.runCrossDocument(ctx, docs, groups, perDoc, &res, progress)

	assistDone := p.startAssist(ctx, docs, groups, insights, progress)
	gaps := p.runGaps(ctx, filter, groups, perDoc, &res, progress)
	assisted := p.collectAssist(assistDone, &res)

	// Canonical order: direct, cross-document, assist, gaps.
	var candidates []domain.CandidateIdea
	for _, d := range perDoc {
		candidates = append(candidates, d.ideas...)
	}
	candidates = append(candidates, cross...)
	candidates = append(candidates, assisted...)
	candidates = append(candidates, gaps...)
	res.Metadata.CandidatesGenerated = len(candidates)
	if p.metrics != nil {
		for _, c := range candidates {
			p.metrics.IdeasGenerated.WithLabelValues(string(c.ExtractionMethod)).Inc()
		}
	}

	survivors := p.dedupe(ctx, candidates, &res, progress)
	scored := p.score(ctx, survivors, &res, progress)

	ranked := scoring.Rank(scored, 0)
	res.Contrarian = scoring.ContrarianRank(p.tables, ranked, p.rankLimit)
	if p.rankLimit > 0 && len(ranked) > p.rankLimit {
		ranked = ranked[:p.rankLimit]
	}
	res.Ranked = ranked

	res = p.finalize(res)
	p.save(ctx, &res, progress)

	if p.metrics != nil {
		p.metrics.RunDuration.Observe(time.Since(started).Seconds())
	}
	span.SetAttributes(
		attribute.Int("run.candidates", res.Metadata.CandidatesGenerated),
		attribute.Int("run.ranked", len(res.Ranked)),
		attribute.String("run.mode", string(res.Metadata.Mode)),
	)
	p.log.Info("pipeline run finished",
		zap.String("run_id", res.RunID),
		zap.String("mode", string(res.Metadata.Mode)),
		zap.Int("documents", res.Metadata.DocumentsRead),
		zap.Int("candidates", res.Metadata.CandidatesGenerated),
		zap.Int("duplicates", res.Metadata.DuplicatesDiscarded),
		zap.Int("ranked", len(res.Ranked)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return res, nil
}

func (p *Pipeline) loadDocuments(ctx context.Context, filter domain.Domain, res *RunResult, progress StageProgressFn) ([]domain.Document, error) {
	emit(progress, StageDocuments, "Loading documents...")
	ctx, span := p.tracer.Start(ctx, "pipeline.documents")
	defer span.End()

	raw, err := p.source.ListDocuments(ctx, string(filter))
	if err != nil {
		return nil, &StageError{Stage: StageDocuments, Err: err}
	}
	docs := make([]domain.Document, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	skipped := 0
	for _, doc := range raw {
		if err := p.validate.Struct(doc); err != nil {
			skipped++
			p.log.Debug("skipping invalid document", zap.String("document_id", doc.ID), zap.Error(err))
			continue
		}
		if _, dup := seen[doc.ID]; dup {
			skipped++
			p.log.Debug("skipping duplicate document id", zap.String("document_id", doc.ID))
			continue
		}
		seen[doc.ID] = struct{}{}
		docs = append(docs, doc)
	}
	res.Metadata.DocumentsRead = len(docs)
	res.Metadata.DocumentsSkipped = skipped
	if p.metrics != nil {
		p.metrics.DocumentsSkipped.Add(float64(skipped))
	}
	res.Stages = append(res.Stages, StageReport{Stage: StageDocuments, Skipped: skipped})
	res.Metadata.StagesExecuted = append(res.Metadata.StagesExecuted, StageDocuments)
	span.SetAttributes(attribute.Int("documents.read", len(docs)), attribute.Int("documents.skipped", skipped))
	return docs, nil
}

// documentGroups assigns each document at most one domain: a valid hint
// wins, otherwise the classifier decides over title and abstract.
type documentGroups struct {
	of      []domain.Domain // per document; "" when unclassified
	members map[domain.Domain][]int
}

func (g documentGroups) size(d domain.Domain) int { return len(g.members[d]) }

func (p *Pipeline) groupDocuments(docs []domain.Document, res *RunResult) documentGroups {
	g := documentGroups{of: make([]domain.Domain, len(docs)), members: map[domain.Domain][]int{}}
	for i, doc := range docs {
		d := domain.Domain(doc.DomainHint)
		if !d.Valid() {
			var ok bool
			if d, ok = p.tables.Classify(doc.Text()); !ok {
				res.Metadata.DocumentsUnclassified++
				continue
			}
		}
		g.of[i] = d
		g.members[d] = append(g.members[d], i)
	}
	return g
}

type documentOutput struct {
	ideas    []domain.CandidateIdea
	concepts *patterns.DocumentConcepts
	reports  []StageReport
}

// runDocuments fans direct extraction and concept extraction out over the
// worker pool. Each document writes only its own slot.
func (p *Pipeline) runDocuments(ctx context.Context, docs []domain.Document, groups documentGroups, res *RunResult, progress StageProgressFn) []documentOutput {
	emit(progress, StageDirect, fmt.Sprintf("Extracting ideas from %d documents...", len(docs)))
	ctx, span := p.tracer.Start(ctx, "pipeline.direct_extraction")
	defer span.End()

	out := make([]documentOutput, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range docs {
		g.Go(func() error {
			doc := docs[i]
			slot := &out[i]
			r := p.direct.Extract(gctx, doc)
			if ideas, ok := r.Value(); ok {
				slot.ideas = ideas
			} else {
				slot.reports = append(slot.reports, StageReport{Stage: StageDirect, Scope: doc.ID, Failure: r.Reason()})
			}
			if d := groups.of[i]; d != "" {
				dc, err := p.analyzer.Concepts(gctx, d, doc)
				if err != nil {
					slot.reports = append(slot.reports, StageReport{Stage: StageConcepts, Scope: doc.ID, Failure: err.Error()})
				}
				slot.concepts = &dc
			}
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, o := range out {
		total += len(o.ideas)
		for _, r := range o.reports {
			p.recordFailure(res, r)
		}
	}
	res.Stages = append(res.Stages, StageReport{Stage: StageDirect, Ideas: total})
	res.Metadata.StagesExecuted = append(res.Metadata.StagesExecuted, StageDirect, StageConcepts)
	span.SetAttributes(attribute.Int("ideas", total))
	p.log.Info("direct extraction finished", zap.Int("documents", len(docs)), zap.Int("ideas", total))
	return out
}

// runCrossDocument summarizes every domain group with enough documents and
// runs the four cross-document strategies on it.
func (p *Pipeline) runCrossDocument(ctx context.Context, docs []domain.Document, groups documentGroups, perDoc []documentOutput, res *RunResult, progress StageProgressFn) (map[domain.Domain]patterns.Insights, []domain.CandidateIdea) {
	emit(progress, StageCrossDocument, "Analyzing cross-document patterns...")
	ctx, span := p.tracer.Start(ctx, "pipeline.cross_document")
	defer span.End()

	order := p.tables.Domains()
	type domainOutput struct {
		insights *patterns.Insights
		ideas    []domain.CandidateIdea
		failure  string
	}
	out := make([]domainOutput, len(order))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, d := range order {
		members := groups.members[d]
		if len(members) < patterns.MinDocuments {
			continue
		}
		g.Go(func() error {
			sets := make([]patterns.DocumentConcepts, 0, len(members))
			for _, idx := range members {
				if c := perDoc[idx].concepts; c != nil {
					sets = append(sets, *c)
				} else {
					sets = append(sets, patterns.DocumentConcepts{DocumentID: docs[idx].ID})
				}
			}
			r := patterns.Summarize(d, sets)
			ins, ok := r.Value()
			if !ok {
				out[i].failure = r.Reason()
				return nil
			}
			out[i].insights = &ins
			out[i].ideas = synthesis.CrossDocument(p.tables, ins)
			return nil
		})
	}
	_ = g.Wait()

	insights := map[domain.Domain]patterns.Insights{}
	var ideas []domain.CandidateIdea
	for i, o := range out {
		if o.failure != "" {
			p.recordFailure(res, StageReport{Stage: StageCrossDocument, Scope: string(order[i]), Failure: o.failure})
			continue
		}
		if o.insights != nil {
			insights[order[i]] = *o.insights
		}
		ideas = append(ideas, o.ideas...)
	}
	res.Stages = append(res.Stages, StageReport{Stage: StageCrossDocument, Ideas: len(ideas)})
	res.Metadata.StagesExecuted = append(res.Metadata.StagesExecuted, StageCrossDocument)
	span.SetAttributes(attribute.Int("domains", len(insights)), attribute.Int("ideas", len(ideas)))
	return insights, ideas
}

type assistOutput struct {
	domain domain.Domain
	ideas  []domain.CandidateIdea
	reason string
	failed bool
}

// startAssist launches one generative-assist call per analyzed domain. The
// assistant enforces its own deadline.
func (p *Pipeline) startAssist(ctx context.Context, docs []domain.Document, groups documentGroups, insights map[domain.Domain]patterns.Insights, progress StageProgressFn) func() []assistOutput {
	if p.assistant.Available() {
		emit(progress, StageAssist, "Requesting generative synthesis...")
	} else {
		emit(progress, StageAssist, "Generative assist unavailable; using deterministic synthesis...")
	}
	ctx, span := p.tracer.Start(ctx, "pipeline.generative_assist", trace.WithAttributes(attribute.Bool("assist.available", p.assistant.Available())))

	var targets []domain.Domain
	for _, d := range p.tables.Domains() {
		if _, ok := insights[d]; ok {
			targets = append(targets, d)
		}
	}
	out := make([]assistOutput, len(targets))
	var g errgroup.Group
	for i, d := range targets {
		members := make([]domain.Document, 0, groups.size(d))
		for _, idx := range groups.members[d] {
			members = append(members, docs[idx])
		}
		ins := insights[d]
		g.Go(func() error {
			r := p.assistant.Synthesize(ctx, d, members, ins)
			ideas, ok := r.Value()
			out[i] = assistOutput{domain: d, ideas: ideas, reason: r.Reason(), failed: !ok}
			return nil
		})
	}
	return func() []assistOutput {
		_ = g.Wait()
		span.End()
		return out
	}
}

func (p *Pipeline) collectAssist(wait func() []assistOutput, res *RunResult) []domain.CandidateIdea {
	var ideas []domain.CandidateIdea
	for _, o := range wait() {
		if o.failed {
			p.log.Warn("generative assist contributed nothing", zap.String("domain", string(o.domain)), zap.String("reason", o.reason))
			p.recordFailure(res, StageReport{Stage: StageAssist, Scope: string(o.domain), Failure: o.reason})
			continue
		}
		ideas = append(ideas, o.ideas...)
	}
	res.Stages = append(res.Stages, StageReport{Stage: StageAssist, Ideas: len(ideas)})
	res.Metadata.StagesExecuted = append(res.Metadata.StagesExecuted, StageAssist)
	return ideas
}

// runGaps emits underrepresented-domain and cross-domain ideas. Under a
// domain filter only ideas for that domain are kept.
func (p *Pipeline) runGaps(ctx context.Context, filter domain.Domain, groups documentGroups, perDoc []documentOutput, res *RunResult, progress StageProgressFn) []domain.CandidateIdea {
	emit(progress, StageGaps, "Looking for underrepresented and overlapping domains...")
	_, span := p.tracer.Start(ctx, "pipeline.gap_analysis")
	defer span.End()

	sizes := map[domain.Domain]int{}
	for _, d := range p.tables.Domains() {
		sizes[d] = groups.size(d)
	}
	var sets []patterns.DocumentConcepts
	for _, o := range perDoc {
		if o.concepts != nil {
			sets = append(sets, *o.concepts)
		}
	}
	overlaps := patterns.Overlaps(p.tables, patterns.ClusterThemes(p.tables, sets))
	ideas := synthesis.Gaps(p.tables, sizes, overlaps)
	if filter != "" {
		kept := ideas[:0]
		for _, idea := range ideas {
			if idea.Domain == filter {
				kept = append(kept, idea)
			}
		}
		ideas = kept
	}
	res.Stages = append(res.Stages, StageReport{Stage: StageGaps, Ideas: len(ideas)})
	res.Metadata.StagesExecuted = append(res.Metadata.StagesExecuted, StageGaps)
	span.SetAttributes(attribute.Int("overlaps", len(overlaps)), attribute.Int("ideas", len(ideas)))
	return ideas
}

func (p *Pipeline) dedupe(ctx context.Context, candidates []domain.CandidateIdea, res *RunResult, progress StageProgressFn) []domain.CandidateIdea {
	emit(progress, StageDedup, fmt.Sprintf("Deduplicating %d candidates...", len(candidates)))
	_, span := p.tracer.Start(ctx, "pipeline.deduplication")
	defer span.End()

	d := dedup.New()
	survivors := d.Filter(candidates)
	res.Discards = d.Discarded()
	res.Metadata.DuplicatesDiscarded = len(res.Discards)
	if p.metrics != nil {
		p.metrics.DuplicatesDiscarded.Add(float64(len(res.Discards)))
	}
	res.Stages = append(res.Stages, StageReport{Stage: StageDedup, Ideas: len(survivors), Skipped: len(res.Discards)})
	res.Metadata.StagesExecuted = append(res.Metadata.StagesExecuted, StageDedup)
	span.SetAttributes(attribute.Int("survivors", len(survivors)), attribute.Int("discarded", len(res.Discards)))
	return survivors
}

func (p *Pipeline) score(ctx context.Context, ideas []domain.CandidateIdea, res *RunResult, progress StageProgressFn) []RankedIdea {
	emit(progress, StageScoring, fmt.Sprintf("Scoring %d ideas...", len(ideas)))
	_, span := p.tracer.Start(ctx, "pipeline.scoring")
	defer span.End()

	out := make([]RankedIdea, len(ideas))
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i := range ideas {
		g.Go(func() error {
			out[i] = RankedIdea{Idea: ideas[i], Evaluation: p.scorer.Evaluate(ideas[i])}
			return nil
		})
	}
	_ = g.Wait()
	res.Stages = append(res.Stages, StageReport{Stage: StageScoring, Ideas: len(out)})
	res.Metadata.StagesExecuted = append(res.Metadata.StagesExecuted, StageScoring)
	return out
}

func (p *Pipeline) save(ctx context.Context, res *RunResult, progress StageProgressFn) {
	if p.sink == nil {
		return
	}
	emit(progress, StageSave, "Saving run...")
	ctx, span := p.tracer.Start(ctx, "pipeline.save")
	defer span.End()
	if err := p.sink.SaveRun(ctx, *res); err != nil {
		span.RecordError(err)
		p.log.Warn("saving run failed", zap.String("run_id", res.RunID), zap.Error(err))
		p.recordFailure(res, StageReport{Stage: StageSave, Failure: err.Error()})
		res.Metadata.Mode = ReportModeDegraded
		return
	}
	res.Metadata.StagesExecuted = append(res.Metadata.StagesExecuted, StageSave)
}

func (p *Pipeline) recordFailure(res *RunResult, r StageReport) {
	res.Stages = append(res.Stages, r)
	if p.metrics != nil {
		p.metrics.StageFailures.WithLabelValues(r.Stage).Inc()
	}
}

func (p *Pipeline) finalize(res RunResult) RunResult {
	res.Metadata.CompletedAt = time.Now().UTC()
	res.Metadata.Mode = ReportModeComplete
	if len(res.Failures()) > 0 {
		res.Metadata.Mode = ReportModeDegraded
	}
	return res
}

func emit(progress StageProgressFn, stage, message string) {
	if progress != nil {
		progress(stage, message)
	}
}

func StageNameFromError(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return "pipeline"
}

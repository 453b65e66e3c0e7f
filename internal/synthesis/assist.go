package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/joelkehle/ideasynth/internal/concepts"
	"github.com/joelkehle/ideasynth/internal/domain"
	"github.com/joelkehle/ideasynth/internal/patterns"
	"github.com/joelkehle/ideasynth/internal/result"
)

const (
	AssistConfidence      = 0.8
	FallbackConfidence    = 0.7
	maxContextDocuments   = 5
	maxContextAbstract    = 300
	maxAssistIdeas        = 3
	maxAssistAttempts     = 2
	defaultAssistTimeout  = 20 * time.Second
	defaultBreakerTrips   = 3
	defaultBreakerTimeout = time.Minute
)

var (
	ErrAssistUnavailable = errors.New("generative assist unavailable")
	ErrMalformedResponse = errors.New("malformed generative assist response")
)

// Assistant is the generative-assist capability. NewAssistant picks the
// variant once; callers never check for a missing collaborator.
type Assistant interface {
	Available() bool
	Synthesize(ctx context.Context, d domain.Domain, docs []domain.Document, ins patterns.Insights) result.Result[[]domain.CandidateIdea]
}

type AssistOptions struct {
	Timeout         time.Duration
	BreakerTrips    uint32
	BreakerCooldown time.Duration
}

// NewAssistant returns the available variant when caller is non-nil and the
// deterministic fallback otherwise.
func NewAssistant(tables *domain.Tables, caller LLMCaller, opts AssistOptions, log *zap.Logger) Assistant {
	if log == nil {
		log = zap.NewNop()
	}
	if caller == nil {
		return unavailableAssistant{tables: tables}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultAssistTimeout
	}
	if opts.BreakerTrips == 0 {
		opts.BreakerTrips = defaultBreakerTrips
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = defaultBreakerTimeout
	}
	trips := opts.BreakerTrips
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "generative-assist",
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trips
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("circuit breaker state changed", zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return &availableAssistant{
		tables:  tables,
		caller:  caller,
		breaker: cb,
		timeout: opts.Timeout,
		log:     log,
	}
}

type availableAssistant struct {
	tables  *domain.Tables
	caller  LLMCaller
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	log     *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func (a *availableAssistant) Available() bool { return true }

func (a *availableAssistant) Synthesize(ctx context.Context, d domain.Domain, docs []domain.Document, ins patterns.Insights) result.Result[[]domain.CandidateIdea] {
	if len(docs) == 0 {
		return result.Ok[[]domain.CandidateIdea](nil)
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	used := docs
	if len(used) > maxContextDocuments {
		used = used[:maxContextDocuments]
	}
	prompt := buildAssistPrompt(d, used)

	var raw string
	for attempt := 1; attempt <= maxAssistAttempts; attempt++ {
		out, err := a.breaker.Execute(func() (interface{}, error) {
			return a.caller.GenerateJSON(ctx, prompt)
		})
		if err == nil {
			raw, _ = out.(string)
			break
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return result.Failedf[[]domain.CandidateIdea]("%v: %v", ErrAssistUnavailable, err)
		}
		class := classifyTransportError(err)
		if attempt < maxAssistAttempts && retryable(class) {
			a.log.Debug("generative assist retry", zap.String("domain", string(d)), zap.String("class", class.String()), zap.Error(err))
			if werr := a.wait(ctx, backoffDelay(attempt)); werr != nil {
				return result.Failedf[[]domain.CandidateIdea]("%s failure: %v", failureTimeout, werr)
			}
			continue
		}
		return result.Failedf[[]domain.CandidateIdea]("%s failure: %v", class, err)
	}

	parsed, err := parseAssistResponse(raw)
	if err != nil {
		return result.Failed[[]domain.CandidateIdea](err.Error())
	}
	ids := documentIDs(used)
	ideas := make([]domain.CandidateIdea, 0, len(parsed))
	for _, p := range parsed {
		ideas = append(ideas, domain.CandidateIdea{
			Title:               concepts.CollapseSpace(p.Title),
			Description:         concepts.Truncate(concepts.CollapseSpace(p.Description), maxDescriptionChars),
			Domain:              d,
			PrimaryMetric:       a.tables.ClassifyMetric(p.Description, d),
			IdeaType:            domain.NewlyViable,
			ConfidenceScore:     AssistConfidence,
			ExtractionMethod:    domain.MethodAISynthesis,
			ProvenanceNotes:     fmt.Sprintf("Generative synthesis over %d %s sources", len(used), d),
			SourceDocumentIDs:   ids,
			KeyInnovation:       p.KeyInnovation,
			ExpectedImpact:      p.ExpectedImpact,
			ImplementationNotes: p.Implementation,
			Challenges:          p.Challenges,
		})
	}
	return result.Ok(ideas)
}

func (a *availableAssistant) wait(ctx context.Context, d time.Duration) error {
	if a.sleep != nil {
		return a.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// unavailableAssistant produces the deterministic integrated-theme idea
// from the insights already computed for the domain.
type unavailableAssistant struct {
	tables *domain.Tables
}

func (unavailableAssistant) Available() bool { return false }

func (u unavailableAssistant) Synthesize(_ context.Context, d domain.Domain, docs []domain.Document, ins patterns.Insights) result.Result[[]domain.CandidateIdea] {
	if len(ins.FrequentConcepts) == 0 {
		return result.Ok[[]domain.CandidateIdea](nil)
	}
	themes := strings.Join(head(ins.FrequentConcepts, 3), ", ")
	n := ins.SourceCount
	name := string(d)
	return result.Ok([]domain.CandidateIdea{{
		Title:               fmt.Sprintf("Integrated %s Intervention Using %s", d.DisplayName(), concepts.TitleCase(themes)),
		Description:         fmt.Sprintf("This intervention combines multiple approaches from %d related studies in %s. Key elements include: %s. Based on analysis of %d research papers, this integrated approach addresses gaps identified across multiple studies in the %s domain.", n, name, themes, len(docs), name),
		Domain:              d,
		PrimaryMetric:       u.tables.DefaultMetric(d),
		IdeaType:            domain.NewlyViable,
		ConfidenceScore:     FallbackConfidence,
		ExtractionMethod:    domain.MethodTraditionalSynthesis,
		ProvenanceNotes:     fmt.Sprintf("Deterministic synthesis combining insights from %d related sources in %s", n, name),
		SourceDocumentIDs:   ins.SourceDocumentIDs,
		KeyInnovation:       fmt.Sprintf("Integration of %d related approaches in %s", n, name),
		ExpectedImpact:      fmt.Sprintf("Enhanced outcomes through combined insights from multiple %s studies", name),
		ImplementationNotes: fmt.Sprintf("Implement key elements from %d related interventions", n),
		Challenges:          "Coordination of multiple intervention components and measurement of combined effects",
	}})
}

type assistResponse struct {
	Ideas []assistIdea `json:"ideas"`
}

type assistIdea struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	KeyInnovation  string `json:"key_innovation"`
	ExpectedImpact string `json:"expected_impact"`
	Implementation string `json:"implementation"`
	Challenges     string `json:"challenges"`
}

func buildAssistPrompt(d domain.Domain, docs []domain.Document) string {
	var ctxText strings.Builder
	for i, doc := range docs {
		fmt.Fprintf(&ctxText, "Source %d: %s\n", i+1, strings.TrimSpace(doc.Title))
		if abstract := strings.TrimSpace(doc.Abstract); abstract != "" {
			fmt.Fprintf(&ctxText, "Abstract: %s...\n", string(headRunes(abstract, maxContextAbstract)))
		}
		ctxText.WriteString("\n")
	}
	return fmt.Sprintf(`Based on these related sources about %s:

%s
Generate 2-3 novel philanthropic intervention ideas that synthesize insights across these sources. Each idea should be specific, actionable and grounded in the evidence above.

Respond with JSON in exactly this shape:
{"ideas":[{"title":"...","description":"...","key_innovation":"...","expected_impact":"...","implementation":"...","challenges":"..."}]}`, d, ctxText.String())
}

// parseAssistResponse enforces the response contract: one JSON object, no
// unknown fields, every idea titled and described.
func parseAssistResponse(raw string) ([]assistIdea, error) {
	clean := stripCodeFences(raw)
	if clean == "" {
		return nil, fmt.Errorf("%w: %s response", ErrMalformedResponse, failureEmpty)
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(clean)))
	dec.DisallowUnknownFields()
	var resp assistResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, failureParse, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: %s: trailing data after JSON object", ErrMalformedResponse, failureParse)
	}
	for i, idea := range resp.Ideas {
		if strings.TrimSpace(idea.Title) == "" || strings.TrimSpace(idea.Description) == "" {
			return nil, fmt.Errorf("%w: %s: idea %d missing title or description", ErrMalformedResponse, failureSchema, i)
		}
	}
	return head(resp.Ideas, maxAssistIdeas), nil
}

func documentIDs(docs []domain.Document) []string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids
}

func head[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func headRunes(s string, n int) []rune {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return r
}

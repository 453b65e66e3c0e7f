package cli

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/joelkehle/ideasynth/internal/concepts"
	"github.com/joelkehle/ideasynth/internal/config"
	"github.com/joelkehle/ideasynth/internal/pipeline"
	"github.com/joelkehle/ideasynth/internal/store"
	"github.com/joelkehle/ideasynth/internal/synthesis"
	"github.com/joelkehle/ideasynth/internal/telemetry"
)

// runtime is a pipeline bound to a store together with the tracing and
// metrics it reports to.
type runtime struct {
	pipeline *pipeline.Pipeline
	metrics  *telemetry.Metrics
	tracing  *telemetry.TracerProvider
	log      *zap.Logger
}

func (e *env) newRuntime(ctx context.Context, cfg config.Config, s *store.SQLiteStore, noAssist bool) (*runtime, error) {
	tables, err := e.tables()
	if err != nil {
		return nil, err
	}
	tp, err := telemetry.SetupTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		return nil, err
	}
	metrics := telemetry.NewMetrics()

	// A nil *AnthropicCaller must not reach the assistant as a non-nil interface.
	var caller synthesis.LLMCaller
	if !noAssist {
		ac, err := synthesis.NewAnthropicCallerFromEnv(cfg.LLMModel)
		if err != nil {
			e.log.Info("generative assist disabled", zap.String("reason", err.Error()))
		} else {
			caller = ac
		}
	}
	assistant := synthesis.NewAssistant(tables, caller, synthesis.AssistOptions{Timeout: cfg.AssistTimeout}, e.log)

	p := pipeline.New(s, tables, newExtractor(cfg.Extractor), pipeline.Options{
		Workers:   cfg.Workers,
		RankLimit: cfg.RankLimit,
		Assistant: assistant,
		Sink:      s,
		Logger:    e.log,
		Tracer:    tp.Tracer(),
		Metrics:   metrics,
	})
	return &runtime{pipeline: p, metrics: metrics, tracing: tp, log: e.log}, nil
}

func newExtractor(name string) concepts.Extractor {
	if name == config.ExtractorRule {
		return concepts.NewRuleExtractor()
	}
	return concepts.NewProseExtractor()
}

func (rt *runtime) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.tracing.Shutdown(ctx); err != nil {
		rt.log.Warn("tracer shutdown failed", zap.Error(err))
	}
}

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/ideasynth/internal/pipeline"
	"github.com/joelkehle/ideasynth/internal/report"
)

type runFlags struct {
	domain      string
	workers     int
	limit       int
	metricsFile string
	noAssist    bool
	report      bool
	top         int
	extractor   string
}

func RunCmd(e *env) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the synthesis pipeline over stored documents and save the result",
		Long: `Run direct extraction, cross-document synthesis, generative assist, gap
analysis, deduplication and scoring over the documents in the store.

Generative assist is used when ANTHROPIC_API_KEY is set and IDEASYNTH_NO_LLM
is not; otherwise a deterministic stand-in runs in its place.

Examples:
  ideasynth run
  ideasynth run --domain climate --limit 20
  ideasynth run --report > report.md`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.domain, "domain", "", "only read documents with this domain hint")
	fl.IntVar(&f.workers, "workers", 0, "worker pool size (default from config)")
	fl.IntVar(&f.limit, "limit", 0, "ranked ideas to keep; negative keeps all (default from config)")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file")
	fl.BoolVar(&f.noAssist, "no-assist", false, "skip generative assist even when an API key is configured")
	fl.BoolVar(&f.report, "report", false, "print the markdown report to stdout and the summary to stderr")
	fl.IntVar(&f.top, "top", 0, "ideas per report section (default from config)")
	fl.StringVar(&f.extractor, "extractor", "", "concept extractor: prose or rule (default from config)")
	return cmd
}

func (e *env) run(cmd *cobra.Command, f *runFlags) error {
	ctx := cmd.Context()
	cfg := e.cfg
	if cmd.Flags().Changed("workers") {
		cfg.Workers = f.workers
	}
	if cmd.Flags().Changed("limit") {
		cfg.RankLimit = f.limit
	}
	if cmd.Flags().Changed("metrics-file") {
		cfg.MetricsFile = f.metricsFile
	}
	if cmd.Flags().Changed("top") {
		cfg.Top = f.top
	}
	if cmd.Flags().Changed("extractor") {
		cfg.Extractor = strings.ToLower(strings.TrimSpace(f.extractor))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s, err := e.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	rt, err := e.newRuntime(ctx, cfg, s, f.noAssist)
	if err != nil {
		return err
	}
	defer rt.close()
	p, metrics := rt.pipeline, rt.metrics

	stderr := cmd.ErrOrStderr()
	res, err := p.RunWithProgress(ctx, f.domain, func(stage, message string) {
		e.log.Debug(message, zap.String("stage", stage))
	})
	if err != nil {
		return fmt.Errorf("pipeline %s stage: %w", pipeline.StageNameFromError(err), err)
	}

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			e.log.Warn("writing metrics failed", zap.String("path", cfg.MetricsFile), zap.Error(err))
		}
	}

	out := cmd.OutOrStdout()
	if f.report {
		fmt.Fprint(out, report.BuildMarkdown(res, cfg.Top))
		out = stderr
	}
	fmt.Fprintf(out, "run %s finished: mode=%s documents=%d candidates=%d duplicates=%d ranked=%d\n",
		res.RunID, res.Metadata.Mode, res.Metadata.DocumentsRead, res.Metadata.CandidatesGenerated,
		res.Metadata.DuplicatesDiscarded, len(res.Ranked))
	for _, fail := range res.Failures() {
		fmt.Fprintf(stderr, "  %s %s: %s\n", fail.Stage, fail.Scope, fail.Failure)
	}
	if res.Metadata.Mode == pipeline.ReportModeDegraded {
		fmt.Fprintln(stderr, "run degraded; see stage failures above")
	}
	return nil
}

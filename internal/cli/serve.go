package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/ideasynth/internal/httpapi"
)

type serveFlags struct {
	addr     string
	noAssist bool
}

func ServeCmd(e *env) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve documents, runs and reports over HTTP",
		Long: `Serve the JSON API over the configured store.

Endpoints:
  GET  /v1/health
  GET  /v1/documents[?domain=D]
  POST /v1/documents            ingest a JSON array or {"documents":[...]}
  POST /v1/runs                 run the pipeline, body {"domain":"D"} optional
  GET  /v1/runs/{id|latest}
  GET  /v1/runs/{id|latest}/report?format=md|html&top=N
  GET  /metrics

Examples:
  ideasynth serve --addr :8080
  curl -X POST localhost:8080/v1/runs -d '{"domain":"climate"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.serve(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.addr, "addr", ":8080", "listen address")
	cmd.Flags().BoolVar(&f.noAssist, "no-assist", false, "skip generative assist even when an API key is configured")
	return cmd
}

func (e *env) serve(cmd *cobra.Command, f *serveFlags) error {
	ctx := cmd.Context()
	s, err := e.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	rt, err := e.newRuntime(ctx, e.cfg, s, f.noAssist)
	if err != nil {
		return err
	}
	defer rt.close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(rt.metrics.Registry, promhttp.HandlerOpts{}))
	mux.Handle("/", httpapi.NewServer(s, rt.pipeline, e.log))

	ln, err := net.Listen("tcp", f.addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	e.log.Info("ideasynth listening", zap.String("addr", ln.Addr().String()), zap.String("db", e.cfg.DBPath))
	return serveUntilDone(ctx, srv, ln, e.log)
}

// serveUntilDone runs srv on ln and shuts it down gracefully once ctx ends.
func serveUntilDone(ctx context.Context, srv *http.Server, ln net.Listener, log *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Package httpapi serves stored documents and runs over HTTP and lets a
// client trigger a pipeline run.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/joelkehle/ideasynth/internal/domain"
	"github.com/joelkehle/ideasynth/internal/pipeline"
	"github.com/joelkehle/ideasynth/internal/report"
	"github.com/joelkehle/ideasynth/internal/store"
)

const maxBodyBytes = 16 << 20

const (
	CodeValidation  = "validation"
	CodeNotFound    = "not_found"
	CodeRejected    = "rejected"
	CodeUnavailable = "unavailable"
	CodeInternal    = "internal"
)

// Store is the slice of store.SQLiteStore the API needs.
type Store interface {
	ListDocuments(ctx context.Context, domainHint string) ([]domain.Document, error)
	ImportJSON(ctx context.Context, r io.Reader) (int, error)
	CountDocuments(ctx context.Context) (int, error)
	LoadRun(ctx context.Context, runID string) (pipeline.RunResult, error)
}

type Runner interface {
	Run(ctx context.Context, domainFilter string) (pipeline.RunResult, error)
}

type Server struct {
	store   Store
	runner  Runner
	log     *zap.Logger
	running atomic.Bool
}

func NewServer(st Store, runner Runner, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{store: st, runner: runner, log: log}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", s.handleHealth)
	mux.HandleFunc("/v1/documents", s.handleDocuments)
	mux.HandleFunc("/v1/runs", s.handleRuns)
	mux.HandleFunc("/v1/runs/", s.handleRun)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"ok": false,
		"error": map[string]any{
			"code":      code,
			"message":   message,
			"transient": status >= 500,
		},
	})
}

func methodOnly(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func parseInt(value string, def int) int {
	if strings.TrimSpace(value) == "" {
		return def
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return v
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	n, err := s.store.CountDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"documents": n,
		"running":   s.running.Load(),
	})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		hint := strings.TrimSpace(r.URL.Query().Get("domain"))
		if hint != "" {
			d, err := domain.ParseDomain(hint)
			if err != nil {
				writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
				return
			}
			hint = string(d)
		}
		docs, err := s.store.ListDocuments(r.Context(), hint)
		if err != nil {
			writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "documents": docs})
	case http.MethodPost:
		n, err := s.store.ImportJSON(r.Context(), http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
			return
		}
		s.log.Info("documents ingested over http", zap.Int("count", n))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ingested": n})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type runRequest struct {
	Domain string `json:"domain"`
}

// handleRuns starts a synchronous run. Only one run may be in flight; a
// second request is rejected rather than queued.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	var req runRequest
	blob, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	if len(strings.TrimSpace(string(blob))) > 0 {
		if err := json.Unmarshal(blob, &req); err != nil {
			writeError(w, http.StatusBadRequest, CodeValidation, "invalid json: "+err.Error())
			return
		}
	}
	if req.Domain != "" {
		if _, err := domain.ParseDomain(req.Domain); err != nil {
			writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
			return
		}
	}
	if !s.running.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, CodeRejected, "a run is already in progress")
		return
	}
	defer s.running.Store(false)

	res, err := s.runner.Run(r.Context(), req.Domain)
	if err != nil {
		s.log.Warn("http run failed", zap.String("stage", pipeline.StageNameFromError(err)), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"run_id":   res.RunID,
		"metadata": res.Metadata,
		"failures": res.Failures(),
	})
}

// handleRun serves /v1/runs/{id} and /v1/runs/{id}/report. The id "latest"
// names the most recent run.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/runs/"), "/")
	parts := strings.Split(rest, "/")
	if rest == "" || len(parts) > 2 || (len(parts) == 2 && parts[1] != "report") {
		writeError(w, http.StatusNotFound, CodeNotFound, "unknown path")
		return
	}
	id := parts[0]
	if id == "latest" {
		id = ""
	}
	run, err := s.store.LoadRun(r.Context(), id)
	if errors.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	if len(parts) == 1 {
		writeJSON(w, http.StatusOK, run)
		return
	}

	top := parseInt(r.URL.Query().Get("top"), report.DefaultTop)
	switch format := r.URL.Query().Get("format"); format {
	case "", "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, report.BuildMarkdown(run, top))
	case "html":
		doc, err := report.RenderHTML(run, top)
		if err != nil {
			writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, doc)
	default:
		writeError(w, http.StatusBadRequest, CodeValidation, "format must be md or html")
	}
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joelkehle/ideasynth/internal/concepts"
	"github.com/joelkehle/ideasynth/internal/domain"
	"github.com/joelkehle/ideasynth/internal/pipeline"
	"github.com/joelkehle/ideasynth/internal/store"
)

const climateDocs = `[
  {"id":"c1","title":"Carbon pricing in Europe","abstract":"Carbon pricing for industrial emissions lowers costs.","domain_hint":"climate"},
  {"id":"c2","title":"Carbon pricing and rural households","abstract":"Carbon pricing revenue for rooftop solar grants.","domain_hint":"climate"}
]`

func newServerForTest(t *testing.T) http.Handler {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	p := pipeline.New(st, domain.Default(), concepts.NewRuleExtractor(), pipeline.Options{Sink: st})
	return NewServer(st, p, nil)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	e, _ := decode(t, rr)["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestIngestRunAndReport(t *testing.T) {
	h := newServerForTest(t)

	rr := do(t, h, http.MethodPost, "/v1/documents", climateDocs)
	if rr.Code != http.StatusOK {
		t.Fatalf("ingest: %d %s", rr.Code, rr.Body.String())
	}
	if got := decode(t, rr)["ingested"]; got != float64(2) {
		t.Fatalf("expected 2 ingested, got %v", got)
	}

	rr = do(t, h, http.MethodGet, "/v1/documents?domain=Climate", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list: %d", rr.Code)
	}
	if docs, _ := decode(t, rr)["documents"].([]any); len(docs) != 2 {
		t.Fatalf("expected 2 climate documents, got %v", docs)
	}

	rr = do(t, h, http.MethodPost, "/v1/runs", `{"domain":"climate"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("run: %d %s", rr.Code, rr.Body.String())
	}
	runID, _ := decode(t, rr)["run_id"].(string)
	if runID == "" {
		t.Fatal("expected run id")
	}

	rr = do(t, h, http.MethodGet, "/v1/runs/"+runID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get run: %d", rr.Code)
	}
	var run pipeline.RunResult
	if err := json.Unmarshal(rr.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.RunID != runID || len(run.Ranked) == 0 {
		t.Fatalf("unexpected run %s with %d ideas", run.RunID, len(run.Ranked))
	}

	rr = do(t, h, http.MethodGet, "/v1/runs/latest/report", "")
	if rr.Code != http.StatusOK || !strings.HasPrefix(rr.Body.String(), "# Idea Synthesis Report") {
		t.Fatalf("markdown report: %d %.80s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Fatalf("unexpected content type %q", ct)
	}

	rr = do(t, h, http.MethodGet, "/v1/runs/"+runID+"/report?format=html&top=2", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "<!doctype html>") {
		t.Fatalf("html report: %d", rr.Code)
	}

	rr = do(t, h, http.MethodGet, "/v1/health", "")
	if body := decode(t, rr); body["documents"] != float64(2) || body["running"] != false {
		t.Fatalf("unexpected health: %v", body)
	}
}

func TestValidationAndNotFound(t *testing.T) {
	h := newServerForTest(t)

	cases := []struct {
		method, path, body string
		status             int
		code               string
	}{
		{http.MethodPost, "/v1/documents", `not json`, http.StatusBadRequest, CodeValidation},
		{http.MethodGet, "/v1/documents?domain=astronomy", "", http.StatusBadRequest, CodeValidation},
		{http.MethodPost, "/v1/runs", `{"domain":"astronomy"}`, http.StatusBadRequest, CodeValidation},
		{http.MethodPost, "/v1/runs", `{"domain":`, http.StatusBadRequest, CodeValidation},
		{http.MethodGet, "/v1/runs/latest", "", http.StatusNotFound, CodeNotFound},
		{http.MethodGet, "/v1/runs/abc/summary", "", http.StatusNotFound, CodeNotFound},
	}
	for _, tc := range cases {
		rr := do(t, h, tc.method, tc.path, tc.body)
		if rr.Code != tc.status {
			t.Fatalf("%s %s: expected %d, got %d (%s)", tc.method, tc.path, tc.status, rr.Code, rr.Body.String())
		}
		if got := errorCode(t, rr); got != tc.code {
			t.Fatalf("%s %s: expected code %s, got %s", tc.method, tc.path, tc.code, got)
		}
	}

	if rr := do(t, h, http.MethodDelete, "/v1/runs", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestRunWithEmptyBodyRunsEverything(t *testing.T) {
	h := newServerForTest(t)
	do(t, h, http.MethodPost, "/v1/documents", climateDocs)
	rr := do(t, h, http.MethodPost, "/v1/runs", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("run: %d %s", rr.Code, rr.Body.String())
	}
	meta, _ := decode(t, rr)["metadata"].(map[string]any)
	if meta["mode"] != string(pipeline.ReportModeComplete) {
		t.Fatalf("expected complete run, got %v", meta["mode"])
	}
}

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingRunner) Run(context.Context, string) (pipeline.RunResult, error) {
	close(b.started)
	<-b.release
	return pipeline.RunResult{RunID: "slow"}, nil
}

func TestConcurrentRunRejected(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer st.Close()
	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	h := NewServer(st, runner, nil)

	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- do(t, h, http.MethodPost, "/v1/runs", "") }()
	<-runner.started

	rr := do(t, h, http.MethodPost, "/v1/runs", "")
	if rr.Code != http.StatusConflict || errorCode(t, rr) != CodeRejected {
		t.Fatalf("expected 409 rejected, got %d %s", rr.Code, rr.Body.String())
	}
	close(runner.release)
	if first := <-done; first.Code != http.StatusOK {
		t.Fatalf("first run: %d", first.Code)
	}
}

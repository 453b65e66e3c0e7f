// Package store keeps documents and finished runs in SQLite. SQLiteStore is
// both the pipeline's document source and its result sink.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/joelkehle/ideasynth/internal/dedup"
	"github.com/joelkehle/ideasynth/internal/domain"
	"github.com/joelkehle/ideasynth/internal/pipeline"
)

var ErrRunNotFound = errors.New("run not found")

type SQLiteStore struct {
	db  *sqlx.DB
	mu  sync.Mutex
	now func() time.Time
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	abstract    TEXT NOT NULL DEFAULT '',
	full_text   TEXT NOT NULL DEFAULT '',
	domain_hint TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL DEFAULT '',
	authors     TEXT NOT NULL DEFAULT '[]',
	ingested_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS documents_domain_hint ON documents (domain_hint);

CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	started_at    TEXT NOT NULL,
	completed_at  TEXT NOT NULL DEFAULT '',
	mode          TEXT NOT NULL,
	domain_filter TEXT NOT NULL DEFAULT '',
	metadata      TEXT NOT NULL DEFAULT '{}',
	stages        TEXT NOT NULL DEFAULT '[]',
	discards      TEXT NOT NULL DEFAULT '[]',
	contrarian    TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS candidate_ideas (
	run_id            TEXT NOT NULL,
	position          INTEGER NOT NULL,
	document_id       TEXT NOT NULL DEFAULT '',
	title             TEXT NOT NULL,
	domain            TEXT NOT NULL,
	extraction_method TEXT NOT NULL,
	idea              TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS candidate_ideas_document ON candidate_ideas (document_id);

CREATE TABLE IF NOT EXISTS evaluations (
	run_id        TEXT NOT NULL,
	position      INTEGER NOT NULL,
	overall_score REAL NOT NULL,
	evaluated_at  TEXT NOT NULL DEFAULT '',
	evaluation    TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);
`

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- documents ---

type documentRow struct {
	ID         string `db:"id"`
	Title      string `db:"title"`
	Abstract   string `db:"abstract"`
	FullText   string `db:"full_text"`
	DomainHint string `db:"domain_hint"`
	URL        string `db:"url"`
	Authors    string `db:"authors"`
}

func (r documentRow) document() domain.Document {
	d := domain.Document{
		ID:         r.ID,
		Title:      r.Title,
		Abstract:   r.Abstract,
		FullText:   r.FullText,
		DomainHint: r.DomainHint,
		URL:        r.URL,
	}
	_ = json.Unmarshal([]byte(r.Authors), &d.Authors)
	return d
}

// ListDocuments returns documents in ingestion order. A non-empty domainHint
// restricts the result to documents carrying that hint.
func (s *SQLiteStore) ListDocuments(ctx context.Context, domainHint string) ([]domain.Document, error) {
	var rows []documentRow
	err := s.db.SelectContext(ctx, &rows, `SELECT id, title, abstract, full_text, domain_hint, url, authors
		FROM documents
		WHERE ? = '' OR domain_hint = ?
		ORDER BY rowid`, domainHint, domainHint)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	docs := make([]domain.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, r.document())
	}
	return docs, nil
}

// InsertDocuments upserts docs in one transaction. Documents without an id
// or title are rejected before anything is written.
func (s *SQLiteStore) InsertDocuments(ctx context.Context, docs []domain.Document) (int, error) {
	for i, d := range docs {
		if strings.TrimSpace(d.ID) == "" || strings.TrimSpace(d.Title) == "" {
			return 0, fmt.Errorf("document %d: id and title are required", i)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	ingested := timeToString(s.now())
	for _, d := range docs {
		_, err := tx.ExecContext(ctx, `INSERT INTO documents (id, title, abstract, full_text, domain_hint, url, authors, ingested_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				abstract = excluded.abstract,
				full_text = excluded.full_text,
				domain_hint = excluded.domain_hint,
				url = excluded.url,
				authors = excluded.authors`,
			d.ID,
			d.Title,
			d.Abstract,
			d.FullText,
			d.DomainHint,
			d.URL,
			marshalJSON(nonNil(d.Authors)),
			ingested,
		)
		if err != nil {
			return 0, fmt.Errorf("insert document %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(docs), nil
}

// ImportJSON reads either a JSON array of documents or an object with a
// "documents" array and inserts them.
func (s *SQLiteStore) ImportJSON(ctx context.Context, r io.Reader) (int, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("read documents: %w", err)
	}
	trimmed := strings.TrimSpace(string(raw))
	var docs []domain.Document
	if strings.HasPrefix(trimmed, "{") {
		var wrapped struct {
			Documents []domain.Document `json:"documents"`
		}
		if err := json.Unmarshal([]byte(trimmed), &wrapped); err != nil {
			return 0, fmt.Errorf("decode documents: %w", err)
		}
		docs = wrapped.Documents
	} else if err := json.Unmarshal([]byte(trimmed), &docs); err != nil {
		return 0, fmt.Errorf("decode documents: %w", err)
	}
	return s.InsertDocuments(ctx, docs)
}

func (s *SQLiteStore) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM documents`); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// --- runs ---

// SaveRun writes the run header, the ranked ideas and their evaluations in
// one transaction. Idea rows are keyed by the originating document id.
func (s *SQLiteStore) SaveRun(ctx context.Context, run pipeline.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO runs (run_id, started_at, completed_at, mode, domain_filter, metadata, stages, discards, contrarian)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		timeToString(run.Metadata.StartedAt),
		timeToString(run.Metadata.CompletedAt),
		string(run.Metadata.Mode),
		run.Metadata.DomainFilter,
		marshalJSON(run.Metadata),
		marshalJSON(nonNil(run.Stages)),
		marshalJSON(nonNil(run.Discards)),
		marshalJSON(nonNil(run.Contrarian)),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.RunID, err)
	}
	for _, table := range []string{"candidate_ideas", "evaluations"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", run.RunID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	for i, r := range run.Ranked {
		_, err := tx.ExecContext(ctx, `INSERT INTO candidate_ideas (run_id, position, document_id, title, domain, extraction_method, idea)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, i,
			r.Idea.OriginDocumentID(),
			r.Idea.Title,
			string(r.Idea.Domain),
			string(r.Idea.ExtractionMethod),
			marshalJSON(r.Idea),
		)
		if err != nil {
			return fmt.Errorf("save idea %d: %w", i, err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO evaluations (run_id, position, overall_score, evaluated_at, evaluation)
			VALUES (?, ?, ?, ?, ?)`,
			run.RunID, i,
			r.Evaluation.OverallScore,
			timeToString(r.Evaluation.EvaluatedAt),
			marshalJSON(r.Evaluation),
		)
		if err != nil {
			return fmt.Errorf("save evaluation %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type runRow struct {
	RunID      string `db:"run_id"`
	Metadata   string `db:"metadata"`
	Stages     string `db:"stages"`
	Discards   string `db:"discards"`
	Contrarian string `db:"contrarian"`
}

type rankedRow struct {
	Idea       string `db:"idea"`
	Evaluation string `db:"evaluation"`
}

// LoadRun rebuilds a saved run. An empty runID loads the most recent one.
func (s *SQLiteStore) LoadRun(ctx context.Context, runID string) (pipeline.RunResult, error) {
	var row runRow
	var err error
	if runID == "" {
		err = s.db.GetContext(ctx, &row, `SELECT run_id, metadata, stages, discards, contrarian
			FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`)
	} else {
		err = s.db.GetContext(ctx, &row, `SELECT run_id, metadata, stages, discards, contrarian
			FROM runs WHERE run_id = ?`, runID)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return pipeline.RunResult{}, ErrRunNotFound
	}
	if err != nil {
		return pipeline.RunResult{}, fmt.Errorf("load run: %w", err)
	}

	run := pipeline.RunResult{RunID: row.RunID}
	if err := unmarshalColumn("metadata", row.Metadata, &run.Metadata); err != nil {
		return run, err
	}
	if err := unmarshalColumn("stages", row.Stages, &run.Stages); err != nil {
		return run, err
	}
	var discards []dedup.Discard
	if err := unmarshalColumn("discards", row.Discards, &discards); err != nil {
		return run, err
	}
	if len(discards) > 0 {
		run.Discards = discards
	}
	if err := unmarshalColumn("contrarian", row.Contrarian, &run.Contrarian); err != nil {
		return run, err
	}

	var ranked []rankedRow
	err = s.db.SelectContext(ctx, &ranked, `SELECT i.idea, e.evaluation
		FROM candidate_ideas i
		JOIN evaluations e ON e.run_id = i.run_id AND e.position = i.position
		WHERE i.run_id = ?
		ORDER BY i.position`, row.RunID)
	if err != nil {
		return run, fmt.Errorf("load ranked ideas: %w", err)
	}
	run.Ranked = make([]pipeline.RankedIdea, 0, len(ranked))
	for _, r := range ranked {
		var item pipeline.RankedIdea
		if err := unmarshalColumn("idea", r.Idea, &item.Idea); err != nil {
			return run, err
		}
		if err := unmarshalColumn("evaluation", r.Evaluation, &item.Evaluation); err != nil {
			return run, err
		}
		run.Ranked = append(run.Ranked, item)
	}
	return run, nil
}

// IdeasForDocument returns every saved idea that originated from documentID,
// newest run first.
func (s *SQLiteStore) IdeasForDocument(ctx context.Context, documentID string) ([]domain.CandidateIdea, error) {
	var raw []string
	err := s.db.SelectContext(ctx, &raw, `SELECT i.idea
		FROM candidate_ideas i
		JOIN runs r ON r.run_id = i.run_id
		WHERE i.document_id = ?
		ORDER BY r.started_at DESC, i.position`, documentID)
	if err != nil {
		return nil, fmt.Errorf("ideas for document %s: %w", documentID, err)
	}
	out := make([]domain.CandidateIdea, 0, len(raw))
	for _, r := range raw {
		var idea domain.CandidateIdea
		if err := unmarshalColumn("idea", r, &idea); err != nil {
			return nil, err
		}
		out = append(out, idea)
	}
	return out, nil
}

// --- persist helpers ---

func timeToString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func unmarshalColumn(column, raw string, v any) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode %s column: %w", column, err)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

var (
	_ pipeline.DocumentSource = (*SQLiteStore)(nil)
	_ pipeline.ResultSink     = (*SQLiteStore)(nil)
)

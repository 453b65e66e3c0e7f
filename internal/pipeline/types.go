package pipeline

import (
	"context"
	"time"

	"github.com/joelkehle/ideasynth/internal/dedup"
	"github.com/joelkehle/ideasynth/internal/domain"
	"github.com/joelkehle/ideasynth/internal/scoring"
)

const (
	StageDocuments     = "documents"
	StageDirect        = "direct_extraction"
	StageConcepts      = "concept_extraction"
	StageCrossDocument = "cross_document"
	StageAssist        = "generative_assist"
	StageGaps          = "gap_analysis"
	StageDedup         = "deduplication"
	StageScoring       = "scoring"
	StageSave          = "save"
)

type ReportMode string

const (
	ReportModeComplete ReportMode = "COMPLETE"
	ReportModeDegraded ReportMode = "DEGRADED"
)

// DocumentSource lists documents, optionally restricted to one domain hint.
// An empty domain means all documents.
type DocumentSource interface {
	ListDocuments(ctx context.Context, domain string) ([]domain.Document, error)
}

// ResultSink persists a finished run.
type ResultSink interface {
	SaveRun(ctx context.Context, run RunResult) error
}

// StageReport is one line of the run's audit trail. A summary line carries
// the stage's idea count; a failure line names the document or domain whose
// collaborator failed.
type StageReport struct {
	Stage   string `json:"stage"`
	Scope   string `json:"scope,omitempty"`
	Ideas   int    `json:"ideas"`
	Skipped int    `json:"skipped,omitempty"`
	Failure string `json:"failure,omitempty"`
}

func (r StageReport) Failed() bool { return r.Failure != "" }

type RunMetadata struct {
	StartedAt             time.Time  `json:"started_at"`
	CompletedAt           time.Time  `json:"completed_at"`
	Mode                  ReportMode `json:"mode"`
	DomainFilter          string     `json:"domain_filter,omitempty"`
	StagesExecuted        []string   `json:"stages_executed"`
	DocumentsRead         int        `json:"documents_read"`
	DocumentsSkipped      int        `json:"documents_skipped"`
	DocumentsUnclassified int        `json:"documents_unclassified"`
	CandidatesGenerated   int        `json:"candidates_generated"`
	DuplicatesDiscarded   int        `json:"duplicates_discarded"`
	AssistAvailable       bool       `json:"assist_available"`
}

type (
	RankedIdea     = scoring.RankedIdea
	ContrarianIdea = scoring.ContrarianIdea
)

type RunResult struct {
	RunID      string           `json:"run_id"`
	Ranked     []RankedIdea     `json:"ranked"`
	Contrarian []ContrarianIdea `json:"contrarian"`
	Discards   []dedup.Discard  `json:"discards,omitempty"`
	Stages     []StageReport    `json:"stages"`
	Metadata   RunMetadata      `json:"metadata"`
}

// Failures returns the failure lines of the audit trail in run order.
func (r RunResult) Failures() []StageReport {
	var out []StageReport
	for _, s := range r.Stages {
		if s.Failed() {
			out = append(out, s)
		}
	}
	return out
}

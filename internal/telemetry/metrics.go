package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the run counters on a dedicated registry so a CLI run can
// dump them to a textfile-collector file.
type Metrics struct {
	Registry *prometheus.Registry

	IdeasGenerated      *prometheus.CounterVec
	StageFailures       *prometheus.CounterVec
	DocumentsSkipped    prometheus.Counter
	DuplicatesDiscarded prometheus.Counter
	RunDuration         prometheus.Histogram
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		IdeasGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ideasynth_ideas_generated_total",
			Help: "Candidate ideas produced before deduplication, by extraction method",
		}, []string{"method"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ideasynth_stage_failures_total",
			Help: "Collaborator failures that left a stage contributing nothing",
		}, []string{"stage"}),
		DocumentsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "ideasynth_documents_skipped_total",
			Help: "Documents rejected by validation",
		}),
		DuplicatesDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "ideasynth_duplicates_discarded_total",
			Help: "Candidate ideas dropped as near-duplicate titles",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ideasynth_run_duration_seconds",
			Help:    "Wall time of a full pipeline run",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
}

// WriteTextfile writes every registered metric in the text exposition
// format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}

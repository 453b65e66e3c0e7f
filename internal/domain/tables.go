package domain

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var defaultTablesYAML []byte

// ScoringProfile holds the per-domain base values used by the scorer.
type ScoringProfile struct {
	ImpactFactor     float64
	Neglectedness    float64
	AnnualFundingUSD float64
	Tractability     float64
	Scalability      float64
	LongHorizon      bool
}

// Benchmark is the reference intervention for a metric.
type Benchmark struct {
	Metric      Metric
	Name        string
	URL         string
	CostPerUnit float64
	Description string
}

type Weights struct {
	Impact        float64
	Neglectedness float64
	Tractability  float64
	Scalability   float64
}

type domainEntry struct {
	keywords        []string
	conceptKeywords []string
	defaultMetric   Metric
	profile         ScoringProfile
}

type metricOverride struct {
	metric Metric
	terms  []string
}

// Tables is the immutable classification and scoring configuration. Build
// one with Load, LoadFile or Default; every accessor returns copies.
type Tables struct {
	order       []Domain
	entries     map[Domain]domainEntry
	newlyViable []string
	evergreen   []string
	indicators  []string
	overrides   []metricOverride
	benchmarks  map[Metric]Benchmark
	weights     Weights
	generic     map[string]struct{}
}

type tablesFile struct {
	Domains []struct {
		Name             string   `yaml:"name"`
		Keywords         []string `yaml:"keywords"`
		ConceptKeywords  []string `yaml:"concept_keywords"`
		DefaultMetric    string   `yaml:"default_metric"`
		ImpactFactor     float64  `yaml:"impact_factor"`
		Neglectedness    float64  `yaml:"neglectedness"`
		AnnualFundingUSD float64  `yaml:"annual_funding_usd"`
		Tractability     float64  `yaml:"tractability"`
		Scalability      float64  `yaml:"scalability"`
		LongHorizon      bool     `yaml:"long_horizon"`
	} `yaml:"domains"`
	NewlyViablePhrases    []string `yaml:"newly_viable_phrases"`
	EvergreenPhrases      []string `yaml:"evergreen_phrases"`
	OpportunityIndicators []string `yaml:"opportunity_indicators"`
	MetricOverrides       []struct {
		Metric string   `yaml:"metric"`
		Terms  []string `yaml:"terms"`
	} `yaml:"metric_overrides"`
	Benchmarks []struct {
		Metric      string  `yaml:"metric"`
		Name        string  `yaml:"name"`
		URL         string  `yaml:"url"`
		CostPerUnit float64 `yaml:"cost_per_unit"`
		Description string  `yaml:"description"`
	} `yaml:"benchmarks"`
	Weights struct {
		Impact        float64 `yaml:"impact"`
		Neglectedness float64 `yaml:"neglectedness"`
		Tractability  float64 `yaml:"tractability"`
		Scalability   float64 `yaml:"scalability"`
	} `yaml:"weights"`
}

var (
	defaultOnce   sync.Once
	defaultTables *Tables
)

// Default returns the embedded tables. The embedded file is covered by
// tests, so a parse failure here is a build defect.
func Default() *Tables {
	defaultOnce.Do(func() {
		t, err := Load(bytes.NewReader(defaultTablesYAML))
		if err != nil {
			panic(fmt.Sprintf("embedded domain tables: %v", err))
		}
		defaultTables = t
	})
	return defaultTables
}

func LoadFile(path string) (*Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tables: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*Tables, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var raw tablesFile
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode tables: %w", err)
	}
	return build(raw)
}

func build(raw tablesFile) (*Tables, error) {
	t := &Tables{
		entries:     map[Domain]domainEntry{},
		newlyViable: lowerAll(raw.NewlyViablePhrases),
		evergreen:   lowerAll(raw.EvergreenPhrases),
		indicators:  lowerAll(raw.OpportunityIndicators),
		benchmarks:  map[Metric]Benchmark{},
		weights: Weights{
			Impact:        raw.Weights.Impact,
			Neglectedness: raw.Weights.Neglectedness,
			Tractability:  raw.Weights.Tractability,
			Scalability:   raw.Weights.Scalability,
		},
		generic: map[string]struct{}{},
	}

	for _, d := range raw.Domains {
		name, err := ParseDomain(d.Name)
		if err != nil {
			return nil, err
		}
		if _, dup := t.entries[name]; dup {
			return nil, fmt.Errorf("domain %s listed twice", name)
		}
		if len(d.Keywords) == 0 {
			return nil, fmt.Errorf("domain %s: keywords required", name)
		}
		metric := Metric(d.DefaultMetric)
		if !metric.Valid() {
			return nil, fmt.Errorf("domain %s: unknown default metric %q", name, d.DefaultMetric)
		}
		for field, v := range map[string]float64{
			"neglectedness": d.Neglectedness,
			"tractability":  d.Tractability,
			"scalability":   d.Scalability,
		} {
			if v < 0 || v > 10 {
				return nil, fmt.Errorf("domain %s: %s %.2f outside [0,10]", name, field, v)
			}
		}
		if d.ImpactFactor <= 0 || d.ImpactFactor > 2 {
			return nil, fmt.Errorf("domain %s: impact factor %.2f outside (0,2]", name, d.ImpactFactor)
		}
		if d.AnnualFundingUSD < 0 {
			return nil, fmt.Errorf("domain %s: negative funding estimate", name)
		}
		keywords := lowerAll(d.Keywords)
		t.order = append(t.order, name)
		t.entries[name] = domainEntry{
			keywords:        keywords,
			conceptKeywords: appendUnique(keywords, lowerAll(d.ConceptKeywords)),
			defaultMetric:   metric,
			profile: ScoringProfile{
				ImpactFactor:     d.ImpactFactor,
				Neglectedness:    d.Neglectedness,
				AnnualFundingUSD: d.AnnualFundingUSD,
				Tractability:     d.Tractability,
				Scalability:      d.Scalability,
				LongHorizon:      d.LongHorizon,
			},
		}
	}
	if len(t.order) != len(knownDomains) {
		return nil, fmt.Errorf("tables list %d domains, want %d", len(t.order), len(knownDomains))
	}

	for _, o := range raw.MetricOverrides {
		m := Metric(o.Metric)
		if !m.Valid() {
			return nil, fmt.Errorf("metric override: unknown metric %q", o.Metric)
		}
		t.overrides = append(t.overrides, metricOverride{metric: m, terms: lowerAll(o.Terms)})
	}

	for _, b := range raw.Benchmarks {
		m := Metric(b.Metric)
		if !m.Valid() {
			return nil, fmt.Errorf("benchmark: unknown metric %q", b.Metric)
		}
		if b.CostPerUnit <= 0 {
			return nil, fmt.Errorf("benchmark %s: cost per unit must be positive", m)
		}
		t.benchmarks[m] = Benchmark{Metric: m, Name: b.Name, URL: b.URL, CostPerUnit: b.CostPerUnit, Description: b.Description}
	}
	for _, d := range t.order {
		if _, ok := t.benchmarks[t.entries[d].defaultMetric]; !ok {
			return nil, fmt.Errorf("domain %s: no benchmark for metric %s", d, t.entries[d].defaultMetric)
		}
	}

	w := t.weights
	if w.Impact < 0 || w.Neglectedness < 0 || w.Tractability < 0 || w.Scalability < 0 {
		return nil, fmt.Errorf("weights must be non-negative")
	}
	if sum := w.Impact + w.Neglectedness + w.Tractability + w.Scalability; math.Abs(sum-1) > 1e-9 {
		return nil, fmt.Errorf("weights sum to %.4f, want 1", sum)
	}

	// Keywords shared by three or more domains say nothing about which
	// domain a concept belongs to.
	seen := map[string]int{}
	for _, d := range t.order {
		for _, k := range t.entries[d].conceptKeywords {
			seen[k]++
		}
	}
	for k, n := range seen {
		if n >= 3 {
			t.generic[k] = struct{}{}
		}
	}
	return t, nil
}

// Domains returns the domains in table order.
func (t *Tables) Domains() []Domain {
	return append([]Domain(nil), t.order...)
}

func (t *Tables) Keywords(d Domain) []string {
	return append([]string(nil), t.entries[d].keywords...)
}

// ConceptKeywords is the classifier keyword list extended with the
// concept-only terms used when mining documents for shared concepts.
func (t *Tables) ConceptKeywords(d Domain) []string {
	return append([]string(nil), t.entries[d].conceptKeywords...)
}

func (t *Tables) DefaultMetric(d Domain) Metric {
	if e, ok := t.entries[d]; ok {
		return e.defaultMetric
	}
	return MetricWELBYs
}

func (t *Tables) Profile(d Domain) (ScoringProfile, bool) {
	e, ok := t.entries[d]
	return e.profile, ok
}

func (t *Tables) Benchmark(m Metric) (Benchmark, bool) {
	b, ok := t.benchmarks[m]
	return b, ok
}

func (t *Tables) Weights() Weights { return t.weights }

func (t *Tables) IsGenericKeyword(k string) bool {
	_, ok := t.generic[strings.ToLower(k)]
	return ok
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func appendUnique(base, extra []string) []string {
	out := append([]string(nil), base...)
	have := map[string]struct{}{}
	for _, s := range base {
		have[s] = struct{}{}
	}
	for _, s := range extra {
		if _, ok := have[s]; ok {
			continue
		}
		have[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

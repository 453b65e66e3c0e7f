// Package config resolves ideasynth settings: defaults, then an optional
// YAML file, then environment variables. CLI flags are applied last by the
// command layer.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDBPath        = "./ideasynth.db"
	DefaultWorkers       = 4
	DefaultRankLimit     = 50
	DefaultTop           = 10
	DefaultAssistTimeout = 20 * time.Second
	DefaultLogLevel      = "info"
	DefaultServiceName   = "ideasynth"
	DefaultExtractor     = ExtractorProse
)

// Concept extractor choices.
const (
	ExtractorProse = "prose"
	ExtractorRule  = "rule"
)

type Config struct {
	DBPath        string        `yaml:"db"`
	TablesPath    string        `yaml:"tables"`
	Workers       int           `yaml:"workers"`
	RankLimit     int           `yaml:"rank_limit"`
	Top           int           `yaml:"top"`
	AssistTimeout time.Duration `yaml:"assist_timeout"`
	LLMModel      string        `yaml:"llm_model"`
	LogLevel      string        `yaml:"log_level"`
	Development   bool          `yaml:"development"`
	OTLPEndpoint  string        `yaml:"otlp_endpoint"`
	ServiceName   string        `yaml:"service_name"`
	MetricsFile   string        `yaml:"metrics_file"`
	ChromePath    string        `yaml:"chrome_path"`
	Extractor     string        `yaml:"extractor"`
}

func Default() Config {
	return Config{
		DBPath:        DefaultDBPath,
		Workers:       DefaultWorkers,
		RankLimit:     DefaultRankLimit,
		Top:           DefaultTop,
		AssistTimeout: DefaultAssistTimeout,
		LogLevel:      DefaultLogLevel,
		ServiceName:   DefaultServiceName,
		Extractor:     DefaultExtractor,
	}
}

// Load starts from Default, overlays the YAML file at path when path is
// non-empty, then applies the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg = ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from IDEASYNTH_* variables and the standard OTLP
// endpoint variable. Unparseable numbers are ignored.
func ApplyEnv(cfg Config) Config {
	if v := env("IDEASYNTH_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := env("IDEASYNTH_TABLES"); v != "" {
		cfg.TablesPath = v
	}
	cfg.Workers = envInt("IDEASYNTH_WORKERS", cfg.Workers)
	cfg.RankLimit = envInt("IDEASYNTH_RANK_LIMIT", cfg.RankLimit)
	cfg.AssistTimeout = envDuration("IDEASYNTH_ASSIST_TIMEOUT", cfg.AssistTimeout)
	if v := env("IDEASYNTH_LLM_MODEL"); v != "" {
		cfg.LLMModel = v
	}
	if v := env("IDEASYNTH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := env("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTLPEndpoint = v
	}
	if v := env("OTEL_SERVICE_NAME"); v != "" {
		cfg.ServiceName = v
	}
	if v := env("IDEASYNTH_CHROME_PATH"); v != "" {
		cfg.ChromePath = v
	}
	if v := env("IDEASYNTH_EXTRACTOR"); v != "" {
		cfg.Extractor = strings.ToLower(v)
	}
	return cfg
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("db path is required"))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.AssistTimeout <= 0 {
		errs = append(errs, fmt.Errorf("assist timeout must be positive, got %s", c.AssistTimeout))
	}
	switch c.Extractor {
	case ExtractorProse, ExtractorRule:
	default:
		errs = append(errs, fmt.Errorf("extractor must be %q or %q, got %q", ExtractorProse, ExtractorRule, c.Extractor))
	}
	return errors.Join(errs...)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envInt(key string, fallback int) int {
	v := env(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := env(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

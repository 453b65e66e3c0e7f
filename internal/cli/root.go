// Package cli wires the ideasynth commands.
package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/ideasynth/internal/config"
	"github.com/joelkehle/ideasynth/internal/domain"
	"github.com/joelkehle/ideasynth/internal/store"
	"github.com/joelkehle/ideasynth/internal/telemetry"
)

func Execute(ctx context.Context) error {
	return NewRoot().ExecuteContext(ctx)
}

// env is the state every subcommand shares once the root has resolved
// configuration.
type env struct {
	configPath string
	dbPath     string
	tablesPath string
	logLevel   string
	dev        bool

	cfg config.Config
	log *zap.Logger
}

func NewRoot() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "ideasynth",
		Short:         "Synthesize, deduplicate and score philanthropic intervention ideas",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.log != nil {
				_ = e.log.Sync()
			}
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&e.configPath, "config", "", "YAML config file")
	pf.StringVar(&e.dbPath, "db", "", "SQLite database path (default "+config.DefaultDBPath+")")
	pf.StringVar(&e.tablesPath, "tables", "", "domain tables YAML overriding the built-in tables")
	pf.StringVar(&e.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&e.dev, "dev", false, "human-readable console logging")

	root.AddCommand(
		IngestCmd(e),
		RunCmd(e),
		RenderCmd(e),
		ServeCmd(e),
	)
	return root
}

// load applies config file, environment, then any flag the user set.
func (e *env) load(cmd *cobra.Command) error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = e.dbPath
	}
	if flags.Changed("tables") {
		cfg.TablesPath = e.tablesPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = e.logLevel
	}
	if flags.Changed("dev") {
		cfg.Development = e.dev
	}
	log, err := telemetry.NewLogger(cfg.LogLevel, cfg.Development)
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.log = log
	return nil
}

func (e *env) openStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(e.cfg.DBPath)
}

func (e *env) tables() (*domain.Tables, error) {
	if e.cfg.TablesPath == "" {
		return domain.Default(), nil
	}
	return domain.LoadFile(e.cfg.TablesPath)
}

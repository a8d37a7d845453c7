// Package main is the entry point for the sheet-metal engine CLI.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ttsmith21/sheetmetal-engine/internal/classify"
	"github.com/ttsmith21/sheetmetal-engine/internal/config"
	"github.com/ttsmith21/sheetmetal-engine/internal/convert"
	"github.com/ttsmith21/sheetmetal-engine/internal/logging"
	"github.com/ttsmith21/sheetmetal-engine/internal/metrics"
	"github.com/ttsmith21/sheetmetal-engine/internal/pipeline"
	"github.com/ttsmith21/sheetmetal-engine/internal/section"
	"github.com/ttsmith21/sheetmetal-engine/internal/store"
	"github.com/ttsmith21/sheetmetal-engine/internal/thickness"
	"github.com/ttsmith21/sheetmetal-engine/internal/tracker"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// app carries the state shared by subcommands.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
	out        io.Writer
}

func main() {
	_ = godotenv.Load()

	a := &app{out: os.Stdout}
	if err := a.rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sheetmetal",
		Short:         "Classify CAD bodies and convert sheet-like parts to sheet metal",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "fixture" {
				return nil
			}
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to configuration JSON file")

	root.AddCommand(
		a.classifyCmd(),
		a.preflightCmd(),
		a.convertCmd(),
		a.problemsCmd(),
		a.historyCmd(),
		a.serveCmd(),
		a.fixtureCmd(),
		a.versionCmd(),
	)
	return root
}

func (a *app) load() error {
	path := a.configPath
	if path == "" {
		path = os.Getenv("SHEETMETAL_CONFIG")
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) openTracker() (*tracker.SQLTracker, *sql.DB, error) {
	db, err := store.NewDB(a.cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return tracker.New(db, a.logger), db, nil
}

func (a *app) classifier(rec *metrics.Recorder) *classify.Classifier {
	analyzer := thickness.NewAnalyzer(a.cfg.Thickness, a.logger)
	return classify.New(a.cfg.Classifier, analyzer, section.NewVerifier(a.logger), a.logger, rec)
}

// newPipeline wires a pipeline whose tracker also receives the attempt log
// and classification history. tr may be nil.
func (a *app) newPipeline(tr *tracker.SQLTracker, reg prometheus.Registerer) *pipeline.Pipeline {
	rec := metrics.NewRecorder(reg)
	var sink convert.AttemptSink
	var t tracker.Tracker
	if tr != nil {
		sink, t = tr, tr
	}
	ex := convert.NewExecutor(a.cfg.Convert, sink, a.logger, rec)
	p := pipeline.New(a.classifier(rec), ex, t, a.logger, rec)
	if tr != nil {
		p.History = tr
	}
	return p
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.out, "sheetmetal %s (commit=%s, built=%s)\n", version, commit, date)
		},
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry/memory"
	"github.com/ttsmith21/sheetmetal-engine/internal/pipeline"
	"github.com/ttsmith21/sheetmetal-engine/internal/preflight"
)

func (a *app) classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify FILE",
		Short: "Classify a part as stick, sheet metal or other",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := memory.LoadFile(args[0])
			if err != nil {
				return err
			}
			body, err := geometry.PrimaryBody(m)
			if err != nil {
				return err
			}
			res := a.classifier(nil).Classify(cmd.Context(), body, m.ThicknessHost())
			return a.printJSON(res)
		},
	}
}

func (a *app) preflightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preflight FILE",
		Short: "Check whether a part can be converted automatically",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := memory.LoadFile(args[0])
			if err != nil {
				return err
			}
			res, err := preflight.Check(m)
			if err != nil {
				return err
			}
			return a.printJSON(res)
		},
	}
}

func (a *app) convertCmd() *cobra.Command {
	var overrides domain.Overrides
	cmd := &cobra.Command{
		Use:   "convert FILE...",
		Short: "Classify and convert parts, one after another",
		Long: `Runs preflight, classification and conversion for each part file in turn.
Parts that cannot be converted are registered as problems.

Interrupting stops the current part between strategies.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, db, err := a.openTracker()
			if err != nil {
				return err
			}
			defer db.Close()
			p := a.newPipeline(tr, nil)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			failed := 0
			for _, path := range args {
				if ctx.Err() != nil {
					break
				}
				out := a.convertOne(ctx, p, path, overrides)
				if out.Status != pipeline.StatusConverted && out.Status != pipeline.StatusClassified {
					failed++
				}
				if err := a.printJSON(out); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d parts not converted", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&overrides.Thickness, "thickness", 0, "sheet thickness in inches (0 derives it)")
	cmd.Flags().Float64Var(&overrides.BendRadius, "radius", 0, "bend radius in inches (0 derives it)")
	cmd.Flags().Float64Var(&overrides.KFactor, "kfactor", 0, "k-factor (0 derives it)")
	return cmd
}

func (a *app) convertOne(ctx context.Context, p *pipeline.Pipeline, path string, o domain.Overrides) pipeline.Outcome {
	cc := &domain.ConversionContext{FilePath: path, Overrides: o}
	m, pf, err := memory.LoadFile(path)
	if err != nil {
		return p.Reject(ctx, cc, err)
	}
	cc.Configuration = pf.Configuration
	return p.Process(ctx, m, cc)
}

func (a *app) problemsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "problems",
		Short: "List parts registered as problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, db, err := a.openTracker()
			if err != nil {
				return err
			}
			defer db.Close()
			problems, err := tr.RecentProblems(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if problems == nil {
				problems = []domain.Problem{}
			}
			return a.printJSON(problems)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of problems")
	return cmd
}

func (a *app) fixtureCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "fixture NAME",
		Short:     "Print a sample part file",
		ValidArgs: memory.FixtureNames,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			pf, err := memory.Fixture(args[0])
			if err != nil {
				return err
			}
			return a.printJSON(pf)
		},
	}
}

// fileHistory is what the tracker knows about one part file.
type fileHistory struct {
	File           string                       `json:"file"`
	Classification *domain.ClassificationRecord `json:"classification"`
	Problems       []domain.Problem             `json:"problems"`
}

func (a *app) historyCmd() *cobra.Command {
	var configuration string
	cmd := &cobra.Command{
		Use:   "history FILE",
		Short: "Show the latest classification and all problems for a part file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, db, err := a.openTracker()
			if err != nil {
				return err
			}
			defer db.Close()

			h := fileHistory{File: args[0]}
			h.Classification, err = tr.LatestClassification(cmd.Context(), args[0], configuration)
			if err != nil {
				return err
			}
			h.Problems, err = tr.ProblemsForFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if h.Problems == nil {
				h.Problems = []domain.Problem{}
			}
			return a.printJSON(h)
		},
	}
	cmd.Flags().StringVar(&configuration, "configuration", memory.DefaultConfiguration, "configuration name")
	return cmd
}

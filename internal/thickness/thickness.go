// Package thickness estimates the dominant wall thickness of a body and the
// fraction of its surface that has it.
package thickness

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry"
	"github.com/ttsmith21/sheetmetal-engine/internal/logging"
)

// Gauges are common sheet thicknesses in inches, tried when mode seeking fails.
var Gauges = []float64{
	0.0239, 0.0299, 0.0359, 0.0478, 0.0598, 0.0747, 0.1046,
	0.1345, 0.1875, 0.25, 0.3125, 0.375, 0.5,
}

// Config tunes the search.
type Config struct {
	CoarseMin  float64 `json:"coarse_min"`
	CoarseMax  float64 `json:"coarse_max"`
	CoarseBins int     `json:"coarse_bins"`

	// The fine scan covers [FineLow×target, FineHigh×target].
	FineLow  float64 `json:"fine_low"`
	FineHigh float64 `json:"fine_high"`
	FineBins int     `json:"fine_bins"`

	// CoverageBand is the relative half-width around the mode counted as coverage.
	CoverageBand float64 `json:"coverage_band"`

	MaxRefinements int     `json:"max_refinements"`
	RefineStep     float64 `json:"refine_step"`
	RefineEpsilon  float64 `json:"refine_epsilon"`
	RefineMinDelta float64 `json:"refine_min_delta"`

	// MaxAttempts bounds calls per scan, first try included.
	MaxAttempts int           `json:"max_attempts"`
	RetryDelay  time.Duration `json:"retry_delay"`

	Seeds []float64 `json:"seeds"`
	// SeedTieWindow is the coverage gap within which a thinner seed wins.
	SeedTieWindow float64 `json:"seed_tie_window"`
}

// DefaultConfig returns the standard search parameters.
func DefaultConfig() Config {
	return Config{
		CoarseMin:      0.02,
		CoarseMax:      1.0,
		CoarseBins:     8,
		FineLow:        0.5,
		FineHigh:       1.25,
		FineBins:       10,
		CoverageBand:   0.05,
		MaxRefinements: 3,
		RefineStep:     1.10,
		RefineEpsilon:  1e-4,
		RefineMinDelta: 0.01,
		MaxAttempts:    3,
		RetryDelay:     25 * time.Millisecond,
		Seeds:          append([]float64(nil), Gauges...),
		SeedTieWindow:  0.04,
	}
}

// Analyzer runs the tiered thickness search. It never returns an error: a
// zero estimate means no thickness was found.
type Analyzer struct {
	Config Config
	Logger *zap.Logger
}

// NewAnalyzer creates an Analyzer with the given config.
func NewAnalyzer(cfg Config, logger *zap.Logger) *Analyzer {
	return &Analyzer{Config: cfg, Logger: logging.OrNop(logger)}
}

// Estimate resolves thickness and coverage. Mode seeking runs first, then the
// gauge seeds; when the host is missing or both fail, the best planar face
// pair is used.
func (a *Analyzer) Estimate(ctx context.Context, host geometry.ThicknessHost, faces []geometry.Face) domain.ThicknessEstimate {
	log := logging.OrNop(a.Logger)

	if host != nil {
		est, err := a.ModeSeek(ctx, host)
		if err == nil && est.Found() {
			est.Source = domain.SourceAnalysis
			return est
		}
		log.Debug("mode seek failed", zap.Error(err))

		if ctx.Err() != nil {
			return domain.ThicknessEstimate{}
		}
		if IsUnavailable(err) {
			log.Debug("thickness analysis unavailable, using planar pairs")
			return PlanarPairEstimate(faces)
		}

		est, err = a.SeedScan(ctx, host)
		if err == nil && est.Found() {
			est.Source = domain.SourceSeed
			return est
		}
		log.Debug("seed scan failed", zap.Error(err))
	} else {
		log.Debug("thickness analysis unavailable, using planar pairs")
	}

	return PlanarPairEstimate(faces)
}

// ModeSeek runs the coarse scan, then fine scans refined toward the open
// last bin.
func (a *Analyzer) ModeSeek(ctx context.Context, host geometry.ThicknessHost) (domain.ThicknessEstimate, error) {
	c := a.Config
	coarse, err := a.scan(ctx, host, true, c.CoarseMin, c.CoarseMax, c.CoarseBins)
	if err != nil {
		return domain.ThicknessEstimate{}, err
	}
	i := Modal(coarse)
	if i < 0 {
		return domain.ThicknessEstimate{}, domain.ErrNoBins
	}
	target := coarse[i].High

	var est domain.ThicknessEstimate
	for iter := 0; ; iter++ {
		bins, err := a.fine(ctx, host, target)
		if err != nil {
			return domain.ThicknessEstimate{}, err
		}
		mode, coverage, last, ok := Evaluate(bins, c.CoverageBand)
		if !ok {
			return domain.ThicknessEstimate{}, domain.ErrNoBins
		}
		est = domain.ThicknessEstimate{Thickness: mode, Coverage: coverage}
		if !last || iter >= c.MaxRefinements {
			break
		}
		lastLow := bins[len(bins)-1].Low
		next := math.Max(lastLow*c.RefineStep, lastLow+c.RefineEpsilon)
		if math.Abs(next-target) < c.RefineMinDelta*target {
			break
		}
		a.logger().Debug("refining toward open bin",
			zap.Float64("target", target), zap.Float64("next", next), zap.Int("iteration", iter+1))
		target = next
	}
	return est, nil
}

// SeedScan fine-scans each gauge seed and keeps the best-covered one,
// preferring the thinnest among near ties.
func (a *Analyzer) SeedScan(ctx context.Context, host geometry.ThicknessHost) (domain.ThicknessEstimate, error) {
	var cands []domain.ThicknessEstimate
	var lastErr error
	for _, seed := range a.Config.Seeds {
		bins, err := a.fine(ctx, host, seed)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil || IsUnavailable(err) {
				break
			}
			continue
		}
		mode, coverage, _, ok := Evaluate(bins, a.Config.CoverageBand)
		if !ok {
			continue
		}
		cands = append(cands, domain.ThicknessEstimate{Thickness: mode, Coverage: coverage})
	}
	if len(cands) == 0 {
		if lastErr == nil {
			lastErr = domain.ErrNoBins
		}
		return domain.ThicknessEstimate{}, lastErr
	}
	return PickSeed(cands, a.Config.SeedTieWindow), nil
}

// PickSeed returns the highest-coverage candidate, or the thinnest candidate
// within window of it.
func PickSeed(cands []domain.ThicknessEstimate, window float64) domain.ThicknessEstimate {
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Coverage > best.Coverage {
			best = c
		}
	}
	pick := best
	for _, c := range cands {
		if c.Coverage >= best.Coverage-window && c.Thickness < pick.Thickness {
			pick = c
		}
	}
	return pick
}

func (a *Analyzer) fine(ctx context.Context, host geometry.ThicknessHost, target float64) ([]geometry.ThicknessBin, error) {
	c := a.Config
	return a.scan(ctx, host, false, target*c.FineLow, target*c.FineHigh, c.FineBins)
}

// scan calls the host with retries. Only coarse scans reset the host between
// attempts. An unavailable host is not retried.
func (a *Analyzer) scan(ctx context.Context, host geometry.ThicknessHost, reset bool, lo, hi float64, n int) ([]geometry.ThicknessBin, error) {
	attempts := a.Config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, a.Config.RetryDelay); err != nil {
				return nil, err
			}
			if reset {
				if err := host.Reset(); err != nil {
					a.logger().Debug("analysis reset failed", zap.Error(err))
				}
			}
		}
		bins, err := host.Bins(ctx, lo, hi, n)
		if err == nil {
			return bins, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if IsUnavailable(err) {
			return nil, err
		}
		a.logger().Debug("thickness scan failed",
			zap.Int("attempt", attempt), zap.Float64("min", lo), zap.Float64("max", hi), zap.Error(err))
	}
	return nil, domain.WrapEngineError(domain.ErrAnalysisFailed.Code, "scan retries exhausted", lastErr)
}

func (a *Analyzer) logger() *zap.Logger {
	return logging.OrNop(a.Logger)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Modal returns the index of the bin with the largest area share, or -1 when
// no bin carries any area.
func Modal(bins []geometry.ThicknessBin) int {
	best := -1
	for i, b := range bins {
		if b.AreaShare <= 0 {
			continue
		}
		if best < 0 || b.AreaShare > bins[best].AreaShare {
			best = i
		}
	}
	return best
}

// Evaluate returns the modal bin's midpoint, the area share of bins that
// overlap [mode×(1-band), mode×(1+band)], and whether the mode fell in the
// open-ended last bin.
func Evaluate(bins []geometry.ThicknessBin, band float64) (mode, coverage float64, last, ok bool) {
	i := Modal(bins)
	if i < 0 {
		return 0, 0, false, false
	}
	mode = (bins[i].Low + bins[i].High) / 2
	lo, hi := mode*(1-band), mode*(1+band)
	for _, b := range bins {
		if b.High > lo && b.Low < hi {
			coverage += b.AreaShare
		}
	}
	return mode, math.Min(coverage, 1), i == len(bins)-1, true
}

// PlanarPairEstimate infers thickness from the best near-parallel planar
// face pair: separation is the thickness, smaller face area over total area
// the coverage.
func PlanarPairEstimate(faces []geometry.Face) domain.ThicknessEstimate {
	pair, ok := geometry.BestPlanarPair(faces)
	total := geometry.TotalArea(faces)
	if !ok || total <= 0 {
		return domain.ThicknessEstimate{}
	}
	return domain.ThicknessEstimate{
		Thickness: pair.Separation,
		Coverage:  pair.MinArea() / total,
		Source:    domain.SourcePlanarPair,
	}
}

// IsUnavailable reports whether err means the host cannot analyse at all.
func IsUnavailable(err error) bool {
	return errors.Is(err, domain.ErrAnalysisUnavailable)
}

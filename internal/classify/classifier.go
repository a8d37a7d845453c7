package classify

import (
	"context"

	"go.uber.org/zap"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry"
	"github.com/ttsmith21/sheetmetal-engine/internal/logging"
	"github.com/ttsmith21/sheetmetal-engine/internal/metrics"
	"github.com/ttsmith21/sheetmetal-engine/internal/scan"
	"github.com/ttsmith21/sheetmetal-engine/internal/section"
	"github.com/ttsmith21/sheetmetal-engine/internal/thickness"
)

// Classifier gathers evidence for Decide. It holds configuration only, no
// per-call state.
type Classifier struct {
	Thresholds Thresholds
	Analyzer   *thickness.Analyzer
	Section    *section.Verifier
	Logger     *zap.Logger
	Metrics    *metrics.Recorder
}

// New creates a Classifier. Nil analyzer or verifier get defaults.
func New(th Thresholds, analyzer *thickness.Analyzer, verifier *section.Verifier, logger *zap.Logger, rec *metrics.Recorder) *Classifier {
	logger = logging.OrNop(logger)
	if analyzer == nil {
		analyzer = thickness.NewAnalyzer(thickness.DefaultConfig(), logger)
	}
	if verifier == nil {
		verifier = section.NewVerifier(logger)
	}
	return &Classifier{
		Thresholds: th,
		Analyzer:   analyzer,
		Section:    verifier,
		Logger:     logger,
		Metrics:    rec,
	}
}

// Classify scans body, resolves thickness and decides its pile. host may be
// nil when the kernel has no thickness analysis.
func (c *Classifier) Classify(ctx context.Context, body geometry.Body, host geometry.ThicknessHost) domain.ClassificationResult {
	log := logging.OrNop(c.Logger)
	ev := c.Gather(ctx, body, host)
	res := Decide(ev, c.Thresholds)

	fields := []zap.Field{
		zap.String("pile", string(res.Pile)),
		zap.String("reason", res.Reason),
		zap.Float64("developable", res.Metrics.DevelopableShare()),
		zap.Int("stick_axis", res.StickAxis),
		zap.Float64("side_share", res.Metrics.SideShare(res.StickAxis)),
		zap.Float64("cap_share", res.Metrics.CapShare(res.StickAxis)),
		zap.Float64s("spans", res.Metrics.Spans[:]),
		zap.Float64("thickness", res.Thickness.Thickness),
		zap.Float64("coverage", res.Thickness.Coverage),
		zap.String("thickness_source", string(res.Thickness.Source)),
		zap.Float64("thin_ratio", res.ThinRatio),
	}
	if res.ConstantSection != nil {
		fields = append(fields, zap.Bool("constant_section", *res.ConstantSection))
	}
	log.Info("classified", fields...)

	c.Metrics.RecordClassification(string(res.Pile))
	return res
}

// Gather collects the evidence Decide needs, skipping work the funnel will
// not look at: nothing past the scan for complex bodies, and no section or
// shell checks unless the body looks like stick stock.
func (c *Classifier) Gather(ctx context.Context, body geometry.Body, host geometry.ThicknessHost) Evidence {
	th := c.Thresholds
	m := scan.Prepass(body)
	ev := Evidence{Metrics: m, StickAxis: scan.StickAxis(m)}
	if th.Complex(m) {
		return ev
	}

	faces := body.Faces()
	shell, hasShell := geometry.CoaxialShell(faces, th.CoaxialAngleDeg)

	ev.Thickness = c.Analyzer.Estimate(ctx, host, faces)
	if !ev.Thickness.Found() && hasShell {
		ev.Thickness = ShellEstimate(shell, geometry.TotalArea(faces))
	}
	c.Metrics.RecordThicknessSource(string(ev.Thickness.Source))

	if th.StickCandidate(m, ev.StickAxis) {
		constant := c.Section.Constant(body, m.Axes[ev.StickAxis].Axis)
		ev.ConstantSection = &constant
		if !constant && hasShell {
			ev.HasShell = true
			ev.ShellRatio = shell.WallRatio()
		}
	}
	return ev
}

// ShellEstimate infers thickness from a coaxial shell: the wall is the
// thickness, the shell's share of total area the coverage.
func ShellEstimate(s geometry.Shell, totalArea float64) domain.ThicknessEstimate {
	if s.Wall <= 0 || totalArea <= 0 {
		return domain.ThicknessEstimate{}
	}
	cov := s.Area / totalArea
	if cov > 1 {
		cov = 1
	}
	return domain.ThicknessEstimate{Thickness: s.Wall, Coverage: cov, Source: domain.SourceCoaxialShell}
}

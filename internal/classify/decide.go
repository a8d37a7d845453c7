// Package classify sorts a solid body into the stick, sheet-metal or other pile.
package classify

import (
	"fmt"
	"math"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
)

// Thresholds tune the funnel. The defaults are empirical.
type Thresholds struct {
	// MinDevelopable is the developable-area share below which a body is too complex.
	MinDevelopable float64 `json:"min_developable"`

	// MaxThinRatio bounds thickness over the second span.
	MaxThinRatio float64 `json:"max_thin_ratio"`

	PrimaryCoverage float64 `json:"primary_coverage"`

	// Relaxed coverage tiers: a nearly all-developable body may pass with
	// much lower coverage.
	RelaxedDevelopable   float64 `json:"relaxed_developable"`
	RelaxedCoverage      float64 `json:"relaxed_coverage"`
	NearTotalDevelopable float64 `json:"near_total_developable"`
	NearTotalCoverage    float64 `json:"near_total_coverage"`

	// LargeDiameter in inches; thin bodies this wide are rolled sheet.
	LargeDiameter float64 `json:"large_diameter"`

	StickSideShare float64 `json:"stick_side_share"`
	StickCapShare  float64 `json:"stick_cap_share"`

	ShellMinRatio   float64 `json:"shell_min_ratio"`
	ShellMaxRatio   float64 `json:"shell_max_ratio"`
	CoaxialAngleDeg float64 `json:"coaxial_angle_deg"`
}

// DefaultThresholds returns the standard funnel thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinDevelopable:       0.85,
		MaxThinRatio:         0.20,
		PrimaryCoverage:      0.70,
		RelaxedDevelopable:   0.95,
		RelaxedCoverage:      0.10,
		NearTotalDevelopable: 0.99,
		NearTotalCoverage:    0.02,
		LargeDiameter:        24,
		StickSideShare:       0.97,
		StickCapShare:        0.02,
		ShellMinRatio:        0.005,
		ShellMaxRatio:        0.25,
		CoaxialAngleDeg:      2.6,
	}
}

// Evidence is everything the decision looks at. ConstantSection and Shell are
// only gathered when the stick test needs them.
type Evidence struct {
	Metrics   domain.PrepassMetrics
	StickAxis int
	Thickness domain.ThicknessEstimate
	// ConstantSection is nil when no section check ran.
	ConstantSection *bool
	// ShellRatio is the coaxial shell's wall over outer radius, when HasShell.
	ShellRatio float64
	HasShell   bool
}

// ThinRatio is thickness over the second-longest span, or +Inf when either
// is missing.
func (e Evidence) ThinRatio() float64 {
	second := e.Metrics.Spans[1]
	if !e.Thickness.Found() || second <= 0 {
		return math.Inf(1)
	}
	return e.Thickness.Thickness / second
}

// Diameter is the smaller of the two minor spans.
func (e Evidence) Diameter() float64 {
	return math.Min(e.Metrics.Spans[1], e.Metrics.Spans[2])
}

// Complex reports whether the body fails the developable-area gate.
func (th Thresholds) Complex(m domain.PrepassMetrics) bool {
	return m.DevelopableShare() < th.MinDevelopable
}

// StickCandidate reports whether the side and cap shares on axis look like
// bar or tube stock.
func (th Thresholds) StickCandidate(m domain.PrepassMetrics, axis int) bool {
	return m.SideShare(axis) >= th.StickSideShare && m.CapShare(axis) <= th.StickCapShare
}

// Primary reports whether coverage passes on its own.
func (th Thresholds) Primary(coverage float64) bool {
	return coverage >= th.PrimaryCoverage
}

// Relaxed reports whether coverage passes given a highly developable body.
func (th Thresholds) Relaxed(developable, coverage float64) bool {
	return (developable >= th.RelaxedDevelopable && coverage >= th.RelaxedCoverage) ||
		(developable >= th.NearTotalDevelopable && coverage >= th.NearTotalCoverage)
}

// Decide runs the funnel over complete evidence. It has no side effects and
// the same evidence always yields the same result.
func Decide(ev Evidence, th Thresholds) domain.ClassificationResult {
	m := ev.Metrics
	res := domain.ClassificationResult{
		Metrics:         m,
		Thickness:       ev.Thickness,
		StickAxis:       ev.StickAxis,
		ConstantSection: ev.ConstantSection,
	}
	dev := m.DevelopableShare()

	if th.Complex(m) {
		res.Pile = domain.PileOther
		res.Reason = fmt.Sprintf("developable share %.3f below %.2f", dev, th.MinDevelopable)
		return res
	}

	ratio := ev.ThinRatio()
	if !math.IsInf(ratio, 1) {
		res.ThinRatio = ratio
	}
	thin := ratio <= th.MaxThinRatio
	cov := ev.Thickness.Coverage
	primary := ev.Thickness.Found() && th.Primary(cov)
	relaxed := ev.Thickness.Found() && th.Relaxed(dev, cov)

	if thin && primary && ev.Diameter() >= th.LargeDiameter {
		res.Pile = domain.PileSheetMetal
		res.Reason = fmt.Sprintf("large diameter %.2f in with thin wall %.4f (coverage %.2f)",
			ev.Diameter(), ev.Thickness.Thickness, cov)
		return res
	}

	if th.StickCandidate(m, ev.StickAxis) {
		if ev.ConstantSection != nil && *ev.ConstantSection {
			res.Pile = domain.PileStick
			res.Reason = fmt.Sprintf("constant section along axis %d (side %.3f, cap %.3f)",
				ev.StickAxis, m.SideShare(ev.StickAxis), m.CapShare(ev.StickAxis))
			return res
		}
		if ev.HasShell && ev.ShellRatio >= th.ShellMinRatio && ev.ShellRatio <= th.ShellMaxRatio {
			res.Pile = domain.PileStick
			res.Reason = fmt.Sprintf("coaxial shell with wall ratio %.4f", ev.ShellRatio)
			return res
		}
	}

	if thin && (primary || relaxed) {
		res.Pile = domain.PileSheetMetal
		res.Reason = fmt.Sprintf("thin wall %.4f (ratio %.3f) with coverage %.2f",
			ev.Thickness.Thickness, ratio, cov)
		return res
	}

	res.Pile = domain.PileOther
	switch {
	case !ev.Thickness.Found():
		res.Reason = "no dominant thickness"
	case !thin:
		res.Reason = fmt.Sprintf("thin ratio %.3f above %.2f", ratio, th.MaxThinRatio)
	default:
		res.Reason = fmt.Sprintf("coverage %.2f too low for developable share %.3f", cov, dev)
	}
	return res
}

// Package convert turns a sheet-like solid into a sheet-metal part. It orders
// candidate strategies from the body's geometry, runs each under a feature
// bookmark, validates the result and activates the flat pattern.
package convert

import (
	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
	"github.com/ttsmith21/sheetmetal-engine/internal/scan"
)

// Config holds conversion limits.
type Config struct {
	// MaxThickness clamps every resolved thickness, in inches.
	MaxThickness float64 `json:"max_thickness"`
	// VolumeTolerance is the accepted relative volume drift of a converted part.
	VolumeTolerance float64 `json:"volume_tolerance"`
	// ProbeVolumeTolerance is the stricter drift allowed while probing bends.
	ProbeVolumeTolerance float64 `json:"probe_volume_tolerance"`

	CylinderDominant float64 `json:"cylinder_dominant"`
	CylinderSparse   float64 `json:"cylinder_sparse"`
	LargeDiameter    float64 `json:"large_diameter"`

	// MaxRipEdges bounds the edges added to the second whole-body attempt.
	MaxRipEdges     int     `json:"max_rip_edges"`
	CoaxialAngleDeg float64 `json:"coaxial_angle_deg"`
}

// DefaultConfig returns the standard conversion limits.
func DefaultConfig() Config {
	return Config{
		MaxThickness:         1.0,
		VolumeTolerance:      0.006,
		ProbeVolumeTolerance: 0.005,
		CylinderDominant:     0.90,
		CylinderSparse:       0.10,
		LargeDiameter:        24,
		MaxRipEdges:          3,
		CoaxialAngleDeg:      2.6,
	}
}

// Bend parameter defaults. Lengths are in inches.
const (
	DefaultRadiusFactor = 1.5
	DefaultKFactor      = 0.5
	WholeBodyKFactor    = 0.4
	RolledKFactor       = 0.5
	MinWholeBodyRadius  = 0.5 * domain.MM
	ProbeRadius         = 1 * domain.MM
	ProbeKFactor        = 0.5
	ProbeFallback       = 1 * domain.MM
	SeedRadius          = 1 * domain.MM
)

// Order returns the strategies to try, best first. FaceBasedBend is always last.
func Order(cm scan.CylinderMetrics, cfg Config) []domain.StrategyKind {
	var order []domain.StrategyKind
	switch {
	case cm.Share >= cfg.CylinderDominant && cm.Diameter >= cfg.LargeDiameter:
		order = []domain.StrategyKind{domain.StrategyConvertWholeBody, domain.StrategyBendOnEdge}
	case cm.Share >= cfg.CylinderDominant:
		order = []domain.StrategyKind{domain.StrategyBendOnEdge, domain.StrategyConvertWholeBody}
	case cm.Share <= cfg.CylinderSparse:
		order = []domain.StrategyKind{domain.StrategyBendOnEdge, domain.StrategyConvertWholeBody}
	default:
		order = []domain.StrategyKind{domain.StrategyConvertWholeBody, domain.StrategyBendOnEdge}
	}
	return append(order, domain.StrategyFaceBasedBend)
}

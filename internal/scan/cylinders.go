package scan

import (
	"math"

	"github.com/ttsmith21/sheetmetal-engine/internal/geometry"
)

// CylinderMetrics is the cylinder-only subset of the prepass used to order
// conversion strategies.
type CylinderMetrics struct {
	// Share is cylindrical area over total area.
	Share float64 `json:"share"`
	// Diameter is twice the largest cylinder radius.
	Diameter float64 `json:"diameter"`
	// WallThickness comes from a coaxial shell, else the best planar pair.
	WallThickness float64 `json:"wall_thickness"`
	// ConsistentRadius is set when every cylindrical face sits on the outer or
	// inner skin of one rolled wall.
	ConsistentRadius bool `json:"consistent_radius"`
}

// Cylinders scans faces for cylinder share, approximate diameter and wall.
func Cylinders(faces []geometry.Face) CylinderMetrics {
	var total, cyl, maxR float64
	for _, f := range faces {
		total += f.Area
		if f.Kind != geometry.SurfaceCylinder {
			continue
		}
		cyl += f.Area
		maxR = math.Max(maxR, f.Radius)
	}

	var cm CylinderMetrics
	if total > 0 {
		cm.Share = cyl / total
	}
	cm.Diameter = 2 * maxR

	if shell, ok := geometry.CoaxialShell(faces, geometry.CoaxialAngleDeg); ok {
		cm.WallThickness = shell.Wall
	} else if pair, ok := geometry.BestPlanarPair(faces); ok {
		cm.WallThickness = pair.Separation
	}
	cm.ConsistentRadius = consistentRadius(faces, maxR, cm.WallThickness)
	return cm
}

func consistentRadius(faces []geometry.Face, maxR, wall float64) bool {
	if maxR <= 0 {
		return false
	}
	band := wall*1.05 + 1e-6
	for _, f := range faces {
		if f.Kind != geometry.SurfaceCylinder {
			continue
		}
		if maxR-f.Radius > band {
			return false
		}
	}
	return true
}

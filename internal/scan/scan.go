// Package scan makes the single pass over a body's faces that feeds
// classification and strategy ordering.
package scan

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry"
)

// Axis tolerances on |n·a|.
const (
	// PerpendicularTol: a planar face with |n·a| at most this is a side face.
	PerpendicularTol = 0.15
	// ParallelTol: a planar face with |n·a| at least 1-ParallelTol is a cap.
	ParallelTol = 0.05
	// CylinderAxisTol: a cylinder with |axis·a| at least 1-CylinderAxisTol runs along a.
	CylinderAxisTol = 0.05
)

// IdentityAxes are used when the kernel cannot provide principal axes.
var IdentityAxes = [3]r3.Vec{{X: 1}, {Y: 1}, {Z: 1}}

// Prepass tallies total, developable, side and cap area per principal axis
// and measures the oriented spans of the body.
func Prepass(body geometry.Body) domain.PrepassMetrics {
	axes, ok := body.PrincipalAxes()
	if !ok {
		axes = IdentityAxes
	}
	for i := range axes {
		if r3.Norm(axes[i]) == 0 {
			axes[i] = IdentityAxes[i]
		}
		axes[i] = r3.Unit(axes[i])
	}

	var m domain.PrepassMetrics
	for i := range axes {
		m.Axes[i].Axis = axes[i]
	}

	for _, f := range body.Faces() {
		m.TotalArea += f.Area
		if f.Kind.Developable() {
			m.DevelopableArea += f.Area
		}
		for i := range axes {
			tallyFace(&m.Axes[i], f)
		}
	}

	spans := make([]float64, 3)
	for i := range axes {
		spans[i] = Span(body, axes[i])
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(spans)))
	copy(m.Spans[:], spans)
	return m
}

func tallyFace(t *domain.AxisTally, f geometry.Face) {
	switch f.Kind {
	case geometry.SurfacePlane:
		if r3.Norm(f.Normal) == 0 {
			return
		}
		d := math.Abs(r3.Dot(r3.Unit(f.Normal), t.Axis))
		switch {
		case d <= PerpendicularTol:
			t.SideArea += f.Area
		case d >= 1-ParallelTol:
			t.CapArea += f.Area
		}
	case geometry.SurfaceCylinder:
		if r3.Norm(f.Axis) == 0 {
			return
		}
		if math.Abs(r3.Dot(r3.Unit(f.Axis), t.Axis)) >= 1-CylinderAxisTol {
			t.SideArea += f.Area
		}
	}
}

// Span returns the distance between the body's extreme points along ±axis,
// or zero when the kernel cannot locate them.
func Span(body geometry.Body, axis r3.Vec) float64 {
	hi, err := body.ExtremePoint(axis)
	if err != nil {
		return 0
	}
	lo, err := body.ExtremePoint(r3.Scale(-1, axis))
	if err != nil {
		return 0
	}
	return math.Abs(r3.Dot(r3.Sub(hi, lo), axis))
}

// StickAxis returns the index of the axis with the highest side-area share.
func StickAxis(m domain.PrepassMetrics) int {
	best := 0
	for i := 1; i < len(m.Axes); i++ {
		if m.Axes[i].SideArea > m.Axes[best].SideArea {
			best = i
		}
	}
	return best
}

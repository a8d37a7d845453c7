package memory

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ttsmith21/sheetmetal-engine/internal/geometry"
)

// FaceSpec is a face descriptor. Edges index into Solid.Edges.
type FaceSpec struct {
	Kind   geometry.SurfaceKind
	Area   float64
	Normal r3.Vec
	Origin r3.Vec
	Axis   r3.Vec
	Radius float64
	Edges  []int
}

// EdgeSpec is an edge descriptor. Faces index into Solid.Faces.
type EdgeSpec struct {
	Kind   geometry.CurveKind
	Length float64
	Faces  []int
}

// Sample is a patch of surface with a measured local wall thickness.
type Sample struct {
	Thickness float64
	Area      float64
}

// SectionFunc returns the sectioned area at normalized position at ∈ [0,1]
// along normal.
type SectionFunc func(normal r3.Vec, at float64) (float64, error)

// Solid is the static geometry of one body.
type Solid struct {
	Volume   float64
	Axes     *[3]r3.Vec
	Vertices []r3.Vec
	Faces    []FaceSpec
	Edges    []EdgeSpec
	Section  SectionFunc
	// Samples feed the thickness host.
	Samples []Sample
	// NominalThickness is what the kernel reports for derived sheet features.
	NominalThickness float64
}

// Link records that edge e bounds face f on both descriptors.
func (s *Solid) Link(f, e int) {
	s.Faces[f].Edges = append(s.Faces[f].Edges, e)
	s.Edges[e].Faces = append(s.Edges[e].Faces, f)
}

// Host is the in-memory thickness-analysis capability.
type Host struct {
	model *Model

	// Script, when set, is returned call by call instead of binning samples.
	Script [][]geometry.ThicknessBin
	// Fail returns an error for the given 1-based Bins call number.
	Fail     func(call int) error
	ResetErr error

	calls  int
	resets int
}

// Calls returns the number of Bins calls made.
func (h *Host) Calls() int { return h.calls }

// Resets returns the number of Reset calls made.
func (h *Host) Resets() int { return h.resets }

// Reset implements geometry.ThicknessHost.
func (h *Host) Reset() error {
	h.resets++
	return h.ResetErr
}

// Bins implements geometry.ThicknessHost.
func (h *Host) Bins(ctx context.Context, min, max float64, n int) ([]geometry.ThicknessBin, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.calls++
	if h.Fail != nil {
		if err := h.Fail(h.calls); err != nil {
			return nil, err
		}
	}
	if h.Script != nil {
		i := h.calls - 1
		if i >= len(h.Script) {
			return nil, fmt.Errorf("no scripted response for call %d", h.calls)
		}
		return h.Script[i], nil
	}
	if n <= 0 || max <= min {
		return nil, fmt.Errorf("invalid analysis range [%g, %g] / %d", min, max, n)
	}
	if len(h.model.solids) == 0 {
		return nil, fmt.Errorf("no body")
	}
	return binSamples(h.model.solids[0].Samples, min, max, n), nil
}

func binSamples(samples []Sample, min, max float64, n int) []geometry.ThicknessBin {
	width := (max - min) / float64(n)
	bins := make([]geometry.ThicknessBin, n)
	for i := range bins {
		bins[i].Low = min + float64(i)*width
		bins[i].High = bins[i].Low + width
	}
	bins[n-1].High = max

	var total float64
	for _, s := range samples {
		total += s.Area
	}
	if total <= 0 {
		return bins
	}
	for _, s := range samples {
		if s.Thickness < min {
			continue
		}
		i := int(math.Floor((s.Thickness - min) / width))
		if i >= n {
			i = n - 1
		}
		bins[i].FaceCount++
		bins[i].AreaShare += s.Area / total
	}
	return bins
}

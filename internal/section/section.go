// Package section checks whether a body keeps a constant cross-section along
// an axis.
package section

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry"
	"github.com/ttsmith21/sheetmetal-engine/internal/logging"
)

// Defaults for the two-plane comparison.
const (
	DefaultTolerance = 0.05
	DefaultNear      = 0.35
	DefaultFar       = 0.65
)

// Verifier compares sections at two fractions of the body's extent.
type Verifier struct {
	Tolerance float64
	Near, Far float64
	Logger    *zap.Logger
}

// NewVerifier returns a Verifier with the default planes and tolerance.
func NewVerifier(logger *zap.Logger) *Verifier {
	return &Verifier{
		Tolerance: DefaultTolerance,
		Near:      DefaultNear,
		Far:       DefaultFar,
		Logger:    logging.OrNop(logger),
	}
}

// Constant reports whether the sections at Near and Far differ by at most
// Tolerance relative to the larger. Any section failure counts as not constant.
func (v *Verifier) Constant(body geometry.Body, axis r3.Vec) bool {
	log := logging.OrNop(v.Logger)
	if r3.Norm(axis) == 0 {
		return false
	}
	n := r3.Unit(axis)

	lo, hi, ok := Extent(body, n)
	if !ok || hi-lo <= 0 {
		log.Debug("section extent unavailable")
		return false
	}

	a1, err := v.areaAt(body, n, lo+v.Near*(hi-lo))
	if err != nil {
		log.Debug("near section failed", zap.Error(err))
		return false
	}
	a2, err := v.areaAt(body, n, lo+v.Far*(hi-lo))
	if err != nil {
		log.Debug("far section failed", zap.Error(err))
		return false
	}

	diff := RelativeDiff(a1, a2)
	log.Debug("section compare",
		zap.Float64("near_area", a1), zap.Float64("far_area", a2), zap.Float64("diff", diff))
	return diff <= v.Tolerance
}

func (v *Verifier) areaAt(body geometry.Body, n r3.Vec, d float64) (float64, error) {
	area, err := body.SectionArea(r3.Scale(d, n), n)
	if err != nil {
		return 0, err
	}
	if area <= 0 {
		return 0, domain.ErrSectionFailed
	}
	return area, nil
}

// Extent returns the projected range of the body along the unit vector n.
func Extent(body geometry.Body, n r3.Vec) (lo, hi float64, ok bool) {
	top, err := body.ExtremePoint(n)
	if err != nil {
		return 0, 0, false
	}
	bottom, err := body.ExtremePoint(r3.Scale(-1, n))
	if err != nil {
		return 0, 0, false
	}
	return r3.Dot(bottom, n), r3.Dot(top, n), true
}

// RelativeDiff is |a-b| over the larger magnitude; two zeros compare equal.
func RelativeDiff(a, b float64) float64 {
	m := math.Max(math.Abs(a), math.Abs(b))
	if m == 0 {
		return 0
	}
	return math.Abs(a-b) / m
}

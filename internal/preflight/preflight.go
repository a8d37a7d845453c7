// Package preflight is the fast reject filter run before any expensive
// analysis or conversion.
package preflight

import (
	"fmt"
	"strings"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry"
)

// Soft-reject thresholds. Lengths and areas are in inches.
const (
	MinEdgesForRatio  = 50
	NonLinearRatioMax = 0.5
	MicroFaceArea     = 0.01 * domain.MM2
	MicroFaceLimit    = 20
	MicroFaceMinTotal = 10 * domain.MM2
	KnifeEdgeLength   = 0.01 * domain.MM
	KnifeEdgeLimit    = 50
)

// Facts are the raw observations preflight decides on.
type Facts struct {
	SolidBodies   int
	SurfaceBodies int
	Volume        float64
	HasHelix      bool
	Edges         int
	// NonLinearEdges counts edges whose curve is not a simple analytic kind.
	NonLinearEdges int
	MicroFaces     int
	KnifeEdges     int
	TotalArea      float64
	HasSheetMetal  bool
}

// Counts returns the diagnostic tallies carried on the result.
func (f Facts) Counts() domain.PreflightCounts {
	return domain.PreflightCounts{
		SolidBodies:    f.SolidBodies,
		SurfaceBodies:  f.SurfaceBodies,
		Volume:         f.Volume,
		Edges:          f.Edges,
		NonLinearEdges: f.NonLinearEdges,
		MicroFaces:     f.MicroFaces,
		KnifeEdges:     f.KnifeEdges,
	}
}

// Evaluate applies the hard and soft reject rules. The first hard reject wins;
// soft reasons are joined.
func Evaluate(f Facts) domain.PreflightResult {
	res := domain.PreflightResult{Counts: f.Counts()}

	if reason := hardReject(f); reason != "" {
		res.IsProblem = true
		res.Hard = true
		res.Reason = reason
		return res
	}

	var reasons []string
	if !f.HasSheetMetal {
		if f.Edges >= MinEdgesForRatio && float64(f.NonLinearEdges)/float64(f.Edges) >= NonLinearRatioMax {
			reasons = append(reasons, fmt.Sprintf("Too many non-linear edges (%d of %d)", f.NonLinearEdges, f.Edges))
		}
		if f.MicroFaces >= MicroFaceLimit && f.TotalArea >= MicroFaceMinTotal {
			reasons = append(reasons, fmt.Sprintf("Too many micro faces (%d)", f.MicroFaces))
		}
	}
	if f.KnifeEdges >= KnifeEdgeLimit {
		reasons = append(reasons, fmt.Sprintf("Too many knife edges (%d)", f.KnifeEdges))
	}

	if len(reasons) > 0 {
		res.IsProblem = true
		res.Reason = strings.Join(reasons, "; ")
	}
	return res
}

func hardReject(f Facts) string {
	switch {
	case f.SolidBodies == 0 && f.SurfaceBodies == 0:
		return "No bodies in part"
	case f.SolidBodies == 0:
		return fmt.Sprintf("Surface bodies only (%d), no solid body", f.SurfaceBodies)
	case f.SolidBodies > 1:
		return fmt.Sprintf("Multiple solid bodies (%d)", f.SolidBodies)
	case f.SurfaceBodies > 0:
		return fmt.Sprintf("Mixed solid and surface bodies (%d surface)", f.SurfaceBodies)
	case f.Volume <= 0:
		return fmt.Sprintf("Non-positive volume (%g)", f.Volume)
	case f.HasHelix:
		return "Helical or spiral edge present"
	}
	return ""
}

// Gather collects Facts from a document. Face and edge rules look at the
// first solid body only; with several solids the body-count rule rejects
// the part first.
func Gather(doc geometry.Document) (Facts, error) {
	if doc == nil {
		return Facts{}, domain.ErrNilDocument
	}
	solids := doc.SolidBodies()
	f := Facts{
		SolidBodies:   len(solids),
		SurfaceBodies: doc.SurfaceBodyCount(),
	}
	if _, ok := geometry.FindFeature(doc, geometry.FeatureSheetMetal); ok {
		f.HasSheetMetal = true
	}
	if len(solids) == 0 {
		return f, nil
	}

	body := solids[0]
	if v, err := body.Volume(); err == nil {
		f.Volume = v
	}
	for _, face := range body.Faces() {
		f.TotalArea += face.Area
		if face.Area <= MicroFaceArea {
			f.MicroFaces++
		}
	}
	for _, e := range body.Edges() {
		f.Edges++
		if e.Kind == geometry.CurveHelix {
			f.HasHelix = true
		}
		if !e.Kind.Simple() {
			f.NonLinearEdges++
		}
		if e.Length <= KnifeEdgeLength {
			f.KnifeEdges++
		}
	}
	return f, nil
}

// Check gathers facts and evaluates them.
func Check(doc geometry.Document) (domain.PreflightResult, error) {
	f, err := Gather(doc)
	if err != nil {
		return domain.PreflightResult{}, err
	}
	return Evaluate(f), nil
}

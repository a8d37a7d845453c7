// Package geometry defines the contract between the engine and the CAD kernel
// that owns the document. The engine never computes surfaces itself; it reads
// face and edge descriptors and asks the kernel to mutate the feature history.
package geometry

import (
	"context"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
)

// SurfaceKind classifies the underlying surface of a face.
type SurfaceKind string

const (
	SurfacePlane    SurfaceKind = "plane"
	SurfaceCylinder SurfaceKind = "cylinder"
	SurfaceCone     SurfaceKind = "cone"
	SurfaceOther    SurfaceKind = "other"
)

// Developable reports whether the surface unrolls without stretching.
func (k SurfaceKind) Developable() bool {
	return k == SurfacePlane || k == SurfaceCylinder || k == SurfaceCone
}

// CurveKind classifies the underlying curve of an edge.
type CurveKind string

const (
	CurveLine    CurveKind = "line"
	CurveCircle  CurveKind = "circle"
	CurveArc     CurveKind = "arc"
	CurveEllipse CurveKind = "ellipse"
	CurveHelix   CurveKind = "helix"
	CurveSpline  CurveKind = "spline"
	CurveUnknown CurveKind = ""
)

// Simple reports whether an edge of this kind counts as a simple curve.
// Kinds the kernel cannot introspect default to simple; helices are checked
// separately by the caller.
func (k CurveKind) Simple() bool {
	switch k {
	case CurveSpline, CurveHelix:
		return false
	default:
		return true
	}
}

// FaceID and EdgeID are handles valid only for the generation of the
// document that issued them. Undo and rollback invalidate all handles.
type (
	FaceID int64
	EdgeID int64
)

// Face describes one face of a body.
type Face struct {
	ID   FaceID      `json:"id"`
	Kind SurfaceKind `json:"kind"`
	Area float64     `json:"area"`

	// Normal and Origin are set for planar faces.
	Normal r3.Vec `json:"normal"`
	Origin r3.Vec `json:"origin"`

	// Axis, Origin and Radius are set for cylindrical and conical faces.
	Axis   r3.Vec  `json:"axis"`
	Radius float64 `json:"radius"`

	Edges []EdgeID `json:"edges"`
}

// Edge describes one edge of a body.
type Edge struct {
	ID     EdgeID    `json:"id"`
	Kind   CurveKind `json:"kind"`
	Length float64   `json:"length"`
	Faces  []FaceID  `json:"faces"`
}

// Body is a read-only view of a solid body.
type Body interface {
	Faces() []Face
	Edges() []Edge
	Volume() (float64, error)
	// PrincipalAxes returns the inertia axes; ok is false when the kernel
	// cannot provide them.
	PrincipalAxes() (axes [3]r3.Vec, ok bool)
	// ExtremePoint returns the point of the body furthest along dir.
	ExtremePoint(dir r3.Vec) (r3.Vec, error)
	// SectionArea cuts the body with the plane through origin with the given
	// normal and returns the total sectioned area.
	SectionArea(origin, normal r3.Vec) (float64, error)
}

// ThicknessBin is one interval of a thickness-analysis histogram.
type ThicknessBin struct {
	Low       float64 `json:"low"`
	High      float64 `json:"high"`
	FaceCount int     `json:"face_count"`
	AreaShare float64 `json:"area_share"`
}

// ThicknessHost is the kernel's thickness-analysis capability.
type ThicknessHost interface {
	// Reset reinitializes analysis state. It discards the body context, so
	// callers only use it before a coarse scan.
	Reset() error
	// Bins analyses thickness over [min, max] split into n intervals. The last
	// interval is open-ended and collects everything at or above its low bound.
	Bins(ctx context.Context, min, max float64, n int) ([]ThicknessBin, error)
}

// FeatureKind names the feature types the engine inspects.
type FeatureKind string

const (
	FeatureSheetMetal  FeatureKind = "sheet_metal"
	FeatureFlatPattern FeatureKind = "flat_pattern"
	FeatureBends       FeatureKind = "bends"
	FeatureOther       FeatureKind = "other"
)

// BendParams are the numeric arguments of a sheet-metal insert.
type BendParams struct {
	Thickness float64 `json:"thickness"`
	Radius    float64 `json:"radius"`
	KFactor   float64 `json:"k_factor"`
}

// Feature is one entry of the document's feature history.
type Feature struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	Kind       FeatureKind `json:"kind"`
	Suppressed bool        `json:"suppressed"`
	Params     BendParams  `json:"params"`
}

// Selection is the set of entities passed to an insert operation. Mark is the
// tracking mark the kernel uses to tell base faces from rip edges.
type Selection struct {
	Faces []FaceID `json:"faces,omitempty"`
	Edges []EdgeID `json:"edges,omitempty"`
	Mark  int      `json:"mark"`
}

// Empty reports whether nothing is selected.
func (s Selection) Empty() bool {
	return len(s.Faces) == 0 && len(s.Edges) == 0
}

// Selection marks.
const (
	MarkBaseFace = 0
	MarkRipEdge  = 1
	MarkBendEdge = 2
)

// FlatState is the fold state of a sheet-metal part.
type FlatState string

const (
	FlatFormed    FlatState = "formed"
	FlatFlattened FlatState = "flattened"
	FlatUnknown   FlatState = "unknown"
)

// Capabilities is what a kernel version supports. A provider reports it once
// and components consult the resolved value instead of probing per call.
type Capabilities struct {
	Version           int  `json:"version"`
	PrincipalAxes     bool `json:"principal_axes"`
	ThicknessAnalysis bool `json:"thickness_analysis"`
	Sectioning        bool `json:"sectioning"`
	DirectFlatState   bool `json:"direct_flat_state"`
}

// Document is the mutable model that owns a part's bodies and feature history.
// Only one caller mutates a document at a time.
type Document interface {
	Capabilities() Capabilities

	// SolidBodies returns fresh body views; previously returned handles are
	// invalid after any history change.
	SolidBodies() []Body
	SurfaceBodyCount() int
	// ThicknessHost returns nil when analysis is unavailable.
	ThicknessHost() ThicknessHost

	Features() []Feature
	Bookmark() domain.FeatureBookmark
	// TruncateAfter deletes every feature after the bookmark, newest first.
	TruncateAfter(b domain.FeatureBookmark) error

	InsertSheetMetal(sel Selection, p BendParams) error
	InsertBends(sel Selection, p BendParams) error
	SetFeatureParams(id int64, p BendParams) error
	SetSuppressed(id int64, suppressed bool) error

	FlatState() FlatState
	SetFlatState(s FlatState) error

	Rebuild(force bool) error
	Save() error
}

// FindFeature returns the last feature of the given kind.
func FindFeature(doc Document, kind FeatureKind) (Feature, bool) {
	features := doc.Features()
	for i := len(features) - 1; i >= 0; i-- {
		if features[i].Kind == kind {
			return features[i], true
		}
	}
	return Feature{}, false
}

// PrimaryBody returns the first solid body, or ErrNoSolidBody.
func PrimaryBody(doc Document) (Body, error) {
	bodies := doc.SolidBodies()
	if len(bodies) == 0 {
		return nil, domain.ErrNoSolidBody
	}
	return bodies[0], nil
}

// TotalArea sums the area of all faces.
func TotalArea(faces []Face) float64 {
	var total float64
	for _, f := range faces {
		total += f.Area
	}
	return total
}

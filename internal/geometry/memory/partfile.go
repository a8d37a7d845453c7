package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry"
)

// vec decodes a JSON [x, y, z] array.
type vec [3]float64

func (v vec) r3() r3.Vec { return r3.Vec{X: v[0], Y: v[1], Z: v[2]} }

// PartFile is the JSON description of an exported, pre-analysed part.
type PartFile struct {
	Name          string                 `json:"name"`
	Configuration string                 `json:"configuration"`
	Capabilities  *geometry.Capabilities `json:"capabilities,omitempty"`
	SurfaceBodies int                    `json:"surface_bodies"`
	Solids        []SolidFile            `json:"solids"`
	Features      []FeatureFile          `json:"features"`
	Fail          []FailFile             `json:"fail,omitempty"`
}

// SolidFile describes one solid body.
type SolidFile struct {
	Volume           float64      `json:"volume"`
	Axes             []vec        `json:"axes,omitempty"`
	Vertices         []vec        `json:"vertices"`
	Faces            []FaceFile   `json:"faces"`
	Edges            []EdgeFile   `json:"edges"`
	SectionProfile   [][2]float64 `json:"section_profile,omitempty"`
	ThicknessSamples []SampleFile `json:"thickness_samples,omitempty"`
	NominalThickness float64      `json:"nominal_thickness,omitempty"`
}

// FaceFile describes one face. Adjacency is declared on the edges.
type FaceFile struct {
	Kind   geometry.SurfaceKind `json:"kind"`
	Area   float64              `json:"area"`
	Normal vec                  `json:"normal"`
	Origin vec                  `json:"origin"`
	Axis   vec                  `json:"axis"`
	Radius float64              `json:"radius"`
}

// EdgeFile describes one edge; faces index into the solid's face list.
type EdgeFile struct {
	Kind   geometry.CurveKind `json:"kind"`
	Length float64            `json:"length"`
	Faces  []int              `json:"faces"`
}

// SampleFile is a thickness sample.
type SampleFile struct {
	Thickness float64 `json:"thickness"`
	Area      float64 `json:"area"`
}

// FeatureFile is a pre-existing feature in the part's history.
type FeatureFile struct {
	Name      string               `json:"name"`
	Kind      geometry.FeatureKind `json:"kind"`
	Thickness float64              `json:"thickness,omitempty"`
}

// FailFile scripts a kernel refusal for one insert operation.
type FailFile struct {
	Op      Op     `json:"op"`
	Message string `json:"message"`
}

// LoadFile reads and decodes a part file.
func LoadFile(path string) (*Model, *PartFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read part file: %w", err)
	}
	return Decode(data)
}

// Decode builds a model from part-file JSON.
func Decode(data []byte) (*Model, *PartFile, error) {
	var pf PartFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, nil, domain.WrapEngineError(domain.ErrInvalidPart.Code, "parse part JSON", err)
	}
	m, err := pf.Model()
	if err != nil {
		return nil, nil, err
	}
	return m, &pf, nil
}

// Model converts the file description into a document.
func (pf *PartFile) Model() (*Model, error) {
	solids := make([]*Solid, 0, len(pf.Solids))
	for i, sf := range pf.Solids {
		s, err := sf.solid()
		if err != nil {
			return nil, domain.WrapEngineError(domain.ErrInvalidPart.Code, fmt.Sprintf("solid %d", i), err)
		}
		solids = append(solids, s)
	}

	m := NewModel(solids...)
	m.Name = pf.Name
	m.SetSurfaceBodies(pf.SurfaceBodies)
	if pf.Capabilities != nil {
		m.SetCapabilities(*pf.Capabilities)
	}
	for _, f := range pf.Features {
		kind := f.Kind
		if kind == "" {
			kind = geometry.FeatureOther
		}
		m.AddFeature(f.Name, kind, geometry.BendParams{Thickness: f.Thickness})
	}
	if len(pf.Fail) > 0 {
		failing := make(map[Op]string)
		for _, f := range pf.Fail {
			failing[f.Op] = f.Message
		}
		m.Kernel.Insert = func(op Op, sel geometry.Selection, p geometry.BendParams) Outcome {
			if msg, ok := failing[op]; ok {
				return Outcome{Err: fmt.Errorf("%s", msg)}
			}
			return DefaultHook(op, sel, p)
		}
	}
	return m, nil
}

func (sf SolidFile) solid() (*Solid, error) {
	s := &Solid{
		Volume:           sf.Volume,
		NominalThickness: sf.NominalThickness,
	}
	if len(sf.Axes) == 3 {
		s.Axes = &[3]r3.Vec{sf.Axes[0].r3(), sf.Axes[1].r3(), sf.Axes[2].r3()}
	}
	for _, v := range sf.Vertices {
		s.Vertices = append(s.Vertices, v.r3())
	}
	for _, f := range sf.Faces {
		s.Faces = append(s.Faces, FaceSpec{
			Kind:   f.Kind,
			Area:   f.Area,
			Normal: f.Normal.r3(),
			Origin: f.Origin.r3(),
			Axis:   f.Axis.r3(),
			Radius: f.Radius,
		})
	}
	for i, e := range sf.Edges {
		s.Edges = append(s.Edges, EdgeSpec{Kind: e.Kind, Length: e.Length})
		for _, fi := range e.Faces {
			if fi < 0 || fi >= len(s.Faces) {
				return nil, fmt.Errorf("edge %d references face %d of %d", i, fi, len(s.Faces))
			}
			s.Link(fi, i)
		}
	}
	for _, smp := range sf.ThicknessSamples {
		s.Samples = append(s.Samples, Sample{Thickness: smp.Thickness, Area: smp.Area})
	}
	if len(sf.SectionProfile) > 0 {
		s.Section = profileSection(sf.SectionProfile)
	}
	return s, nil
}

// profileSection interpolates a [[at, area], ...] profile linearly.
func profileSection(profile [][2]float64) SectionFunc {
	pts := make([][2]float64, len(profile))
	copy(pts, profile)
	sort.Slice(pts, func(i, j int) bool { return pts[i][0] < pts[j][0] })
	return func(_ r3.Vec, at float64) (float64, error) {
		if at <= pts[0][0] {
			return pts[0][1], nil
		}
		for i := 1; i < len(pts); i++ {
			if at <= pts[i][0] {
				a, b := pts[i-1], pts[i]
				span := b[0] - a[0]
				if span <= 0 {
					return b[1], nil
				}
				f := (at - a[0]) / span
				return a[1] + f*(b[1]-a[1]), nil
			}
		}
		return pts[len(pts)-1][1], nil
	}
}

// File describes s as a part-file solid. Section functions cannot be
// serialized; set SectionProfile on the result when the section varies.
func (s *Solid) File() SolidFile {
	sf := SolidFile{
		Volume:           s.Volume,
		NominalThickness: s.NominalThickness,
	}
	if s.Axes != nil {
		for _, a := range s.Axes {
			sf.Axes = append(sf.Axes, toVec(a))
		}
	}
	for _, v := range s.Vertices {
		sf.Vertices = append(sf.Vertices, toVec(v))
	}
	for _, f := range s.Faces {
		sf.Faces = append(sf.Faces, FaceFile{
			Kind:   f.Kind,
			Area:   f.Area,
			Normal: toVec(f.Normal),
			Origin: toVec(f.Origin),
			Axis:   toVec(f.Axis),
			Radius: f.Radius,
		})
	}
	for _, e := range s.Edges {
		sf.Edges = append(sf.Edges, EdgeFile{Kind: e.Kind, Length: e.Length, Faces: append([]int(nil), e.Faces...)})
	}
	for _, smp := range s.Samples {
		sf.ThicknessSamples = append(sf.ThicknessSamples, SampleFile{Thickness: smp.Thickness, Area: smp.Area})
	}
	return sf
}

func toVec(v r3.Vec) vec { return vec{v.X, v.Y, v.Z} }

// NewPartFile describes the given solids as a part file.
func NewPartFile(name string, solids ...*Solid) *PartFile {
	pf := &PartFile{Name: name, Configuration: DefaultConfiguration}
	for _, s := range solids {
		pf.Solids = append(pf.Solids, s.File())
	}
	return pf
}

// DefaultConfiguration names the configuration of generated part files.
const DefaultConfiguration = "Default"

// FixtureNames lists the sample parts Fixture knows.
var FixtureNames = []string{"plate", "sheet", "block", "tube", "rolled"}

// Fixture returns a named sample part file.
func Fixture(name string) (*PartFile, error) {
	switch name {
	case "plate":
		return NewPartFile(name, Plate(10, 5, 0.1)), nil
	case "sheet":
		w, h, t := 10.0, 5.0, 0.1
		pf := NewPartFile(name, SheetPart(w, h, t))
		// The cutout spans 0.6..0.9 of the length.
		pf.Solids[0].SectionProfile = [][2]float64{{0, h * t}, {0.55, h * t}, {0.6, 0.8 * h * t}, {1, 0.8 * h * t}}
		return pf, nil
	case "block":
		return NewPartFile(name, Block(4, 3, 2)), nil
	case "tube":
		return NewPartFile(name, Tube(40, 1, 0.1)), nil
	case "rolled":
		return NewPartFile(name, RolledShell(30, 40, 0.25)), nil
	}
	return nil, domain.NewEngineError(domain.ErrInvalidPart.Code, fmt.Sprintf("unknown fixture %q", name))
}

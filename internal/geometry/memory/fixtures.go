package memory

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ttsmith21/sheetmetal-engine/internal/geometry"
)

var (
	axisX = r3.Vec{X: 1}
	axisY = r3.Vec{Y: 1}
	axisZ = r3.Vec{Z: 1}
)

// Plate is a w×h×t rectangular plate centred on the origin, thickness along Z.
// Its section is constant in every direction, so the funnel sees it as bar stock.
func Plate(w, h, t float64) *Solid {
	s := &Solid{
		Volume:           w * h * t,
		Axes:             &[3]r3.Vec{axisX, axisY, axisZ},
		Vertices:         boxVertices(w, h, t),
		NominalThickness: t,
	}
	s.Faces = []FaceSpec{
		{Kind: geometry.SurfacePlane, Area: w * h, Normal: axisZ, Origin: r3.Vec{Z: t / 2}},
		{Kind: geometry.SurfacePlane, Area: w * h, Normal: r3.Scale(-1, axisZ), Origin: r3.Vec{Z: -t / 2}},
		{Kind: geometry.SurfacePlane, Area: h * t, Normal: axisX, Origin: r3.Vec{X: w / 2}},
		{Kind: geometry.SurfacePlane, Area: h * t, Normal: r3.Scale(-1, axisX), Origin: r3.Vec{X: -w / 2}},
		{Kind: geometry.SurfacePlane, Area: w * t, Normal: axisY, Origin: r3.Vec{Y: h / 2}},
		{Kind: geometry.SurfacePlane, Area: w * t, Normal: r3.Scale(-1, axisY), Origin: r3.Vec{Y: -h / 2}},
	}
	boxEdges(s, w, h, t)
	s.Samples = []Sample{
		{Thickness: t, Area: 2 * w * h},
		{Thickness: w, Area: 2 * h * t},
		{Thickness: h, Area: 2 * w * t},
	}
	return s
}

// SheetPart is a plate with an off-centre rectangular cutout, so sections
// across its length differ.
func SheetPart(w, h, t float64) *Solid {
	s := Plate(w, h, t)
	hw, hh := 0.3*w, 0.2*h
	hole := hw * hh

	s.Volume -= hole * t
	s.Faces[0].Area -= hole
	s.Faces[1].Area -= hole
	cx := 0.25 * w
	walls := []FaceSpec{
		{Kind: geometry.SurfacePlane, Area: hh * t, Normal: axisX, Origin: r3.Vec{X: cx - hw/2}},
		{Kind: geometry.SurfacePlane, Area: hh * t, Normal: r3.Scale(-1, axisX), Origin: r3.Vec{X: cx + hw/2}},
		{Kind: geometry.SurfacePlane, Area: hw * t, Normal: axisY, Origin: r3.Vec{X: cx, Y: -hh / 2}},
		{Kind: geometry.SurfacePlane, Area: hw * t, Normal: r3.Scale(-1, axisY), Origin: r3.Vec{X: cx, Y: hh / 2}},
	}
	for i, wall := range walls {
		fi := len(s.Faces)
		s.Faces = append(s.Faces, wall)
		length := hh
		if i >= 2 {
			length = hw
		}
		for _, side := range []int{0, 1} {
			ei := len(s.Edges)
			s.Edges = append(s.Edges, EdgeSpec{Kind: geometry.CurveLine, Length: length})
			s.Link(fi, ei)
			s.Link(side, ei)
		}
	}
	s.Samples[0].Area = 2 * (w*h - hole)
	s.Samples = append(s.Samples, Sample{Thickness: hw, Area: 2 * hh * t}, Sample{Thickness: hh, Area: 2 * hw * t})

	lo, hi := (cx-hw/2+w/2)/w, (cx+hw/2+w/2)/w
	s.Section = func(n r3.Vec, at float64) (float64, error) {
		if math.Abs(r3.Dot(n, axisX)) > 0.9 {
			if at >= lo && at <= hi {
				return (h - hh) * t, nil
			}
			return h * t, nil
		}
		extent := math.Abs(n.X)*w + math.Abs(n.Y)*h + math.Abs(n.Z)*t
		return s.Volume / extent, nil
	}
	return s
}

// Block is a solid a×b×c box.
func Block(a, b, c float64) *Solid {
	s := Plate(a, b, c)
	s.NominalThickness = 0
	s.Samples = []Sample{
		{Thickness: c, Area: 2 * a * b},
		{Thickness: a, Area: 2 * b * c},
		{Thickness: b, Area: 2 * a * c},
	}
	return s
}

// Tube is a closed round tube along Z.
func Tube(length, outerRadius, wall float64) *Solid {
	r := outerRadius - wall
	R := outerRadius
	s := &Solid{
		Volume:           math.Pi * (R*R - r*r) * length,
		Axes:             &[3]r3.Vec{axisZ, axisX, axisY},
		Vertices:         ringVertices(R, length),
		NominalThickness: wall,
	}
	annulus := math.Pi * (R*R - r*r)
	s.Faces = []FaceSpec{
		{Kind: geometry.SurfaceCylinder, Area: 2 * math.Pi * R * length, Axis: axisZ, Radius: R},
		{Kind: geometry.SurfaceCylinder, Area: 2 * math.Pi * r * length, Axis: axisZ, Radius: r},
		{Kind: geometry.SurfacePlane, Area: annulus, Normal: axisZ, Origin: r3.Vec{Z: length / 2}},
		{Kind: geometry.SurfacePlane, Area: annulus, Normal: r3.Scale(-1, axisZ), Origin: r3.Vec{Z: -length / 2}},
	}
	s.Edges = []EdgeSpec{
		{Kind: geometry.CurveCircle, Length: 2 * math.Pi * R},
		{Kind: geometry.CurveCircle, Length: 2 * math.Pi * R},
		{Kind: geometry.CurveCircle, Length: 2 * math.Pi * r},
		{Kind: geometry.CurveCircle, Length: 2 * math.Pi * r},
		{Kind: geometry.CurveLine, Length: length},
		{Kind: geometry.CurveLine, Length: length},
	}
	for _, l := range [][2]int{{0, 0}, {2, 0}, {0, 1}, {3, 1}, {1, 2}, {2, 2}, {1, 3}, {3, 3}, {0, 4}, {1, 5}} {
		s.Link(l[0], l[1])
	}
	s.Samples = []Sample{
		{Thickness: wall, Area: s.Faces[0].Area + s.Faces[1].Area},
		{Thickness: length, Area: 2 * annulus},
	}
	return s
}

// RolledShell is a rolled sheet cylinder of the given outer diameter with a
// thin longitudinal slit.
func RolledShell(diameter, length, t float64) *Solid {
	R := diameter / 2
	r := R - t
	const open = 0.99
	s := &Solid{
		Volume:           open * math.Pi * (R*R - r*r) * length,
		Axes:             &[3]r3.Vec{axisZ, axisX, axisY},
		Vertices:         ringVertices(R, length),
		NominalThickness: t,
	}
	end := open * math.Pi * (R*R - r*r)
	s.Faces = []FaceSpec{
		{Kind: geometry.SurfaceCylinder, Area: open * 2 * math.Pi * R * length, Axis: axisZ, Radius: R},
		{Kind: geometry.SurfaceCylinder, Area: open * 2 * math.Pi * r * length, Axis: axisZ, Radius: r},
		{Kind: geometry.SurfacePlane, Area: end, Normal: axisZ, Origin: r3.Vec{Z: length / 2}},
		{Kind: geometry.SurfacePlane, Area: end, Normal: r3.Scale(-1, axisZ), Origin: r3.Vec{Z: -length / 2}},
		{Kind: geometry.SurfacePlane, Area: length * t, Normal: axisY, Origin: r3.Vec{X: R - t/2}},
		{Kind: geometry.SurfacePlane, Area: length * t, Normal: r3.Scale(-1, axisY), Origin: r3.Vec{X: R - t/2, Y: 0.01}},
	}
	s.Edges = []EdgeSpec{
		{Kind: geometry.CurveArc, Length: open * 2 * math.Pi * R},
		{Kind: geometry.CurveArc, Length: open * 2 * math.Pi * R},
		{Kind: geometry.CurveArc, Length: open * 2 * math.Pi * r},
		{Kind: geometry.CurveArc, Length: open * 2 * math.Pi * r},
		{Kind: geometry.CurveLine, Length: length},
		{Kind: geometry.CurveLine, Length: length},
		{Kind: geometry.CurveLine, Length: length},
		{Kind: geometry.CurveLine, Length: length},
	}
	links := [][2]int{
		{0, 0}, {2, 0}, {0, 1}, {3, 1}, {1, 2}, {2, 2}, {1, 3}, {3, 3},
		{0, 4}, {4, 4}, {1, 5}, {4, 5}, {0, 6}, {5, 6}, {1, 7}, {5, 7},
	}
	for _, l := range links {
		s.Link(l[0], l[1])
	}
	s.Samples = []Sample{
		{Thickness: t, Area: s.Faces[0].Area + s.Faces[1].Area},
		{Thickness: length, Area: 2 * end},
		{Thickness: 2 * math.Pi * R * (1 - open), Area: 2 * length * t},
	}
	return s
}

func boxVertices(w, h, t float64) []r3.Vec {
	var out []r3.Vec
	for _, x := range []float64{-w / 2, w / 2} {
		for _, y := range []float64{-h / 2, h / 2} {
			for _, z := range []float64{-t / 2, t / 2} {
				out = append(out, r3.Vec{X: x, Y: y, Z: z})
			}
		}
	}
	return out
}

// boxEdges adds the 12 edges of a box whose faces are ordered
// +z, -z, +x, -x, +y, -y.
func boxEdges(s *Solid, w, h, t float64) {
	pairs := []struct {
		a, b   int
		length float64
	}{
		{0, 4, w}, {0, 5, w}, {0, 2, h}, {0, 3, h},
		{1, 4, w}, {1, 5, w}, {1, 2, h}, {1, 3, h},
		{2, 4, t}, {2, 5, t}, {3, 4, t}, {3, 5, t},
	}
	for _, p := range pairs {
		ei := len(s.Edges)
		s.Edges = append(s.Edges, EdgeSpec{Kind: geometry.CurveLine, Length: p.length})
		s.Link(p.a, ei)
		s.Link(p.b, ei)
	}
}

func ringVertices(radius, length float64) []r3.Vec {
	var out []r3.Vec
	for i := 0; i < 8; i++ {
		th := float64(i) * math.Pi / 4
		for _, z := range []float64{-length / 2, length / 2} {
			out = append(out, r3.Vec{X: radius * math.Cos(th), Y: radius * math.Sin(th), Z: z})
		}
	}
	return out
}

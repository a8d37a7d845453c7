package geometry

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// ParallelTolerance is how far |n1·n2| may fall below 1 for two planar faces
// to count as a wall pair.
const ParallelTolerance = 0.05

// PlanarPair is two near-parallel planar faces bounding a wall.
type PlanarPair struct {
	A, B       Face
	Separation float64
	// Parallelism is |nA·nB|.
	Parallelism float64
	Score       float64
}

// Base returns the larger face of the pair.
func (p PlanarPair) Base() Face {
	if p.B.Area > p.A.Area {
		return p.B
	}
	return p.A
}

// MinArea returns the smaller face area.
func (p PlanarPair) MinArea() float64 {
	return math.Min(p.A.Area, p.B.Area)
}

// BestPlanarPair finds the pair of near-parallel planar faces that maximizes
// the smaller face's area, penalized by how far the pair is from parallel.
// Ties go to the thinner separation.
func BestPlanarPair(faces []Face) (PlanarPair, bool) {
	planes := make([]Face, 0, len(faces))
	for _, f := range faces {
		if f.Kind == SurfacePlane && f.Area > 0 && r3.Norm(f.Normal) > 0 {
			planes = append(planes, f)
		}
	}

	var best PlanarPair
	found := false
	for i := 0; i < len(planes); i++ {
		ni := r3.Unit(planes[i].Normal)
		for j := i + 1; j < len(planes); j++ {
			nj := r3.Unit(planes[j].Normal)
			par := math.Abs(r3.Dot(ni, nj))
			if par < 1-ParallelTolerance {
				continue
			}
			sep := math.Abs(r3.Dot(ni, r3.Sub(planes[j].Origin, planes[i].Origin)))
			if sep <= 1e-9 {
				continue
			}
			penalty := 1 - 0.5*(1-par)/ParallelTolerance
			score := math.Min(planes[i].Area, planes[j].Area) * penalty
			cand := PlanarPair{A: planes[i], B: planes[j], Separation: sep, Parallelism: par, Score: score}
			if !found || score > best.Score+1e-12 ||
				(math.Abs(score-best.Score) <= 1e-12 && sep < best.Separation) {
				best = cand
				found = true
			}
		}
	}
	return best, found
}

// CoaxialAngleDeg is the default angle within which two cylinder axes are
// treated as shared.
const CoaxialAngleDeg = 2.6

// Shell is a group of coaxial cylindrical faces with at least two radii.
type Shell struct {
	Axis        r3.Vec
	OuterRadius float64
	InnerRadius float64
	Wall        float64
	Area        float64
	Faces       int
}

// WallRatio is wall thickness over outer radius.
func (s Shell) WallRatio() float64 {
	if s.OuterRadius <= 0 {
		return 0
	}
	return s.Wall / s.OuterRadius
}

// CoaxialShell groups cylindrical faces sharing an axis within angleDeg and
// returns the group with the most area whose two largest distinct radii give
// the wall thickness.
func CoaxialShell(faces []Face, angleDeg float64) (Shell, bool) {
	cyl := make([]Face, 0, len(faces))
	for _, f := range faces {
		if f.Kind == SurfaceCylinder && f.Radius > 0 && r3.Norm(f.Axis) > 0 {
			cyl = append(cyl, f)
		}
	}
	sort.SliceStable(cyl, func(i, j int) bool { return cyl[i].Area > cyl[j].Area })

	cosTol := math.Cos(angleDeg * math.Pi / 180)
	used := make([]bool, len(cyl))
	var best Shell
	found := false

	for i := range cyl {
		if used[i] {
			continue
		}
		axis := r3.Unit(cyl[i].Axis)
		group := []Face{cyl[i]}
		used[i] = true
		for j := i + 1; j < len(cyl); j++ {
			if used[j] {
				continue
			}
			if math.Abs(r3.Dot(axis, r3.Unit(cyl[j].Axis))) < cosTol {
				continue
			}
			// Origins must lie on the same axis line.
			off := r3.Norm(r3.Cross(r3.Sub(cyl[j].Origin, cyl[i].Origin), axis))
			if off > 1e-3+0.01*math.Max(cyl[i].Radius, cyl[j].Radius) {
				continue
			}
			group = append(group, cyl[j])
			used[j] = true
		}
		if len(group) < 2 {
			continue
		}

		radii := distinctRadii(group)
		if len(radii) < 2 {
			continue
		}
		var area float64
		for _, f := range group {
			area += f.Area
		}
		s := Shell{
			Axis:        axis,
			OuterRadius: radii[0],
			InnerRadius: radii[1],
			Wall:        radii[0] - radii[1],
			Area:        area,
			Faces:       len(group),
		}
		if !found || s.Area > best.Area {
			best = s
			found = true
		}
	}
	return best, found
}

// distinctRadii returns radii sorted descending with near-duplicates merged.
func distinctRadii(faces []Face) []float64 {
	rs := make([]float64, 0, len(faces))
	for _, f := range faces {
		rs = append(rs, f.Radius)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(rs)))
	out := rs[:1]
	for _, r := range rs[1:] {
		if out[len(out)-1]-r > 1e-6 {
			out = append(out, r)
		}
	}
	return out
}

// LargestFace returns the largest face of the given kind.
func LargestFace(faces []Face, kind SurfaceKind) (Face, bool) {
	var best Face
	found := false
	for _, f := range faces {
		if f.Kind != kind {
			continue
		}
		if !found || f.Area > best.Area {
			best = f
			found = true
		}
	}
	return best, found
}

// LinearEdges returns the linear edges bounding face, longest first. A zero
// face ID matches every edge.
func LinearEdges(edges []Edge, face FaceID) []Edge {
	var out []Edge
	for _, e := range edges {
		if e.Kind != CurveLine {
			continue
		}
		if face != 0 && !containsFace(e.Faces, face) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Length > out[j].Length })
	return out
}

// LongestLinearEdgeOn returns the longest linear edge adjacent to any face of
// the given kind.
func LongestLinearEdgeOn(faces []Face, edges []Edge, kind SurfaceKind) (Edge, bool) {
	ofKind := make(map[FaceID]bool)
	for _, f := range faces {
		if f.Kind == kind {
			ofKind[f.ID] = true
		}
	}
	var best Edge
	found := false
	for _, e := range edges {
		if e.Kind != CurveLine {
			continue
		}
		adjacent := false
		for _, id := range e.Faces {
			if ofKind[id] {
				adjacent = true
				break
			}
		}
		if !adjacent {
			continue
		}
		if !found || e.Length > best.Length {
			best = e
			found = true
		}
	}
	return best, found
}

func containsFace(ids []FaceID, id FaceID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

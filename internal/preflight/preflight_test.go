package preflight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry/memory"
)

func cleanFacts() Facts {
	return Facts{
		SolidBodies:    1,
		SurfaceBodies:  0,
		Volume:         12.5,
		Edges:          80,
		NonLinearEdges: 10,
		MicroFaces:     2,
		TotalArea:      100,
	}
}

func TestEvaluateClean(t *testing.T) {
	res := Evaluate(cleanFacts())
	assert.False(t, res.IsProblem)
	assert.Empty(t, res.Reason)
	assert.Equal(t, 80, res.Counts.Edges)
}

func TestEvaluateHardRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Facts)
		reason string
	}{
		{"no bodies", func(f *Facts) { f.SolidBodies = 0 }, "No bodies"},
		{"surface only", func(f *Facts) { f.SolidBodies, f.SurfaceBodies = 0, 2 }, "Surface bodies only"},
		{"two solids", func(f *Facts) { f.SolidBodies = 2 }, "Multiple solid bodies"},
		{"mixed", func(f *Facts) { f.SurfaceBodies = 1 }, "Mixed solid and surface"},
		{"zero volume", func(f *Facts) { f.Volume = 0 }, "volume"},
		{"negative volume", func(f *Facts) { f.Volume = -1 }, "volume"},
		{"helix", func(f *Facts) { f.HasHelix = true }, "Helical"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := cleanFacts()
			tt.mutate(&f)
			// Hard rejects ignore an existing sheet-metal feature.
			f.HasSheetMetal = true
			res := Evaluate(f)
			assert.True(t, res.IsProblem)
			assert.True(t, res.Hard)
			assert.Contains(t, res.Reason, tt.reason)
		})
	}
}

func TestEvaluateSoftRejects(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Facts)
		sheetMetal bool
		problem    bool
	}{
		{"non-linear ratio", func(f *Facts) { f.NonLinearEdges = 40 }, false, true},
		{"non-linear ratio below edge floor", func(f *Facts) { f.Edges, f.NonLinearEdges = 49, 49 }, false, false},
		{"non-linear ratio on sheet metal", func(f *Facts) { f.NonLinearEdges = 40 }, true, false},
		{"micro faces", func(f *Facts) { f.MicroFaces = 20 }, false, true},
		{"micro faces on tiny part", func(f *Facts) { f.MicroFaces, f.TotalArea = 20, 5*domain.MM2 }, false, false},
		{"micro faces on sheet metal", func(f *Facts) { f.MicroFaces = 25 }, true, false},
		{"knife edges", func(f *Facts) { f.KnifeEdges = 50 }, false, true},
		{"knife edges on sheet metal", func(f *Facts) { f.KnifeEdges = 50 }, true, true},
		{"knife edges below limit", func(f *Facts) { f.KnifeEdges = 49 }, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := cleanFacts()
			tt.mutate(&f)
			f.HasSheetMetal = tt.sheetMetal
			res := Evaluate(f)
			assert.Equal(t, tt.problem, res.IsProblem, res.Reason)
			assert.False(t, res.Hard)
		})
	}
}

func TestEvaluateJoinsSoftReasons(t *testing.T) {
	f := cleanFacts()
	f.MicroFaces = 30
	f.KnifeEdges = 60
	res := Evaluate(f)
	assert.Contains(t, res.Reason, "micro faces")
	assert.Contains(t, res.Reason, "knife edges")
}

func TestGather(t *testing.T) {
	s := memory.Plate(10, 5, 0.1)
	s.Edges = append(s.Edges,
		memory.EdgeSpec{Kind: geometry.CurveSpline, Length: 1},
		memory.EdgeSpec{Kind: geometry.CurveLine, Length: 0.001 * domain.MM},
	)
	m := memory.NewModel(s)
	m.AddFeature("Sheet-Metal1", geometry.FeatureSheetMetal, geometry.BendParams{Thickness: 0.1})

	f, err := Gather(m)
	require.NoError(t, err)
	assert.Equal(t, 1, f.SolidBodies)
	assert.InDelta(t, 5.0, f.Volume, 1e-9)
	assert.Equal(t, 14, f.Edges)
	assert.Equal(t, 1, f.NonLinearEdges)
	assert.Equal(t, 1, f.KnifeEdges)
	assert.False(t, f.HasHelix)
	assert.True(t, f.HasSheetMetal)
}

func TestGatherHelix(t *testing.T) {
	s := memory.Tube(10, 1, 0.1)
	s.Edges[4].Kind = geometry.CurveHelix
	res, err := Check(memory.NewModel(s))
	require.NoError(t, err)
	assert.True(t, res.Hard)
	assert.Contains(t, res.Reason, "Helical")
}

func TestCheckMultipleSolids(t *testing.T) {
	res, err := Check(memory.NewModel(memory.Plate(1, 1, 0.1), memory.Plate(2, 2, 0.1)))
	require.NoError(t, err)
	assert.True(t, res.IsProblem)
	assert.Contains(t, res.Reason, "Multiple solid bodies")
}

func TestGatherNilDocument(t *testing.T) {
	_, err := Gather(nil)
	assert.ErrorIs(t, err, domain.ErrNilDocument)
}

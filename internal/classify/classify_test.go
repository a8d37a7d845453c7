package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry/memory"
	"github.com/ttsmith21/sheetmetal-engine/internal/thickness"
)

func metricsWith(developable, side, capShare float64, spans [3]float64) domain.PrepassMetrics {
	var m domain.PrepassMetrics
	m.TotalArea = 1
	m.DevelopableArea = developable
	m.Axes[0].SideArea = side
	m.Axes[0].CapArea = capShare
	m.Spans = spans
	return m
}

func boolPtr(b bool) *bool { return &b }

func TestDecideLargeDiameterOverride(t *testing.T) {
	ev := Evidence{
		Metrics:         metricsWith(1.0, 0.98, 0.01, [3]float64{40, 30, 30}),
		Thickness:       domain.ThicknessEstimate{Thickness: 0.25, Coverage: 0.9},
		ConstantSection: boolPtr(true),
	}
	res := Decide(ev, DefaultThresholds())
	assert.Equal(t, domain.PileSheetMetal, res.Pile)
	assert.Contains(t, res.Reason, "large diameter")
}

func TestDecideStickRequiresConstantSection(t *testing.T) {
	ev := Evidence{
		Metrics:         metricsWith(1.0, 0.98, 0.01, [3]float64{10, 0.5, 0.5}),
		Thickness:       domain.ThicknessEstimate{Thickness: 0.3, Coverage: 0.8},
		ConstantSection: boolPtr(false),
	}
	res := Decide(ev, DefaultThresholds())
	assert.Equal(t, domain.PileOther, res.Pile)

	ev.ConstantSection = boolPtr(true)
	assert.Equal(t, domain.PileStick, Decide(ev, DefaultThresholds()).Pile)
}

func TestDecideShellFallback(t *testing.T) {
	base := Evidence{
		Metrics:         metricsWith(1.0, 0.99, 0.005, [3]float64{40, 2, 2}),
		Thickness:       domain.ThicknessEstimate{Thickness: 1.5, Coverage: 0.5},
		ConstantSection: boolPtr(false),
		HasShell:        true,
	}
	tests := []struct {
		name  string
		ratio float64
		want  domain.PartPile
	}{
		{"thin shell", 0.1, domain.PileStick},
		{"lower bound", 0.005, domain.PileStick},
		{"too thin", 0.001, domain.PileOther},
		{"too thick", 0.4, domain.PileOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := base
			ev.ShellRatio = tt.ratio
			assert.Equal(t, tt.want, Decide(ev, DefaultThresholds()).Pile)
		})
	}
}

func TestDecideCoverageTiers(t *testing.T) {
	tests := []struct {
		name        string
		developable float64
		coverage    float64
		want        domain.PartPile
	}{
		{"primary", 0.90, 0.70, domain.PileSheetMetal},
		{"below primary", 0.90, 0.69, domain.PileOther},
		{"relaxed", 0.95, 0.10, domain.PileSheetMetal},
		{"relaxed too low", 0.95, 0.09, domain.PileOther},
		{"near total", 0.99, 0.02, domain.PileSheetMetal},
		{"near total too low", 0.99, 0.019, domain.PileOther},
		{"complex", 0.84, 0.99, domain.PileOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Evidence{
				Metrics:   metricsWith(tt.developable, 0.5, 0.3, [3]float64{20, 10, 0.1}),
				Thickness: domain.ThicknessEstimate{Thickness: 0.1, Coverage: tt.coverage},
			}
			assert.Equal(t, tt.want, Decide(ev, DefaultThresholds()).Pile)
		})
	}
}

func TestDecideThinRatio(t *testing.T) {
	ev := Evidence{
		Metrics:   metricsWith(1.0, 0.5, 0.3, [3]float64{20, 10, 3}),
		Thickness: domain.ThicknessEstimate{Thickness: 2.5, Coverage: 0.9},
	}
	res := Decide(ev, DefaultThresholds())
	assert.Equal(t, domain.PileOther, res.Pile)
	assert.InDelta(t, 0.25, res.ThinRatio, 1e-12)
	assert.Contains(t, res.Reason, "thin ratio")

	ev.Thickness = domain.ThicknessEstimate{}
	res = Decide(ev, DefaultThresholds())
	assert.Equal(t, domain.PileOther, res.Pile)
	assert.Equal(t, "no dominant thickness", res.Reason)
}

func TestDecideDeterministic(t *testing.T) {
	ev := Evidence{
		Metrics:         metricsWith(0.97, 0.98, 0.01, [3]float64{12, 6, 0.12}),
		Thickness:       domain.ThicknessEstimate{Thickness: 0.12, Coverage: 0.4},
		ConstantSection: boolPtr(false),
	}
	first := Decide(ev, DefaultThresholds())
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Decide(ev, DefaultThresholds()))
	}
}

func TestClassifyFixtures(t *testing.T) {
	tests := []struct {
		name  string
		solid *memory.Solid
		want  domain.PartPile
	}{
		{"flat bar", memory.Plate(10, 5, 0.1), domain.PileStick},
		{"plate with cutout", memory.SheetPart(10, 5, 0.1), domain.PileSheetMetal},
		{"round tube", memory.Tube(40, 1, 0.1), domain.PileStick},
		{"rolled shell", memory.RolledShell(30, 40, 0.25), domain.PileSheetMetal},
		{"block", memory.Block(4, 3, 2), domain.PileOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := memory.NewModel(tt.solid)
			body, err := geometry.PrimaryBody(m)
			require.NoError(t, err)

			res := testClassifier().Classify(context.Background(), body, m.ThicknessHost())
			assert.Equal(t, tt.want, res.Pile, res.Reason)
		})
	}
}

func TestClassifyWithoutAnalysis(t *testing.T) {
	m := memory.NewModel(memory.SheetPart(10, 5, 0.1))
	caps := m.Capabilities()
	caps.ThicknessAnalysis = false
	m.SetCapabilities(caps)
	body, err := geometry.PrimaryBody(m)
	require.NoError(t, err)

	res := testClassifier().Classify(context.Background(), body, m.ThicknessHost())
	assert.Equal(t, domain.PileSheetMetal, res.Pile)
	assert.Equal(t, domain.SourcePlanarPair, res.Thickness.Source)
	assert.InDelta(t, 0.1, res.Thickness.Thickness, 1e-9)
}

func TestClassifyComplexSkipsAnalysis(t *testing.T) {
	s := memory.Plate(10, 5, 0.1)
	s.Faces[0].Kind = geometry.SurfaceOther
	s.Faces[1].Kind = geometry.SurfaceOther
	m := memory.NewModel(s)
	body, err := geometry.PrimaryBody(m)
	require.NoError(t, err)

	res := testClassifier().Classify(context.Background(), body, m.ThicknessHost())
	assert.Equal(t, domain.PileOther, res.Pile)
	assert.Zero(t, m.Host().Calls())
	assert.Nil(t, res.ConstantSection)
}

func TestShellEstimate(t *testing.T) {
	est := ShellEstimate(geometry.Shell{Wall: 0.1, Area: 60}, 100)
	assert.Equal(t, domain.SourceCoaxialShell, est.Source)
	assert.InDelta(t, 0.6, est.Coverage, 1e-12)
	assert.False(t, ShellEstimate(geometry.Shell{}, 100).Found())
}

func testClassifier() *Classifier {
	cfg := thickness.DefaultConfig()
	cfg.RetryDelay = 0
	return New(DefaultThresholds(), thickness.NewAnalyzer(cfg, nil), nil, nil, nil)
}

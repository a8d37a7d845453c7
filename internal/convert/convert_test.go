package convert

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry/memory"
	"github.com/ttsmith21/sheetmetal-engine/internal/scan"
)

type memSink struct {
	recs []domain.AttemptRecord
}

func (s *memSink) AppendAttempt(_ context.Context, rec domain.AttemptRecord) error {
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memSink) outcomes() []string {
	out := make([]string, len(s.recs))
	for i, r := range s.recs {
		out[i] = r.Outcome
	}
	return out
}

func countPrefix(lines []string, prefix string) int {
	n := 0
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}

func TestOrder(t *testing.T) {
	tests := []struct {
		name  string
		cm    scan.CylinderMetrics
		first domain.StrategyKind
	}{
		{"large rolled", scan.CylinderMetrics{Share: 0.95, Diameter: 30}, domain.StrategyConvertWholeBody},
		{"small rolled", scan.CylinderMetrics{Share: 0.95, Diameter: 10}, domain.StrategyBendOnEdge},
		{"mostly flat", scan.CylinderMetrics{Share: 0.05}, domain.StrategyBendOnEdge},
		{"mixed", scan.CylinderMetrics{Share: 0.5}, domain.StrategyConvertWholeBody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := Order(tt.cm, DefaultConfig())
			require.Len(t, order, 3)
			assert.Equal(t, tt.first, order[0])
			assert.Equal(t, domain.StrategyFaceBasedBend, order[2])
			assert.NotEqual(t, order[0], order[1])
		})
	}
}

func TestVolumeConserved(t *testing.T) {
	tol := DefaultConfig().VolumeTolerance
	assert.True(t, VolumeConserved(100.0, 100.6, tol))
	assert.True(t, VolumeConserved(100.0, 99.7, tol))
	assert.False(t, VolumeConserved(100.0, 80.0, tol))
	assert.False(t, VolumeConserved(100.0, 101.0, tol))
	assert.False(t, VolumeConserved(0, 0, tol))
	assert.False(t, VolumeConserved(0, 5, tol))
	assert.False(t, VolumeConserved(5, 0, tol))
}

func TestClampThickness(t *testing.T) {
	assert.Equal(t, 1.0, ClampThickness(1.5, 1.0))
	assert.Equal(t, 1.0, ClampThickness(1.0, 1.0))
	assert.Equal(t, 0.25, ClampThickness(0.25, 1.0))
}

func TestRunTwoPhaseBend(t *testing.T) {
	m := memory.NewModel(memory.SheetPart(10, 5, 0.1))
	sink := &memSink{}
	cc := &domain.ConversionContext{RunID: "run-1"}

	ok := NewExecutor(DefaultConfig(), sink, nil, nil).Run(context.Background(), m, cc)

	require.True(t, ok, cc.Problem)
	assert.True(t, cc.Success)
	assert.Equal(t, domain.StrategyBendOnEdge, cc.Strategy)
	assert.InDelta(t, 0.1, cc.Thickness, 1e-12)
	assert.InDelta(t, 0.1, cc.BendRadius, 1e-12)
	assert.Equal(t, 0.5, cc.KFactor)
	assert.Equal(t, 1, m.Saves())
	assert.Equal(t, geometry.FlatFlattened, m.FlatState())

	// Probe and commit each insert once; the probe is fully undone.
	log := m.Log()
	assert.Equal(t, 2, countPrefix(log, "bends"))
	assert.Equal(t, 3, countPrefix(log, "delete"))
	assert.Len(t, m.Features(), 3)

	require.Len(t, sink.recs, 1)
	assert.Equal(t, domain.OutcomeSucceeded, sink.recs[0].Outcome)
	assert.Equal(t, "run-1", sink.recs[0].RunID)
	assert.Equal(t, int64(1), sink.recs[0].SeqNo)
}

func TestRunRollbackRestoresFeatureCount(t *testing.T) {
	m := memory.NewModel(memory.SheetPart(10, 5, 0.1))
	m.AddFeature("Boss-Extrude1", geometry.FeatureOther, geometry.BendParams{})
	m.Kernel.Insert = func(memory.Op, geometry.Selection, geometry.BendParams) memory.Outcome {
		return memory.Outcome{Err: errors.New("rebuild error"), Extra: 2}
	}
	sink := &memSink{}
	cc := &domain.ConversionContext{}

	ok := NewExecutor(DefaultConfig(), sink, nil, nil).Run(context.Background(), m, cc)

	assert.False(t, ok)
	assert.False(t, cc.Success)
	features := m.Features()
	require.Len(t, features, 1)
	assert.Equal(t, "Boss-Extrude1", features[0].Name)
	assert.Contains(t, cc.Problem, domain.ErrStrategiesExhausted.Message)
	assert.Equal(t, []string{domain.OutcomeRolledBack, domain.OutcomeRolledBack, domain.OutcomeRolledBack}, sink.outcomes())
	for i, r := range sink.recs {
		assert.Equal(t, int64(i+1), r.SeqNo)
	}
	assert.Zero(t, m.Saves())
}

func TestRunAdvancesAfterVolumeDrift(t *testing.T) {
	m := memory.NewModel(memory.SheetPart(10, 5, 0.1))
	m.Kernel.Insert = func(op memory.Op, _ geometry.Selection, _ geometry.BendParams) memory.Outcome {
		out := memory.Outcome{SheetMetal: true, FlatPattern: true}
		if op == memory.OpConvert {
			out.VolumeFactor = 0.8
		}
		return out
	}
	cfg := DefaultConfig()
	cfg.CylinderSparse = -1
	sink := &memSink{}
	cc := &domain.ConversionContext{}

	ok := NewExecutor(cfg, sink, nil, nil).Run(context.Background(), m, cc)

	require.True(t, ok, cc.Problem)
	assert.Equal(t, domain.StrategyBendOnEdge, cc.Strategy)
	assert.Equal(t, []string{domain.OutcomeRolledBack, domain.OutcomeSucceeded}, sink.outcomes())
	assert.Contains(t, sink.recs[0].Detail, "volume")
	assert.Len(t, m.Features(), 3)
	assert.InDelta(t, cc.InitialVolume, cc.FinalVolume, 1e-9)
}

func TestRunExhaustedClearsResolvedParams(t *testing.T) {
	m := memory.NewModel(memory.SheetPart(10, 5, 0.1))
	m.Kernel.Insert = func(memory.Op, geometry.Selection, geometry.BendParams) memory.Outcome {
		return memory.Outcome{SheetMetal: true, FlatPattern: true, VolumeFactor: 0.8}
	}
	cc := &domain.ConversionContext{}

	ok := NewExecutor(DefaultConfig(), nil, nil, nil).Run(context.Background(), m, cc)

	assert.False(t, ok)
	assert.Contains(t, cc.Problem, "volume")
	assert.Zero(t, cc.Thickness)
	assert.Zero(t, cc.BendRadius)
	assert.Zero(t, cc.KFactor)
	assert.Zero(t, cc.FinalVolume)
	assert.Empty(t, cc.Strategy)
}

func TestRunRolledShellConvertsWholeBody(t *testing.T) {
	m := memory.NewModel(memory.RolledShell(30, 40, 0.25))
	cc := &domain.ConversionContext{}

	ok := NewExecutor(DefaultConfig(), nil, nil, nil).Run(context.Background(), m, cc)

	require.True(t, ok, cc.Problem)
	assert.Equal(t, domain.StrategyConvertWholeBody, cc.Strategy)
	assert.InDelta(t, 0.25, cc.Thickness, 1e-9)
	assert.InDelta(t, 15, cc.BendRadius, 1e-9)
	assert.Equal(t, RolledKFactor, cc.KFactor)
}

func TestRunSmallTubeBendsOnSeam(t *testing.T) {
	m := memory.NewModel(memory.Tube(40, 1, 0.1))
	cc := &domain.ConversionContext{}

	ok := NewExecutor(DefaultConfig(), nil, nil, nil).Run(context.Background(), m, cc)

	require.True(t, ok, cc.Problem)
	assert.Equal(t, domain.StrategyBendOnEdge, cc.Strategy)
	assert.InDelta(t, 0.1, cc.Thickness, 1e-9)
	assert.InDelta(t, 0.15, cc.BendRadius, 1e-9)
	// Seam bends are a single insert, no probe.
	assert.Equal(t, 1, countPrefix(m.Log(), "bends"))
}

func TestRunOverridesAreClamped(t *testing.T) {
	m := memory.NewModel(memory.SheetPart(10, 5, 0.1))
	cc := &domain.ConversionContext{Overrides: domain.Overrides{Thickness: 1.5, KFactor: 0.33}}

	ok := NewExecutor(DefaultConfig(), nil, nil, nil).Run(context.Background(), m, cc)

	require.True(t, ok, cc.Problem)
	assert.Equal(t, 1.0, cc.Thickness)
	assert.Equal(t, 0.33, cc.KFactor)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	m := memory.NewModel(memory.SheetPart(10, 5, 0.1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &memSink{}
	cc := &domain.ConversionContext{}

	ok := NewExecutor(DefaultConfig(), sink, nil, nil).Run(ctx, m, cc)

	assert.False(t, ok)
	assert.Contains(t, cc.Problem, "cancelled")
	assert.Empty(t, m.Features())
	assert.Equal(t, []string{domain.OutcomeCancelled}, sink.outcomes())
}

func TestRunCancellationWaitsForStrategy(t *testing.T) {
	m := memory.NewModel(memory.SheetPart(10, 5, 0.1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Kernel.Insert = func(memory.Op, geometry.Selection, geometry.BendParams) memory.Outcome {
		cancel()
		return memory.Outcome{Err: errors.New("kernel busy")}
	}
	sink := &memSink{}
	cc := &domain.ConversionContext{}

	ok := NewExecutor(DefaultConfig(), sink, nil, nil).Run(ctx, m, cc)

	assert.False(t, ok)
	log := m.Log()
	assert.Equal(t, 1, countPrefix(log, "bends"))
	assert.Zero(t, countPrefix(log, "convert"))
	assert.Equal(t, []string{domain.OutcomeRolledBack, domain.OutcomeCancelled}, sink.outcomes())
}

func TestRunNoSolidBody(t *testing.T) {
	cc := &domain.ConversionContext{}
	ok := NewExecutor(DefaultConfig(), nil, nil, nil).Run(context.Background(), memory.NewModel(), cc)
	assert.False(t, ok)
	assert.Equal(t, domain.ErrNoSolidBody.Message, cc.Problem)
}

func TestProbeLeavesHistoryUnchanged(t *testing.T) {
	m := memory.NewModel(memory.SheetPart(10, 5, 0.1))
	m.AddFeature("Boss-Extrude1", geometry.FeatureOther, geometry.BendParams{})
	env := &Env{Doc: m, Conv: &domain.ConversionContext{}, Config: DefaultConfig()}

	pr, err := Probe(env)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, pr.Thickness, 1e-12)
	assert.False(t, pr.Estimated)
	assert.Len(t, m.Features(), 1)

	require.NoError(t, Commit(env, pr))
	assert.Len(t, m.Features(), 4)
}

func TestTwoPhaseBendRejectsHalfPercentDrift(t *testing.T) {
	m := memory.NewModel(memory.SheetPart(10, 5, 0.1))
	m.Kernel.Insert = func(op memory.Op, sel geometry.Selection, p geometry.BendParams) memory.Outcome {
		return memory.Outcome{SheetMetal: true, VolumeFactor: 1.0055}
	}
	env := &Env{Doc: m, Conv: &domain.ConversionContext{}, Config: DefaultConfig()}

	_, err := Probe(env)
	assert.ErrorIs(t, err, domain.ErrVolumeDrift)
	assert.Empty(t, m.Features())

	// The same drift is within the tolerance applied to a finished part.
	assert.True(t, VolumeConserved(100, 100.55, DefaultConfig().VolumeTolerance))
}

func TestProbeFallbackThickness(t *testing.T) {
	s := memory.SheetPart(10, 5, 0.1)
	s.NominalThickness = 0
	m := memory.NewModel(s)
	env := &Env{Doc: m, Conv: &domain.ConversionContext{}, Config: DefaultConfig()}

	pr, err := Probe(env)
	require.NoError(t, err)
	assert.True(t, pr.Estimated)
	assert.InDelta(t, domain.MM, pr.Thickness, 1e-12)
}

func TestValidateAndSaveClampsThickness(t *testing.T) {
	m := memory.NewModel(memory.Plate(10, 5, 0.1))
	m.AddFeature("Sheet-Metal1", geometry.FeatureSheetMetal, geometry.BendParams{Thickness: 2.5})
	m.AddFeature("Flat-Pattern1", geometry.FeatureFlatPattern, geometry.BendParams{})
	cc := &domain.ConversionContext{InitialVolume: 5}

	err := ValidateAndSave(&Env{Doc: m, Conv: cc, Config: DefaultConfig()})

	require.NoError(t, err)
	assert.Equal(t, 1.0, cc.Thickness)
	assert.Equal(t, 1.5, cc.BendRadius)
	assert.Equal(t, 0.5, cc.KFactor)
	assert.True(t, cc.Success)
	sm, ok := geometry.FindFeature(m, geometry.FeatureSheetMetal)
	require.True(t, ok)
	assert.Equal(t, 1.0, sm.Params.Thickness)
}

func TestValidateAndSaveParamPushIsBestEffort(t *testing.T) {
	m := memory.NewModel(memory.Plate(10, 5, 0.1))
	m.AddFeature("Sheet-Metal1", geometry.FeatureSheetMetal, geometry.BendParams{Thickness: 0.1})
	m.AddFeature("Flat-Pattern1", geometry.FeatureFlatPattern, geometry.BendParams{})
	m.Kernel.ParamsErr = errors.New("read-only feature")
	cc := &domain.ConversionContext{InitialVolume: 5}

	require.NoError(t, ValidateAndSave(&Env{Doc: m, Conv: cc, Config: DefaultConfig()}))
	assert.Equal(t, 1, m.Saves())
}

func TestValidateAndSaveFailures(t *testing.T) {
	t.Run("no sheet metal", func(t *testing.T) {
		m := memory.NewModel(memory.Plate(10, 5, 0.1))
		err := ValidateAndSave(&Env{Doc: m, Conv: &domain.ConversionContext{InitialVolume: 5}, Config: DefaultConfig()})
		assert.ErrorIs(t, err, domain.ErrNoSheetMetalFeature)
	})
	t.Run("volume drift", func(t *testing.T) {
		m := memory.NewModel(memory.Plate(10, 5, 0.1))
		m.AddFeature("Sheet-Metal1", geometry.FeatureSheetMetal, geometry.BendParams{Thickness: 0.1})
		err := ValidateAndSave(&Env{Doc: m, Conv: &domain.ConversionContext{InitialVolume: 6}, Config: DefaultConfig()})
		assert.ErrorIs(t, err, domain.ErrVolumeDrift)
	})
	t.Run("save", func(t *testing.T) {
		m := memory.NewModel(memory.Plate(10, 5, 0.1))
		m.AddFeature("Sheet-Metal1", geometry.FeatureSheetMetal, geometry.BendParams{Thickness: 0.1})
		m.AddFeature("Flat-Pattern1", geometry.FeatureFlatPattern, geometry.BendParams{})
		m.Kernel.SaveErr = errors.New("disk full")
		err := ValidateAndSave(&Env{Doc: m, Conv: &domain.ConversionContext{InitialVolume: 5}, Config: DefaultConfig()})
		assert.ErrorIs(t, err, domain.ErrSaveFailed)
	})
}

func TestFlatten(t *testing.T) {
	t.Run("already active", func(t *testing.T) {
		m := memory.NewModel(memory.Plate(10, 5, 0.1))
		m.AddFeature("Sheet-Metal1", geometry.FeatureSheetMetal, geometry.BendParams{})
		m.AddFeature("Flat-Pattern1", geometry.FeatureFlatPattern, geometry.BendParams{})
		require.NoError(t, Flatten(m, nil))
		assert.Empty(t, m.Log())
	})
	t.Run("suppressed pattern", func(t *testing.T) {
		m := memory.NewModel(memory.SheetPart(10, 5, 0.1))
		require.NoError(t, m.InsertBends(selectFirstFace(t, m), geometry.BendParams{Radius: 0.1}))
		require.Equal(t, geometry.FlatFormed, m.FlatState())
		require.NoError(t, Flatten(m, nil))
		assert.Equal(t, geometry.FlatFlattened, m.FlatState())
	})
	t.Run("rebuild materializes pattern", func(t *testing.T) {
		m := memory.NewModel(memory.Plate(10, 5, 0.1))
		m.Kernel.RebuildAddsFlatPattern = true
		m.AddFeature("Sheet-Metal1", geometry.FeatureSheetMetal, geometry.BendParams{})
		require.NoError(t, Flatten(m, nil))
		assert.Equal(t, geometry.FlatFlattened, m.FlatState())
	})
	t.Run("direct state on unknown", func(t *testing.T) {
		m := memory.NewModel(memory.Plate(10, 5, 0.1))
		m.AddFeature("Sheet-Metal1", geometry.FeatureSheetMetal, geometry.BendParams{})
		require.Equal(t, geometry.FlatUnknown, m.FlatState())
		require.NoError(t, Flatten(m, nil))
		assert.Equal(t, geometry.FlatFlattened, m.FlatState())
	})
	t.Run("suppressed pattern outside formed state", func(t *testing.T) {
		m := memory.NewModel(memory.SheetPart(10, 5, 0.1))
		require.NoError(t, m.InsertBends(selectFirstFace(t, m), geometry.BendParams{Radius: 0.1}))
		doc := fixedState{Model: m, state: geometry.FlatUnknown}

		err := Flatten(doc, nil)

		assert.ErrorIs(t, err, domain.ErrFlattenFailed)
		fp, ok := geometry.FindFeature(m, geometry.FeatureFlatPattern)
		require.True(t, ok)
		assert.True(t, fp.Suppressed)
	})
	t.Run("no way to flatten", func(t *testing.T) {
		m := memory.NewModel(memory.Plate(10, 5, 0.1))
		caps := m.Capabilities()
		caps.DirectFlatState = false
		m.SetCapabilities(caps)
		m.AddFeature("Sheet-Metal1", geometry.FeatureSheetMetal, geometry.BendParams{})
		err := Flatten(m, nil)
		assert.ErrorIs(t, err, domain.ErrFlattenFailed)
	})
}

// fixedState reports a fold state that disagrees with the feature history.
type fixedState struct {
	*memory.Model
	state geometry.FlatState
}

func (d fixedState) FlatState() geometry.FlatState { return d.state }

func selectFirstFace(t *testing.T, m *memory.Model) geometry.Selection {
	t.Helper()
	body, err := geometry.PrimaryBody(m)
	require.NoError(t, err)
	return geometry.Selection{Faces: []geometry.FaceID{body.Faces()[0].ID}}
}

package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry/memory"
	"github.com/ttsmith21/sheetmetal-engine/internal/metrics"
)

type memTracker struct {
	problems []domain.Problem
	err      error
}

func (m *memTracker) Register(_ context.Context, p domain.Problem) (domain.Problem, error) {
	if m.err != nil {
		return p, m.err
	}
	p.ID = "problem-1"
	m.problems = append(m.problems, p)
	return p, nil
}

type memHistory struct {
	piles []domain.PartPile
}

func (m *memHistory) SaveClassification(_ context.Context, _ *domain.ConversionContext, res domain.ClassificationResult) error {
	m.piles = append(m.piles, res.Pile)
	return nil
}

func newPipeline(tr *memTracker) (*Pipeline, *metrics.Recorder) {
	rec := metrics.NewRecorder(prometheus.NewRegistry())
	p := New(nil, nil, tr, nil, rec)
	p.Classifier.Analyzer.Config.RetryDelay = 0
	return p, rec
}

func failingInsert(memory.Op, geometry.Selection, geometry.BendParams) memory.Outcome {
	return memory.Outcome{Err: errors.New("feature failed to rebuild"), Extra: 1}
}

func TestProcessConvertsSheetPart(t *testing.T) {
	tr := &memTracker{}
	p, _ := newPipeline(tr)
	hist := &memHistory{}
	p.History = hist
	m := memory.NewModel(memory.SheetPart(10, 5, 0.1))
	cc := &domain.ConversionContext{FilePath: "bracket.json", Configuration: "Default"}

	out := p.Process(context.Background(), m, cc)

	require.Equal(t, StatusConverted, out.Status, cc.Problem)
	assert.True(t, out.Converted())
	assert.NoError(t, out.Err)
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, out.RunID, cc.RunID)
	assert.True(t, cc.Success)
	assert.Greater(t, cc.InitialVolume, 0.0)
	assert.InDelta(t, 0.1, cc.Thickness, 1e-9)
	require.NotNil(t, out.Classification)
	assert.Equal(t, domain.PileSheetMetal, out.Classification.Pile)
	assert.Equal(t, []domain.PartPile{domain.PileSheetMetal}, hist.piles)
	assert.Empty(t, tr.problems)
	assert.Equal(t, 1, m.Saves())
}

func TestProcessLeavesNonSheetPartsAlone(t *testing.T) {
	tr := &memTracker{}
	p, _ := newPipeline(tr)
	m := memory.NewModel(memory.Block(4, 3, 2))

	out := p.Process(context.Background(), m, nil)

	assert.Equal(t, StatusClassified, out.Status)
	require.NotNil(t, out.Classification)
	assert.Equal(t, domain.PileOther, out.Classification.Pile)
	assert.Empty(t, m.Log())
	assert.Empty(t, tr.problems)
	assert.NotNil(t, out.Conversion)
}

func TestProcessPreflightRejects(t *testing.T) {
	tr := &memTracker{}
	p, rec := newPipeline(tr)
	m := memory.NewModel(memory.Plate(1, 1, 0.1), memory.Plate(2, 2, 0.1))
	cc := &domain.ConversionContext{FilePath: "weldment.json"}

	out := p.Process(context.Background(), m, cc)

	assert.Equal(t, StatusRejected, out.Status)
	assert.ErrorIs(t, out.Err, domain.ErrPreflightBlocked)
	require.NotNil(t, out.Preflight)
	assert.True(t, out.Preflight.Hard)
	assert.Nil(t, out.Classification)
	require.Len(t, tr.problems, 1)
	assert.Equal(t, domain.ProblemPreflight, tr.problems[0].Category)
	assert.Equal(t, "weldment.json", tr.problems[0].FilePath)
	assert.Contains(t, tr.problems[0].Reason, "Multiple solid bodies")
	assert.Empty(t, m.Log())
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.PreflightRejects.WithLabelValues("hard")))
}

func TestProcessRegistersExhaustedConversion(t *testing.T) {
	tr := &memTracker{}
	p, rec := newPipeline(tr)
	m := memory.NewModel(memory.SheetPart(10, 5, 0.1))
	m.Kernel.Insert = failingInsert
	cc := &domain.ConversionContext{}

	out := p.Process(context.Background(), m, cc)

	assert.Equal(t, StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, domain.ErrStrategiesExhausted)
	assert.False(t, cc.Success)
	assert.Contains(t, cc.Problem, domain.ErrStrategiesExhausted.Message)
	require.Len(t, tr.problems, 1)
	assert.Equal(t, domain.ProblemConversion, tr.problems[0].Category)
	assert.Equal(t, cc.Problem, tr.problems[0].Reason)
	require.NotNil(t, out.Problem)
	assert.Equal(t, "problem-1", out.Problem.ID)
	assert.Empty(t, m.Features())
	assert.GreaterOrEqual(t, testutil.ToFloat64(rec.Rollbacks), 3.0)
}

func TestProcessNilDocument(t *testing.T) {
	tr := &memTracker{}
	p, _ := newPipeline(tr)

	out := p.Process(context.Background(), nil, &domain.ConversionContext{FilePath: "missing.json"})

	assert.Equal(t, StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, domain.ErrNilDocument)
	require.Len(t, tr.problems, 1)
	assert.Equal(t, domain.ProblemInput, tr.problems[0].Category)
	assert.Equal(t, domain.ErrNilDocument.Message, tr.problems[0].Reason)
}

func TestProcessRecoversPanics(t *testing.T) {
	tr := &memTracker{}
	p, _ := newPipeline(tr)
	m := memory.NewModel(memory.SheetPart(10, 5, 0.1))
	m.Kernel.Insert = func(memory.Op, geometry.Selection, geometry.BendParams) memory.Outcome {
		panic("kernel crashed")
	}
	cc := &domain.ConversionContext{}

	var out Outcome
	require.NotPanics(t, func() {
		out = p.Process(context.Background(), m, cc)
	})

	assert.Equal(t, StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, domain.ErrInternal)
	assert.Contains(t, cc.Problem, "kernel crashed")
	require.Len(t, tr.problems, 1)
	assert.Equal(t, domain.ProblemInternal, tr.problems[0].Category)
}

func TestProcessCancelledBeforeConversion(t *testing.T) {
	tr := &memTracker{}
	p, _ := newPipeline(tr)
	m := memory.NewModel(memory.SheetPart(10, 5, 0.1))
	caps := m.Capabilities()
	caps.ThicknessAnalysis = false
	m.SetCapabilities(caps)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := p.Process(ctx, m, nil)

	assert.Equal(t, StatusCancelled, out.Status)
	assert.ErrorIs(t, out.Err, domain.ErrCancelled)
	assert.Empty(t, m.Log())
	assert.Empty(t, tr.problems)
}

func TestProcessCancelledDuringAnalysis(t *testing.T) {
	tr := &memTracker{}
	p, _ := newPipeline(tr)
	hist := &memHistory{}
	p.History = hist
	m := memory.NewModel(memory.SheetPart(10, 5, 0.1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := p.Process(ctx, m, nil)

	assert.Equal(t, StatusCancelled, out.Status)
	assert.ErrorIs(t, out.Err, domain.ErrCancelled)
	assert.Nil(t, out.Classification)
	assert.Empty(t, hist.piles)
	assert.Empty(t, tr.problems)
	assert.Empty(t, m.Log())
}

func TestRejectRegistersLoadError(t *testing.T) {
	tr := &memTracker{}
	p, _ := newPipeline(tr)
	cc := &domain.ConversionContext{FilePath: "broken.json"}

	out := p.Reject(context.Background(), cc, errors.New("read part file: permission denied"))

	assert.Equal(t, StatusFailed, out.Status)
	assert.NotEmpty(t, out.RunID)
	require.Len(t, tr.problems, 1)
	assert.Equal(t, domain.ProblemInput, tr.problems[0].Category)
	assert.Equal(t, "read part file: permission denied", tr.problems[0].Reason)
	assert.Equal(t, "broken.json", tr.problems[0].FilePath)
}

func TestTrackerFailureDoesNotMaskOutcome(t *testing.T) {
	tr := &memTracker{err: errors.New("database is locked")}
	p, _ := newPipeline(tr)
	m := memory.NewModel(memory.SheetPart(10, 5, 0.1))
	m.Kernel.Insert = failingInsert

	out := p.Process(context.Background(), m, nil)

	assert.Equal(t, StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, domain.ErrStrategiesExhausted)
	require.NotNil(t, out.Problem)
	assert.Empty(t, out.Problem.ID)
}

func TestSubmitDeliversOneOutcome(t *testing.T) {
	p, _ := newPipeline(&memTracker{})
	m := memory.NewModel(memory.SheetPart(10, 5, 0.1))

	ch := p.Submit(context.Background(), m, &domain.ConversionContext{RunID: "run-async"})

	out, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, "run-async", out.RunID)
	assert.Equal(t, StatusConverted, out.Status)
	_, ok = <-ch
	assert.False(t, ok)
}

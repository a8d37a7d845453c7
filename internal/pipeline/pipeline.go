// Package pipeline is the public entry point for processing one part:
// preflight, classification and, for sheet-like bodies, conversion.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ttsmith21/sheetmetal-engine/internal/classify"
	"github.com/ttsmith21/sheetmetal-engine/internal/convert"
	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry"
	"github.com/ttsmith21/sheetmetal-engine/internal/logging"
	"github.com/ttsmith21/sheetmetal-engine/internal/metrics"
	"github.com/ttsmith21/sheetmetal-engine/internal/preflight"
	"github.com/ttsmith21/sheetmetal-engine/internal/tracker"
)

// Status summarizes how a run ended.
type Status string

const (
	StatusConverted  Status = "converted"
	StatusClassified Status = "classified"
	StatusRejected   Status = "rejected"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Outcome is the result of one run. Conversion is the caller's context,
// mutated in place.
type Outcome struct {
	RunID          string                       `json:"run_id"`
	Status         Status                       `json:"status"`
	Preflight      *domain.PreflightResult      `json:"preflight,omitempty"`
	Classification *domain.ClassificationResult `json:"classification,omitempty"`
	Conversion     *domain.ConversionContext    `json:"conversion"`
	Problem        *domain.Problem              `json:"problem,omitempty"`
	Err            error                        `json:"-"`
}

// Converted reports whether the part ended as a saved sheet-metal part.
func (o Outcome) Converted() bool {
	return o.Status == StatusConverted
}

// ClassificationSink stores classification history. Optional.
type ClassificationSink interface {
	SaveClassification(ctx context.Context, cc *domain.ConversionContext, res domain.ClassificationResult) error
}

// Pipeline wires the components of a run. One document is processed by at
// most one run at a time; the Pipeline itself holds no per-run state.
type Pipeline struct {
	Classifier *classify.Classifier
	Executor   *convert.Executor
	Tracker    tracker.Tracker
	History    ClassificationSink
	Logger     *zap.Logger
	Metrics    *metrics.Recorder
}

// New creates a Pipeline. Nil classifier or executor get defaults.
func New(cls *classify.Classifier, ex *convert.Executor, tr tracker.Tracker, logger *zap.Logger, rec *metrics.Recorder) *Pipeline {
	logger = logging.OrNop(logger)
	if cls == nil {
		cls = classify.New(classify.DefaultThresholds(), nil, nil, logger, rec)
	}
	if ex == nil {
		ex = convert.NewExecutor(convert.DefaultConfig(), nil, logger, rec)
	}
	return &Pipeline{
		Classifier: cls,
		Executor:   ex,
		Tracker:    tr,
		Logger:     logger,
		Metrics:    rec,
	}
}

// Submit runs Process on its own goroutine and delivers exactly one Outcome.
func (p *Pipeline) Submit(ctx context.Context, doc geometry.Document, cc *domain.ConversionContext) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		defer close(ch)
		ch <- p.Process(ctx, doc, cc)
	}()
	return ch
}

// Reject reports a part whose document could not be loaded. The load error
// is registered as an input problem.
func (p *Pipeline) Reject(ctx context.Context, cc *domain.ConversionContext, loadErr error) Outcome {
	if cc == nil {
		cc = &domain.ConversionContext{}
	}
	if cc.RunID == "" {
		cc.RunID = uuid.NewString()
	}
	log := logging.ForRun(p.Logger, cc.RunID, cc.FilePath, cc.Configuration)
	start := time.Now()
	out := p.fail(ctx, log, Outcome{RunID: cc.RunID, Conversion: cc}, domain.ProblemInput, loadErr)
	p.Metrics.RecordPipeline(string(out.Status), time.Since(start))
	log.Info("part rejected", zap.String("problem", cc.Problem))
	return out
}

// Process runs one part to completion. Failures are reported in the
// Outcome and registered with the tracker; panics are recovered.
func (p *Pipeline) Process(ctx context.Context, doc geometry.Document, cc *domain.ConversionContext) (out Outcome) {
	if cc == nil {
		cc = &domain.ConversionContext{}
	}
	if cc.RunID == "" {
		cc.RunID = uuid.NewString()
	}
	log := logging.ForRun(p.Logger, cc.RunID, cc.FilePath, cc.Configuration)
	start := time.Now()
	out = Outcome{RunID: cc.RunID, Conversion: cc}

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline panic", zap.Any("panic", r), zap.Stack("stack"))
			cc.Success = false
			cc.Problem = fmt.Sprintf("%s: %v", domain.ErrInternal.Message, r)
			out.Status = StatusFailed
			out.Err = domain.NewEngineError(domain.ErrInternal.Code, cc.Problem)
			out.Problem = p.register(ctx, log, cc, domain.ProblemInternal, cc.Problem)
		}
		p.Metrics.RecordPipeline(string(out.Status), time.Since(start))
		log.Info("run finished", zap.String("status", string(out.Status)),
			zap.Duration("elapsed", time.Since(start)))
	}()

	if doc == nil {
		return p.fail(ctx, log, out, domain.ProblemInput, domain.ErrNilDocument)
	}

	pre, err := preflight.Check(doc)
	if err != nil {
		return p.fail(ctx, log, out, domain.ProblemInput, err)
	}
	out.Preflight = &pre
	if pre.IsProblem {
		p.Metrics.RecordPreflightReject(pre.Hard)
		log.Info("preflight rejected", zap.Bool("hard", pre.Hard), zap.String("reason", pre.Reason))
		cc.Problem = pre.Reason
		out.Status = StatusRejected
		out.Err = domain.NewEngineError(domain.ErrPreflightBlocked.Code, pre.Reason)
		out.Problem = p.register(ctx, log, cc, domain.ProblemPreflight, pre.Reason)
		return out
	}

	body, err := geometry.PrimaryBody(doc)
	if err != nil {
		return p.fail(ctx, log, out, domain.ProblemInput, err)
	}
	if v, err := body.Volume(); err == nil {
		cc.InitialVolume = v
	} else {
		log.Warn("initial volume unavailable", zap.Error(err))
	}

	cls := *p.Classifier
	cls.Logger = log
	res := cls.Classify(ctx, body, doc.ThicknessHost())
	if ctx.Err() != nil {
		// An interrupted analysis leaves thickness empty; the pile is discarded.
		return p.cancelled(log, out)
	}
	out.Classification = &res
	if p.History != nil {
		if err := p.History.SaveClassification(context.WithoutCancel(ctx), cc, res); err != nil {
			log.Warn("classification history write failed", zap.Error(err))
		}
	}
	if res.Pile != domain.PileSheetMetal {
		out.Status = StatusClassified
		return out
	}

	ex := *p.Executor
	ex.Logger = log
	if ex.Run(ctx, doc, cc) {
		cc.Success = true
		out.Status = StatusConverted
		return out
	}

	if ctx.Err() != nil {
		return p.cancelled(log, out)
	}
	out.Status = StatusFailed
	out.Err = domain.NewEngineError(domain.ErrStrategiesExhausted.Code, cc.Problem)
	out.Problem = p.register(ctx, log, cc, domain.ProblemConversion, cc.Problem)
	return out
}

func (p *Pipeline) cancelled(log *zap.Logger, out Outcome) Outcome {
	cc := out.Conversion
	cc.Success = false
	if cc.Problem == "" {
		cc.Problem = domain.ErrCancelled.Message
	}
	log.Info("run cancelled", zap.String("problem", cc.Problem))
	out.Status = StatusCancelled
	out.Err = domain.NewEngineError(domain.ErrCancelled.Code, cc.Problem)
	return out
}

func (p *Pipeline) fail(ctx context.Context, log *zap.Logger, out Outcome, category string, err error) Outcome {
	cc := out.Conversion
	cc.Success = false
	cc.Problem = reason(err)
	out.Status = StatusFailed
	out.Err = err
	out.Problem = p.register(ctx, log, cc, category, cc.Problem)
	return out
}

// register hands the problem to the tracker. A tracker failure is logged
// and never replaces the outcome being reported.
func (p *Pipeline) register(ctx context.Context, log *zap.Logger, cc *domain.ConversionContext, category, why string) *domain.Problem {
	prob := domain.Problem{
		RunID:         cc.RunID,
		FilePath:      cc.FilePath,
		Configuration: cc.Configuration,
		Category:      category,
		Reason:        why,
	}
	if p.Tracker == nil {
		log.Warn("problem not tracked", zap.String("category", category), zap.String("reason", why))
		return &prob
	}
	got, err := p.Tracker.Register(context.WithoutCancel(ctx), prob)
	if err != nil {
		log.Error("problem registration failed", zap.String("reason", why), zap.Error(err))
		return &prob
	}
	return &got
}

func reason(err error) string {
	var ee *domain.EngineError
	if errors.As(err, &ee) {
		return ee.Message
	}
	return err.Error()
}

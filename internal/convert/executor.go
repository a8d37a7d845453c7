package convert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry"
	"github.com/ttsmith21/sheetmetal-engine/internal/logging"
	"github.com/ttsmith21/sheetmetal-engine/internal/metrics"
	"github.com/ttsmith21/sheetmetal-engine/internal/scan"
)

// AttemptSink receives one record per strategy attempt.
type AttemptSink interface {
	AppendAttempt(ctx context.Context, rec domain.AttemptRecord) error
}

// Executor runs strategies in order until one produces a validated,
// flattened and saved sheet-metal part.
type Executor struct {
	Config     Config
	Strategies map[domain.StrategyKind]Strategy
	Sink       AttemptSink
	Logger     *zap.Logger
	Metrics    *metrics.Recorder

	now func() time.Time
}

// NewExecutor creates an Executor with the built-in strategies. sink may be nil.
func NewExecutor(cfg Config, sink AttemptSink, logger *zap.Logger, rec *metrics.Recorder) *Executor {
	return &Executor{
		Config:     cfg,
		Strategies: DefaultStrategies(),
		Sink:       sink,
		Logger:     logging.OrNop(logger),
		Metrics:    rec,
		now:        time.Now,
	}
}

// Run converts doc in place. It reports success; on failure cc.Problem
// carries a readable reason. The context is checked before the first
// strategy and between strategies, never during one.
func (e *Executor) Run(ctx context.Context, doc geometry.Document, cc *domain.ConversionContext) bool {
	log := logging.OrNop(e.Logger)
	if doc == nil {
		cc.Problem = domain.ErrNilDocument.Message
		return false
	}
	body, err := geometry.PrimaryBody(doc)
	if err != nil {
		cc.Problem = domain.ErrNoSolidBody.Message
		return false
	}
	if cc.InitialVolume <= 0 {
		v, err := body.Volume()
		if err != nil {
			cc.Problem = fmt.Sprintf("initial volume: %v", err)
			return false
		}
		cc.InitialVolume = v
	}

	cm := scan.Cylinders(body.Faces())
	order := Order(cm, e.Config)
	log.Info("conversion order",
		zap.Float64("cylinder_share", cm.Share),
		zap.Float64("diameter", cm.Diameter),
		zap.Float64("wall", cm.WallThickness),
		zap.Any("order", order))

	var failures []string
	var seq int64
	for _, kind := range order {
		if err := ctx.Err(); err != nil {
			seq++
			e.record(ctx, cc, seq, kind, domain.OutcomeCancelled, err.Error())
			cc.Problem = fmt.Sprintf("%s before %s", domain.ErrCancelled.Message, kind)
			return false
		}
		seq++

		strat, ok := e.Strategies[kind]
		if !ok {
			failures = append(failures, fmt.Sprintf("%s: %s", kind, domain.ErrUnknownStrategy.Message))
			e.record(ctx, cc, seq, kind, domain.OutcomeFailed, domain.ErrUnknownStrategy.Message)
			continue
		}

		env := &Env{
			Doc:       doc,
			Conv:      cc,
			Cylinders: cm,
			Config:    e.Config,
			Logger:    log.With(zap.String("strategy", string(kind))),
			Metrics:   e.Metrics,
		}
		bm := doc.Bookmark()
		err := e.attempt(strat, env)
		if err == nil {
			cc.Strategy = kind
			cc.Problem = ""
			e.record(ctx, cc, seq, kind, domain.OutcomeSucceeded, fmt.Sprintf("t=%.4f r=%.4f k=%.2f",
				cc.Thickness, cc.BendRadius, cc.KFactor))
			log.Info("conversion succeeded", zap.String("strategy", string(kind)),
				zap.Float64("thickness", cc.Thickness), zap.Float64("radius", cc.BendRadius),
				zap.Float64("k_factor", cc.KFactor), zap.Float64("final_volume", cc.FinalVolume))
			return true
		}

		failures = append(failures, fmt.Sprintf("%s: %v", kind, err))
		log.Info("strategy failed", zap.String("strategy", string(kind)), zap.Error(err))
		outcome := domain.OutcomeRolledBack
		if rbErr := env.Rollback(bm); rbErr != nil {
			outcome = domain.OutcomeFailed
			log.Error("rollback failed", zap.String("strategy", string(kind)), zap.Error(rbErr))
		}
		resetResolved(cc)
		e.record(ctx, cc, seq, kind, outcome, err.Error())
	}

	cc.Problem = fmt.Sprintf("%s: %s", domain.ErrStrategiesExhausted.Message, strings.Join(failures, "; "))
	return false
}

// resetResolved clears what a rolled-back strategy resolved.
func resetResolved(cc *domain.ConversionContext) {
	cc.Success = false
	cc.Strategy = ""
	cc.Thickness, cc.BendRadius, cc.KFactor, cc.FinalVolume = 0, 0, 0, 0
}

func (e *Executor) attempt(s Strategy, env *Env) error {
	if err := s.Apply(env); err != nil {
		return err
	}
	if !hasSheetMetal(env.Doc) {
		return domain.ErrNoSheetMetalFeature
	}
	return ValidateAndSave(env)
}

func (e *Executor) record(ctx context.Context, cc *domain.ConversionContext, seq int64, kind domain.StrategyKind, outcome, detail string) {
	e.Metrics.RecordAttempt(string(kind), outcome)
	if e.Sink == nil {
		return
	}
	now := time.Now
	if e.now != nil {
		now = e.now
	}
	rec := domain.AttemptRecord{
		RunID:     cc.RunID,
		SeqNo:     seq,
		Strategy:  kind,
		Outcome:   outcome,
		Detail:    detail,
		CreatedAt: now().Unix(),
	}
	// The sink is best effort; a lost record must not fail the conversion.
	if err := e.Sink.AppendAttempt(context.WithoutCancel(ctx), rec); err != nil {
		logging.OrNop(e.Logger).Warn("attempt log write failed", zap.Int64("seq", seq), zap.Error(err))
	}
}

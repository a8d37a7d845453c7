package convert

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry"
	"github.com/ttsmith21/sheetmetal-engine/internal/logging"
	"github.com/ttsmith21/sheetmetal-engine/internal/metrics"
	"github.com/ttsmith21/sheetmetal-engine/internal/scan"
)

// Env is what a strategy sees during one attempt.
type Env struct {
	Doc       geometry.Document
	Conv      *domain.ConversionContext
	Cylinders scan.CylinderMetrics
	Config    Config
	Logger    *zap.Logger
	Metrics   *metrics.Recorder
}

func (env *Env) log() *zap.Logger {
	return logging.OrNop(env.Logger)
}

// Rollback deletes every feature after b, newest first, then forces a
// rebuild. Handles taken before the call are stale afterwards.
func (env *Env) Rollback(b domain.FeatureBookmark) error {
	env.Metrics.RecordRollback()
	if err := env.Doc.TruncateAfter(b); err != nil {
		return domain.WrapEngineError(domain.ErrRollbackFailed.Code, "truncate history", err)
	}
	if err := env.Doc.Rebuild(true); err != nil {
		return domain.WrapEngineError(domain.ErrRollbackFailed.Code, "rebuild after truncate", err)
	}
	return nil
}

// VolumeConserved reports whether after is within tol of before, relative to
// the larger of the two. A non-positive volume on either side always fails.
func VolumeConserved(before, after, tol float64) bool {
	if before <= 0 || after <= 0 {
		return false
	}
	return math.Abs(after-before)/math.Max(before, after) <= tol
}

// ClampThickness caps t at limit.
func ClampThickness(t, limit float64) float64 {
	if limit > 0 && t > limit {
		return limit
	}
	return t
}

func hasSheetMetal(doc geometry.Document) bool {
	_, ok := geometry.FindFeature(doc, geometry.FeatureSheetMetal)
	return ok
}

func bodyVolume(doc geometry.Document) (float64, error) {
	body, err := geometry.PrimaryBody(doc)
	if err != nil {
		return 0, err
	}
	return body.Volume()
}

// ValidateAndSave checks a freshly converted document and, when it holds,
// activates the flat pattern and saves. Any error means the attempt failed
// and must be rolled back.
func ValidateAndSave(env *Env) error {
	doc, cc := env.Doc, env.Conv
	log := env.log()

	if err := doc.Rebuild(true); err != nil {
		return domain.WrapEngineError(domain.ErrOperationFailed.Code, "rebuild", err)
	}
	sm, ok := geometry.FindFeature(doc, geometry.FeatureSheetMetal)
	if !ok {
		return domain.ErrNoSheetMetalFeature
	}

	t := firstPositive(cc.Overrides.Thickness, sm.Params.Thickness, cc.Thickness)
	if t <= 0 {
		return domain.ErrThicknessUnresolved
	}
	cc.Thickness = ClampThickness(t, env.Config.MaxThickness)

	vol, err := bodyVolume(doc)
	if err != nil {
		return domain.WrapEngineError(domain.ErrOperationFailed.Code, "volume", err)
	}
	cc.FinalVolume = vol
	if !VolumeConserved(cc.InitialVolume, vol, env.Config.VolumeTolerance) {
		return domain.NewEngineError(domain.ErrVolumeDrift.Code,
			fmt.Sprintf("volume changed from %.6g to %.6g", cc.InitialVolume, vol))
	}

	cc.BendRadius = firstPositive(cc.Overrides.BendRadius, cc.BendRadius, DefaultRadiusFactor*cc.Thickness)
	cc.KFactor = firstPositive(cc.Overrides.KFactor, cc.KFactor, DefaultKFactor)

	params := geometry.BendParams{Thickness: cc.Thickness, Radius: cc.BendRadius, KFactor: cc.KFactor}
	if err := doc.SetFeatureParams(sm.ID, params); err != nil {
		log.Warn("could not push parameters to feature", zap.Int64("feature_id", sm.ID), zap.Error(err))
	}

	if err := Flatten(doc, log); err != nil {
		return err
	}
	if err := doc.Save(); err != nil {
		return domain.WrapEngineError(domain.ErrSaveFailed.Code, "save", err)
	}
	cc.Success = true
	return nil
}

// Flatten makes sure an active flat pattern exists. An active pattern is
// left alone; a suppressed one is unsuppressed only in the Formed state; a
// missing one is forced out by a rebuild and, when the fold state is
// unknown, by setting the state directly.
func Flatten(doc geometry.Document, log *zap.Logger) error {
	log = logging.OrNop(log)

	fp, ok := geometry.FindFeature(doc, geometry.FeatureFlatPattern)
	if ok && !fp.Suppressed {
		return nil
	}
	if !ok {
		if err := doc.Rebuild(true); err != nil {
			log.Debug("flatten rebuild failed", zap.Error(err))
		}
		fp, ok = geometry.FindFeature(doc, geometry.FeatureFlatPattern)
	}
	if ok && fp.Suppressed && doc.FlatState() == geometry.FlatFormed {
		if err := doc.SetSuppressed(fp.ID, false); err != nil {
			log.Debug("unsuppress flat pattern failed", zap.Error(err))
		}
	}
	if !ok && doc.FlatState() == geometry.FlatUnknown && doc.Capabilities().DirectFlatState {
		if err := doc.SetFlatState(geometry.FlatFlattened); err != nil {
			log.Debug("set flat state failed", zap.Error(err))
		}
	}

	if fp, ok := geometry.FindFeature(doc, geometry.FeatureFlatPattern); ok && !fp.Suppressed {
		return nil
	}
	return domain.NewEngineError(domain.ErrFlattenFailed.Code,
		fmt.Sprintf("no active flat pattern (state %s)", doc.FlatState()))
}

func firstPositive(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

package convert

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry"
)

// BendOnEdge inserts bends along an edge or face. Cylinder-dominant bodies
// get one insert on the longest straight seam; everything else goes through
// Probe then Commit.
type BendOnEdge struct{}

// Kind implements Strategy.
func (BendOnEdge) Kind() domain.StrategyKind { return domain.StrategyBendOnEdge }

// Apply implements Strategy.
func (BendOnEdge) Apply(env *Env) error {
	if env.Cylinders.Share >= env.Config.CylinderDominant {
		return seamBend(env)
	}
	probe, err := Probe(env)
	if err != nil {
		return err
	}
	return Commit(env, probe)
}

func seamBend(env *Env) error {
	snap, err := takeSnapshot(env.Doc)
	if err != nil {
		return err
	}
	edge, ok := geometry.LongestLinearEdgeOn(snap.faces, snap.edges, geometry.SurfaceCylinder)
	if !ok {
		return domain.ErrNoCandidate
	}

	o := env.Conv.Overrides
	t := ClampThickness(firstPositive(o.Thickness, env.Cylinders.WallThickness), env.Config.MaxThickness)
	if t <= 0 {
		return domain.ErrThicknessUnresolved
	}
	p := geometry.BendParams{
		Thickness: t,
		Radius:    firstPositive(o.BendRadius, DefaultRadiusFactor*t),
		KFactor:   firstPositive(o.KFactor, DefaultKFactor),
	}
	sel := geometry.Selection{Edges: []geometry.EdgeID{edge.ID}, Mark: geometry.MarkBendEdge}
	if err := env.Doc.InsertBends(sel, p); err != nil {
		return opFailed("seam bends", err)
	}
	env.Conv.Thickness, env.Conv.BendRadius, env.Conv.KFactor = p.Thickness, p.Radius, p.KFactor
	return nil
}

// ProbeResult is what a probe learns about the body.
type ProbeResult struct {
	// Thickness read back from the probe's sheet-metal feature.
	Thickness float64
	// Estimated is set when the feature carried no thickness and the
	// fallback was used.
	Estimated bool
}

// Probe inserts throwaway bends with a small radius so the kernel exposes
// the sheet thickness, reads it back and undoes everything it added. The
// document's history is unchanged on return, success or not.
func Probe(env *Env) (ProbeResult, error) {
	doc := env.Doc
	log := env.log()
	bm := doc.Bookmark()

	before, err := bodyVolume(doc)
	if err != nil {
		return ProbeResult{}, opFailed("probe volume", err)
	}
	snap, err := takeSnapshot(doc)
	if err != nil {
		return ProbeResult{}, err
	}
	sel, err := bendTarget(snap)
	if err != nil {
		return ProbeResult{}, err
	}

	res, probeErr := probe(env, sel, before)
	if err := env.Rollback(bm); err != nil {
		if probeErr != nil {
			log.Warn("rollback after failed probe failed", zap.Error(err))
			return ProbeResult{}, probeErr
		}
		return ProbeResult{}, err
	}
	if probeErr != nil {
		return ProbeResult{}, probeErr
	}
	log.Debug("probe complete", zap.String("selection", describe(sel)),
		zap.Float64("thickness", res.Thickness), zap.Bool("estimated", res.Estimated))
	return res, nil
}

func probe(env *Env, sel geometry.Selection, before float64) (ProbeResult, error) {
	doc := env.Doc
	p := geometry.BendParams{Thickness: env.Conv.Overrides.Thickness, Radius: ProbeRadius, KFactor: ProbeKFactor}
	if err := doc.InsertBends(sel, p); err != nil {
		return ProbeResult{}, opFailed("probe bends", err)
	}
	sm, ok := geometry.FindFeature(doc, geometry.FeatureSheetMetal)
	if !ok {
		return ProbeResult{}, domain.ErrNoSheetMetalFeature
	}
	after, err := bodyVolume(doc)
	if err != nil {
		return ProbeResult{}, opFailed("probe volume", err)
	}
	if !VolumeConserved(before, after, env.Config.ProbeVolumeTolerance) {
		return ProbeResult{}, domain.NewEngineError(domain.ErrVolumeDrift.Code,
			fmt.Sprintf("probe changed volume from %.6g to %.6g", before, after))
	}
	if sm.Params.Thickness > 0 {
		return ProbeResult{Thickness: sm.Params.Thickness}, nil
	}
	return ProbeResult{Thickness: ProbeFallback, Estimated: true}, nil
}

// Commit re-selects the probe target with fresh handles and inserts the
// final bends. The derived thickness is passed as both thickness and radius.
func Commit(env *Env, pr ProbeResult) error {
	snap, err := takeSnapshot(env.Doc)
	if err != nil {
		return err
	}
	sel, err := bendTarget(snap)
	if err != nil {
		return err
	}

	o := env.Conv.Overrides
	t := ClampThickness(firstPositive(o.Thickness, pr.Thickness), env.Config.MaxThickness)
	p := geometry.BendParams{
		Thickness: t,
		Radius:    firstPositive(o.BendRadius, t),
		KFactor:   firstPositive(o.KFactor, DefaultKFactor),
	}
	if err := env.Doc.InsertBends(sel, p); err != nil {
		return opFailed("commit bends", err)
	}
	env.Conv.Thickness, env.Conv.BendRadius, env.Conv.KFactor = p.Thickness, p.Radius, p.KFactor
	return nil
}

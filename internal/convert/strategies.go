package convert

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry"
)

// Strategy is one way of producing a sheet-metal feature. Apply runs to
// completion once started; cancellation is only honoured between strategies.
type Strategy interface {
	Kind() domain.StrategyKind
	Apply(env *Env) error
}

// DefaultStrategies returns the built-in strategies keyed by kind.
func DefaultStrategies() map[domain.StrategyKind]Strategy {
	return map[domain.StrategyKind]Strategy{
		domain.StrategyConvertWholeBody: ConvertWholeBody{},
		domain.StrategyBendOnEdge:       BendOnEdge{},
		domain.StrategyFaceBasedBend:    FaceBasedBend{},
	}
}

// snapshot is a fresh read of the primary body. It must be retaken after
// any history change.
type snapshot struct {
	faces []geometry.Face
	edges []geometry.Edge
}

func takeSnapshot(doc geometry.Document) (snapshot, error) {
	body, err := geometry.PrimaryBody(doc)
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{faces: body.Faces(), edges: body.Edges()}, nil
}

func faceIDs(faces ...geometry.Face) []geometry.FaceID {
	out := make([]geometry.FaceID, len(faces))
	for i, f := range faces {
		out[i] = f.ID
	}
	return out
}

func edgeIDs(edges []geometry.Edge) []geometry.EdgeID {
	out := make([]geometry.EdgeID, len(edges))
	for i, e := range edges {
		out[i] = e.ID
	}
	return out
}

func opFailed(op string, err error) error {
	return domain.WrapEngineError(domain.ErrOperationFailed.Code, op, err)
}

// ConvertWholeBody converts the body in one operation from a base face,
// retrying once with rip edges added to the selection.
type ConvertWholeBody struct{}

// Kind implements Strategy.
func (ConvertWholeBody) Kind() domain.StrategyKind { return domain.StrategyConvertWholeBody }

// Apply implements Strategy.
func (s ConvertWholeBody) Apply(env *Env) error {
	doc := env.Doc
	bm := doc.Bookmark()

	sel, params, err := s.plan(env, false)
	if err != nil {
		return err
	}
	errA := doc.InsertSheetMetal(sel, params)
	if errA == nil && hasSheetMetal(doc) {
		s.record(env, params)
		return nil
	}
	if errA == nil {
		errA = domain.ErrNoSheetMetalFeature
	}
	env.log().Debug("base-face conversion failed, retrying with rip edges", zap.Error(errA))
	if err := env.Rollback(bm); err != nil {
		return err
	}

	sel, params, err = s.plan(env, true)
	if err != nil {
		return err
	}
	if len(sel.Edges) == 0 {
		return opFailed("convert whole body", errA)
	}
	if err := doc.InsertSheetMetal(sel, params); err != nil {
		return opFailed("convert whole body with rip edges", err)
	}
	if !hasSheetMetal(doc) {
		return domain.ErrNoSheetMetalFeature
	}
	s.record(env, params)
	return nil
}

// Rolled reports whether the body is a rolled cylinder: cylinder dominant
// with one consistent radius.
func Rolled(env *Env) bool {
	cm := env.Cylinders
	return cm.Share >= env.Config.CylinderDominant && cm.ConsistentRadius
}

func (s ConvertWholeBody) plan(env *Env, withEdges bool) (geometry.Selection, geometry.BendParams, error) {
	snap, err := takeSnapshot(env.Doc)
	if err != nil {
		return geometry.Selection{}, geometry.BendParams{}, err
	}
	rolled := Rolled(env)

	var base geometry.Face
	var t float64
	if rolled {
		if shell, ok := geometry.CoaxialShell(snap.faces, env.Config.CoaxialAngleDeg); ok {
			t = shell.Wall
		}
		base, _ = geometry.LargestFace(snap.faces, geometry.SurfaceCylinder)
	}
	if pair, ok := geometry.BestPlanarPair(snap.faces); ok {
		if t <= 0 {
			t = pair.Separation
		}
		if base.ID == 0 {
			base = pair.Base()
		}
	}
	if base.ID == 0 {
		return geometry.Selection{}, geometry.BendParams{}, domain.ErrNoCandidate
	}

	o := env.Conv.Overrides
	t = ClampThickness(firstPositive(o.Thickness, t), env.Config.MaxThickness)
	if t <= 0 {
		return geometry.Selection{}, geometry.BendParams{}, domain.ErrThicknessUnresolved
	}

	p := geometry.BendParams{Thickness: t}
	if rolled {
		p.Radius, p.KFactor = env.Cylinders.Diameter/2, RolledKFactor
	} else {
		p.Radius, p.KFactor = math.Max(MinWholeBodyRadius, DefaultRadiusFactor*t), WholeBodyKFactor
	}
	p.Radius = firstPositive(o.BendRadius, p.Radius)
	p.KFactor = firstPositive(o.KFactor, p.KFactor)

	sel := geometry.Selection{Faces: faceIDs(base), Mark: geometry.MarkBaseFace}
	if withEdges {
		edges := geometry.LinearEdges(snap.edges, base.ID)
		if len(edges) > env.Config.MaxRipEdges {
			edges = edges[:env.Config.MaxRipEdges]
		}
		sel.Edges = edgeIDs(edges)
		sel.Mark = geometry.MarkRipEdge
	}
	return sel, p, nil
}

func (ConvertWholeBody) record(env *Env, p geometry.BendParams) {
	env.Conv.Thickness = p.Thickness
	env.Conv.BendRadius = p.Radius
	env.Conv.KFactor = p.KFactor
}

// FaceBasedBend inserts bends on the largest planar face with a small seed
// radius and lets the kernel derive thickness.
type FaceBasedBend struct{}

// Kind implements Strategy.
func (FaceBasedBend) Kind() domain.StrategyKind { return domain.StrategyFaceBasedBend }

// Apply implements Strategy.
func (FaceBasedBend) Apply(env *Env) error {
	snap, err := takeSnapshot(env.Doc)
	if err != nil {
		return err
	}
	face, ok := geometry.LargestFace(snap.faces, geometry.SurfacePlane)
	if !ok {
		return domain.ErrNoCandidate
	}

	o := env.Conv.Overrides
	k := firstPositive(o.KFactor, DefaultKFactor)
	seed := geometry.BendParams{Thickness: o.Thickness, Radius: SeedRadius, KFactor: k}
	sel := geometry.Selection{Faces: faceIDs(face), Mark: geometry.MarkBaseFace}
	if err := env.Doc.InsertBends(sel, seed); err != nil {
		return opFailed("face bends", err)
	}
	sm, ok := geometry.FindFeature(env.Doc, geometry.FeatureSheetMetal)
	if !ok {
		return domain.ErrNoSheetMetalFeature
	}

	t := ClampThickness(firstPositive(o.Thickness, sm.Params.Thickness), env.Config.MaxThickness)
	env.Conv.Thickness = t
	env.Conv.BendRadius = firstPositive(o.BendRadius, t)
	env.Conv.KFactor = k
	return nil
}

// bendTarget picks the largest planar face, or the longest linear edge when
// the body has no planar face. It is deterministic so a fresh snapshot
// yields the same entity under a new handle.
func bendTarget(snap snapshot) (geometry.Selection, error) {
	if face, ok := geometry.LargestFace(snap.faces, geometry.SurfacePlane); ok {
		return geometry.Selection{Faces: faceIDs(face), Mark: geometry.MarkBaseFace}, nil
	}
	if edges := geometry.LinearEdges(snap.edges, 0); len(edges) > 0 {
		return geometry.Selection{Edges: edgeIDs(edges[:1]), Mark: geometry.MarkBendEdge}, nil
	}
	return geometry.Selection{}, domain.ErrNoCandidate
}

func describe(sel geometry.Selection) string {
	return fmt.Sprintf("faces=%d edges=%d mark=%d", len(sel.Faces), len(sel.Edges), sel.Mark)
}

// Package memory is an in-process geometry provider. It stores pre-analysed
// face and edge descriptors plus an append-only feature history, and lets
// tests and offline tools script how the kernel reacts to each insert.
package memory

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry"
)

// idStride separates handle generations.
const idStride = 1_000_000

// Op names a mutating kernel call.
type Op string

const (
	OpConvert Op = "convert"
	OpBends   Op = "bends"
)

// Outcome scripts the kernel's reaction to an insert.
type Outcome struct {
	// Err is returned from the insert after Extra features are appended.
	Err error
	// Extra features the kernel leaves in history before reporting Err.
	Extra int
	// SheetMetal adds a sheet-metal feature.
	SheetMetal bool
	// FlatPattern adds a suppressed flat-pattern feature.
	FlatPattern bool
	// VolumeFactor scales the body volume while the feature exists; zero means 1.
	VolumeFactor float64
	// Thickness overrides the thickness the kernel reports on the new feature.
	Thickness float64
}

// Hook decides the outcome of an insert.
type Hook func(op Op, sel geometry.Selection, p geometry.BendParams) Outcome

// DefaultHook succeeds and materializes a sheet-metal feature with a
// suppressed flat pattern.
func DefaultHook(Op, geometry.Selection, geometry.BendParams) Outcome {
	return Outcome{SheetMetal: true, FlatPattern: true}
}

// Kernel holds the scriptable behaviour of the model.
type Kernel struct {
	Insert Hook
	// RebuildAddsFlatPattern makes a forced rebuild create a missing flat
	// pattern when a sheet-metal feature exists.
	RebuildAddsFlatPattern bool
	// FlattenCreatesPattern makes SetFlatState(Flattened) materialize an
	// active flat pattern when none exists.
	FlattenCreatesPattern bool
	RebuildErr            error
	ParamsErr             error
	SaveErr               error
	TruncateErr           error
}

type feature struct {
	geometry.Feature
	volumeFactor float64
}

// Model is an in-memory document.
type Model struct {
	Name   string
	Kernel Kernel

	caps     geometry.Capabilities
	solids   []*Solid
	surfaces int
	host     *Host

	features []feature
	nextID   int64
	gen      int64
	flat     geometry.FlatState
	saves    int
	log      []string
}

// NewModel builds a document over the given solids with every capability on.
func NewModel(solids ...*Solid) *Model {
	m := &Model{
		Kernel: Kernel{Insert: DefaultHook, FlattenCreatesPattern: true},
		caps: geometry.Capabilities{
			Version:           2,
			PrincipalAxes:     true,
			ThicknessAnalysis: true,
			Sectioning:        true,
			DirectFlatState:   true,
		},
		solids: solids,
		nextID: 1,
		flat:   geometry.FlatUnknown,
	}
	m.host = &Host{model: m}
	return m
}

// SetCapabilities replaces the reported capabilities.
func (m *Model) SetCapabilities(c geometry.Capabilities) { m.caps = c }

// SetSurfaceBodies sets the number of surface bodies in the document.
func (m *Model) SetSurfaceBodies(n int) { m.surfaces = n }

// Host exposes the thickness host for scripting, even when the capability is off.
func (m *Model) Host() *Host { return m.host }

// AddFeature appends a pre-existing feature, as loaded from a part file.
func (m *Model) AddFeature(name string, kind geometry.FeatureKind, p geometry.BendParams) {
	m.appendFeature(name, kind, false, p, 1)
}

// Saves returns how many times the document was saved.
func (m *Model) Saves() int { return m.saves }

// Log returns the mutation journal.
func (m *Model) Log() []string {
	out := make([]string, len(m.log))
	copy(out, m.log)
	return out
}

// Generation returns the current handle generation.
func (m *Model) Generation() int64 { return m.gen }

// Capabilities implements geometry.Document.
func (m *Model) Capabilities() geometry.Capabilities { return m.caps }

// SolidBodies implements geometry.Document.
func (m *Model) SolidBodies() []geometry.Body {
	out := make([]geometry.Body, 0, len(m.solids))
	for _, s := range m.solids {
		out = append(out, &bodyView{model: m, solid: s, gen: m.gen})
	}
	return out
}

// SurfaceBodyCount implements geometry.Document.
func (m *Model) SurfaceBodyCount() int { return m.surfaces }

// ThicknessHost implements geometry.Document.
func (m *Model) ThicknessHost() geometry.ThicknessHost {
	if !m.caps.ThicknessAnalysis {
		return nil
	}
	return m.host
}

// Features implements geometry.Document.
func (m *Model) Features() []geometry.Feature {
	out := make([]geometry.Feature, len(m.features))
	for i, f := range m.features {
		out[i] = f.Feature
	}
	return out
}

// Bookmark implements geometry.Document.
func (m *Model) Bookmark() domain.FeatureBookmark {
	return domain.FeatureBookmark{Index: len(m.features) - 1}
}

// TruncateAfter implements geometry.Document.
func (m *Model) TruncateAfter(b domain.FeatureBookmark) error {
	if m.Kernel.TruncateErr != nil {
		return m.Kernel.TruncateErr
	}
	keep := b.Index + 1
	if keep < 0 || keep > len(m.features) {
		return fmt.Errorf("bookmark %d outside history of %d features", b.Index, len(m.features))
	}
	for i := len(m.features) - 1; i >= keep; i-- {
		m.log = append(m.log, "delete "+m.features[i].Name)
		m.features = m.features[:i]
	}
	m.gen++
	m.refreshFlatState()
	return nil
}

// InsertSheetMetal implements geometry.Document.
func (m *Model) InsertSheetMetal(sel geometry.Selection, p geometry.BendParams) error {
	return m.insert(OpConvert, sel, p)
}

// InsertBends implements geometry.Document.
func (m *Model) InsertBends(sel geometry.Selection, p geometry.BendParams) error {
	return m.insert(OpBends, sel, p)
}

func (m *Model) insert(op Op, sel geometry.Selection, p geometry.BendParams) error {
	if sel.Empty() {
		return fmt.Errorf("%s: empty selection", op)
	}
	if err := m.checkHandles(sel); err != nil {
		return err
	}
	m.log = append(m.log, fmt.Sprintf("%s faces=%d edges=%d t=%.4f r=%.4f k=%.2f",
		op, len(sel.Faces), len(sel.Edges), p.Thickness, p.Radius, p.KFactor))

	hook := m.Kernel.Insert
	if hook == nil {
		hook = DefaultHook
	}
	out := hook(op, sel, p)

	for i := 0; i < out.Extra; i++ {
		m.appendFeature(fmt.Sprintf("Partial%d", m.nextID), geometry.FeatureOther, false, geometry.BendParams{}, 1)
	}
	if out.Err != nil {
		m.gen++
		return out.Err
	}

	if out.SheetMetal {
		reported := p
		reported.Thickness = m.reportedThickness(op, p, out)
		m.appendFeature(fmt.Sprintf("Sheet-Metal%d", m.nextID), geometry.FeatureSheetMetal, false, reported, out.VolumeFactor)
		if op == OpBends {
			m.appendFeature(fmt.Sprintf("Flatten-Bends%d", m.nextID), geometry.FeatureBends, false, reported, 1)
		}
	}
	if out.FlatPattern {
		m.appendFeature(fmt.Sprintf("Flat-Pattern%d", m.nextID), geometry.FeatureFlatPattern, true, geometry.BendParams{}, 1)
	}
	m.gen++
	m.refreshFlatState()
	return nil
}

func (m *Model) reportedThickness(op Op, p geometry.BendParams, out Outcome) float64 {
	if out.Thickness > 0 {
		return out.Thickness
	}
	nominal := 0.0
	if len(m.solids) > 0 {
		nominal = m.solids[0].NominalThickness
	}
	switch op {
	case OpBends:
		// The bends feature derives thickness from the body.
		if nominal > 0 {
			return nominal
		}
		return p.Thickness
	default:
		if p.Thickness > 0 {
			return p.Thickness
		}
		return nominal
	}
}

func (m *Model) checkHandles(sel geometry.Selection) error {
	for _, id := range sel.Faces {
		if !m.validID(int64(id), m.faceCount()) {
			return domain.WrapEngineError(domain.ErrStaleHandle.Code, "select face", fmt.Errorf("handle %d", id))
		}
	}
	for _, id := range sel.Edges {
		if !m.validID(int64(id), m.edgeCount()) {
			return domain.WrapEngineError(domain.ErrStaleHandle.Code, "select edge", fmt.Errorf("handle %d", id))
		}
	}
	return nil
}

func (m *Model) validID(id int64, n int) bool {
	if id/idStride != m.gen {
		return false
	}
	idx := id%idStride - 1
	return idx >= 0 && idx < int64(n)
}

func (m *Model) faceCount() int {
	if len(m.solids) == 0 {
		return 0
	}
	return len(m.solids[0].Faces)
}

func (m *Model) edgeCount() int {
	if len(m.solids) == 0 {
		return 0
	}
	return len(m.solids[0].Edges)
}

func (m *Model) appendFeature(name string, kind geometry.FeatureKind, suppressed bool, p geometry.BendParams, factor float64) {
	if factor == 0 {
		factor = 1
	}
	m.features = append(m.features, feature{
		Feature: geometry.Feature{
			ID:         m.nextID,
			Name:       name,
			Kind:       kind,
			Suppressed: suppressed,
			Params:     p,
		},
		volumeFactor: factor,
	})
	m.nextID++
}

func (m *Model) indexOf(id int64) int {
	for i, f := range m.features {
		if f.ID == id {
			return i
		}
	}
	return -1
}

// SetFeatureParams implements geometry.Document.
func (m *Model) SetFeatureParams(id int64, p geometry.BendParams) error {
	if m.Kernel.ParamsErr != nil {
		return m.Kernel.ParamsErr
	}
	i := m.indexOf(id)
	if i < 0 {
		return fmt.Errorf("feature %d not found", id)
	}
	m.features[i].Params = p
	m.log = append(m.log, "params "+m.features[i].Name)
	return nil
}

// SetSuppressed implements geometry.Document.
func (m *Model) SetSuppressed(id int64, suppressed bool) error {
	i := m.indexOf(id)
	if i < 0 {
		return fmt.Errorf("feature %d not found", id)
	}
	m.features[i].Suppressed = suppressed
	m.refreshFlatState()
	return nil
}

// FlatState implements geometry.Document.
func (m *Model) FlatState() geometry.FlatState { return m.flat }

// SetFlatState implements geometry.Document.
func (m *Model) SetFlatState(s geometry.FlatState) error {
	if !m.caps.DirectFlatState {
		return fmt.Errorf("kernel version %d cannot set flat state directly", m.caps.Version)
	}
	if !IsValidFlatTransition(m.flat, s) {
		return domain.NewEngineError(domain.ErrInvalidFlatState.Code,
			fmt.Sprintf("illegal flat transition %s -> %s", m.flat, s))
	}
	if _, ok := geometry.FindFeature(m, geometry.FeatureSheetMetal); !ok {
		return fmt.Errorf("no sheet-metal feature")
	}

	fp, ok := geometry.FindFeature(m, geometry.FeatureFlatPattern)
	switch {
	case ok:
		return m.SetSuppressed(fp.ID, s != geometry.FlatFlattened)
	case s == geometry.FlatFlattened && m.Kernel.FlattenCreatesPattern:
		m.appendFeature(fmt.Sprintf("Flat-Pattern%d", m.nextID), geometry.FeatureFlatPattern, false, geometry.BendParams{}, 1)
		m.refreshFlatState()
		return nil
	default:
		m.flat = s
		return nil
	}
}

// Rebuild implements geometry.Document.
func (m *Model) Rebuild(force bool) error {
	if m.Kernel.RebuildErr != nil {
		return m.Kernel.RebuildErr
	}
	m.log = append(m.log, fmt.Sprintf("rebuild force=%t", force))
	if force && m.Kernel.RebuildAddsFlatPattern {
		_, hasSM := geometry.FindFeature(m, geometry.FeatureSheetMetal)
		_, hasFP := geometry.FindFeature(m, geometry.FeatureFlatPattern)
		if hasSM && !hasFP {
			m.appendFeature(fmt.Sprintf("Flat-Pattern%d", m.nextID), geometry.FeatureFlatPattern, true, geometry.BendParams{}, 1)
		}
	}
	m.refreshFlatState()
	return nil
}

// Save implements geometry.Document.
func (m *Model) Save() error {
	if m.Kernel.SaveErr != nil {
		return m.Kernel.SaveErr
	}
	m.saves++
	m.log = append(m.log, "save")
	return nil
}

func (m *Model) refreshFlatState() {
	fp, ok := geometry.FindFeature(m, geometry.FeatureFlatPattern)
	switch {
	case !ok:
		m.flat = geometry.FlatUnknown
	case fp.Suppressed:
		m.flat = geometry.FlatFormed
	default:
		m.flat = geometry.FlatFlattened
	}
}

func (m *Model) volumeFactor() float64 {
	f := 1.0
	for _, ft := range m.features {
		f *= ft.volumeFactor
	}
	return f
}

// validFlatTransitions defines the legal fold-state transitions.
var validFlatTransitions = map[geometry.FlatState]map[geometry.FlatState]bool{
	geometry.FlatUnknown:   {geometry.FlatFormed: true, geometry.FlatFlattened: true},
	geometry.FlatFormed:    {geometry.FlatFlattened: true},
	geometry.FlatFlattened: {geometry.FlatFormed: true},
}

// IsValidFlatTransition checks if a fold-state transition is legal.
func IsValidFlatTransition(from, to geometry.FlatState) bool {
	targets, ok := validFlatTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// bodyView is a generation-stamped view of a solid.
type bodyView struct {
	model *Model
	solid *Solid
	gen   int64
}

func (b *bodyView) faceID(i int) geometry.FaceID {
	return geometry.FaceID(b.gen*idStride + int64(i) + 1)
}

func (b *bodyView) edgeID(i int) geometry.EdgeID {
	return geometry.EdgeID(b.gen*idStride + int64(i) + 1)
}

func (b *bodyView) Faces() []geometry.Face {
	out := make([]geometry.Face, len(b.solid.Faces))
	for i, fs := range b.solid.Faces {
		f := geometry.Face{
			ID:     b.faceID(i),
			Kind:   fs.Kind,
			Area:   fs.Area,
			Normal: fs.Normal,
			Origin: fs.Origin,
			Axis:   fs.Axis,
			Radius: fs.Radius,
		}
		for _, e := range fs.Edges {
			f.Edges = append(f.Edges, b.edgeID(e))
		}
		out[i] = f
	}
	return out
}

func (b *bodyView) Edges() []geometry.Edge {
	out := make([]geometry.Edge, len(b.solid.Edges))
	for i, es := range b.solid.Edges {
		e := geometry.Edge{ID: b.edgeID(i), Kind: es.Kind, Length: es.Length}
		for _, f := range es.Faces {
			e.Faces = append(e.Faces, b.faceID(f))
		}
		out[i] = e
	}
	return out
}

func (b *bodyView) Volume() (float64, error) {
	return b.solid.Volume * b.model.volumeFactor(), nil
}

func (b *bodyView) PrincipalAxes() ([3]r3.Vec, bool) {
	if !b.model.caps.PrincipalAxes || b.solid.Axes == nil {
		return [3]r3.Vec{}, false
	}
	return *b.solid.Axes, true
}

func (b *bodyView) ExtremePoint(dir r3.Vec) (r3.Vec, error) {
	if len(b.solid.Vertices) == 0 {
		return r3.Vec{}, fmt.Errorf("body has no vertices")
	}
	best := b.solid.Vertices[0]
	bestDot := r3.Dot(best, dir)
	for _, v := range b.solid.Vertices[1:] {
		if d := r3.Dot(v, dir); d > bestDot {
			best, bestDot = v, d
		}
	}
	return best, nil
}

func (b *bodyView) SectionArea(origin, normal r3.Vec) (float64, error) {
	if !b.model.caps.Sectioning {
		return 0, fmt.Errorf("sectioning not supported by kernel version %d", b.model.caps.Version)
	}
	n := r3.Unit(normal)
	lo, hi := b.extent(n)
	if hi-lo <= 0 {
		return 0, fmt.Errorf("degenerate extent")
	}
	at := (r3.Dot(origin, n) - lo) / (hi - lo)
	if at < 0 || at > 1 {
		return 0, nil
	}
	if b.solid.Section != nil {
		return b.solid.Section(n, at)
	}
	// Prismatic default: constant section along any direction.
	return b.solid.Volume / (hi - lo), nil
}

func (b *bodyView) extent(n r3.Vec) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range b.solid.Vertices {
		d := r3.Dot(v, n)
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}
	return lo, hi
}

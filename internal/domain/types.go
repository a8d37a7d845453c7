// Package domain defines the core types for the sheet-metal engine.
package domain

import "gonum.org/v1/gonum/spatial/r3"

// MM is the number of inches in one millimetre. Geometry is exchanged in
// inches; millimetre thresholds are written as multiples of MM.
const MM = 1.0 / 25.4

// MM2 is the number of square inches in one square millimetre.
const MM2 = MM * MM

// PartPile is the outcome of classifying a body.
type PartPile string

const (
	PileStick      PartPile = "stick"
	PileSheetMetal PartPile = "sheet_metal"
	PileOther      PartPile = "other"
)

// AxisTally accumulates face area against one principal axis.
type AxisTally struct {
	Axis     r3.Vec  `json:"axis"`
	SideArea float64 `json:"side_area"`
	CapArea  float64 `json:"cap_area"`
}

// PrepassMetrics is the output of one scan over a body's faces.
type PrepassMetrics struct {
	TotalArea       float64      `json:"total_area"`
	DevelopableArea float64      `json:"developable_area"`
	Axes            [3]AxisTally `json:"axes"`
	// Spans holds the oriented extents sorted so Spans[0] >= Spans[1] >= Spans[2].
	Spans [3]float64 `json:"spans"`
}

// DevelopableShare is the planar+cylindrical+conical fraction of total area.
func (m PrepassMetrics) DevelopableShare() float64 {
	return share(m.DevelopableArea, m.TotalArea)
}

// SideShare returns the side-area fraction for axis i.
func (m PrepassMetrics) SideShare(i int) float64 {
	return share(m.Axes[i].SideArea, m.TotalArea)
}

// CapShare returns the cap-area fraction for axis i.
func (m PrepassMetrics) CapShare(i int) float64 {
	return share(m.Axes[i].CapArea, m.TotalArea)
}

func share(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return part / total
}

// ThicknessSource records which tier produced a thickness estimate.
type ThicknessSource string

const (
	SourceNone         ThicknessSource = ""
	SourceAnalysis     ThicknessSource = "analysis"
	SourceSeed         ThicknessSource = "seed"
	SourcePlanarPair   ThicknessSource = "planar_pair"
	SourceCoaxialShell ThicknessSource = "coaxial_shell"
)

// ThicknessEstimate is the dominant wall thickness and the fraction of the
// surface within ±5% of it. A zero Thickness means "not found".
type ThicknessEstimate struct {
	Thickness float64         `json:"thickness"`
	Coverage  float64         `json:"coverage"`
	Source    ThicknessSource `json:"source,omitempty"`
}

// Found reports whether the estimate carries a usable thickness.
func (e ThicknessEstimate) Found() bool {
	return e.Thickness > 0
}

// ClassificationResult is the funnel output with the metrics that drove it.
type ClassificationResult struct {
	Pile      PartPile          `json:"pile"`
	Reason    string            `json:"reason"`
	Metrics   PrepassMetrics    `json:"metrics"`
	Thickness ThicknessEstimate `json:"thickness"`
	StickAxis int               `json:"stick_axis"`
	ThinRatio float64           `json:"thin_ratio"`
	// ConstantSection is nil when the section check was not needed.
	ConstantSection *bool `json:"constant_section,omitempty"`
}

// FeatureBookmark marks the last feature in history before a mutation.
type FeatureBookmark struct {
	// Index of the last feature, or -1 when the history was empty.
	Index int `json:"index"`
}

// None reports whether the bookmark was taken on an empty history.
func (b FeatureBookmark) None() bool {
	return b.Index < 0
}

// StrategyKind identifies a conversion strategy.
type StrategyKind string

const (
	StrategyConvertWholeBody StrategyKind = "convert_whole_body"
	StrategyBendOnEdge       StrategyKind = "bend_on_edge"
	StrategyFaceBasedBend    StrategyKind = "face_based_bend"
)

// Overrides are caller-supplied values that replace derived parameters.
// Zero means "derive".
type Overrides struct {
	Thickness  float64 `json:"thickness,omitempty"`
	BendRadius float64 `json:"bend_radius,omitempty"`
	KFactor    float64 `json:"k_factor,omitempty"`
}

// ConversionContext is the per-part conversion state. It is created at
// pipeline entry, mutated by strategies and returned to the caller.
type ConversionContext struct {
	RunID         string    `json:"run_id"`
	FilePath      string    `json:"file_path"`
	Configuration string    `json:"configuration"`
	Overrides     Overrides `json:"overrides"`

	InitialVolume float64      `json:"initial_volume"`
	FinalVolume   float64      `json:"final_volume"`
	Thickness     float64      `json:"thickness"`
	BendRadius    float64      `json:"bend_radius"`
	KFactor       float64      `json:"k_factor"`
	Strategy      StrategyKind `json:"strategy,omitempty"`
	Success       bool         `json:"success"`
	Problem       string       `json:"problem,omitempty"`
}

// PreflightCounts are the diagnostic tallies behind a preflight verdict.
type PreflightCounts struct {
	SolidBodies    int     `json:"solid_bodies"`
	SurfaceBodies  int     `json:"surface_bodies"`
	Volume         float64 `json:"volume"`
	Edges          int     `json:"edges"`
	NonLinearEdges int     `json:"non_linear_edges"`
	MicroFaces     int     `json:"micro_faces"`
	KnifeEdges     int     `json:"knife_edges"`
}

// PreflightResult is the output of the fast reject filter.
type PreflightResult struct {
	IsProblem bool            `json:"is_problem"`
	Hard      bool            `json:"hard"`
	Reason    string          `json:"reason,omitempty"`
	Counts    PreflightCounts `json:"counts"`
}

// Problem categories registered with the tracker.
const (
	ProblemPreflight  = "preflight"
	ProblemConversion = "conversion"
	ProblemInput      = "input"
	ProblemInternal   = "internal"
)

// Problem is a part that was excluded from, or failed, automatic conversion.
type Problem struct {
	ID            string `json:"id"`
	RunID         string `json:"run_id"`
	FilePath      string `json:"file_path"`
	Configuration string `json:"configuration"`
	Category      string `json:"category"`
	Reason        string `json:"reason"`
	CreatedAt     int64  `json:"created_at"`
}

// Attempt outcomes.
const (
	OutcomeSucceeded  = "succeeded"
	OutcomeFailed     = "failed"
	OutcomeRolledBack = "rolled_back"
	OutcomeCancelled  = "cancelled"
)

// AttemptRecord logs one strategy attempt within a run.
type AttemptRecord struct {
	ID        int64        `json:"id"`
	RunID     string       `json:"run_id"`
	SeqNo     int64        `json:"seq_no"`
	Strategy  StrategyKind `json:"strategy"`
	Outcome   string       `json:"outcome"`
	Detail    string       `json:"detail"`
	CreatedAt int64        `json:"created_at"`
}

// ClassificationRecord is a persisted classification for a file.
type ClassificationRecord struct {
	ID            int64    `json:"id"`
	RunID         string   `json:"run_id"`
	FilePath      string   `json:"file_path"`
	Configuration string   `json:"configuration"`
	Pile          PartPile `json:"pile"`
	Thickness     float64  `json:"thickness"`
	Coverage      float64  `json:"coverage"`
	Reason        string   `json:"reason"`
	CreatedAt     int64    `json:"created_at"`
}

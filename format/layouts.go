package format

// Field names of the band-excitation response (SHO fit) records consumed by the pipeline.
const (
	FieldAmplitude = "Amplitude [V]"
	FieldPhase     = "Phase [rad]"
	FieldFrequency = "Frequency [Hz]"
	FieldQuality   = "Quality Factor"
)

// SHOLayout is the per-cell layout of the response table.
var SHOLayout = Layout{
	Name:   "sho32",
	Fields: []string{FieldAmplitude, FieldFrequency, FieldQuality, FieldPhase},
}

// LoopMetricsLayout holds the geometric metrics of one projected loop.
var LoopMetricsLayout = Layout{
	Name:   "loop_metrics32",
	Fields: []string{"Area", "Centroid x", "Centroid y", "Rotation Angle [rad]", "Offset"},
}

// LoopFitLayout holds the nine loop-model coefficients and the goodness score.
var LoopFitLayout = Layout{
	Name:   "loop_fit32",
	Fields: []string{"a_0", "a_1", "a_2", "a_3", "a_4", "b_0", "b_1", "b_2", "b_3", "R2 Criterion"},
}

// SwitchingLayout holds the physical switching parameters derived from a loop fit.
var SwitchingLayout = Layout{
	Name: "switching32",
	Fields: []string{
		"V+", "V-", "Imprint", "R+", "R-",
		"Switchable Polarization", "Work of Switching",
		"Nucleation Bias 1", "Nucleation Bias 2",
	},
}

// ProjectedLayout is the layout of the projected loop table.
var ProjectedLayout = Scalar("Projected Response")

// IndexLayout and ValueLayout are the layouts of the spectroscopic and position axis tables.
var (
	IndexLayout = Scalar("Index")
	ValueLayout = Scalar("Value")
)

// Names of tables and links used by the pipeline.
const (
	ProjectedLoops       = "Projected_Loops"
	LoopMetrics          = "Loop_Metrics"
	LoopMetricsIndices   = "Loop_Metrics_Indices"
	LoopMetricsValues    = "Loop_Metrics_Values"
	Guess                = "Guess"
	Fit                  = "Fit"
	LoopParametersSuffix = "_Loop_Parameters"

	SpectroscopicIndices = "Spectroscopic_Indices"
	SpectroscopicValues  = "Spectroscopic_Values"
	PositionIndices      = "Position_Indices"
	PositionValues       = "Position_Values"

	// AttrLabels is the attribute holding the axis labels of an index or value table.
	AttrLabels = "labels"

	// Attributes of a loop-fit group.
	AttrProjectionMethod = "projection_method"
	AttrGuessMethod      = "guess method"
	AttrFitMethod        = "fit method"
	AttrSource           = "source"

	// AttrNucThreshold is the attribute holding the nucleation threshold of a parameters table.
	AttrNucThreshold = "nuc_threshold"
)

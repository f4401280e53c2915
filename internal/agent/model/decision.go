package model

// Decision contracts returned by the reasoning oracle for each routing stage.
// Each struct is the validated form of a stage-specific structured output:
// one decision field that drives graph routing plus a free-text rationale.
// Field names mirror the JSON schemas in the oracle package; parsing must
// reject payloads that do not validate against those schemas.

// AnalysisType categorizes an analytical plan and selects the matching
// sandbox bootstrap source.
type AnalysisType string

const (
	AnalysisDescriptive AnalysisType = "descriptive"
	AnalysisDiagnostic  AnalysisType = "diagnostic"
	AnalysisPredictive  AnalysisType = "predictive"
	AnalysisInferential AnalysisType = "inferential"
)

// ValidAnalysisType reports whether t is one of the known analysis types.
func ValidAnalysisType(t AnalysisType) bool {
	switch t {
	case AnalysisDescriptive, AnalysisDiagnostic, AnalysisPredictive, AnalysisInferential:
		return true
	}
	return false
}

// IntentComprehension captures which prior conversation turns are required to
// understand or fulfill the current user request.
type IntentComprehension struct {
	RelevantTurns []string `json:"relevant_turns"`
	Rationale     string   `json:"rationale"`
}

// RequestClassification decides whether a request falls within the business
// analytics domain.
type RequestClassification struct {
	InDomain  bool   `json:"request_is_business_analytical_domain"`
	Rationale string `json:"rationale"`
}

// AnalyticalRequirement decides whether answering the request requires an
// analytical process at all.
type AnalyticalRequirement struct {
	Required  bool   `json:"analytical_process_is_required"`
	Rationale string `json:"rationale"`
}

// DataAvailability decides whether the external database holds the data
// needed to support the analytical process.
type DataAvailability struct {
	Available bool   `json:"data_is_available"`
	Rationale string `json:"rationale"`
}

// DataRetrievalPlan carries the SQL statement that extracts raw data from the
// external database into the analytical workspace.
type DataRetrievalPlan struct {
	SQLQuery  *string `json:"sql_query"`
	Rationale string  `json:"rationale"`
}

// DataRetrievalObservation evaluates whether the retrieved dataset is
// sufficient for the intended downstream analysis.
type DataRetrievalObservation struct {
	Sufficient bool   `json:"result_is_sufficient"`
	Rationale  string `json:"rationale"`
}

// AnalyticalStep is one computational transformation in an analytical plan.
// Steps describe what to run without executing or interpreting anything.
type AnalyticalStep struct {
	Number      int     `json:"number"`
	Description string  `json:"description"`
	InputDF     *string `json:"input_df"`
	OutputDF    string  `json:"output_df"`
	PythonCode  string  `json:"python_code"`
	Rationale   string  `json:"rationale"`
}

// AnalyticalPlan is an ordered sequence of computational steps executed later
// in the sandbox, tagged with the analysis type that selects the bootstrap.
type AnalyticalPlan struct {
	AnalysisType AnalysisType     `json:"analysis_type"`
	Plan         []AnalyticalStep `json:"plan"`
	Rationale    string           `json:"rationale"`
}

// AnalyticalObservation evaluates whether sandbox execution results fulfil
// the analytical plan.
type AnalyticalObservation struct {
	Sufficient bool   `json:"result_is_sufficient"`
	Rationale  string `json:"rationale"`
}

// InfographicRequirement decides whether a visualization would enhance the
// analytical result.
type InfographicRequirement struct {
	Required  bool   `json:"infographic_is_required"`
	Rationale string `json:"rationale"`
}

// InfographicStep is one plotting step in an infographic plan.
type InfographicStep struct {
	Number          int     `json:"number"`
	Description     string  `json:"description"`
	InputDF         *string `json:"input_df"`
	OutputGraphPath string  `json:"output_graph_path"`
	PythonCode      string  `json:"python_code"`
	Rationale       string  `json:"rationale"`
}

// InfographicPlan is an ordered sequence of plotting steps.
type InfographicPlan struct {
	Plan      []InfographicStep `json:"plan"`
	Rationale string            `json:"rationale"`
}

// InfographicObservation evaluates whether the rendered infographic fulfils
// the infographic plan.
type InfographicObservation struct {
	Sufficient bool   `json:"result_is_sufficient"`
	Rationale  string `json:"rationale"`
}

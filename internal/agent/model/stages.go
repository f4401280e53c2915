package model

// Stage names of the orchestration graph. These are also the prompt registry
// keys and the stage labels published on the UI event stream.
const (
	StageIntentComprehension        = "intent_comprehension"
	StageRequestClassification      = "request_classification"
	StagePuntResponse               = "punt_response"
	StageAnalyticalRequirement      = "analytical_requirement"
	StageDirectResponse             = "direct_response"
	StageDataAvailability           = "data_availability"
	StageDataUnavailabilityResponse = "data_unavailability_response"
	StageDataRetrievalPlanning      = "data_retrieval_planning"
	StageDataRetrievalExecution     = "data_retrieval_execution"
	StageDataRetrievalObservation   = "data_retrieval_observation"
	StageAnalyticalPlanning         = "analytical_planning"
	StageAnalyticalPlanExecution    = "analytical_plan_execution"
	StageAnalyticalObservation      = "analytical_observation"
	StageAnalyticalResult           = "analytical_result"
	StageInfographicRequirement     = "infographic_requirement"
	StageInfographicPlanning        = "infographic_planning"
	StageInfographicPlanExecution   = "infographic_plan_execution"
	StageInfographicObservation     = "infographic_observation"
	StageAnalyticalResponse         = "analytical_response"
	StageSummarization              = "summarization"
)

// Stages lists every stage in graph order.
var Stages = []string{
	StageIntentComprehension,
	StageRequestClassification,
	StagePuntResponse,
	StageAnalyticalRequirement,
	StageDirectResponse,
	StageDataAvailability,
	StageDataUnavailabilityResponse,
	StageDataRetrievalPlanning,
	StageDataRetrievalExecution,
	StageDataRetrievalObservation,
	StageAnalyticalPlanning,
	StageAnalyticalPlanExecution,
	StageAnalyticalObservation,
	StageAnalyticalResult,
	StageInfographicRequirement,
	StageInfographicPlanning,
	StageInfographicPlanExecution,
	StageInfographicObservation,
	StageAnalyticalResponse,
	StageSummarization,
}

// PromptVariant derives the registry key of a repair-loop re-entry prompt:
// the planning stage framed by the feedback stage that triggered it.
func PromptVariant(stage, feedbackStage string) string {
	return stage + "_from_" + feedbackStage
}

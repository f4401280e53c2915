package model

import (
	"github.com/cloudwego/eino/schema"
)

// State stores the per-turn mutable record for the orchestration graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Eino serializes access to state within these handlers, so no additional
//     mutex/atomic is required as long as you never touch it outside handlers.
//
// Messages is the authoritative conversational channel for the current turn:
// append-only, never reordered. Every other field is a per-stage result slot
// that stays nil until its producing stage runs; stages positioned after the
// producer are the only legal readers. Reading an empty required slot is a
// programming error surfaced as errx.ContractViolation, never defaulted.
type State struct {
	TurnNum  int
	Messages []*schema.Message // appended only inside Eino state handlers

	// Transient routing metadata consumed by the observing UI layer only.
	// Business logic never branches on these.
	UIPayload string
	NextNode  string

	IntentComprehension      *IntentComprehension
	RequestClassification    *RequestClassification
	AnalyticalRequirement    *AnalyticalRequirement
	DataAvailability         *DataAvailability
	DataRetrievalPlan        *DataRetrievalPlan
	DataRetrievalError       *QueryError // populated on validation/execution faults
	DataRetrievalObservation *DataRetrievalObservation
	AnalyticalPlan           *AnalyticalPlan
	AnalyticalExecution      *Execution
	AnalyticalObservation    *AnalyticalObservation
	AnalyticalResult         string
	InfographicRequirement   *InfographicRequirement
	InfographicPlan          *InfographicPlan
	InfographicExecution     *Execution
	InfographicObservation   *InfographicObservation

	// LastRejectedSQL remembers the most recent statement refused by the
	// safety gate or the database, so an identical resubmission is flagged
	// instead of reaching the data collaborator twice in a row.
	LastRejectedSQL string
}

// TurnInput is the public input for one user turn.
type TurnInput struct {
	TurnNum int    `json:"turn_num"`
	Query   string `json:"query"`
}

// StageOutcome is the uniform value passed along graph edges. It carries only
// routing metadata; all stage data lives in State. The same value feeds the
// UI-facing event stream.
type StageOutcome struct {
	Stage     string
	Route     string
	Rationale string
}

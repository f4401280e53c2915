package nodes

import (
	"context"

	"github.com/cloudwego/eino/compose"

	"github.com/reyharighy/cba-agentic-ai/internal/agent/graph/oracle"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/model"
)

// NewIntentComprehensionNode creates the graph entry stage. It reads the
// turn-numbered conversation summary and selects which prior turns are
// needed to understand the current request.
func NewIntentComprehensionNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ model.TurnInput) (*model.StageOutcome, error) {
		snap, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}

		summary, err := d.Composer.ConversationSummary(ctx)
		if err != nil {
			return nil, err
		}
		system, err := d.structuredSystemFor(ctx, model.StageIntentComprehension, oracle.SchemaIntentComprehension, summary)
		if err != nil {
			return nil, err
		}
		input, err := d.oracleInput(ctx, snap, system)
		if err != nil {
			return nil, err
		}

		var decision model.IntentComprehension
		if err := d.Oracle.CompleteStructured(ctx, oracle.TierLow, input, oracle.SchemaIntentComprehension, &decision); err != nil {
			return nil, err
		}

		if err := writeState(ctx, func(st *model.State) {
			st.IntentComprehension = &decision
		}); err != nil {
			return nil, err
		}
		if err := recordDecision(ctx, &decision); err != nil {
			return nil, err
		}

		out, err := outcome(ctx, model.StageIntentComprehension, model.StageRequestClassification, decision.Rationale)
		if err != nil {
			return nil, err
		}
		d.emit(ctx, snap.TurnNum, out, false)
		return out, nil
	})
}

// NewRequestClassificationNode decides whether the request belongs to the
// business analytics domain; anything else is punted.
func NewRequestClassificationNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.StageOutcome) (*model.StageOutcome, error) {
		snap, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}

		system, err := d.structuredSystemFor(ctx, model.StageRequestClassification, oracle.SchemaRequestClassification)
		if err != nil {
			return nil, err
		}
		input, err := d.oracleInput(ctx, snap, system)
		if err != nil {
			return nil, err
		}

		var decision model.RequestClassification
		if err := d.Oracle.CompleteStructured(ctx, oracle.TierLow, input, oracle.SchemaRequestClassification, &decision); err != nil {
			return nil, err
		}

		if err := writeState(ctx, func(st *model.State) {
			st.RequestClassification = &decision
		}); err != nil {
			return nil, err
		}
		if err := recordDecision(ctx, &decision); err != nil {
			return nil, err
		}

		route := model.StagePuntResponse
		if decision.InDomain {
			route = model.StageAnalyticalRequirement
		}
		out, err := outcome(ctx, model.StageRequestClassification, route, decision.Rationale)
		if err != nil {
			return nil, err
		}
		d.emit(ctx, snap.TurnNum, out, false)
		return out, nil
	})
}

// NewAnalyticalRequirementNode decides whether answering requires an
// analytical process or a direct response suffices.
func NewAnalyticalRequirementNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.StageOutcome) (*model.StageOutcome, error) {
		snap, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}

		system, err := d.structuredSystemFor(ctx, model.StageAnalyticalRequirement, oracle.SchemaAnalyticalRequirement)
		if err != nil {
			return nil, err
		}
		input, err := d.oracleInput(ctx, snap, system)
		if err != nil {
			return nil, err
		}

		var decision model.AnalyticalRequirement
		if err := d.Oracle.CompleteStructured(ctx, oracle.TierLow, input, oracle.SchemaAnalyticalRequirement, &decision); err != nil {
			return nil, err
		}

		if err := writeState(ctx, func(st *model.State) {
			st.AnalyticalRequirement = &decision
		}); err != nil {
			return nil, err
		}
		if err := recordDecision(ctx, &decision); err != nil {
			return nil, err
		}

		route := model.StageDirectResponse
		if decision.Required {
			route = model.StageDataAvailability
		}
		out, err := outcome(ctx, model.StageAnalyticalRequirement, route, decision.Rationale)
		if err != nil {
			return nil, err
		}
		d.emit(ctx, snap.TurnNum, out, false)
		return out, nil
	})
}

// NewDataAvailabilityNode judges, against the external database schema,
// whether the data needed for the analysis exists at all.
func NewDataAvailabilityNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.StageOutcome) (*model.StageOutcome, error) {
		snap, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}

		schemaInfo, err := d.Composer.DatabaseSchemaInfo(ctx)
		if err != nil {
			return nil, err
		}
		lastSQL, err := d.Composer.LastSavedSQL(ctx)
		if err != nil {
			return nil, err
		}
		system, err := d.structuredSystemFor(ctx, model.StageDataAvailability, oracle.SchemaDataAvailability, schemaInfo, lastSQL)
		if err != nil {
			return nil, err
		}
		input, err := d.oracleInput(ctx, snap, system)
		if err != nil {
			return nil, err
		}

		var decision model.DataAvailability
		if err := d.Oracle.CompleteStructured(ctx, oracle.TierLow, input, oracle.SchemaDataAvailability, &decision); err != nil {
			return nil, err
		}

		if err := writeState(ctx, func(st *model.State) {
			st.DataAvailability = &decision
		}); err != nil {
			return nil, err
		}
		if err := recordDecision(ctx, &decision); err != nil {
			return nil, err
		}

		route := model.StageDataUnavailabilityResponse
		if decision.Available {
			route = model.StageDataRetrievalPlanning
		}
		out, err := outcome(ctx, model.StageDataAvailability, route, decision.Rationale)
		if err != nil {
			return nil, err
		}
		d.emit(ctx, snap.TurnNum, out, false)
		return out, nil
	})
}

// NewDataRetrievalObservationNode judges whether the extracted dataset can
// support the intended analysis, looping back to planning when it cannot.
func NewDataRetrievalObservationNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.StageOutcome) (*model.StageOutcome, error) {
		snap, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}

		frameInfo, err := d.Composer.DataFrameSchemaInfo()
		if err != nil {
			return nil, err
		}
		generatedSQL, err := d.Composer.GeneratedSQL(snap, model.StageDataRetrievalObservation)
		if err != nil {
			return nil, err
		}
		system, err := d.structuredSystemFor(ctx, model.StageDataRetrievalObservation, oracle.SchemaDataRetrievalObservation, frameInfo, generatedSQL)
		if err != nil {
			return nil, err
		}
		input, err := d.oracleInput(ctx, snap, system)
		if err != nil {
			return nil, err
		}

		var decision model.DataRetrievalObservation
		if err := d.Oracle.CompleteStructured(ctx, oracle.TierMedium, input, oracle.SchemaDataRetrievalObservation, &decision); err != nil {
			return nil, err
		}

		if err := writeState(ctx, func(st *model.State) {
			if decision.Sufficient {
				st.DataRetrievalObservation = nil
			} else {
				st.DataRetrievalObservation = &decision
			}
		}); err != nil {
			return nil, err
		}
		if err := recordDecision(ctx, &decision); err != nil {
			return nil, err
		}

		route := model.StageDataRetrievalPlanning
		if decision.Sufficient {
			route = model.StageAnalyticalPlanning
		}
		out, err := outcome(ctx, model.StageDataRetrievalObservation, route, decision.Rationale)
		if err != nil {
			return nil, err
		}
		d.emit(ctx, snap.TurnNum, out, false)
		return out, nil
	})
}

// NewAnalyticalObservationNode judges whether the sandbox execution results
// fulfil the analytical plan.
func NewAnalyticalObservationNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.StageOutcome) (*model.StageOutcome, error) {
		snap, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}

		planDigest, err := d.Composer.AnalyticalPlanDigest(snap, model.StageAnalyticalObservation)
		if err != nil {
			return nil, err
		}
		stdout, err := d.Composer.ExecutionStdout(snap.AnalyticalExecution, "analytical_execution", model.StageAnalyticalObservation)
		if err != nil {
			return nil, err
		}
		system, err := d.structuredSystemFor(ctx, model.StageAnalyticalObservation, oracle.SchemaAnalyticalObservation, planDigest, stdout)
		if err != nil {
			return nil, err
		}
		input, err := d.oracleInput(ctx, snap, system)
		if err != nil {
			return nil, err
		}

		var decision model.AnalyticalObservation
		if err := d.Oracle.CompleteStructured(ctx, oracle.TierMedium, input, oracle.SchemaAnalyticalObservation, &decision); err != nil {
			return nil, err
		}

		if err := writeState(ctx, func(st *model.State) {
			if decision.Sufficient {
				st.AnalyticalObservation = nil
			} else {
				st.AnalyticalObservation = &decision
			}
		}); err != nil {
			return nil, err
		}
		if err := recordDecision(ctx, &decision); err != nil {
			return nil, err
		}

		route := model.StageAnalyticalPlanning
		if decision.Sufficient {
			route = model.StageAnalyticalResult
		}
		out, err := outcome(ctx, model.StageAnalyticalObservation, route, decision.Rationale)
		if err != nil {
			return nil, err
		}
		d.emit(ctx, snap.TurnNum, out, false)
		return out, nil
	})
}

// NewInfographicRequirementNode decides whether a visualization would
// enhance the finalized analytical result.
func NewInfographicRequirementNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.StageOutcome) (*model.StageOutcome, error) {
		snap, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}

		result, err := d.Composer.AnalyticalResultContext(snap, model.StageInfographicRequirement)
		if err != nil {
			return nil, err
		}
		system, err := d.structuredSystemFor(ctx, model.StageInfographicRequirement, oracle.SchemaInfographicRequirement, result)
		if err != nil {
			return nil, err
		}
		input, err := d.oracleInput(ctx, snap, system)
		if err != nil {
			return nil, err
		}

		var decision model.InfographicRequirement
		if err := d.Oracle.CompleteStructured(ctx, oracle.TierLow, input, oracle.SchemaInfographicRequirement, &decision); err != nil {
			return nil, err
		}

		if err := writeState(ctx, func(st *model.State) {
			st.InfographicRequirement = &decision
		}); err != nil {
			return nil, err
		}
		if err := recordDecision(ctx, &decision); err != nil {
			return nil, err
		}

		route := model.StageAnalyticalResponse
		if decision.Required {
			route = model.StageInfographicPlanning
		}
		out, err := outcome(ctx, model.StageInfographicRequirement, route, decision.Rationale)
		if err != nil {
			return nil, err
		}
		d.emit(ctx, snap.TurnNum, out, false)
		return out, nil
	})
}

// NewInfographicObservationNode judges whether the rendered plots fulfil the
// infographic plan.
func NewInfographicObservationNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.StageOutcome) (*model.StageOutcome, error) {
		snap, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}

		planDigest, err := d.Composer.InfographicPlanDigest(snap, model.StageInfographicObservation)
		if err != nil {
			return nil, err
		}
		stdout, err := d.Composer.ExecutionStdout(snap.InfographicExecution, "infographic_execution", model.StageInfographicObservation)
		if err != nil {
			return nil, err
		}
		system, err := d.structuredSystemFor(ctx, model.StageInfographicObservation, oracle.SchemaInfographicObservation, planDigest, stdout)
		if err != nil {
			return nil, err
		}
		input, err := d.oracleInput(ctx, snap, system)
		if err != nil {
			return nil, err
		}

		var decision model.InfographicObservation
		if err := d.Oracle.CompleteStructured(ctx, oracle.TierMedium, input, oracle.SchemaInfographicObservation, &decision); err != nil {
			return nil, err
		}

		if err := writeState(ctx, func(st *model.State) {
			if decision.Sufficient {
				st.InfographicObservation = nil
			} else {
				st.InfographicObservation = &decision
			}
		}); err != nil {
			return nil, err
		}
		if err := recordDecision(ctx, &decision); err != nil {
			return nil, err
		}

		route := model.StageInfographicPlanning
		if decision.Sufficient {
			route = model.StageAnalyticalResponse
		}
		out, err := outcome(ctx, model.StageInfographicObservation, route, decision.Rationale)
		if err != nil {
			return nil, err
		}
		d.emit(ctx, snap.TurnNum, out, false)
		return out, nil
	})
}

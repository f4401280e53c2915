package nodes

import (
	"context"

	"github.com/cloudwego/eino/compose"

	"github.com/reyharighy/cba-agentic-ai/internal/agent/graph/oracle"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/model"
)

// NewDataRetrievalPlanningNode generates the SQL statement that extracts the
// working dataset. On re-entry after a failed execution or an insufficient
// observation it switches to the matching repair prompt, consumes the
// feedback slot, and clears it so the next attempt starts clean.
func NewDataRetrievalPlanningNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.StageOutcome) (*model.StageOutcome, error) {
		snap, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}

		schemaInfo, err := d.Composer.DatabaseSchemaInfo(ctx)
		if err != nil {
			return nil, err
		}

		var (
			key           string
			contextBlocks []string
		)
		switch {
		case snap.DataRetrievalError != nil:
			key = model.PromptVariant(model.StageDataRetrievalPlanning, model.StageDataRetrievalExecution)
			generatedSQL, err := d.Composer.GeneratedSQL(snap, key)
			if err != nil {
				return nil, err
			}
			feedback, err := d.Composer.RetrievalErrorFeedback(snap, key)
			if err != nil {
				return nil, err
			}
			contextBlocks = []string{schemaInfo, generatedSQL, feedback}
		case snap.DataRetrievalObservation != nil:
			key = model.PromptVariant(model.StageDataRetrievalPlanning, model.StageDataRetrievalObservation)
			generatedSQL, err := d.Composer.GeneratedSQL(snap, key)
			if err != nil {
				return nil, err
			}
			feedback, err := d.Composer.RetrievalObservationFeedback(snap, key)
			if err != nil {
				return nil, err
			}
			contextBlocks = []string{schemaInfo, generatedSQL, feedback}
		default:
			key = model.StageDataRetrievalPlanning
			frameInfo, err := d.Composer.DataFrameSchemaInfo()
			if err != nil {
				return nil, err
			}
			lastSQL, err := d.Composer.LastSavedSQL(ctx)
			if err != nil {
				return nil, err
			}
			contextBlocks = []string{schemaInfo, frameInfo, lastSQL}
		}

		system, err := d.structuredSystemFor(ctx, key, oracle.SchemaDataRetrievalPlan, contextBlocks...)
		if err != nil {
			return nil, err
		}
		input, err := d.oracleInput(ctx, snap, system)
		if err != nil {
			return nil, err
		}

		var plan model.DataRetrievalPlan
		if err := d.Oracle.CompleteStructured(ctx, oracle.TierMedium, input, oracle.SchemaDataRetrievalPlan, &plan); err != nil {
			return nil, err
		}

		if err := writeState(ctx, func(st *model.State) {
			st.DataRetrievalPlan = &plan
			st.DataRetrievalError = nil
			st.DataRetrievalObservation = nil
		}); err != nil {
			return nil, err
		}
		if err := recordDecision(ctx, &plan); err != nil {
			return nil, err
		}

		// A null statement means no query over the known schema can produce
		// the required data.
		route := model.StageDataRetrievalExecution
		if plan.SQLQuery == nil {
			route = model.StageDataUnavailabilityResponse
		}
		out, err := outcome(ctx, model.StageDataRetrievalPlanning, route, plan.Rationale)
		if err != nil {
			return nil, err
		}
		d.emit(ctx, snap.TurnNum, out, false)
		return out, nil
	})
}

// NewAnalyticalPlanningNode generates the ordered computational steps run in
// the sandbox, selecting the repair prompt when a prior execution failed or
// its results were judged insufficient.
func NewAnalyticalPlanningNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.StageOutcome) (*model.StageOutcome, error) {
		snap, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}

		frameInfo, err := d.Composer.DataFrameSchemaInfo()
		if err != nil {
			return nil, err
		}

		var (
			key           string
			contextBlocks []string
		)
		switch {
		case snap.AnalyticalExecution.Failed():
			key = model.PromptVariant(model.StageAnalyticalPlanning, model.StageAnalyticalPlanExecution)
			planDigest, err := d.Composer.AnalyticalPlanDigest(snap, key)
			if err != nil {
				return nil, err
			}
			traceback, err := d.Composer.ExecutionError(snap.AnalyticalExecution, "analytical_execution", key)
			if err != nil {
				return nil, err
			}
			contextBlocks = []string{frameInfo, planDigest, traceback}
		case snap.AnalyticalObservation != nil:
			key = model.PromptVariant(model.StageAnalyticalPlanning, model.StageAnalyticalObservation)
			planDigest, err := d.Composer.AnalyticalPlanDigest(snap, key)
			if err != nil {
				return nil, err
			}
			feedback, err := d.Composer.AnalyticalObservationFeedback(snap, key)
			if err != nil {
				return nil, err
			}
			contextBlocks = []string{frameInfo, planDigest, feedback}
		default:
			key = model.StageAnalyticalPlanning
			generatedSQL, err := d.Composer.GeneratedSQL(snap, key)
			if err != nil {
				return nil, err
			}
			contextBlocks = []string{frameInfo, generatedSQL}
		}

		system, err := d.structuredSystemFor(ctx, key, oracle.SchemaAnalyticalPlan, contextBlocks...)
		if err != nil {
			return nil, err
		}
		input, err := d.oracleInput(ctx, snap, system)
		if err != nil {
			return nil, err
		}

		var plan model.AnalyticalPlan
		if err := d.Oracle.CompleteStructured(ctx, oracle.TierHigh, input, oracle.SchemaAnalyticalPlan, &plan); err != nil {
			return nil, err
		}

		if err := writeState(ctx, func(st *model.State) {
			st.AnalyticalPlan = &plan
			st.AnalyticalExecution = nil
			st.AnalyticalObservation = nil
		}); err != nil {
			return nil, err
		}
		if err := recordDecision(ctx, &plan); err != nil {
			return nil, err
		}

		out, err := outcome(ctx, model.StageAnalyticalPlanning, model.StageAnalyticalPlanExecution, plan.Rationale)
		if err != nil {
			return nil, err
		}
		d.emit(ctx, snap.TurnNum, out, false)
		return out, nil
	})
}

// NewInfographicPlanningNode generates the ordered plotting steps, selecting
// the repair prompt when a prior render failed or was judged ineffective.
func NewInfographicPlanningNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.StageOutcome) (*model.StageOutcome, error) {
		snap, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}

		var (
			key           string
			contextBlocks []string
		)
		switch {
		case snap.InfographicExecution.Failed():
			key = model.PromptVariant(model.StageInfographicPlanning, model.StageInfographicPlanExecution)
			planDigest, err := d.Composer.InfographicPlanDigest(snap, key)
			if err != nil {
				return nil, err
			}
			traceback, err := d.Composer.ExecutionError(snap.InfographicExecution, "infographic_execution", key)
			if err != nil {
				return nil, err
			}
			contextBlocks = []string{planDigest, traceback}
		case snap.InfographicObservation != nil:
			key = model.PromptVariant(model.StageInfographicPlanning, model.StageInfographicObservation)
			planDigest, err := d.Composer.InfographicPlanDigest(snap, key)
			if err != nil {
				return nil, err
			}
			feedback, err := d.Composer.InfographicObservationFeedback(snap, key)
			if err != nil {
				return nil, err
			}
			contextBlocks = []string{planDigest, feedback}
		default:
			key = model.StageInfographicPlanning
			result, err := d.Composer.AnalyticalResultContext(snap, key)
			if err != nil {
				return nil, err
			}
			frameInfo, err := d.Composer.DataFrameSchemaInfo()
			if err != nil {
				return nil, err
			}
			contextBlocks = []string{result, frameInfo}
		}

		system, err := d.structuredSystemFor(ctx, key, oracle.SchemaInfographicPlan, contextBlocks...)
		if err != nil {
			return nil, err
		}
		input, err := d.oracleInput(ctx, snap, system)
		if err != nil {
			return nil, err
		}

		var plan model.InfographicPlan
		if err := d.Oracle.CompleteStructured(ctx, oracle.TierHigh, input, oracle.SchemaInfographicPlan, &plan); err != nil {
			return nil, err
		}

		if err := writeState(ctx, func(st *model.State) {
			st.InfographicPlan = &plan
			st.InfographicExecution = nil
			st.InfographicObservation = nil
		}); err != nil {
			return nil, err
		}
		if err := recordDecision(ctx, &plan); err != nil {
			return nil, err
		}

		out, err := outcome(ctx, model.StageInfographicPlanning, model.StageInfographicPlanExecution, plan.Rationale)
		if err != nil {
			return nil, err
		}
		d.emit(ctx, snap.TurnNum, out, false)
		return out, nil
	})
}

package nodes

import (
	"context"

	"github.com/cloudwego/eino/compose"

	"github.com/reyharighy/cba-agentic-ai/internal/agent/model"
	errx "github.com/reyharighy/cba-agentic-ai/internal/core/error"
	logx "github.com/reyharighy/cba-agentic-ai/pkg/logger"
)

// NewDataRetrievalExecutionNode runs the planned SQL statement against the
// external database after the safety gate clears it. Every fault is recorded
// as structured feedback and routed back to planning; a statement identical
// to the last rejected one is refused without touching the database.
func NewDataRetrievalExecutionNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.StageOutcome) (*model.StageOutcome, error) {
		snap, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}
		if snap.DataRetrievalPlan == nil || snap.DataRetrievalPlan.SQLQuery == nil {
			return nil, errx.NewContractViolation("data_retrieval_plan", model.StageDataRetrievalExecution)
		}
		sql := *snap.DataRetrievalPlan.SQLQuery

		var qerr *model.QueryError
		if snap.LastRejectedSQL != "" && sql == snap.LastRejectedSQL {
			qerr = &model.QueryError{
				Kind:    model.QueryErrRepeated,
				Message: "the statement is identical to the one already rejected; it must be revised, not resubmitted",
			}
		} else {
			dbSchema, err := d.Store.InspectSchema(ctx)
			if err != nil {
				return nil, err
			}
			qerr = d.Store.Validate(sql, dbSchema)
			if qerr == nil {
				qerr = d.Store.Extract(ctx, sql)
			}
		}

		if err := writeState(ctx, func(st *model.State) {
			if qerr != nil {
				st.DataRetrievalError = qerr
				st.LastRejectedSQL = sql
				return
			}
			st.DataRetrievalError = nil
			st.LastRejectedSQL = ""
		}); err != nil {
			return nil, err
		}

		route := model.StageDataRetrievalObservation
		rationale := ""
		if qerr != nil {
			route = model.StageDataRetrievalPlanning
			rationale = qerr.Message
			logx.Warn().Str("kind", string(qerr.Kind)).Msg("Data retrieval rejected")
		}
		out, err := outcome(ctx, model.StageDataRetrievalExecution, route, rationale)
		if err != nil {
			return nil, err
		}
		d.emit(ctx, snap.TurnNum, out, false)
		return out, nil
	})
}

// NewAnalyticalPlanExecutionNode assembles the full sandbox program from the
// analytical plan and runs it in isolation. Code-level faults loop back to
// planning; provisioning faults fail the turn.
func NewAnalyticalPlanExecutionNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.StageOutcome) (*model.StageOutcome, error) {
		snap, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}

		code, err := d.Composer.SandboxSource(snap, d.Context.AnalyticalBootstrap, model.StageAnalyticalPlanExecution)
		if err != nil {
			return nil, err
		}

		exec, err := d.Sandbox.Run(ctx, model.SandboxRequest{
			Code:        code,
			DatasetPath: d.Store.WorkingDatasetPath(),
		})
		if err != nil {
			return nil, err
		}

		if err := writeState(ctx, func(st *model.State) {
			st.AnalyticalExecution = exec
		}); err != nil {
			return nil, err
		}

		route := model.StageAnalyticalObservation
		rationale := ""
		if exec.Failed() {
			route = model.StageAnalyticalPlanning
			rationale = exec.Error.Message
			logx.Warn().Str("error", exec.Error.Message).Msg("Analytical plan execution failed")
		}
		out, err := outcome(ctx, model.StageAnalyticalPlanExecution, route, rationale)
		if err != nil {
			return nil, err
		}
		d.emit(ctx, snap.TurnNum, out, false)
		return out, nil
	})
}

// NewInfographicPlanExecutionNode renders the planned plots in the sandbox.
func NewInfographicPlanExecutionNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.StageOutcome) (*model.StageOutcome, error) {
		snap, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}

		code, err := d.Composer.InfographicSource(snap, d.Context.InfographicBootstrap, model.StageInfographicPlanExecution)
		if err != nil {
			return nil, err
		}

		exec, err := d.Sandbox.Run(ctx, model.SandboxRequest{
			Code:        code,
			DatasetPath: d.Store.WorkingDatasetPath(),
		})
		if err != nil {
			return nil, err
		}

		if err := writeState(ctx, func(st *model.State) {
			st.InfographicExecution = exec
		}); err != nil {
			return nil, err
		}

		route := model.StageInfographicObservation
		rationale := ""
		if exec.Failed() {
			route = model.StageInfographicPlanning
			rationale = exec.Error.Message
			logx.Warn().Str("error", exec.Error.Message).Msg("Infographic plan execution failed")
		}
		out, err := outcome(ctx, model.StageInfographicPlanExecution, route, rationale)
		if err != nil {
			return nil, err
		}
		d.emit(ctx, snap.TurnNum, out, false)
		return out, nil
	})
}

package nodes

import (
	"context"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/reyharighy/cba-agentic-ai/internal/agent/graph/oracle"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/model"
	logx "github.com/reyharighy/cba-agentic-ai/pkg/logger"
)

// respond runs a free-form completion for a user-facing stage and stores the
// text as the turn's payload.
func respond(ctx context.Context, d *Deps, snap *model.State, tier oracle.Tier, key string, contextBlocks ...string) (string, error) {
	system, err := d.systemFor(ctx, key, contextBlocks...)
	if err != nil {
		return "", err
	}
	input, err := d.oracleInput(ctx, snap, system)
	if err != nil {
		return "", err
	}

	resp, err := d.Oracle.Complete(ctx, tier, input)
	if err != nil {
		return "", err
	}

	err = writeState(ctx, func(st *model.State) {
		st.UIPayload = resp.Content
		st.Messages = append(st.Messages, schema.AssistantMessage(resp.Content, nil))
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// NewPuntResponseNode declines an out-of-domain request. The turn ends here
// and is never persisted, so punts do not consume turn numbers.
func NewPuntResponseNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.StageOutcome) (*schema.Message, error) {
		snap, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}

		rationale, err := d.Composer.PuntRationale(snap, model.StagePuntResponse)
		if err != nil {
			return nil, err
		}
		content, err := respond(ctx, d, snap, oracle.TierMedium, model.StagePuntResponse, rationale)
		if err != nil {
			return nil, err
		}

		d.emit(ctx, snap.TurnNum, &model.StageOutcome{Stage: model.StagePuntResponse}, true)
		return schema.AssistantMessage(content, nil), nil
	})
}

// NewDirectResponseNode answers in-domain requests that need no analytical
// process, then hands off to summarization for persistence.
func NewDirectResponseNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.StageOutcome) (*model.StageOutcome, error) {
		snap, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}

		if _, err := respond(ctx, d, snap, oracle.TierMedium, model.StageDirectResponse); err != nil {
			return nil, err
		}

		out, err := outcome(ctx, model.StageDirectResponse, model.StageSummarization, "")
		if err != nil {
			return nil, err
		}
		d.emit(ctx, snap.TurnNum, out, false)
		return out, nil
	})
}

// NewDataUnavailabilityResponseNode explains that the external database does
// not hold the data the analysis would need.
func NewDataUnavailabilityResponseNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.StageOutcome) (*model.StageOutcome, error) {
		snap, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}

		rationale, err := d.Composer.DataUnavailabilityRationale(snap, model.StageDataUnavailabilityResponse)
		if err != nil {
			return nil, err
		}
		if _, err := respond(ctx, d, snap, oracle.TierMedium, model.StageDataUnavailabilityResponse, rationale); err != nil {
			return nil, err
		}

		out, err := outcome(ctx, model.StageDataUnavailabilityResponse, model.StageSummarization, "")
		if err != nil {
			return nil, err
		}
		d.emit(ctx, snap.TurnNum, out, false)
		return out, nil
	})
}

// NewAnalyticalResultNode interprets the sandbox output into the finalized
// analytical result every downstream stage builds on.
func NewAnalyticalResultNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.StageOutcome) (*model.StageOutcome, error) {
		snap, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}

		planDigest, err := d.Composer.AnalyticalPlanDigest(snap, model.StageAnalyticalResult)
		if err != nil {
			return nil, err
		}
		stdout, err := d.Composer.ExecutionStdout(snap.AnalyticalExecution, "analytical_execution", model.StageAnalyticalResult)
		if err != nil {
			return nil, err
		}
		system, err := d.systemFor(ctx, model.StageAnalyticalResult, planDigest, stdout)
		if err != nil {
			return nil, err
		}
		input, err := d.oracleInput(ctx, snap, system)
		if err != nil {
			return nil, err
		}

		resp, err := d.Oracle.Complete(ctx, oracle.TierHigh, input)
		if err != nil {
			return nil, err
		}

		err = writeState(ctx, func(st *model.State) {
			st.AnalyticalResult = resp.Content
			st.Messages = append(st.Messages, schema.AssistantMessage(resp.Content, nil))
		})
		if err != nil {
			return nil, err
		}

		out, err := outcome(ctx, model.StageAnalyticalResult, model.StageInfographicRequirement, "")
		if err != nil {
			return nil, err
		}
		d.emit(ctx, snap.TurnNum, out, false)
		return out, nil
	})
}

// NewAnalyticalResponseNode communicates the analytical result, and any
// rendered infographics, back to the user.
func NewAnalyticalResponseNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.StageOutcome) (*model.StageOutcome, error) {
		snap, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}

		result, err := d.Composer.AnalyticalResultContext(snap, model.StageAnalyticalResponse)
		if err != nil {
			return nil, err
		}
		artifacts := d.Composer.InfographicArtifacts(snap)

		if _, err := respond(ctx, d, snap, oracle.TierHigh, model.StageAnalyticalResponse, result, artifacts); err != nil {
			return nil, err
		}

		out, err := outcome(ctx, model.StageAnalyticalResponse, model.StageSummarization, "")
		if err != nil {
			return nil, err
		}
		d.emit(ctx, snap.TurnNum, out, false)
		return out, nil
	})
}

// NewSummarizationNode closes the turn: it digests the transcript into the
// short memory, persists the turn atomically, and yields the final answer.
func NewSummarizationNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.StageOutcome) (*schema.Message, error) {
		snap, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}

		system, err := d.systemFor(ctx, model.StageSummarization)
		if err != nil {
			return nil, err
		}
		input := make([]*schema.Message, 0, 1+len(snap.Messages))
		input = append(input, schema.SystemMessage(system))
		input = append(input, snap.Messages...)

		resp, err := d.Oracle.Complete(ctx, oracle.TierMedium, input)
		if err != nil {
			return nil, err
		}

		rec := model.TurnRecord{
			TurnNum: snap.TurnNum,
			Human:   firstUserContent(snap.Messages),
			AI:      snap.UIPayload,
			Summary: resp.Content,
		}
		if snap.DataRetrievalPlan != nil && snap.DataRetrievalPlan.SQLQuery != nil && snap.DataRetrievalError == nil {
			rec.SQLQuery = snap.DataRetrievalPlan.SQLQuery
		}
		if err := d.Memory.PersistTurn(ctx, rec); err != nil {
			return nil, err
		}
		logx.Debug().Int("turn_num", snap.TurnNum).Msg("Turn persisted")

		d.emit(ctx, snap.TurnNum, &model.StageOutcome{Stage: model.StageSummarization}, true)
		return schema.AssistantMessage(snap.UIPayload, nil), nil
	})
}

func firstUserContent(msgs []*schema.Message) string {
	for _, m := range msgs {
		if m != nil && m.Role == schema.User {
			return m.Content
		}
	}
	return ""
}

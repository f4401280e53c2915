// Package nodes implements the stage nodes of the orchestration graph. Every
// interior node consumes and produces *model.StageOutcome; all stage data
// lives in graph local state and is touched only inside Eino state handlers.
package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/reyharighy/cba-agentic-ai/internal/agent/events"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/graph/composers"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/graph/oracle"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/graph/prompts"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/model"
	logx "github.com/reyharighy/cba-agentic-ai/pkg/logger"
)

// Deps bundles the collaborators every node constructor draws from.
type Deps struct {
	Oracle   *oracle.Oracle
	Composer *composers.Composer
	Store    model.DataStore
	Memory   model.MemoryRepository
	Sandbox  model.SandboxRunner
	Sink     events.Sink
	Context  model.TurnContext
}

// prompt resolves a registry key to its system prompt template.
func (d *Deps) prompt(key string) (string, error) {
	p, ok := d.Context.Prompts[key]
	if !ok {
		return "", fmt.Errorf("missing prompt template %q", key)
	}
	return p, nil
}

// systemFor renders the system message for a stage: the registered template
// followed by the assembled context blocks.
func (d *Deps) systemFor(ctx context.Context, key string, contextBlocks ...string) (string, error) {
	template, err := d.prompt(key)
	if err != nil {
		return "", err
	}
	rendered, err := prompts.RenderSystem(ctx, template+strings.Join(contextBlocks, ""))
	if err != nil {
		return "", fmt.Errorf("render %s system prompt: %w", key, err)
	}
	return rendered, nil
}

// structuredSystemFor renders a system message that additionally binds the
// response to a named output schema.
func (d *Deps) structuredSystemFor(ctx context.Context, key, schemaName string, contextBlocks ...string) (string, error) {
	instruction, err := oracle.SchemaInstruction(schemaName)
	if err != nil {
		return "", err
	}
	return d.systemFor(ctx, key, append(contextBlocks, instruction)...)
}

// oracleInput builds the message sequence for one model call: the system
// message, the replayed relevant turns, then the current turn's transcript.
func (d *Deps) oracleInput(ctx context.Context, st *model.State, system string) ([]*schema.Message, error) {
	relevant, err := d.Composer.RelevantConversation(ctx, st)
	if err != nil {
		return nil, err
	}

	msgs := make([]*schema.Message, 0, 1+len(relevant)+len(st.Messages))
	msgs = append(msgs, schema.SystemMessage(system))
	msgs = append(msgs, relevant...)
	msgs = append(msgs, st.Messages...)
	return msgs, nil
}

// emit publishes the stage outcome on the UI event stream.
func (d *Deps) emit(ctx context.Context, turnNum int, out *model.StageOutcome, terminal bool) {
	events.Emit(ctx, d.Sink, events.StageEvent{
		TurnNum:   turnNum,
		Stage:     out.Stage,
		Route:     out.Route,
		Rationale: out.Rationale,
		Terminal:  terminal,
	})
}

// snapshot copies the graph local state so nodes can read it while the model
// call runs outside the state handler.
func snapshot(ctx context.Context) (*model.State, error) {
	var snap model.State
	err := compose.ProcessState(ctx, func(_ context.Context, st *model.State) error {
		snap = *st
		snap.Messages = append([]*schema.Message(nil), st.Messages...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read graph state: %w", err)
	}
	return &snap, nil
}

// writeState applies a mutation inside the state handler.
func writeState(ctx context.Context, mutate func(st *model.State)) error {
	err := compose.ProcessState(ctx, func(_ context.Context, st *model.State) error {
		mutate(st)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write graph state: %w", err)
	}
	return nil
}

// recordDecision appends the oracle's validated decision to the turn
// transcript so later stages see what was already concluded.
func recordDecision(ctx context.Context, decision any) error {
	b, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return writeState(ctx, func(st *model.State) {
		st.Messages = append(st.Messages, schema.AssistantMessage(string(b), nil))
	})
}

// outcome builds the routing value passed along graph edges and mirrors the
// route into state for the observing UI layer.
func outcome(ctx context.Context, stage, route, rationale string) (*model.StageOutcome, error) {
	err := writeState(ctx, func(st *model.State) {
		st.NextNode = route
	})
	if err != nil {
		return nil, err
	}
	logx.Debug().Str("stage", stage).Str("route", route).Msg("Stage completed")
	return &model.StageOutcome{Stage: stage, Route: route, Rationale: rationale}, nil
}

// NewTurnInputPreHandler seeds the graph local state from the public input:
// the turn number and the user query as the first transcript message.
func NewTurnInputPreHandler() func(context.Context, model.TurnInput, *model.State) (model.TurnInput, error) {
	return func(ctx context.Context, in model.TurnInput, st *model.State) (model.TurnInput, error) {
		st.TurnNum = in.TurnNum
		st.Messages = append(st.Messages, schema.UserMessage(in.Query))
		return in, nil
	}
}

// NewRouteCondition returns the branch condition shared by every routing
// stage: follow the route the stage recorded on its outcome.
func NewRouteCondition() func(context.Context, *model.StageOutcome) (string, error) {
	return func(_ context.Context, out *model.StageOutcome) (string, error) {
		if out == nil || out.Route == "" {
			return "", fmt.Errorf("stage outcome carries no route")
		}
		return out.Route, nil
	}
}

// Package graph composes the cyclic orchestration graph: twenty stages wired
// over graph local state, with repair loops around retrieval, analysis, and
// infographic rendering.
package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/reyharighy/cba-agentic-ai/internal/agent/events"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/graph/composers"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/graph/nodes"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/graph/observers"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/graph/oracle"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/graph/prompts"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/model"
	logx "github.com/reyharighy/cba-agentic-ai/pkg/logger"
)

// Runner executes one conversational turn end-to-end and returns the
// user-facing answer.
type Runner interface {
	Invoke(ctx context.Context, query string) (string, error)
}

// Config holds everything needed to compose the full agent graph end-to-end.
type Config struct {
	APIKey  string
	BaseURL string
	Oracle  model.OracleModelConfig
	Graph   model.GraphConfig

	Memory  model.MemoryRepository
	Store   model.DataStore
	Sandbox model.SandboxRunner
	Sink    events.Sink
}

// GraphBuilder handles the construction of the agent orchestration graph.
type GraphBuilder struct {
	deps  *nodes.Deps
	graph *compose.Graph[model.TurnInput, *schema.Message]
}

type graphRunner struct {
	runnable compose.Runnable[model.TurnInput, *schema.Message]
	memory   model.MemoryRepository
}

func (r *graphRunner) Invoke(ctx context.Context, query string) (string, error) {
	latest, err := r.memory.LatestTurn(ctx)
	if err != nil {
		return "", err
	}

	out, err := r.runnable.Invoke(ctx, model.TurnInput{
		TurnNum: latest + 1,
		Query:   query,
	}, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", nil
	}
	return out.Content, nil
}

// BuildAgentGraph composes the chat models, the composer, and all stage
// nodes, then compiles the graph into a Runner.
func BuildAgentGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.Memory == nil || cfg.Store == nil || cfg.Sandbox == nil {
		return nil, fmt.Errorf("memory, store, and sandbox are required")
	}

	models, err := oracle.NewModels(ctx, oracle.ModelsConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Oracle:  cfg.Oracle,
	})
	if err != nil {
		return nil, err
	}

	promptSet, err := prompts.Load()
	if err != nil {
		return nil, err
	}

	deps := &nodes.Deps{
		Oracle:   oracle.New(models, cfg.Oracle),
		Composer: composers.New(cfg.Memory, cfg.Store),
		Store:    cfg.Store,
		Memory:   cfg.Memory,
		Sandbox:  cfg.Sandbox,
		Sink:     cfg.Sink,
		Context: model.TurnContext{
			Prompts:              promptSet,
			AnalyticalBootstrap:  prompts.AnalyticalBootstrap(),
			InfographicBootstrap: prompts.InfographicBootstrap(),
		},
	}

	runnable, err := BuildGraph(ctx, deps, cfg.Graph)
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Agent graph built successfully")
	return &graphRunner{runnable: runnable, memory: cfg.Memory}, nil
}

// BuildGraph constructs and compiles the orchestration graph over the
// supplied dependencies.
func BuildGraph(ctx context.Context, deps *nodes.Deps, graphCfg model.GraphConfig) (compose.Runnable[model.TurnInput, *schema.Message], error) {
	if deps == nil {
		return nil, fmt.Errorf("graph dependencies are nil")
	}
	if deps.Oracle == nil || deps.Composer == nil {
		return nil, fmt.Errorf("oracle and composer are not properly initialized")
	}

	builder := &GraphBuilder{
		deps: deps,
		graph: compose.NewGraph[model.TurnInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.State {
				return &model.State{}
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	builder.addEdges()

	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx, graphCfg)
}

// addNodes registers one lambda node per stage, walking the canonical stage
// list so a stage without a constructor cannot slip through a rewiring.
func (b *GraphBuilder) addNodes() error {
	d := b.deps

	lambdas := map[string]*compose.Lambda{
		model.StageIntentComprehension:        nodes.NewIntentComprehensionNode(d),
		model.StageRequestClassification:      nodes.NewRequestClassificationNode(d),
		model.StagePuntResponse:               nodes.NewPuntResponseNode(d),
		model.StageAnalyticalRequirement:      nodes.NewAnalyticalRequirementNode(d),
		model.StageDirectResponse:             nodes.NewDirectResponseNode(d),
		model.StageDataAvailability:           nodes.NewDataAvailabilityNode(d),
		model.StageDataUnavailabilityResponse: nodes.NewDataUnavailabilityResponseNode(d),
		model.StageDataRetrievalPlanning:      nodes.NewDataRetrievalPlanningNode(d),
		model.StageDataRetrievalExecution:     nodes.NewDataRetrievalExecutionNode(d),
		model.StageDataRetrievalObservation:   nodes.NewDataRetrievalObservationNode(d),
		model.StageAnalyticalPlanning:         nodes.NewAnalyticalPlanningNode(d),
		model.StageAnalyticalPlanExecution:    nodes.NewAnalyticalPlanExecutionNode(d),
		model.StageAnalyticalObservation:      nodes.NewAnalyticalObservationNode(d),
		model.StageAnalyticalResult:           nodes.NewAnalyticalResultNode(d),
		model.StageInfographicRequirement:     nodes.NewInfographicRequirementNode(d),
		model.StageInfographicPlanning:        nodes.NewInfographicPlanningNode(d),
		model.StageInfographicPlanExecution:   nodes.NewInfographicPlanExecutionNode(d),
		model.StageInfographicObservation:     nodes.NewInfographicObservationNode(d),
		model.StageAnalyticalResponse:         nodes.NewAnalyticalResponseNode(d),
		model.StageSummarization:              nodes.NewSummarizationNode(d),
	}

	for _, stage := range model.Stages {
		lambda, ok := lambdas[stage]
		if !ok {
			return fmt.Errorf("no node constructor for stage %q", stage)
		}
		if stage == model.StageIntentComprehension {
			b.graph.AddLambdaNode(stage, lambda,
				compose.WithStatePreHandler(nodes.NewTurnInputPreHandler()))
			continue
		}
		b.graph.AddLambdaNode(stage, lambda)
	}
	return nil
}

// addEdges creates the unconditional flow connections between nodes.
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, model.StageIntentComprehension},
		{model.StageIntentComprehension, model.StageRequestClassification},
		{model.StagePuntResponse, compose.END},
		{model.StageDirectResponse, model.StageSummarization},
		{model.StageDataUnavailabilityResponse, model.StageSummarization},
		{model.StageAnalyticalPlanning, model.StageAnalyticalPlanExecution},
		{model.StageAnalyticalResult, model.StageInfographicRequirement},
		{model.StageInfographicPlanning, model.StageInfographicPlanExecution},
		{model.StageAnalyticalResponse, model.StageSummarization},
		{model.StageSummarization, compose.END},
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates the conditional routing branches. Every branch follows
// the route the stage recorded on its outcome.
func (b *GraphBuilder) addBranches() error {
	branches := map[string][]string{
		model.StageRequestClassification: {
			model.StagePuntResponse,
			model.StageAnalyticalRequirement,
		},
		model.StageAnalyticalRequirement: {
			model.StageDirectResponse,
			model.StageDataAvailability,
		},
		model.StageDataAvailability: {
			model.StageDataUnavailabilityResponse,
			model.StageDataRetrievalPlanning,
		},
		model.StageDataRetrievalPlanning: {
			model.StageDataRetrievalExecution,
			model.StageDataUnavailabilityResponse,
		},
		model.StageDataRetrievalExecution: {
			model.StageDataRetrievalObservation,
			model.StageDataRetrievalPlanning,
		},
		model.StageDataRetrievalObservation: {
			model.StageAnalyticalPlanning,
			model.StageDataRetrievalPlanning,
		},
		model.StageAnalyticalPlanExecution: {
			model.StageAnalyticalObservation,
			model.StageAnalyticalPlanning,
		},
		model.StageAnalyticalObservation: {
			model.StageAnalyticalResult,
			model.StageAnalyticalPlanning,
		},
		model.StageInfographicRequirement: {
			model.StageInfographicPlanning,
			model.StageAnalyticalResponse,
		},
		model.StageInfographicPlanExecution: {
			model.StageInfographicObservation,
			model.StageInfographicPlanning,
		},
		model.StageInfographicObservation: {
			model.StageAnalyticalResponse,
			model.StageInfographicPlanning,
		},
	}

	for source, targets := range branches {
		endNodes := make(map[string]bool, len(targets))
		for _, t := range targets {
			endNodes[t] = true
		}
		branch := compose.NewGraphBranch(nodes.NewRouteCondition(), endNodes)
		if err := b.graph.AddBranch(source, branch); err != nil {
			logx.Error().Err(err).Str("node", source).Msg("Error adding branch")
			return fmt.Errorf("error adding branch at %s: %w", source, err)
		}
	}

	return nil
}

// compile finalizes the graph. MaxRunSteps bounds the repair loops so a
// misbehaving plan cannot cycle forever.
func (b *GraphBuilder) compile(ctx context.Context, graphCfg model.GraphConfig) (compose.Runnable[model.TurnInput, *schema.Message], error) {
	maxSteps := graphCfg.MaxRunSteps
	if maxSteps <= 0 {
		maxSteps = 60
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Int("max_run_steps", maxSteps).Msg("Graph compiled successfully")
	return runnable, nil
}

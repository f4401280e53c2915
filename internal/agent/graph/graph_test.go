package graph

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/reyharighy/cba-agentic-ai/internal/agent/datastore"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/events"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/graph/composers"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/graph/nodes"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/graph/oracle"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/graph/prompts"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/model"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/repo"
)

// scriptedModel replays canned responses in call order, shared across tiers.
type scriptedModel struct {
	responses []string
	calls     int
}

func (s *scriptedModel) Generate(_ context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	if s.calls >= len(s.responses) {
		return nil, errors.New("oracle script exhausted")
	}
	resp := s.responses[s.calls]
	s.calls++
	return schema.AssistantMessage(resp, nil), nil
}

// fakeSandbox replays scripted executions in run order, repeating the last
// one when the script runs out, and records every submitted source.
type fakeSandbox struct {
	codes []string
	execs []*model.Execution
}

func (f *fakeSandbox) Run(_ context.Context, req model.SandboxRequest) (*model.Execution, error) {
	exec := f.execs[len(f.execs)-1]
	if len(f.codes) < len(f.execs) {
		exec = f.execs[len(f.codes)]
	}
	f.codes = append(f.codes, req.Code)
	return exec, nil
}

type harness struct {
	deps    *nodes.Deps
	memory  *repo.SQLiteMemoryRepository
	store   *datastore.Store
	sandbox *fakeSandbox
	sink    *events.ChannelSink
}

func newHarness(t *testing.T, script []string) *harness {
	t.Helper()

	memoryDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	memoryDB.SetMaxOpenConns(1)
	t.Cleanup(func() { memoryDB.Close() })

	memory := repo.NewSQLiteMemoryRepository(memoryDB)
	require.NoError(t, memory.Init(context.Background()))

	externalDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	externalDB.SetMaxOpenConns(1)
	t.Cleanup(func() { externalDB.Close() })

	_, err = externalDB.Exec(`
		CREATE TABLE orders (id INTEGER PRIMARY KEY, category TEXT, amount REAL);
		INSERT INTO orders (id, category, amount) VALUES
			(1, 'electronics', 120.5),
			(2, 'apparel', 35.0),
			(3, 'electronics', 220.0);
	`)
	require.NoError(t, err)

	store := datastore.New(externalDB, t.TempDir())

	cm := &scriptedModel{responses: script}
	sandbox := &fakeSandbox{execs: []*model.Execution{
		{Stdout: []string{"STEP 1 RESULT", "electronics 340.5"}},
	}}
	sink := events.NewChannelSink(64)

	promptSet, err := prompts.Load()
	require.NoError(t, err)

	deps := &nodes.Deps{
		Oracle: oracle.NewWithTiers(map[oracle.Tier]oracle.ChatModel{
			oracle.TierLow:    cm,
			oracle.TierMedium: cm,
			oracle.TierHigh:   cm,
		}, 0),
		Composer: composers.New(memory, store),
		Store:    store,
		Memory:   memory,
		Sandbox:  sandbox,
		Sink:     sink,
		Context: model.TurnContext{
			Prompts:              promptSet,
			AnalyticalBootstrap:  prompts.AnalyticalBootstrap(),
			InfographicBootstrap: prompts.InfographicBootstrap(),
		},
	}

	return &harness{deps: deps, memory: memory, store: store, sandbox: sandbox, sink: sink}
}

func (h *harness) invoke(t *testing.T, query string) string {
	t.Helper()

	runnable, err := BuildGraph(context.Background(), h.deps, model.GraphConfig{MaxRunSteps: 60})
	require.NoError(t, err)

	out, err := runnable.Invoke(context.Background(), model.TurnInput{TurnNum: 1, Query: query})
	require.NoError(t, err)
	require.NotNil(t, out)
	return out.Content
}

func (h *harness) drainEvents() []events.StageEvent {
	var evs []events.StageEvent
	for {
		select {
		case ev := <-h.sink.Events():
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

const analyticalPlanPayload = `{
	"analysis_type": "descriptive",
	"plan": [{
		"number": 1,
		"description": "sum revenue per category",
		"input_df": "df",
		"output_df": "by_category",
		"python_code": "by_category = df.groupby('category')['amount'].sum()\nprint(\"STEP 1 RESULT\")\nprint(by_category)",
		"rationale": "revenue ranking requested"
	}],
	"rationale": "single aggregation answers the question"
}`

func TestPuntPathEndsWithoutPersistence(t *testing.T) {
	h := newHarness(t, []string{
		`{"relevant_turns": [], "rationale": "no prior turns"}`,
		`{"request_is_business_analytical_domain": false, "rationale": "cooking question"}`,
		"I can only help with business analytics questions about your data.",
	})

	answer := h.invoke(t, "What is a good lasagna recipe?")
	assert.Equal(t, "I can only help with business analytics questions about your data.", answer)

	latest, err := h.memory.LatestTurn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, latest)

	evs := h.drainEvents()
	last := evs[len(evs)-1]
	assert.Equal(t, model.StagePuntResponse, last.Stage)
	assert.True(t, last.Terminal)
}

func TestDirectPathPersistsTurnWithoutSQL(t *testing.T) {
	h := newHarness(t, []string{
		`{"relevant_turns": [], "rationale": "no prior turns"}`,
		`{"request_is_business_analytical_domain": true, "rationale": "asks about a metric"}`,
		`{"analytical_process_is_required": false, "rationale": "definition question"}`,
		"Gross margin is revenue minus cost of goods sold, divided by revenue.",
		"asked for the definition of gross margin",
	})

	answer := h.invoke(t, "What does gross margin mean?")
	assert.Equal(t, "Gross margin is revenue minus cost of goods sold, divided by revenue.", answer)

	memories, err := h.memory.ListShortMemories(context.Background())
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, "asked for the definition of gross margin", memories[0].Summary)
	assert.Nil(t, memories[0].SQLQuery)

	chats, err := h.memory.ChatHistoryByTurn(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "What does gross margin mean?", chats[0].Content)
}

func TestAnalyticalPathEndToEnd(t *testing.T) {
	h := newHarness(t, []string{
		`{"relevant_turns": [], "rationale": "no prior turns"}`,
		`{"request_is_business_analytical_domain": true, "rationale": "revenue question"}`,
		`{"analytical_process_is_required": true, "rationale": "needs aggregation"}`,
		`{"data_is_available": true, "rationale": "orders table covers categories and amounts"}`,
		`{"sql_query": "SELECT category, amount FROM orders", "rationale": "raw rows for aggregation"}`,
		`{"result_is_sufficient": true, "rationale": "both columns extracted"}`,
		analyticalPlanPayload,
		`{"result_is_sufficient": true, "rationale": "aggregate computed for every category"}`,
		"Electronics leads with 340.5 in revenue, apparel follows with 35.0.",
		`{"infographic_is_required": false, "rationale": "a two-line answer needs no chart"}`,
		"Electronics drove most of your revenue at 340.5, far ahead of apparel.",
		"asked which category drove revenue; electronics led at 340.5",
	})

	answer := h.invoke(t, "Which category drove most revenue?")
	assert.Equal(t, "Electronics drove most of your revenue at 340.5, far ahead of apparel.", answer)

	// the working dataset was materialized from the planned statement
	raw, err := os.ReadFile(h.store.WorkingDatasetPath())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "category,amount")

	// the sandbox ran the bootstrap plus the planned step
	require.Len(t, h.sandbox.codes, 1)
	assert.Contains(t, h.sandbox.codes[0], "import pandas as pd")
	assert.Contains(t, h.sandbox.codes[0], "by_category = df.groupby('category')['amount'].sum()")

	// the turn persisted with its provenance query
	memories, err := h.memory.ListShortMemories(context.Background())
	require.NoError(t, err)
	require.Len(t, memories, 1)
	require.NotNil(t, memories[0].SQLQuery)
	assert.Equal(t, "SELECT category, amount FROM orders", *memories[0].SQLQuery)

	evs := h.drainEvents()
	stages := make([]string, 0, len(evs))
	for _, ev := range evs {
		stages = append(stages, ev.Stage)
	}
	assert.Contains(t, stages, model.StageDataRetrievalExecution)
	assert.Contains(t, stages, model.StageAnalyticalPlanExecution)
	assert.Equal(t, model.StageSummarization, stages[len(stages)-1])
	assert.True(t, evs[len(evs)-1].Terminal)
}

func TestRetrievalRepairLoopRecovers(t *testing.T) {
	h := newHarness(t, []string{
		`{"relevant_turns": [], "rationale": "no prior turns"}`,
		`{"request_is_business_analytical_domain": true, "rationale": "revenue question"}`,
		`{"analytical_process_is_required": true, "rationale": "needs aggregation"}`,
		`{"data_is_available": true, "rationale": "orders table covers it"}`,
		`{"sql_query": "DELETE FROM orders", "rationale": "first attempt"}`,
		`{"sql_query": "SELECT category, amount FROM orders", "rationale": "read-only rewrite"}`,
		`{"result_is_sufficient": true, "rationale": "both columns extracted"}`,
		analyticalPlanPayload,
		`{"result_is_sufficient": true, "rationale": "aggregate computed"}`,
		"Electronics leads with 340.5 in revenue.",
		`{"infographic_is_required": false, "rationale": "no chart needed"}`,
		"Electronics drove most of your revenue.",
		"asked which category drove revenue",
	})

	answer := h.invoke(t, "Which category drove most revenue?")
	assert.Equal(t, "Electronics drove most of your revenue.", answer)

	// the forbidden statement bounced execution back to planning once
	rejections := 0
	for _, ev := range h.drainEvents() {
		if ev.Stage == model.StageDataRetrievalExecution && ev.Route == model.StageDataRetrievalPlanning {
			rejections++
		}
	}
	assert.Equal(t, 1, rejections)
}

const infographicPlanPayload = `{
	"plan": [{
		"number": 1,
		"description": "bar chart of revenue by category",
		"input_df": "df",
		"output_graph_path": "revenue_by_category.png",
		"python_code": "df.groupby('category')['amount'].sum().plot(kind='bar')\nplt.savefig('revenue_by_category.png')",
		"rationale": "a ranking reads clearest as bars"
	}],
	"rationale": "one chart covers the ranking"
}`

func TestInfographicRepairLoopsRecover(t *testing.T) {
	h := newHarness(t, []string{
		`{"relevant_turns": [], "rationale": "no prior turns"}`,
		`{"request_is_business_analytical_domain": true, "rationale": "revenue question"}`,
		`{"analytical_process_is_required": true, "rationale": "needs aggregation"}`,
		`{"data_is_available": true, "rationale": "orders table covers it"}`,
		`{"sql_query": "SELECT category, amount FROM orders", "rationale": "raw rows"}`,
		`{"result_is_sufficient": true, "rationale": "both columns extracted"}`,
		analyticalPlanPayload,
		`{"result_is_sufficient": true, "rationale": "aggregate computed"}`,
		"Electronics leads with 340.5 in revenue.",
		`{"infographic_is_required": true, "rationale": "a ranking deserves a chart"}`,
		infographicPlanPayload,
		infographicPlanPayload,
		`{"result_is_sufficient": false, "rationale": "the chart misses axis labels"}`,
		infographicPlanPayload,
		`{"result_is_sufficient": true, "rationale": "chart written with labels"}`,
		"Electronics drove most of your revenue; see the attached chart.",
		"asked which category drove revenue; chart produced",
	})
	// run 1: analytical steps; run 2: chart code fails; runs 3-4: chart ok
	h.sandbox.execs = []*model.Execution{
		{Stdout: []string{"STEP 1 RESULT", "electronics 340.5"}},
		{Error: &model.ExecutionError{
			Message:   "NameError: name 'plt' is not defined",
			Traceback: "Traceback (most recent call last)",
		}},
		{Stdout: []string{"saved revenue_by_category.png"}},
	}

	answer := h.invoke(t, "Which category drove most revenue?")
	assert.Equal(t, "Electronics drove most of your revenue; see the attached chart.", answer)

	// analytical run plus three chart attempts
	require.Len(t, h.sandbox.codes, 4)
	assert.Contains(t, h.sandbox.codes[1], "plt.savefig('revenue_by_category.png')")

	errorBounces := 0
	observationBounces := 0
	for _, ev := range h.drainEvents() {
		if ev.Stage == model.StageInfographicPlanExecution && ev.Route == model.StageInfographicPlanning {
			errorBounces++
		}
		if ev.Stage == model.StageInfographicObservation && ev.Route == model.StageInfographicPlanning {
			observationBounces++
		}
	}
	assert.Equal(t, 1, errorBounces)
	assert.Equal(t, 1, observationBounces)

	memories, err := h.memory.ListShortMemories(context.Background())
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, "asked which category drove revenue; chart produced", memories[0].Summary)
}

func TestIdenticalResubmissionRejectedWithoutRerun(t *testing.T) {
	h := newHarness(t, []string{
		`{"relevant_turns": [], "rationale": "no prior turns"}`,
		`{"request_is_business_analytical_domain": true, "rationale": "revenue question"}`,
		`{"analytical_process_is_required": true, "rationale": "needs aggregation"}`,
		`{"data_is_available": true, "rationale": "orders table covers it"}`,
		`{"sql_query": "DELETE FROM orders", "rationale": "first attempt"}`,
		`{"sql_query": "DELETE FROM orders", "rationale": "resubmitted unchanged"}`,
		`{"sql_query": "SELECT category, amount FROM orders", "rationale": "actual revision"}`,
		`{"result_is_sufficient": true, "rationale": "both columns extracted"}`,
		analyticalPlanPayload,
		`{"result_is_sufficient": true, "rationale": "aggregate computed"}`,
		"Electronics leads with 340.5 in revenue.",
		`{"infographic_is_required": false, "rationale": "no chart needed"}`,
		"Electronics drove most of your revenue.",
		"asked which category drove revenue",
	})

	answer := h.invoke(t, "Which category drove most revenue?")
	assert.Equal(t, "Electronics drove most of your revenue.", answer)

	// the unchanged statement bounced a second time without reaching the store
	rejections := 0
	for _, ev := range h.drainEvents() {
		if ev.Stage == model.StageDataRetrievalExecution && ev.Route == model.StageDataRetrievalPlanning {
			rejections++
		}
	}
	assert.Equal(t, 2, rejections)
}

func TestNullSQLRoutesToDataUnavailability(t *testing.T) {
	h := newHarness(t, []string{
		`{"relevant_turns": [], "rationale": "no prior turns"}`,
		`{"request_is_business_analytical_domain": true, "rationale": "inventory question"}`,
		`{"analytical_process_is_required": true, "rationale": "needs inventory data"}`,
		`{"data_is_available": true, "rationale": "assumed available"}`,
		`{"sql_query": null, "rationale": "no table holds inventory levels"}`,
		"I cannot answer this: the database holds no inventory data.",
		"asked about inventory; data not present",
	})

	answer := h.invoke(t, "How many units are in stock?")
	assert.Equal(t, "I cannot answer this: the database holds no inventory data.", answer)

	// the turn persisted without a provenance query
	memories, err := h.memory.ListShortMemories(context.Background())
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Nil(t, memories[0].SQLQuery)
}

func TestBuildGraphRejectsMissingDeps(t *testing.T) {
	_, err := BuildGraph(context.Background(), nil, model.GraphConfig{})
	assert.Error(t, err)

	_, err = BuildGraph(context.Background(), &nodes.Deps{}, model.GraphConfig{})
	assert.Error(t, err)
}

package composers

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reyharighy/cba-agentic-ai/internal/agent/model"
	errx "github.com/reyharighy/cba-agentic-ai/internal/core/error"
)

type fakeMemory struct {
	memories []model.ShortMemory
	chats    map[int][]model.ChatHistory
	lastSQL  string
	hasSQL   bool
}

func (f *fakeMemory) Init(context.Context) error                         { return nil }
func (f *fakeMemory) PersistTurn(context.Context, model.TurnRecord) error { return nil }
func (f *fakeMemory) ChatHistoryByTurn(_ context.Context, turnNum int) ([]model.ChatHistory, error) {
	return f.chats[turnNum], nil
}
func (f *fakeMemory) ListShortMemories(context.Context) ([]model.ShortMemory, error) {
	return f.memories, nil
}
func (f *fakeMemory) LastExecutedSQL(context.Context) (string, bool, error) {
	return f.lastSQL, f.hasSQL, nil
}
func (f *fakeMemory) LatestTurn(context.Context) (int, error) { return len(f.memories), nil }

type fakeStore struct {
	dbSchema  *model.DatabaseSchema
	frameDesc string
}

func (f *fakeStore) InspectSchema(context.Context) (*model.DatabaseSchema, error) {
	return f.dbSchema, nil
}
func (f *fakeStore) Validate(string, *model.DatabaseSchema) *model.QueryError { return nil }
func (f *fakeStore) Extract(context.Context, string) *model.QueryError       { return nil }
func (f *fakeStore) WorkingDatasetPath() string                              { return "" }
func (f *fakeStore) DescribeWorkingDataset() (string, error)                 { return f.frameDesc, nil }

func TestConversationSummaryEmpty(t *testing.T) {
	c := New(&fakeMemory{}, &fakeStore{})

	out, err := c.ConversationSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "\n\nThere is no conversation history.", out)
}

func TestConversationSummaryRendersTurns(t *testing.T) {
	c := New(&fakeMemory{memories: []model.ShortMemory{
		{TurnNum: 1, Summary: "asked about Q1 sales"},
		{TurnNum: 2, Summary: "drilled into product categories"},
	}}, &fakeStore{})

	out, err := c.ConversationSummary(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, "Conversation history summarized by turn number:")
	assert.Contains(t, out, "[TURN-1]: asked about Q1 sales")
	assert.Contains(t, out, "[TURN-2]: drilled into product categories")
}

func TestRelevantConversationOrdersAndSkipsCurrentTurn(t *testing.T) {
	mem := &fakeMemory{chats: map[int][]model.ChatHistory{
		1: {
			{TurnNum: 1, Role: model.RoleHuman, Content: "first question"},
			{TurnNum: 1, Role: model.RoleAI, Content: "first answer"},
		},
		2: {
			{TurnNum: 2, Role: model.RoleHuman, Content: "second question"},
			{TurnNum: 2, Role: model.RoleAI, Content: "second answer"},
		},
	}}
	c := New(mem, &fakeStore{})

	st := &model.State{
		TurnNum: 3,
		IntentComprehension: &model.IntentComprehension{
			RelevantTurns: []string{"2", "3", "not-a-number", "1"},
		},
	}

	msgs, err := c.RelevantConversation(context.Background(), st)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, schema.User, msgs[0].Role)
	assert.Equal(t, "first question", msgs[0].Content)
	assert.Equal(t, schema.Assistant, msgs[1].Role)
	assert.Equal(t, "second question", msgs[2].Content)
}

func TestRelevantConversationWithoutComprehension(t *testing.T) {
	c := New(&fakeMemory{}, &fakeStore{})
	msgs, err := c.RelevantConversation(context.Background(), &model.State{})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDatabaseSchemaInfoRendersColumns(t *testing.T) {
	store := &fakeStore{dbSchema: &model.DatabaseSchema{
		Tables: []string{"orders"},
		Columns: map[string][]model.ColumnInfo{
			"orders": {
				{Name: "id", Type: "INTEGER", SampleValues: []string{"1", "2", "3"}},
				{Name: "ordered_at", Type: "TIMESTAMP", Temporal: true, Earliest: "2024-01-01", Latest: "2024-12-31"},
			},
		},
	}}
	c := New(&fakeMemory{}, store)

	out, err := c.DatabaseSchemaInfo(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, `Table "orders":`)
	assert.Contains(t, out, "id (INTEGER)")
	assert.Contains(t, out, "earliest=2024-01-01 latest=2024-12-31")
}

func TestDataFrameSchemaInfoEmpty(t *testing.T) {
	c := New(&fakeMemory{}, &fakeStore{})
	out, err := c.DataFrameSchemaInfo()
	require.NoError(t, err)
	assert.Equal(t, "\n\nThere is no dataframe object representation.", out)
}

func TestLastSavedSQL(t *testing.T) {
	c := New(&fakeMemory{lastSQL: "SELECT 1", hasSQL: true}, &fakeStore{})
	out, err := c.LastSavedSQL(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, "SELECT 1")

	c = New(&fakeMemory{}, &fakeStore{})
	out, err = c.LastSavedSQL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "\n\nThere is no SQL query executed previously.", out)
}

func TestRequiredSlotViolations(t *testing.T) {
	c := New(&fakeMemory{}, &fakeStore{})
	st := &model.State{}

	_, err := c.GeneratedSQL(st, model.StageDataRetrievalObservation)
	assert.True(t, errx.IsContractViolation(err))

	_, err = c.PuntRationale(st, model.StagePuntResponse)
	assert.True(t, errx.IsContractViolation(err))

	_, err = c.AnalyticalPlanDigest(st, model.StageAnalyticalObservation)
	assert.True(t, errx.IsContractViolation(err))

	_, err = c.ExecutionStdout(nil, "analytical_execution", model.StageAnalyticalResult)
	assert.True(t, errx.IsContractViolation(err))

	_, err = c.AnalyticalResultContext(st, model.StageInfographicRequirement)
	assert.True(t, errx.IsContractViolation(err))
}

func TestSandboxSourceSelectsBootstrapByAnalysisType(t *testing.T) {
	c := New(&fakeMemory{}, &fakeStore{})
	st := &model.State{AnalyticalPlan: &model.AnalyticalPlan{
		AnalysisType: model.AnalysisDescriptive,
		Plan: []model.AnalyticalStep{
			{Number: 1, PythonCode: "print('STEP 1 RESULT')"},
			{Number: 2, PythonCode: "print('STEP 2 RESULT')"},
		},
	}}
	bootstrap := map[model.AnalysisType]string{model.AnalysisDescriptive: "import pandas as pd"}

	code, err := c.SandboxSource(st, bootstrap, model.StageAnalyticalPlanExecution)
	require.NoError(t, err)
	assert.Contains(t, code, "import pandas as pd")
	assert.Contains(t, code, "STEP 1 RESULT")
	assert.Contains(t, code, "STEP 2 RESULT")

	st.AnalyticalPlan.AnalysisType = model.AnalysisPredictive
	_, err = c.SandboxSource(st, bootstrap, model.StageAnalyticalPlanExecution)
	assert.Error(t, err)

	st.AnalyticalPlan.AnalysisType = "prescriptive"
	_, err = c.SandboxSource(st, bootstrap, model.StageAnalyticalPlanExecution)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown analysis type")
}

func TestInfographicArtifacts(t *testing.T) {
	c := New(&fakeMemory{}, &fakeStore{})

	assert.Empty(t, c.InfographicArtifacts(&model.State{}))

	st := &model.State{InfographicPlan: &model.InfographicPlan{Plan: []model.InfographicStep{
		{Number: 1, Description: "monthly trend line", OutputGraphPath: "monthly_trend.png"},
	}}}
	out := c.InfographicArtifacts(st)
	assert.Contains(t, out, "monthly_trend.png: monthly trend line")
}

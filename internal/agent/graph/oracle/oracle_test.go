package oracle

import (
	"context"
	"errors"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reyharighy/cba-agentic-ai/internal/agent/model"
)

// scriptedChatModel replays canned responses in order. A nil entry yields a
// transport error for that attempt.
type scriptedChatModel struct {
	responses []*schema.Message
	calls     int
}

func (s *scriptedChatModel) Generate(_ context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	if s.calls >= len(s.responses) {
		return nil, errors.New("script exhausted")
	}
	resp := s.responses[s.calls]
	s.calls++
	if resp == nil {
		return nil, errors.New("transport fault")
	}
	return resp, nil
}

func newTestOracle(cm ChatModel) *Oracle {
	return NewWithTiers(map[Tier]ChatModel{
		TierLow:    cm,
		TierMedium: cm,
		TierHigh:   cm,
	}, 2)
}

func TestCompleteRetriesTransportFault(t *testing.T) {
	cm := &scriptedChatModel{responses: []*schema.Message{
		nil,
		schema.AssistantMessage("recovered", nil),
	}}
	o := newTestOracle(cm)

	out, err := o.Complete(context.Background(), TierLow, []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "recovered", out.Content)
	assert.Equal(t, 2, cm.calls)
}

func TestCompleteUnknownTier(t *testing.T) {
	o := NewWithTiers(map[Tier]ChatModel{}, 1)
	_, err := o.Complete(context.Background(), TierHigh, nil)
	assert.Error(t, err)
}

func TestCompleteStructuredValidPayload(t *testing.T) {
	cm := &scriptedChatModel{responses: []*schema.Message{
		schema.AssistantMessage(`{"request_is_business_analytical_domain": true, "rationale": "sales"}`, nil),
	}}
	o := newTestOracle(cm)

	var decision model.RequestClassification
	err := o.CompleteStructured(context.Background(), TierLow, nil, SchemaRequestClassification, &decision)
	require.NoError(t, err)
	assert.True(t, decision.InDomain)
	assert.Equal(t, "sales", decision.Rationale)
}

func TestCompleteStructuredRetriesSchemaViolation(t *testing.T) {
	cm := &scriptedChatModel{responses: []*schema.Message{
		schema.AssistantMessage(`{"rationale": "missing the decision field"}`, nil),
		schema.AssistantMessage(`{"analytical_process_is_required": false, "rationale": "definition question"}`, nil),
	}}
	o := newTestOracle(cm)

	var decision model.AnalyticalRequirement
	err := o.CompleteStructured(context.Background(), TierLow, nil, SchemaAnalyticalRequirement, &decision)
	require.NoError(t, err)
	assert.False(t, decision.Required)
	assert.Equal(t, 2, cm.calls)
}

func TestCompleteStructuredRejectsAdditionalProperties(t *testing.T) {
	cm := &scriptedChatModel{responses: []*schema.Message{
		schema.AssistantMessage(`{"data_is_available": true, "rationale": "r", "extra": 1}`, nil),
		schema.AssistantMessage(`{"data_is_available": true, "rationale": "r", "extra": 1}`, nil),
		schema.AssistantMessage(`{"data_is_available": true, "rationale": "r", "extra": 1}`, nil),
	}}
	o := newTestOracle(cm)

	var decision model.DataAvailability
	err := o.CompleteStructured(context.Background(), TierLow, nil, SchemaDataAvailability, &decision)
	assert.Error(t, err)
}

func TestCompleteStructuredNullSQLQuery(t *testing.T) {
	cm := &scriptedChatModel{responses: []*schema.Message{
		schema.AssistantMessage(`{"sql_query": null, "rationale": "no query can produce this"}`, nil),
	}}
	o := newTestOracle(cm)

	var plan model.DataRetrievalPlan
	err := o.CompleteStructured(context.Background(), TierMedium, nil, SchemaDataRetrievalPlan, &plan)
	require.NoError(t, err)
	assert.Nil(t, plan.SQLQuery)
}

func TestCompleteStructuredAnalyticalPlan(t *testing.T) {
	payload := `{
		"analysis_type": "descriptive",
		"plan": [{
			"number": 1,
			"description": "aggregate monthly sales",
			"input_df": "df",
			"output_df": "monthly_df",
			"python_code": "monthly_df = df.groupby('month').sum()\nprint(\"STEP 1 RESULT\")\nprint(monthly_df)",
			"rationale": "monthly grain requested"
		}],
		"rationale": "single aggregation suffices"
	}`
	cm := &scriptedChatModel{responses: []*schema.Message{schema.AssistantMessage(payload, nil)}}
	o := newTestOracle(cm)

	var plan model.AnalyticalPlan
	err := o.CompleteStructured(context.Background(), TierHigh, nil, SchemaAnalyticalPlan, &plan)
	require.NoError(t, err)
	require.Len(t, plan.Plan, 1)
	assert.Equal(t, model.AnalysisDescriptive, plan.AnalysisType)
	assert.Equal(t, "monthly_df", plan.Plan[0].OutputDF)
}

func TestCompleteStructuredUnknownSchema(t *testing.T) {
	o := newTestOracle(&scriptedChatModel{})
	var out map[string]any
	err := o.CompleteStructured(context.Background(), TierLow, nil, "NoSuchSchema", &out)
	assert.Error(t, err)
}

func TestSchemaInstructionNamesSchema(t *testing.T) {
	instruction, err := SchemaInstruction(SchemaInfographicPlan)
	require.NoError(t, err)
	assert.Contains(t, instruction, SchemaInfographicPlan)
	assert.Contains(t, instruction, "output_graph_path")
}

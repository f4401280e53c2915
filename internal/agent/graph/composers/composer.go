// Package composers derives and assembles the contextual information graph
// nodes feed to the oracle before and after inference. It does not execute
// graph logic or control flow.
package composers

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/reyharighy/cba-agentic-ai/internal/agent/model"
	errx "github.com/reyharighy/cba-agentic-ai/internal/core/error"
)

// Composer assembles prompt-ready context from long-term memory, the external
// database, and the per-turn state. Methods that read a required state slot
// return errx.ContractViolation when the producing stage has not run.
type Composer struct {
	memory model.MemoryRepository
	store  model.DataStore
}

// New wires the composer to its collaborators.
func New(memory model.MemoryRepository, store model.DataStore) *Composer {
	return &Composer{memory: memory, store: store}
}

// ConversationSummary renders the short-memory digests as a turn-numbered
// history block, the only view of prior turns the comprehension stage sees.
func (c *Composer) ConversationSummary(ctx context.Context) (string, error) {
	memories, err := c.memory.ListShortMemories(ctx)
	if err != nil {
		return "", err
	}
	if len(memories) == 0 {
		return "\n\nThere is no conversation history.", nil
	}

	var b strings.Builder
	b.WriteString("\n\nConversation history summarized by turn number:")
	for _, m := range memories {
		b.WriteString(fmt.Sprintf("\n[TURN-%d]: %s", m.TurnNum, m.Summary))
	}
	return b.String(), nil
}

// RelevantConversation reconstructs the turns selected by intent
// comprehension as role-preserving messages, ascending by turn number.
// The current turn is never replayed.
func (c *Composer) RelevantConversation(ctx context.Context, st *model.State) ([]*schema.Message, error) {
	if st.IntentComprehension == nil {
		return nil, nil
	}

	turns := make([]int, 0, len(st.IntentComprehension.RelevantTurns))
	for _, raw := range st.IntentComprehension.RelevantTurns {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			// tolerate a malformed entry rather than failing the turn
			continue
		}
		if n == st.TurnNum {
			continue
		}
		turns = append(turns, n)
	}
	sort.Ints(turns)

	var msgs []*schema.Message
	for _, turn := range turns {
		chats, err := c.memory.ChatHistoryByTurn(ctx, turn)
		if err != nil {
			return nil, err
		}
		for _, chat := range chats {
			if chat.Role == model.RoleHuman {
				msgs = append(msgs, schema.UserMessage(chat.Content))
			} else {
				msgs = append(msgs, schema.AssistantMessage(chat.Content, nil))
			}
		}
	}
	return msgs, nil
}

// DatabaseSchemaInfo renders the external database schema with sample values,
// deterministic across calls.
func (c *Composer) DatabaseSchemaInfo(ctx context.Context) (string, error) {
	dbSchema, err := c.store.InspectSchema(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("\n\nThe external database schema information:")
	for _, table := range dbSchema.Tables {
		b.WriteString(fmt.Sprintf("\nTable %q:", table))
		for _, col := range dbSchema.Columns[table] {
			if col.Temporal {
				b.WriteString(fmt.Sprintf("\n- %s (%s): earliest=%s latest=%s", col.Name, col.Type, col.Earliest, col.Latest))
				continue
			}
			b.WriteString(fmt.Sprintf("\n- %s (%s): %v", col.Name, col.Type, col.SampleValues))
		}
	}
	return b.String(), nil
}

// DataFrameSchemaInfo describes the working dataset loaded by the last
// successful extraction.
func (c *Composer) DataFrameSchemaInfo() (string, error) {
	desc, err := c.store.DescribeWorkingDataset()
	if err != nil {
		return "", err
	}
	if desc == "" {
		return "\n\nThere is no dataframe object representation.", nil
	}
	return "\n\nDataframe schema and sample values in each columns:\n" + desc, nil
}

// LastSavedSQL recalls the most recently persisted SQL query across turns,
// giving follow-up requests their data provenance.
func (c *Composer) LastSavedSQL(ctx context.Context) (string, error) {
	sql, ok, err := c.memory.LastExecutedSQL(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "\n\nThere is no SQL query executed previously.", nil
	}
	return "\n\nThe dataframe representation above is previously extracted from external database using the following SQL query:\n" + sql, nil
}

// GeneratedSQL reads the SQL statement of the current turn's retrieval plan.
func (c *Composer) GeneratedSQL(st *model.State, stage string) (string, error) {
	if st.DataRetrievalPlan == nil || st.DataRetrievalPlan.SQLQuery == nil {
		return "", errx.NewContractViolation("data_retrieval_plan", stage)
	}
	return "\n\nThe previously generated SQL query:\n" + *st.DataRetrievalPlan.SQLQuery, nil
}

// PuntRationale explains why the request fell outside the supported domain.
func (c *Composer) PuntRationale(st *model.State, stage string) (string, error) {
	if st.RequestClassification == nil {
		return "", errx.NewContractViolation("request_classification", stage)
	}
	return "\n\nThe rationale of why the request falls outside the business analytics domain:\n" + st.RequestClassification.Rationale, nil
}

// DataUnavailabilityRationale explains why the required data does not exist.
func (c *Composer) DataUnavailabilityRationale(st *model.State, stage string) (string, error) {
	if st.DataAvailability == nil {
		return "", errx.NewContractViolation("data_availability", stage)
	}
	return "\n\nThe rationale of why required data does not exist in external database:\n" + st.DataAvailability.Rationale, nil
}

// RetrievalErrorFeedback renders the structured fault that sent the graph
// back into retrieval planning.
func (c *Composer) RetrievalErrorFeedback(st *model.State, stage string) (string, error) {
	if st.DataRetrievalError == nil {
		return "", errx.NewContractViolation("data_retrieval_error", stage)
	}
	return fmt.Sprintf("\n\nThe %s error feedback from the failed data retrieval:\n%s", st.DataRetrievalError.Kind, st.DataRetrievalError.Message), nil
}

// RetrievalObservationFeedback renders the judgement that found the
// retrieved dataset insufficient.
func (c *Composer) RetrievalObservationFeedback(st *model.State, stage string) (string, error) {
	if st.DataRetrievalObservation == nil {
		return "", errx.NewContractViolation("data_retrieval_observation", stage)
	}
	return "\n\nThe observation result on retrieved data:\n" + st.DataRetrievalObservation.Rationale, nil
}

// AnalyticalPlanDigest lists the generated computational steps.
func (c *Composer) AnalyticalPlanDigest(st *model.State, stage string) (string, error) {
	if st.AnalyticalPlan == nil {
		return "", errx.NewContractViolation("analytical_plan", stage)
	}

	var b strings.Builder
	b.WriteString("\n\nThe step-by-step analytical plan (analysis type: " + string(st.AnalyticalPlan.AnalysisType) + "):")
	for _, step := range st.AnalyticalPlan.Plan {
		b.WriteString(fmt.Sprintf("\n%d. %s\n%s", step.Number, step.Description, step.PythonCode))
	}
	return b.String(), nil
}

// InfographicPlanDigest lists the generated plotting steps.
func (c *Composer) InfographicPlanDigest(st *model.State, stage string) (string, error) {
	if st.InfographicPlan == nil {
		return "", errx.NewContractViolation("infographic_plan", stage)
	}

	var b strings.Builder
	b.WriteString("\n\nThe step-by-step infographic plan:")
	for _, step := range st.InfographicPlan.Plan {
		b.WriteString(fmt.Sprintf("\n%d. %s (saves %s)\n%s", step.Number, step.Description, step.OutputGraphPath, step.PythonCode))
	}
	return b.String(), nil
}

// ExecutionStdout renders the sandbox logs of an execution slot.
func (c *Composer) ExecutionStdout(exec *model.Execution, slot, stage string) (string, error) {
	if exec == nil {
		return "", errx.NewContractViolation(slot, stage)
	}
	return "\n\nThe execution logs from the sandbox environment:\n" + strings.Join(exec.Stdout, "\n"), nil
}

// ExecutionError renders the sandbox traceback of a failed execution slot.
func (c *Composer) ExecutionError(exec *model.Execution, slot, stage string) (string, error) {
	if exec == nil || exec.Error == nil {
		return "", errx.NewContractViolation(slot, stage)
	}
	return "\n\nThe traceback error messages from sandbox environment:\n" + exec.Error.Traceback, nil
}

// AnalyticalObservationFeedback renders the judgement that found the
// execution results insufficient.
func (c *Composer) AnalyticalObservationFeedback(st *model.State, stage string) (string, error) {
	if st.AnalyticalObservation == nil {
		return "", errx.NewContractViolation("analytical_observation", stage)
	}
	return "\n\nThe observation result on executed analytical plan:\n" + st.AnalyticalObservation.Rationale, nil
}

// InfographicObservationFeedback renders the judgement that found the
// rendered plots ineffective.
func (c *Composer) InfographicObservationFeedback(st *model.State, stage string) (string, error) {
	if st.InfographicObservation == nil {
		return "", errx.NewContractViolation("infographic_observation", stage)
	}
	return "\n\nThe observation result on rendered infographic plan:\n" + st.InfographicObservation.Rationale, nil
}

// AnalyticalResultContext carries the finalized analytical result into the
// stages that communicate or visualize it.
func (c *Composer) AnalyticalResultContext(st *model.State, stage string) (string, error) {
	if st.AnalyticalResult == "" {
		return "", errx.NewContractViolation("analytical_result", stage)
	}
	return "\n\nThe finalized analytical result:\n" + st.AnalyticalResult, nil
}

// InfographicArtifacts lists the saved plot files for the response stage.
// Returns an empty string when the turn produced no infographic.
func (c *Composer) InfographicArtifacts(st *model.State) string {
	if st.InfographicPlan == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nThe infographic artifacts saved for this analysis:")
	for _, step := range st.InfographicPlan.Plan {
		b.WriteString(fmt.Sprintf("\n- %s: %s", step.OutputGraphPath, step.Description))
	}
	return b.String()
}

// SandboxSource assembles the full analytical sandbox program: the bootstrap
// selected by analysis type followed by every step's code in plan order.
func (c *Composer) SandboxSource(st *model.State, bootstrap map[model.AnalysisType]string, stage string) (string, error) {
	if st.AnalyticalPlan == nil {
		return "", errx.NewContractViolation("analytical_plan", stage)
	}
	if !model.ValidAnalysisType(st.AnalyticalPlan.AnalysisType) {
		return "", fmt.Errorf("unknown analysis type %q", st.AnalyticalPlan.AnalysisType)
	}
	boot, ok := bootstrap[st.AnalyticalPlan.AnalysisType]
	if !ok {
		return "", fmt.Errorf("no sandbox bootstrap for analysis type %q", st.AnalyticalPlan.AnalysisType)
	}

	var b strings.Builder
	b.WriteString(boot)
	for _, step := range st.AnalyticalPlan.Plan {
		b.WriteString("\n" + step.PythonCode + "\n")
	}
	return b.String(), nil
}

// InfographicSource assembles the plotting sandbox program.
func (c *Composer) InfographicSource(st *model.State, bootstrap string, stage string) (string, error) {
	if st.InfographicPlan == nil {
		return "", errx.NewContractViolation("infographic_plan", stage)
	}

	var b strings.Builder
	b.WriteString(bootstrap)
	for _, step := range st.InfographicPlan.Plan {
		b.WriteString("\n" + step.PythonCode + "\n")
	}
	return b.String(), nil
}

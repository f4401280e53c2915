package prompts

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/reyharighy/cba-agentic-ai/internal/agent/model"
)

//go:embed template/*.txt
var templateFS embed.FS

// required lists every registry key a complete prompt set must contain.
// Execution stages run no model call and carry no prompt.
var required = []string{
	model.StageIntentComprehension,
	model.StageRequestClassification,
	model.StagePuntResponse,
	model.StageAnalyticalRequirement,
	model.StageDirectResponse,
	model.StageDataAvailability,
	model.StageDataUnavailabilityResponse,
	model.StageDataRetrievalPlanning,
	model.PromptVariant(model.StageDataRetrievalPlanning, model.StageDataRetrievalExecution),
	model.PromptVariant(model.StageDataRetrievalPlanning, model.StageDataRetrievalObservation),
	model.StageDataRetrievalObservation,
	model.StageAnalyticalPlanning,
	model.PromptVariant(model.StageAnalyticalPlanning, model.StageAnalyticalPlanExecution),
	model.PromptVariant(model.StageAnalyticalPlanning, model.StageAnalyticalObservation),
	model.StageAnalyticalObservation,
	model.StageAnalyticalResult,
	model.StageInfographicRequirement,
	model.StageInfographicPlanning,
	model.PromptVariant(model.StageInfographicPlanning, model.StageInfographicPlanExecution),
	model.PromptVariant(model.StageInfographicPlanning, model.StageInfographicObservation),
	model.StageInfographicObservation,
	model.StageAnalyticalResponse,
	model.StageSummarization,
}

// Load reads the embedded prompt templates into the map carried by the
// turn context. Keys are the stage names plus the repair-loop variants.
func Load() (map[string]string, error) {
	set := make(map[string]string, len(required))

	entries, err := fs.ReadDir(templateFS, "template")
	if err != nil {
		return nil, fmt.Errorf("prompt templates: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".txt") {
			continue
		}
		raw, err := templateFS.ReadFile("template/" + name)
		if err != nil {
			return nil, fmt.Errorf("prompt template %s: %w", name, err)
		}
		key := strings.TrimSuffix(name, ".txt")
		set[key] = strings.TrimSpace(string(raw)) + "\n"
	}

	for _, key := range required {
		if _, ok := set[key]; !ok {
			return nil, fmt.Errorf("prompt template missing for %q", key)
		}
	}
	return set, nil
}

// RenderSystem wraps an already composed system prompt through the Eino
// prompt component using a messages placeholder, so Prompt callbacks fire
// without the template engine touching JSON braces in the content.
func RenderSystem(ctx context.Context, content string) (string, error) {
	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(content)},
	})
	if err != nil {
		return "", fmt.Errorf("system prompt callbacks: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("system prompt callbacks: empty result")
	}
	return msgs[0].Content, nil
}

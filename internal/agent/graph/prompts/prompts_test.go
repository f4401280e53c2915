package prompts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reyharighy/cba-agentic-ai/internal/agent/model"
)

func TestLoadCoversEveryStagePrompt(t *testing.T) {
	set, err := Load()
	require.NoError(t, err)

	for _, key := range required {
		content, ok := set[key]
		require.True(t, ok, "missing prompt for %q", key)
		assert.NotEmpty(t, content, key)
	}
}

func TestLoadRepairVariantsDifferFromBase(t *testing.T) {
	set, err := Load()
	require.NoError(t, err)

	base := set[model.StageDataRetrievalPlanning]
	fromExec := set[model.PromptVariant(model.StageDataRetrievalPlanning, model.StageDataRetrievalExecution)]
	fromObs := set[model.PromptVariant(model.StageDataRetrievalPlanning, model.StageDataRetrievalObservation)]

	assert.NotEqual(t, base, fromExec)
	assert.NotEqual(t, base, fromObs)
	assert.NotEqual(t, fromExec, fromObs)
}

func TestRenderSystemPreservesJSONBraces(t *testing.T) {
	content := `Respond with {"result_is_sufficient": true, "rationale": "..."} only.`

	out, err := RenderSystem(context.Background(), content)
	require.NoError(t, err)
	assert.Equal(t, content, out)
}

func TestAnalyticalBootstrapPerType(t *testing.T) {
	boot := AnalyticalBootstrap()

	for _, at := range []model.AnalysisType{
		model.AnalysisDescriptive,
		model.AnalysisDiagnostic,
		model.AnalysisPredictive,
		model.AnalysisInferential,
	} {
		src, ok := boot[at]
		require.True(t, ok, string(at))
		assert.Contains(t, src, "import pandas as pd", string(at))
		assert.Contains(t, src, "dataset.csv", string(at))
	}

	assert.NotContains(t, boot[model.AnalysisDescriptive], "scipy")
	assert.Contains(t, boot[model.AnalysisDiagnostic], "scipy")
	assert.Contains(t, boot[model.AnalysisPredictive], "scipy")
	assert.Contains(t, boot[model.AnalysisInferential], "sklearn")
}

func TestInfographicBootstrapUsesHeadlessBackend(t *testing.T) {
	src := InfographicBootstrap()
	assert.Contains(t, src, "matplotlib.use('Agg')")
	assert.Contains(t, src, "seaborn")
}

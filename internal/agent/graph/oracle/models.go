package oracle

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"github.com/reyharighy/cba-agentic-ai/internal/agent/model"
	logx "github.com/reyharighy/cba-agentic-ai/pkg/logger"
)

// ModelsConfig holds the configuration for chat model creation.
type ModelsConfig struct {
	APIKey  string
	BaseURL string
	Oracle  model.OracleModelConfig
}

// Models holds the chat models for every capability tier.
type Models struct {
	Low    *gemini.ChatModel
	Medium *gemini.ChatModel
	High   *gemini.ChatModel
}

// NewModels creates the three tiered chat models over a shared Gemini client.
func NewModels(ctx context.Context, config ModelsConfig) (*Models, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	build := func(name string) (*gemini.ChatModel, error) {
		cm, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client:      client,
			Model:       name,
			Temperature: &config.Oracle.Temperature,
			MaxTokens:   &config.Oracle.MaxTokens,
		})
		if err != nil {
			logx.Error().Err(err).Str("model", name).Msg("Error creating chat model")
			return nil, fmt.Errorf("error creating chat model %s: %w", name, err)
		}
		return cm, nil
	}

	low, err := build(config.Oracle.Low)
	if err != nil {
		return nil, err
	}
	medium, err := build(config.Oracle.Medium)
	if err != nil {
		return nil, err
	}
	high, err := build(config.Oracle.High)
	if err != nil {
		return nil, err
	}

	return &Models{Low: low, Medium: medium, High: high}, nil
}

package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/xeipuuv/gojsonschema"

	"github.com/reyharighy/cba-agentic-ai/internal/agent/model"
	errx "github.com/reyharighy/cba-agentic-ai/internal/core/error"
	logx "github.com/reyharighy/cba-agentic-ai/pkg/logger"
)

// Tier selects a reasoning capability class. Classification gates run on the
// low tier, plan generation on the medium tier, user-facing synthesis on the
// high tier.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// ChatModel is the subset of the Eino model interface the oracle needs.
// The gemini ChatModel satisfies it; tests substitute scripted fakes.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error)
}

// Oracle routes completions to tiered chat models, enforces structured
// output contracts, and retries transient faults.
type Oracle struct {
	tiers      map[Tier]ChatModel
	names      map[Tier]string
	maxRetries int
}

// New wires the tiered chat models into an Oracle.
func New(models *Models, cfg model.OracleModelConfig) *Oracle {
	return &Oracle{
		tiers: map[Tier]ChatModel{
			TierLow:    models.Low,
			TierMedium: models.Medium,
			TierHigh:   models.High,
		},
		names: map[Tier]string{
			TierLow:    cfg.Low,
			TierMedium: cfg.Medium,
			TierHigh:   cfg.High,
		},
		maxRetries: cfg.MaxRetries,
	}
}

// NewWithTiers builds an Oracle over arbitrary chat models. Used by tests.
func NewWithTiers(tiers map[Tier]ChatModel, maxRetries int) *Oracle {
	names := make(map[Tier]string, len(tiers))
	for t := range tiers {
		names[t] = string(t)
	}
	return &Oracle{tiers: tiers, names: names, maxRetries: maxRetries}
}

// Complete generates a free-form assistant message on the given tier,
// retrying transport faults with exponential backoff.
func (o *Oracle) Complete(ctx context.Context, tier Tier, msgs []*schema.Message) (*schema.Message, error) {
	cm, ok := o.tiers[tier]
	if !ok {
		return nil, fmt.Errorf("unknown oracle tier %q", tier)
	}

	op := func() (*schema.Message, error) {
		out, err := cm.Generate(ctx, msgs)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if out == nil {
			return nil, fmt.Errorf("empty completion")
		}
		return out, nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(o.maxRetries)), ctx)
	notify := func(err error, wait time.Duration) {
		logx.Warn().Err(err).Str("tier", string(tier)).Dur("retry_in", wait).Msg("Oracle completion retrying")
	}

	out, err := backoff.RetryNotifyWithData(op, bo, notify)
	if err != nil {
		logx.Error().Err(err).Str("tier", string(tier)).Msg("Oracle completion failed")
		return nil, errx.WrapOracle(err)
	}

	o.logUsage(tier, out)
	return out, nil
}

// CompleteStructured generates a completion that must satisfy the named JSON
// schema and unmarshals it into out. Malformed or non-conforming payloads are
// retried like transport faults, since the model may converge on a later
// attempt.
func (o *Oracle) CompleteStructured(ctx context.Context, tier Tier, msgs []*schema.Message, schemaName string, out any) error {
	cm, ok := o.tiers[tier]
	if !ok {
		return fmt.Errorf("unknown oracle tier %q", tier)
	}
	loader, ok := schemaLoader(schemaName)
	if !ok {
		return fmt.Errorf("unknown output schema %q", schemaName)
	}

	op := func() (*schema.Message, error) {
		resp, err := cm.Generate(ctx, msgs)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if resp == nil {
			return nil, fmt.Errorf("empty completion")
		}

		payload, err := ExtractJSON(resp.Content)
		if err != nil {
			return nil, fmt.Errorf("%s output: %w", schemaName, err)
		}

		result, err := gojsonschema.Validate(loader, gojsonschema.NewStringLoader(payload))
		if err != nil {
			return nil, fmt.Errorf("%s schema validation: %w", schemaName, err)
		}
		if !result.Valid() {
			return nil, fmt.Errorf("%s schema violation: %s", schemaName, formatSchemaErrors(result))
		}

		if err := json.Unmarshal([]byte(payload), out); err != nil {
			return nil, fmt.Errorf("%s unmarshal: %w", schemaName, err)
		}
		return resp, nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(o.maxRetries)), ctx)
	notify := func(err error, wait time.Duration) {
		logx.Warn().Err(err).Str("tier", string(tier)).Str("schema", schemaName).Dur("retry_in", wait).Msg("Oracle structured output retrying")
	}

	resp, err := backoff.RetryNotifyWithData(op, bo, notify)
	if err != nil {
		logx.Error().Err(err).Str("tier", string(tier)).Str("schema", schemaName).Msg("Oracle structured output failed")
		return errx.WrapOracle(err)
	}

	o.logUsage(tier, resp)
	return nil
}

func (o *Oracle) logUsage(tier Tier, msg *schema.Message) {
	if msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return
	}
	usage := msg.ResponseMeta.Usage
	name := o.names[tier]
	ev := logx.Debug().
		Str("model", name).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens)
	if model.CostEnabled() {
		_, _, total := model.ComputeCost(usage, model.ResolvePricing(name))
		ev = ev.Float64("usage_cost", total)
	}
	ev.Msg("Oracle usage")
}

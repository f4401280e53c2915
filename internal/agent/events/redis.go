package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	errx "github.com/reyharighy/cba-agentic-ai/internal/core/error"
	logx "github.com/reyharighy/cba-agentic-ai/pkg/logger"
)

// RedisSink publishes stage events on a pub/sub channel consumed by the UI.
type RedisSink struct {
	rdb     redis.Cmdable
	channel string
}

// NewRedisSink wires a sink over an existing Redis client.
func NewRedisSink(rdb redis.Cmdable, channel string) *RedisSink {
	return &RedisSink{rdb: rdb, channel: channel}
}

// Publish implements Sink.
func (s *RedisSink) Publish(ctx context.Context, ev StageEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		logx.Error().Err(err).Str("stage", ev.Stage).Msg("failed to marshal stage event")
		return fmt.Errorf("marshal stage event: %w", err)
	}
	if err := s.rdb.Publish(ctx, s.channel, b).Err(); err != nil {
		logx.Error().Err(err).Str("channel", s.channel).Msg("failed to publish stage event")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ Sink = (*RedisSink)(nil)
var _ Sink = (*ChannelSink)(nil)

// Package events streams per-stage progress to the observing UI layer.
// Publication is strictly observational: business logic never branches on
// whether an event was delivered.
package events

import (
	"context"

	logx "github.com/reyharighy/cba-agentic-ai/pkg/logger"
)

// StageEvent is one progress notification: which stage just completed, where
// the graph goes next, and the stage's own explanation of its decision.
type StageEvent struct {
	TurnNum   int    `json:"turn_num"`
	Stage     string `json:"stage"`
	Route     string `json:"route,omitempty"`
	Rationale string `json:"rationale,omitempty"`
	Terminal  bool   `json:"terminal"`
}

// Sink receives stage events. Implementations must be safe for concurrent
// use and must never block the graph for long.
type Sink interface {
	Publish(ctx context.Context, ev StageEvent) error
}

// Emit publishes best-effort: delivery failures are logged and swallowed so
// UI visibility problems cannot fail a turn. A nil sink is a no-op.
func Emit(ctx context.Context, sink Sink, ev StageEvent) {
	if sink == nil {
		return
	}
	if err := sink.Publish(ctx, ev); err != nil {
		logx.Warn().Err(err).Str("stage", ev.Stage).Msg("stage event dropped")
	}
}

// ChannelSink delivers events to an in-process channel, dropping when the
// receiver lags. Used by tests and local UIs.
type ChannelSink struct {
	ch chan StageEvent
}

// NewChannelSink builds a sink buffering up to size events.
func NewChannelSink(size int) *ChannelSink {
	return &ChannelSink{ch: make(chan StageEvent, size)}
}

// Events exposes the receive side.
func (s *ChannelSink) Events() <-chan StageEvent {
	return s.ch
}

// Publish implements Sink.
func (s *ChannelSink) Publish(_ context.Context, ev StageEvent) error {
	select {
	case s.ch <- ev:
	default:
		logx.Warn().Str("stage", ev.Stage).Msg("channel sink full, event dropped")
	}
	return nil
}

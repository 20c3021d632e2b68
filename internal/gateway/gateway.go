// Package gateway wraps the external reasoning capability behind a
// rate-limited call bound to the declared tool catalogue.
package gateway

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"taskchain/internal/config"
	"taskchain/internal/conversation"
)

type Gateway struct {
	provider Provider
	limiter  *rate.Limiter
	model    string
	log      zerolog.Logger
}

func New(provider Provider, cfg config.ProviderConfig, log zerolog.Logger) *Gateway {
	requests := cfg.RequestsPerWindow
	if requests <= 0 {
		requests = 4
	}
	window := time.Duration(cfg.WindowMS) * time.Millisecond
	if window <= 0 {
		window = time.Minute
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = requests
	}
	return &Gateway{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Every(window/time.Duration(requests)), burst),
		model:    cfg.Model,
		log:      log,
	}
}

// Complete blocks on the rate limiter, then asks the provider for exactly one
// assistant message. No retries happen here.
func (g *Gateway) Complete(ctx context.Context, msgs []conversation.Message, tools []ToolDefinition) (conversation.Message, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return conversation.Message{}, err
	}
	start := time.Now()
	msg, err := g.provider.Complete(ctx, Request{Model: g.model, Messages: msgs, Tools: tools})
	ev := g.log.Debug().
		Str("provider", g.provider.Name()).
		Int("context_messages", len(msgs)).
		Dur("latency", time.Since(start))
	if err != nil {
		ev.Err(err).Msg("model call failed")
		return conversation.Message{}, err
	}
	ev.Str("finish_reason", msg.FinishReason).
		Int("tool_calls", len(msg.ToolCalls)).
		Msg("model call completed")
	return msg, nil
}

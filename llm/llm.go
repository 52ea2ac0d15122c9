// Package llm turns transcripts into replies. Responders are stateless over
// an explicit message history so the cloud primary and local secondary can
// serve the same conversation interchangeably.
package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/albertoelopez/voice-agent/fallback"
	"github.com/albertoelopez/voice-agent/pipeline"
)

// Message roles, mirroring the chat-completion wire format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of conversation history.
type Message struct {
	Role    string
	Content string
}

// Responder generates a reply for a message history, either whole or as a
// token stream. Stream implementations send tokens on out and must not close
// it; the caller owns the channel.
type Responder interface {
	Generate(ctx context.Context, msgs []Message) (*pipeline.GenerationResult, error)
	Stream(ctx context.Context, msgs []Message, out chan<- string) error
	Name() string
}

// Fallback is a Responder preferring a cloud primary with a local secondary.
type Fallback struct {
	selector   *fallback.Selector[*pipeline.GenerationResult]
	primary    Responder
	secondary  Responder
	force      bool
	logger     *zap.Logger
	onFallback func()
}

// NewFallback wires two responders through a fallback selector. The breaker
// guarding the primary is shared between Generate and Stream.
func NewFallback(primary, secondary Responder, opts fallback.Options) *Fallback {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{
		selector:   fallback.NewSelector[*pipeline.GenerationResult]("llm", primary.Name(), secondary.Name(), opts),
		primary:    primary,
		secondary:  secondary,
		force:      opts.ForceSecondary,
		logger:     logger,
		onFallback: opts.OnFallback,
	}
}

func (f *Fallback) Name() string { return "fallback-llm" }

// Generate tries the primary and falls back on any failure.
func (f *Fallback) Generate(ctx context.Context, msgs []Message) (*pipeline.GenerationResult, error) {
	result, _, err := f.selector.Do(ctx,
		func(ctx context.Context) (*pipeline.GenerationResult, error) {
			return f.primary.Generate(ctx, msgs)
		},
		func(ctx context.Context) (*pipeline.GenerationResult, error) {
			return f.secondary.Generate(ctx, msgs)
		})
	return result, err
}

// Stream prefers the primary's token stream. On a primary error the
// secondary re-streams the reply from scratch; tokens the primary already
// emitted are a duplication the consumer has to absorb, the same trade the
// non-streaming path avoids by buffering.
func (f *Fallback) Stream(ctx context.Context, msgs []Message, out chan<- string) error {
	breaker := f.selector.Breaker()

	if !f.force && breaker.Allow() {
		err := f.primary.Stream(ctx, msgs, out)
		if err == nil {
			breaker.Success()
			return nil
		}
		breaker.Failure()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("primary stream failed, falling back",
			zap.String("primary", f.primary.Name()),
			zap.String("secondary", f.secondary.Name()),
			zap.Error(err))
		if f.onFallback != nil {
			f.onFallback()
		}
	}

	return f.secondary.Stream(ctx, msgs, out)
}

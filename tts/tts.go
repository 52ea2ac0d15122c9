// Package tts renders reply text to audio. Providers can return the whole
// clip or stream base64-encoded chunks sized for telephony media frames.
package tts

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/albertoelopez/voice-agent/fallback"
	"github.com/albertoelopez/voice-agent/pipeline"
)

// Synthesizer converts text to audio. Stream sends base64 audio chunks on
// out without closing it; the caller owns the channel.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*pipeline.SynthesisResult, error)
	Stream(ctx context.Context, text string, out chan<- string) error
	Name() string
}

// Fallback is a Synthesizer preferring a cloud primary with a local
// secondary.
type Fallback struct {
	selector   *fallback.Selector[*pipeline.SynthesisResult]
	primary    Synthesizer
	secondary  Synthesizer
	force      bool
	logger     *zap.Logger
	onFallback func()
}

// NewFallback wires two synthesizers through a fallback selector.
func NewFallback(primary, secondary Synthesizer, opts fallback.Options) *Fallback {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{
		selector:   fallback.NewSelector[*pipeline.SynthesisResult]("tts", primary.Name(), secondary.Name(), opts),
		primary:    primary,
		secondary:  secondary,
		force:      opts.ForceSecondary,
		logger:     logger,
		onFallback: opts.OnFallback,
	}
}

func (f *Fallback) Name() string { return "fallback-tts" }

// Synthesize tries the primary and falls back on any failure. An empty clip
// from a provider counts as a failure; silence is not a reply.
func (f *Fallback) Synthesize(ctx context.Context, text string) (*pipeline.SynthesisResult, error) {
	result, _, err := f.selector.Do(ctx,
		func(ctx context.Context) (*pipeline.SynthesisResult, error) {
			return nonEmpty(f.primary.Synthesize(ctx, text))
		},
		func(ctx context.Context) (*pipeline.SynthesisResult, error) {
			return nonEmpty(f.secondary.Synthesize(ctx, text))
		})
	return result, err
}

func nonEmpty(res *pipeline.SynthesisResult, err error) (*pipeline.SynthesisResult, error) {
	if err != nil {
		return nil, err
	}
	if len(res.Audio) == 0 {
		return nil, fmt.Errorf("%s returned empty audio", res.Provider)
	}
	return res, nil
}

// Stream prefers the primary's chunk stream and re-streams from the
// secondary on any primary error.
func (f *Fallback) Stream(ctx context.Context, text string, out chan<- string) error {
	breaker := f.selector.Breaker()

	if !f.force && breaker.Allow() {
		err := f.primary.Stream(ctx, text, out)
		if err == nil {
			breaker.Success()
			return nil
		}
		breaker.Failure()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("primary synthesis failed, falling back",
			zap.String("primary", f.primary.Name()),
			zap.String("secondary", f.secondary.Name()),
			zap.Error(err))
		if f.onFallback != nil {
			f.onFallback()
		}
	}

	return f.secondary.Stream(ctx, text, out)
}

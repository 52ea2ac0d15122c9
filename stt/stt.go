// Package stt converts gated audio segments to text. Providers take mono
// 16-bit PCM at the sample rate they were constructed with and return a
// TranscriptionResult carrying text, confidence, latency, and which provider
// actually served.
package stt

import (
	"context"

	"github.com/albertoelopez/voice-agent/fallback"
	"github.com/albertoelopez/voice-agent/pipeline"
)

// Transcriber is a one-shot speech-to-text provider.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []int16) (*pipeline.TranscriptionResult, error)
	Name() string
}

// Fallback is a Transcriber that prefers a cloud primary and degrades to a
// local secondary on any failure.
type Fallback struct {
	selector  *fallback.Selector[*pipeline.TranscriptionResult]
	primary   Transcriber
	secondary Transcriber
}

// NewFallback wires the two transcribers through a fallback selector.
func NewFallback(primary, secondary Transcriber, opts fallback.Options) *Fallback {
	return &Fallback{
		selector:  fallback.NewSelector[*pipeline.TranscriptionResult]("stt", primary.Name(), secondary.Name(), opts),
		primary:   primary,
		secondary: secondary,
	}
}

func (f *Fallback) Name() string { return "fallback-stt" }

// Transcribe tries the primary and falls back to the secondary. The result's
// Provider field reports who served.
func (f *Fallback) Transcribe(ctx context.Context, pcm []int16) (*pipeline.TranscriptionResult, error) {
	result, _, err := f.selector.Do(ctx,
		func(ctx context.Context) (*pipeline.TranscriptionResult, error) {
			return f.primary.Transcribe(ctx, pcm)
		},
		func(ctx context.Context) (*pipeline.TranscriptionResult, error) {
			return f.secondary.Transcribe(ctx, pcm)
		})
	return result, err
}

// Package pipeline holds the data model shared across the voice pipeline
// stages and the session state machine that wires them together.
package pipeline

import "time"

// AudioChunk is one frame of raw audio moving through the pipeline.
type AudioChunk []byte

// Transcription is one partial or final update from a streaming transcriber.
type Transcription struct {
	Text       string
	Confidence float64
	Final      bool
}

// TranscriptionResult is produced once per gated audio segment and is
// immutable after creation.
type TranscriptionResult struct {
	Text       string
	Confidence float64
	Latency    time.Duration
	Provider   string
}

// GenerationResult is the reply produced for one transcript.
type GenerationResult struct {
	Text       string
	Latency    time.Duration
	Provider   string
	TokensUsed int
}

// SynthesisResult carries the audio rendered for one piece of reply text.
type SynthesisResult struct {
	Audio    []byte
	Format   string
	Latency  time.Duration
	Provider string
}

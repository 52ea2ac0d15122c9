package stt

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/albertoelopez/voice-agent/audio"
	"github.com/albertoelopez/voice-agent/pipeline"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// GroqTranscriber transcribes through Groq's Whisper endpoint, which speaks
// the OpenAI audio API.
type GroqTranscriber struct {
	client     *openai.Client
	model      string
	language   string
	sampleRate int
}

// NewGroqTranscriber returns a transcriber for the given model, e.g.
// whisper-large-v3-turbo.
func NewGroqTranscriber(apiKey, model, language string, sampleRate int) (*GroqTranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("groq API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = groqBaseURL

	return &GroqTranscriber{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		language:   language,
		sampleRate: sampleRate,
	}, nil
}

func (g *GroqTranscriber) Name() string { return "groq" }

// Transcribe uploads the segment as a WAV file and returns the text.
func (g *GroqTranscriber) Transcribe(ctx context.Context, pcm []int16) (*pipeline.TranscriptionResult, error) {
	wavData, err := audio.EncodeWAV(pcm, g.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("encoding segment: %w", err)
	}

	start := time.Now()
	resp, err := g.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    g.model,
		Reader:   bytes.NewReader(wavData),
		FilePath: "audio.wav",
		Language: g.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("groq transcription: %w", err)
	}

	return &pipeline.TranscriptionResult{
		Text:     strings.TrimSpace(resp.Text),
		Latency:  time.Since(start),
		Provider: g.Name(),
	}, nil
}

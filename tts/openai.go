package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/albertoelopez/voice-agent/pipeline"
)

// OpenAITTS synthesizes through the OpenAI speech endpoint. It returns WAV
// audio, so it serves the local dev loop and benchmarks rather than the
// telephony leg.
type OpenAITTS struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
}

// NewOpenAITTS defaults to tts-1 with the alloy voice.
func NewOpenAITTS(apiKey, model, voice string) (*OpenAITTS, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if model == "" {
		model = string(openai.TTSModel1)
	}
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &OpenAITTS{
		client: openai.NewClient(apiKey),
		model:  openai.SpeechModel(model),
		voice:  openai.SpeechVoice(voice),
	}, nil
}

func (o *OpenAITTS) Name() string { return "openai" }

// Synthesize buffers the whole clip.
func (o *OpenAITTS) Synthesize(ctx context.Context, text string) (*pipeline.SynthesisResult, error) {
	start := time.Now()
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          o.model,
		Input:          text,
		Voice:          o.voice,
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("reading audio: %w", err)
	}

	return &pipeline.SynthesisResult{
		Audio:    audio,
		Format:   "wav",
		Latency:  time.Since(start),
		Provider: o.Name(),
	}, nil
}

// Stream emits the clip as base64 chunks as the response body is read.
func (o *OpenAITTS) Stream(ctx context.Context, text string, out chan<- string) error {
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          o.model,
		Input:          text,
		Voice:          o.voice,
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		return fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Close()

	return streamBase64(ctx, resp, out)
}

// streamBase64 chunks a raw audio reader into base64 pieces sized for media
// frames.
func streamBase64(ctx context.Context, r io.Reader, out chan<- string) error {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case out <- base64.StdEncoding.EncodeToString(buf[:n]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading audio: %w", err)
		}
	}
}

package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/albertoelopez/voice-agent/pipeline"
)

const elevenLabsBaseURL = "https://api.elevenlabs.io/v1"

// ElevenLabs synthesizes through the streaming text-to-speech endpoint,
// which returns audio as a sequence of JSON objects carrying base64 chunks.
// With output format ulaw_8000 the chunks drop straight into Twilio media
// frames.
type ElevenLabs struct {
	apiKey       string
	voiceID      string
	modelID      string
	outputFormat string
	httpClient   *http.Client
}

// NewElevenLabs returns a synthesizer for one voice.
func NewElevenLabs(apiKey, voiceID, modelID, outputFormat string) (*ElevenLabs, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("elevenlabs API key is required")
	}
	if voiceID == "" {
		return nil, fmt.Errorf("voice ID is required")
	}
	return &ElevenLabs{
		apiKey:       apiKey,
		voiceID:      voiceID,
		modelID:      modelID,
		outputFormat: outputFormat,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

// Stream emits base64 audio chunks as the endpoint produces them.
func (e *ElevenLabs) Stream(ctx context.Context, text string, out chan<- string) error {
	return e.stream(ctx, text, func(chunk string) error {
		select {
		case out <- chunk:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// Synthesize buffers the whole clip.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*pipeline.SynthesisResult, error) {
	start := time.Now()
	var audio []byte
	err := e.stream(ctx, text, func(chunk string) error {
		decoded, err := base64.StdEncoding.DecodeString(chunk)
		if err != nil {
			return fmt.Errorf("decoding audio chunk: %w", err)
		}
		audio = append(audio, decoded...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &pipeline.SynthesisResult{
		Audio:    audio,
		Format:   e.outputFormat,
		Latency:  time.Since(start),
		Provider: e.Name(),
	}, nil
}

func (e *ElevenLabs) stream(ctx context.Context, text string, emit func(string) error) error {
	endpoint, err := url.Parse(fmt.Sprintf("%s/text-to-speech/%s/stream/with-timestamps", elevenLabsBaseURL, e.voiceID))
	if err != nil {
		return fmt.Errorf("building endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("output_format", e.outputFormat)
	endpoint.RawQuery = q.Encode()

	payload := map[string]any{
		"text":     text,
		"model_id": e.modelID,
		"voice_settings": map[string]float64{
			"stability":        0.75,
			"similarity_boost": 0.7,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("elevenlabs error %d: %s", resp.StatusCode, string(respBody))
	}

	dec := json.NewDecoder(resp.Body)
	for {
		var chunk struct {
			AudioBase64 string `json:"audio_base64"`
		}
		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decoding stream chunk: %w", err)
		}
		if chunk.AudioBase64 == "" {
			continue
		}
		if err := emit(chunk.AudioBase64); err != nil {
			return err
		}
	}
}

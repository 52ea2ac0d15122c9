package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/albertoelopez/voice-agent/pipeline"
)

// Piper synthesizes against a local piper HTTP server: JSON text in, WAV
// bytes out. It is the offline secondary behind the cloud synthesizer.
type Piper struct {
	host       string
	voice      string
	httpClient *http.Client
}

// NewPiper points at a piper server, e.g. http://localhost:5000.
func NewPiper(host, voice string) *Piper {
	return &Piper{
		host:       strings.TrimRight(host, "/"),
		voice:      voice,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *Piper) Name() string { return "piper" }

func (p *Piper) request(ctx context.Context, text string) (*http.Response, error) {
	payload, err := json.Marshal(map[string]string{
		"text":  text,
		"voice": p.voice,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("piper error %d: %s", resp.StatusCode, string(respBody))
	}
	return resp, nil
}

// Synthesize buffers the whole clip.
func (p *Piper) Synthesize(ctx context.Context, text string) (*pipeline.SynthesisResult, error) {
	start := time.Now()
	resp, err := p.request(ctx, text)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading audio: %w", err)
	}

	return &pipeline.SynthesisResult{
		Audio:    audio,
		Format:   "wav",
		Latency:  time.Since(start),
		Provider: p.Name(),
	}, nil
}

// Stream emits the clip as base64 chunks as the response body is read.
func (p *Piper) Stream(ctx context.Context, text string, out chan<- string) error {
	resp, err := p.request(ctx, text)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return streamBase64(ctx, resp.Body, out)
}

package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/albertoelopez/voice-agent/audio"
	"github.com/albertoelopez/voice-agent/pipeline"
)

// LocalWhisper transcribes against a whisper.cpp server running on localhost.
// It is the offline secondary behind the cloud transcriber.
type LocalWhisper struct {
	host       string
	language   string
	sampleRate int
	httpClient *http.Client
}

// NewLocalWhisper points at a whisper.cpp server, e.g. http://localhost:8178.
func NewLocalWhisper(host, language string, sampleRate int) *LocalWhisper {
	return &LocalWhisper{
		host:       strings.TrimRight(host, "/"),
		language:   language,
		sampleRate: sampleRate,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *LocalWhisper) Name() string { return "local-whisper" }

type whisperServerResponse struct {
	Text string `json:"text"`
}

// Transcribe posts the segment to the server's /inference endpoint as a
// multipart WAV upload.
func (w *LocalWhisper) Transcribe(ctx context.Context, pcm []int16) (*pipeline.TranscriptionResult, error) {
	wavData, err := audio.EncodeWAV(pcm, w.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("encoding segment: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return nil, fmt.Errorf("writing audio: %w", err)
	}
	if err := writer.WriteField("language", w.language); err != nil {
		return nil, fmt.Errorf("writing language field: %w", err)
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return nil, fmt.Errorf("writing format field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.host+"/inference", body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("whisper server error %d: %s", resp.StatusCode, string(respBody))
	}

	var result whisperServerResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &pipeline.TranscriptionResult{
		Text:     strings.TrimSpace(result.Text),
		Latency:  time.Since(start),
		Provider: w.Name(),
	}, nil
}

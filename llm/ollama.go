package llm

import (
	"bufio"
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

// OllamaResponder generates replies from a local Ollama server. It is the
// offline secondary behind the cloud responder.
type OllamaResponder struct {
	host       string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// NewOllamaResponder points at an Ollama server, e.g. http://localhost:11434.
func NewOllamaResponder(host, model string, maxTokens int) *OllamaResponder {
	return &OllamaResponder{
		host:       strings.TrimRight(host, "/"),
		model:      model,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (o *OllamaResponder) Name() string { return "ollama" }

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message   ollamaMessage `json:"message"`
	Done      bool          `json:"done"`
	EvalCount int           `json:"eval_count"`
}

func (o *OllamaResponder) chat(ctx context.Context, msgs []Message, stream bool) (*http.Response, error) {
	reqMsgs := make([]ollamaMessage, len(msgs))
	for i, m := range msgs {
		reqMsgs[i] = ollamaMessage{Role: m.Role, Content: m.Content}
	}

	payload, err := json.Marshal(ollamaChatRequest{
		Model:    o.model,
		Messages: reqMsgs,
		Stream:   stream,
		Options:  ollamaOptions{NumPredict: o.maxTokens},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("ollama error %d: %s", resp.StatusCode, string(respBody))
	}
	return resp, nil
}

// Generate returns the whole reply at once.
func (o *OllamaResponder) Generate(ctx context.Context, msgs []Message) (*pipeline.GenerationResult, error) {
	start := time.Now()
	resp, err := o.chat(ctx, msgs, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &pipeline.GenerationResult{
		Text:       strings.TrimSpace(result.Message.Content),
		Latency:    time.Since(start),
		Provider:   o.Name(),
		TokensUsed: result.EvalCount,
	}, nil
}

// Stream sends reply tokens on out as they arrive. Ollama streams one JSON
// object per line.
func (o *OllamaResponder) Stream(ctx context.Context, msgs []Message, out chan<- string) error {
	resp, err := o.chat(ctx, msgs, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("decoding stream chunk: %w", err)
		}
		if chunk.Message.Content != "" {
			select {
			case out <- chunk.Message.Content:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return nil
}

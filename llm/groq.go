package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/albertoelopez/voice-agent/pipeline"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// GroqResponder generates replies through Groq's chat-completion endpoint,
// which speaks the OpenAI API.
type GroqResponder struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewGroqResponder returns a responder for the given model, e.g.
// llama-3.3-70b-versatile.
func NewGroqResponder(apiKey, model string, maxTokens int, temperature float64) (*GroqResponder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("groq API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = groqBaseURL

	return &GroqResponder{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(temperature),
	}, nil
}

func (g *GroqResponder) Name() string { return "groq" }

func toChatMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// chatRequest builds the request both reply paths send, so the token cap and
// sampling settings apply whether the reply is streamed or not.
func (g *GroqResponder) chatRequest(msgs []Message, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    toChatMessages(msgs),
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		Stream:      stream,
	}
}

// Generate returns the whole reply at once.
func (g *GroqResponder) Generate(ctx context.Context, msgs []Message) (*pipeline.GenerationResult, error) {
	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, g.chatRequest(msgs, false))
	if err != nil {
		return nil, fmt.Errorf("groq completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("groq completion: empty choices")
	}

	return &pipeline.GenerationResult{
		Text:       strings.TrimSpace(resp.Choices[0].Message.Content),
		Latency:    time.Since(start),
		Provider:   g.Name(),
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// Stream sends reply tokens on out as they arrive.
func (g *GroqResponder) Stream(ctx context.Context, msgs []Message, out chan<- string) error {
	stream, err := g.client.CreateChatCompletionStream(ctx, g.chatRequest(msgs, true))
	if err != nil {
		return fmt.Errorf("groq stream: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("groq stream recv: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		chunk := resp.Choices[0].Delta.Content
		if chunk == "" {
			continue
		}
		select {
		case out <- chunk:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

package workers

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/albertoelopez/voice-agent/llm"
	"github.com/albertoelopez/voice-agent/metrics"
	"github.com/albertoelopez/voice-agent/pipeline"
)

// DefaultSystemPrompt keeps replies short; this is voice, not text.
const DefaultSystemPrompt = `You are a helpful voice assistant that handles customer inquiries.

Your communication style:
- Be concise and clear - this is voice, not text
- Keep responses under 2-3 sentences when possible
- Ask clarifying questions if needed
- Be friendly and professional

Important:
- If you don't know something, say so honestly
- For sensitive topics (billing, personal data), recommend speaking with a human`

// AgentWorker streams a reply for each final transcript, collates the token
// stream into sentences, and hands them to synthesis. It owns the
// conversation history.
type AgentWorker struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	responder llm.Responder
	tracker   *metrics.LatencyTracker
	state     *pipeline.StateMachine

	in  <-chan string
	out chan<- string

	mu        sync.Mutex
	history   []llm.Message
	utterance context.CancelFunc
}

// NewAgentWorker seeds the history with the system prompt.
func NewAgentWorker(responder llm.Responder, systemPrompt string, in <-chan string, out chan<- string,
	state *pipeline.StateMachine, tracker *metrics.LatencyTracker, logger *zap.Logger) *AgentWorker {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AgentWorker{
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
		responder: responder,
		tracker:   tracker,
		state:     state,
		in:        in,
		out:       out,
		history:   []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}},
	}
}

// Start consumes transcripts until Stop or the input closes.
func (aw *AgentWorker) Start() {
	go func() {
		for {
			select {
			case <-aw.ctx.Done():
				return
			case transcript, ok := <-aw.in:
				if !ok {
					return
				}
				if strings.TrimSpace(transcript) == "" {
					continue
				}
				aw.respond(transcript)
			}
		}
	}()
}

// Stop signals the worker to exit, cancelling any in-flight reply.
func (aw *AgentWorker) Stop() {
	aw.CancelCurrent()
	aw.cancel()
}

// CancelCurrent aborts the reply being generated, if any. Barge-in calls
// this so the model stops producing text nobody will hear.
func (aw *AgentWorker) CancelCurrent() {
	aw.mu.Lock()
	defer aw.mu.Unlock()
	if aw.utterance != nil {
		aw.utterance()
		aw.utterance = nil
	}
}

// Say queues literal text for synthesis without consulting the model. The
// session greeting uses it.
func (aw *AgentWorker) Say(text string) {
	aw.mu.Lock()
	aw.history = append(aw.history, llm.Message{Role: llm.RoleAssistant, Content: text})
	aw.mu.Unlock()

	select {
	case aw.out <- text:
	case <-aw.ctx.Done():
	}
}

func (aw *AgentWorker) respond(transcript string) {
	aw.state.Set(pipeline.StateThinking)

	utterCtx, utterCancel := context.WithCancel(aw.ctx)
	aw.mu.Lock()
	aw.history = append(aw.history, llm.Message{Role: llm.RoleUser, Content: transcript})
	msgs := append([]llm.Message(nil), aw.history...)
	aw.utterance = utterCancel
	aw.mu.Unlock()
	defer utterCancel()

	tokens := make(chan string, 16)
	assembler := llm.NewSentenceAssembler()
	var reply strings.Builder

	done := make(chan error, 1)
	start := time.Now()
	go func() {
		defer close(tokens)
		done <- aw.responder.Stream(utterCtx, msgs, tokens)
	}()

	firstToken := true
	for token := range tokens {
		if firstToken {
			aw.tracker.Record("llm_ttft", time.Since(start))
			firstToken = false
		}
		reply.WriteString(token)
		for _, sentence := range assembler.Push(token) {
			aw.emit(utterCtx, sentence)
		}
	}
	if leftover := assembler.Flush(); leftover != "" {
		aw.emit(utterCtx, leftover)
	}
	aw.tracker.Record("llm", time.Since(start))

	if err := <-done; err != nil {
		if utterCtx.Err() != nil {
			aw.logger.Info("reply cancelled", zap.String("transcript", transcript))
		} else {
			aw.logger.Error("reply generation failed", zap.Error(err))
		}
	}

	if text := strings.TrimSpace(reply.String()); text != "" {
		aw.mu.Lock()
		aw.history = append(aw.history, llm.Message{Role: llm.RoleAssistant, Content: text})
		aw.mu.Unlock()
	}
}

func (aw *AgentWorker) emit(ctx context.Context, sentence string) {
	select {
	case aw.out <- sentence:
	case <-ctx.Done():
	}
}

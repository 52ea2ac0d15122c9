package workers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/albertoelopez/voice-agent/llm"
	"github.com/albertoelopez/voice-agent/metrics"
	"github.com/albertoelopez/voice-agent/pipeline"
)

// scriptedResponder streams a fixed token sequence and records the histories
// it was called with.
type scriptedResponder struct {
	tokens    []string
	histories chan []llm.Message
	block     chan struct{} // when set, Stream waits here before emitting
}

func (s *scriptedResponder) Name() string { return "scripted" }

func (s *scriptedResponder) Generate(ctx context.Context, msgs []llm.Message) (*pipeline.GenerationResult, error) {
	return &pipeline.GenerationResult{Text: "unused"}, nil
}

func (s *scriptedResponder) Stream(ctx context.Context, msgs []llm.Message, out chan<- string) error {
	if s.histories != nil {
		s.histories <- append([]llm.Message(nil), msgs...)
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, token := range s.tokens {
		select {
		case out <- token:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func collect(t *testing.T, ch <-chan string, n int) []string {
	t.Helper()
	var got []string
	for i := 0; i < n; i++ {
		select {
		case s := <-ch:
			got = append(got, s)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for item %d, have %v", i, got)
		}
	}
	return got
}

func TestAgentStreamsSentences(t *testing.T) {
	responder := &scriptedResponder{tokens: []string{"Hello the", "re. How can I help", " you?"}}
	in := make(chan string, 1)
	out := make(chan string, 8)
	state := pipeline.NewStateMachine(nil)
	state.Set(pipeline.StateListening)

	aw := NewAgentWorker(responder, "", in, out, state, metrics.NewLatencyTracker(), zap.NewNop())
	aw.Start()
	defer aw.Stop()

	in <- "hi there"

	got := collect(t, out, 2)
	assert.Equal(t, []string{"Hello there.", "How can I help you?"}, got)
}

func TestAgentFlushesTrailingText(t *testing.T) {
	responder := &scriptedResponder{tokens: []string{"No punctuation here"}}
	in := make(chan string, 1)
	out := make(chan string, 8)

	aw := NewAgentWorker(responder, "", in, out, pipeline.NewStateMachine(nil), metrics.NewLatencyTracker(), zap.NewNop())
	aw.Start()
	defer aw.Stop()

	in <- "hi"
	got := collect(t, out, 1)
	assert.Equal(t, []string{"No punctuation here"}, got)
}

func TestAgentKeepsHistoryAcrossTurns(t *testing.T) {
	responder := &scriptedResponder{
		tokens:    []string{"Sure."},
		histories: make(chan []llm.Message, 2),
	}
	in := make(chan string, 2)
	out := make(chan string, 8)

	aw := NewAgentWorker(responder, "stay short", in, out, pipeline.NewStateMachine(nil), metrics.NewLatencyTracker(), zap.NewNop())
	aw.Start()
	defer aw.Stop()

	in <- "first question"
	first := <-responder.histories
	collect(t, out, 1)

	in <- "second question"
	second := <-responder.histories
	collect(t, out, 1)

	require.Len(t, first, 2)
	assert.Equal(t, llm.RoleSystem, first[0].Role)
	assert.Equal(t, "stay short", first[0].Content)
	assert.Equal(t, "first question", first[1].Content)

	require.Len(t, second, 4)
	assert.Equal(t, "Sure.", second[2].Content)
	assert.Equal(t, llm.RoleAssistant, second[2].Role)
	assert.Equal(t, "second question", second[3].Content)
}

func TestAgentSkipsBlankTranscripts(t *testing.T) {
	responder := &scriptedResponder{tokens: []string{"Should never stream."}}
	in := make(chan string, 2)
	out := make(chan string, 8)

	aw := NewAgentWorker(responder, "", in, out, pipeline.NewStateMachine(nil), metrics.NewLatencyTracker(), zap.NewNop())
	aw.Start()
	defer aw.Stop()

	in <- "   "
	select {
	case s := <-out:
		t.Fatalf("blank transcript produced %q", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAgentSayBypassesModel(t *testing.T) {
	responder := &scriptedResponder{histories: make(chan []llm.Message, 1)}
	in := make(chan string)
	out := make(chan string, 8)

	aw := NewAgentWorker(responder, "", in, out, pipeline.NewStateMachine(nil), metrics.NewLatencyTracker(), zap.NewNop())
	aw.Start()
	defer aw.Stop()

	aw.Say("Hello! How can I help you today?")
	got := collect(t, out, 1)
	assert.Equal(t, []string{"Hello! How can I help you today?"}, got)
}

func TestAgentCancelCurrentStopsReply(t *testing.T) {
	responder := &scriptedResponder{
		tokens:    []string{"Too late."},
		histories: make(chan []llm.Message, 1),
		block:     make(chan struct{}),
	}
	in := make(chan string, 1)
	out := make(chan string, 8)

	aw := NewAgentWorker(responder, "", in, out, pipeline.NewStateMachine(nil), metrics.NewLatencyTracker(), zap.NewNop())
	aw.Start()
	defer aw.Stop()

	in <- "question"
	<-responder.histories // the reply is now in flight, blocked
	aw.CancelCurrent()

	select {
	case s := <-out:
		t.Fatalf("cancelled reply produced %q", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAgentSetsThinkingState(t *testing.T) {
	responder := &scriptedResponder{tokens: []string{"Done."}}
	in := make(chan string, 1)
	out := make(chan string, 8)
	state := pipeline.NewStateMachine(nil)
	state.Set(pipeline.StateListening)

	aw := NewAgentWorker(responder, "", in, out, state, metrics.NewLatencyTracker(), zap.NewNop())
	aw.Start()
	defer aw.Stop()

	in <- "hi"
	collect(t, out, 1)
	assert.Equal(t, pipeline.StateThinking, state.Current())
}

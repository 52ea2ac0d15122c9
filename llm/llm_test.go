package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albertoelopez/voice-agent/fallback"
	"github.com/albertoelopez/voice-agent/pipeline"
)

type fakeResponder struct {
	name     string
	reply    string
	tokens   []string
	err      error
	genCalls int
}

func (f *fakeResponder) Name() string { return f.name }

func (f *fakeResponder) Generate(ctx context.Context, msgs []Message) (*pipeline.GenerationResult, error) {
	f.genCalls++
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.GenerationResult{Text: f.reply, Provider: f.name}, nil
}

func (f *fakeResponder) Stream(ctx context.Context, msgs []Message, out chan<- string) error {
	for _, token := range f.tokens {
		select {
		case out <- token:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func fastOptions() fallback.Options {
	return fallback.Options{
		Timeout: time.Second,
		Retry:   fallback.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	}
}

func TestFallbackGeneratePrefersPrimary(t *testing.T) {
	primary := &fakeResponder{name: "cloud", reply: "from cloud"}
	secondary := &fakeResponder{name: "local", reply: "from local"}
	f := NewFallback(primary, secondary, fastOptions())

	result, err := f.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "from cloud", result.Text)
	assert.Zero(t, secondary.genCalls)
}

func TestFallbackGenerateDegrades(t *testing.T) {
	primary := &fakeResponder{name: "cloud", err: errors.New("rate limited")}
	secondary := &fakeResponder{name: "local", reply: "from local"}
	f := NewFallback(primary, secondary, fastOptions())

	result, err := f.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "from local", result.Text)
}

func TestFallbackStreamPrefersPrimary(t *testing.T) {
	primary := &fakeResponder{name: "cloud", tokens: []string{"a", "b"}}
	secondary := &fakeResponder{name: "local", tokens: []string{"x"}}
	f := NewFallback(primary, secondary, fastOptions())

	out := make(chan string, 8)
	require.NoError(t, f.Stream(context.Background(), nil, out))
	close(out)

	var tokens []string
	for token := range out {
		tokens = append(tokens, token)
	}
	assert.Equal(t, []string{"a", "b"}, tokens)
}

func TestFallbackStreamRestreamsFromSecondary(t *testing.T) {
	// The primary dies mid-stream; the secondary re-streams from scratch, so
	// the consumer sees the primary's partial output followed by the full
	// secondary reply.
	fellBack := false
	opts := fastOptions()
	opts.OnFallback = func() { fellBack = true }

	primary := &fakeResponder{name: "cloud", tokens: []string{"par"}, err: errors.New("connection reset")}
	secondary := &fakeResponder{name: "local", tokens: []string{"full reply."}}
	f := NewFallback(primary, secondary, opts)

	out := make(chan string, 8)
	require.NoError(t, f.Stream(context.Background(), nil, out))
	close(out)

	var tokens []string
	for token := range out {
		tokens = append(tokens, token)
	}
	assert.Equal(t, []string{"par", "full reply."}, tokens)
	assert.True(t, fellBack)
}

func TestFallbackStreamForceSecondary(t *testing.T) {
	opts := fastOptions()
	opts.ForceSecondary = true

	primary := &fakeResponder{name: "cloud", tokens: []string{"never"}}
	secondary := &fakeResponder{name: "local", tokens: []string{"offline"}}
	f := NewFallback(primary, secondary, opts)

	out := make(chan string, 8)
	require.NoError(t, f.Stream(context.Background(), nil, out))
	close(out)

	assert.Equal(t, "offline", <-out)
}

func TestFallbackStreamSharesBreakerWithGenerate(t *testing.T) {
	opts := fastOptions()
	opts.BreakerThreshold = 1

	primary := &fakeResponder{name: "cloud", err: errors.New("down")}
	secondary := &fakeResponder{name: "local", reply: "ok", tokens: []string{"ok"}}
	f := NewFallback(primary, secondary, opts)

	// One Generate failure opens the breaker.
	_, err := f.Generate(context.Background(), nil)
	require.NoError(t, err)

	// Stream now skips the primary entirely.
	out := make(chan string, 8)
	require.NoError(t, f.Stream(context.Background(), nil, out))
	close(out)
	assert.Equal(t, "ok", <-out)
	assert.Equal(t, 1, primary.genCalls)
}

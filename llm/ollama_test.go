package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2:3b", req.Model)
		assert.False(t, req.Stream)
		assert.Equal(t, 150, req.Options.NumPredict)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, RoleSystem, req.Messages[0].Role)

		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message:   ollamaMessage{Role: RoleAssistant, Content: "  Hi there.  "},
			Done:      true,
			EvalCount: 7,
		})
	}))
	defer srv.Close()

	o := NewOllamaResponder(srv.URL, "llama3.2:3b", 150)
	result, err := o.Generate(context.Background(), []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hello"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hi there.", result.Text)
	assert.Equal(t, "ollama", result.Provider)
	assert.Equal(t, 7, result.TokensUsed)
	assert.Greater(t, result.Latency.Nanoseconds(), int64(0))
}

func TestOllamaStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		enc := json.NewEncoder(w)
		enc.Encode(ollamaChatResponse{Message: ollamaMessage{Content: "Hel"}})
		enc.Encode(ollamaChatResponse{Message: ollamaMessage{Content: "lo."}})
		enc.Encode(ollamaChatResponse{Done: true, EvalCount: 2})
	}))
	defer srv.Close()

	o := NewOllamaResponder(srv.URL, "llama3.2:3b", 0)
	out := make(chan string, 8)
	err := o.Stream(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, out)
	require.NoError(t, err)
	close(out)

	var tokens []string
	for token := range out {
		tokens = append(tokens, token)
	}
	assert.Equal(t, []string{"Hel", "lo."}, tokens)
}

func TestOllamaServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	o := NewOllamaResponder(srv.URL, "missing", 0)
	_, err := o.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestOllamaStreamCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fl := w.(http.Flusher)
		for i := 0; ; i++ {
			fmt.Fprintf(w, `{"message":{"content":"tok%d"}}`+"\n", i)
			fl.Flush()
			select {
			case <-r.Context().Done():
				return
			default:
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	o := NewOllamaResponder(srv.URL, "llama3.2:3b", 0)

	out := make(chan string) // unbuffered so the stream blocks on send
	errCh := make(chan error, 1)
	go func() { errCh <- o.Stream(ctx, []Message{{Role: RoleUser, Content: "hi"}}, out) }()

	<-out
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

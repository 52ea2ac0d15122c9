package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalWhisperTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/inference", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "en", r.FormValue("language"))
		assert.Equal(t, "json", r.FormValue("response_format"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "audio.wav", header.Filename)

		head := make([]byte, 4)
		_, err = file.Read(head)
		require.NoError(t, err)
		assert.Equal(t, "RIFF", string(head), "upload must be a WAV container")

		w.Write([]byte(`{"text":"  hello from whisper  "}`))
	}))
	defer srv.Close()

	w := NewLocalWhisper(srv.URL, "en", 8000)
	result, err := w.Transcribe(context.Background(), make([]int16, 800))
	require.NoError(t, err)

	assert.Equal(t, "hello from whisper", result.Text)
	assert.Equal(t, "local-whisper", result.Provider)
	assert.Greater(t, result.Latency.Nanoseconds(), int64(0))
}

func TestLocalWhisperServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	w := NewLocalWhisper(srv.URL, "en", 8000)
	_, err := w.Transcribe(context.Background(), make([]int16, 800))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestLocalWhisperHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewLocalWhisper(srv.URL, "en", 8000)
	_, err := w.Transcribe(ctx, make([]int16, 800))
	assert.Error(t, err)
}

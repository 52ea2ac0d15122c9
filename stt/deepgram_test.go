package stt

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// The read loop must not outlive Close when nothing drains Results: the
// results buffer holds 8, so a server pushing more than that parks the loop
// on the send, where closing the connection alone cannot reach it.
func TestDeepgramCloseReleasesBackloggedReadLoop(t *testing.T) {
	final := `{"is_final":true,"channel":{"alternatives":[{"transcript":"hello","confidence":0.9}]}}`

	upgrader := gws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 20; i++ {
			if err := conn.WriteMessage(gws.TextMessage, []byte(final)); err != nil {
				return
			}
		}
		// Keep the connection open so the client stays parked on the
		// results send rather than failing ReadMessage.
		conn.ReadMessage()
	}))
	defer srv.Close()

	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")
	dg, err := dialDeepgram(endpoint, "dg-test", zap.NewNop())
	require.NoError(t, err)

	go dg.readLoop()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, dg.Close())

	// The loop closes results on exit; buffered items drain first.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-dg.Results():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("read loop still running after Close")
		}
	}
}

func TestNewDeepgramStreamRequiresAPIKey(t *testing.T) {
	_, err := NewDeepgramStream("", "", zap.NewNop())
	require.Error(t, err)
}

package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	gws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/albertoelopez/voice-agent/pipeline"
)

// DeepgramStream is the live transcription path for telephony calls: mu-law
// frames in over WebSocket, partial and final transcripts out. One instance
// per call.
type DeepgramStream struct {
	conn      *gws.Conn
	logger    *zap.Logger
	results   chan pipeline.Transcription
	done      chan struct{}
	closeOnce sync.Once
}

// NewDeepgramStream dials Deepgram's listen endpoint configured for Twilio
// audio (mu-law, 8 kHz, mono).
func NewDeepgramStream(apiKey, model string, logger *zap.Logger) (*DeepgramStream, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepgram API key is required")
	}
	if model == "" {
		model = "nova-2-phonecall"
	}

	q := url.Values{}
	q.Set("model", model)
	q.Set("encoding", "mulaw")
	q.Set("sample_rate", "8000")
	q.Set("channels", "1")
	q.Set("language", "en-US")
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("vad_events", "true")
	endpoint := "wss://api.deepgram.com/v1/listen?" + q.Encode()

	dg, err := dialDeepgram(endpoint, apiKey, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to deepgram", zap.String("model", model))
	return dg, nil
}

func dialDeepgram(endpoint, apiKey string, logger *zap.Logger) (*DeepgramStream, error) {
	header := http.Header{
		"Authorization": {fmt.Sprintf("Token %s", apiKey)},
	}
	conn, _, err := gws.DefaultDialer.Dial(endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("dialing deepgram: %w", err)
	}

	return &DeepgramStream{
		conn:    conn,
		logger:  logger,
		results: make(chan pipeline.Transcription, 8),
		done:    make(chan struct{}),
	}, nil
}

// Results delivers partial and final transcripts. The channel closes when the
// read loop exits.
func (dg *DeepgramStream) Results() <-chan pipeline.Transcription {
	return dg.results
}

// deepgramMessage is the subset of the listen response the pipeline needs.
type deepgramMessage struct {
	IsFinal bool `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// Run pumps audio frames to Deepgram and transcripts back until ctx is
// cancelled, the audio channel closes, or the connection drops.
func (dg *DeepgramStream) Run(ctx context.Context, frames <-chan pipeline.AudioChunk) {
	go dg.readLoop()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if len(frame) == 0 {
				continue
			}
			if err := dg.conn.WriteMessage(gws.BinaryMessage, frame); err != nil {
				dg.logger.Warn("deepgram write failed", zap.Error(err))
				return
			}
		}
	}
}

func (dg *DeepgramStream) readLoop() {
	defer close(dg.results)

	for {
		_, message, err := dg.conn.ReadMessage()
		if err != nil {
			dg.logger.Debug("deepgram read loop ended", zap.Error(err))
			return
		}

		var msg deepgramMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			dg.logger.Warn("unparseable deepgram message", zap.Error(err))
			continue
		}
		if len(msg.Channel.Alternatives) == 0 {
			continue
		}

		alt := msg.Channel.Alternatives[0]
		if alt.Transcript == "" {
			continue
		}

		// Close releases this send when the consumer is already gone;
		// closing the connection alone only unblocks ReadMessage.
		select {
		case dg.results <- pipeline.Transcription{
			Text:       alt.Transcript,
			Confidence: alt.Confidence,
			Final:      msg.IsFinal,
		}:
		case <-dg.done:
			return
		}
	}
}

// Close sends a normal closure and tears down the connection, releasing the
// read loop even when nothing is draining Results.
func (dg *DeepgramStream) Close() error {
	dg.closeOnce.Do(func() { close(dg.done) })
	if err := dg.conn.WriteMessage(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, "closing")); err != nil {
		dg.conn.Close()
		return err
	}
	return dg.conn.Close()
}

// Package output writes synthesized audio back onto the Twilio media
// stream.
package output

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// EndOfUtterance is the sentinel the synthesis worker places on the chunk
// channel after a sentence finishes; it becomes a Twilio mark event.
const EndOfUtterance = "__END_OF_UTTERANCE__"

// TwilioOutput forwards base64 audio chunks as media events on the call's
// WebSocket. Writes are serialized; the media stream and clear events come
// from different goroutines.
type TwilioOutput struct {
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *zap.Logger
	streamSid string
	ws        *websocket.Conn
	in        <-chan string

	writeMu sync.Mutex
}

// NewTwilioOutput requires the stream SID from the start event.
func NewTwilioOutput(streamSid string, ws *websocket.Conn, in <-chan string, logger *zap.Logger) (*TwilioOutput, error) {
	if streamSid == "" {
		return nil, fmt.Errorf("stream SID is required")
	}
	if in == nil {
		return nil, fmt.Errorf("chunk channel is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TwilioOutput{
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
		streamSid: streamSid,
		ws:        ws,
		in:        in,
	}, nil
}

// Start consumes chunks until Stop or the channel closes.
func (o *TwilioOutput) Start() {
	go func() {
		for {
			select {
			case <-o.ctx.Done():
				return
			case payload, ok := <-o.in:
				if !ok {
					return
				}
				if payload == EndOfUtterance {
					o.sendMark()
				} else {
					o.sendMedia(payload)
				}
			}
		}
	}()
}

// Clear tells Twilio to drop any audio it has buffered but not yet played.
// Barge-in calls this; without it the caller keeps hearing queued speech for
// seconds after interrupting.
func (o *TwilioOutput) Clear() {
	o.writeJSON(map[string]any{
		"event":     "clear",
		"streamSid": o.streamSid,
	})
}

func (o *TwilioOutput) sendMedia(payload string) {
	o.writeJSON(map[string]any{
		"event":     "media",
		"streamSid": o.streamSid,
		"media": map[string]string{
			"payload": payload,
		},
	})
}

func (o *TwilioOutput) sendMark() {
	o.writeJSON(map[string]any{
		"event":     "mark",
		"streamSid": o.streamSid,
		"mark": map[string]string{
			"name": "utterance complete",
		},
	})
}

func (o *TwilioOutput) writeJSON(msg map[string]any) {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	if err := o.ws.WriteJSON(msg); err != nil {
		o.logger.Warn("twilio write failed", zap.Error(err))
	}
}

// Stop signals the writer loop to exit. The WebSocket itself belongs to the
// session and is closed there.
func (o *TwilioOutput) Stop() {
	o.cancel()
}

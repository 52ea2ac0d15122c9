package workers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/albertoelopez/voice-agent/pipeline"
)

func TestTranscriptionForwardsOnlyFinals(t *testing.T) {
	in := make(chan pipeline.Transcription, 8)
	out := make(chan string, 8)

	tw := NewTranscriptionWorker(in, out, zap.NewNop())
	tw.Start()
	defer tw.Stop()

	in <- pipeline.Transcription{Text: "hel", Final: false}
	in <- pipeline.Transcription{Text: "hello", Final: false}
	in <- pipeline.Transcription{Text: "hello there", Final: true, Confidence: 0.97}
	in <- pipeline.Transcription{Text: "and ano", Final: false}
	in <- pipeline.Transcription{Text: "and another", Final: true}

	got := collect(t, out, 2)
	assert.Equal(t, []string{"hello there", "and another"}, got)
}

func TestTranscriptionStopsOnClosedInput(t *testing.T) {
	in := make(chan pipeline.Transcription)
	out := make(chan string, 1)

	tw := NewTranscriptionWorker(in, out, zap.NewNop())
	tw.Start()
	close(in)

	select {
	case s := <-out:
		t.Fatalf("unexpected output %q", s)
	case <-time.After(100 * time.Millisecond):
	}
}

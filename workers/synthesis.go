package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/albertoelopez/voice-agent/metrics"
	"github.com/albertoelopez/voice-agent/output"
	"github.com/albertoelopez/voice-agent/pipeline"
	"github.com/albertoelopez/voice-agent/queue"
	"github.com/albertoelopez/voice-agent/tts"
)

// SynthesisWorker renders sentences to audio chunks in arrival order.
// Sentences wait in a flushable queue rather than a channel so a barge-in
// can drop everything not yet spoken.
type SynthesisWorker struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	synth   tts.Synthesizer
	tracker *metrics.LatencyTracker
	state   *pipeline.StateMachine

	in      <-chan string
	out     chan<- string
	pending *queue.Queue[string]
	wake    chan struct{}

	mu        sync.Mutex
	utterance context.CancelFunc
}

// NewSynthesisWorker wires sentences in to base64 audio chunks out.
func NewSynthesisWorker(synth tts.Synthesizer, in <-chan string, out chan<- string,
	state *pipeline.StateMachine, tracker *metrics.LatencyTracker, logger *zap.Logger) *SynthesisWorker {
	ctx, cancel := context.WithCancel(context.Background())
	return &SynthesisWorker{
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
		synth:   synth,
		tracker: tracker,
		state:   state,
		in:      in,
		out:     out,
		pending: queue.New[string](64),
		wake:    make(chan struct{}, 1),
	}
}

// Start launches the intake and synthesis loops.
func (sw *SynthesisWorker) Start() {
	go sw.intake()
	go sw.synthesize()
}

// Stop signals both loops to exit.
func (sw *SynthesisWorker) Stop() {
	sw.CancelCurrent()
	sw.cancel()
}

// CancelCurrent aborts the sentence being rendered and drops everything
// queued behind it. This is the barge-in path.
func (sw *SynthesisWorker) CancelCurrent() {
	dropped := sw.pending.Flush()
	sw.mu.Lock()
	if sw.utterance != nil {
		sw.utterance()
		sw.utterance = nil
	}
	sw.mu.Unlock()
	if dropped > 0 {
		sw.logger.Info("dropped queued sentences", zap.Int("count", dropped))
	}
}

func (sw *SynthesisWorker) intake() {
	for {
		select {
		case <-sw.ctx.Done():
			return
		case sentence, ok := <-sw.in:
			if !ok {
				return
			}
			if !sw.pending.Enqueue(sentence) {
				sw.logger.Warn("synthesis queue full, dropping sentence")
				continue
			}
			select {
			case sw.wake <- struct{}{}:
			default:
			}
		}
	}
}

func (sw *SynthesisWorker) synthesize() {
	for {
		select {
		case <-sw.ctx.Done():
			return
		case <-sw.wake:
		}

		for {
			sentence, ok := sw.pending.Dequeue()
			if !ok {
				break
			}
			sw.renderSentence(sentence)
		}

		// Everything queued has been rendered; if nobody barged in, the
		// agent is done speaking.
		sw.state.SetIf(pipeline.StateSpeaking, pipeline.StateListening)
	}
}

func (sw *SynthesisWorker) renderSentence(sentence string) {
	utterCtx, utterCancel := context.WithCancel(sw.ctx)
	sw.mu.Lock()
	sw.utterance = utterCancel
	sw.mu.Unlock()
	defer utterCancel()

	sw.state.Set(pipeline.StateSpeaking)

	chunks := make(chan string, 8)
	done := make(chan error, 1)
	start := time.Now()
	go func() {
		defer close(chunks)
		done <- sw.synth.Stream(utterCtx, sentence, chunks)
	}()

	first := true
	for chunk := range chunks {
		if first {
			sw.tracker.Record("tts_ttfb", time.Since(start))
			first = false
		}
		select {
		case sw.out <- chunk:
		case <-utterCtx.Done():
			// drain the stream goroutine
			for range chunks {
			}
		}
	}
	sw.tracker.Record("tts", time.Since(start))

	if err := <-done; err != nil {
		if utterCtx.Err() != nil {
			sw.logger.Info("synthesis cancelled", zap.String("sentence", sentence))
		} else {
			sw.logger.Error("synthesis failed", zap.Error(err), zap.String("sentence", sentence))
		}
		return
	}

	// Mark the utterance boundary for playback tracking.
	select {
	case sw.out <- output.EndOfUtterance:
	case <-sw.ctx.Done():
	}
}

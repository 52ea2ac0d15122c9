// Package workers holds the channel-wired stages of a live session:
// transcription gating, reply generation, and speech synthesis. Each worker
// owns one goroutine, started with Start and stopped by cancelling its
// context via Stop.
package workers

import (
	"context"

	"go.uber.org/zap"

	"github.com/albertoelopez/voice-agent/pipeline"
)

// TranscriptionWorker filters a stream of partial and final transcripts down
// to the final ones the agent should answer.
type TranscriptionWorker struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	in     <-chan pipeline.Transcription
	out    chan<- string
}

// NewTranscriptionWorker wires input transcripts to output finals.
func NewTranscriptionWorker(in <-chan pipeline.Transcription, out chan<- string, logger *zap.Logger) *TranscriptionWorker {
	ctx, cancel := context.WithCancel(context.Background())
	return &TranscriptionWorker{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		in:     in,
		out:    out,
	}
}

// Start begins forwarding finals until Stop or the input closes.
func (tw *TranscriptionWorker) Start() {
	go func() {
		for {
			select {
			case <-tw.ctx.Done():
				return
			case tr, ok := <-tw.in:
				if !ok {
					return
				}
				if !tr.Final {
					tw.logger.Debug("partial transcript",
						zap.String("text", tr.Text),
						zap.Float64("confidence", tr.Confidence))
					continue
				}
				tw.logger.Info("final transcript",
					zap.String("text", tr.Text),
					zap.Float64("confidence", tr.Confidence))
				select {
				case tw.out <- tr.Text:
				case <-tw.ctx.Done():
					return
				}
			}
		}
	}()
}

// Stop signals the worker to exit.
func (tw *TranscriptionWorker) Stop() {
	tw.cancel()
}

package workers

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// FillerWorker masks generation latency: when a transcript arrives it queues
// a short filler phrase for synthesis immediately, then hands the transcript
// on to the agent. Phrases rotate so back-to-back turns do not repeat.
type FillerWorker struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	phrases []string
	next    int

	in      <-chan string
	forward chan<- string
	out     chan<- string
}

// NewFillerWorker sits between the transcript source and the agent: finals
// from in are forwarded on forward, with one phrase per final emitted on out.
func NewFillerWorker(phrases []string, in <-chan string, forward, out chan<- string, logger *zap.Logger) *FillerWorker {
	ctx, cancel := context.WithCancel(context.Background())
	return &FillerWorker{
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
		phrases: phrases,
		in:      in,
		forward: forward,
		out:     out,
	}
}

// Start consumes transcripts until Stop or the input closes.
func (fw *FillerWorker) Start() {
	go func() {
		for {
			select {
			case <-fw.ctx.Done():
				return
			case transcript, ok := <-fw.in:
				if !ok {
					return
				}
				if strings.TrimSpace(transcript) == "" {
					continue
				}
				fw.speak()
				select {
				case fw.forward <- transcript:
				case <-fw.ctx.Done():
					return
				}
			}
		}
	}()
}

// speak queues the next phrase before the transcript handoff so the filler
// renders ahead of the reply's first sentence.
func (fw *FillerWorker) speak() {
	phrase := fw.phrases[fw.next%len(fw.phrases)]
	fw.next++
	fw.logger.Debug("filler queued", zap.String("phrase", phrase))
	select {
	case fw.out <- phrase:
	case <-fw.ctx.Done():
	}
}

// Stop signals the worker to exit.
func (fw *FillerWorker) Stop() {
	fw.cancel()
}

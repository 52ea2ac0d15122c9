//go:build portaudio

package audio

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"
)

// MicrophoneSource captures mono 16-bit frames from the default input device
// for the local dev loop (no Twilio leg). Build with -tags portaudio.
type MicrophoneSource struct {
	sampleRate int
	frameSize  int
	logger     *zap.Logger
	stream     *portaudio.Stream
	in         []int16
}

func NewMicrophoneSource(sampleRate, frameSize int, logger *zap.Logger) *MicrophoneSource {
	return &MicrophoneSource{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		logger:     logger,
		in:         make([]int16, frameSize),
	}
}

func (m *MicrophoneSource) Name() string { return "microphone" }

func (m *MicrophoneSource) Start() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), m.frameSize, m.in)
	if err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}
	m.stream = stream

	if err := m.stream.Start(); err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}

	m.logger.Info("microphone started", zap.Int("sample_rate", m.sampleRate))
	return nil
}

func (m *MicrophoneSource) Stop() error {
	if m.stream != nil {
		m.stream.Stop()
		m.stream.Close()
	}
	portaudio.Terminate()
	return nil
}

// Frames pumps captured frames into out until ctx is cancelled. Each frame is
// a copy; the capture buffer is reused.
func (m *MicrophoneSource) Frames(ctx context.Context, out chan<- []int16) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := m.stream.Read(); err != nil {
			return fmt.Errorf("reading from stream: %w", err)
		}

		frame := make([]int16, len(m.in))
		copy(frame, m.in)

		select {
		case out <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

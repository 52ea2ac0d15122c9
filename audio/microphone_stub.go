//go:build !portaudio

package audio

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrNoMicrophone is returned on builds without portaudio support.
var ErrNoMicrophone = errors.New("microphone support not compiled in (build with -tags portaudio)")

// MicrophoneSource is a stub on builds without the portaudio tag so the
// server binary does not need cgo.
type MicrophoneSource struct{}

func NewMicrophoneSource(sampleRate, frameSize int, logger *zap.Logger) *MicrophoneSource {
	return &MicrophoneSource{}
}

func (m *MicrophoneSource) Name() string { return "microphone" }

func (m *MicrophoneSource) Start() error { return ErrNoMicrophone }

func (m *MicrophoneSource) Stop() error { return nil }

func (m *MicrophoneSource) Frames(ctx context.Context, out chan<- []int16) error {
	return ErrNoMicrophone
}

package audio

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
)

// Recorder writes gated speech segments to WAV files so misfired utterance
// boundaries can be replayed offline. The filesystem is abstracted so tests
// run against memory.
type Recorder struct {
	fs         afero.Fs
	dir        string
	sampleRate int
	seq        atomic.Uint64
}

// NewRecorder creates the target directory if needed.
func NewRecorder(fs afero.Fs, dir string, sampleRate int) (*Recorder, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating segment dir: %w", err)
	}
	return &Recorder{fs: fs, dir: dir, sampleRate: sampleRate}, nil
}

// Save writes one segment and returns its path.
func (r *Recorder) Save(samples []int16) (string, error) {
	data, err := EncodeWAV(samples, r.sampleRate)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("segment-%d-%03d.wav", time.Now().Unix(), r.seq.Add(1))
	path := filepath.Join(r.dir, name)

	if err := afero.WriteFile(r.fs, path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing segment: %w", err)
	}
	return path, nil
}

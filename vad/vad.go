// Package vad classifies audio frames as speech or silence. It gates when
// transcription runs (utterance boundaries) and detects barge-in while the
// agent is speaking.
package vad

import (
	"context"
	"time"

	"github.com/mjibson/go-dsp/fft"

	"github.com/albertoelopez/voice-agent/audio"
)

// EventType distinguishes the two boundary events the detector emits.
type EventType int

const (
	// SpeechStart fires once enough consecutive voiced frames have been seen.
	SpeechStart EventType = iota
	// SpeechEnd fires after the configured quiet period and carries the
	// gated segment, pre-roll included.
	SpeechEnd
)

func (t EventType) String() string {
	if t == SpeechStart {
		return "speech_start"
	}
	return "speech_end"
}

// Event is one detected boundary.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Segment   []int16 // only on SpeechEnd
}

// Config tunes the detector. Zero values fall back to defaults.
type Config struct {
	SampleRate      int
	EnergyThreshold float64       // RMS floor below which a frame is silent
	FluxSpikeRatio  float64       // spectral-flux jump that marks an onset
	MinSpeech       time.Duration // voiced time before SpeechStart
	MinSilence      time.Duration // quiet time before SpeechEnd
	PreRoll         time.Duration // audio kept from before the onset
	MaxSegment      time.Duration // hard cap on one utterance
}

// DefaultConfig targets 8 kHz telephony audio.
func DefaultConfig() Config {
	return Config{
		SampleRate:      8000,
		EnergyThreshold: 500,
		FluxSpikeRatio:  1.75,
		MinSpeech:       100 * time.Millisecond,
		MinSilence:      300 * time.Millisecond,
		PreRoll:         240 * time.Millisecond,
		MaxSegment:      15 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SampleRate == 0 {
		c.SampleRate = d.SampleRate
	}
	if c.EnergyThreshold == 0 {
		c.EnergyThreshold = d.EnergyThreshold
	}
	if c.FluxSpikeRatio == 0 {
		c.FluxSpikeRatio = d.FluxSpikeRatio
	}
	if c.MinSpeech == 0 {
		c.MinSpeech = d.MinSpeech
	}
	if c.MinSilence == 0 {
		c.MinSilence = d.MinSilence
	}
	if c.PreRoll == 0 {
		c.PreRoll = d.PreRoll
	}
	if c.MaxSegment == 0 {
		c.MaxSegment = d.MaxSegment
	}
	return c
}

// Detector is a stateful frame classifier. Not safe for concurrent use; each
// session owns one.
type Detector struct {
	cfg Config

	speaking  bool
	voicedFor time.Duration
	quietFor  time.Duration

	lastFlux     float64
	prevSpectrum []float64

	preRoll *ring
	segment []int16
}

// New returns a detector for the given config.
func New(cfg Config) *Detector {
	cfg = cfg.withDefaults()
	preRollSamples := int(cfg.PreRoll.Seconds()*float64(cfg.SampleRate)) +
		int(cfg.MinSpeech.Seconds()*float64(cfg.SampleRate))
	return &Detector{
		cfg:     cfg,
		preRoll: newRing(preRollSamples),
	}
}

// ProcessFrame consumes one frame and reports a boundary event when one
// occurs. Frames should be uniform in length; 20 ms is typical.
func (d *Detector) ProcessFrame(frame []int16) (Event, bool) {
	if len(frame) == 0 {
		return Event{}, false
	}

	frameDur := time.Duration(float64(len(frame)) / float64(d.cfg.SampleRate) * float64(time.Second))
	voiced := d.classify(frame)

	if !d.speaking {
		d.preRoll.Add(frame)
		if voiced {
			d.voicedFor += frameDur
			if d.voicedFor >= d.cfg.MinSpeech {
				d.speaking = true
				d.quietFor = 0
				d.segment = d.preRoll.Read()
				return Event{Type: SpeechStart, Timestamp: time.Now()}, true
			}
		} else {
			d.voicedFor = 0
		}
		return Event{}, false
	}

	d.segment = append(d.segment, frame...)

	segmentDur := time.Duration(float64(len(d.segment)) / float64(d.cfg.SampleRate) * float64(time.Second))
	if voiced {
		d.quietFor = 0
	} else {
		d.quietFor += frameDur
	}

	if d.quietFor >= d.cfg.MinSilence || segmentDur >= d.cfg.MaxSegment {
		ev := Event{Type: SpeechEnd, Timestamp: time.Now(), Segment: d.segment}
		d.resetSegment()
		return ev, true
	}
	return Event{}, false
}

// Detect wires the detector to channels: frames in, boundary events out. The
// output channel closes when the input closes or ctx is cancelled.
func (d *Detector) Detect(ctx context.Context, frames <-chan []int16) <-chan Event {
	events := make(chan Event, 4)
	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-frames:
				if !ok {
					return
				}
				if ev, fired := d.ProcessFrame(frame); fired {
					select {
					case events <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return events
}

// Reset clears all state, including any partial segment.
func (d *Detector) Reset() {
	d.resetSegment()
	d.lastFlux = 0
	d.prevSpectrum = nil
}

func (d *Detector) resetSegment() {
	d.speaking = false
	d.voicedFor = 0
	d.quietFor = 0
	d.segment = nil
	d.preRoll.Clear()
}

// classify marks a frame voiced on raw energy, or on a spectral-flux spike
// for quieter onsets. Flux compares the magnitude spectrum against the
// previous frame and reacts to new spectral content.
func (d *Detector) classify(frame []int16) bool {
	rms := audio.RMS(frame)
	if rms >= d.cfg.EnergyThreshold {
		d.updateFlux(frame)
		return true
	}

	flux := d.updateFlux(frame)
	if d.lastFlux > 0 && flux >= d.lastFlux*d.cfg.FluxSpikeRatio {
		d.lastFlux = flux
		return true
	}
	d.lastFlux = flux
	return false
}

func (d *Detector) updateFlux(frame []int16) float64 {
	in := make([]float64, len(frame))
	for i, s := range frame {
		in[i] = float64(s)
	}

	spectrum := fft.FFTReal(in)
	mags := make([]float64, len(spectrum)/2)
	for i := range mags {
		c := spectrum[i]
		mags[i] = real(c)*real(c) + imag(c)*imag(c)
	}

	var flux float64
	if d.prevSpectrum != nil && len(d.prevSpectrum) == len(mags) {
		for i := range mags {
			if diff := mags[i] - d.prevSpectrum[i]; diff > 0 {
				flux += diff
			}
		}
		flux /= float64(len(mags))
	}
	d.prevSpectrum = mags
	return flux
}

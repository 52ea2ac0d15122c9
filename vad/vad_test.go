package vad

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFrameSize = 160 // 20 ms at 8 kHz

func voicedFrame() []int16 {
	frame := make([]int16, testFrameSize)
	for i := range frame {
		frame[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/8000))
	}
	return frame
}

func silentFrame() []int16 {
	return make([]int16, testFrameSize)
}

func TestSpeechStartAfterMinSpeech(t *testing.T) {
	d := New(Config{SampleRate: 8000, MinSpeech: 100 * time.Millisecond})

	// 100 ms of voiced audio is 5 frames; the event fires on the last one.
	for i := 0; i < 4; i++ {
		_, fired := d.ProcessFrame(voicedFrame())
		require.False(t, fired, "frame %d", i)
	}

	ev, fired := d.ProcessFrame(voicedFrame())
	require.True(t, fired)
	assert.Equal(t, SpeechStart, ev.Type)
}

func TestBriefNoiseDoesNotTrigger(t *testing.T) {
	d := New(Config{SampleRate: 8000, MinSpeech: 100 * time.Millisecond})

	for i := 0; i < 20; i++ {
		_, fired := d.ProcessFrame(voicedFrame())
		require.False(t, fired)
		_, fired = d.ProcessFrame(silentFrame())
		require.False(t, fired)
	}
}

func TestSpeechEndCarriesSegmentWithPreRoll(t *testing.T) {
	d := New(Config{
		SampleRate: 8000,
		MinSpeech:  100 * time.Millisecond,
		MinSilence: 300 * time.Millisecond,
	})

	voicedFrames := 5
	for i := 0; i < voicedFrames; i++ {
		d.ProcessFrame(voicedFrame())
	}

	var ev Event
	var fired bool
	silentFrames := 0
	for !fired {
		ev, fired = d.ProcessFrame(silentFrame())
		silentFrames++
		require.LessOrEqual(t, silentFrames, 16, "speech end never fired")
	}

	assert.Equal(t, SpeechEnd, ev.Type)
	// 300 ms of silence is 15 frames.
	assert.Equal(t, 15, silentFrames)
	// The segment holds the buffered voiced audio plus the trailing silence.
	assert.Len(t, ev.Segment, (voicedFrames+silentFrames)*testFrameSize)
	assert.NotZero(t, ev.Segment[0], "pre-roll lost the utterance onset")
}

func TestMaxSegmentForcesEnd(t *testing.T) {
	d := New(Config{
		SampleRate: 8000,
		MinSpeech:  40 * time.Millisecond,
		MaxSegment: 200 * time.Millisecond,
	})

	var sawStart, sawEnd bool
	for i := 0; i < 50 && !sawEnd; i++ {
		ev, fired := d.ProcessFrame(voicedFrame())
		if !fired {
			continue
		}
		switch ev.Type {
		case SpeechStart:
			sawStart = true
		case SpeechEnd:
			sawEnd = true
			assert.NotEmpty(t, ev.Segment)
		}
	}

	assert.True(t, sawStart)
	assert.True(t, sawEnd, "continuous speech must be capped")
}

func TestResetDropsPartialSegment(t *testing.T) {
	d := New(Config{SampleRate: 8000, MinSpeech: 100 * time.Millisecond})

	for i := 0; i < 10; i++ {
		d.ProcessFrame(voicedFrame())
	}
	d.Reset()

	for i := 0; i < 20; i++ {
		_, fired := d.ProcessFrame(silentFrame())
		require.False(t, fired)
	}
}

func TestEmptyFrameIsIgnored(t *testing.T) {
	d := New(Config{})
	_, fired := d.ProcessFrame(nil)
	assert.False(t, fired)
}

func TestDetectChannelWiring(t *testing.T) {
	d := New(Config{
		SampleRate: 8000,
		MinSpeech:  100 * time.Millisecond,
		MinSilence: 300 * time.Millisecond,
	})

	frames := make(chan []int16, 32)
	for i := 0; i < 5; i++ {
		frames <- voicedFrame()
	}
	for i := 0; i < 15; i++ {
		frames <- silentFrame()
	}
	close(frames)

	events := d.Detect(context.Background(), frames)

	var types []EventType
	for ev := range events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []EventType{SpeechStart, SpeechEnd}, types)
}

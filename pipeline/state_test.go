package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "listening", StateListening.String())
	assert.Equal(t, "thinking", StateThinking.String())
	assert.Equal(t, "speaking", StateSpeaking.String())
}

func TestSetAndCurrent(t *testing.T) {
	m := NewStateMachine(nil)
	assert.Equal(t, StateIdle, m.Current())

	m.Set(StateListening)
	assert.Equal(t, StateListening, m.Current())
}

func TestSetIf(t *testing.T) {
	m := NewStateMachine(nil)
	m.Set(StateSpeaking)

	assert.False(t, m.SetIf(StateThinking, StateListening))
	assert.Equal(t, StateSpeaking, m.Current())

	assert.True(t, m.SetIf(StateSpeaking, StateListening))
	assert.Equal(t, StateListening, m.Current())
}

func TestBargeInOnlyWhileSpeaking(t *testing.T) {
	fired := 0
	m := NewStateMachine(func() { fired++ })

	m.Set(StateListening)
	assert.False(t, m.BargeIn(), "speech while listening is a normal utterance")
	assert.Zero(t, fired)

	m.Set(StateSpeaking)
	assert.True(t, m.BargeIn())
	assert.Equal(t, 1, fired)
	assert.Equal(t, StateListening, m.Current())

	assert.False(t, m.BargeIn(), "barge-in is not re-entrant")
	assert.Equal(t, 1, fired)
}

func TestBargeInWithoutCallback(t *testing.T) {
	m := NewStateMachine(nil)
	m.Set(StateSpeaking)
	assert.True(t, m.BargeIn())
}

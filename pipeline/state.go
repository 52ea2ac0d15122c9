package pipeline

import "sync"

// State is the session's position in the conversation loop.
type State int

const (
	// StateIdle means no caller is connected yet.
	StateIdle State = iota
	// StateListening means inbound audio is being gated and transcribed.
	StateListening
	// StateThinking means a reply is being generated.
	StateThinking
	// StateSpeaking means synthesized audio is being played back.
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// StateMachine serializes conversation-state transitions. Barge-in is the
// only transition triggered from the audio-read goroutine while workers drive
// the others, so every mutation holds the mutex.
type StateMachine struct {
	mu        sync.Mutex
	state     State
	onBargeIn func()
}

// NewStateMachine starts in StateIdle. onBargeIn runs, under the lock, each
// time a barge-in transition is taken; it is where playback gets cancelled.
func NewStateMachine(onBargeIn func()) *StateMachine {
	return &StateMachine{state: StateIdle, onBargeIn: onBargeIn}
}

// Current returns the current state.
func (m *StateMachine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Set moves to the given state unconditionally.
func (m *StateMachine) Set(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

// SetIf moves from one state to another only when the current state matches.
// It returns whether the transition happened.
func (m *StateMachine) SetIf(from, to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != from {
		return false
	}
	m.state = to
	return true
}

// BargeIn handles a speech-start event during playback. It returns true and
// moves Speaking->Listening only when the session was actually speaking;
// speech starts in any other state are ordinary utterance boundaries and do
// not count as interruptions.
func (m *StateMachine) BargeIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateSpeaking {
		return false
	}
	m.state = StateListening
	if m.onBargeIn != nil {
		m.onBargeIn()
	}
	return true
}

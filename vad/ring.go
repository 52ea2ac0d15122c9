package vad

// ring is a fixed-size sample buffer holding the audio just before a speech
// onset. Without it the first syllable of an utterance is clipped, because
// speech is only confirmed some frames after it begins.
type ring struct {
	buf    []int16
	head   int
	filled int
}

func newRing(size int) *ring {
	return &ring{buf: make([]int16, size)}
}

func (r *ring) Add(samples []int16) {
	for _, s := range samples {
		r.buf[r.head] = s
		r.head = (r.head + 1) % len(r.buf)
		if r.filled < len(r.buf) {
			r.filled++
		}
	}
}

// Read returns the buffered samples in arrival order. Only samples actually
// written are returned, so a fresh ring yields nothing rather than zeros.
func (r *ring) Read() []int16 {
	out := make([]int16, r.filled)
	start := (r.head - r.filled + len(r.buf)) % len(r.buf)
	for i := 0; i < r.filled; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

func (r *ring) Clear() {
	r.head = 0
	r.filled = 0
}

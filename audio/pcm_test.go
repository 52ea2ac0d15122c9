package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeMulawKnownValues(t *testing.T) {
	// 0x00 is maximum negative, 0x80 maximum positive, 0xFF silence.
	got := DecodeMulaw([]byte{0x00, 0x80, 0xFF})
	assert.Equal(t, []int16{-32124, 32124, 0}, got)
}

func TestDecodeMulawSignSymmetry(t *testing.T) {
	for b := 0; b < 128; b++ {
		neg := mulawSample(byte(b))
		pos := mulawSample(byte(b) | 0x80)
		assert.Equal(t, int32(-neg), int32(pos), "byte %#x", b)
	}
}

func TestPCM16RoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234}
	assert.Equal(t, samples, BytesToPCM16(PCM16ToBytes(samples)))
}

func TestBytesToPCM16DropsTrailingOddByte(t *testing.T) {
	got := BytesToPCM16([]byte{0x01, 0x00, 0xFF})
	assert.Equal(t, []int16{1}, got)
}

func TestRMS(t *testing.T) {
	assert.Zero(t, RMS(nil))
	assert.Zero(t, RMS([]int16{0, 0, 0}))
	assert.InDelta(t, 1000, RMS([]int16{1000, -1000, 1000, -1000}), 0.001)
}

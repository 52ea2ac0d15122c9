// Package audio provides the PCM plumbing shared by the pipeline: mu-law
// decoding for telephony frames, WAV encoding for HTTP transcription uploads,
// and a segment recorder for debugging gated utterances.
package audio

import (
	"encoding/binary"
	"math"
)

// DecodeMulaw expands 8-bit mu-law samples (the Twilio media-stream payload
// encoding) to 16-bit linear PCM.
func DecodeMulaw(in []byte) []int16 {
	out := make([]int16, len(in))
	for i, b := range in {
		out[i] = mulawSample(b)
	}
	return out
}

func mulawSample(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := int32(b & 0x0F)

	magnitude := ((mantissa<<3 + 0x84) << exponent) - 0x84
	if sign != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

// BytesToPCM16 reinterprets little-endian byte pairs as 16-bit samples.
// A trailing odd byte is dropped.
func BytesToPCM16(in []byte) []int16 {
	out := make([]int16, len(in)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(in[2*i:]))
	}
	return out
}

// PCM16ToBytes is the inverse of BytesToPCM16.
func PCM16ToBytes(in []int16) []byte {
	out := make([]byte, len(in)*2)
	for i, s := range in {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// RMS returns the root-mean-square amplitude of a frame, the energy measure
// the activity detector thresholds on.
func RMS(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(frame)))
}

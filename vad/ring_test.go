package vad

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingReturnsOnlyWrittenSamples(t *testing.T) {
	r := newRing(8)
	r.Add([]int16{1, 2, 3})
	assert.Equal(t, []int16{1, 2, 3}, r.Read())
}

func TestRingOverwritesOldest(t *testing.T) {
	r := newRing(4)
	r.Add([]int16{1, 2, 3, 4, 5, 6})
	assert.Equal(t, []int16{3, 4, 5, 6}, r.Read())
}

func TestRingClear(t *testing.T) {
	r := newRing(4)
	r.Add([]int16{1, 2})
	r.Clear()
	assert.Empty(t, r.Read())
}

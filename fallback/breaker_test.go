package fallback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(3, 30*time.Second)

	b.Failure()
	b.Failure()
	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Allow())

	b.Failure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, 30*time.Second)
	b.now = func() time.Time { return now }

	b.Failure()
	assert.False(t, b.Allow())

	now = now.Add(31 * time.Second)
	assert.True(t, b.Allow(), "cooldown elapsed, trial call admitted")
	assert.Equal(t, BreakerHalfOpen, b.State())
}

func TestBreakerTrialFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, 30*time.Second)
	b.now = func() time.Time { return now }

	b.Failure()
	now = now.Add(31 * time.Second)
	assert.True(t, b.Allow())

	b.Failure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow(), "reopened breaker must wait a fresh cooldown")
}

func TestBreakerSuccessCloses(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, 30*time.Second)
	b.now = func() time.Time { return now }

	b.Failure()
	now = now.Add(31 * time.Second)
	assert.True(t, b.Allow())

	b.Success()
	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Allow())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(2, 30*time.Second)

	b.Failure()
	b.Success()
	b.Failure()
	assert.Equal(t, BreakerClosed, b.State(), "non-consecutive failures must not open")
}

func TestBreakerDefaults(t *testing.T) {
	b := NewBreaker(0, 0)
	assert.Equal(t, 3, b.failureThreshold)
	assert.Equal(t, 30*time.Second, b.cooldown)
}

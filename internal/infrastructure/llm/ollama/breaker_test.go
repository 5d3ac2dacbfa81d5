package ollama

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker() (*breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := newBreaker(2, 10*time.Second)
	b.now = clock.now
	return b, clock
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker()

	assert.True(t, b.allow())
	assert.False(t, b.failure())
	assert.Equal(t, breakerClosed, b.current())

	assert.True(t, b.failure())
	assert.Equal(t, breakerOpen, b.current())
	assert.False(t, b.allow())
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker()

	b.failure()
	b.success()
	b.failure()

	assert.Equal(t, breakerClosed, b.current())
}

func TestBreaker_SingleProbeAfterCooldown(t *testing.T) {
	b, clock := newTestBreaker()
	b.failure()
	b.failure()

	clock.t = clock.t.Add(10 * time.Second)
	assert.True(t, b.allow(), "probe after cooldown")
	assert.Equal(t, breakerHalfOpen, b.current())
	assert.False(t, b.allow(), "only one probe at a time")

	b.success()
	assert.Equal(t, breakerClosed, b.current())
	assert.True(t, b.allow())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b, clock := newTestBreaker()
	b.failure()
	b.failure()
	clock.t = clock.t.Add(11 * time.Second)
	assert.True(t, b.allow())

	assert.True(t, b.failure())
	assert.Equal(t, breakerOpen, b.current())
	assert.False(t, b.allow())
}

func TestBreakerStateString(t *testing.T) {
	assert.Equal(t, "half_open", breakerHalfOpen.String())
	assert.Equal(t, "unknown", breakerState(9).String())
}

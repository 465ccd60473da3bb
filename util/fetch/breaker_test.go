package fetch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestBreaker(threshold int, recovery time.Duration) (*Breaker, *testClock) {
	br := NewBreaker(threshold, recovery)
	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	br.now = clock.Now
	return br, clock
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	br, _ := newTestBreaker(3, time.Minute)

	br.RecordFailure()
	br.RecordFailure()
	assert.False(t, br.IsOpen())

	br.RecordFailure()
	assert.True(t, br.IsOpen())

	failures, open := br.State()
	assert.Equal(t, 3, failures)
	assert.True(t, open)
}

func TestBreaker_TimeBasedRecovery(t *testing.T) {
	br, clock := newTestBreaker(1, time.Minute)
	br.RecordFailure()
	assert.True(t, br.IsOpen())

	// still open at the recovery boundary
	clock.Advance(time.Minute)
	assert.True(t, br.IsOpen())

	// past the boundary the breaker resets
	clock.Advance(time.Second)
	assert.False(t, br.IsOpen())

	failures, open := br.State()
	assert.Equal(t, 0, failures)
	assert.False(t, open)
}

func TestBreaker_FailuresAfterRecoveryReopen(t *testing.T) {
	br, clock := newTestBreaker(2, time.Minute)
	br.RecordFailure()
	br.RecordFailure()
	clock.Advance(2 * time.Minute)
	assert.False(t, br.IsOpen())

	// counting starts over after the reset
	br.RecordFailure()
	assert.False(t, br.IsOpen())
	br.RecordFailure()
	assert.True(t, br.IsOpen())
}

package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 3, OpenDuration: 20 * time.Millisecond, HalfOpenProbes: 1}
}

func TestBreakerStartsClosed(t *testing.T) {
	b := NewBreaker(testBreakerConfig())
	assert.Equal(t, StateClosed, b.State("render"))
	assert.True(t, b.Allow("render"))
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(testBreakerConfig())
	b.RecordFailure("render")
	b.RecordFailure("render")
	assert.Equal(t, StateClosed, b.State("render"))
	b.RecordFailure("render")
	assert.Equal(t, StateOpen, b.State("render"))
	assert.False(t, b.Allow("render"))
}

func TestBreakerHalfOpensAfterDuration(t *testing.T) {
	b := NewBreaker(testBreakerConfig())
	b.RecordFailure("render")
	b.RecordFailure("render")
	b.RecordFailure("render")
	require := assert.New(t)
	require.Equal(StateOpen, b.State("render"))

	time.Sleep(25 * time.Millisecond)
	require.True(b.Allow("render"))
	require.Equal(StateHalfOpen, b.State("render"))

	// second probe denied until the first resolves
	require.False(b.Allow("render"))
}

func TestBreakerClosesOnHalfOpenSuccess(t *testing.T) {
	b := NewBreaker(testBreakerConfig())
	b.RecordFailure("render")
	b.RecordFailure("render")
	b.RecordFailure("render")
	time.Sleep(25 * time.Millisecond)
	b.Allow("render")
	b.RecordSuccess("render")
	assert.Equal(t, StateClosed, b.State("render"))
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	b := NewBreaker(testBreakerConfig())
	b.RecordFailure("render")
	b.RecordFailure("render")
	b.RecordFailure("render")
	time.Sleep(25 * time.Millisecond)
	b.Allow("render")
	b.RecordFailure("render")
	assert.Equal(t, StateOpen, b.State("render"))
}

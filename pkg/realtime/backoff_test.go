package realtime_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wisebite/notifykit/pkg/realtime"
)

func TestExponentialBackoff_DefaultSchedule(t *testing.T) {
	t.Parallel()

	strategy := realtime.DefaultBackoffStrategy()

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}
	for attempt, expected := range want {
		assert.Equal(t, expected, strategy.NextInterval(attempt+1), "attempt %d", attempt+1)
	}

	// Past the cap the delay stays pinned.
	assert.Equal(t, 16*time.Second, strategy.NextInterval(6))
	assert.Equal(t, 16*time.Second, strategy.NextInterval(10))
}

func TestExponentialBackoff_ZeroAttempt(t *testing.T) {
	t.Parallel()

	strategy := realtime.ExponentialBackoff{}
	assert.Equal(t, time.Duration(0), strategy.NextInterval(0))
	assert.Equal(t, time.Duration(0), strategy.NextInterval(-3))
}

func TestExponentialBackoff_CustomCap(t *testing.T) {
	t.Parallel()

	strategy := realtime.ExponentialBackoff{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     3 * time.Second,
		Multiplier:      2,
	}
	assert.Equal(t, 500*time.Millisecond, strategy.NextInterval(1))
	assert.Equal(t, time.Second, strategy.NextInterval(2))
	assert.Equal(t, 2*time.Second, strategy.NextInterval(3))
	assert.Equal(t, 3*time.Second, strategy.NextInterval(4))
}

func TestFixedBackoff(t *testing.T) {
	t.Parallel()

	strategy := realtime.FixedBackoff{Interval: 250 * time.Millisecond}
	assert.Equal(t, 250*time.Millisecond, strategy.NextInterval(1))
	assert.Equal(t, 250*time.Millisecond, strategy.NextInterval(9))
	assert.Equal(t, time.Duration(0), strategy.NextInterval(0))
}

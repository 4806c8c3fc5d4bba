package realtime_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisebite/notifykit/pkg/notifications"
	"github.com/wisebite/notifykit/pkg/realtime"
)

// fakeConn blocks in ReadMessage until closed, then fails the read.
type fakeConn struct {
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("connection lost")
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// recordingBackoff records the attempt numbers it is asked about.
type recordingBackoff struct {
	mu       sync.Mutex
	attempts []int
	interval time.Duration
}

func (b *recordingBackoff) NextInterval(attempt int) time.Duration {
	b.mu.Lock()
	b.attempts = append(b.attempts, attempt)
	b.mu.Unlock()
	return b.interval
}

func (b *recordingBackoff) recorded() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.attempts...)
}

// stateRecorder collects state transitions.
type stateRecorder struct {
	mu     sync.Mutex
	states []realtime.State
}

func (r *stateRecorder) record(s realtime.State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *stateRecorder) last() realtime.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return ""
	}
	return r.states[len(r.states)-1]
}

func (r *stateRecorder) count(s realtime.State) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, state := range r.states {
		if state == s {
			n++
		}
	}
	return n
}

func TestSupervisor_GivesUpAfterRetryBudget(t *testing.T) {
	t.Parallel()

	var dials atomic.Int32
	dial := func(ctx context.Context, token string) (*realtime.Channel, error) {
		dials.Add(1)
		return nil, errors.New("endpoint unavailable")
	}

	backoff := &recordingBackoff{interval: time.Millisecond}
	states := &stateRecorder{}
	sup := realtime.NewSupervisor(dial,
		realtime.WithBackoff(backoff),
		realtime.WithMaxAttempts(5),
		realtime.WithStateHandler(states.record),
	)
	defer sup.Stop()

	sup.Start("tok")

	require.Eventually(t, func() bool {
		return sup.State() == realtime.StateGaveUp
	}, 2*time.Second, 5*time.Millisecond)

	// Initial attempt plus exactly five scheduled retries, then nothing.
	assert.Equal(t, int32(6), dials.Load())
	assert.Equal(t, []int{1, 2, 3, 4, 5}, backoff.recorded())
	assert.Equal(t, 5, states.count(realtime.StateReconnectScheduled))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(6), dials.Load(), "no sixth retry after giving up")
}

func TestSupervisor_SuccessResetsAttemptCounter(t *testing.T) {
	t.Parallel()

	// Script: fail, connect (then drop), fail, connect and stay up.
	var step atomic.Int32
	var live *fakeConn
	var liveMu sync.Mutex

	dial := func(ctx context.Context, token string) (*realtime.Channel, error) {
		switch step.Add(1) {
		case 1, 3:
			return nil, errors.New("endpoint unavailable")
		default:
			conn := newFakeConn()
			liveMu.Lock()
			live = conn
			liveMu.Unlock()
			return realtime.NewChannel(conn, notifications.RoleConsumer, realtime.Handlers{}), nil
		}
	}

	backoff := &recordingBackoff{interval: time.Millisecond}
	sup := realtime.NewSupervisor(dial,
		realtime.WithBackoff(backoff),
		realtime.WithMaxAttempts(5),
	)
	defer sup.Stop()

	sup.Start("tok")

	require.Eventually(t, func() bool {
		return sup.State() == realtime.StateConnected
	}, 2*time.Second, 5*time.Millisecond)

	// Drop the live connection; the supervisor reconnects from attempt 1.
	liveMu.Lock()
	live.Close()
	liveMu.Unlock()

	require.Eventually(t, func() bool {
		return step.Load() == 4 && sup.State() == realtime.StateConnected
	}, 2*time.Second, 5*time.Millisecond)

	// Both outages started over at attempt 1.
	assert.Equal(t, []int{1, 1}, backoff.recorded())
}

func TestSupervisor_StopCancelsScheduledRetry(t *testing.T) {
	t.Parallel()

	var dials atomic.Int32
	dial := func(ctx context.Context, token string) (*realtime.Channel, error) {
		dials.Add(1)
		return nil, errors.New("endpoint unavailable")
	}

	sup := realtime.NewSupervisor(dial,
		realtime.WithBackoff(realtime.FixedBackoff{Interval: 10 * time.Second}),
	)
	sup.Start("tok")

	require.Eventually(t, func() bool {
		return sup.State() == realtime.StateReconnectScheduled
	}, 2*time.Second, 5*time.Millisecond)

	start := time.Now()
	sup.Stop()
	assert.Less(t, time.Since(start), time.Second, "Stop must not wait out the retry timer")

	assert.Equal(t, realtime.StateDisconnected, sup.State())
	dialed := dials.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, dialed, dials.Load(), "no dial after Stop")
}

func TestSupervisor_StopClosesLiveChannel(t *testing.T) {
	t.Parallel()

	dial := func(ctx context.Context, token string) (*realtime.Channel, error) {
		return realtime.NewChannel(newFakeConn(), notifications.RoleConsumer, realtime.Handlers{}), nil
	}

	sup := realtime.NewSupervisor(dial)
	sup.Start("tok")

	require.Eventually(t, func() bool {
		return sup.State() == realtime.StateConnected
	}, 2*time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		sup.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return; live channel not closed")
	}
	assert.Equal(t, realtime.StateDisconnected, sup.State())
}

func TestSupervisor_StartTwiceIsNoOp(t *testing.T) {
	t.Parallel()

	var dials atomic.Int32
	dial := func(ctx context.Context, token string) (*realtime.Channel, error) {
		dials.Add(1)
		return realtime.NewChannel(newFakeConn(), notifications.RoleConsumer, realtime.Handlers{}), nil
	}

	sup := realtime.NewSupervisor(dial)
	defer sup.Stop()

	sup.Start("tok")
	sup.Start("tok")

	require.Eventually(t, func() bool {
		return sup.State() == realtime.StateConnected
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), dials.Load())
}

package broadcast_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisebite/notifykit/pkg/broadcast"
)

func TestHub_PublishReachesAllSubscribers(t *testing.T) {
	t.Parallel()

	hub := broadcast.NewHub[int]()
	defer hub.Close()

	a := hub.Subscribe(context.Background())
	b := hub.Subscribe(context.Background())

	hub.Publish(42)

	assert.Equal(t, 42, <-a.Receive())
	assert.Equal(t, 42, <-b.Receive())
}

func TestHub_LatestWins(t *testing.T) {
	t.Parallel()

	hub := broadcast.NewHub[int]()
	defer hub.Close()

	sub := hub.Subscribe(context.Background())

	// Slow consumer: only the newest value must survive.
	hub.Publish(1)
	hub.Publish(2)
	hub.Publish(3)

	assert.Equal(t, 3, <-sub.Receive())

	select {
	case v := <-sub.Receive():
		t.Fatalf("unexpected extra value %d", v)
	default:
	}
}

func TestHub_ContextCancelUnsubscribes(t *testing.T) {
	t.Parallel()

	hub := broadcast.NewHub[string]()
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub := hub.Subscribe(ctx)
	cancel()

	// The receive channel closes once the cancellation is observed.
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.Receive():
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestHub_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	hub := broadcast.NewHub[int]()
	sub := hub.Subscribe(context.Background())

	hub.Close()
	hub.Close()

	_, ok := <-sub.Receive()
	assert.False(t, ok)

	// Subscribing after close yields an already-closed subscriber.
	late := hub.Subscribe(context.Background())
	_, ok = <-late.Receive()
	assert.False(t, ok)
}

package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wisebite/notifykit/pkg/logger"
	"github.com/wisebite/notifykit/pkg/notifications"
)

// State is the connection lifecycle of the supervised channel.
type State string

const (
	StateDisconnected       State = "disconnected"
	StateConnecting         State = "connecting"
	StateConnected          State = "connected"
	StateReconnectScheduled State = "reconnect_scheduled"
	// StateGaveUp is terminal for a session: the retry budget is spent and
	// the caller must surface a degraded, refresh-only mode instead of
	// retrying forever silently.
	StateGaveUp State = "gave_up"
)

// DefaultMaxAttempts is the reconnect retry budget per outage.
const DefaultMaxAttempts = 5

// DialFunc establishes one channel. The supervisor owns when it is called.
type DialFunc func(ctx context.Context, token string) (*Channel, error)

// Dialer builds the production DialFunc for a fixed endpoint and role.
func Dialer(endpoint string, role notifications.Role, h Handlers, opts ...ChannelOption) DialFunc {
	return func(ctx context.Context, token string) (*Channel, error) {
		return Dial(ctx, endpoint, token, role, h, opts...)
	}
}

// Supervisor keeps one realtime channel alive: it dials, consumes, and on
// failure schedules reconnects with capped exponential backoff. After the
// retry budget is spent it parks in StateGaveUp until the next Start.
type Supervisor struct {
	dial        DialFunc
	backoff     BackoffStrategy
	maxAttempts int
	onState     func(State)
	log         *slog.Logger

	mu      sync.Mutex
	state   State
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	channel *Channel
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithBackoff sets the retry delay strategy.
func WithBackoff(b BackoffStrategy) SupervisorOption {
	return func(s *Supervisor) {
		if b != nil {
			s.backoff = b
		}
	}
}

// WithMaxAttempts sets the reconnect retry budget.
func WithMaxAttempts(n int) SupervisorOption {
	return func(s *Supervisor) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithStateHandler registers a callback invoked on every state change.
func WithStateHandler(fn func(State)) SupervisorOption {
	return func(s *Supervisor) { s.onState = fn }
}

// WithSupervisorLogger sets the logger.
func WithSupervisorLogger(log *slog.Logger) SupervisorOption {
	return func(s *Supervisor) {
		if log != nil {
			s.log = log
		}
	}
}

// NewSupervisor creates a supervisor around the given dialer.
func NewSupervisor(dial DialFunc, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		dial:        dial,
		backoff:     DefaultBackoffStrategy(),
		maxAttempts: DefaultMaxAttempts,
		log:         slog.Default(),
		state:       StateDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins supervising with the given token. Does not block; no-op if
// already running.
func (s *Supervisor) Start(token string) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.run(ctx, token, done)
}

// Stop tears the supervision down: cancels any scheduled retry with scoped
// cancellation (a timer firing after Stop cannot dial) and closes the live
// channel. Blocks until the run loop has exited.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	ch := s.channel
	done := s.done
	s.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
	<-done

	s.mu.Lock()
	s.running = false
	s.cancel = nil
	s.channel = nil
	s.mu.Unlock()
	s.setState(StateDisconnected)
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) run(ctx context.Context, token string, done chan struct{}) {
	defer close(done)

	attempt := 0
	for {
		s.setState(StateConnecting)
		ch, err := s.dial(ctx, token)
		if err == nil {
			s.setChannel(ch)
			// Stop may have cancelled between dial returning and the
			// channel being registered; close it here so Listen cannot
			// outlive the supervision.
			if ctx.Err() != nil {
				ch.Close()
			}
			attempt = 0
			s.setState(StateConnected)
			err = ch.Listen()
			s.setChannel(nil)
			if err == nil {
				// Deliberate close or clean server close: no reconnect.
				s.setState(StateDisconnected)
				return
			}
		}

		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return
		}

		attempt++
		if attempt > s.maxAttempts {
			s.log.LogAttrs(ctx, slog.LevelWarn, "realtime reconnect budget exhausted",
				logger.Component("realtime"),
				logger.Attempt(attempt-1),
				logger.Error(err),
			)
			s.setState(StateGaveUp)
			return
		}

		delay := s.backoff.NextInterval(attempt)
		s.log.LogAttrs(ctx, slog.LevelInfo, "scheduling realtime reconnect",
			logger.Component("realtime"),
			logger.Attempt(attempt),
			slog.Duration("delay", delay),
		)
		s.setState(StateReconnectScheduled)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setState(StateDisconnected)
			return
		case <-timer.C:
		}
	}
}

func (s *Supervisor) setChannel(ch *Channel) {
	s.mu.Lock()
	s.channel = ch
	s.mu.Unlock()
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	onState := s.onState
	s.mu.Unlock()

	if onState != nil {
		onState(state)
	}
}

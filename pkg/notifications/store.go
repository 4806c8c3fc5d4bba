package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wisebite/notifykit/pkg/broadcast"
	"github.com/wisebite/notifykit/pkg/logger"
)

// Fetcher is the REST side of the notification subsystem.
type Fetcher interface {
	// List returns one page of notifications in server-supplied order.
	List(ctx context.Context, token string, skip, limit int, unreadOnly bool) (Page, error)

	// MarkRead acknowledges a single notification on the backend.
	MarkRead(ctx context.Context, token, id string) error

	// MarkAllRead acknowledges every unread notification on the backend.
	MarkAllRead(ctx context.Context, token string) error
}

// Realtime is the push side of the subsystem. Start must not block; arrivals
// reach the store through Ingest.
type Realtime interface {
	Start(token string)
	Stop()
}

// unauthorizedError marks REST errors that mean the current token is invalid
// and re-authentication is required.
type unauthorizedError interface {
	Unauthorized() bool
}

// Counts carries both unread-count strategies. Unread counts read flags;
// Recent counts notifications younger than RecentWindow. The two can
// disagree and are deliberately not unified.
type Counts struct {
	Unread int
	Recent int
}

// Snapshot is the observable state pushed to subscribers after every change.
type Snapshot struct {
	Notifications []Notification
	Counts        Counts
	// Degraded means the realtime channel gave up reconnecting; new
	// notifications require Refresh until the next Start.
	Degraded bool
	// AuthRequired means the backend rejected the current token.
	AuthRequired bool
}

// session scopes one Start/Stop cycle. All async completions carry their
// session and are dropped if a newer session (or Stop) replaced it.
type session struct {
	token    string
	ctx      context.Context
	cancel   context.CancelFunc
	arrivals chan Notification
}

// Store holds the authoritative in-memory notification list: REST history
// merged with realtime pushes, deduplicated by id, newest first. Realtime
// arrivals are serialized through a single session goroutine so merges and
// read-state mutations cannot interleave mid-update.
type Store struct {
	fetcher   Fetcher
	realtime  Realtime
	present   func(Notification)
	log       *slog.Logger
	pageLimit int

	mu           sync.Mutex
	list         []Notification
	degraded     bool
	authRequired bool
	sess         *session
	hub          *broadcast.Hub[Snapshot]
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) StoreOption {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithPresenter registers a callback invoked for every realtime arrival,
// typically a platform push-notification bridge.
func WithPresenter(present func(Notification)) StoreOption {
	return func(s *Store) { s.present = present }
}

// WithPageLimit sets the page size for the initial fetch and refreshes.
// Values outside [1, 100] are ignored.
func WithPageLimit(limit int) StoreOption {
	return func(s *Store) {
		if limit >= 1 && limit <= 100 {
			s.pageLimit = limit
		}
	}
}

// NewStore creates a store over the given fetcher.
func NewStore(fetcher Fetcher, opts ...StoreOption) *Store {
	s := &Store{
		fetcher:   fetcher,
		log:       slog.Default(),
		pageLimit: 20,
		hub:       broadcast.NewHub[Snapshot](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AttachRealtime wires the realtime supervisor whose lifecycle the store
// drives. Must be called before Start.
func (s *Store) AttachRealtime(r Realtime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.realtime = r
}

// ErrEmptyToken is returned by Start when no token is supplied.
var ErrEmptyToken = errors.New("empty auth token")

// Start begins a session: fetches the first page and opens the realtime
// channel. Calling Start again with the same token is a no-op; a different
// token tears the previous session down first. Already-loaded notifications
// are kept either way.
func (s *Store) Start(token string) error {
	if token == "" {
		return ErrEmptyToken
	}

	s.mu.Lock()
	if s.sess != nil && s.sess.token == token {
		s.mu.Unlock()
		return nil
	}
	if s.sess != nil {
		s.stopLocked()
		// Tear the old channel down outside the lock: its read loop may be
		// blocked inside Ingest waiting for it.
		if s.realtime != nil {
			realtime := s.realtime
			s.mu.Unlock()
			realtime.Stop()
			s.mu.Lock()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		token:    token,
		ctx:      ctx,
		cancel:   cancel,
		arrivals: make(chan Notification, 256),
	}
	s.sess = sess
	s.authRequired = false
	s.degraded = false
	realtime := s.realtime
	s.mu.Unlock()

	go s.run(sess)
	go s.fetch(sess, 0)
	if realtime != nil {
		realtime.Start(token)
	}
	return nil
}

// Stop tears the current session down: cancels in-flight fetches, closes the
// realtime channel, and cancels any scheduled reconnect. The loaded list
// stays visible. After Stop returns no completion from the old session can
// mutate state.
func (s *Store) Stop() {
	s.mu.Lock()
	stopped := s.stopLocked()
	realtime := s.realtime
	s.mu.Unlock()

	// Supervisor teardown happens outside the lock: its read loop may be
	// blocked inside Ingest waiting for it. Any callback racing with this
	// teardown finds no session and is dropped.
	if stopped && realtime != nil {
		realtime.Stop()
	}
}

// stopLocked invalidates the current session. Reports whether there was one.
func (s *Store) stopLocked() bool {
	if s.sess == nil {
		return false
	}
	s.sess.cancel()
	s.sess = nil
	return true
}

// Close stops the session and closes all subscriber channels.
func (s *Store) Close() {
	s.Stop()
	s.hub.Close()
}

// Refresh re-fetches the first page for the current session. Used as the
// manual fallback while the realtime channel is unavailable. No-op without
// a session.
func (s *Store) Refresh() {
	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()
	if sess != nil {
		go s.fetch(sess, 0)
	}
}

// Ingest feeds one realtime notification into the store. Arrivals are
// processed in order by the session goroutine. Called by the realtime
// supervisor; safe to call from any goroutine.
func (s *Store) Ingest(n Notification) {
	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()
	if sess == nil {
		return
	}
	select {
	case sess.arrivals <- n:
	default:
		s.log.LogAttrs(context.Background(), slog.LevelWarn, "realtime arrival dropped, queue full",
			logger.Component("store"),
			logger.NotificationID(n.ID),
		)
	}
}

// run serializes realtime arrivals for one session.
func (s *Store) run(sess *session) {
	for {
		select {
		case <-sess.ctx.Done():
			return
		case n := <-sess.arrivals:
			if s.applyArrival(sess, n) && s.present != nil {
				s.present(n)
			}
		}
	}
}

// applyArrival prepends a realtime notification, deduplicating by id.
// Reports whether the arrival was applied.
func (s *Store) applyArrival(sess *session, n Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != sess {
		return false
	}

	for i, existing := range s.list {
		if existing.ID == n.ID {
			// Same id seen again: newest payload wins, read state is
			// monotonic and never reverts.
			if existing.Read {
				n.Read = true
			}
			s.list = append(s.list[:i], s.list[i+1:]...)
			break
		}
	}
	s.list = append([]Notification{n}, s.list...)
	s.publishLocked()
	return true
}

// fetch retrieves one page and merges it under the session guard.
func (s *Store) fetch(sess *session, skip int) {
	page, err := s.fetcher.List(sess.ctx, sess.token, skip, s.pageLimit, false)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != sess {
		return
	}

	if err != nil {
		var authErr unauthorizedError
		if errors.As(err, &authErr) && authErr.Unauthorized() {
			s.authRequired = true
			s.publishLocked()
		}
		s.log.LogAttrs(context.Background(), slog.LevelWarn, "notification fetch failed",
			logger.Component("store"),
			logger.Error(err),
		)
		return
	}

	s.authRequired = false
	s.mergeFetchedLocked(page)
	s.publishLocked()
}

// mergeFetchedLocked keeps realtime arrivals not covered by the page in
// front and appends the page in server order. Page entries win on id
// collision, except that a locally-read notification stays read.
func (s *Store) mergeFetchedLocked(page Page) {
	inPage := make(map[string]bool, len(page.Notifications))
	for _, n := range page.Notifications {
		inPage[n.ID] = true
	}

	var merged []Notification
	readLocally := make(map[string]bool)
	for _, existing := range s.list {
		if !inPage[existing.ID] {
			merged = append(merged, existing)
			continue
		}
		if existing.Read {
			readLocally[existing.ID] = true
		}
	}
	for _, n := range page.Notifications {
		if readLocally[n.ID] {
			n.Read = true
		}
		merged = append(merged, n)
	}
	s.list = merged
}

// Current returns the notification list, newest first.
func (s *Store) Current() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.list))
	copy(out, s.list)
	return out
}

// UnreadCount returns the number of notifications with an unset read flag.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unreadLocked()
}

// RecentCount returns the number of notifications younger than
// RecentWindow. This is the timestamp heuristic the merchant app uses in
// place of read flags; it may disagree with UnreadCount.
func (s *Store) RecentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recentLocked()
}

// CurrentCounts returns both counting strategies side by side.
func (s *Store) CurrentCounts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counts{Unread: s.unreadLocked(), Recent: s.recentLocked()}
}

// Degraded reports whether the realtime channel has given up reconnecting.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// SetDegraded records realtime availability and notifies subscribers on
// change.
func (s *Store) SetDegraded(degraded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded == degraded {
		return
	}
	s.degraded = degraded
	s.publishLocked()
}

// MarkRead optimistically flips the local read flag and acknowledges the
// backend in the background. A failed acknowledgement is logged, not rolled
// back. Safe to call repeatedly for the same id.
func (s *Store) MarkRead(id string) {
	s.mu.Lock()
	sess := s.sess
	flipped := false
	for i := range s.list {
		if s.list[i].ID == id {
			if !s.list[i].Read {
				s.list[i].MarkAsRead()
				flipped = true
			}
			break
		}
	}
	if flipped {
		s.publishLocked()
	}
	s.mu.Unlock()

	if !flipped || sess == nil {
		return
	}
	go func() {
		if err := s.fetcher.MarkRead(sess.ctx, sess.token, id); err != nil {
			s.log.LogAttrs(context.Background(), slog.LevelWarn, "mark read failed, keeping optimistic state",
				logger.Component("store"),
				logger.NotificationID(id),
				logger.Error(err),
			)
		}
	}()
}

// MarkAllRead flips every local read flag and acknowledges the backend in
// the background, with the same best-effort semantics as MarkRead.
func (s *Store) MarkAllRead() {
	s.mu.Lock()
	sess := s.sess
	flipped := false
	for i := range s.list {
		if !s.list[i].Read {
			s.list[i].MarkAsRead()
			flipped = true
		}
	}
	if flipped {
		s.publishLocked()
	}
	s.mu.Unlock()

	if !flipped || sess == nil {
		return
	}
	go func() {
		if err := s.fetcher.MarkAllRead(sess.ctx, sess.token); err != nil {
			s.log.LogAttrs(context.Background(), slog.LevelWarn, "mark all read failed, keeping optimistic state",
				logger.Component("store"),
				logger.Error(err),
			)
		}
	}()
}

// Subscribe registers an observer that receives a snapshot after every
// state change. The subscription ends when ctx is cancelled.
func (s *Store) Subscribe(ctx context.Context) *broadcast.Subscriber[Snapshot] {
	return s.hub.Subscribe(ctx)
}

func (s *Store) unreadLocked() int {
	count := 0
	for _, n := range s.list {
		if !n.Read {
			count++
		}
	}
	return count
}

func (s *Store) recentLocked() int {
	now := time.Now()
	count := 0
	for _, n := range s.list {
		if n.Recent(now) {
			count++
		}
	}
	return count
}

func (s *Store) publishLocked() {
	list := make([]Notification, len(s.list))
	copy(list, s.list)
	s.hub.Publish(Snapshot{
		Notifications: list,
		Counts:        Counts{Unread: s.unreadLocked(), Recent: s.recentLocked()},
		Degraded:      s.degraded,
		AuthRequired:  s.authRequired,
	})
}

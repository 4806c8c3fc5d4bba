package notifykit

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/wisebite/notifykit/pkg/api"
	"github.com/wisebite/notifykit/pkg/broadcast"
	"github.com/wisebite/notifykit/pkg/logger"
	"github.com/wisebite/notifykit/pkg/notifications"
	"github.com/wisebite/notifykit/pkg/presenter"
	"github.com/wisebite/notifykit/pkg/realtime"
	"github.com/wisebite/notifykit/pkg/token"
)

// ErrTokenExpired is returned by StartFromStore when the persisted token is
// inside the expiry safety margin and must be refreshed before use.
var ErrTokenExpired = errors.New("stored token expired")

const (
	consumerRealtimePath = "/ws/notifications"
	merchantRealtimePath = "/ws/merchant/notifications"
)

// Client is the embedder-facing facade over the notification subsystem: the
// REST fetcher, the supervised realtime channel, the in-memory store, the
// token store, and the platform presentation bridge, wired together per the
// configuration.
type Client struct {
	cfg    Config
	log    *slog.Logger
	tokens token.Store
	store  *notifications.Store
	sup    *realtime.Supervisor
	bridge *presenter.Bridge

	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	mu         sync.Mutex
	pollCancel context.CancelFunc
}

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	log        *slog.Logger
	tokens     token.Store
	platform   presenter.Presenter
	httpClient *http.Client
	fetcher    notifications.Fetcher
	dialer     func(realtime.Handlers) realtime.DialFunc
}

// WithLogger sets the logger shared by all components.
func WithLogger(log *slog.Logger) Option {
	return func(c *clientConfig) {
		if log != nil {
			c.log = log
		}
	}
}

// WithTokenStore overrides the token store chosen from the configuration.
func WithTokenStore(s token.Store) Option {
	return func(c *clientConfig) {
		if s != nil {
			c.tokens = s
		}
	}
}

// WithPlatformPresenter wires the platform notification surface. Realtime
// arrivals are forwarded to it and, when it supports badges, the unread
// count is too.
func WithPlatformPresenter(p presenter.Presenter) Option {
	return func(c *clientConfig) { c.platform = p }
}

// WithHTTPClient overrides the REST transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *clientConfig) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithFetcher replaces the REST client entirely. Used in tests.
func WithFetcher(f notifications.Fetcher) Option {
	return func(c *clientConfig) {
		if f != nil {
			c.fetcher = f
		}
	}
}

// WithDialer replaces the websocket dialer. The factory receives the event
// handlers the client wires into every connection. Used in tests.
func WithDialer(fn func(realtime.Handlers) realtime.DialFunc) Option {
	return func(c *clientConfig) {
		if fn != nil {
			c.dialer = fn
		}
	}
}

// New assembles a client from the configuration. The client is idle until
// Start or StartFromStore.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cc := &clientConfig{log: slog.Default()}
	for _, opt := range opts {
		opt(cc)
	}

	if cc.tokens == nil {
		if cfg.TokenPath != "" {
			fs, err := token.NewFileStore(cfg.TokenPath, []byte(cfg.TokenKey))
			if err != nil {
				return nil, err
			}
			cc.tokens = fs
		} else {
			cc.tokens = token.NewMemoryStore()
		}
	}

	if cc.fetcher == nil {
		apiOpts := []api.Option{api.WithTimeout(cfg.HTTPTimeout)}
		if cc.httpClient != nil {
			apiOpts = append(apiOpts, api.WithHTTPClient(cc.httpClient))
		}
		cc.fetcher = api.New(cfg.APIBaseURL, cfg.Role, apiOpts...)
	}

	c := &Client{
		cfg:    cfg,
		log:    cc.log,
		tokens: cc.tokens,
	}
	c.lifeCtx, c.lifeCancel = context.WithCancel(context.Background())

	storeOpts := []notifications.StoreOption{
		notifications.WithLogger(cc.log),
		notifications.WithPageLimit(cfg.PageLimit),
	}
	if cc.platform != nil {
		c.bridge = presenter.NewBridge(cc.platform, presenter.WithBridgeLogger(cc.log))
		storeOpts = append(storeOpts, notifications.WithPresenter(c.bridge.Present))
	}
	c.store = notifications.NewStore(cc.fetcher, storeOpts...)

	handlers := realtime.Handlers{
		OnNotification: c.store.Ingest,
		OnClosed: func(code int, reason string) {
			cc.log.LogAttrs(context.Background(), slog.LevelInfo, "realtime channel closed",
				logger.Component("client"),
				slog.Int("code", code),
				slog.String("reason", reason),
			)
		},
	}
	var dial realtime.DialFunc
	if cc.dialer != nil {
		dial = cc.dialer(handlers)
	} else {
		dial = realtime.Dialer(cfg.realtimeEndpoint(), cfg.Role, handlers, realtime.WithChannelLogger(cc.log))
	}

	c.sup = realtime.NewSupervisor(dial,
		realtime.WithBackoff(realtime.ExponentialBackoff{
			InitialInterval: cfg.ReconnectBase,
			MaxInterval:     cfg.ReconnectMax,
		}),
		realtime.WithMaxAttempts(cfg.ReconnectRetries),
		realtime.WithStateHandler(c.onRealtimeState),
		realtime.WithSupervisorLogger(cc.log),
	)
	c.store.AttachRealtime(c.sup)

	if c.bridge != nil {
		go c.forwardBadges()
	}
	return c, nil
}

func (c Config) realtimeEndpoint() string {
	base := strings.TrimSuffix(c.RealtimeBaseURL, "/")
	if c.Role == notifications.RoleMerchant {
		return base + merchantRealtimePath
	}
	return base + consumerRealtimePath
}

// Start persists the credentials and begins a session: initial REST fetch
// plus the supervised realtime channel.
func (c *Client) Start(ctx context.Context, tok token.Token) error {
	if err := c.tokens.Save(ctx, tok); err != nil {
		return err
	}
	return c.store.Start(tok.Access)
}

// StartFromStore begins a session with the previously persisted token, if
// any. Returns token.ErrNoToken when none is stored and ErrTokenExpired when
// the stored one is no longer usable.
func (c *Client) StartFromStore(ctx context.Context) error {
	tok, err := c.tokens.Get(ctx)
	if err != nil {
		return err
	}
	if tok.Expired(time.Now()) {
		return ErrTokenExpired
	}
	return c.store.Start(tok.Access)
}

// Stop ends the session: the realtime channel closes, in-flight fetches are
// discarded, polling stops. Loaded notifications stay readable.
func (c *Client) Stop() {
	c.stopPolling()
	c.store.Stop()
}

// Logout stops the session and erases the persisted credentials.
func (c *Client) Logout(ctx context.Context) error {
	c.Stop()
	return c.tokens.Clear(ctx)
}

// Close releases the client: stops the session and closes all subscriber
// channels. The client cannot be restarted afterwards.
func (c *Client) Close() {
	c.stopPolling()
	c.lifeCancel()
	c.store.Close()
}

// Notifications returns the current list, newest first.
func (c *Client) Notifications() []notifications.Notification {
	return c.store.Current()
}

// UnreadCount returns the number of unread notifications by read flag.
func (c *Client) UnreadCount() int {
	return c.store.UnreadCount()
}

// Counts returns both unread-count strategies side by side.
func (c *Client) Counts() notifications.Counts {
	return c.store.CurrentCounts()
}

// Subscribe registers a state observer; see notifications.Store.Subscribe.
func (c *Client) Subscribe(ctx context.Context) *broadcast.Subscriber[notifications.Snapshot] {
	return c.store.Subscribe(ctx)
}

// MarkRead flips one notification to read, optimistically.
func (c *Client) MarkRead(id string) {
	c.store.MarkRead(id)
}

// MarkAllRead flips every notification to read, optimistically.
func (c *Client) MarkAllRead() {
	c.store.MarkAllRead()
}

// Refresh re-fetches the first page for the current session.
func (c *Client) Refresh() {
	c.store.Refresh()
}

// Degraded reports whether the realtime channel gave up reconnecting and
// the client fell back to polling.
func (c *Client) Degraded() bool {
	return c.store.Degraded()
}

// RealtimeState returns the current connection state.
func (c *Client) RealtimeState() realtime.State {
	return c.sup.State()
}

// onRealtimeState reflects supervisor transitions into the store and drives
// the polling fallback while the channel is down.
func (c *Client) onRealtimeState(state realtime.State) {
	switch state {
	case realtime.StateConnected:
		c.stopPolling()
		c.store.SetDegraded(false)
	case realtime.StateGaveUp:
		c.store.SetDegraded(true)
		c.startPolling()
	}
}

// startPolling refreshes on a fixed cadence until stopPolling or reconnect.
func (c *Client) startPolling() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pollCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(c.lifeCtx)
	c.pollCancel = cancel

	c.log.LogAttrs(ctx, slog.LevelInfo, "realtime channel down, polling for notifications",
		logger.Component("client"),
		slog.Duration("interval", c.cfg.PollInterval),
	)
	go func() {
		ticker := time.NewTicker(c.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.store.Refresh()
			}
		}
	}()
}

func (c *Client) stopPolling() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
	}
}

// forwardBadges mirrors the unread count onto the platform badge for every
// state change.
func (c *Client) forwardBadges() {
	sub := c.store.Subscribe(c.lifeCtx)
	for snap := range sub.Receive() {
		c.bridge.SetBadge(snap.Counts.Unread)
	}
}

// Package realtime maintains the persistent server-push connection for
// notifications: a websocket channel authenticated with the bearer token,
// supervised by a capped-exponential-backoff reconnect loop.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wisebite/notifykit/pkg/logger"
	"github.com/wisebite/notifykit/pkg/notifications"
)

// Conn is the subset of the websocket connection the channel uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Handlers receives channel events. For one channel lifetime they fire in
// order: OnOpen, zero or more OnNotification, then exactly one of OnClosed
// or OnFailure. Nil handlers are skipped.
type Handlers struct {
	OnOpen         func()
	OnNotification func(notifications.Notification)
	OnClosed       func(code int, reason string)
	OnFailure      func(err error)
}

// Channel reads notification frames off one websocket connection.
// Malformed frames are logged and dropped; the channel stays open.
type Channel struct {
	conn     Conn
	role     notifications.Role
	handlers Handlers
	log      *slog.Logger

	closeOnce sync.Once
	closed    atomic.Bool
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithChannelLogger sets the logger.
func WithChannelLogger(log *slog.Logger) ChannelOption {
	return func(c *Channel) {
		if log != nil {
			c.log = log
		}
	}
}

// NewChannel wraps an established connection. Most callers use Dial.
func NewChannel(conn Conn, role notifications.Role, h Handlers, opts ...ChannelOption) *Channel {
	c := &Channel{
		conn:     conn,
		role:     role,
		handlers: h,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to the realtime endpoint with the bearer token attached as
// a connection header.
func Dial(ctx context.Context, endpoint, token string, role notifications.Role, h Handlers, opts ...ChannelOption) (*Channel, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialer := websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial realtime endpoint: %w", err)
	}
	return NewChannel(conn, role, h, opts...), nil
}

// Listen runs the read loop until the connection ends. It returns nil after
// a deliberate Close or a clean close from the server, and the read error
// after a connection failure. The supervisor reconnects only on error.
func (c *Channel) Listen() error {
	if c.handlers.OnOpen != nil {
		c.handlers.OnOpen()
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				c.emitClosed(websocket.CloseNormalClosure, "closed by client")
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				c.emitClosed(closeErr.Code, closeErr.Text)
				return nil
			}
			if c.handlers.OnFailure != nil {
				c.handlers.OnFailure(err)
			}
			return err
		}

		n, err := notifications.DecodeFrame(c.role, data)
		if err != nil {
			c.log.LogAttrs(context.Background(), slog.LevelWarn, "dropping malformed realtime frame",
				logger.Component("realtime"),
				logger.Error(err),
			)
			continue
		}
		if c.handlers.OnNotification != nil {
			c.handlers.OnNotification(n)
		}
	}
}

// Close shuts the channel down. Idempotent, and never triggers a reconnect.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.conn.Close()
	})
}

func (c *Channel) emitClosed(code int, reason string) {
	if c.handlers.OnClosed != nil {
		c.handlers.OnClosed(code, reason)
	}
}

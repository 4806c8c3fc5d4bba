// Package presenter turns newly arrived notifications into platform push
// notifications. The platform notifier itself (system tray, notification
// manager) is supplied by the host app; this package owns only the mapping:
// category to priority and vibration pattern, and a stable numeric key per
// notification id so redelivery replaces instead of duplicating.
package presenter

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/wisebite/notifykit/pkg/logger"
	"github.com/wisebite/notifykit/pkg/notifications"
)

// Priority of a platform notification.
type Priority int

const (
	PriorityDefault Priority = iota
	PriorityHigh
)

// Vibration patterns in the platform's pause/vibrate millisecond form.
var (
	vibrationUrgent = []time.Duration{0, 300 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}
	vibrationNormal = []time.Duration{0, 200 * time.Millisecond}
)

// Push is a fully mapped platform notification.
type Push struct {
	// Key is stable per notification id: showing the same id again
	// replaces the visible notification instead of stacking a duplicate.
	Key             uint32
	Title           string
	Body            string
	Priority        Priority
	Vibration       []time.Duration
	Category        notifications.Category
	RelatedEntityID string
}

// Presenter is the host-platform notifier. Implementations display the
// push; failures are the platform's business (e.g. missing permission).
type Presenter interface {
	Show(p Push) error
}

// BadgeSetter is implemented by presenters that can mirror the unread
// count on the app badge.
type BadgeSetter interface {
	SetBadge(count int) error
}

// Key returns the stable numeric key for a notification id.
func Key(id string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(id))
	return h.Sum32()
}

// Map builds the platform push for a notification.
func Map(n notifications.Notification) Push {
	p := Push{
		Key:             Key(n.ID),
		Title:           n.Title,
		Body:            n.Body,
		Priority:        PriorityDefault,
		Vibration:       vibrationNormal,
		Category:        n.Category,
		RelatedEntityID: n.RelatedEntityID,
	}
	if n.Important {
		p.Priority = PriorityHigh
		p.Vibration = vibrationUrgent
	}
	return p
}

// Bridge forwards notifications and badge counts to a Presenter.
// Presentation failures are logged and swallowed; a denied notification
// permission must not break the feed.
type Bridge struct {
	presenter Presenter
	log       *slog.Logger

	mu        sync.Mutex
	lastBadge int
	badgeSet  bool
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithBridgeLogger sets the logger.
func WithBridgeLogger(log *slog.Logger) BridgeOption {
	return func(b *Bridge) {
		if log != nil {
			b.log = log
		}
	}
}

// NewBridge wraps a platform presenter.
func NewBridge(p Presenter, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		presenter: p,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Present maps and shows one notification.
func (b *Bridge) Present(n notifications.Notification) {
	if err := b.presenter.Show(Map(n)); err != nil {
		b.log.LogAttrs(context.Background(), slog.LevelWarn, "platform notification not shown",
			logger.Component("presenter"),
			logger.NotificationID(n.ID),
			logger.Error(err),
		)
	}
}

// SetBadge mirrors the unread count on the app badge when the presenter
// supports it. Repeated counts are not re-sent.
func (b *Bridge) SetBadge(count int) {
	setter, ok := b.presenter.(BadgeSetter)
	if !ok {
		return
	}

	b.mu.Lock()
	if b.badgeSet && b.lastBadge == count {
		b.mu.Unlock()
		return
	}
	b.lastBadge = count
	b.badgeSet = true
	b.mu.Unlock()

	if err := setter.SetBadge(count); err != nil {
		b.log.LogAttrs(context.Background(), slog.LevelWarn, "badge update failed",
			logger.Component("presenter"),
			logger.Error(err),
		)
	}
}

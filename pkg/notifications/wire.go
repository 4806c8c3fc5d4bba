package notifications

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrMalformedFrame is returned when a realtime frame is missing a required
// field or cannot be parsed. Callers drop such frames without closing the
// channel.
var ErrMalformedFrame = errors.New("malformed realtime frame")

// Page is one REST page of notifications plus the server-side totals.
// UnreadCount is the total number of unread notifications for the user,
// independent of the page size.
type Page struct {
	Notifications []Notification
	Total         int
	UnreadCount   int
}

type wirePage struct {
	Notifications []wireNotification `json:"notifications"`
	Total         int                `json:"total"`
	UnreadCount   int                `json:"unread_count"`
}

type wireNotification struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	Content           string  `json:"content"`
	Type              string  `json:"type"`
	IsRead            bool    `json:"is_read"`
	CreatedAt         string  `json:"created_at"`
	RelatedEntityID   *string `json:"related_entity_id"`
	RelatedEntityType *string `json:"related_entity_type"`
}

// DecodePage parses a REST list response body, preserving the
// server-supplied ordering.
func DecodePage(role Role, data []byte) (Page, error) {
	var wp wirePage
	if err := json.Unmarshal(data, &wp); err != nil {
		return Page{}, fmt.Errorf("decode notification page: %w", err)
	}

	page := Page{
		Notifications: make([]Notification, 0, len(wp.Notifications)),
		Total:         wp.Total,
		UnreadCount:   wp.UnreadCount,
	}
	for _, wn := range wp.Notifications {
		page.Notifications = append(page.Notifications, wn.toDomain(role))
	}
	return page, nil
}

func (wn wireNotification) toDomain(role Role) Notification {
	category := ParseCategory(role, wn.Type)
	n := Notification{
		ID:        wn.ID,
		Title:     wn.Title,
		Body:      wn.Content,
		Category:  category,
		Important: role.Urgent(category),
		Read:      wn.IsRead,
		CreatedAt: parseTimestamp(wn.CreatedAt),
	}
	if wn.RelatedEntityID != nil {
		n.RelatedEntityID = *wn.RelatedEntityID
	}
	return n
}

type wireFrame struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Message         string `json:"message"`
	Type            string `json:"type"`
	IsImportant     bool   `json:"is_important"`
	OrderID         string `json:"order_id"`
	RelatedEntityID string `json:"related_entity_id"`
}

// DecodeFrame parses one realtime frame into a domain notification.
// Title and message are required; everything else is optional. Frames
// without an id get a generated one so the presenter key stays stable.
// Pushed notifications always start unread.
func DecodeFrame(role Role, data []byte) (Notification, error) {
	var f wireFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return Notification{}, errors.Join(ErrMalformedFrame, err)
	}
	if f.Title == "" || f.Message == "" {
		return Notification{}, fmt.Errorf("%w: missing title or message", ErrMalformedFrame)
	}

	category := role.OrderCategory()
	if f.Type != "" {
		category = ParseCategory(role, f.Type)
	}

	id := f.ID
	if id == "" {
		id = uuid.NewString()
	}

	related := f.OrderID
	if related == "" {
		related = f.RelatedEntityID
	}

	return Notification{
		ID:              id,
		Title:           f.Title,
		Body:            f.Message,
		Category:        category,
		Important:       f.IsImportant || role.Urgent(category),
		Read:            false,
		RelatedEntityID: related,
		CreatedAt:       time.Now(),
	}, nil
}

// parseTimestamp handles both RFC 3339 and the backend's zone-less ISO
// timestamps. Unparseable values fall back to now rather than failing the
// whole page.
func parseTimestamp(s string) time.Time {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts
	}
	if ts, err := time.Parse("2006-01-02T15:04:05", strings.TrimSuffix(s, "Z")); err == nil {
		return ts
	}
	return time.Now()
}

func normalizeType(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Package api implements the REST side of the notification subsystem:
// paginated history retrieval and read-state acknowledgements against the
// Wisebite backend.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wisebite/notifykit/pkg/notifications"
)

// maxResponseBody bounds how much of a response is read.
const maxResponseBody = 1 << 20

// Client performs authenticated calls against the notification endpoints
// under the API base path. The bearer token is borrowed per call and never
// cached.
type Client struct {
	baseURL string
	role    notifications.Role
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client, for custom transports or tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithTimeout sets the per-request timeout on the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// New creates a client for the given base URL, e.g.
// "https://host/api/v1". The role drives wire-to-domain category mapping.
func New(baseURL string, role notifications.Role, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		role:    role,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List fetches one page of notifications. skip must be >= 0 and limit in
// [1, 100]. unreadOnly filters server-side. The page's UnreadCount is the
// user's total, not the page size.
func (c *Client) List(ctx context.Context, token string, skip, limit int, unreadOnly bool) (notifications.Page, error) {
	if skip < 0 {
		return notifications.Page{}, newError(ErrInvalidArgument, 0, "skip must be >= 0")
	}
	if limit < 1 || limit > 100 {
		return notifications.Page{}, newError(ErrInvalidArgument, 0, "limit must be in [1, 100]")
	}

	query := url.Values{
		"skip":        {strconv.Itoa(skip)},
		"limit":       {strconv.Itoa(limit)},
		"unread_only": {strconv.FormatBool(unreadOnly)},
	}
	body, err := c.do(ctx, http.MethodGet, "user/me/notifications?"+query.Encode(), token)
	if err != nil {
		return notifications.Page{}, err
	}

	page, err := notifications.DecodePage(c.role, body)
	if err != nil {
		return notifications.Page{}, newError(ErrProtocol, 0, err.Error())
	}
	return page, nil
}

// MarkRead acknowledges one notification as read.
func (c *Client) MarkRead(ctx context.Context, token, id string) error {
	if id == "" {
		return newError(ErrInvalidArgument, 0, "notification id is required")
	}
	body, err := c.do(ctx, http.MethodPut, "user/read/"+url.PathEscape(id), token)
	if err != nil {
		return err
	}
	return checkEnvelope(body)
}

// MarkAllRead acknowledges every unread notification as read.
func (c *Client) MarkAllRead(ctx context.Context, token string) error {
	body, err := c.do(ctx, http.MethodPut, "user/read_all", token)
	if err != nil {
		return err
	}
	return checkEnvelope(body)
}

// Delete removes a notification. Best-effort optional feature; the backend
// exposes it but the apps do not surface it.
func (c *Client) Delete(ctx context.Context, token, id string) error {
	if id == "" {
		return newError(ErrInvalidArgument, 0, "notification id is required")
	}
	body, err := c.do(ctx, http.MethodDelete, "notifications/"+url.PathEscape(id), token)
	if err != nil {
		return err
	}
	return checkEnvelope(body)
}

// UnreadCount returns the user's total unread count, read from page
// metadata with the smallest possible page. Never inferred from the number
// of returned items.
func (c *Client) UnreadCount(ctx context.Context, token string) (int, error) {
	page, err := c.List(ctx, token, 0, 1, true)
	if err != nil {
		return 0, err
	}
	return page.UnreadCount, nil
}

func (c *Client) do(ctx context.Context, method, path, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, nil)
	if err != nil {
		return nil, newError(ErrInvalidArgument, 0, err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, newError(ErrNetwork, 0, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, newError(ErrNetwork, resp.StatusCode, err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newError(classifyStatus(resp.StatusCode), resp.StatusCode, serverMessage(body, resp.Status))
	}
	return body, nil
}

// envelope is the backend's generic mutation response.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

// checkEnvelope interprets a 2xx mutation response. Empty bodies count as
// success; an explicit success=false surfaces as a server error.
func checkEnvelope(body []byte) error {
	if len(body) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return newError(ErrProtocol, 0, err.Error())
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		if msg == "" {
			msg = "backend reported failure"
		}
		return newError(ErrServer, 0, msg)
	}
	return nil
}

// serverMessage pulls a human-readable message out of an error body when
// there is one.
func serverMessage(body []byte, fallback string) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Error != "" {
			return env.Error
		}
		if env.Message != "" {
			return env.Message
		}
	}
	var detail struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &detail); err == nil && detail.Detail != "" {
		return detail.Detail
	}
	return fmt.Sprintf("unexpected response: %s", fallback)
}

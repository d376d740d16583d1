package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ssahak93/autochat/internal/chat"
	"go.uber.org/zap"
)

// FetchError is returned for transport failures and non-2xx responses.
// Failed fetches never reach the reconciliation step; callers surface a
// retry affordance and leave cached state intact.
type FetchError struct {
	Status int
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AuthExpired reports whether the backend rejected the bearer token.
func (e *FetchError) AuthExpired() bool { return e.Status == http.StatusUnauthorized }

// Client talks to the marketplace chat REST API.
type Client struct {
	base   *url.URL
	http   *http.Client
	token  string
	logger *zap.Logger
}

// New creates a REST client for the given base URL and bearer token.
func New(baseURL, token string, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base:   u,
		http:   &http.Client{Timeout: 15 * time.Second},
		token:  token,
		logger: logger,
	}, nil
}

// Me returns the authenticated user's identity.
func (c *Client) Me(ctx context.Context) (chat.User, error) {
	var out chat.User
	if err := c.get(ctx, "/users/me", nil, &out); err != nil {
		return chat.User{}, err
	}
	return out, nil
}

// ListConversations returns the viewer's conversations, most recent first.
func (c *Client) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	var out struct {
		Data []chat.Conversation `json:"data"`
	}
	if err := c.get(ctx, "/chat/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// ListMessages fetches one page of a conversation's history. The backend
// returns pages newest-first with newest message first within the page.
func (c *Client) ListMessages(ctx context.Context, conversationID string, page, limit int) (chat.Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var out chat.Page
	path := "/chat/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.get(ctx, path, q, &out); err != nil {
		return chat.Page{}, err
	}
	return out, nil
}

// MarkRead marks the whole conversation as read. Idempotent on the backend.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	path := "/chat/conversations/" + url.PathEscape(conversationID) + "/read"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// UnreadCount returns the backend's unread count for a conversation.
func (c *Client) UnreadCount(ctx context.Context, conversationID string) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	path := "/chat/conversations/" + url.PathEscape(conversationID) + "/unread-count"
	if err := c.get(ctx, path, nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// SendMessage posts a new message. clientID lets the server echo carry the
// same identifier the optimistic local copy used, so reconciliation replaces
// instead of duplicating.
func (c *Client) SendMessage(ctx context.Context, conversationID, clientID, body string) (chat.Message, error) {
	req := map[string]string{
		"clientMessageId": clientID,
		"content":         body,
	}
	var out chat.Message
	path := "/chat/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return chat.Message{}, err
	}
	return out, nil
}

// React toggles the viewer's emoji reaction on a message.
func (c *Client) React(ctx context.Context, messageID, emoji string) error {
	req := map[string]string{"emoji": emoji}
	path := "/chat/messages/" + url.PathEscape(messageID) + "/reactions"
	return c.do(ctx, http.MethodPost, path, req, nil)
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := *c.base
	u.Path += path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &FetchError{URL: u.String(), Err: err}
	}
	return c.send(req, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	u := *c.base
	u.Path += path

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return &FetchError{URL: u.String(), Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &FetchError{URL: req.URL.String(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &FetchError{Status: resp.StatusCode, URL: req.URL.String()}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{URL: req.URL.String(), Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// Package remote talks to the chat backend: session CRUD, history,
// completions and feedback over HTTP/JSON.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/strrl/ragchat/internal/identity"
	"github.com/strrl/ragchat/internal/system"
	"github.com/strrl/ragchat/pkg/models"
)

const (
	// DefaultTimeout is used when NewClient is given a non-positive timeout.
	DefaultTimeout = 120 * time.Second

	// MaxResponseSize caps how much of a response body is read.
	MaxResponseSize = 10 * 1024 * 1024

	requestIDHeader = "X-Request-ID"
)

// Store is the backend as seen by the session controller. Every call takes
// the caller's identity explicitly.
type Store interface {
	ListSessions(ctx context.Context, id identity.Identity) ([]models.ChatSession, error)
	CreateSession(ctx context.Context, id identity.Identity, sessionID, title string) (models.ChatSession, error)
	UpdateSession(ctx context.Context, id identity.Identity, sessionID, title string) (*models.ChatSession, error)
	DeleteSession(ctx context.Context, id identity.Identity, sessionID string) error
	ListMessages(ctx context.Context, id identity.Identity, sessionID string) ([]models.Message, error)
	Complete(ctx context.Context, id identity.Identity, req models.CompletionRequest) (models.Completion, error)
	SubmitFeedback(ctx context.Context, id identity.Identity, fb models.Feedback) error
}

// Client implements Store over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ Store = (*Client)(nil)

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
			Timeout: timeout,
		},
	}
}

// WithHTTPClient swaps the underlying http.Client (tests, custom transports).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// BaseURL returns the backend root the client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// wireSession is the backend's session shape; updated_at comes in several
// timestamp dialects.
type wireSession struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UpdatedAt string `json:"updated_at"`
}

func (w wireSession) model() models.ChatSession {
	return models.ChatSession{ID: w.ID, Title: w.Title, UpdatedAt: ParseTimestamp(w.UpdatedAt)}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ListSessions fetches the caller's sessions.
func (c *Client) ListSessions(ctx context.Context, id identity.Identity) ([]models.ChatSession, error) {
	var out []wireSession
	if err := c.do(ctx, id, "list sessions", http.MethodGet, "/api/chats", nil, &out); err != nil {
		return nil, err
	}
	list := make([]models.ChatSession, 0, len(out))
	for _, w := range out {
		list = append(list, w.model())
	}
	return list, nil
}

// CreateSession registers a client-generated session id.
func (c *Client) CreateSession(ctx context.Context, id identity.Identity, sessionID, title string) (models.ChatSession, error) {
	in := map[string]string{"id": sessionID, "title": title}
	var out wireSession
	if err := c.do(ctx, id, "create session", http.MethodPost, "/api/chats", in, &out); err != nil {
		return models.ChatSession{}, err
	}
	return out.model(), nil
}

// UpdateSession renames a session. A nil result means the backend
// acknowledged without echoing the entry.
func (c *Client) UpdateSession(ctx context.Context, id identity.Identity, sessionID, title string) (*models.ChatSession, error) {
	in := map[string]string{"title": title}
	var out *wireSession
	if err := c.do(ctx, id, "update session", http.MethodPut, "/api/chats/"+url.PathEscape(sessionID), in, &out); err != nil {
		return nil, err
	}
	if out == nil || out.ID == "" {
		return nil, nil
	}
	s := out.model()
	return &s, nil
}

// DeleteSession removes a session and its messages.
func (c *Client) DeleteSession(ctx context.Context, id identity.Identity, sessionID string) error {
	return c.do(ctx, id, "delete session", http.MethodDelete, "/api/chats/"+url.PathEscape(sessionID), nil, nil)
}

// ListMessages fetches a session's thread in order.
func (c *Client) ListMessages(ctx context.Context, id identity.Identity, sessionID string) ([]models.Message, error) {
	var out []wireMessage
	path := "/api/chats/" + url.PathEscape(sessionID) + "/messages"
	if err := c.do(ctx, id, "list messages", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	msgs := make([]models.Message, 0, len(out))
	for _, w := range out {
		msgs = append(msgs, models.Message{Role: models.Role(w.Role), Content: w.Content})
	}
	return msgs, nil
}

// Complete asks the backend to answer a question within a session.
func (c *Client) Complete(ctx context.Context, id identity.Identity, req models.CompletionRequest) (models.Completion, error) {
	var out models.Completion
	if err := c.do(ctx, id, "chat completion", http.MethodPost, "/chat", req, &out); err != nil {
		return models.Completion{}, err
	}
	return out, nil
}

// SubmitFeedback stores a user's expected question/answer.
func (c *Client) SubmitFeedback(ctx context.Context, id identity.Identity, fb models.Feedback) error {
	return c.do(ctx, id, "submit feedback", http.MethodPost, "/feedback", fb, nil)
}

func (c *Client) do(ctx context.Context, id identity.Identity, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	reqID := uuid.New().String()
	req.Header.Set(identity.Header, id.String())
	req.Header.Set(requestIDHeader, reqID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", op, err)
	}
	system.Logger.Debug("backend call", "op", op, "status", resp.StatusCode,
		"request_id", reqID, "elapsed", time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Op: op, Status: resp.StatusCode, Detail: detail(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

// detail extracts {"detail": ...} from an error body, falling back to the raw text.
func detail(body []byte) string {
	var e struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err == nil && len(e.Detail) > 0 {
		var s string
		if err := json.Unmarshal(e.Detail, &s); err == nil {
			return s
		}
		return string(e.Detail)
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts RFC3339 and zone-less ISO timestamps (interpreted as
// local time). Unparseable input yields the zero time.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

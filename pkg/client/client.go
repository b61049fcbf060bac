package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"ad-chat-be/pkg/engagement"
	"ad-chat-be/pkg/stream"
)

const AdModeHeader = stream.ModeHeader

// ErrStatus is returned for any non-2xx API response.
var ErrStatus = errors.New("unexpected response status")

type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Message struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	AdMode    string          `json:"adMode,omitempty"`
	AdData    *stream.Payload `json:"adData"`
	CreatedAt time.Time       `json:"createdAt"`
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// Turn is an open chat response. Body carries the multiplexed stream and must be closed.
type Turn struct {
	AdMode string
	Body   io.ReadCloser
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// Client talks to the chat API. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateSession issues an anonymous session and keeps its token for later calls.
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	var out envelope[Session]
	if err := c.doJSON(ctx, http.MethodPost, "/api/session/v1", nil, &out); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.token = out.Data.Token
	c.mu.Unlock()
	return &out.Data, nil
}

// CurrentSession resolves the identity behind the configured token.
func (c *Client) CurrentSession(ctx context.Context) (*Session, error) {
	var out envelope[Session]
	if err := c.doJSON(ctx, http.MethodGet, "/api/session/v1/me", nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) CreateConversation(ctx context.Context, title string) (*Conversation, error) {
	var out envelope[Conversation]
	body := map[string]string{"title": title}
	if err := c.doJSON(ctx, http.MethodPost, "/api/conversation/v1", body, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var out envelope[[]Conversation]
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversation/v1", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	var out envelope[[]Message]
	path := "/api/conversation/v1/" + conversationID + "/messages"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// SendTurn posts a user message and returns once response headers arrive.
// Cancelling ctx aborts the read of Body.
func (c *Client) SendTurn(ctx context.Context, conversationID, message string) (*Turn, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/chat/v1", map[string]string{
		"message":        message,
		"conversationId": conversationID,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send chat turn: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}

	mode := resp.Header.Get(AdModeHeader)
	if mode == "" {
		mode = "no-ad"
	}
	return &Turn{AdMode: mode, Body: resp.Body}, nil
}

// SubmitBatch delivers engagement events. It satisfies engagement.Sink.
func (c *Client) SubmitBatch(ctx context.Context, events []engagement.Event) error {
	var out envelope[struct {
		Count int `json:"count"`
	}]
	body := map[string]interface{}{"events": events}
	if err := c.doJSON(ctx, http.MethodPost, "/api/events/v1", body, &out); err != nil {
		return err
	}
	if out.Data.Count != len(events) {
		return fmt.Errorf("event batch: server stored %d of %d", out.Data.Count, len(events))
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func statusError(resp *http.Response) error {
	var out envelope[json.RawMessage]
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &out); err == nil && out.Message != "" {
		return fmt.Errorf("%w %d: %s", ErrStatus, resp.StatusCode, out.Message)
	}
	return fmt.Errorf("%w %d", ErrStatus, resp.StatusCode)
}

// Package backend is the client for the paginated HTTP source of truth.
// Fetches bound their wait with a timeout and degrade to an error the
// caller surfaces as an "unavailable" state; they never hang.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to the back-office chat API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client. Used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a backend client. timeout bounds every request.
func New(baseURL, token string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchChats returns one page of the chat list.
func (c *Client) FetchChats(ctx context.Context, limit, offset int) (*ChatPage, error) {
	var page ChatPage
	err := c.get(ctx, "/chats", pageQuery(limit, offset), &page)
	if err != nil {
		return nil, fmt.Errorf("fetch chats: %w", err)
	}
	return &page, nil
}

// FetchMessages returns one page of a chat's messages, newest page first.
func (c *Client) FetchMessages(ctx context.Context, chatID string, limit, offset int) (*MessagePage, error) {
	var page MessagePage
	err := c.get(ctx, "/chats/"+url.PathEscape(chatID)+"/messages", pageQuery(limit, offset), &page)
	if err != nil {
		return nil, fmt.Errorf("fetch messages for %s: %w", chatID, err)
	}
	return &page, nil
}

// SendMessage enqueues an outbound message. The response acknowledges
// the enqueue, not delivery; delivery acks arrive on the push channel.
func (c *Client) SendMessage(ctx context.Context, chatID string, req *SendRequest) (*SendResponse, error) {
	var resp SendResponse
	err := c.post(ctx, "/chats/"+url.PathEscape(chatID)+"/messages", req, &resp)
	if err != nil {
		return nil, fmt.Errorf("send message to %s: %w", chatID, err)
	}
	return &resp, nil
}

func pageQuery(limit, offset int) url.Values {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	return q
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

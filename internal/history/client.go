// Package history talks to the REST endpoints that list notifications and
// record read state.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/healthnotify/internal/credential"
	"github.com/dukerupert/healthnotify/internal/logging"
	"github.com/dukerupert/healthnotify/internal/model"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultPageSize = 50
	defaultMaxPages = 100
)

var (
	// ErrUnauthorized is returned for 401 and 403 responses.
	ErrUnauthorized = errors.New("history: unauthorized")
	// ErrPageLimit is returned when the server still reports more pages after
	// MaxPages have been read.
	ErrPageLimit = errors.New("history: page limit reached")
)

// StatusError reports any other non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Config holds the REST endpoint settings.
type Config struct {
	BaseURL  string
	Token    string
	Timeout  time.Duration
	PageSize int
	// MaxPages stops a misbehaving server from paging forever.
	MaxPages int
	Logger   *slog.Logger
}

// Client is safe for concurrent use; the token can be swapped at runtime.
type Client struct {
	mu         sync.RWMutex
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a history client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &loggingTransport{
				next:   http.DefaultTransport,
				logger: cfg.Logger.With(logging.Component("history")),
			},
		},
	}
}

// SetToken replaces the bearer credential used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.cfg.Token = token
	c.mu.Unlock()
}

type page struct {
	Content    []model.RawNotification `json:"content"`
	TotalPages int                     `json:"totalPages"`
	Number     int                     `json:"number"`
	Last       *bool                   `json:"last"`
}

// List fetches the caller's notification history. Both a bare JSON array and
// a paged response are accepted; pages are followed until the last one, or
// ErrPageLimit is returned.
func (c *Client) List(ctx context.Context) ([]model.RawNotification, error) {
	c.mu.RLock()
	size, maxPages := c.cfg.PageSize, c.cfg.MaxPages
	c.mu.RUnlock()

	var all []model.RawNotification
	for n := 0; n < maxPages; n++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(n))
		q.Set("size", strconv.Itoa(size))

		body, err := c.do(ctx, http.MethodGet, "/notifications?"+q.Encode())
		if err != nil {
			return nil, err
		}

		trimmed := bytes.TrimSpace(body)
		if len(trimmed) == 0 {
			return all, nil
		}
		if trimmed[0] == '[' {
			var list []model.RawNotification
			if err := json.Unmarshal(trimmed, &list); err != nil {
				return nil, fmt.Errorf("decode notifications: %w", err)
			}
			return append(all, list...), nil
		}

		var p page
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return nil, fmt.Errorf("decode notifications page: %w", err)
		}
		all = append(all, p.Content...)

		lastPage := len(p.Content) == 0 || p.Number+1 >= p.TotalPages
		if p.Last != nil {
			lastPage = *p.Last || len(p.Content) == 0
		}
		if lastPage {
			return all, nil
		}
	}
	return nil, fmt.Errorf("%w: %d pages of %d", ErrPageLimit, maxPages, size)
}

// MarkRead records notification id as read on the server.
func (c *Client) MarkRead(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodPatch, "/notifications/"+strconv.FormatInt(id, 10)+"/read")
	return err
}

// MarkAllRead records every notification of the caller as read.
func (c *Client) MarkAllRead(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPatch, "/notifications/read-all")
	return err
}

func (c *Client) do(ctx context.Context, method, path string) ([]byte, error) {
	c.mu.RLock()
	base, token := c.cfg.BaseURL, c.cfg.Token
	c.mu.RUnlock()

	target := base + path
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", credential.Header(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrUnauthorized, method, target, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{
			Method: method,
			URL:    target,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(body[:min(len(body), 200)])),
		}
	}
	return body, nil
}

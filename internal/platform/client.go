// Package platform is a thin client for the platform's session REST API. The
// call itself never needs it; the host uses it to record joins and leaves.
package platform

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

	"github.com/BioHazard786/warpcall/internal/dns"
)

// Session statuses understood by the platform.
const (
	StatusScheduled  = "scheduled"
	StatusInProgress = "in-progress"
	StatusEnded      = "ended"
)

// Session is the platform's record of a call.
type Session struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Status      string    `json:"status"`
	HostID      string    `json:"hostId"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// APIError is a non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// Client talks to the session API at BaseURL.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// NewClient returns a client whose connections resolve through the dns
// package's fallback resolver.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Token:   token,
		HTTP: &http.Client{
			Timeout:   10 * time.Second,
			Transport: &http.Transport{DialContext: dns.DialContext, ForceAttemptHTTP2: true},
		},
	}
}

// GetSession fetches the session record.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodGet, sessionPath(id), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// MarkJoined records that userID entered the call.
func (c *Client) MarkJoined(ctx context.Context, id, userID string) error {
	return c.do(ctx, http.MethodPost, sessionPath(id)+"/join", map[string]string{"userId": userID}, nil)
}

// MarkLeft records that userID left the call.
func (c *Client) MarkLeft(ctx context.Context, id, userID string) error {
	return c.do(ctx, http.MethodPost, sessionPath(id)+"/leave", map[string]string{"userId": userID}, nil)
}

// UpdateStatus sets the session status, for example StatusEnded.
func (c *Client) UpdateStatus(ctx context.Context, id, status string) error {
	return c.do(ctx, http.MethodPatch, sessionPath(id), map[string]string{"status": status}, nil)
}

func sessionPath(id string) string {
	return "/api/sessions/" + url.PathEscape(id)
}

// do sends body as JSON and decodes a 2xx response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode}
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload) == nil {
			apiErr.Message = payload.Error
			if apiErr.Message == "" {
				apiErr.Message = payload.Message
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// Package registration submits completed study intervals to the session API.
package registration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTimeout bounds a single registration attempt.
const DefaultTimeout = 10 * time.Second

// IdempotencyHeader carries the completion ID so a replayed request is not
// counted twice by the server.
const IdempotencyHeader = "Idempotency-Key"

// DateLayout is the calendar-date format used on the wire.
const DateLayout = "2006-01-02"

// Request is the body of POST /sessions.
type Request struct {
	Date    string `json:"date"`
	Minutes int    `json:"minutes"`
	Subject string `json:"subject,omitempty"`
	Notes   string `json:"notes,omitempty"`

	// IdempotencyKey is sent as a header, not in the body.
	IdempotencyKey string `json:"-"`
}

// StudySession is a session record owned by the backend.
type StudySession struct {
	ID        int64     `json:"id"`
	Date      string    `json:"date"`
	Minutes   int       `json:"minutes"`
	Hours     float64   `json:"hours"`
	Subject   string    `json:"subject,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("session api returned %d", e.StatusCode)
	}
	return fmt.Sprintf("session api returned %d: %s", e.StatusCode, e.Message)
}

// Registrar registers study sessions. The completion guard depends on this
// interface rather than on Client.
type Registrar interface {
	Register(ctx context.Context, req Request) (*StudySession, error)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Logger  *slog.Logger

	// Transport overrides the base round tripper, mainly for tests.
	Transport http.RoundTripper
}

// Client talks to the session API over HTTP. It makes exactly one attempt per
// call; retries are the caller's decision.
type Client struct {
	base   string
	http   *http.Client
	logger *slog.Logger
}

// New returns a Client for opts.BaseURL. A non-empty token is attached as a
// bearer credential on every request.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if opts.Token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token, TokenType: "Bearer"}),
			Base:   transport,
		}
	}
	return &Client{
		base:   strings.TrimRight(opts.BaseURL, "/"),
		http:   &http.Client{Timeout: timeout, Transport: transport},
		logger: logger,
	}
}

// Register posts req to /sessions and returns the created or updated session.
func (c *Client) Register(ctx context.Context, req Request) (*StudySession, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding session request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building session request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set(IdempotencyHeader, req.IdempotencyKey)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("posting session: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading session response: %w", err)
	}
	c.logger.Debug("session api call",
		"status", resp.StatusCode,
		"minutes", req.Minutes,
		"elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	var session StudySession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decoding session response: %w", err)
	}
	return &session, nil
}

// errorMessage extracts a human message from either error body shape the
// API produces: {"error": "..."} or {"errors": [{"msg": "..."}]}.
func errorMessage(data []byte) string {
	var body struct {
		Error  string `json:"error"`
		Errors []struct {
			Msg string `json:"msg"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return strings.TrimSpace(string(data))
	}
	if body.Error != "" {
		return body.Error
	}
	msgs := make([]string, 0, len(body.Errors))
	for _, e := range body.Errors {
		if e.Msg != "" {
			msgs = append(msgs, e.Msg)
		}
	}
	return strings.Join(msgs, "; ")
}

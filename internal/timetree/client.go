package timetree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultBaseURL = "https://timetreeapp.com/api/v1"
	DefaultTimeout = 8 * time.Second

	clientHeader      = "X-Timetreea"
	clientHeaderValue = "web/2.1.0/en"
	sessionCookieName = "_session_id"

	maxErrorBody = 220
)

// Backend is the narrow surface the rest of the program needs from the
// calendar service.
type Backend interface {
	Authenticate(ctx context.Context, creds Credentials) (Session, error)
	ListCalendars(ctx context.Context, session Session) ([]Calendar, error)
	FetchEvents(ctx context.Context, session Session, calendar Calendar, startDate, endDate time.Time) (EventBatch, error)
}

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Location   *time.Location
	Logger     *slog.Logger
	HTTPClient *http.Client
}

// Client talks to the undocumented TimeTree web API. It keeps no session
// state of its own; every authenticated call takes an explicit Session.
type Client struct {
	baseURL  string
	http     *http.Client
	location *time.Location
	logger   *slog.Logger

	deviceID func() string
}

var _ Backend = (*Client)(nil)

func New(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	location := opts.Location
	if location == nil {
		location = time.Local
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		baseURL:  baseURL,
		http:     httpClient,
		location: location,
		logger:   logger,
		deviceID: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")
		},
	}
}

func (c *Client) Location() *time.Location {
	return c.location
}

type response struct {
	status  int
	cookies []*http.Cookie
	body    []byte
}

func (c *Client) do(ctx context.Context, op, method, path string, session *Session, body []byte) (response, error) {
	var requestBody io.Reader
	if len(body) > 0 {
		requestBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, requestBody)
	if err != nil {
		return response{}, fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(clientHeader, clientHeaderValue)
	if session != nil && session.Authenticated() {
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: session.token})
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, &NetworkError{Op: op, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, &NetworkError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.DebugContext(ctx, "timetree request",
		"op", op,
		"method", method,
		"status", resp.StatusCode,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return response{
		status:  resp.StatusCode,
		cookies: resp.Cookies(),
		body:    payload,
	}, nil
}

// statusError classifies a non-2xx status from an authenticated call.
func statusError(op string, resp response) error {
	message := truncate(strings.TrimSpace(string(resp.body)), maxErrorBody)
	switch resp.status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Status: resp.status, Message: message}
	}

	var cause error
	if message != "" {
		cause = errors.New(message)
	}
	return &NetworkError{Op: op, Status: resp.status, Err: cause}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func sanitize(value string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(value)), " ")
}

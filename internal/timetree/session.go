package timetree

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Credentials are the account email and password. Neither is ever written
// to logs; the fmt verbs print a redacted form.
type Credentials struct {
	Email    string
	Password string
}

func (c Credentials) String() string {
	return "timetree.Credentials{Email:[redacted], Password:[redacted]}"
}

func (c Credentials) GoString() string {
	return c.String()
}

// Session is the authenticated context for one run. The zero value is
// unauthenticated.
type Session struct {
	token    string
	issuedAt time.Time
}

// NewSession wraps an existing session token. It exists for alternate
// Backend implementations; Authenticate is the normal way to get one.
func NewSession(token string, issuedAt time.Time) Session {
	return Session{token: strings.TrimSpace(token), issuedAt: issuedAt}
}

func (s Session) Authenticated() bool {
	return s.token != ""
}

func (s Session) IssuedAt() time.Time {
	return s.issuedAt
}

func (s Session) String() string {
	if !s.Authenticated() {
		return "timetree.Session{unauthenticated}"
	}
	return fmt.Sprintf("timetree.Session{issued:%s}", s.issuedAt.Format(time.RFC3339))
}

type signinRequest struct {
	UID      string `json:"uid"`
	Password string `json:"password"`
	UUID     string `json:"uuid"`
}

// Authenticate performs a single email/password sign-in. It never retries.
func (c *Client) Authenticate(ctx context.Context, creds Credentials) (Session, error) {
	email := strings.TrimSpace(creds.Email)
	if email == "" || creds.Password == "" {
		return Session{}, &AuthError{Message: "email and password are required"}
	}

	payload, err := json.Marshal(signinRequest{
		UID:      email,
		Password: creds.Password,
		UUID:     c.deviceID(),
	})
	if err != nil {
		return Session{}, fmt.Errorf("marshal signin payload: %w", err)
	}

	resp, err := c.do(ctx, "signin", http.MethodPut, "/auth/email/signin", nil, payload)
	if err != nil {
		return Session{}, err
	}

	if resp.status != http.StatusOK {
		return Session{}, &AuthError{
			Status:  resp.status,
			Message: truncate(strings.TrimSpace(string(resp.body)), maxErrorBody),
		}
	}

	for _, cookie := range resp.cookies {
		if cookie.Name != sessionCookieName {
			continue
		}
		if token := strings.TrimSpace(cookie.Value); token != "" {
			c.logger.InfoContext(ctx, "timetree session established")
			return Session{token: token, issuedAt: time.Now()}, nil
		}
	}

	return Session{}, &AuthError{Status: resp.status, Message: "signin response carried no session cookie"}
}

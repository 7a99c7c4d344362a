package timetree

import (
	"errors"
	"fmt"
	"strings"
)

// AuthError means the backend rejected the credentials or the session.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("timetree auth: %s", fallback(e.Message, "not authenticated"))
	}
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("timetree auth: http %d", e.Status)
	}
	return fmt.Sprintf("timetree auth: http %d: %s", e.Status, e.Message)
}

// NetworkError covers transport failures and unexpected non-auth HTTP
// statuses. Status is zero when no response was received.
type NetworkError struct {
	Op     string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("timetree %s: http %d: %v", e.Op, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("timetree %s: http %d", e.Op, e.Status)
	default:
		return fmt.Sprintf("timetree %s: %v", e.Op, e.Err)
	}
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NotFoundError means a requested resource, usually a calendar, does not
// exist. An empty ID means none were found at all.
type NotFoundError struct {
	What string
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("no %s found", e.What)
	}
	return fmt.Sprintf("%s %q not found", e.What, e.ID)
}

// ParseError describes a response or record that did not have the expected
// shape. Index is the record position for per-record errors and -1 for
// whole-response errors.
type ParseError struct {
	Index    int
	RecordID string
	Reason   string
	Err      error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("timetree parse")
	if e.Index >= 0 {
		_, _ = fmt.Fprintf(&b, " record %d", e.Index)
		if e.RecordID != "" {
			_, _ = fmt.Fprintf(&b, " (id %s)", e.RecordID)
		}
	}
	b.WriteString(": ")
	b.WriteString(fallback(e.Reason, "malformed response"))
	if e.Err != nil {
		_, _ = fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsAuth reports whether err wraps a *AuthError.
func IsAuth(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

// IsNetwork reports whether err wraps a *NetworkError.
func IsNetwork(err error) bool {
	var target *NetworkError
	return errors.As(err, &target)
}

// IsNotFound reports whether err wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsParse reports whether err wraps a *ParseError.
func IsParse(err error) bool {
	var target *ParseError
	return errors.As(err, &target)
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if max <= 0 || len(runes) <= max {
		return value
	}
	return string(runes[:max]) + "…"
}

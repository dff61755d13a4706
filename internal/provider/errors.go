package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoData is returned when an upstream answered but had nothing for the
// request.
var ErrNoData = errors.New("no data")

// Error is a quote source failure. Transport, rate-limit and
// malformed-payload conditions all surface as one Error.
type Error struct {
	Provider string
	Op       string
	Status   int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d: %s", e.Provider, e.Op, e.Status, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// RateLimited reports whether the upstream throttled the call.
func (e *Error) RateLimited() bool { return e.Status == http.StatusTooManyRequests }

// Fail wraps err as a provider Error unless it already is one.
func Fail(name, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Provider: name, Op: op, Err: err}
}

// StatusError builds an Error for an unexpected HTTP status.
func StatusError(name, op string, status int) *Error {
	msg := http.StatusText(status)
	switch status {
	case http.StatusTooManyRequests:
		msg = "rate limited"
	case http.StatusUnauthorized, http.StatusForbidden:
		msg = "unauthorized"
	}
	return &Error{Provider: name, Op: op, Status: status, Message: msg}
}

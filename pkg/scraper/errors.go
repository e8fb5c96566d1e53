package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies a scrape failure.
type ErrorKind int

const (
	// KindTransient covers network-level failures (refused, reset, DNS).
	KindTransient ErrorKind = iota
	// KindTimeout is a per-attempt or caller deadline.
	KindTimeout
	// KindRateLimited is an upstream 429.
	KindRateLimited
	// KindUpstreamStatus is an upstream 5xx.
	KindUpstreamStatus
	// KindEmptyData means the upstream answered but carried no usable values.
	KindEmptyData
	// KindParse means the payload could not be decoded.
	KindParse
	// KindValidation means values were decoded but failed sanity checks.
	KindValidation
	// KindConfig is a caller-side problem: bad URL, 4xx other than 429, auth.
	KindConfig
	// KindCircuitOpen is returned without touching the upstream.
	KindCircuitOpen
	// KindInternal is a recovered panic inside a source hook.
	KindInternal
)

var kindNames = map[ErrorKind]string{
	KindTransient:      "TRANSIENT",
	KindTimeout:        "TIMEOUT",
	KindRateLimited:    "RATE_LIMITED",
	KindUpstreamStatus: "UPSTREAM_STATUS",
	KindEmptyData:      "EMPTY_DATA",
	KindParse:          "PARSE_ERROR",
	KindValidation:     "VALIDATION_ERROR",
	KindConfig:         "CONFIG_ERROR",
	KindCircuitOpen:    "CIRCUIT_OPEN",
	KindInternal:       "INTERNAL",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "UNKNOWN"
}

// MarshalText renders the kind by name in JSON payloads.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Retryable reports whether another attempt can change the outcome.
func (k ErrorKind) Retryable() bool {
	return k != KindConfig && k != KindCircuitOpen
}

// CountsTowardBreaker reports whether the failure says something about
// upstream health. Misconfiguration never trips a breaker.
func (k ErrorKind) CountsTowardBreaker() bool {
	return k != KindConfig && k != KindCircuitOpen
}

// Error is the structured failure carried by a Result.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error without a cause.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap attaches a kind to err.
func Wrap(kind ErrorKind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// FromHTTPStatus maps a non-2xx upstream status to an Error.
func FromHTTPStatus(code int) *Error {
	msg := fmt.Sprintf("HTTP %d: %s", code, http.StatusText(code))
	var kind ErrorKind
	switch {
	case code == http.StatusTooManyRequests:
		kind = KindRateLimited
	case code == http.StatusRequestTimeout:
		kind = KindTimeout
	case code >= 500:
		kind = KindUpstreamStatus
	default:
		kind = KindConfig
	}
	return &Error{Kind: kind, Message: msg, StatusCode: code}
}

// Classify turns an arbitrary error from a source hook into an *Error.
// Only typed inspection is used; anything unrecognised is transient.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var se *Error
	if errors.As(err, &se) {
		return se
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindTimeout, err, "request timed out")
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(KindTimeout, err, "request canceled")
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Wrap(KindTimeout, err, "request timed out")
	}

	return Wrap(KindTransient, err, "")
}

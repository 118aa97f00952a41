package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind is the normalized sync error taxonomy. Provider-specific errors
// are classified into these kinds before they leave a client.
type ErrorKind int

const (
	// KindAuthenticationRequired halts the whole pass; the account needs a
	// credential refresh and is not retried automatically.
	KindAuthenticationRequired ErrorKind = iota
	// KindSuspended means the provider rate limited or the client was
	// suspended; no further requests for this account until resumed.
	KindSuspended
	// KindTransientNetwork is retryable on the next scheduled pass.
	KindTransientNetwork
	// KindNotFound triggers local removal rather than retry.
	KindNotFound
	// KindMalformedResponse is non-retryable; the sub-step is skipped and
	// the pass continues.
	KindMalformedResponse
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthenticationRequired:
		return "authentication required"
	case KindSuspended:
		return "suspended"
	case KindTransientNetwork:
		return "transient network failure"
	case KindNotFound:
		return "resource not found"
	case KindMalformedResponse:
		return "malformed response"
	}
	return "unknown"
}

type Error struct {
	Kind     ErrorKind
	Provider string
	Op       string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Provider, e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind ErrorKind, providerName, op string, err error) *Error {
	return &Error{Kind: kind, Provider: providerName, Op: op, Err: err}
}

// KindOf extracts the taxonomy kind from err. Unclassified errors report as
// transient so they are retried on a later pass rather than dropped.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransientNetwork
}

func IsAuthError(err error) bool {
	return KindOf(err) == KindAuthenticationRequired
}

func IsSuspended(err error) bool {
	return KindOf(err) == KindSuspended
}

// ClassifyHTTP maps an HTTP status code onto the taxonomy.
func ClassifyHTTP(providerName, op string, status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewError(KindAuthenticationRequired, providerName, op, fmt.Errorf("HTTP %d", status))
	case status == http.StatusTooManyRequests:
		return NewError(KindSuspended, providerName, op, fmt.Errorf("HTTP %d", status))
	case status == http.StatusNotFound:
		return NewError(KindNotFound, providerName, op, fmt.Errorf("HTTP %d", status))
	case status >= 500:
		return NewError(KindTransientNetwork, providerName, op, fmt.Errorf("HTTP %d", status))
	default:
		return NewError(KindMalformedResponse, providerName, op, fmt.Errorf("unexpected HTTP %d", status))
	}
}

// ClassifyTransport maps a request-level failure onto the taxonomy.
func ClassifyTransport(providerName, op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTransientNetwork, providerName, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewError(KindTransientNetwork, providerName, op, err)
	}
	return NewError(KindTransientNetwork, providerName, op, err)
}

// ErrClientSuspended rejects calls issued while a client is suspended.
var ErrClientSuspended = errors.New("client is suspended")

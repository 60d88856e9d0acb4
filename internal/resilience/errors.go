// Package resilience provides retry, failure classification, and circuit
// breaker support for the network-heavy parts of the pipeline.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError marks an error as safe to retry (429, 5xx, timeouts).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// BlockedError marks a fetch that was refused by bot protection (403/429,
// challenge pages). Blocked fetches get one local backoff-and-reload before
// counting as a failure, so they are kept distinct from ordinary transient
// errors.
type BlockedError struct {
	Err        error
	StatusCode int
	Indicator  string // what tripped detection: status code, challenge marker
}

func (e *BlockedError) Error() string {
	return e.Err.Error()
}

func (e *BlockedError) Unwrap() error {
	return e.Err
}

// NewBlockedError wraps err as a block signal.
func NewBlockedError(err error, statusCode int, indicator string) *BlockedError {
	return &BlockedError{Err: err, StatusCode: statusCode, Indicator: indicator}
}

// IsBlocked reports whether the error chain contains a BlockedError.
func IsBlocked(err error) bool {
	var be *BlockedError
	return errors.As(err, &be)
}

// IsTransient reports whether the error (or anything in its chain) is safe
// to retry: an explicit TransientError, a blocked fetch, a network timeout,
// or a connection-level failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	// Blocks are retried at the orchestrator level after the local reload.
	if IsBlocked(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Wrapped client errors lose their type, so fall back to message patterns.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus reports whether an HTTP status is worth retrying.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsBlockedHTTPStatus reports whether an HTTP status usually signals bot
// protection rather than a genuine server error.
func IsBlockedHTTPStatus(statusCode int) bool {
	return statusCode == 403 || statusCode == 429
}

package domain

import (
	"context"
	"errors"
)

// Source failures are classified with these sentinels. Adapters wrap them
// with %w so callers can branch with errors.Is.
var (
	// ErrRateLimited means the upstream explicitly throttled the request (HTTP 429).
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable covers network errors and non-2xx responses other than 429.
	ErrUnavailable = errors.New("source unavailable")
	// ErrNotFound means the upstream answered but had no matching entity.
	ErrNotFound = errors.New("not found")
	// ErrMalformed means the response body did not have the expected shape.
	ErrMalformed = errors.New("malformed response")
	// ErrInvalidQuery rejects an empty scan query before any network call.
	ErrInvalidQuery = errors.New("invalid query")
)

// ErrorKind is the wire name of an error class.
type ErrorKind string

const (
	KindNone        ErrorKind = ""
	KindRateLimited ErrorKind = "rate_limited"
	KindUnavailable ErrorKind = "unavailable"
	KindNotFound    ErrorKind = "not_found"
	KindMalformed   ErrorKind = "malformed"
	KindInvalid     ErrorKind = "invalid_query"
	KindCancelled   ErrorKind = "cancelled"
)

// KindOf classifies err. Unrecognised errors are reported as unavailable.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidQuery):
		return KindInvalid
	case errors.Is(err, ErrMalformed):
		return KindMalformed
	default:
		return KindUnavailable
	}
}

// IsTransient reports whether err should silently degrade a cycle to stale or
// absent data. Malformed responses are handled exactly like outages.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindUnavailable, KindMalformed:
		return true
	default:
		return false
	}
}

package fetchclient

import (
	"errors"
	"fmt"
	"time"
)

// ErrSuperseded is returned to a caller whose in-flight fetch was cancelled
// because a newer fetch started on the same channel. The newer request owns
// the outcome; a superseded call is neither a success nor a failure and is
// never retried.
var ErrSuperseded = errors.New("fetch superseded by a newer request")

// ErrorKind classifies a fetch failure so callers can decide whether a retry
// might help and what to surface to the user.
type ErrorKind string

const (
	// KindNetwork covers transport failures: DNS, connection refused,
	// connection reset. Retryable.
	KindNetwork ErrorKind = "NetworkError"

	// KindTimeout covers calls that exceeded their deadline. Retryable.
	KindTimeout ErrorKind = "TimeoutError"

	// KindValidation covers responses that arrived but could not be decoded
	// or were structurally invalid. Not retryable: the payload is broken, not
	// the path to it.
	KindValidation ErrorKind = "ValidationError"

	// KindHTTP covers non-2xx responses. Retryable only for 5xx and 429.
	KindHTTP ErrorKind = "HTTPError"

	// KindCircuitOpen means the call was blocked locally by the circuit
	// breaker. The request never reached the network.
	KindCircuitOpen ErrorKind = "CircuitBreakerOpen"

	// KindRateLimited means the call was blocked locally by the client-side
	// rate limiter. The request never reached the network.
	KindRateLimited ErrorKind = "RateLimited"
)

// Error is the typed failure returned by FetchChannel operations.
type Error struct {
	Kind ErrorKind

	// Status is the HTTP status code. Set only for KindHTTP.
	Status int

	// RetryAfter is the wait until the local safeguard will admit another
	// call. Set for KindCircuitOpen and KindRateLimited.
	RetryAfter time.Duration

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("upstream returned HTTP %d", e.Status)
	case KindCircuitOpen:
		return fmt.Sprintf("circuit breaker open, retry in %s", e.RetryAfter.Round(time.Second))
	case KindRateLimited:
		return fmt.Sprintf("rate limit exceeded, retry in %s", e.RetryAfter.Round(time.Second))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether an automatic follow-up attempt is worthwhile.
// Transient transport and server-side failures qualify; malformed payloads
// and client errors do not. Locally blocked calls are not retried inline
// since the safeguard that blocked them would block the retry too.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout:
		return true
	case KindHTTP:
		return e.Status >= 500 || e.Status == 429
	default:
		return false
	}
}

// KindOf returns the ErrorKind of err, or an empty kind for nil and untyped
// errors.
func KindOf(err error) ErrorKind {
	if fe, ok := err.(*Error); ok {
		return fe.Kind
	}
	return ""
}

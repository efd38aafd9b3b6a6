package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind categorizes remote failures.
type ErrorKind string

const (
	// NetworkFailure means the call did not complete usefully: transport
	// error, 5xx, auth failure, timeout or rate limit.
	NetworkFailure ErrorKind = "NETWORK_FAILURE"

	// RemoteRejected means the service answered with a client error.
	RemoteRejected ErrorKind = "REMOTE_REJECTED"
)

// Error is returned by every Client call that fails.
type Error struct {
	Kind ErrorKind

	// Op is the request line, e.g. "POST /goals".
	Op string

	// StatusCode is zero for transport failures.
	StatusCode int

	// Message is the response body (truncated) or transport error text.
	Message string

	Err error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: status %d: %s", e.Kind, e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsNetworkFailure reports whether err is a transient remote failure.
// Uses errors.As to handle wrapped errors.
func IsNetworkFailure(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind == NetworkFailure
	}
	return false
}

// IsRejected reports whether the service rejected the request.
func IsRejected(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind == RemoteRejected
	}
	return false
}

// classifyStatus maps a non-2xx status to an error kind.
// Auth failures count as network failures: the token is refreshed out of band
// and the mutation must survive until then.
func classifyStatus(code int) ErrorKind {
	switch {
	case code >= 500:
		return NetworkFailure
	case code == http.StatusUnauthorized,
		code == http.StatusForbidden,
		code == http.StatusRequestTimeout,
		code == http.StatusTooManyRequests:
		return NetworkFailure
	default:
		return RemoteRejected
	}
}

func statusError(op string, code int, body []byte) *Error {
	return &Error{
		Kind:       classifyStatus(code),
		Op:         op,
		StatusCode: code,
		Message:    string(body),
	}
}

func transportError(op string, err error) *Error {
	return &Error{
		Kind:    NetworkFailure,
		Op:      op,
		Message: err.Error(),
		Err:     err,
	}
}

package backend

import (
	"errors"
	"fmt"
)

// FailureKind classifies how a backend operation failed.
type FailureKind int

const (
	// KindValidation is a local pre-network rejection (empty or oversized query).
	KindValidation FailureKind = iota
	// KindTimeout means the per-call deadline elapsed before a response arrived.
	KindTimeout
	// KindNetwork covers transport-level errors: DNS, refused connection, aborted.
	KindNetwork
	// KindUnauthorized maps HTTP 401/403.
	KindUnauthorized
	// KindRateLimited maps HTTP 429, or a local block before any network call.
	KindRateLimited
	// KindServer covers any other non-2xx status.
	KindServer
)

func (k FailureKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Failure is the classified error returned by the backend client and the
// query controller. Code holds the HTTP status for server failures and is
// zero otherwise.
type Failure struct {
	Kind    FailureKind
	Code    int
	Message string
}

func (f *Failure) Error() string {
	if f.Code != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", f.Kind, f.Code, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// AsFailure extracts a *Failure from err, returning nil if err is not one.
func AsFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return nil
}

// KindOf returns the failure kind of err, or KindNetwork for unclassified errors.
func KindOf(err error) FailureKind {
	if f := AsFailure(err); f != nil {
		return f.Kind
	}
	return KindNetwork
}

// IsTimeout reports whether err is a classified timeout failure.
func IsTimeout(err error) bool {
	f := AsFailure(err)
	return f != nil && f.Kind == KindTimeout
}

// IsRateLimited reports whether err is a classified rate-limit failure.
func IsRateLimited(err error) bool {
	f := AsFailure(err)
	return f != nil && f.Kind == KindRateLimited
}

func validationFailure(format string, args ...any) *Failure {
	return &Failure{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewValidationFailure builds a local validation failure. Exposed for the
// query controller, which re-validates input before any network activity.
func NewValidationFailure(format string, args ...any) *Failure {
	return validationFailure(format, args...)
}

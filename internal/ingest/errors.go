package ingest

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// ErrorClass categorizes provider failures for the circuit breaker.
type ErrorClass int

// Provider failure classes.
const (
	ClassTransient ErrorClass = iota
	ClassQuotaExhausted
	ClassInvalidCredential
	ClassMalformedResponse
)

func (c ErrorClass) String() string {
	switch c {
	case ClassQuotaExhausted:
		return "quota_exhausted"
	case ClassInvalidCredential:
		return "invalid_credential"
	case ClassMalformedResponse:
		return "malformed_response"
	default:
		return "transient"
	}
}

// PermanentError marks a failure that must not be retried, such as a
// detail page missing its download token.
type PermanentError struct {
	msg string
	err error
}

// Permanentf builds a PermanentError from a format string.
func Permanentf(format string, args ...any) error {
	return &PermanentError{msg: fmt.Sprintf(format, args...)}
}

// PermanentWrap marks an existing error as permanent.
func PermanentWrap(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{msg: err.Error(), err: err}
}

func (e *PermanentError) Error() string { return e.msg }

func (e *PermanentError) Unwrap() error { return e.err }

// IsPermanent reports whether err (or anything it wraps) is permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrUnsupportedKeyType   = errors.New("unsupported key type")
	ErrKeyUnknown           = errors.New("key unknown")
	ErrSignatureInvalid     = errors.New("signature invalid")
	ErrTimestampUnavailable = errors.New("timestamp unavailable")
)

// FormatError marks malformed local input (base64url, DER, coordinates).
// It is never retried and always names the offending field.
type FormatError struct {
	Field  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CircuitOpenError is a deliberate refusal while the breaker is open.
// Retryable later, not a data error.
type CircuitOpenError struct {
	NextAttemptAt time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open until %s", e.NextAttemptAt.UTC().Format(time.RFC3339))
}

// TransientError wraps an upstream failure that may succeed on retry
// (network errors, timeouts, 5xx responses).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err may be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

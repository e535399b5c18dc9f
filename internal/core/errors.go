package core

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error taxonomy
// =============================================================================

var (
	// ErrMalformed marks structured output that could not be parsed into the
	// expected shape. It is retryable and never consumes an iteration slot.
	ErrMalformed = errors.New("malformed structured output")

	// ErrMalformedVerdict is returned by the critique stage.
	ErrMalformedVerdict = fmt.Errorf("%w: verdict", ErrMalformed)

	// ErrLowRetention rejects a refinement that rewrote too much of its input.
	ErrLowRetention = errors.New("refinement retained too little of the original")

	// ErrMissingInput means source material was absent. Callers log and skip.
	ErrMissingInput = errors.New("missing input")

	ErrNoAPIKey = errors.New("API key not configured")
)

// TransientError is a network or service failure that may succeed on retry.
type TransientError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transient failure (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PreconditionError is a caller error: the operation was invoked on state it
// must never see. It is never retried.
type PreconditionError struct {
	Op     string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition violated in %s: %s", e.Op, e.Reason)
}

// NewPreconditionError formats a PreconditionError.
func NewPreconditionError(op, format string, args ...any) *PreconditionError {
	return &PreconditionError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// IsTransient reports whether err is a network or service failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsMalformed reports whether err is an unparseable structured response or a
// rejected refinement. Both are re-asked rather than counted.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed) || errors.Is(err, ErrLowRetention)
}

// IsPrecondition reports whether err is a caller error.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// IsRetryable determines if an error can be retried at all.
func IsRetryable(err error) bool {
	if err == nil || IsPrecondition(err) {
		return false
	}
	return IsTransient(err) || IsMalformed(err)
}

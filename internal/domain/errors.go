package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfiguration marks a missing or invalid profile/config field.
	ErrConfiguration = errors.New("configuration error")
	// ErrSourceUnavailable marks a failed source fetch; the run produces no digest.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrScoring marks a per-paper scoring failure. It never leaves the scorer.
	ErrScoring = errors.New("scoring failure")
	// ErrJudgeTransient marks transport, timeout and rate-limit failures that may be retried.
	ErrJudgeTransient = errors.New("judge temporarily unavailable")
	// ErrMalformedVerdict marks a judge response that could not be turned into a score.
	ErrMalformedVerdict = errors.New("malformed judge response")
	// ErrRender marks a document that could not be produced safely.
	ErrRender = errors.New("render error")
	// ErrDelivery marks a sink failure after a digest was rendered.
	ErrDelivery = errors.New("delivery failed")
)

// TransientError is a retryable judge failure with an optional server-provided delay.
type TransientError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %s)", e.Err, e.RetryAfter)
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() []error {
	return []error{ErrJudgeTransient, e.Err}
}

// Transient wraps err as a retryable judge failure.
func Transient(err error, retryAfter time.Duration) error {
	return &TransientError{Err: err, RetryAfter: retryAfter}
}

// Malformed wraps err as an unparseable judge response.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedVerdict, fmt.Sprintf(format, args...))
}

// Configuration builds an ErrConfiguration with detail.
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// RetryAfter extracts the server-provided delay from a transient error, if any.
func RetryAfter(err error) time.Duration {
	var te *TransientError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}

package issuance

import (
	"errors"
	"fmt"
)

// Failure taxonomy for pipeline steps:
//
//   - transient: network timeouts, provider 5xx/429. The job is rescheduled
//     with backoff and retried; no terminal transition.
//   - permanent: malformed input, rejected payloads, bad credentials. For a
//     wallet platform this fails that platform only; for the whole job (card
//     missing, tenant mismatch) it fails the job immediately with no retry.
//
// Errors that carry neither marker are treated as transient: retrying is the
// safe default for an unclassified failure.

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

func Transientf(format string, args ...any) error {
	return &transientError{err: fmt.Errorf(format, args...)}
}

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func Permanentf(format string, args ...any) error {
	return &permanentError{err: fmt.Errorf(format, args...)}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return !IsPermanent(err)
}

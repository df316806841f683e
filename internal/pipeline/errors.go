package pipeline

import (
	"errors"
	"fmt"
)

// TransientError wraps I/O failures worth retrying (store timeouts, network).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IntegrityError marks a single malformed record. The record is quarantined
// so it cannot block the rest of its batch.
type IntegrityError struct {
	RecordID string
	Reason   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity: record %s: %s", e.RecordID, e.Reason)
}

// InvariantError marks a value outside its contract that could not be safely
// clamped. It must never propagate downstream.
type InvariantError struct {
	RecordID string
	Field    string
	Value    float64
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant: record %s: %s = %g outside contract", e.RecordID, e.Field, e.Value)
}

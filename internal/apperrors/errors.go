// Package apperrors holds the error kinds shared by the conversation, correlation and
// storage layers. Provisioning failures live in the provisioning package.
package apperrors

import "fmt"

// ValidationError is bad user input. The current step is re-prompted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError reports a value already owned by another record.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already taken", e.Field, e.Value)
}

type CorrelationReason string

const (
	CorrelationUnknown     CorrelationReason = "unknown_payment"
	CorrelationDuplicate   CorrelationReason = "duplicate"
	CorrelationUnsupported CorrelationReason = "unsupported_event"
	CorrelationInFlight    CorrelationReason = "in_flight"
)

// CorrelationError is a gateway notification that cannot be matched to a pending
// payment, or that was already processed. It is logged and dropped.
type CorrelationError struct {
	PaymentID string
	Reason    CorrelationReason
}

func (e *CorrelationError) Error() string {
	return fmt.Sprintf("payment %s: %s", e.PaymentID, e.Reason)
}

// PersistenceError is a state store failure. The operation is aborted and the
// conversation step is left where it was.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Persistence wraps err as a PersistenceError, passing nil through.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// Package fault defines the error taxonomy shared by the three ledgers.
// Every failed operation returns exactly one kind plus enough context for the
// caller to correct the call; no partial state survives a fault.
package fault

import (
	"errors"
	"fmt"
)

type Kind string

const (
	InvalidInput    Kind = "invalid_input"    // malformed or out-of-range arguments
	NotFound        Kind = "not_found"        // unknown id or record
	Forbidden       Kind = "forbidden"        // caller lacks the required role or relationship
	InvalidState    Kind = "invalid_state"    // operation not valid for the current lifecycle state
	Duplicate       Kind = "duplicate"        // caller already performed this action
	AlreadyExists   Kind = "already_exists"   // record creation idempotency violated
	NotApplied      Kind = "not_applied"      // address is not in the applicant set
	PaymentMismatch Kind = "payment_mismatch" // attached funds do not equal the required amount
	WindowClosed    Kind = "window_closed"    // the application window has closed
	TooEarly        Kind = "too_early"        // a timing deadline has not been reached yet
	TransferFailed  Kind = "transfer_failed"  // fund movement to a recipient did not succeed
)

type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Msg
}

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the fault kind carried by err, or "" if err is not a fault.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

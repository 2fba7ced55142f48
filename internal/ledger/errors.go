package ledger

import (
	"errors"
	"fmt"
)

// Code is the numeric error code surfaced to clients. The values are part of
// the wire contract and must never be renumbered.
type Code uint32

const (
	CodeNotOwner           Code = 100
	CodeCampaignNotFound   Code = 101
	CodeAlreadyClaimed     Code = 102
	CodeGoalNotMet         Code = 103
	CodeCampaignExpired    Code = 104
	CodeInvalidAmount      Code = 106
	CodeUnauthorized       Code = 107
	CodeAlreadyRefunded    Code = 109
	CodeRefundNotAvailable Code = 110
	CodeInvalidMetadata    Code = 111
	CodeTransferFailed     Code = 112
	CodeTokenMismatch      Code = 113
)

// Error is a typed ledger failure. A returned *Error always means that no
// state was changed.
type Error struct {
	Code Code
	Name string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Name, e.Code)
}

var (
	ErrNotOwner           = &Error{Code: CodeNotOwner, Name: "not owner"}
	ErrCampaignNotFound   = &Error{Code: CodeCampaignNotFound, Name: "campaign not found"}
	ErrAlreadyClaimed     = &Error{Code: CodeAlreadyClaimed, Name: "already claimed"}
	ErrGoalNotMet         = &Error{Code: CodeGoalNotMet, Name: "goal not met"}
	ErrCampaignExpired    = &Error{Code: CodeCampaignExpired, Name: "campaign expired"}
	ErrInvalidAmount      = &Error{Code: CodeInvalidAmount, Name: "invalid amount"}
	ErrUnauthorized       = &Error{Code: CodeUnauthorized, Name: "unauthorized"}
	ErrAlreadyRefunded    = &Error{Code: CodeAlreadyRefunded, Name: "already refunded"}
	ErrRefundNotAvailable = &Error{Code: CodeRefundNotAvailable, Name: "refund not available"}
	ErrInvalidMetadata    = &Error{Code: CodeInvalidMetadata, Name: "invalid metadata reference"}
	ErrTransferFailed     = &Error{Code: CodeTransferFailed, Name: "token transfer failed"}
	ErrTokenMismatch      = &Error{Code: CodeTokenMismatch, Name: "token does not match campaign escrow"}
)

// transferError keeps the transfer service's cause while still matching
// ErrTransferFailed with errors.Is and *Error with errors.As.
type transferError struct {
	cause error
}

func (e *transferError) Error() string {
	return fmt.Sprintf("%s: %v", ErrTransferFailed.Error(), e.cause)
}

func (e *transferError) Unwrap() []error {
	return []error{ErrTransferFailed, e.cause}
}

func transferFailed(err error) error {
	return &transferError{cause: err}
}

// CodeOf extracts the wire code from err. ok is false for errors that did not
// originate in the ledger.
func CodeOf(err error) (Code, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le.Code, true
	}
	return 0, false
}

var errorsByCode = map[Code]*Error{}

func init() {
	for _, e := range []*Error{
		ErrNotOwner, ErrCampaignNotFound, ErrAlreadyClaimed, ErrGoalNotMet,
		ErrCampaignExpired, ErrInvalidAmount, ErrUnauthorized, ErrAlreadyRefunded,
		ErrRefundNotAvailable, ErrInvalidMetadata, ErrTransferFailed, ErrTokenMismatch,
	} {
		errorsByCode[e.Code] = e
	}
}

// ErrorForCode returns the sentinel for a wire code received from the chain.
func ErrorForCode(code Code) (*Error, bool) {
	e, ok := errorsByCode[code]
	return e, ok
}

package ledger

import (
	"errors"
	"fmt"
)

// Sentinel errors for ledger operations. Use errors.Is() to check these;
// operations may wrap them with detail.
var (
	// ErrInvalidInput indicates empty or malformed fields. Local, never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateSerialNumber indicates the serial number is already registered.
	ErrDuplicateSerialNumber = errors.New("serial number already registered")

	// ErrUnauthorized indicates the actor lacks the capability for the operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAssetNotFound indicates the asset id does not exist.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrInvalidTransition indicates the asset is not in the immediately-preceding
	// status required by the requested transition.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrMissingEvidence indicates a sanitization was requested without an
	// evidence reference.
	ErrMissingEvidence = errors.New("missing evidence reference")

	// ErrUserRejected indicates the wallet signer declined to authorize the
	// transition.
	ErrUserRejected = errors.New("authorization rejected by signer")

	// ErrAuthTimeout indicates the wallet signer did not confirm in time.
	// Retryable with the same idempotency key.
	ErrAuthTimeout = errors.New("authorization timed out")
)

// RevertedError is a permanent transport-level rejection. The reason is
// surfaced verbatim to the caller.
type RevertedError struct {
	Reason string
}

func (e *RevertedError) Error() string {
	return "transition reverted: " + e.Reason
}

// TransportError is a transient failure talking to the ledger transport.
// Callers should retry with the same idempotency key; redelivered duplicates
// are absorbed by the receipt window.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports whether the caller should retry the operation with the
// same arguments. The ledger itself never retries.
func Retryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, ErrAuthTimeout)
}

// Package cloberrors defines the engine's discrete error-kind model. Every
// failure the engine can produce carries a stable ordinal that becomes the
// transaction's single-byte exit code; there is no HTTP-shaped error
// envelope because the engine has no HTTP surface.
package cloberrors

import (
	"errors"
	"fmt"
)

// Kind is a closed enumeration of the error ordinals the engine can return.
// Ordinal 0 is reserved for success and is never assigned to a Kind.
type Kind uint8

const (
	// Request errors: the call was well-formed but rejected.
	KindWouldCross Kind = iota + 1
	KindNotOwner
	KindExpired
	KindPriceOutOfBand
	KindSelfTrade
	KindInsufficientBalance
	KindOrderBookFull
	KindDuplicateOrderID

	// Protocol errors: malformed calldata.
	KindInvalidSelector
	KindTruncatedPayload

	// Invariant faults: impossible states read back from storage.
	KindInvariantFault
)

var kindNames = map[Kind]string{
	KindWouldCross:          "would_cross",
	KindNotOwner:            "not_owner",
	KindExpired:             "expired",
	KindPriceOutOfBand:      "price_out_of_band",
	KindSelfTrade:           "self_trade",
	KindInsufficientBalance: "insufficient_balance",
	KindOrderBookFull:       "order_book_full",
	KindDuplicateOrderID:    "duplicate_order_id",
	KindInvalidSelector:     "invalid_selector",
	KindTruncatedPayload:    "truncated_payload",
	KindInvariantFault:      "invariant_fault",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Class groups a Kind into one of the three error classes named by the
// failure model: request errors abort only the enclosing call, protocol
// errors abort the whole batch, invariant faults halt the transaction.
type Class uint8

const (
	ClassRequest Class = iota
	ClassProtocol
	ClassInvariant
)

func (k Kind) Class() Class {
	switch k {
	case KindInvalidSelector, KindTruncatedPayload:
		return ClassProtocol
	case KindInvariantFault:
		return ClassInvariant
	default:
		return ClassRequest
	}
}

// Error wraps a Kind with a human-readable message and, optionally, an
// underlying cause for errors.Unwrap chaining.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether err carries the given Kind, looking through wrapping.
func Is(err error, kind Kind) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// ExitCode returns the single-byte transaction exit code for err: 0 for a
// nil error (success), otherwise the Kind's ordinal.
func ExitCode(err error) uint8 {
	if err == nil {
		return 0
	}
	var ce *Error
	if errors.As(err, &ce) {
		return uint8(ce.Kind)
	}
	return uint8(KindInvariantFault)
}

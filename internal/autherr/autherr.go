// Package autherr is the closed set of failures the authorization core can
// surface at the HTTP boundary. Handlers switch on Kind instead of comparing
// error strings.
package autherr

import (
	"errors"
	"fmt"
)

// Kind discriminates the error variants
type Kind int

const (
	// KindInternal covers storage and unexpected failures. It is the zero
	// value so that unclassified errors are never mistaken for a client fault.
	KindInternal Kind = iota
	// KindAuthentication means no valid session (missing, expired, tampered)
	KindAuthentication
	// KindInvalidCSRF means the double-submit token was missing or mismatched
	KindInvalidCSRF
	// KindInvalidState means the OAuth state nonce did not verify
	KindInvalidState
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindAuthentication:
		return "authentication"
	case KindInvalidCSRF:
		return "invalid_csrf"
	case KindInvalidState:
		return "invalid_state"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a classified failure. Message is safe to show to clients,
// Err is the cause and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, autherr.ErrInvalidCSRF) works
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Kind sentinels for errors.Is
var (
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrInvalidCSRF    = &Error{Kind: KindInvalidCSRF}
	ErrInvalidState   = &Error{Kind: KindInvalidState}
	ErrInternal       = &Error{Kind: KindInternal}
)

func Authentication(message string, cause error) *Error {
	return &Error{Kind: KindAuthentication, Message: message, Err: cause}
}

func InvalidCSRF(message string, cause error) *Error {
	return &Error{Kind: KindInvalidCSRF, Message: message, Err: cause}
}

func InvalidState(message string, cause error) *Error {
	return &Error{Kind: KindInvalidState, Message: message, Err: cause}
}

func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: cause}
}

// KindOf classifies err. Anything not wrapping an *Error is internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

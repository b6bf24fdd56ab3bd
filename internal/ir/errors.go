package ir

import (
	"errors"
	"fmt"
)

// ErrorKind categorises a rejected invocation. Kinds are part of the reply
// wire format and must stay stable across versions.
type ErrorKind string

const (
	// KindDecodeError marks a malformed or unknown inbound message.
	KindDecodeError ErrorKind = "DecodeError"

	// KindNotFound marks an operation targeting a nonexistent record or claim.
	KindNotFound ErrorKind = "NotFound"

	// KindAlreadyExists marks a Register on an account that has a record.
	KindAlreadyExists ErrorKind = "AlreadyExists"

	// KindUnauthorized marks a caller acting on a record it may not mutate.
	KindUnauthorized ErrorKind = "Unauthorized"

	// KindInvalidTarget marks a transfer to self or to the zero identifier.
	KindInvalidTarget ErrorKind = "InvalidTarget"

	// KindLimitReached marks a payload or registry size over a configured limit.
	KindLimitReached ErrorKind = "LimitReached"

	// KindResourceExceeded marks an invocation terminated by the host meter.
	KindResourceExceeded ErrorKind = "ResourceExceeded"

	// KindInternal marks an infrastructure failure (storage, encoding).
	KindInternal ErrorKind = "Internal"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrDecode           = &Error{Kind: KindDecodeError}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrAlreadyExists    = &Error{Kind: KindAlreadyExists}
	ErrUnauthorized     = &Error{Kind: KindUnauthorized}
	ErrInvalidTarget    = &Error{Kind: KindInvalidTarget}
	ErrLimitReached     = &Error{Kind: KindLimitReached}
	ErrResourceExceeded = &Error{Kind: KindResourceExceeded}
	ErrInternal         = &Error{Kind: KindInternal}
)

// Error is a registry error carrying a stable kind.
type Error struct {
	Kind    ErrorKind
	Message string
	// Account is the record the error refers to, when there is one.
	Account *AccountID
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	if e.Account != nil {
		return fmt.Sprintf("%s: %s (account=%s)", e.Kind, e.Message, e.Account.Short())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *Error with the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NewError creates an error of the given kind.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewAccountError creates an error of the given kind about one account.
func NewAccountError(kind ErrorKind, account AccountID, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Account: &account}
}

// KindOf extracts the kind from err. Errors that are not *Error are Internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Package domainerr defines the error taxonomy surfaced by the attendance engine.
//
// Every failure carries a Kind (how callers should react) and a Reason (which rule
// rejected the request). Subject names the offending identifier, e.g. the member email
// that failed an admission check.
package domainerr

import (
	"errors"
	"fmt"
)

// Kind groups reasons by how a caller should react.
type Kind string

const (
	KindConflict           Kind = "conflict"
	KindNotFound           Kind = "not_found"
	KindPreconditionFailed Kind = "precondition_failed"
	KindUnavailable        Kind = "unavailable"
	KindValidation         Kind = "validation"
	KindInternal           Kind = "internal"
)

// Reason names the rule that rejected a request.
type Reason string

const (
	// Conflict
	AlreadyRegistered      Reason = "AlreadyRegistered"
	TeamAlreadyExists      Reason = "TeamAlreadyExists"
	AlreadyInOtherTeam     Reason = "AlreadyInOtherTeam"
	AlreadyLeader          Reason = "AlreadyLeader"
	AlreadyFinalized       Reason = "AlreadyFinalized"
	DuplicateInRequest     Reason = "DuplicateInRequest"
	SelfReference          Reason = "SelfReference"
	EmailTaken             Reason = "EmailTaken"
	ConcurrentModification Reason = "ConcurrentModification"

	// NotFound
	UnknownAttendee     Reason = "UnknownAttendee"
	ActivityUnavailable Reason = "ActivityUnavailable"
	NotRegistered       Reason = "NotRegistered"
	NoTeamYet           Reason = "NoTeamYet"
	NotAMember          Reason = "NotAMember"
	UnknownOrder        Reason = "UnknownOrder"

	// PreconditionFailed
	PaymentRequired   Reason = "PaymentRequired"
	PaymentIncomplete Reason = "PaymentIncomplete"
	LeaderNotPaid     Reason = "LeaderNotPaid"
	TeamTooSmall      Reason = "TeamTooSmall"
	TeamTooLarge      Reason = "TeamTooLarge"
	TeamFull          Reason = "TeamFull"
	NotTeamActivity   Reason = "NotTeamActivity"

	// Validation
	InvalidInput Reason = "InvalidInput"

	// Unavailable / Internal
	StoreUnavailable Reason = "StoreUnavailable"
	Internal         Reason = "Internal"
)

var reasonKinds = map[Reason]Kind{
	AlreadyRegistered:      KindConflict,
	TeamAlreadyExists:      KindConflict,
	AlreadyInOtherTeam:     KindConflict,
	AlreadyLeader:          KindConflict,
	AlreadyFinalized:       KindConflict,
	DuplicateInRequest:     KindConflict,
	SelfReference:          KindConflict,
	EmailTaken:             KindConflict,
	ConcurrentModification: KindConflict,

	UnknownAttendee:     KindNotFound,
	ActivityUnavailable: KindNotFound,
	NotRegistered:       KindNotFound,
	NoTeamYet:           KindNotFound,
	NotAMember:          KindNotFound,
	UnknownOrder:        KindNotFound,

	PaymentRequired:   KindPreconditionFailed,
	PaymentIncomplete: KindPreconditionFailed,
	LeaderNotPaid:     KindPreconditionFailed,
	TeamTooSmall:      KindPreconditionFailed,
	TeamTooLarge:      KindPreconditionFailed,
	TeamFull:          KindPreconditionFailed,
	NotTeamActivity:   KindPreconditionFailed,

	InvalidInput: KindValidation,

	StoreUnavailable: KindUnavailable,
	Internal:         KindInternal,
}

// Kind returns the kind a reason belongs to.
func (r Reason) Kind() Kind {
	if k, ok := reasonKinds[r]; ok {
		return k
	}
	return KindInternal
}

// Error is a domain failure with its reason, offending subject and optional cause.
type Error struct {
	Reason  Reason
	Subject string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Reason)
	}
	if e.Subject != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Subject)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on reason so callers can compare against a template error.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Reason == t.Reason
}

// Kind returns the error's kind.
func (e *Error) Kind() Kind { return e.Reason.Kind() }

// New builds an error for reason with a human readable message.
func New(reason Reason, msg string) *Error {
	return &Error{Reason: reason, Message: msg}
}

// Newf is New with formatting.
func Newf(reason Reason, format string, args ...any) *Error {
	return &Error{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// For builds an error naming the offending identifier.
func For(reason Reason, subject, msg string) *Error {
	return &Error{Reason: reason, Subject: subject, Message: msg}
}

// Wrap attaches reason and message to an underlying cause.
func Wrap(err error, reason Reason, msg string) *Error {
	return &Error{Reason: reason, Message: msg, Err: err}
}

// As extracts the domain error from err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasReason reports whether err carries reason anywhere in its chain.
func HasReason(err error, reason Reason) bool {
	de, ok := As(err)
	return ok && de.Reason == reason
}

// KindOf classifies err, treating foreign errors as internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if de, ok := As(err); ok {
		return de.Kind()
	}
	return KindInternal
}

// IsRetryable reports whether the caller may safely retry unchanged.
func IsRetryable(err error) bool {
	return KindOf(err) == KindUnavailable
}

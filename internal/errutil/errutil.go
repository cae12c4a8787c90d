// Package errutil classifies ledger and signer failures into stable kinds so
// handlers can map them to responses without string-matching at every call
// site.
package errutil

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the coarse failure category of an action.
type Kind string

const (
	UserRejection         Kind = "user_rejection"
	WrongNetwork          Kind = "wrong_network"
	ConfigurationMissing  Kind = "configuration_missing"
	IdentifierInvalid     Kind = "identifier_invalid"
	EncryptionUnavailable Kind = "encryption_unavailable"
	LedgerRejected        Kind = "ledger_rejected"
	NotFound              Kind = "not_found"
	NetworkFailure        Kind = "network_failure"
	Unknown               Kind = "unknown"
)

// ErrActionInFlight is returned when an action is requested on an agreement
// that already has one pending. Callers surface it as a conflict, never as a
// ledger failure.
var ErrActionInFlight = errors.New("an action for this agreement is already in flight")

// Error is a classified failure with a user-facing message and an optional
// suggestion on how to get unstuck.
type Error struct {
	Kind       Kind
	Message    string
	Suggestion string
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a classified error with an explicit kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Suggestion: Suggestion(message)}
}

// Wrap classifies cause under an explicit kind, keeping it unwrappable.
func Wrap(kind Kind, cause error) *Error {
	msg := Message(cause)
	return &Error{Kind: kind, Message: msg, Suggestion: Suggestion(msg), cause: cause}
}

// KindOf returns the kind of a classified error, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Classify inspects an arbitrary error from the signer or the ledger and
// wraps it with the best-fitting kind. Already-classified errors pass
// through untouched.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	// msg is the user-facing text (the bare revert reason when present);
	// the raw error string keeps the markers the taxonomy matches on.
	msg := Message(err)
	raw := strings.ToLower(err.Error())

	switch {
	case IsUserRejection(err):
		return &Error{Kind: UserRejection, Message: "transaction was rejected by the signer", cause: err}
	case strings.Contains(raw, "contract does not exist"),
		strings.Contains(raw, "invite does not exist"):
		return &Error{Kind: NotFound, Message: msg, cause: err}
	case strings.Contains(raw, "wrong network"),
		strings.Contains(raw, "chain id mismatch"),
		strings.Contains(raw, "unsupported chain"):
		return &Error{Kind: WrongNetwork, Message: msg, cause: err}
	case strings.Contains(raw, "execution reverted"),
		strings.Contains(raw, "revert"):
		return &Error{Kind: LedgerRejected, Message: msg, Suggestion: Suggestion(msg), cause: err}
	case strings.Contains(raw, "connection refused"),
		strings.Contains(raw, "timeout"),
		strings.Contains(raw, "deadline exceeded"),
		strings.Contains(raw, "no such host"),
		strings.Contains(raw, "eof"):
		return &Error{Kind: NetworkFailure, Message: msg, cause: err}
	default:
		return &Error{Kind: Unknown, Message: msg, cause: err}
	}
}

// rejection markers seen across wallet backends
var rejectionMarkers = []string{
	"user rejected",
	"user denied",
	"rejected the request",
	"action_rejected",
}

// IsUserRejection reports whether err means the human declined to sign.
// Rejection is not a failure; callers skip the journal and keep state as is.
func IsUserRejection(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "code 4001") || strings.Contains(lower, `"code":4001`) {
		return true
	}
	for _, marker := range rejectionMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Message extracts the most specific human-readable string from a ledger
// error. Revert reasons buried behind "execution reverted:" prefixes win
// over the outer transport message.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	msg := err.Error()
	if i := strings.Index(msg, "execution reverted:"); i >= 0 {
		reason := strings.TrimSpace(msg[i+len("execution reverted:"):])
		if reason != "" {
			return reason
		}
	}
	return msg
}

// suggestion map, ordered so more specific markers match first
var suggestions = []struct {
	marker string
	advice string
}{
	{"deadline", "the deadline must be in the future"},
	{"not the creator", "only the creator of this invite can perform that"},
	{"not a party", "only the client or developer of this agreement can perform that"},
	{"already signed", "this agreement was already signed; refresh and try again"},
	{"already submitted", "this milestone was already submitted; refresh and try again"},
	{"wrong state", "the agreement has moved on; refresh to see its current state"},
	{"invalid state", "the agreement has moved on; refresh to see its current state"},
	{"insufficient", "check that the funding amount covers the agreed total"},
	{"balance", "check that your balance covers the amount plus gas"},
	{"username already taken", "pick a different username"},
}

// Suggestion maps a ledger revert reason to a next step for the user, or ""
// when no advice applies.
func Suggestion(msg string) string {
	lower := strings.ToLower(msg)
	for _, s := range suggestions {
		if strings.Contains(lower, s.marker) {
			return s.advice
		}
	}
	return ""
}

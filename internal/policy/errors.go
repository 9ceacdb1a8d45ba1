// Package policy defines the error taxonomy shared by the protection and escrow engines.
package policy

import "errors"

// Kind is a stable category for programmatic error handling.
// Callers should branch on Kind or Code rather than matching error strings.
type Kind string

const (
	KindPolicyViolation    Kind = "PolicyViolation"
	KindStateConflict      Kind = "StateConflict"
	KindThresholdUnmet     Kind = "ThresholdUnmet"
	KindBalanceViolation   Kind = "BalanceViolation"
	KindProtectionInactive Kind = "ProtectionInactive"
)

// Error is a policy decision that aborted an operation.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches errors by Code so wrapped sentinels compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// Sentinel errors. Compare with errors.Is.
var (
	ErrTransferBlockedByAntiSniper = &Error{Kind: KindPolicyViolation, Code: "TransferBlockedByAntiSniper", Message: "transfer blocked by anti-sniper protection"}
	ErrEscrowAlreadyUnlocked       = &Error{Kind: KindStateConflict, Code: "EscrowAlreadyUnlocked", Message: "escrow is already unlocked"}
	ErrEscrowStillLocked           = &Error{Kind: KindStateConflict, Code: "EscrowStillLocked", Message: "escrow is still locked"}
	ErrInsufficientHolders         = &Error{Kind: KindThresholdUnmet, Code: "InsufficientHolders", Message: "insufficient holders to unlock escrow"}
	ErrInsufficientVolume          = &Error{Kind: KindThresholdUnmet, Code: "InsufficientVolume", Message: "insufficient trading volume to unlock escrow"}
	ErrInsufficientBalance         = &Error{Kind: KindBalanceViolation, Code: "InsufficientBalance", Message: "insufficient balance in escrow"}
	ErrProtectionInactive          = &Error{Kind: KindProtectionInactive, Code: "ProtectionNotActive", Message: "anti-sniper protection not active"}
	ErrAlreadyInitialized          = &Error{Kind: KindStateConflict, Code: "AlreadyInitialized", Message: "record already initialized"}
)

// Wrap returns a copy of sentinel carrying cause. errors.Is(result, sentinel) still holds.
func Wrap(sentinel *Error, cause error) error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: sentinel.Message, Cause: cause}
}

// IsKind reports whether err is (or wraps) an *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the Kind of err, or "" if err is not a policy error.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}

// CodeOf returns the stable Code of err, or "" if unknown.
func CodeOf(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}

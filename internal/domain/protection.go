package domain

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is returned when a state machine is asked to move backwards.
var ErrIllegalTransition = errors.New("illegal state transition")

// ProtectionState is the lifecycle of a launch-protection window.
// The only legal move is Active -> Disabled.
type ProtectionState string

const (
	ProtectionActive   ProtectionState = "ACTIVE"
	ProtectionDisabled ProtectionState = "DISABLED"
)

// String returns the string representation of ProtectionState.
func (s ProtectionState) String() string {
	return string(s)
}

// IsValid checks if the state is a known value.
func (s ProtectionState) IsValid() bool {
	return s == ProtectionActive || s == ProtectionDisabled
}

// Transition returns the state after moving to next.
// Disabled -> Disabled is a no-op; Disabled -> Active is rejected.
func (s ProtectionState) Transition(next ProtectionState) (ProtectionState, error) {
	if !s.IsValid() || !next.IsValid() {
		return s, fmt.Errorf("%w: %q -> %q", ErrIllegalTransition, s, next)
	}
	if s == ProtectionDisabled && next == ProtectionActive {
		return s, fmt.Errorf("%w: protection cannot be re-enabled", ErrIllegalTransition)
	}
	return next, nil
}

// ProtectionWindow is the per-mint anti-sniper record.
// Corresponds to protection_windows table in PostgreSQL.
type ProtectionWindow struct {
	Address         Pubkey          // derived from ["anti_sniper", mint]
	Mint            Pubkey          // protected token mint
	LaunchTimestamp int64           // unix seconds
	DurationSeconds int64           // protection length in seconds
	State           ProtectionState // ACTIVE | DISABLED
	Nonce           uint8           // derivation nonce (bump)
	CreatedAt       int64           // record creation timestamp (ms)
	UpdatedAt       int64           // last mutation timestamp (ms)
}

// ProtectionEnd returns the first second at which the window no longer applies.
// The window covers [LaunchTimestamp, ProtectionEnd).
func (w *ProtectionWindow) ProtectionEnd() int64 {
	return w.LaunchTimestamp + w.DurationSeconds
}

// IsActive reports whether the kill switch has not been pulled.
func (w *ProtectionWindow) IsActive() bool {
	return w.State == ProtectionActive
}

// Disable moves the window to DISABLED. Calling it on a disabled window is a no-op.
func (w *ProtectionWindow) Disable() error {
	next, err := w.State.Transition(ProtectionDisabled)
	if err != nil {
		return err
	}
	w.State = next
	return nil
}

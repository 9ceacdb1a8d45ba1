package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtectionWindow_ProtectionEnd(t *testing.T) {
	w := &ProtectionWindow{LaunchTimestamp: 1000, DurationSeconds: 30, State: ProtectionActive}
	assert.Equal(t, int64(1030), w.ProtectionEnd())
	assert.True(t, w.IsActive())
}

func TestProtectionWindow_DisableIsIdempotent(t *testing.T) {
	w := &ProtectionWindow{State: ProtectionActive}

	require.NoError(t, w.Disable())
	assert.Equal(t, ProtectionDisabled, w.State)

	require.NoError(t, w.Disable())
	assert.Equal(t, ProtectionDisabled, w.State)
}

func TestProtectionState_RejectsReenable(t *testing.T) {
	got, err := ProtectionDisabled.Transition(ProtectionActive)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, ProtectionDisabled, got)

	_, err = ProtectionState("PAUSED").Transition(ProtectionDisabled)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestEscrowState_Transitions(t *testing.T) {
	next, err := EscrowLocked.Transition(EscrowUnlocked)
	require.NoError(t, err)
	assert.Equal(t, EscrowUnlocked, next)

	_, err = EscrowUnlocked.Transition(EscrowLocked)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestEscrowRecord_Unlock(t *testing.T) {
	r := &EscrowRecord{State: EscrowLocked}
	require.NoError(t, r.Unlock())
	assert.True(t, r.IsUnlocked())
}

package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/storage/memory"
)

type failingStore struct {
	memory.PolicyEventStore
}

func (f *failingStore) Insert(context.Context, *domain.PolicyEvent) error {
	return errors.New("unavailable")
}

func TestRecorder_FillsIDAndTimestamp(t *testing.T) {
	store := memory.NewPolicyEventStore()
	r := NewRecorder(store, nil)
	r.now = func() time.Time { return time.UnixMilli(1700000000123) }

	r.Record(context.Background(), domain.PolicyEvent{Kind: domain.EventProtectionInit, Subject: "mintA", Outcome: domain.OutcomeOK})

	events, err := store.GetBySubject(context.Background(), "mintA")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].EventID)
	assert.Equal(t, int64(1700000000123), events[0].TimestampMs)
}

func TestRecorder_RequestIDDeduplicates(t *testing.T) {
	store := memory.NewPolicyEventStore()
	r := NewRecorder(store, nil)
	ctx := WithRequestID(context.Background(), "req-42")

	e := domain.PolicyEvent{Kind: domain.EventEscrowDeposit, Subject: "pool", Amount: 600, Outcome: domain.OutcomeOK}
	r.Record(ctx, e)
	r.Record(ctx, e)

	events, _ := store.GetBySubject(context.Background(), "pool")
	assert.Len(t, events, 1)
	assert.Equal(t, "req-42", RequestID(ctx))
}

func TestRecorder_RetryAfterRejectionKeepsBothEvents(t *testing.T) {
	store := memory.NewPolicyEventStore()
	r := NewRecorder(store, nil)
	ctx := WithRequestID(context.Background(), "req-7")

	r.Record(ctx, domain.PolicyEvent{Kind: domain.EventEscrowDeposit, Subject: "pool", Amount: 600, Outcome: domain.OutcomeRejected, Reason: "InsufficientFunds"})
	r.Record(ctx, domain.PolicyEvent{Kind: domain.EventEscrowDeposit, Subject: "pool", Amount: 600, Outcome: domain.OutcomeOK})

	events, err := store.GetBySubject(context.Background(), "pool")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.NotEqual(t, events[0].EventID, events[1].EventID)
}

func TestRecorder_NilAndFailingStoreDoNotPanic(t *testing.T) {
	var nilRecorder *Recorder
	nilRecorder.Record(context.Background(), domain.PolicyEvent{Kind: domain.EventTransferCheck})

	r := NewRecorder(&failingStore{}, nil)
	r.Record(context.Background(), domain.PolicyEvent{Kind: domain.EventTransferCheck, Subject: "m"})
}

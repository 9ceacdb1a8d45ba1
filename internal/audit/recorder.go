// Package audit appends policy decisions and escrow transitions to the event log.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/idhash"
	"solana-launch-guard/internal/observability"
	"solana-launch-guard/internal/storage"
)

type requestIDKey struct{}

// WithRequestID attaches a caller-supplied request id. Events recorded under the
// same id, kind, subject and outcome collapse into one row.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id carried by ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Recorder writes events best-effort: a failing log never fails the operation.
// A nil *Recorder discards everything.
type Recorder struct {
	store  storage.PolicyEventStore
	logger *zap.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder backed by store.
func NewRecorder(store storage.PolicyEventStore, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, logger: logger, now: time.Now}
}

// Record fills EventID and TimestampMs when unset and appends e.
func (r *Recorder) Record(ctx context.Context, e domain.PolicyEvent) {
	if r == nil || r.store == nil {
		return
	}
	if e.TimestampMs == 0 {
		e.TimestampMs = r.now().UnixMilli()
	}
	if e.EventID == "" {
		if reqID := RequestID(ctx); reqID != "" {
			e.EventID = idhash.ComputeOperationID(string(e.Kind), e.Subject, reqID, string(e.Outcome), e.Reason)
		} else {
			e.EventID = uuid.New().String()
		}
	}

	err := r.store.Insert(ctx, &e)
	if errors.Is(err, storage.ErrDuplicateKey) {
		r.logger.Debug("policy event already recorded", zap.String("event_id", e.EventID))
		return
	}
	observability.RecordEvent(string(e.Kind), err)
	if err != nil {
		r.logger.Warn("record policy event",
			zap.Error(err),
			zap.String("kind", string(e.Kind)),
			zap.String("subject", e.Subject),
		)
	}
}

package audit

import (
	"context"
	"log/slog"
	"time"
)

// Actions emitted by the core. External audit/reporting consumes these.
const (
	ActionTransactionPosted    = "transaction_posted"
	ActionTransactionReversed  = "transaction_reversed"
	ActionPeriodCreated        = "period_created"
	ActionPeriodClosed         = "period_closed"
	ActionLockApplied          = "lock_applied"
	ActionLockReleased         = "lock_released"
	ActionOverrideRecorded     = "override_recorded"
	ActionSettlementTransition = "settlement_transition"
	ActionReconItemResolved    = "reconciliation_item_resolved"
)

// Event describes a single state-changing operation.
type Event struct {
	Action   string
	Entity   string
	EntityID string
	Actor    string
	Detail   map[string]string
	At       time.Time
}

// Recorder forwards audit events to a downstream consumer.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// LogRecorder writes audit events to the structured logger. Production
// deployments replace it with a sink feeding the reporting pipeline.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder constructs a logging audit recorder.
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

// Record writes the event to the structured logger.
func (r *LogRecorder) Record(_ context.Context, event Event) error {
	if r == nil || r.logger == nil {
		return nil
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	attrs := []any{
		"action", event.Action,
		"entity", event.Entity,
		"entity_id", event.EntityID,
		"actor", event.Actor,
		"at", event.At,
	}
	for k, v := range event.Detail {
		attrs = append(attrs, "detail_"+k, v)
	}
	r.logger.Info("audit", attrs...)
	return nil
}

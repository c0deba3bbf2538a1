package trail

import (
	"context"
	"time"

	"github.com/dbakare/gromart/internal/domain/transaction"
	"github.com/google/uuid"
)

// Well-known trail actions emitted by the order pipeline.
const (
	ActionPaymentConfirmed = "payment_confirmed"
	ActionPaymentExpired   = "payment_expired"
	ActionAgentAssigned    = "agent_assigned"
	ActionStatusChanged    = "status_changed"
	ActionOrderCreated     = "order_created"
)

// Event is one immutable audit record for a state transition. Events are
// fire-and-forget from the core's perspective: support and reconciliation
// read them, nothing in the pipeline depends on them.
type Event struct {
	ID          uuid.UUID
	Action      string
	Description string
	PerformerID *uuid.UUID // nil for system-driven transitions
	Reference   transaction.Reference
	Before      map[string]any
	After       map[string]any
	Metadata    map[string]any
	CreatedAt   time.Time
}

// NewEvent builds a trail event for a reference.
func NewEvent(action, description string, ref transaction.Reference) *Event {
	return &Event{
		ID:          uuid.New(),
		Action:      action,
		Description: description,
		Reference:   ref,
		Before:      make(map[string]any),
		After:       make(map[string]any),
		Metadata:    make(map[string]any),
		CreatedAt:   time.Now(),
	}
}

// Repository is the audit trail sink.
type Repository interface {
	Append(ctx context.Context, e *Event) error
	ListByReference(ctx context.Context, ref transaction.Reference) ([]*Event, error)
}

// Package notify is the notification dispatcher boundary. The core emits
// logical events; the surrounding system fans them out to push/email
// channels. Delivery success is never part of the core's guarantees.
package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types emitted by the order pipeline.
const (
	EventPaymentConfirmed = "payment_confirmed"
	EventPaymentExpired   = "payment_expired"
	EventAgentAssigned    = "agent_assigned"
)

// Event is a logical notification.
type Event struct {
	Type       string
	OrderID    uuid.UUID
	CustomerID uuid.UUID
	AgentID    *uuid.UUID
	Data       map[string]any
}

// Notifier fans out events. Implementations must not block the caller on
// delivery; errors are for local logging only.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// LogNotifier logs events instead of delivering them; the default wiring
// until a push/email dispatcher is attached.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, e Event) {
	evt := n.logger.Info().
		Str("event", e.Type).
		Str("order_id", e.OrderID.String()).
		Str("customer_id", e.CustomerID.String())
	if e.AgentID != nil {
		evt = evt.Str("agent_id", e.AgentID.String())
	}
	evt.Msg("notification event")
}

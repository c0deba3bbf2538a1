package order

import (
	"time"

	"github.com/dbakare/gromart/internal/domain/errors"
	"github.com/google/uuid"
)

// Status represents the fulfillment status of an order.
type Status string

const (
	StatusPending           Status = "pending"
	StatusAccepted          Status = "accepted"
	StatusInProgress        Status = "in_progress"
	StatusShoppingCompleted Status = "shopping_completed"
	StatusDelivery          Status = "delivery"
	StatusCompleted         Status = "completed"
	StatusCancelled         Status = "cancelled"
)

// PaymentStatus represents the payment leg of an order.
// Once completed it never reverts.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentExpired   PaymentStatus = "expired"
	PaymentFailed    PaymentStatus = "failed"
)

// DeliveryAddress is the structured drop-off location snapshotted at checkout.
type DeliveryAddress struct {
	Latitude   float64
	Longitude  float64
	Address    string
	City       string
	State      string
	Country    string
	Directions *string
}

// Order is the financial/fulfillment record for a checked-out shopping list.
type Order struct {
	ID                 uuid.UUID
	OrderNumber        string
	CustomerID         uuid.UUID
	ShoppingListID     uuid.UUID
	AgentID            *uuid.UUID
	Status             Status
	PaymentStatus      PaymentStatus
	TotalAmount        int64 // in kobo/cents
	ServiceFee         int64
	DeliveryFee        int64
	PaymentID          *uuid.UUID
	PaymentProcessedAt *time.Time
	DeliveryAddress    DeliveryAddress
	CustomerNotes      *string
	DeliveryMetadata   map[string]any
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

var statusTransitions = map[Status][]Status{
	StatusPending:           {StatusAccepted, StatusCancelled},
	StatusAccepted:          {StatusInProgress, StatusCancelled},
	StatusInProgress:        {StatusShoppingCompleted, StatusCancelled},
	StatusShoppingCompleted: {StatusDelivery, StatusCancelled},
	StatusDelivery:          {StatusCompleted},
	StatusCompleted:         {},
	StatusCancelled:         {},
}

// New creates a pending order for a checked-out shopping list.
func New(orderNumber string, customerID, shoppingListID uuid.UUID, total, serviceFee, deliveryFee int64, addr DeliveryAddress) (*Order, error) {
	if orderNumber == "" {
		return nil, errors.NewValidationError("order_number", "cannot be empty")
	}
	if total <= 0 {
		return nil, errors.NewValidationError("total_amount", "must be greater than 0")
	}
	if serviceFee < 0 || deliveryFee < 0 {
		return nil, errors.NewValidationError("fees", "cannot be negative")
	}
	now := time.Now()
	return &Order{
		ID:               uuid.New(),
		OrderNumber:      orderNumber,
		CustomerID:       customerID,
		ShoppingListID:   shoppingListID,
		Status:           StatusPending,
		PaymentStatus:    PaymentPending,
		TotalAmount:      total,
		ServiceFee:       serviceFee,
		DeliveryFee:      deliveryFee,
		DeliveryAddress:  addr,
		DeliveryMetadata: make(map[string]any),
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// CanTransitionTo checks the fulfillment transition table.
func (o *Order) CanTransitionTo(target Status) bool {
	// Fulfillment must not advance past pending while payment is unresolved.
	if o.PaymentStatus == PaymentPending && target != StatusCancelled {
		return false
	}
	allowed, ok := statusTransitions[o.Status]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// TransitionTo advances the fulfillment status.
func (o *Order) TransitionTo(target Status) error {
	if !o.CanTransitionTo(target) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition order from "+string(o.Status)+" to "+string(target),
			errors.ErrInvalidStateTransition,
		)
	}
	o.Status = target
	o.UpdatedAt = time.Now()
	return nil
}

// MarkPaymentCompleted resolves the payment leg. Idempotent: a second call
// on an already-completed order reports ErrPaymentAlreadyResolved so callers
// can skip re-applying side effects.
func (o *Order) MarkPaymentCompleted(paymentID uuid.UUID) error {
	switch o.PaymentStatus {
	case PaymentCompleted:
		return errors.ErrPaymentAlreadyResolved
	case PaymentExpired, PaymentFailed:
		return errors.NewDomainError(
			"invalid_transition",
			"cannot complete payment in status "+string(o.PaymentStatus),
			errors.ErrInvalidStateTransition,
		)
	}
	now := time.Now()
	o.PaymentStatus = PaymentCompleted
	o.PaymentID = &paymentID
	o.PaymentProcessedAt = &now
	o.UpdatedAt = now
	return nil
}

// MarkPaymentExpired resolves a stale pending payment.
func (o *Order) MarkPaymentExpired() error {
	if o.PaymentStatus != PaymentPending {
		return errors.ErrPaymentAlreadyResolved
	}
	o.PaymentStatus = PaymentExpired
	o.UpdatedAt = time.Now()
	return nil
}

// MarkPaymentFailed resolves a pending payment that the provider rejected.
func (o *Order) MarkPaymentFailed() error {
	if o.PaymentStatus != PaymentPending {
		return errors.ErrPaymentAlreadyResolved
	}
	o.PaymentStatus = PaymentFailed
	o.UpdatedAt = time.Now()
	return nil
}

// IsPaymentResolved reports whether the payment leg reached a terminal state.
func (o *Order) IsPaymentResolved() bool {
	return o.PaymentStatus != PaymentPending
}

// IsAssignable reports whether an agent may still be bound to this order.
func (o *Order) IsAssignable() bool {
	return o.PaymentStatus == PaymentCompleted && o.AgentID == nil && o.Status == StatusPending
}

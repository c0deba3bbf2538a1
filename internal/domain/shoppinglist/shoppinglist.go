package shoppinglist

import (
	"time"

	"github.com/dbakare/gromart/internal/domain/errors"
	"github.com/google/uuid"
)

// Status represents the shopping list status in the state machine
type Status string

const (
	StatusDraft      Status = "draft"
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// PaymentStatus mirrors the linked order's payment progress on the list.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentExpired   PaymentStatus = "expired"
	PaymentFailed    PaymentStatus = "failed"
)

// Item is a single line item on a shopping list.
type Item struct {
	ID             uuid.UUID
	Name           string
	Quantity       int
	Unit           string
	EstimatedPrice int64 // in kobo/cents
	ActualPrice    *int64
	ProductURL     *string
}

// ShoppingList represents a customer's cart for a specific market.
type ShoppingList struct {
	ID             uuid.UUID
	Name           string
	CustomerID     uuid.UUID
	MarketID       uuid.UUID
	AgentID        *uuid.UUID
	Status         Status
	PaymentStatus  PaymentStatus
	EstimatedTotal int64 // in kobo/cents
	Items          []Item
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// transitions is the single source of truth for valid status changes.
// No component outside the lifecycle engine may set Status another way.
var transitions = map[Status][]Status{
	StatusDraft:      {StatusPending, StatusCancelled},
	StatusPending:    {StatusAccepted, StatusDraft, StatusCancelled},
	StatusAccepted:   {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {}, // terminal
	StatusCancelled:  {StatusDraft},
}

// New creates a shopping list in draft for the given customer and market.
func New(name string, customerID, marketID uuid.UUID) (*ShoppingList, error) {
	if name == "" {
		return nil, errors.NewValidationError("name", "cannot be empty")
	}
	now := time.Now()
	return &ShoppingList{
		ID:            uuid.New(),
		Name:          name,
		CustomerID:    customerID,
		MarketID:      marketID,
		Status:        StatusDraft,
		PaymentStatus: PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// CanTransitionTo checks the transition table.
func (l *ShoppingList) CanTransitionTo(target Status) bool {
	allowed, ok := transitions[l.Status]
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

// TransitionTo moves the list to target or fails with ErrInvalidStateTransition.
func (l *ShoppingList) TransitionTo(target Status) error {
	if !l.CanTransitionTo(target) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition shopping list from "+string(l.Status)+" to "+string(target),
			errors.ErrInvalidStateTransition,
		)
	}
	l.Status = target
	l.UpdatedAt = time.Now()
	return nil
}

// AllowedTransitions returns a copy of the valid targets from the current status.
func (l *ShoppingList) AllowedTransitions() []Status {
	allowed := transitions[l.Status]
	out := make([]Status, len(allowed))
	copy(out, allowed)
	return out
}

// IsEditable reports whether items may still be changed by the customer.
func (l *ShoppingList) IsEditable() bool {
	return l.Status == StatusDraft
}

// IsTerminal reports whether the list reached a final status.
func (l *ShoppingList) IsTerminal() bool {
	return l.Status == StatusCompleted
}

// ReplaceItems swaps the item set while the list is still a draft and
// recomputes the estimated total.
func (l *ShoppingList) ReplaceItems(items []Item) error {
	if !l.IsEditable() {
		return errors.ErrShoppingListFrozen
	}
	for i := range items {
		if items[i].Name == "" {
			return errors.NewValidationError("items", "item name cannot be empty")
		}
		if items[i].Quantity <= 0 {
			return errors.NewValidationError("items", "item quantity must be positive")
		}
		if items[i].EstimatedPrice < 0 {
			return errors.NewValidationError("items", "item estimated price cannot be negative")
		}
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
	}
	l.Items = items
	l.EstimatedTotal = l.computeEstimatedTotal()
	l.UpdatedAt = time.Now()
	return nil
}

func (l *ShoppingList) computeEstimatedTotal() int64 {
	var total int64
	for _, it := range l.Items {
		total += it.EstimatedPrice * int64(it.Quantity)
	}
	return total
}

// ActorRole identifies who is requesting a transition.
type ActorRole string

const (
	RoleCustomer ActorRole = "customer"
	RoleAgent    ActorRole = "agent"
	RoleSystem   ActorRole = "system"
)

// Actor is the party requesting a status transition.
type Actor struct {
	ID   uuid.UUID
	Role ActorRole
}

// SystemActor is used for transitions driven by payment and queue events.
var SystemActor = Actor{Role: RoleSystem}

// AuthorizeTransition enforces who may move the list where:
// the owner may cancel or revert to draft, the assigned agent may advance
// fulfillment, and the system may apply any valid transition.
func (l *ShoppingList) AuthorizeTransition(actor Actor, target Status) error {
	switch actor.Role {
	case RoleSystem:
		return nil
	case RoleCustomer:
		if actor.ID != l.CustomerID {
			return errors.ErrForbidden
		}
		switch target {
		case StatusCancelled, StatusDraft, StatusPending:
			return nil
		}
		return errors.ErrForbidden
	case RoleAgent:
		if l.AgentID == nil || actor.ID != *l.AgentID {
			return errors.ErrForbidden
		}
		switch target {
		case StatusProcessing, StatusCompleted:
			return nil
		}
		return errors.ErrForbidden
	}
	return errors.ErrForbidden
}

package transaction

import (
	"time"

	"github.com/dbakare/gromart/internal/domain/errors"
	"github.com/google/uuid"
)

// Status represents the transaction status.
type Status string

const (
	StatusPending           Status = "pending"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusRefunded          Status = "refunded"
	StatusPartiallyRefunded Status = "partially_refunded"
)

// Type classifies the payment attempt.
type Type string

const (
	TypeOrder        Type = "order"
	TypeShoppingList Type = "shopping_list"
	TypeRefund       Type = "refund"
	TypeAdjustment   Type = "adjustment"
)

// ReferenceKind discriminates what a transaction is attached to.
type ReferenceKind string

const (
	RefOrder        ReferenceKind = "order"
	RefShoppingList ReferenceKind = "shopping_list"
)

// Reference is a discriminated link to the entity a transaction pays for.
type Reference struct {
	Kind ReferenceKind
	ID   uuid.UUID
}

// OrderRef builds a reference to an order.
func OrderRef(id uuid.UUID) Reference {
	return Reference{Kind: RefOrder, ID: id}
}

// ShoppingListRef builds a reference to a shopping list.
func ShoppingListRef(id uuid.UUID) Reference {
	return Reference{Kind: RefShoppingList, ID: id}
}

// Valid reports whether the reference has a known kind and a non-nil id.
func (r Reference) Valid() bool {
	if r.ID == uuid.Nil {
		return false
	}
	switch r.Kind {
	case RefOrder, RefShoppingList:
		return true
	}
	return false
}

// Transaction is an immutable payment attempt record against a provider.
// It is created at checkout and mutated only by the webhook processor or
// the expiry checker; it is never deleted.
type Transaction struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	Amount            int64 // in kobo/cents
	Currency          string
	Status            Status
	Type              Type
	PaymentMethod     string
	ProviderName      string
	ProviderReference *string // external reference id issued at initiation
	ProviderTxID      *string // provider-side transaction id from webhooks
	Reference         Reference
	Metadata          map[string]any
	AttemptCount      int
	RefundedAmount    int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}

// New creates a pending transaction for a checkout attempt.
func New(userID uuid.UUID, amount int64, currency string, txType Type, ref Reference, providerName string) (*Transaction, error) {
	if amount <= 0 {
		return nil, errors.NewValidationError("amount", "must be greater than 0")
	}
	if len(currency) != 3 {
		return nil, errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}
	if !ref.Valid() {
		return nil, errors.ErrInvalidReference
	}
	if providerName == "" {
		return nil, errors.NewValidationError("provider", "cannot be empty")
	}
	now := time.Now()
	return &Transaction{
		ID:           uuid.New(),
		UserID:       userID,
		Amount:       amount,
		Currency:     currency,
		Status:       StatusPending,
		Type:         txType,
		ProviderName: providerName,
		Reference:    ref,
		Metadata:     make(map[string]any),
		AttemptCount: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// transitions toward terminal states; refund paths are the only way out of
// completed.
var transitions = map[Status][]Status{
	StatusPending:           {StatusCompleted, StatusFailed},
	StatusCompleted:         {StatusRefunded, StatusPartiallyRefunded},
	StatusPartiallyRefunded: {StatusRefunded},
	StatusFailed:            {},
	StatusRefunded:          {},
}

// CanTransitionTo checks the status transition table.
func (t *Transaction) CanTransitionTo(target Status) bool {
	allowed, ok := transitions[t.Status]
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

// TransitionTo applies a status change or fails with ErrInvalidStateTransition.
func (t *Transaction) TransitionTo(target Status) error {
	if !t.CanTransitionTo(target) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition transaction from "+string(t.Status)+" to "+string(target),
			errors.ErrInvalidStateTransition,
		)
	}
	t.Status = target
	t.UpdatedAt = time.Now()
	if target == StatusCompleted || target == StatusFailed {
		now := time.Now()
		t.CompletedAt = &now
	}
	return nil
}

// MarkCompleted records the provider transaction id and completes the attempt.
func (t *Transaction) MarkCompleted(providerTxID string) error {
	if err := t.TransitionTo(StatusCompleted); err != nil {
		return err
	}
	if providerTxID != "" {
		t.ProviderTxID = &providerTxID
	}
	return nil
}

// MarkFailed terminates the attempt with the provider's reason in metadata.
func (t *Transaction) MarkFailed(reason string) error {
	if err := t.TransitionTo(StatusFailed); err != nil {
		return err
	}
	if reason != "" {
		t.Metadata["failure_reason"] = reason
	}
	return nil
}

// IsTerminal reports whether the attempt can no longer change (outside refunds).
func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusFailed || t.Status == StatusRefunded
}

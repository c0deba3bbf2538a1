package transaction

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence operations for payment attempt records.
type Repository interface {
	Create(ctx context.Context, t *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	GetByProviderReference(ctx context.Context, reference string) (*Transaction, error)
	GetByProviderTxID(ctx context.Context, providerTxID string) (*Transaction, error)
	// GetPendingForReference enforces the at-most-one-awaited invariant:
	// one pending transaction per (user, reference) tuple.
	GetPendingForReference(ctx context.Context, userID uuid.UUID, ref Reference) (*Transaction, error)
	Update(ctx context.Context, t *Transaction) error
	ListByReference(ctx context.Context, ref Reference) ([]*Transaction, error)
}

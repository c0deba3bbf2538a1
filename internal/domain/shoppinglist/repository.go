package shoppinglist

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence operations for shopping lists.
type Repository interface {
	Create(ctx context.Context, l *ShoppingList) error
	GetByID(ctx context.Context, id uuid.UUID) (*ShoppingList, error)
	Update(ctx context.Context, l *ShoppingList) error
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*ShoppingList, error)
}

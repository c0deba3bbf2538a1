package order

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows order listings.
type ListFilter struct {
	CustomerID    *uuid.UUID
	AgentID       *uuid.UUID
	Status        *Status
	PaymentStatus *PaymentStatus
	Limit         int
	Offset        int
	SortBy        string
	SortOrder     string
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByOrderNumber(ctx context.Context, number string) (*Order, error)
	// GetCurrentForList returns the order that is still "live" for a
	// (shopping list, customer) pair: payment pending or completed.
	// Duplicate checkout attempts must resolve to this order.
	GetCurrentForList(ctx context.Context, shoppingListID, customerID uuid.UUID) (*Order, error)
	ExistsByOrderNumber(ctx context.Context, number string) (bool, error)
	Update(ctx context.Context, o *Order) error
	// AssignAgent is a compare-and-set: it binds agentID only if the order
	// is still unassigned, returning ErrAssignmentConflict otherwise.
	AssignAgent(ctx context.Context, orderID, agentID uuid.UUID) error
	List(ctx context.Context, f ListFilter) ([]*Order, error)
}

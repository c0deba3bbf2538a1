// Package lists covers customer-facing shopping list management while the
// list is still editable. All status changes go through the lifecycle
// engine.
package lists

import (
	"context"

	"github.com/dbakare/gromart/internal/domain/errors"
	"github.com/dbakare/gromart/internal/domain/shoppinglist"
	"github.com/google/uuid"
)

// UseCase manages draft shopping lists.
type UseCase struct {
	listRepo shoppinglist.Repository
}

func NewUseCase(listRepo shoppinglist.Repository) *UseCase {
	return &UseCase{listRepo: listRepo}
}

// Create starts a new draft list for a customer and market.
func (uc *UseCase) Create(ctx context.Context, name string, customerID, marketID uuid.UUID, items []shoppinglist.Item) (*shoppinglist.ShoppingList, error) {
	list, err := shoppinglist.New(name, customerID, marketID)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		if err := list.ReplaceItems(items); err != nil {
			return nil, err
		}
	}
	if err := uc.listRepo.Create(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// ReplaceItems swaps the item set of an editable list owned by customerID.
func (uc *UseCase) ReplaceItems(ctx context.Context, listID, customerID uuid.UUID, items []shoppinglist.Item) (*shoppinglist.ShoppingList, error) {
	list, err := uc.listRepo.GetByID(ctx, listID)
	if err != nil {
		return nil, err
	}
	if list.CustomerID != customerID {
		return nil, errors.ErrForbidden
	}
	if err := list.ReplaceItems(items); err != nil {
		return nil, err
	}
	if err := uc.listRepo.Update(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// Get returns a list visible to its owner or assigned agent.
func (uc *UseCase) Get(ctx context.Context, listID, actorID uuid.UUID) (*shoppinglist.ShoppingList, error) {
	list, err := uc.listRepo.GetByID(ctx, listID)
	if err != nil {
		return nil, err
	}
	if list.CustomerID != actorID && (list.AgentID == nil || *list.AgentID != actorID) {
		return nil, errors.ErrForbidden
	}
	return list, nil
}

// Package checkout turns a shopping list into an order with a provider
// payment reference and a scheduled expiry check.
package checkout

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/dbakare/gromart/internal/application/expiry"
	"github.com/dbakare/gromart/internal/application/lifecycle"
	"github.com/dbakare/gromart/internal/domain/errors"
	"github.com/dbakare/gromart/internal/domain/order"
	"github.com/dbakare/gromart/internal/domain/shoppinglist"
	"github.com/dbakare/gromart/internal/domain/trail"
	"github.com/dbakare/gromart/internal/domain/transaction"
	"github.com/dbakare/gromart/internal/providers"
	"github.com/dbakare/gromart/pkg/ordernum"
	"github.com/dbakare/gromart/pkg/retry"
	"github.com/dbakare/gromart/pkg/saga"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const orderNumberAttempts = 5

// UseCase creates orders from shopping lists.
type UseCase struct {
	orderRepo       order.Repository
	listRepo        shoppinglist.Repository
	txnRepo         transaction.Repository
	trailRepo       trail.Repository
	txManager       lifecycle.TransactionManager
	lifecycle       *lifecycle.Engine
	expiryChecker   *expiry.Checker
	providerFactory *providers.Factory
	serviceFeeRate  float64
	logger          zerolog.Logger
}

func NewUseCase(
	orderRepo order.Repository,
	listRepo shoppinglist.Repository,
	txnRepo transaction.Repository,
	trailRepo trail.Repository,
	txManager lifecycle.TransactionManager,
	lc *lifecycle.Engine,
	expiryChecker *expiry.Checker,
	providerFactory *providers.Factory,
	serviceFeeRate float64,
	logger zerolog.Logger,
) *UseCase {
	return &UseCase{
		orderRepo:       orderRepo,
		listRepo:        listRepo,
		txnRepo:         txnRepo,
		trailRepo:       trailRepo,
		txManager:       txManager,
		lifecycle:       lc,
		expiryChecker:   expiryChecker,
		providerFactory: providerFactory,
		serviceFeeRate:  serviceFeeRate,
		logger:          logger,
	}
}

// Request holds checkout input.
type Request struct {
	ShoppingListID  uuid.UUID
	CustomerID      uuid.UUID
	CustomerEmail   string
	Provider        string
	Currency        string
	DeliveryFee     int64
	DeliveryAddress order.DeliveryAddress
	CustomerNotes   *string
}

// Response holds the created (or pre-existing) order and payment details.
type Response struct {
	Order       *order.Order
	Transaction *transaction.Transaction
	PaymentRef  *providers.PaymentReference
	// Existing is true when a duplicate checkout resolved to the order
	// already in flight instead of creating a second one.
	Existing bool
}

// Execute checks out a shopping list. Near-simultaneous requests for the
// same (customer, list) resolve to a single order: the pending-or-paid
// order already on file is returned rather than duplicated.
func (uc *UseCase) Execute(ctx context.Context, req Request) (*Response, error) {
	list, err := uc.listRepo.GetByID(ctx, req.ShoppingListID)
	if err != nil {
		return nil, err
	}
	if list.CustomerID != req.CustomerID {
		return nil, errors.ErrForbidden
	}
	if len(list.Items) == 0 {
		return nil, errors.NewValidationError("items", "cannot check out an empty shopping list")
	}

	// Duplicate suppression before any writes.
	if existing, err := uc.orderRepo.GetCurrentForList(ctx, req.ShoppingListID, req.CustomerID); err == nil && existing != nil {
		txn := uc.pendingTransactionFor(ctx, existing)
		return &Response{Order: existing, Transaction: txn, Existing: true}, nil
	} else if err != nil && !stderrors.Is(err, errors.ErrOrderNotFound) {
		return nil, err
	}

	prov, err := uc.providerFactory.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	// Freeze the list at checkout.
	if list.Status == shoppinglist.StatusDraft {
		actor := shoppinglist.Actor{ID: req.CustomerID, Role: shoppinglist.RoleCustomer}
		if list, err = uc.lifecycle.TransitionShoppingList(ctx, list.ID, actor, shoppinglist.StatusPending); err != nil {
			return nil, err
		}
	} else if list.Status != shoppinglist.StatusPending {
		return nil, errors.NewDomainError(
			"invalid_transition",
			"shopping list in status "+string(list.Status)+" cannot be checked out",
			errors.ErrInvalidStateTransition,
		)
	}

	serviceFee := int64(float64(list.EstimatedTotal) * uc.serviceFeeRate)
	total := list.EstimatedTotal + serviceFee + req.DeliveryFee

	number, err := uc.generateOrderNumber(ctx)
	if err != nil {
		return nil, err
	}

	o, err := order.New(number, req.CustomerID, list.ID, total, serviceFee, req.DeliveryFee, req.DeliveryAddress)
	if err != nil {
		return nil, err
	}
	o.CustomerNotes = req.CustomerNotes

	txn, err := transaction.New(req.CustomerID, total, req.Currency, transaction.TypeOrder, transaction.OrderRef(o.ID), prov.Name())
	if err != nil {
		return nil, err
	}

	var paymentRef *providers.PaymentReference
	s := saga.New("checkout").
		AddStep(saga.Step{
			Name: "persist-order",
			Execute: func(ctx context.Context) error {
				return uc.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
					if err := uc.orderRepo.Create(txCtx, o); err != nil {
						return err
					}
					o.PaymentID = &txn.ID
					if err := uc.txnRepo.Create(txCtx, txn); err != nil {
						return err
					}
					return uc.orderRepo.Update(txCtx, o)
				})
			},
			Compensate: func(ctx context.Context) error {
				return uc.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
					if err := o.MarkPaymentFailed(); err != nil {
						return err
					}
					if err := o.TransitionTo(order.StatusCancelled); err != nil {
						return err
					}
					if err := uc.orderRepo.Update(txCtx, o); err != nil {
						return err
					}
					if err := txn.MarkFailed("payment reference generation failed"); err != nil {
						return err
					}
					return uc.txnRepo.Update(txCtx, txn)
				})
			},
		}).
		AddStep(saga.Step{
			Name: "generate-payment-reference",
			Execute: func(ctx context.Context) error {
				breaker := uc.providerFactory.ReferenceBreaker(prov.Name())
				ref, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*providers.PaymentReference, error) {
					return breaker.Execute(func() (*providers.PaymentReference, error) {
						return prov.GenerateReference(ctx, providers.ReferenceRequest{
							OrderID:       o.ID.String(),
							CustomerID:    req.CustomerID.String(),
							CustomerEmail: req.CustomerEmail,
							AmountCents:   total,
							Currency:      req.Currency,
						})
					})
				})
				if err != nil {
					return fmt.Errorf("generate payment reference: %w", err)
				}
				paymentRef = ref
				txn.ProviderReference = &ref.Reference
				txn.Metadata["virtual_account"] = ref.VirtualAccount
				txn.Metadata["payment_link"] = ref.PaymentLink
				txn.Metadata["reference_expires_at"] = ref.ExpiresAt
				return uc.txnRepo.Update(ctx, txn)
			},
		})

	if _, err := s.Execute(ctx); err != nil {
		return nil, err
	}

	// Schedule the per-order expiry fallback for the payment window.
	if err := uc.expiryChecker.Schedule(ctx, o.ID); err != nil {
		// Non-fatal: the order exists and can still be reconciled manually.
		uc.logger.Error().Err(err).Str("order_id", o.ID.String()).Msg("failed to schedule expiry check")
	}

	ev := trail.NewEvent(trail.ActionOrderCreated, "order created at checkout", transaction.OrderRef(o.ID))
	ev.PerformerID = &req.CustomerID
	ev.After = map[string]any{"order_number": o.OrderNumber, "total": total}
	if err := uc.trailRepo.Append(ctx, ev); err != nil {
		uc.logger.Error().Err(err).Str("order_id", o.ID.String()).Msg("failed to append trail event")
	}

	return &Response{Order: o, Transaction: txn, PaymentRef: paymentRef}, nil
}

func (uc *UseCase) pendingTransactionFor(ctx context.Context, o *order.Order) *transaction.Transaction {
	if o.PaymentID == nil {
		return nil
	}
	txn, err := uc.txnRepo.GetByID(ctx, *o.PaymentID)
	if err != nil {
		return nil
	}
	return txn
}

// generateOrderNumber retries until an unused number is found.
func (uc *UseCase) generateOrderNumber(ctx context.Context) (string, error) {
	for i := 0; i < orderNumberAttempts; i++ {
		number, err := ordernum.New()
		if err != nil {
			return "", err
		}
		exists, err := uc.orderRepo.ExistsByOrderNumber(ctx, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique order number after %d attempts", orderNumberAttempts)
}

// Package lifecycle is the single authoritative place where Order and
// ShoppingList status transitions are validated and applied. No other
// component writes status or paymentStatus directly.
package lifecycle

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/dbakare/gromart/internal/domain/errors"
	"github.com/dbakare/gromart/internal/domain/order"
	"github.com/dbakare/gromart/internal/domain/shoppinglist"
	"github.com/dbakare/gromart/internal/domain/trail"
	"github.com/dbakare/gromart/internal/domain/transaction"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Engine applies coordinated Order/ShoppingList transitions inside one
// atomic unit of work per logical event.
type Engine struct {
	orderRepo order.Repository
	listRepo  shoppinglist.Repository
	txnRepo   transaction.Repository
	trailRepo trail.Repository
	txManager TransactionManager
	logger    zerolog.Logger
}

func NewEngine(
	orderRepo order.Repository,
	listRepo shoppinglist.Repository,
	txnRepo transaction.Repository,
	trailRepo trail.Repository,
	txManager TransactionManager,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		orderRepo: orderRepo,
		listRepo:  listRepo,
		txnRepo:   txnRepo,
		trailRepo: trailRepo,
		txManager: txManager,
		logger:    logger,
	}
}

// TransitionShoppingList validates the actor's permission and the transition
// against the fixed adjacency table, then persists the new status. No other
// field is touched.
func (e *Engine) TransitionShoppingList(ctx context.Context, listID uuid.UUID, actor shoppinglist.Actor, target shoppinglist.Status) (*shoppinglist.ShoppingList, error) {
	var list *shoppinglist.ShoppingList
	var before shoppinglist.Status

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		list, err = e.listRepo.GetByID(txCtx, listID)
		if err != nil {
			return err
		}
		if err := list.AuthorizeTransition(actor, target); err != nil {
			return err
		}
		before = list.Status
		if err := list.TransitionTo(target); err != nil {
			return err
		}
		return e.listRepo.Update(txCtx, list)
	})
	if err != nil {
		return nil, err
	}

	e.appendTrail(ctx, trailEvent(
		trail.ActionStatusChanged,
		fmt.Sprintf("shopping list moved from %s to %s", before, target),
		transaction.ShoppingListRef(listID),
		actorID(actor),
		map[string]any{"status": string(before)},
		map[string]any{"status": string(target)},
		nil,
	))
	return list, nil
}

// PaymentConfirmation carries the provider facts applied on completion.
type PaymentConfirmation struct {
	TransactionID  uuid.UUID // zero when the payment record could not be resolved
	ProviderTxID   string
	ProviderStatus string
	Source         string // "webhook" or "expiry_check"
	Raw            map[string]any
}

// CompletionResult reports what CompletePayment did.
type CompletionResult struct {
	Order            *order.Order
	ShoppingList     *shoppinglist.ShoppingList
	AlreadyCompleted bool
}

// CompletePayment atomically marks the order paid, advances the shopping
// list to accepted, reconciles totals and updates the payment record. A
// second application for the same order is a safe no-op: the already-paid
// order is detected inside the transaction and nothing is rewritten, so
// exactly one payment_confirmed trail event ever exists per order.
func (e *Engine) CompletePayment(ctx context.Context, orderID uuid.UUID, conf PaymentConfirmation) (*CompletionResult, error) {
	res := &CompletionResult{}
	var beforePayment order.PaymentStatus
	var beforeList shoppinglist.Status

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		o, err := e.orderRepo.GetByID(txCtx, orderID)
		if err != nil {
			return err
		}
		res.Order = o
		beforePayment = o.PaymentStatus

		paymentID := uuid.Nil
		if o.PaymentID != nil {
			paymentID = *o.PaymentID
		}
		if conf.TransactionID != uuid.Nil {
			paymentID = conf.TransactionID
		}

		if err := o.MarkPaymentCompleted(paymentID); err != nil {
			if stderrors.Is(err, errors.ErrPaymentAlreadyResolved) && o.PaymentStatus == order.PaymentCompleted {
				res.AlreadyCompleted = true
				return nil
			}
			return err
		}
		if err := e.orderRepo.Update(txCtx, o); err != nil {
			return err
		}

		if paymentID != uuid.Nil {
			txn, err := e.txnRepo.GetByID(txCtx, paymentID)
			if err != nil {
				return err
			}
			if txn.Status == transaction.StatusPending {
				if err := txn.MarkCompleted(conf.ProviderTxID); err != nil {
					return err
				}
				txn.Metadata["provider_status"] = conf.ProviderStatus
				txn.Metadata["confirmation_source"] = conf.Source
				if err := e.txnRepo.Update(txCtx, txn); err != nil {
					return err
				}
			}
		}

		list, err := e.listRepo.GetByID(txCtx, o.ShoppingListID)
		if err != nil {
			return err
		}
		res.ShoppingList = list
		beforeList = list.Status
		if list.Status == shoppinglist.StatusPending {
			if err := list.TransitionTo(shoppinglist.StatusAccepted); err != nil {
				return err
			}
		}
		syncListTotals(list, o)
		return e.listRepo.Update(txCtx, list)
	})
	if err != nil {
		return nil, err
	}
	if res.AlreadyCompleted {
		return res, nil
	}

	ev := trailEvent(
		trail.ActionPaymentConfirmed,
		fmt.Sprintf("payment confirmed via %s", conf.Source),
		transaction.OrderRef(orderID),
		nil,
		map[string]any{"payment_status": string(beforePayment), "list_status": string(beforeList)},
		map[string]any{"payment_status": string(order.PaymentCompleted), "list_status": string(res.ShoppingList.Status)},
		map[string]any{
			"amount":          res.Order.TotalAmount,
			"provider_status": conf.ProviderStatus,
			"provider_tx_id":  conf.ProviderTxID,
			"source":          conf.Source,
		},
	)
	e.appendTrail(ctx, ev)
	return res, nil
}

// ExpiryResult reports what ExpirePayment did.
type ExpiryResult struct {
	Order           *order.Order
	AlreadyResolved bool
}

// ExpirePayment marks a stale pending payment expired. The shopping list
// keeps its fulfillment status; only its payment leg is stamped.
func (e *Engine) ExpirePayment(ctx context.Context, orderID uuid.UUID, reason string) (*ExpiryResult, error) {
	res := &ExpiryResult{}

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		o, err := e.orderRepo.GetByID(txCtx, orderID)
		if err != nil {
			return err
		}
		res.Order = o

		if err := o.MarkPaymentExpired(); err != nil {
			if stderrors.Is(err, errors.ErrPaymentAlreadyResolved) {
				res.AlreadyResolved = true
				return nil
			}
			return err
		}
		if err := e.orderRepo.Update(txCtx, o); err != nil {
			return err
		}

		if o.PaymentID != nil {
			txn, err := e.txnRepo.GetByID(txCtx, *o.PaymentID)
			if err != nil {
				return err
			}
			if txn.Status == transaction.StatusPending {
				if err := txn.MarkFailed(reason); err != nil {
					return err
				}
				if err := e.txnRepo.Update(txCtx, txn); err != nil {
					return err
				}
			}
		}

		list, err := e.listRepo.GetByID(txCtx, o.ShoppingListID)
		if err != nil {
			return err
		}
		list.PaymentStatus = shoppinglist.PaymentExpired
		return e.listRepo.Update(txCtx, list)
	})
	if err != nil {
		return nil, err
	}
	if res.AlreadyResolved {
		return res, nil
	}

	e.appendTrail(ctx, trailEvent(
		trail.ActionPaymentExpired,
		reason,
		transaction.OrderRef(orderID),
		nil,
		map[string]any{"payment_status": string(order.PaymentPending)},
		map[string]any{"payment_status": string(order.PaymentExpired)},
		nil,
	))
	return res, nil
}

// OrderTotals are the authoritative amounts from an order.
type OrderTotals struct {
	TotalAmount   int64
	PaymentStatus order.PaymentStatus
}

// SyncShoppingListTotals reconciles the list's estimated total and payment
// status with the order's authoritative amounts, guarding against drift
// from independent edits.
func (e *Engine) SyncShoppingListTotals(ctx context.Context, listID uuid.UUID, totals OrderTotals) error {
	return e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		list, err := e.listRepo.GetByID(txCtx, listID)
		if err != nil {
			return err
		}
		list.EstimatedTotal = totals.TotalAmount
		list.PaymentStatus = shoppinglist.PaymentStatus(totals.PaymentStatus)
		return e.listRepo.Update(txCtx, list)
	})
}

func syncListTotals(list *shoppinglist.ShoppingList, o *order.Order) {
	list.EstimatedTotal = o.TotalAmount
	list.PaymentStatus = shoppinglist.PaymentStatus(o.PaymentStatus)
}

// appendTrail writes an audit event outside the transactional guarantee;
// trail failures are logged, never propagated.
func (e *Engine) appendTrail(ctx context.Context, ev *trail.Event) {
	if err := e.trailRepo.Append(ctx, ev); err != nil {
		e.logger.Error().Err(err).Str("action", ev.Action).Msg("failed to append trail event")
	}
}

func trailEvent(action, description string, ref transaction.Reference, performer *uuid.UUID, before, after, metadata map[string]any) *trail.Event {
	ev := trail.NewEvent(action, description, ref)
	ev.PerformerID = performer
	if before != nil {
		ev.Before = before
	}
	if after != nil {
		ev.After = after
	}
	if metadata != nil {
		ev.Metadata = metadata
	}
	return ev
}

func actorID(actor shoppinglist.Actor) *uuid.UUID {
	if actor.Role == shoppinglist.RoleSystem || actor.ID == uuid.Nil {
		return nil
	}
	id := actor.ID
	return &id
}

// Package webhook converts asynchronous provider notifications into exactly
// one state transition per logical event, tolerating duplicate, out-of-order
// and late-arriving deliveries.
package webhook

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/dbakare/gromart/internal/application/assignment"
	"github.com/dbakare/gromart/internal/application/lifecycle"
	"github.com/dbakare/gromart/internal/domain/errors"
	"github.com/dbakare/gromart/internal/domain/order"
	"github.com/dbakare/gromart/internal/domain/shoppinglist"
	"github.com/dbakare/gromart/internal/domain/transaction"
	"github.com/dbakare/gromart/internal/jobs"
	"github.com/dbakare/gromart/internal/notify"
	"github.com/dbakare/gromart/internal/providers"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Payload is the normalized shape of a provider webhook. Providers send no
// trustworthy auth header, so payload-shape validation and a fresh status
// double-check substitute for authentication.
type Payload struct {
	Provider     string
	ProviderTxID string
	Reference    string
	Status       string
	// Hints used only when the payment record cannot be resolved.
	OrderIDHint     string
	OrderNumberHint string
	Raw             map[string]any
}

// Processor drives webhook-triggered payment completion.
type Processor struct {
	orderRepo       order.Repository
	listRepo        shoppinglist.Repository
	txnRepo         transaction.Repository
	lifecycle       *lifecycle.Engine
	assignEngine    *assignment.Engine
	providerFactory *providers.Factory
	scheduler       jobs.Scheduler
	notifier        notify.Notifier
	logger          zerolog.Logger
}

func NewProcessor(
	orderRepo order.Repository,
	listRepo shoppinglist.Repository,
	txnRepo transaction.Repository,
	lc *lifecycle.Engine,
	assignEngine *assignment.Engine,
	providerFactory *providers.Factory,
	scheduler jobs.Scheduler,
	notifier notify.Notifier,
	logger zerolog.Logger,
) *Processor {
	return &Processor{
		orderRepo:       orderRepo,
		listRepo:        listRepo,
		txnRepo:         txnRepo,
		lifecycle:       lc,
		assignEngine:    assignEngine,
		providerFactory: providerFactory,
		scheduler:       scheduler,
		notifier:        notifier,
		logger:          logger,
	}
}

// Process applies one provider notification. Business outcomes (order not
// found, non-terminal status, already paid) complete without error so the
// queue never retries them; only infrastructure failures before a decision
// propagate.
func (p *Processor) Process(ctx context.Context, payload Payload) error {
	log := p.logger.With().
		Str("provider", payload.Provider).
		Str("provider_tx_id", payload.ProviderTxID).
		Logger()

	// Step 1: resolve the order.
	o, txn, err := p.resolveOrder(ctx, payload)
	if err != nil {
		return err
	}
	if o == nil {
		// Acknowledge without raising: the provider must not redeliver a
		// webhook for an order that does not exist.
		log.Warn().
			Str("order_id_hint", payload.OrderIDHint).
			Str("order_number_hint", payload.OrderNumberHint).
			Msg("webhook could not be matched to an order, acknowledging")
		return nil
	}
	log = log.With().Str("order_id", o.ID.String()).Logger()

	if o.PaymentStatus == order.PaymentCompleted {
		log.Info().Msg("payment already completed, duplicate webhook ignored")
		return nil
	}

	// Step 2: determine completion. Trust the webhook's status only when a
	// fresh authoritative check agrees, or when the check is unavailable.
	confirmed, providerStatus, err := p.confirmCompletion(ctx, payload, txn)
	if err != nil {
		return err
	}
	if !confirmed {
		log.Info().Str("status", payload.Status).Msg("webhook status not terminal, no state change")
		return nil
	}

	// Step 3: apply completion atomically.
	conf := lifecycle.PaymentConfirmation{
		ProviderTxID:   payload.ProviderTxID,
		ProviderStatus: providerStatus,
		Source:         "webhook",
		Raw:            payload.Raw,
	}
	if txn != nil {
		conf.TransactionID = txn.ID
	}
	res, err := p.lifecycle.CompletePayment(ctx, o.ID, conf)
	if err != nil {
		if stderrors.Is(err, errors.ErrInvalidStateTransition) {
			// Payment already expired/failed; a late confirmation cannot be
			// applied automatically. Log for reconciliation, acknowledge.
			log.Error().Err(err).Msg("late webhook for a resolved payment, manual reconciliation required")
			return nil
		}
		return fmt.Errorf("apply payment completion: %w", err)
	}
	if res.AlreadyCompleted {
		log.Info().Msg("payment already completed, duplicate webhook ignored")
		return nil
	}

	p.notifier.Notify(ctx, notify.Event{
		Type:       notify.EventPaymentConfirmed,
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Data:       map[string]any{"amount": res.Order.TotalAmount},
	})

	// Step 4: trigger agent assignment without blocking acknowledgment.
	p.enqueueAssignment(ctx, o.ID, log)

	// Step 5: re-read both rows and log if either write did not stick.
	p.verifyWrites(ctx, o.ID, res.Order.ShoppingListID, log)

	log.Info().Msg("payment confirmed via webhook")
	return nil
}

// resolveOrder looks up by provider transaction id, then by reference, then
// by the payload's order hints. A nil order means no match anywhere.
func (p *Processor) resolveOrder(ctx context.Context, payload Payload) (*order.Order, *transaction.Transaction, error) {
	txn, err := p.lookupTransaction(ctx, payload)
	if err != nil {
		return nil, nil, err
	}
	if txn != nil {
		o, err := p.orderForTransaction(ctx, txn)
		if err != nil {
			return nil, nil, err
		}
		if o != nil {
			return o, txn, nil
		}
	}

	if payload.OrderIDHint != "" {
		if id, parseErr := uuid.Parse(payload.OrderIDHint); parseErr == nil {
			o, err := p.orderRepo.GetByID(ctx, id)
			if err != nil && !stderrors.Is(err, errors.ErrOrderNotFound) {
				return nil, nil, err
			}
			if o != nil {
				return o, txn, nil
			}
		}
	}

	if payload.OrderNumberHint != "" {
		o, err := p.orderRepo.GetByOrderNumber(ctx, payload.OrderNumberHint)
		if err != nil && !stderrors.Is(err, errors.ErrOrderNotFound) {
			return nil, nil, err
		}
		if o != nil {
			return o, txn, nil
		}
	}

	return nil, txn, nil
}

func (p *Processor) lookupTransaction(ctx context.Context, payload Payload) (*transaction.Transaction, error) {
	if payload.ProviderTxID != "" {
		txn, err := p.txnRepo.GetByProviderTxID(ctx, payload.ProviderTxID)
		if err != nil && !stderrors.Is(err, errors.ErrTransactionNotFound) {
			return nil, err
		}
		if txn != nil {
			return txn, nil
		}
	}
	if payload.Reference != "" {
		txn, err := p.txnRepo.GetByProviderReference(ctx, payload.Reference)
		if err != nil && !stderrors.Is(err, errors.ErrTransactionNotFound) {
			return nil, err
		}
		if txn != nil {
			return txn, nil
		}
	}
	return nil, nil
}

func (p *Processor) orderForTransaction(ctx context.Context, txn *transaction.Transaction) (*order.Order, error) {
	switch txn.Reference.Kind {
	case transaction.RefOrder:
		o, err := p.orderRepo.GetByID(ctx, txn.Reference.ID)
		if err != nil && !stderrors.Is(err, errors.ErrOrderNotFound) {
			return nil, err
		}
		return o, nil
	case transaction.RefShoppingList:
		o, err := p.orderRepo.GetCurrentForList(ctx, txn.Reference.ID, txn.UserID)
		if err != nil && !stderrors.Is(err, errors.ErrOrderNotFound) {
			return nil, err
		}
		return o, nil
	}
	return nil, nil
}

// confirmCompletion treats the payment as completed if either the webhook's
// own status or a fresh authoritative provider check says so. The check
// guards against forged or stale webhooks; if the provider is unreachable
// the webhook's word stands.
func (p *Processor) confirmCompletion(ctx context.Context, payload Payload, txn *transaction.Transaction) (bool, string, error) {
	prov, err := p.providerFactory.Get(payload.Provider)
	if err != nil {
		// Unknown provider name in the payload; fall back to the record's.
		if txn == nil {
			return false, payload.Status, nil
		}
		prov, err = p.providerFactory.Get(txn.ProviderName)
		if err != nil {
			return false, payload.Status, nil
		}
	}

	webhookSaysCompleted := prov.MapStatus(payload.Status) == providers.GatewayCompleted

	reference := payload.Reference
	if reference == "" && txn != nil && txn.ProviderReference != nil {
		reference = *txn.ProviderReference
	}
	if reference == "" {
		return webhookSaysCompleted, payload.Status, nil
	}

	breaker := p.providerFactory.StatusBreaker(prov.Name())
	result, cbErr := breaker.Execute(func() (*providers.StatusResult, error) {
		return prov.CheckStatus(ctx, reference)
	})
	if cbErr != nil {
		p.logger.Warn().Err(cbErr).
			Str("provider", prov.Name()).
			Msg("authoritative status check failed, trusting webhook status")
		return webhookSaysCompleted, payload.Status, nil
	}

	if result.Status == providers.GatewayCompleted {
		return true, string(result.Status), nil
	}
	return false, string(result.Status), nil
}

func (p *Processor) enqueueAssignment(ctx context.Context, orderID uuid.UUID, log zerolog.Logger) {
	err := p.scheduler.Enqueue(ctx, jobs.Job{
		Type:    jobs.TypeAssignment,
		Key:     jobs.DedupeKey(jobs.TypeAssignment, orderID),
		Payload: map[string]any{"order_id": orderID.String(), "attempt": 1},
	})
	if err != nil && !stderrors.Is(err, errors.ErrJobDuplicate) {
		// Assignment failure must not fail the confirmed payment; the
		// expiry of the dedupe key lets a later trigger retry.
		log.Error().Err(err).Msg("failed to enqueue agent assignment")
	}
}

// verifyWrites re-reads both entities after commit and raises a critical
// log if either failed to persist. A consistency alarm, not a correctness
// mechanism.
func (p *Processor) verifyWrites(ctx context.Context, orderID, listID uuid.UUID, log zerolog.Logger) {
	o, err := p.orderRepo.GetByID(ctx, orderID)
	if err != nil || o.PaymentStatus != order.PaymentCompleted {
		log.Error().Err(err).Msg("CRITICAL: order payment status did not persist as completed")
		return
	}
	list, err := p.listRepo.GetByID(ctx, listID)
	if err != nil || list.Status != shoppinglist.StatusAccepted {
		log.Error().Err(err).Msg("CRITICAL: shopping list status did not persist as accepted")
	}
}

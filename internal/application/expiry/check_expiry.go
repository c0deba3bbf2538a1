// Package expiry finalizes payments that never received a webhook. Each
// order schedules its own check at checkout; the checker is state-gated so
// it can never race a webhook into an inconsistent result.
package expiry

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dbakare/gromart/internal/application/lifecycle"
	"github.com/dbakare/gromart/internal/domain/errors"
	"github.com/dbakare/gromart/internal/domain/order"
	"github.com/dbakare/gromart/internal/domain/transaction"
	"github.com/dbakare/gromart/internal/jobs"
	"github.com/dbakare/gromart/internal/notify"
	"github.com/dbakare/gromart/internal/providers"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Checker runs scheduled per-order expiry checks.
type Checker struct {
	orderRepo       order.Repository
	txnRepo         transaction.Repository
	lifecycle       *lifecycle.Engine
	providerFactory *providers.Factory
	scheduler       jobs.Scheduler
	notifier        notify.Notifier
	timeout         time.Duration // payment timeout window
	logger          zerolog.Logger
}

func NewChecker(
	orderRepo order.Repository,
	txnRepo transaction.Repository,
	lc *lifecycle.Engine,
	providerFactory *providers.Factory,
	scheduler jobs.Scheduler,
	notifier notify.Notifier,
	timeout time.Duration,
	logger zerolog.Logger,
) *Checker {
	return &Checker{
		orderRepo:       orderRepo,
		txnRepo:         txnRepo,
		lifecycle:       lc,
		providerFactory: providerFactory,
		scheduler:       scheduler,
		notifier:        notifier,
		timeout:         timeout,
		logger:          logger,
	}
}

// Outcome reports what a check decided.
type Outcome string

const (
	OutcomeRescheduled     Outcome = "rescheduled"
	OutcomeAlreadyResolved Outcome = "already_resolved"
	OutcomeLateCompleted   Outcome = "late_completed"
	OutcomeExpired         Outcome = "expired"
)

// Check runs one expiry decision for an order. Business outcomes always
// return nil so the queue never loops on them; only infrastructure errors
// before a decision (order load failure) propagate to the retry mechanism.
func (c *Checker) Check(ctx context.Context, orderID uuid.UUID) (Outcome, error) {
	log := c.logger.With().Str("order_id", orderID.String()).Logger()

	o, err := c.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		if stderrors.Is(err, errors.ErrOrderNotFound) {
			log.Warn().Msg("expiry check for unknown order, dropping")
			return OutcomeAlreadyResolved, nil
		}
		return "", fmt.Errorf("load order: %w", err)
	}

	// Fired early (queue drift, redeploy replay): re-enqueue for the
	// remaining window instead of acting.
	if remaining := c.timeout - time.Since(o.CreatedAt); remaining > 0 {
		if err := c.reschedule(ctx, o.ID, remaining); err != nil {
			return "", err
		}
		log.Info().Dur("remaining", remaining).Msg("expiry check fired early, rescheduled")
		return OutcomeRescheduled, nil
	}

	if o.IsPaymentResolved() {
		log.Info().Str("payment_status", string(o.PaymentStatus)).Msg("payment already resolved, expiry check is a no-op")
		return OutcomeAlreadyResolved, nil
	}

	status := c.authoritativeStatus(ctx, o, log)
	switch status {
	case providers.GatewayCompleted:
		return c.applyLateCompletion(ctx, o, log)
	default:
		// expired, failed, still pending past the window, or provider
		// unreachable: local timeout wins over waiting indefinitely.
		return c.applyExpiry(ctx, o, status, log)
	}
}

// authoritativeStatus queries the provider; on any failure it reports
// expired so the local timeout decides.
func (c *Checker) authoritativeStatus(ctx context.Context, o *order.Order, log zerolog.Logger) providers.GatewayStatus {
	txn := c.pendingTransaction(ctx, o)
	if txn == nil || txn.ProviderReference == nil {
		log.Warn().Msg("no provider reference to check, falling back to local expiry")
		return providers.GatewayExpired
	}

	prov, err := c.providerFactory.Get(txn.ProviderName)
	if err != nil {
		log.Warn().Err(err).Msg("unknown provider on payment record, falling back to local expiry")
		return providers.GatewayExpired
	}

	breaker := c.providerFactory.StatusBreaker(prov.Name())
	result, cbErr := breaker.Execute(func() (*providers.StatusResult, error) {
		return prov.CheckStatus(ctx, *txn.ProviderReference)
	})
	if cbErr != nil {
		log.Warn().Err(cbErr).Str("provider", prov.Name()).Msg("provider status check failed, falling back to local expiry")
		return providers.GatewayExpired
	}
	return result.Status
}

func (c *Checker) pendingTransaction(ctx context.Context, o *order.Order) *transaction.Transaction {
	if o.PaymentID != nil {
		if txn, err := c.txnRepo.GetByID(ctx, *o.PaymentID); err == nil {
			return txn
		}
	}
	txn, err := c.txnRepo.GetPendingForReference(ctx, o.CustomerID, transaction.OrderRef(o.ID))
	if err != nil {
		return nil
	}
	return txn
}

func (c *Checker) applyLateCompletion(ctx context.Context, o *order.Order, log zerolog.Logger) (Outcome, error) {
	res, err := c.lifecycle.CompletePayment(ctx, o.ID, lifecycle.PaymentConfirmation{
		ProviderStatus: string(providers.GatewayCompleted),
		Source:         "expiry_check",
	})
	if err != nil {
		return "", fmt.Errorf("apply late completion: %w", err)
	}
	if res.AlreadyCompleted {
		return OutcomeAlreadyResolved, nil
	}

	c.notifier.Notify(ctx, notify.Event{
		Type:       notify.EventPaymentConfirmed,
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
	})
	if err := c.scheduler.Enqueue(ctx, jobs.Job{
		Type:    jobs.TypeAssignment,
		Key:     jobs.DedupeKey(jobs.TypeAssignment, o.ID),
		Payload: map[string]any{"order_id": o.ID.String(), "attempt": 1},
	}); err != nil && !stderrors.Is(err, errors.ErrJobDuplicate) {
		log.Error().Err(err).Msg("failed to enqueue agent assignment after late completion")
	}

	log.Info().Msg("payment confirmed late, detected via expiry check")
	return OutcomeLateCompleted, nil
}

func (c *Checker) applyExpiry(ctx context.Context, o *order.Order, status providers.GatewayStatus, log zerolog.Logger) (Outcome, error) {
	reason := "payment window elapsed without confirmation"
	if status == providers.GatewayFailed {
		reason = "provider reported the payment as failed"
	}

	res, err := c.lifecycle.ExpirePayment(ctx, o.ID, reason)
	if err != nil {
		return "", fmt.Errorf("apply expiry: %w", err)
	}
	if res.AlreadyResolved {
		// The webhook won the race after our status gate; that is fine.
		return OutcomeAlreadyResolved, nil
	}

	c.notifier.Notify(ctx, notify.Event{
		Type:       notify.EventPaymentExpired,
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
	})
	log.Info().Str("provider_status", string(status)).Msg("pending payment expired")
	return OutcomeExpired, nil
}

// Schedule enqueues the per-order expiry check at checkout time, delayed by
// the full payment window.
func (c *Checker) Schedule(ctx context.Context, orderID uuid.UUID) error {
	return c.reschedule(ctx, orderID, c.timeout)
}

func (c *Checker) reschedule(ctx context.Context, orderID uuid.UUID, delay time.Duration) error {
	err := c.scheduler.Enqueue(ctx, jobs.Job{
		Type:    jobs.TypeExpiry,
		Key:     jobs.DedupeKey(jobs.TypeExpiry, orderID),
		Payload: map[string]any{"order_id": orderID.String()},
		Delay:   delay,
	})
	if stderrors.Is(err, errors.ErrJobDuplicate) {
		return nil
	}
	return err
}

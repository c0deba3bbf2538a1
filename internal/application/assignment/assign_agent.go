// Package assignment binds fulfillment agents to paid orders.
package assignment

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/dbakare/gromart/internal/application/lifecycle"
	"github.com/dbakare/gromart/internal/domain/agent"
	"github.com/dbakare/gromart/internal/domain/errors"
	"github.com/dbakare/gromart/internal/domain/order"
	"github.com/dbakare/gromart/internal/domain/shoppinglist"
	"github.com/dbakare/gromart/internal/domain/trail"
	"github.com/dbakare/gromart/internal/domain/transaction"
	"github.com/dbakare/gromart/internal/jobs"
	"github.com/dbakare/gromart/internal/notify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const candidateLimit = 10

// Engine selects and assigns agents to paid orders.
type Engine struct {
	orderRepo order.Repository
	listRepo  shoppinglist.Repository
	agentRepo agent.Repository
	trailRepo trail.Repository
	txManager lifecycle.TransactionManager
	scheduler jobs.Scheduler
	notifier  notify.Notifier
	policy    jobs.RetryPolicy
	logger    zerolog.Logger
}

func NewEngine(
	orderRepo order.Repository,
	listRepo shoppinglist.Repository,
	agentRepo agent.Repository,
	trailRepo trail.Repository,
	txManager lifecycle.TransactionManager,
	scheduler jobs.Scheduler,
	notifier notify.Notifier,
	policy jobs.RetryPolicy,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		orderRepo: orderRepo,
		listRepo:  listRepo,
		agentRepo: agentRepo,
		trailRepo: trailRepo,
		txManager: txManager,
		scheduler: scheduler,
		notifier:  notifier,
		policy:    policy,
		logger:    logger,
	}
}

// AvailableAgentsForOrder returns ranked candidates for the order's market.
// An empty slice is a valid, non-error result.
func (e *Engine) AvailableAgentsForOrder(ctx context.Context, shoppingListID uuid.UUID, excluded []uuid.UUID) ([]*agent.Agent, error) {
	list, err := e.listRepo.GetByID(ctx, shoppingListID)
	if err != nil {
		return nil, err
	}
	return e.agentRepo.AvailableForMarket(ctx, list.MarketID, excluded, candidateLimit)
}

// AssignToAgent atomically binds agentID to the order, advances the order
// to accepted and marks the agent busy. Assignment is a compare-and-set:
// a concurrent assignment surfaces as ErrAssignmentConflict.
func (e *Engine) AssignToAgent(ctx context.Context, orderID, agentID uuid.UUID) error {
	var o *order.Order
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		o, err = e.orderRepo.GetByID(txCtx, orderID)
		if err != nil {
			return err
		}
		if o.PaymentStatus != order.PaymentCompleted {
			return errors.NewDomainError(
				"order_unpaid",
				"cannot assign an agent before payment completes",
				errors.ErrInvalidStateTransition,
			)
		}
		if o.AgentID != nil {
			if *o.AgentID == agentID {
				return nil // already ours
			}
			return errors.ErrAssignmentConflict
		}

		if err := e.agentRepo.MarkBusy(txCtx, agentID); err != nil {
			return err
		}
		if err := e.orderRepo.AssignAgent(txCtx, orderID, agentID); err != nil {
			return err
		}
		o.AgentID = &agentID
		if err := o.TransitionTo(order.StatusAccepted); err != nil {
			return err
		}
		if err := e.orderRepo.Update(txCtx, o); err != nil {
			return err
		}

		list, err := e.listRepo.GetByID(txCtx, o.ShoppingListID)
		if err != nil {
			return err
		}
		list.AgentID = &agentID
		return e.listRepo.Update(txCtx, list)
	})
	if err != nil {
		return err
	}

	ev := trail.NewEvent(trail.ActionAgentAssigned, "agent assigned to order", transaction.OrderRef(orderID))
	ev.After = map[string]any{"agent_id": agentID.String(), "status": string(order.StatusAccepted)}
	if trailErr := e.trailRepo.Append(ctx, ev); trailErr != nil {
		e.logger.Error().Err(trailErr).Str("order_id", orderID.String()).Msg("failed to append trail event")
	}

	e.notifier.Notify(ctx, notify.Event{
		Type:       notify.EventAgentAssigned,
		OrderID:    orderID,
		CustomerID: o.CustomerID,
		AgentID:    &agentID,
	})
	return nil
}

// Result reports the outcome of one assignment attempt.
type Result struct {
	Assigned    bool
	AgentID     *uuid.UUID
	Rescheduled bool
}

// AssignOrder finds the best available agent for a paid order and assigns
// it. No available agent is a normal outcome: a deduplicated retry job is
// scheduled and the order stays paid-but-unassigned. Exhausted attempts
// raise a critical log for manual intervention, never an error.
func (e *Engine) AssignOrder(ctx context.Context, orderID uuid.UUID, attempt int) (*Result, error) {
	o, err := e.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if o.AgentID != nil {
		return &Result{Assigned: true, AgentID: o.AgentID}, nil
	}
	if !o.IsAssignable() {
		e.logger.Info().
			Str("order_id", orderID.String()).
			Str("payment_status", string(o.PaymentStatus)).
			Msg("order not assignable, skipping")
		return &Result{}, nil
	}

	candidates, err := e.AvailableAgentsForOrder(ctx, o.ShoppingListID, nil)
	if err != nil {
		return nil, fmt.Errorf("rank candidates: %w", err)
	}

	var excluded []uuid.UUID
	for _, cand := range candidates {
		err := e.AssignToAgent(ctx, orderID, cand.ID)
		if err == nil {
			return &Result{Assigned: true, AgentID: &cand.ID}, nil
		}
		if stderrors.Is(err, errors.ErrAssignmentConflict) {
			// Another worker won the race for this order.
			return &Result{Assigned: true, AgentID: nil}, nil
		}
		if stderrors.Is(err, errors.ErrAgentUnavailable) {
			excluded = append(excluded, cand.ID)
			continue
		}
		return nil, err
	}

	return e.scheduleRetry(ctx, o, attempt)
}

func (e *Engine) scheduleRetry(ctx context.Context, o *order.Order, attempt int) (*Result, error) {
	if attempt >= e.policy.MaxAttempts {
		e.logger.Error().
			Str("order_id", o.ID.String()).
			Str("order_number", o.OrderNumber).
			Int("attempts", attempt).
			Msg("CRITICAL: no agent available after exhausting retries, manual intervention required")
		return &Result{}, nil
	}

	delay := e.policy.BackoffFor(attempt)
	err := e.scheduler.Enqueue(ctx, jobs.Job{
		Type: jobs.TypeAssignment,
		Key:  jobs.DedupeKey(jobs.TypeAssignment, o.ID),
		Payload: map[string]any{
			"order_id": o.ID.String(),
			"attempt":  attempt + 1,
		},
		Delay:       delay,
		MaxAttempts: e.policy.MaxAttempts,
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrJobDuplicate) {
			return &Result{Rescheduled: true}, nil
		}
		return nil, fmt.Errorf("schedule assignment retry: %w", err)
	}

	e.logger.Info().
		Str("order_id", o.ID.String()).
		Dur("delay", delay).
		Int("next_attempt", attempt+1).
		Msg("no agents available, assignment retry scheduled")
	return &Result{Rescheduled: true}, nil
}

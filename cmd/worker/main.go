package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dbakare/gromart/internal/application/assignment"
	"github.com/dbakare/gromart/internal/application/expiry"
	"github.com/dbakare/gromart/internal/application/lifecycle"
	"github.com/dbakare/gromart/internal/application/webhook"
	"github.com/dbakare/gromart/internal/bootstrap"
	domainErrors "github.com/dbakare/gromart/internal/domain/errors"
	infraRedis "github.com/dbakare/gromart/internal/infrastructure/redis"
	"github.com/dbakare/gromart/internal/jobs"
	"github.com/dbakare/gromart/internal/notify"
	"github.com/dbakare/gromart/internal/providers"
	"github.com/dbakare/gromart/internal/repository/postgres"
)

// handler runs one delivered job. A returned error means an infrastructure
// failure the queue should retry; business outcomes are absorbed inside.
type handler func(ctx context.Context, m infraRedis.Message) error

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "gromart-worker", "gromart_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	orderRepo := postgres.NewOrderRepository(app.Pool)
	listRepo := postgres.NewShoppingListRepository(app.Pool)
	txnRepo := postgres.NewTransactionRepository(app.Pool)
	agentRepo := postgres.NewAgentRepository(app.Pool)
	trailRepo := postgres.NewTrailRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Infrastructure ---
	policy := jobs.RetryPolicy{
		MaxAttempts:    app.Config.Assignment.MaxAttempts,
		InitialBackoff: app.Config.Assignment.InitialBackoff,
		MaxBackoff:     app.Config.Assignment.MaxBackoff,
		Multiplier:     2.0,
	}
	queue := infraRedis.NewQueue(app.Redis, policy, app.Logger)
	providerFactory := providers.NewFactory()
	notifier := notify.NewLogNotifier(app.Logger)

	// --- Pipeline engines ---
	lifecycleEngine := lifecycle.NewEngine(orderRepo, listRepo, txnRepo, trailRepo, txManager, app.Logger)
	expiryChecker := expiry.NewChecker(orderRepo, txnRepo, lifecycleEngine, providerFactory, queue, notifier, app.Config.Payment.TimeoutWindow, app.Logger)
	assignEngine := assignment.NewEngine(orderRepo, listRepo, agentRepo, trailRepo, txManager, queue, notifier, policy, app.Logger)
	webhookProcessor := webhook.NewProcessor(orderRepo, listRepo, txnRepo, lifecycleEngine, assignEngine, providerFactory, queue, notifier, app.Logger)

	w := &worker{
		app:   app,
		queue: queue,
	}

	handlers := map[jobs.Type]handler{
		jobs.TypeWebhook: func(ctx context.Context, m infraRedis.Message) error {
			return webhookProcessor.Process(ctx, webhookPayload(m))
		},
		jobs.TypeExpiry: func(ctx context.Context, m infraRedis.Message) error {
			orderID, ok := payloadOrderID(m)
			if !ok {
				app.Logger.Error().Str("job_key", m.Job.Key).Msg("expiry job without order_id, dropping")
				return nil
			}
			outcome, err := expiryChecker.Check(ctx, orderID)
			if err != nil {
				return err
			}
			app.Metrics.ExpiryChecksTotal.WithLabelValues(string(outcome)).Inc()
			return nil
		},
		jobs.TypeAssignment: func(ctx context.Context, m infraRedis.Message) error {
			orderID, ok := payloadOrderID(m)
			if !ok {
				app.Logger.Error().Str("job_key", m.Job.Key).Msg("assignment job without order_id, dropping")
				return nil
			}
			attempt := payloadInt(m, "attempt", 1)
			res, err := assignEngine.AssignOrder(ctx, orderID, attempt)
			if err != nil {
				return err
			}
			switch {
			case res.Assigned:
				app.Metrics.AssignmentsTotal.WithLabelValues("assigned").Inc()
				app.Metrics.AssignmentAttempts.Observe(float64(attempt))
			case res.Rescheduled:
				app.Metrics.AssignmentsTotal.WithLabelValues("rescheduled").Inc()
			default:
				app.Metrics.AssignmentsTotal.WithLabelValues("skipped").Inc()
			}
			return nil
		},
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Delayed-job mover: promotes due jobs onto the ready streams.
	g.Go(func() error {
		return w.runMover(gCtx)
	})

	// 2. One consumer loop per job type with bounded in-flight jobs.
	for jobType, h := range handlers {
		jobType, h := jobType, h
		g.Go(func() error {
			return w.runConsumer(gCtx, jobType, h)
		})
	}

	// 3. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

type worker struct {
	app   *bootstrap.App
	queue *infraRedis.Queue
}

// runMover ticks the delayed sets of every job type.
func (w *worker) runMover(ctx context.Context) error {
	ticker := time.NewTicker(w.app.Config.Worker.MoverInterval)
	defer ticker.Stop()

	types := []jobs.Type{jobs.TypeWebhook, jobs.TypeExpiry, jobs.TypeAssignment}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		for _, t := range types {
			if _, err := w.queue.MoveDue(ctx, t); err != nil {
				w.app.Logger.Error().Err(err).Str("job_type", string(t)).Msg("Failed to move due jobs")
			}
		}
	}
}

// runConsumer reads one job type through a consumer group and dispatches to
// the handler with bounded concurrency.
func (w *worker) runConsumer(ctx context.Context, jobType jobs.Type, h handler) error {
	cfg := w.app.Config.Worker
	consumer := infraRedis.NewConsumer(
		w.app.Redis,
		w.queue,
		jobType,
		cfg.ConsumerGroup,
		w.app.Config.InstanceID,
		cfg.BatchSize,
		cfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		return err
	}

	w.app.Logger.Info().
		Str("job_type", string(jobType)).
		Str("group", cfg.ConsumerGroup).
		Str("consumer", w.app.Config.InstanceID).
		Msg("Consumer started, listening for jobs...")

	sem := make(chan struct{}, cfg.Concurrency)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		messages, err := consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.app.Logger.Error().Err(err).Str("job_type", string(jobType)).Msg("Failed to read from stream")
			time.Sleep(1 * time.Second)
			continue
		}

		for _, m := range messages {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			m := m
			go func() {
				defer func() { <-sem }()
				w.handleMessage(ctx, consumer, m, h)
			}()
		}
	}
}

// handleMessage runs one job under the per-order lock, retries or
// dead-letters it on infrastructure failure, and always acks the delivery.
func (w *worker) handleMessage(ctx context.Context, consumer *infraRedis.Consumer, m infraRedis.Message, h handler) {
	log := w.app.Logger.With().
		Str("job_type", string(m.Job.Type)).
		Str("job_key", m.Job.Key).
		Int("attempt", m.Attempt).
		Logger()

	start := time.Now()
	err := w.withOrderLock(ctx, m, log, func() error {
		return h(ctx, m)
	})
	w.app.Metrics.JobProcessingDuration.WithLabelValues(string(m.Job.Type)).Observe(time.Since(start).Seconds())

	if err != nil {
		log.Error().Err(err).Msg("Job failed")
		w.app.Metrics.JobsProcessed.WithLabelValues(string(m.Job.Type), "error").Inc()

		if retryErr := w.queue.Retry(ctx, m); retryErr != nil {
			if stderrors.Is(retryErr, domainErrors.ErrMaxAttemptsReached) {
				w.app.Metrics.JobsDeadLettered.WithLabelValues(string(m.Job.Type)).Inc()
				if dlErr := w.queue.DeadLetter(ctx, m, err.Error()); dlErr != nil {
					log.Error().Err(dlErr).Msg("Failed to dead-letter job")
				}
			} else {
				log.Error().Err(retryErr).Msg("Failed to schedule job retry")
			}
		}
	} else {
		w.app.Metrics.JobsProcessed.WithLabelValues(string(m.Job.Type), "success").Inc()
	}

	if ackErr := consumer.Ack(ctx, m.ID); ackErr != nil {
		log.Error().Err(ackErr).Msg("Failed to ack message")
	}
}

// withOrderLock serializes pipeline work per order across worker instances.
// Jobs without an order id run unlocked.
func (w *worker) withOrderLock(ctx context.Context, m infraRedis.Message, log zerolog.Logger, fn func() error) error {
	orderID, ok := payloadOrderID(m)
	if !ok {
		return fn()
	}

	lock := infraRedis.NewOrderLock(w.app.Redis, orderID, w.app.Config.Payment.LockTTL)
	if err := lock.AcquireWithRetry(ctx, 3, 200*time.Millisecond); err != nil {
		// Another worker holds the order; retrying later is cheaper than
		// waiting out their transaction.
		log.Warn().Str("order_id", orderID.String()).Msg("Could not acquire order lock")
		return fmt.Errorf("acquire order lock: %w", err)
	}
	defer lock.Release(ctx)

	return fn()
}

// --- payload helpers ---

func payloadOrderID(m infraRedis.Message) (uuid.UUID, bool) {
	raw, _ := m.Job.Payload["order_id"].(string)
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// payloadInt reads a numeric payload field; JSON round-trips numbers as
// float64.
func payloadInt(m infraRedis.Message, key string, fallback int) int {
	switch v := m.Job.Payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

func payloadString(m infraRedis.Message, key string) string {
	s, _ := m.Job.Payload[key].(string)
	return s
}

func webhookPayload(m infraRedis.Message) webhook.Payload {
	raw, _ := m.Job.Payload["raw"].(map[string]any)
	return webhook.Payload{
		Provider:        payloadString(m, "provider"),
		ProviderTxID:    payloadString(m, "provider_tx_id"),
		Reference:       payloadString(m, "reference"),
		Status:          payloadString(m, "status"),
		OrderIDHint:     payloadString(m, "order_id"),
		OrderNumberHint: payloadString(m, "order_number"),
		Raw:             raw,
	}
}

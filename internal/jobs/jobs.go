package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type identifies a background job kind. Each type has its own queue,
// consumer group, and bounded worker concurrency.
type Type string

const (
	TypeWebhook    Type = "payment_webhook"
	TypeExpiry     Type = "payment_expiry"
	TypeAssignment Type = "agent_assignment"
)

// Job is a unit of background work. Payload carries ids and minimal context
// only; handlers re-read current state before acting.
type Job struct {
	Type        Type
	Key         string // dedupe key; one outstanding job per key
	Payload     map[string]any
	Delay       time.Duration
	MaxAttempts int
}

// Scheduler is the job-scheduling capability injected into core components.
// Implementations must provide at-least-once delivery, per-key dedupe and
// delayed scheduling.
type Scheduler interface {
	Enqueue(ctx context.Context, job Job) error
}

// RetryPolicy is the single retry configuration shared by webhook, expiry
// and assignment jobs: bounded attempts with exponential backoff, and
// deterministic dedupe keys derived from the order id.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryPolicy matches the queue defaults used across the pipeline.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: 30 * time.Second,
		MaxBackoff:     15 * time.Minute,
		Multiplier:     2.0,
	}
}

// BackoffFor returns the delay before the given attempt (1-based).
func (p RetryPolicy) BackoffFor(attempt int) time.Duration {
	if attempt <= 1 {
		return p.InitialBackoff
	}
	d := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return d
}

// DedupeKey derives the deterministic job key for an order, so concurrent
// triggers of the same logical work collapse into one outstanding job.
func DedupeKey(t Type, orderID uuid.UUID) string {
	return string(t) + ":" + orderID.String()
}

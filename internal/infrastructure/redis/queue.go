package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dbakare/gromart/internal/domain/errors"
	"github.com/dbakare/gromart/internal/jobs"
)

const (
	// DLQStream collects jobs abandoned after exhausting their attempts.
	DLQStream = "jobs:dlq"

	dedupePrefix = "jobs:dedupe:"

	// dedupeSafetyTTL caps how long a dedupe key can outlive its job if the
	// delivery path crashed before releasing it.
	dedupeSafetyTTL = 30 * time.Minute
)

func readyStream(t jobs.Type) string { return "jobs:" + string(t) }
func delayedZSet(t jobs.Type) string { return "jobs:" + string(t) + ":delayed" }
func dedupeKey(key string) string    { return dedupePrefix + key }

// envelope is the wire form of a job on the stream and the delayed set.
type envelope struct {
	ID          string         `json:"id"`
	Type        jobs.Type      `json:"type"`
	Key         string         `json:"key,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	Attempt     int            `json:"attempt"`
	MaxAttempts int            `json:"max_attempts"`
	EnqueuedAt  time.Time      `json:"enqueued_at"`
}

// Message is a delivered job plus the stream bookkeeping needed to ack,
// retry or dead-letter it.
type Message struct {
	ID          string
	Job         jobs.Job
	Attempt     int
	MaxAttempts int
	EnqueuedAt  time.Time
}

// Queue is a Redis-backed job queue with at-least-once delivery. Ready jobs
// live on a stream per job type; delayed jobs wait in a sorted set scored by
// their ready time until a mover promotes them. A SETNX dedupe key collapses
// concurrent triggers of the same logical job; the key is released when the
// job is delivered to a consumer, so handlers can re-schedule under the same
// key.
type Queue struct {
	client *redis.Client
	policy jobs.RetryPolicy
	logger zerolog.Logger
}

func NewQueue(client *redis.Client, policy jobs.RetryPolicy, logger zerolog.Logger) *Queue {
	return &Queue{
		client: client,
		policy: policy,
		logger: logger.With().Str("component", "queue").Logger(),
	}
}

// Enqueue schedules a job, immediately or after job.Delay. Returns
// ErrJobDuplicate when a job with the same dedupe key is already
// outstanding.
func (q *Queue) Enqueue(ctx context.Context, job jobs.Job) error {
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.policy.MaxAttempts
	}
	env := envelope{
		ID:          newEnvelopeID(),
		Type:        job.Type,
		Key:         job.Key,
		Payload:     job.Payload,
		Attempt:     1,
		MaxAttempts: maxAttempts,
		EnqueuedAt:  time.Now().UTC(),
	}

	if job.Key != "" {
		ok, err := q.client.SetNX(ctx, dedupeKey(job.Key), env.ID, job.Delay+dedupeSafetyTTL).Result()
		if err != nil {
			return fmt.Errorf("set dedupe key: %w", err)
		}
		if !ok {
			return errors.ErrJobDuplicate
		}
	}

	if err := q.push(ctx, env, job.Delay); err != nil {
		// Roll the dedupe key back so the caller can retry the enqueue.
		if job.Key != "" {
			q.client.Del(ctx, dedupeKey(job.Key))
		}
		return err
	}
	return nil
}

// Retry re-schedules a delivered job with its attempt counter advanced and
// exponential backoff applied. Returns ErrMaxAttemptsReached once the
// attempt budget is spent; the caller is expected to dead-letter the job.
func (q *Queue) Retry(ctx context.Context, m Message) error {
	if m.Attempt >= m.MaxAttempts {
		return errors.ErrMaxAttemptsReached
	}
	env := envelope{
		ID:          newEnvelopeID(),
		Type:        m.Job.Type,
		Key:         m.Job.Key,
		Payload:     m.Job.Payload,
		Attempt:     m.Attempt + 1,
		MaxAttempts: m.MaxAttempts,
		EnqueuedAt:  time.Now().UTC(),
	}
	delay := q.policy.BackoffFor(m.Attempt)

	// The dedupe key was released at delivery; re-claim it so the retry is
	// the single outstanding job for this key.
	if env.Key != "" {
		if _, err := q.client.SetNX(ctx, dedupeKey(env.Key), env.ID, delay+dedupeSafetyTTL).Result(); err != nil {
			return fmt.Errorf("set dedupe key: %w", err)
		}
	}
	return q.push(ctx, env, delay)
}

// DeadLetter records an abandoned job on the DLQ stream for operator review.
func (q *Queue) DeadLetter(ctx context.Context, m Message, reason string) error {
	payload, err := json.Marshal(m.Job.Payload)
	if err != nil {
		return fmt.Errorf("marshal dead-letter payload: %w", err)
	}
	err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: DLQStream,
		Values: map[string]any{
			"type":      string(m.Job.Type),
			"key":       m.Job.Key,
			"payload":   string(payload),
			"attempts":  m.Attempt,
			"reason":    reason,
			"timestamp": time.Now().Unix(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish to DLQ: %w", err)
	}
	q.logger.Error().
		Str("job_type", string(m.Job.Type)).
		Str("job_key", m.Job.Key).
		Int("attempts", m.Attempt).
		Str("reason", reason).
		Msg("job dead-lettered")
	return nil
}

// MoveDue promotes delayed jobs whose ready time has passed onto the ready
// stream. XAdd-before-ZRem keeps delivery at-least-once: a crash between the
// two produces a duplicate, never a loss.
func (q *Queue) MoveDue(ctx context.Context, t jobs.Type) (int, error) {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	members, err := q.client.ZRangeByScore(ctx, delayedZSet(t), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("read delayed set: %w", err)
	}

	moved := 0
	for _, member := range members {
		if err := q.client.XAdd(ctx, &redis.XAddArgs{
			Stream: readyStream(t),
			Values: map[string]any{"job": member},
		}).Err(); err != nil {
			return moved, fmt.Errorf("promote delayed job: %w", err)
		}
		if err := q.client.ZRem(ctx, delayedZSet(t), member).Err(); err != nil {
			return moved, fmt.Errorf("remove promoted job: %w", err)
		}
		moved++
	}
	return moved, nil
}

func (q *Queue) push(ctx context.Context, env envelope, delay time.Duration) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	if delay > 0 {
		readyAt := float64(time.Now().Add(delay).UnixMilli())
		if err := q.client.ZAdd(ctx, delayedZSet(env.Type), redis.Z{
			Score:  readyAt,
			Member: string(raw),
		}).Err(); err != nil {
			return fmt.Errorf("schedule delayed job: %w", err)
		}
		return nil
	}

	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: readyStream(env.Type),
		Values: map[string]any{"job": string(raw)},
	}).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

func newEnvelopeID() string {
	return uuid.New().String()
}

// Consumer reads jobs of one type through a consumer group.
type Consumer struct {
	client        *redis.Client
	queue         *Queue
	jobType       jobs.Type
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewConsumer(
	client *redis.Client,
	queue *Queue,
	jobType jobs.Type,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *Consumer {
	return &Consumer{
		client:        client,
		queue:         queue,
		jobType:       jobType,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

func (c *Consumer) CreateGroup(ctx context.Context) error {
	// Create stream if it doesn't exist
	const busyGroupMsg = "BUSYGROUP"
	err := c.client.XGroupCreateMkStream(ctx, readyStream(c.jobType), c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Read blocks for up to the configured duration and returns delivered jobs.
// Dedupe keys are released here, at delivery time, so a handler can
// re-schedule follow-up work under the same key while it runs.
func (c *Consumer) Read(ctx context.Context) ([]Message, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{readyStream(c.jobType), ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			// No new messages
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var messages []Message
	for _, stream := range streams {
		for _, raw := range stream.Messages {
			msg, err := decodeMessage(raw)
			if err != nil {
				// Malformed entries are acked away so they cannot wedge the
				// consumer group.
				c.queue.logger.Error().Err(err).Str("message_id", raw.ID).Msg("dropping malformed job")
				_ = c.Ack(ctx, raw.ID)
				continue
			}
			if msg.Job.Key != "" {
				if err := c.client.Del(ctx, dedupeKey(msg.Job.Key)).Err(); err != nil {
					c.queue.logger.Warn().Err(err).Str("job_key", msg.Job.Key).Msg("failed to release dedupe key")
				}
			}
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

func (c *Consumer) Ack(ctx context.Context, messageID string) error {
	err := c.client.XAck(ctx, readyStream(c.jobType), c.group, messageID).Err()
	if err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// Claim takes over messages another consumer left pending, for crash
// recovery.
func (c *Consumer) Claim(ctx context.Context, minIdleTime time.Duration, messageIDs []string) ([]Message, error) {
	raws, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   readyStream(c.jobType),
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  minIdleTime,
		Messages: messageIDs,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim messages: %w", err)
	}

	var messages []Message
	for _, raw := range raws {
		msg, err := decodeMessage(raw)
		if err != nil {
			c.queue.logger.Error().Err(err).Str("message_id", raw.ID).Msg("dropping malformed claimed job")
			_ = c.Ack(ctx, raw.ID)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func decodeMessage(raw redis.XMessage) (Message, error) {
	field, ok := raw.Values["job"].(string)
	if !ok {
		return Message{}, fmt.Errorf("message %s has no job field", raw.ID)
	}
	var env envelope
	if err := json.Unmarshal([]byte(field), &env); err != nil {
		return Message{}, fmt.Errorf("decode job envelope: %w", err)
	}
	return Message{
		ID: raw.ID,
		Job: jobs.Job{
			Type:        env.Type,
			Key:         env.Key,
			Payload:     env.Payload,
			MaxAttempts: env.MaxAttempts,
		},
		Attempt:     env.Attempt,
		MaxAttempts: env.MaxAttempts,
		EnqueuedAt:  env.EnqueuedAt,
	}, nil
}

package jobs

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestBackoffFor_ExponentialGrowth(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: 30 * time.Second,
		MaxBackoff:     15 * time.Minute,
		Multiplier:     2.0,
	}

	assert.Equal(t, 30*time.Second, p.BackoffFor(1))
	assert.Equal(t, 60*time.Second, p.BackoffFor(2))
	assert.Equal(t, 120*time.Second, p.BackoffFor(3))
	assert.Equal(t, 240*time.Second, p.BackoffFor(4))
	assert.Equal(t, 480*time.Second, p.BackoffFor(5))
}

func TestBackoffFor_CappedAtMax(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts:    10,
		InitialBackoff: 30 * time.Second,
		MaxBackoff:     2 * time.Minute,
		Multiplier:     2.0,
	}

	assert.Equal(t, 2*time.Minute, p.BackoffFor(3))
	assert.Equal(t, 2*time.Minute, p.BackoffFor(9))
}

func TestBackoffFor_ZeroAndNegativeAttempt(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, p.InitialBackoff, p.BackoffFor(0))
	assert.Equal(t, p.InitialBackoff, p.BackoffFor(-1))
}

func TestDedupeKey_Deterministic(t *testing.T) {
	orderID := uuid.New()
	assert.Equal(t, DedupeKey(TypeExpiry, orderID), DedupeKey(TypeExpiry, orderID))
	assert.NotEqual(t, DedupeKey(TypeExpiry, orderID), DedupeKey(TypeAssignment, orderID),
		"different job types for the same order must not collide")
	assert.NotEqual(t, DedupeKey(TypeExpiry, orderID), DedupeKey(TypeExpiry, uuid.New()))
}

package order

import (
	"testing"

	"github.com/dbakare/gromart/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(t *testing.T) *Order {
	t.Helper()
	o, err := New("GM-TEST0001", uuid.New(), uuid.New(), 100000, 5000, 1500, DeliveryAddress{
		Latitude: 6.5, Longitude: 3.4, Address: "12 Allen Avenue", City: "Ikeja", State: "Lagos", Country: "NG",
	})
	require.NoError(t, err)
	return o
}

func TestNew_Valid(t *testing.T) {
	o := newTestOrder(t)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Nil(t, o.AgentID)
	assert.Nil(t, o.PaymentID)
}

func TestNew_Validation(t *testing.T) {
	addr := DeliveryAddress{Address: "a"}
	_, err := New("", uuid.New(), uuid.New(), 100, 0, 0, addr)
	assert.Error(t, err)

	_, err = New("GM-X", uuid.New(), uuid.New(), 0, 0, 0, addr)
	assert.Error(t, err)

	_, err = New("GM-X", uuid.New(), uuid.New(), 100, -1, 0, addr)
	assert.Error(t, err)
}

// --- Payment leg ---

func TestMarkPaymentCompleted(t *testing.T) {
	o := newTestOrder(t)
	paymentID := uuid.New()

	require.NoError(t, o.MarkPaymentCompleted(paymentID))
	assert.Equal(t, PaymentCompleted, o.PaymentStatus)
	require.NotNil(t, o.PaymentID)
	assert.Equal(t, paymentID, *o.PaymentID)
	assert.NotNil(t, o.PaymentProcessedAt)
}

func TestMarkPaymentCompleted_Idempotent(t *testing.T) {
	o := newTestOrder(t)
	require.NoError(t, o.MarkPaymentCompleted(uuid.New()))
	first := *o.PaymentProcessedAt

	err := o.MarkPaymentCompleted(uuid.New())
	assert.ErrorIs(t, err, errors.ErrPaymentAlreadyResolved)
	assert.Equal(t, PaymentCompleted, o.PaymentStatus)
	assert.Equal(t, first, *o.PaymentProcessedAt, "timestamp must not be rewritten")
}

func TestMarkPaymentCompleted_AfterExpiry(t *testing.T) {
	o := newTestOrder(t)
	require.NoError(t, o.MarkPaymentExpired())

	err := o.MarkPaymentCompleted(uuid.New())
	assert.ErrorIs(t, err, errors.ErrInvalidStateTransition)
	assert.Equal(t, PaymentExpired, o.PaymentStatus, "expired is terminal")
}

func TestMarkPaymentExpired_OnlyFromPending(t *testing.T) {
	o := newTestOrder(t)
	require.NoError(t, o.MarkPaymentCompleted(uuid.New()))

	err := o.MarkPaymentExpired()
	assert.ErrorIs(t, err, errors.ErrPaymentAlreadyResolved)
	assert.Equal(t, PaymentCompleted, o.PaymentStatus, "completed never reverts")
}

func TestMarkPaymentFailed_OnlyFromPending(t *testing.T) {
	o := newTestOrder(t)
	require.NoError(t, o.MarkPaymentFailed())
	assert.Equal(t, PaymentFailed, o.PaymentStatus)

	assert.ErrorIs(t, o.MarkPaymentFailed(), errors.ErrPaymentAlreadyResolved)
}

func TestIsPaymentResolved(t *testing.T) {
	o := newTestOrder(t)
	assert.False(t, o.IsPaymentResolved())
	require.NoError(t, o.MarkPaymentExpired())
	assert.True(t, o.IsPaymentResolved())
}

// --- Fulfillment gating ---

func TestCanTransitionTo_BlockedWhileUnpaid(t *testing.T) {
	o := newTestOrder(t)
	assert.False(t, o.CanTransitionTo(StatusAccepted), "unpaid order must not advance")
	assert.True(t, o.CanTransitionTo(StatusCancelled), "unpaid order may still be cancelled")
}

func TestTransitionTo_AfterPayment(t *testing.T) {
	o := newTestOrder(t)
	require.NoError(t, o.MarkPaymentCompleted(uuid.New()))

	require.NoError(t, o.TransitionTo(StatusAccepted))
	require.NoError(t, o.TransitionTo(StatusInProgress))
	require.NoError(t, o.TransitionTo(StatusShoppingCompleted))
	require.NoError(t, o.TransitionTo(StatusDelivery))
	require.NoError(t, o.TransitionTo(StatusCompleted))

	assert.Error(t, o.TransitionTo(StatusCancelled), "completed is terminal")
}

func TestTransitionTo_SkippingStagesRejected(t *testing.T) {
	o := newTestOrder(t)
	require.NoError(t, o.MarkPaymentCompleted(uuid.New()))

	assert.ErrorIs(t, o.TransitionTo(StatusDelivery), errors.ErrInvalidStateTransition)
	assert.ErrorIs(t, o.TransitionTo(StatusCompleted), errors.ErrInvalidStateTransition)
}

func TestDelivery_CannotBeCancelled(t *testing.T) {
	o := newTestOrder(t)
	require.NoError(t, o.MarkPaymentCompleted(uuid.New()))
	require.NoError(t, o.TransitionTo(StatusAccepted))
	require.NoError(t, o.TransitionTo(StatusInProgress))
	require.NoError(t, o.TransitionTo(StatusShoppingCompleted))
	require.NoError(t, o.TransitionTo(StatusDelivery))

	assert.Error(t, o.TransitionTo(StatusCancelled))
}

// --- Assignment gating ---

func TestIsAssignable(t *testing.T) {
	o := newTestOrder(t)
	assert.False(t, o.IsAssignable(), "unpaid order is not assignable")

	require.NoError(t, o.MarkPaymentCompleted(uuid.New()))
	assert.True(t, o.IsAssignable())

	agentID := uuid.New()
	o.AgentID = &agentID
	assert.False(t, o.IsAssignable(), "already-assigned order is not assignable")
}

func TestIsAssignable_AfterFulfillmentAdvance(t *testing.T) {
	o := newTestOrder(t)
	require.NoError(t, o.MarkPaymentCompleted(uuid.New()))
	require.NoError(t, o.TransitionTo(StatusAccepted))
	assert.False(t, o.IsAssignable(), "only pending orders take a new agent")
}

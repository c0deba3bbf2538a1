package testutil

import (
	"time"

	"github.com/dbakare/gromart/internal/domain/agent"
	"github.com/dbakare/gromart/internal/domain/order"
	"github.com/dbakare/gromart/internal/domain/shoppinglist"
	"github.com/dbakare/gromart/internal/domain/transaction"
	"github.com/google/uuid"
)

// NewTestList builds a draft shopping list with two items for the customer
// and market.
func NewTestList(customerID, marketID uuid.UUID) *shoppinglist.ShoppingList {
	now := time.Now()
	items := []shoppinglist.Item{
		{ID: uuid.New(), Name: "Rice (5kg)", Quantity: 1, Unit: "bag", EstimatedPrice: 850000},
		{ID: uuid.New(), Name: "Tomatoes", Quantity: 2, Unit: "basket", EstimatedPrice: 120000},
	}
	return &shoppinglist.ShoppingList{
		ID:             uuid.New(),
		Name:           "Weekly groceries",
		CustomerID:     customerID,
		MarketID:       marketID,
		Status:         shoppinglist.StatusDraft,
		PaymentStatus:  shoppinglist.PaymentPending,
		EstimatedTotal: 1090000,
		Items:          items,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NewTestOrder builds a pending order linked to the given shopping list.
func NewTestOrder(customerID, shoppingListID uuid.UUID) *order.Order {
	now := time.Now()
	return &order.Order{
		ID:             uuid.New(),
		OrderNumber:    "GM-20260101-TEST01",
		CustomerID:     customerID,
		ShoppingListID: shoppingListID,
		Status:         order.StatusPending,
		PaymentStatus:  order.PaymentPending,
		TotalAmount:    1150000,
		ServiceFee:     54500,
		DeliveryFee:    5500,
		DeliveryAddress: order.DeliveryAddress{
			Latitude:  6.5244,
			Longitude: 3.3792,
			Address:   "12 Allen Avenue",
			City:      "Ikeja",
			State:     "Lagos",
			Country:   "NG",
		},
		DeliveryMetadata: make(map[string]any),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// NewPaidOrder builds an order whose payment completed, ready for assignment.
func NewPaidOrder(customerID, shoppingListID uuid.UUID) *order.Order {
	o := NewTestOrder(customerID, shoppingListID)
	o.PaymentStatus = order.PaymentCompleted
	paymentID := uuid.New()
	o.PaymentID = &paymentID
	now := time.Now()
	o.PaymentProcessedAt = &now
	return o
}

// NewTestTransaction builds a pending payment attempt against an order.
func NewTestTransaction(userID, orderID uuid.UUID, amount int64) *transaction.Transaction {
	now := time.Now()
	ref := "alatpay_ref_" + uuid.New().String()[:12]
	return &transaction.Transaction{
		ID:                uuid.New(),
		UserID:            userID,
		Amount:            amount,
		Currency:          "NGN",
		Status:            transaction.StatusPending,
		Type:              transaction.TypeOrder,
		ProviderName:      "alatpay",
		ProviderReference: &ref,
		Reference:         transaction.OrderRef(orderID),
		Metadata:          make(map[string]any),
		AttemptCount:      1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// NewTestAgent builds an available agent in the given market.
func NewTestAgent(marketID uuid.UUID, load int) *agent.Agent {
	now := time.Now()
	mid := marketID
	return &agent.Agent{
		ID:          uuid.New(),
		Name:        "Test Agent",
		Phone:       "+2348012345678",
		MarketID:    &mid,
		Status:      agent.StatusAvailable,
		CurrentLoad: load,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func UUIDPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

package controller

import (
	"time"

	"github.com/dbakare/gromart/internal/application/checkout"
	"github.com/dbakare/gromart/internal/domain/order"
	"github.com/dbakare/gromart/internal/domain/shoppinglist"
	"github.com/dbakare/gromart/internal/domain/trail"
	"github.com/dbakare/gromart/internal/domain/transaction"
	"github.com/google/uuid"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (float64 for money, string for IDs,
// validation tags). Controllers convert them to application-layer types
// before calling business logic.

// ItemRequest is one line item on a shopping list.
type ItemRequest struct {
	Name           string  `json:"name" validate:"required"`
	Quantity       int     `json:"quantity" validate:"required,gt=0"`
	Unit           string  `json:"unit"`
	EstimatedPrice float64 `json:"estimated_price" validate:"gte=0"`
	ProductURL     *string `json:"product_url,omitempty"`
}

// CreateShoppingListRequest holds the input for creating a shopping list.
type CreateShoppingListRequest struct {
	Name     string        `json:"name" validate:"required"`
	MarketID string        `json:"market_id" validate:"required,uuid"`
	Items    []ItemRequest `json:"items" validate:"dive"`
}

// ReplaceItemsRequest swaps the full item set of a draft list.
type ReplaceItemsRequest struct {
	Items []ItemRequest `json:"items" validate:"required,dive"`
}

// TransitionRequest moves a shopping list to a target status.
type TransitionRequest struct {
	Status string `json:"status" validate:"required,oneof=draft pending accepted processing completed cancelled"`
}

// DeliveryAddressRequest is the drop-off location captured at checkout.
type DeliveryAddressRequest struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Address    string  `json:"address" validate:"required"`
	City       string  `json:"city" validate:"required"`
	State      string  `json:"state"`
	Country    string  `json:"country"`
	Directions *string `json:"directions,omitempty"`
}

// CheckoutRequest holds the input for checking out a shopping list.
type CheckoutRequest struct {
	Provider        string                 `json:"provider" validate:"required"`
	Currency        string                 `json:"currency" validate:"omitempty,len=3"`
	CustomerEmail   string                 `json:"customer_email" validate:"required,email"`
	DeliveryFee     float64                `json:"delivery_fee" validate:"gte=0"`
	DeliveryAddress DeliveryAddressRequest `json:"delivery_address" validate:"required"`
	CustomerNotes   *string                `json:"customer_notes,omitempty"`
}

// ClaimOrderRequest lets an agent claim a paid order.
type ClaimOrderRequest struct {
	AgentID string `json:"agent_id" validate:"required,uuid"`
}

// --- Response DTOs ---

// ItemResponse represents a shopping list item in API responses.
type ItemResponse struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Quantity       int      `json:"quantity"`
	Unit           string   `json:"unit"`
	EstimatedPrice float64  `json:"estimated_price"`
	ActualPrice    *float64 `json:"actual_price,omitempty"`
	ProductURL     *string  `json:"product_url,omitempty"`
}

// ShoppingListResponse represents a shopping list in API responses.
type ShoppingListResponse struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	CustomerID         string         `json:"customer_id"`
	MarketID           string         `json:"market_id"`
	AgentID            *string        `json:"agent_id,omitempty"`
	Status             string         `json:"status"`
	PaymentStatus      string         `json:"payment_status"`
	EstimatedTotal     float64        `json:"estimated_total"`
	Items              []ItemResponse `json:"items"`
	AllowedTransitions []string       `json:"allowed_transitions"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// OrderResponse represents an order in API responses.
type OrderResponse struct {
	ID                 string     `json:"id"`
	OrderNumber        string     `json:"order_number"`
	CustomerID         string     `json:"customer_id"`
	ShoppingListID     string     `json:"shopping_list_id"`
	AgentID            *string    `json:"agent_id,omitempty"`
	Status             string     `json:"status"`
	PaymentStatus      string     `json:"payment_status"`
	TotalAmount        float64    `json:"total_amount"`
	ServiceFee         float64    `json:"service_fee"`
	DeliveryFee        float64    `json:"delivery_fee"`
	PaymentProcessedAt *time.Time `json:"payment_processed_at,omitempty"`
	CustomerNotes      *string    `json:"customer_notes,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TransactionResponse represents a payment attempt in API responses.
type TransactionResponse struct {
	ID                string         `json:"id"`
	Amount            float64        `json:"amount"`
	Currency          string         `json:"currency"`
	Status            string         `json:"status"`
	ProviderName      string         `json:"provider_name"`
	ProviderReference *string        `json:"provider_reference,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
}

// PaymentReferenceResponse carries the provider payment instructions.
type PaymentReferenceResponse struct {
	Reference      string    `json:"reference"`
	VirtualAccount string    `json:"virtual_account,omitempty"`
	PaymentLink    string    `json:"payment_link,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// CheckoutResponse is the result of a checkout attempt.
type CheckoutResponse struct {
	Order       *OrderResponse            `json:"order"`
	Transaction *TransactionResponse      `json:"transaction,omitempty"`
	Payment     *PaymentReferenceResponse `json:"payment,omitempty"`
	Existing    bool                      `json:"existing"`
}

// TrailEventResponse represents one audit record.
type TrailEventResponse struct {
	ID          string         `json:"id"`
	Action      string         `json:"action"`
	Description string         `json:"description"`
	PerformerID *string        `json:"performer_id,omitempty"`
	Before      map[string]any `json:"before,omitempty"`
	After       map[string]any `json:"after,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromShoppingList converts a domain shopping list to API response.
func FromShoppingList(l *shoppinglist.ShoppingList) *ShoppingListResponse {
	items := make([]ItemResponse, 0, len(l.Items))
	for _, it := range l.Items {
		item := ItemResponse{
			ID:             it.ID.String(),
			Name:           it.Name,
			Quantity:       it.Quantity,
			Unit:           it.Unit,
			EstimatedPrice: koboToFloat(it.EstimatedPrice),
			ProductURL:     it.ProductURL,
		}
		if it.ActualPrice != nil {
			p := koboToFloat(*it.ActualPrice)
			item.ActualPrice = &p
		}
		items = append(items, item)
	}

	allowed := l.AllowedTransitions()
	transitions := make([]string, 0, len(allowed))
	for _, s := range allowed {
		transitions = append(transitions, string(s))
	}

	resp := &ShoppingListResponse{
		ID:                 l.ID.String(),
		Name:               l.Name,
		CustomerID:         l.CustomerID.String(),
		MarketID:           l.MarketID.String(),
		Status:             string(l.Status),
		PaymentStatus:      string(l.PaymentStatus),
		EstimatedTotal:     koboToFloat(l.EstimatedTotal),
		Items:              items,
		AllowedTransitions: transitions,
		CreatedAt:          l.CreatedAt,
		UpdatedAt:          l.UpdatedAt,
	}
	if l.AgentID != nil {
		aid := l.AgentID.String()
		resp.AgentID = &aid
	}
	return resp
}

// FromOrder converts a domain order to API response.
func FromOrder(o *order.Order) *OrderResponse {
	resp := &OrderResponse{
		ID:                 o.ID.String(),
		OrderNumber:        o.OrderNumber,
		CustomerID:         o.CustomerID.String(),
		ShoppingListID:     o.ShoppingListID.String(),
		Status:             string(o.Status),
		PaymentStatus:      string(o.PaymentStatus),
		TotalAmount:        koboToFloat(o.TotalAmount),
		ServiceFee:         koboToFloat(o.ServiceFee),
		DeliveryFee:        koboToFloat(o.DeliveryFee),
		PaymentProcessedAt: o.PaymentProcessedAt,
		CustomerNotes:      o.CustomerNotes,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
	if o.AgentID != nil {
		aid := o.AgentID.String()
		resp.AgentID = &aid
	}
	return resp
}

// FromTransaction converts a domain transaction to API response.
func FromTransaction(t *transaction.Transaction) *TransactionResponse {
	return &TransactionResponse{
		ID:                t.ID.String(),
		Amount:            koboToFloat(t.Amount),
		Currency:          t.Currency,
		Status:            string(t.Status),
		ProviderName:      t.ProviderName,
		ProviderReference: t.ProviderReference,
		Metadata:          t.Metadata,
		CreatedAt:         t.CreatedAt,
		CompletedAt:       t.CompletedAt,
	}
}

// FromCheckout converts a checkout result to API response.
func FromCheckout(res *checkout.Response) *CheckoutResponse {
	resp := &CheckoutResponse{
		Order:    FromOrder(res.Order),
		Existing: res.Existing,
	}
	if res.Transaction != nil {
		resp.Transaction = FromTransaction(res.Transaction)
	}
	if res.PaymentRef != nil {
		resp.Payment = &PaymentReferenceResponse{
			Reference:      res.PaymentRef.Reference,
			VirtualAccount: res.PaymentRef.VirtualAccount,
			PaymentLink:    res.PaymentRef.PaymentLink,
			ExpiresAt:      res.PaymentRef.ExpiresAt,
		}
	}
	return resp
}

// FromTrailEvent converts a trail event to API response.
func FromTrailEvent(e *trail.Event) *TrailEventResponse {
	resp := &TrailEventResponse{
		ID:          e.ID.String(),
		Action:      e.Action,
		Description: e.Description,
		Before:      e.Before,
		After:       e.After,
		Metadata:    e.Metadata,
		CreatedAt:   e.CreatedAt,
	}
	if e.PerformerID != nil {
		pid := e.PerformerID.String()
		resp.PerformerID = &pid
	}
	return resp
}

func toDomainItems(reqs []ItemRequest) []shoppinglist.Item {
	items := make([]shoppinglist.Item, 0, len(reqs))
	for _, r := range reqs {
		items = append(items, shoppinglist.Item{
			Name:           r.Name,
			Quantity:       r.Quantity,
			Unit:           r.Unit,
			EstimatedPrice: floatToKobo(r.EstimatedPrice),
			ProductURL:     r.ProductURL,
		})
	}
	return items
}

// floatToKobo converts a float naira amount to kobo.
func floatToKobo(f float64) int64 {
	return int64(f * 100)
}

// koboToFloat converts kobo to a float naira amount.
func koboToFloat(kobo int64) float64 {
	return float64(kobo) / 100.0
}

// parseUUID parses a UUID string, returning nil if invalid.
func parseUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

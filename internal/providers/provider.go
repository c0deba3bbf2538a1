package providers

import (
	"context"
	"time"
)

// GatewayStatus is the local payment status vocabulary. Provider-specific
// status strings are mapped to this enum inside each adapter; the core
// never sees raw provider vocabulary.
type GatewayStatus string

const (
	GatewayPending   GatewayStatus = "pending"
	GatewayCompleted GatewayStatus = "completed"
	GatewayExpired   GatewayStatus = "expired"
	GatewayFailed    GatewayStatus = "failed"
)

// ReferenceRequest asks a provider to initiate a payment.
type ReferenceRequest struct {
	OrderID       string
	CustomerID    string
	CustomerEmail string
	AmountCents   int64
	Currency      string
}

// PaymentReference is the provider's handle for a payment attempt: either a
// virtual account to transfer into or a hosted payment link.
type PaymentReference struct {
	Reference      string
	VirtualAccount string
	PaymentLink    string
	ExpiresAt      time.Time
}

// StatusResult is a normalized authoritative status check.
type StatusResult struct {
	Status GatewayStatus
	TxID   string
	Raw    map[string]any
}

// Provider is a payment gateway adapter.
type Provider interface {
	// Name returns the provider name.
	Name() string
	// GenerateReference initiates a payment and returns the provider handle.
	GenerateReference(ctx context.Context, req ReferenceRequest) (*PaymentReference, error)
	// CheckStatus queries the provider for the authoritative payment status.
	CheckStatus(ctx context.Context, reference string) (*StatusResult, error)
	// MapStatus normalizes a provider status string (e.g. from a webhook
	// payload) into the local vocabulary.
	MapStatus(providerStatus string) GatewayStatus
}

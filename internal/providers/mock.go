package providers

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	domainErrors "github.com/dbakare/gromart/internal/domain/errors"
	"github.com/google/uuid"
)

// MockProvider simulates a payment gateway for development and tests.
// It remembers references it issued so CheckStatus can answer consistently.
type MockProvider struct {
	name        string
	failureRate float64 // 0.0 to 1.0
	latency     time.Duration
	timeoutRate float64 // 0.0 to 1.0
	refTTL      time.Duration

	mu       sync.Mutex
	statuses map[string]GatewayStatus
}

type MockProviderOption func(*MockProvider)

func WithFailureRate(rate float64) MockProviderOption {
	return func(p *MockProvider) { p.failureRate = rate }
}

func WithLatency(d time.Duration) MockProviderOption {
	return func(p *MockProvider) { p.latency = d }
}

func WithTimeoutRate(rate float64) MockProviderOption {
	return func(p *MockProvider) { p.timeoutRate = rate }
}

func WithReferenceTTL(d time.Duration) MockProviderOption {
	return func(p *MockProvider) { p.refTTL = d }
}

func NewMockProvider(name string, opts ...MockProviderOption) *MockProvider {
	p := &MockProvider{
		name:     name,
		latency:  100 * time.Millisecond,
		refTTL:   15 * time.Minute,
		statuses: make(map[string]GatewayStatus),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *MockProvider) Name() string { return p.name }

func (p *MockProvider) GenerateReference(ctx context.Context, req ReferenceRequest) (*PaymentReference, error) {
	if err := p.simulate(ctx); err != nil {
		return nil, err
	}

	if rand.Float64() < p.failureRate {
		return nil, fmt.Errorf("%s: simulated reference failure for order %s: %w", p.name, req.OrderID, domainErrors.ErrProviderRejected)
	}

	ref := fmt.Sprintf("%s_ref_%s", p.name, uuid.New().String()[:12])
	p.mu.Lock()
	p.statuses[ref] = GatewayPending
	p.mu.Unlock()

	return &PaymentReference{
		Reference:      ref,
		VirtualAccount: fmt.Sprintf("99%08d", rand.Intn(100000000)),
		PaymentLink:    fmt.Sprintf("https://pay.%s.example/%s", p.name, ref),
		ExpiresAt:      time.Now().Add(p.refTTL),
	}, nil
}

func (p *MockProvider) CheckStatus(ctx context.Context, reference string) (*StatusResult, error) {
	if err := p.simulate(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	status, ok := p.statuses[reference]
	p.mu.Unlock()
	if !ok {
		return &StatusResult{Status: GatewayFailed, Raw: map[string]any{"reason": "unknown reference"}}, nil
	}

	return &StatusResult{
		Status: status,
		TxID:   fmt.Sprintf("%s_txn_%s", p.name, reference),
		Raw:    map[string]any{"provider": p.name, "status": string(status)},
	}, nil
}

// MapStatus normalizes the mock's wire vocabulary, which mimics the mix of
// status strings real gateways send.
func (p *MockProvider) MapStatus(providerStatus string) GatewayStatus {
	switch strings.ToLower(providerStatus) {
	case "completed", "success", "successful", "paid":
		return GatewayCompleted
	case "expired", "abandoned":
		return GatewayExpired
	case "failed", "declined", "reversed":
		return GatewayFailed
	default:
		return GatewayPending
	}
}

// SettlePayment marks a reference as paid; test and dev hook standing in for
// a real bank transfer.
func (p *MockProvider) SettlePayment(reference string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[reference] = GatewayCompleted
}

// ExpirePayment marks a reference expired.
func (p *MockProvider) ExpirePayment(reference string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[reference] = GatewayExpired
}

func (p *MockProvider) simulate(ctx context.Context) error {
	select {
	case <-time.After(p.latency):
	case <-ctx.Done():
		return ctx.Err()
	}
	if rand.Float64() < p.timeoutRate {
		return domainErrors.ErrProviderTimeout
	}
	return nil
}

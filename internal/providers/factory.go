package providers

import (
	"fmt"
	"time"

	domainErrors "github.com/dbakare/gromart/internal/domain/errors"
	"github.com/sony/gobreaker/v2"
)

// Factory holds registered gateway adapters with a circuit breaker per
// provider, so one failing gateway cannot exhaust worker capacity.
type Factory struct {
	providers      map[string]Provider
	statusBreakers map[string]*gobreaker.CircuitBreaker[*StatusResult]
	refBreakers    map[string]*gobreaker.CircuitBreaker[*PaymentReference]
}

func NewFactory(providersList ...Provider) *Factory {
	f := &Factory{
		providers:      make(map[string]Provider),
		statusBreakers: make(map[string]*gobreaker.CircuitBreaker[*StatusResult]),
		refBreakers:    make(map[string]*gobreaker.CircuitBreaker[*PaymentReference]),
	}

	if len(providersList) == 0 {
		f.Register(NewMockProvider("alatpay",
			WithLatency(200*time.Millisecond),
			WithFailureRate(0.05),
		))
		f.Register(NewMockProvider("paystack",
			WithLatency(300*time.Millisecond),
			WithFailureRate(0.08),
		))
	} else {
		for _, p := range providersList {
			f.Register(p)
		}
	}

	return f
}

func (f *Factory) Register(p Provider) {
	f.providers[p.Name()] = p
	settings := gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
	}
	f.statusBreakers[p.Name()] = gobreaker.NewCircuitBreaker[*StatusResult](settings)
	f.refBreakers[p.Name()] = gobreaker.NewCircuitBreaker[*PaymentReference](settings)
}

// Get returns the adapter for name, or ErrProviderNotFound.
func (f *Factory) Get(name string) (Provider, error) {
	p, ok := f.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q: %w", name, domainErrors.ErrProviderNotFound)
	}
	return p, nil
}

// StatusBreaker returns the circuit breaker guarding status checks for name.
func (f *Factory) StatusBreaker(name string) *gobreaker.CircuitBreaker[*StatusResult] {
	return f.statusBreakers[name]
}

// ReferenceBreaker returns the circuit breaker guarding reference generation.
func (f *Factory) ReferenceBreaker(name string) *gobreaker.CircuitBreaker[*PaymentReference] {
	return f.refBreakers[name]
}

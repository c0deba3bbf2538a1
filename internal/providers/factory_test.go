package providers

import (
	"errors"
	"testing"

	domainErrors "github.com/dbakare/gromart/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFactory_WithDefaultProviders(t *testing.T) {
	factory := NewFactory()

	assert.NotNil(t, factory)
	assert.Len(t, factory.providers, 2) // alatpay and paystack
	assert.Len(t, factory.statusBreakers, 2)
	assert.Len(t, factory.refBreakers, 2)
}

func TestNewFactory_WithCustomProviders(t *testing.T) {
	mockProvider := NewMockProvider("test-provider")
	factory := NewFactory(mockProvider)

	assert.NotNil(t, factory)
	assert.Len(t, factory.providers, 1)
	assert.Contains(t, factory.providers, "test-provider")
}

func TestFactory_Get_DefaultProviders(t *testing.T) {
	factory := NewFactory()

	for _, name := range []string{"alatpay", "paystack"} {
		provider, err := factory.Get(name)
		require.NoError(t, err)
		assert.Equal(t, name, provider.Name())
	}
}

func TestFactory_Get_UnknownProvider_Error(t *testing.T) {
	factory := NewFactory()

	provider, err := factory.Get("unknown")
	assert.Nil(t, provider)
	assert.True(t, errors.Is(err, domainErrors.ErrProviderNotFound))
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestFactory_Register(t *testing.T) {
	factory := NewFactory()
	mockProvider := NewMockProvider("custom")

	factory.Register(mockProvider)

	provider, err := factory.Get("custom")
	require.NoError(t, err)
	assert.Equal(t, "custom", provider.Name())
	assert.NotNil(t, factory.StatusBreaker("custom"))
	assert.NotNil(t, factory.ReferenceBreaker("custom"))
}

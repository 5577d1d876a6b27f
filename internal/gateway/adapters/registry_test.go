package adapters

import (
	"testing"

	"github.com/smallbiznis/payflow/internal/gateway/adapters/sandbox"
	"github.com/smallbiznis/payflow/internal/gateway/adapters/toss"
	"github.com/smallbiznis/payflow/internal/gateway/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolvesByName(t *testing.T) {
	registry := NewRegistry(toss.NewFactory(), sandbox.NewFactory(), nil)

	assert.True(t, registry.ProviderExists(" Toss "))
	assert.True(t, registry.ProviderExists("sandbox"))
	assert.False(t, registry.ProviderExists("stripe"))

	gw, err := registry.NewAdapter("SANDBOX", domain.AdapterConfig{})
	require.NoError(t, err)
	assert.Equal(t, "sandbox", gw.Provider())

	_, err = registry.NewAdapter("stripe", domain.AdapterConfig{})
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

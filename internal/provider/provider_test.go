package provider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbushost/provision-service/internal/models"
)

func TestNewAdapterPerType(t *testing.T) {
	for _, typ := range []string{models.ProviderHetzner, models.ProviderDigitalOcean, models.ProviderVultr} {
		adapter, err := New(typ, "token", nil)
		require.NoError(t, err, typ)
		require.NotNil(t, adapter, typ)
	}

	_, err := New("linode", "token", nil)
	require.Error(t, err)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&Error{Op: "x", Retryable: true}))
	assert.False(t, IsRetryable(&Error{Op: "x"}))
	assert.False(t, IsRetryable(errors.New("plain error")))

	// Works through wrapping.
	wrapped := fmt.Errorf("create server: %w", &Error{Op: "x", Retryable: true})
	assert.True(t, IsRetryable(wrapped))
}

func TestRequirePlan(t *testing.T) {
	plan := models.PlanRef{"region": "fra1", "size": "s-1vcpu-1gb"}

	require.NoError(t, requirePlan("op", plan, "region", "size"))

	err := requirePlan("op", plan, "region", "image")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image")
	assert.False(t, IsRetryable(err))
}

package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbushost/provision-service/internal/models"
)

func newVultrServer(t *testing.T, handler http.HandlerFunc) *Vultr {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewVultr("vultr-token", &Options{BaseURL: srv.URL})
}

func TestVultrCreateServer(t *testing.T) {
	var gotBody map[string]interface{}
	v := newVultrServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/instances", r.URL.Path)
		require.Equal(t, "Bearer vultr-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"instance":{"id":"a1b2c3","main_ip":"0.0.0.0"}}`))
	})

	plan := models.PlanRef{"region": "fra", "plan": "vc2-1c-1gb", "os_id": "2284"}
	res, err := v.CreateServer(context.Background(), "srv-55", plan, "")
	require.NoError(t, err)

	assert.Equal(t, "srv-55", gotBody["label"])
	assert.Equal(t, float64(2284), gotBody["os_id"])
	assert.Equal(t, "a1b2c3", res.ResourceID)
	// 0.0.0.0 means not yet assigned
	assert.Empty(t, res.IP)
}

func TestVultrCreateServerNonNumericOSID(t *testing.T) {
	v := NewVultr("vultr-token", nil)
	plan := models.PlanRef{"region": "fra", "plan": "vc2-1c-1gb", "os_id": "ubuntu"}
	_, err := v.CreateServer(context.Background(), "srv-1", plan, "")
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestVultrSuspendMapsToHalt(t *testing.T) {
	var gotPath string
	v := newVultrServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, v.Suspend(context.Background(), "a1b2c3"))
	assert.Equal(t, "/instances/a1b2c3/halt", gotPath)
}

func TestVultrTerminate(t *testing.T) {
	var gotMethod, gotPath string
	v := newVultrServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, v.Terminate(context.Background(), "a1b2c3"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/instances/a1b2c3", gotPath)
}

func TestVultrErrorClassification(t *testing.T) {
	v := newVultrServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid instance"}`))
	})
	err := v.PowerOn(context.Background(), "missing")
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "invalid instance")

	v = newVultrServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	err = v.PowerOn(context.Background(), "a1b2c3")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

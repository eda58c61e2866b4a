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

func newDOServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *DigitalOcean) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, NewDigitalOcean("do-token", &Options{BaseURL: srv.URL})
}

func TestDigitalOceanCreateServer(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}
	_, do := newDOServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/droplets", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"droplet":{"id":4242,"networks":{"v4":[
			{"ip_address":"10.0.0.5","type":"private"},
			{"ip_address":"203.0.113.9","type":"public"}
		]}}}`))
	})

	plan := models.PlanRef{"region": "fra1", "size": "s-1vcpu-1gb", "image": "ubuntu-24-04-x64"}
	res, err := do.CreateServer(context.Background(), "srv-101", plan, "#cloud-config")
	require.NoError(t, err)

	assert.Equal(t, "Bearer do-token", gotAuth)
	assert.Equal(t, "srv-101", gotBody["name"])
	assert.Equal(t, "fra1", gotBody["region"])
	assert.Equal(t, "#cloud-config", gotBody["user_data"])
	assert.Equal(t, "4242", res.ResourceID)
	assert.Equal(t, "203.0.113.9", res.IP)
}

func TestDigitalOceanCreateServerMissingPlanField(t *testing.T) {
	do := NewDigitalOcean("do-token", nil)
	_, err := do.CreateServer(context.Background(), "srv-1", models.PlanRef{"region": "fra1"}, "")
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestDigitalOceanSuspendMapsToPowerOff(t *testing.T) {
	var gotBody map[string]interface{}
	_, do := newDOServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/droplets/4242/actions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"action":{"id":1}}`))
	})

	require.NoError(t, do.Suspend(context.Background(), "4242"))
	assert.Equal(t, "power_off", gotBody["type"])
}

func TestDigitalOceanErrorClassification(t *testing.T) {
	_, do := newDOServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"server error"}`))
	})
	err := do.Reboot(context.Background(), "4242")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))

	_, do = newDOServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"droplet is locked"}`))
	})
	err = do.Reboot(context.Background(), "4242")
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "droplet is locked")

	_, do = newDOServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	err = do.PowerOn(context.Background(), "4242")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestDigitalOceanReinstallUsesRebuild(t *testing.T) {
	var gotBody map[string]interface{}
	_, do := newDOServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/droplets/4242/actions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"action":{"id":2}}`))
	})

	require.NoError(t, do.Reinstall(context.Background(), "4242", models.PlanRef{"image": "debian-12-x64"}))
	assert.Equal(t, "rebuild", gotBody["type"])
	assert.Equal(t, "debian-12-x64", gotBody["image"])
}

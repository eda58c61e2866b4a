package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHetznerStub(t *testing.T, handler http.HandlerFunc) *Hetzner {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHetzner("hetzner-token", &Options{BaseURL: srv.URL})
}

func writeHetznerAction(w http.ResponseWriter, command string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"action": map[string]interface{}{
			"id":       1,
			"command":  command,
			"status":   "running",
			"progress": 0,
			"started":  "2026-08-28T00:00:00Z",
			"resources": []map[string]interface{}{
				{"id": 42, "type": "server"},
			},
		},
	})
}

func TestHetznerSuspendMapsToPowerOff(t *testing.T) {
	var gotPath, gotAuth string
	adapter := newHetznerStub(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		writeHetznerAction(w, "poweroff")
	})

	err := adapter.Suspend(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "/servers/42/actions/poweroff", gotPath)
	assert.Equal(t, "Bearer hetzner-token", gotAuth)
}

func TestHetznerRebootHitsRebootAction(t *testing.T) {
	var gotPath string
	adapter := newHetznerStub(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		writeHetznerAction(w, "reboot")
	})

	err := adapter.Reboot(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "/servers/42/actions/reboot", gotPath)
}

func TestHetznerUnauthorizedIsNotRetryable(t *testing.T) {
	adapter := newHetznerStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"code":    "unauthorized",
				"message": "unable to authenticate",
			},
		})
	})

	err := adapter.PowerOff(context.Background(), "42")
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestHetznerInvalidResourceID(t *testing.T) {
	adapter := NewHetzner("hetzner-token", nil)

	err := adapter.Reboot(context.Background(), "not-a-number")
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

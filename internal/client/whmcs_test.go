package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractServiceAndProductIDs(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		serviceID int64
		productID int64
		wantErr   bool
	}{
		{
			name:      "numeric fields",
			payload:   `{"serviceid": 101, "productid": 7}`,
			serviceID: 101,
			productID: 7,
		},
		{
			name:      "string fields",
			payload:   `{"serviceid": "101", "productid": "7"}`,
			serviceID: 101,
			productID: 7,
		},
		{
			name:      "hook spelling relid and pid",
			payload:   `{"relid": "2048", "pid": 12, "event": "AfterModuleCreate"}`,
			serviceID: 2048,
			productID: 12,
		},
		{
			name:      "snake_case spelling",
			payload:   `{"service_id": 33, "product_id": 4}`,
			serviceID: 33,
			productID: 4,
		},
		{
			name:    "missing service id",
			payload: `{"productid": 7}`,
			wantErr: true,
		},
		{
			name:    "missing product id",
			payload: `{"serviceid": 101}`,
			wantErr: true,
		},
		{
			name:    "zero ids rejected",
			payload: `{"serviceid": 0, "productid": 7}`,
			wantErr: true,
		},
		{
			name:    "not an object",
			payload: `[1,2,3]`,
			wantErr: true,
		},
		{
			name:    "not json",
			payload: `serviceid=101`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			serviceID, productID, err := ExtractServiceAndProductIDs([]byte(tt.payload))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.serviceID, serviceID)
			assert.Equal(t, tt.productID, productID)
		})
	}
}

func TestAttachServiceIP(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/includes/api.php", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		w.Write([]byte(`{"result":"success"}`))
	}))
	defer srv.Close()

	c := NewWHMCSClient(srv.URL, "api-id", "api-secret")
	require.True(t, c.Configured())

	err := c.AttachServiceIP(context.Background(), 101, "203.0.113.9")
	require.NoError(t, err)

	assert.Equal(t, "UpdateClientProduct", gotForm["action"])
	assert.Equal(t, "api-id", gotForm["identifier"])
	assert.Equal(t, "101", gotForm["serviceid"])
	assert.Equal(t, "203.0.113.9", gotForm["dedicatedip"])
	assert.Equal(t, "json", gotForm["responsetype"])
}

func TestAttachServiceIPRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"error","message":"Service ID Not Found"}`))
	}))
	defer srv.Close()

	c := NewWHMCSClient(srv.URL, "api-id", "api-secret")
	err := c.AttachServiceIP(context.Background(), 999, "203.0.113.9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Service ID Not Found")
}

func TestWHMCSClientNotConfigured(t *testing.T) {
	c := NewWHMCSClient("", "", "")
	assert.False(t, c.Configured())
}

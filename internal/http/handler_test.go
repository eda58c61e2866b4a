package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbushost/provision-service/internal/models"
	"github.com/nimbushost/provision-service/internal/repository"
	"github.com/nimbushost/provision-service/internal/service"
)

// memDeliveries backs both the handler and the orchestrator so the async
// dispatch path can be observed end to end.
type memDeliveries struct {
	mu       sync.Mutex
	byID     map[string]*models.WebhookDelivery
	getCalls int
}

func newMemDeliveries() *memDeliveries {
	return &memDeliveries{byID: map[string]*models.WebhookDelivery{}}
}

func (m *memDeliveries) Insert(_ context.Context, d *models.WebhookDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[d.ID]; exists {
		return repository.ErrDuplicate
	}
	stored := *d
	m.byID[d.ID] = &stored
	return nil
}

func (m *memDeliveries) GetByID(_ context.Context, id string) (*models.WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	d, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (m *memDeliveries) List(_ context.Context, _ int) ([]*models.WebhookDelivery, error) {
	return nil, nil
}

func (m *memDeliveries) MarkProcessed(_ context.Context, id string, result *models.ProcessResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if d.ProcessedAt != nil {
		return repository.ErrAlreadyProcessed
	}
	now := time.Now()
	d.ProcessedAt = &now
	d.Result = result
	return nil
}

func (m *memDeliveries) processedAt(id string) *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.byID[id]; ok {
		return d.ProcessedAt
	}
	return nil
}

func (m *memDeliveries) payload(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.byID[id]; ok {
		return string(d.Payload)
	}
	return ""
}

func (m *memDeliveries) reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCalls
}

func newWebhookRouter(t *testing.T, deliveries *memDeliveries) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	orchestrator := service.NewOrchestrator(log, deliveries,
		nil, nil, nil, nil, nil, nil, nil, nil, nil)
	handler := NewHandler(log, orchestrator, deliveries, nil, nil)

	router := gin.New()
	router.POST("/api/webhooks/whmcs", handler.HandleWebhook)
	return router
}

func postWebhook(router *gin.Engine, deliveryID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/whmcs", strings.NewReader(body))
	if deliveryID != "" {
		req.Header.Set("X-Delivery-ID", deliveryID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleWebhookReplayedDeliveryID(t *testing.T) {
	deliveries := newMemDeliveries()
	router := newWebhookRouter(t, deliveries)

	// The payload carries no service id, so processing terminates without
	// touching any other collaborator.
	first := postWebhook(router, "whmcs-55", `{"event": "unrelated"}`)
	require.Equal(t, http.StatusAccepted, first.Code)

	require.Eventually(t, func() bool {
		return deliveries.processedAt("whmcs-55") != nil
	}, 2*time.Second, 10*time.Millisecond)

	// Same id again: accepted, original payload kept, no second row.
	second := postWebhook(router, "whmcs-55", `{"event": "mutated-retry"}`)
	assert.Equal(t, http.StatusAccepted, second.Code)
	assert.Contains(t, second.Body.String(), "whmcs-55")
	assert.Equal(t, `{"event": "unrelated"}`, deliveries.payload("whmcs-55"))

	// The replay still re-dispatched processing, which read the delivery
	// and saw it already done.
	before := deliveries.reads()
	require.Eventually(t, func() bool {
		return deliveries.reads() > before || deliveries.reads() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleWebhookRedeliveryRekicksStrandedDelivery(t *testing.T) {
	deliveries := newMemDeliveries()
	router := newWebhookRouter(t, deliveries)

	// A delivery persisted by an earlier request but never processed, as
	// after a crash between the 202 and the async run.
	require.NoError(t, deliveries.Insert(context.Background(),
		&models.WebhookDelivery{ID: "whmcs-99", Payload: []byte(`{"event": "stranded"}`)}))

	w := postWebhook(router, "whmcs-99", `{"event": "stranded"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		return deliveries.processedAt("whmcs-99") != nil
	}, 2*time.Second, 10*time.Millisecond)
}

package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nimbushost/provision-service/internal/models"
	"github.com/nimbushost/provision-service/internal/repository"
	"github.com/nimbushost/provision-service/internal/service"
)

// maxWebhookBody caps inbound webhook payloads at 1 MiB.
const maxWebhookBody = 1 << 20

// processTimeout bounds one asynchronous provisioning run.
const processTimeout = 5 * time.Minute

// DeliveryStore is the slice of the delivery repository the webhook ingress
// and the read surface touch.
type DeliveryStore interface {
	Insert(ctx context.Context, d *models.WebhookDelivery) error
	GetByID(ctx context.Context, id string) (*models.WebhookDelivery, error)
	List(ctx context.Context, limit int) ([]*models.WebhookDelivery, error)
}

type Handler struct {
	log          *logrus.Logger
	orchestrator *service.Orchestrator
	deliveries   DeliveryStore
	servers      *repository.ServerRepository
	actions      *repository.ActionRepository
}

func NewHandler(
	log *logrus.Logger,
	orchestrator *service.Orchestrator,
	deliveries DeliveryStore,
	servers *repository.ServerRepository,
	actions *repository.ActionRepository,
) *Handler {
	return &Handler{
		log:          log,
		orchestrator: orchestrator,
		deliveries:   deliveries,
		servers:      servers,
		actions:      actions,
	}
}

// ==================== Webhook ingress ====================

// HandleWebhook persists the raw delivery and kicks off processing
// asynchronously. The 202 goes out as soon as the payload is durable; billing
// retries on anything else, and replays of the same delivery id are no-ops.
func (h *Handler) HandleWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty payload"})
		return
	}
	if len(body) > maxWebhookBody {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}

	deliveryID := c.GetHeader("X-Delivery-ID")
	if deliveryID == "" {
		deliveryID = uuid.New().String()
	}

	delivery := &models.WebhookDelivery{ID: deliveryID, Payload: body}
	if err := h.deliveries.Insert(c.Request.Context(), delivery); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			h.log.WithError(err).WithField("delivery_id", deliveryID).Error("failed to persist webhook delivery")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist delivery"})
			return
		}
		// Redelivery of a known id: the stored payload is the truth.
		// Re-dispatching is safe, the processing gates turn a finished
		// delivery into a no-op and pick a stranded one back up.
		h.log.WithField("delivery_id", deliveryID).Info("duplicate delivery id, re-dispatching")
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		if _, err := h.orchestrator.ProcessDelivery(ctx, deliveryID); err != nil {
			h.log.WithError(err).WithField("delivery_id", deliveryID).Error("webhook processing failed")
		}
	}()

	c.JSON(http.StatusAccepted, models.WebhookAcceptedResponse{
		DeliveryID: deliveryID,
		Status:     "accepted",
	})
}

// ==================== Server actions ====================

// ServerAction runs one lifecycle action against the server owned by a
// billing service record.
func (h *Handler) ServerAction(c *gin.Context) {
	serviceID, err := strconv.ParseInt(c.Param("service_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid service id"})
		return
	}

	var req models.ServerActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	action, err := h.orchestrator.PerformAction(c.Request.Context(), serviceID, req.Action, req.PlanRef)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownAction):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrActionInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "no server for service"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, models.NewActionResponse(action))
}

// ==================== Read surface ====================

func (h *Handler) GetServer(c *gin.Context) {
	serviceID, err := strconv.ParseInt(c.Param("service_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid service id"})
		return
	}

	instance, err := h.servers.GetByExternalServiceID(c.Request.Context(), serviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.NewServerResponse(instance))
}

func (h *Handler) ListServers(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	servers, err := h.servers.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]*models.ServerResponse, 0, len(servers))
	for _, s := range servers {
		resp = append(resp, models.NewServerResponse(s))
	}
	c.JSON(http.StatusOK, gin.H{"servers": resp})
}

func (h *Handler) ListServerActions(c *gin.Context) {
	serviceID, err := strconv.ParseInt(c.Param("service_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid service id"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	actions, err := h.actions.ListByServiceID(c.Request.Context(), serviceID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]*models.ActionResponse, 0, len(actions))
	for _, a := range actions {
		resp = append(resp, models.NewActionResponse(a))
	}
	c.JSON(http.StatusOK, gin.H{"actions": resp})
}

func (h *Handler) GetDelivery(c *gin.Context) {
	delivery, err := h.deliveries.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "delivery not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           delivery.ID,
		"processed_at": delivery.ProcessedAt,
		"result":       delivery.Result,
		"created_at":   delivery.CreatedAt,
	})
}

func (h *Handler) ListDeliveries(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	deliveries, err := h.deliveries.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	type deliverySummary struct {
		ID          string                `json:"id"`
		ProcessedAt *time.Time            `json:"processed_at,omitempty"`
		Result      *models.ProcessResult `json:"result,omitempty"`
		CreatedAt   time.Time             `json:"created_at"`
	}
	resp := make([]deliverySummary, 0, len(deliveries))
	for _, d := range deliveries {
		resp = append(resp, deliverySummary{
			ID:          d.ID,
			ProcessedAt: d.ProcessedAt,
			Result:      d.Result,
			CreatedAt:   d.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": resp})
}

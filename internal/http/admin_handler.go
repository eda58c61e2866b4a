package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nimbushost/provision-service/internal/metrics"
	"github.com/nimbushost/provision-service/internal/models"
	"github.com/nimbushost/provision-service/internal/repository"
	"github.com/nimbushost/provision-service/internal/secrets"
)

// AdminHandler serves the internal configuration surface: providers,
// credentials, product mappings, and the audit trail. Plaintext tokens pass
// through exactly one handler (credential intake and rotation) and are never
// echoed back or logged.
type AdminHandler struct {
	log          *logrus.Logger
	providers    *repository.ProviderRepository
	credentials  *repository.CredentialRepository
	mappings     *repository.MappingRepository
	secretStore  *secrets.Store
	audit        *repository.AuditRepository
	defaultKeyID string
}

func NewAdminHandler(
	log *logrus.Logger,
	providers *repository.ProviderRepository,
	credentials *repository.CredentialRepository,
	mappings *repository.MappingRepository,
	secretStore *secrets.Store,
	audit *repository.AuditRepository,
	defaultKeyID string,
) *AdminHandler {
	return &AdminHandler{
		log:          log,
		providers:    providers,
		credentials:  credentials,
		mappings:     mappings,
		secretStore:  secretStore,
		audit:        audit,
		defaultKeyID: defaultKeyID,
	}
}

// ==================== Providers ====================

func (h *AdminHandler) CreateProvider(c *gin.Context) {
	var req models.CreateProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.ValidProviderType(req.Type) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported provider type"})
		return
	}

	prov := &models.Provider{
		ID:          uuid.New().String(),
		Type:        req.Type,
		DisplayName: req.DisplayName,
		Enabled:     true,
	}
	if err := h.providers.Create(c.Request.Context(), prov); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.audit.Record(c.Request.Context(), "admin", "provider.created", "provider", prov.ID, map[string]interface{}{
		"type": prov.Type,
	})
	c.JSON(http.StatusCreated, providerResponse(prov))
}

func (h *AdminHandler) ListProviders(c *gin.Context) {
	providers, err := h.providers.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := make([]*models.ProviderResponse, 0, len(providers))
	for _, p := range providers {
		resp = append(resp, providerResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"providers": resp})
}

func (h *AdminHandler) UpdateProvider(c *gin.Context) {
	var req models.UpdateProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	if err := h.providers.Update(c.Request.Context(), id, req.DisplayName, req.Enabled); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "provider not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	details := map[string]interface{}{}
	if req.DisplayName != nil {
		details["display_name"] = *req.DisplayName
	}
	if req.Enabled != nil {
		details["enabled"] = *req.Enabled
	}
	h.audit.Record(c.Request.Context(), "admin", "provider.updated", "provider", id, details)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ==================== Credentials ====================

// CreateCredential takes a plaintext token, envelope-encrypts it into the
// secret store, and records the credential as a pointer to that secret.
func (h *AdminHandler) CreateCredential(c *gin.Context) {
	var req models.CreateCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.providers.GetByID(c.Request.Context(), req.ProviderID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "provider not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	keyID := req.KeyID
	if keyID == "" {
		keyID = h.defaultKeyID
	}

	secret, err := h.secretStore.Create(c.Request.Context(),
		models.SecretScopeCredential,
		req.ProviderID+"/"+req.Label,
		req.Token,
		keyID,
		map[string]string{"provider_id": req.ProviderID, "label": req.Label},
	)
	if err != nil {
		if errors.Is(err, secrets.ErrDuplicateActiveSecret) {
			c.JSON(http.StatusConflict, gin.H{"error": "credential with this label already exists"})
			return
		}
		h.log.WithError(err).Error("failed to encrypt credential")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store credential"})
		return
	}

	cred := &models.ProviderCredential{
		ID:         uuid.New().String(),
		ProviderID: req.ProviderID,
		Label:      req.Label,
		SecretID:   secret.ID,
		CreatedBy:  "admin",
	}
	if err := h.credentials.Create(c.Request.Context(), cred); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "credential with this label already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	metrics.SecretOperations.WithLabelValues("create").Inc()
	h.audit.Record(c.Request.Context(), "admin", "credential.created", "provider_credential", cred.ID, map[string]interface{}{
		"provider_id": cred.ProviderID,
		"label":       cred.Label,
		"key_id":      keyID,
	})
	c.JSON(http.StatusCreated, credentialResponse(cred))
}

func (h *AdminHandler) ListCredentials(c *gin.Context) {
	providerID := c.Query("provider_id")
	if providerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider_id query param required"})
		return
	}

	creds, err := h.credentials.ListByProvider(c.Request.Context(), providerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := make([]*models.CredentialResponse, 0, len(creds))
	for _, cred := range creds {
		resp = append(resp, credentialResponse(cred))
	}
	c.JSON(http.StatusOK, gin.H{"credentials": resp})
}

// RotateCredential swaps in a new token as the next secret version and
// repoints the credential. Existing servers pick up the new version on their
// next action; nothing needs restarting.
func (h *AdminHandler) RotateCredential(c *gin.Context) {
	var req models.RotateCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cred, err := h.credentials.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	secret, err := h.secretStore.Rotate(c.Request.Context(), cred.SecretID, req.Token, req.KeyID, nil)
	if err != nil {
		h.log.WithError(err).WithField("credential_id", cred.ID).Error("failed to rotate credential secret")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rotate credential"})
		return
	}
	if err := h.credentials.UpdateSecretID(c.Request.Context(), cred.ID, secret.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	metrics.SecretOperations.WithLabelValues("rotate").Inc()
	h.audit.Record(c.Request.Context(), "admin", "credential.rotated", "provider_credential", cred.ID, map[string]interface{}{
		"provider_id":    cred.ProviderID,
		"label":          cred.Label,
		"secret_version": secret.Version,
	})
	c.JSON(http.StatusOK, gin.H{"status": "ok", "secret_version": secret.Version})
}

// ==================== Product mappings ====================

func (h *AdminHandler) CreateMapping(c *gin.Context) {
	var req models.CreateMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.providers.GetByID(c.Request.Context(), req.ProviderID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "provider not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	cred, err := h.credentials.GetByID(c.Request.Context(), req.CredentialID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if cred.ProviderID != req.ProviderID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "credential belongs to a different provider"})
		return
	}

	mapping := &models.ProductMapping{
		ID:             uuid.New().String(),
		WHMCSProductID: req.WHMCSProductID,
		ProviderID:     req.ProviderID,
		CredentialID:   req.CredentialID,
		PlanRef:        req.PlanRef,
	}
	if err := h.mappings.Create(c.Request.Context(), mapping); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "mapping for this product already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.audit.Record(c.Request.Context(), "admin", "mapping.created", "product_mapping", mapping.ID, map[string]interface{}{
		"whmcs_product_id": mapping.WHMCSProductID,
		"provider_id":      mapping.ProviderID,
	})
	c.JSON(http.StatusCreated, mappingResponse(mapping))
}

func (h *AdminHandler) ListMappings(c *gin.Context) {
	mappings, err := h.mappings.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := make([]*models.MappingResponse, 0, len(mappings))
	for _, m := range mappings {
		resp = append(resp, mappingResponse(m))
	}
	c.JSON(http.StatusOK, gin.H{"mappings": resp})
}

// ==================== Audit ====================

func (h *AdminHandler) ListAuditLog(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := parsePositive(v); err == nil {
			limit = n
		}
	}
	entries, err := h.audit.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// ==================== response mapping ====================

const timeFormat = time.RFC3339

func parsePositive(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be positive")
	}
	return n, nil
}

func providerResponse(p *models.Provider) *models.ProviderResponse {
	return &models.ProviderResponse{
		ID:          p.ID,
		Type:        p.Type,
		DisplayName: p.DisplayName,
		Enabled:     p.Enabled,
		CreatedAt:   p.CreatedAt.Format(timeFormat),
	}
}

func credentialResponse(cred *models.ProviderCredential) *models.CredentialResponse {
	return &models.CredentialResponse{
		ID:         cred.ID,
		ProviderID: cred.ProviderID,
		Label:      cred.Label,
		SecretID:   cred.SecretID,
		CreatedBy:  cred.CreatedBy,
		CreatedAt:  cred.CreatedAt.Format(timeFormat),
	}
}

func mappingResponse(m *models.ProductMapping) *models.MappingResponse {
	return &models.MappingResponse{
		ID:             m.ID,
		WHMCSProductID: m.WHMCSProductID,
		ProviderID:     m.ProviderID,
		CredentialID:   m.CredentialID,
		PlanRef:        m.PlanRef,
		CreatedAt:      m.CreatedAt.Format(timeFormat),
	}
}

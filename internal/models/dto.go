package models

import "time"

// ==================== Webhook ====================

// WebhookAcceptedResponse acknowledges a persisted delivery. Processing
// happens asynchronously; the delivery record carries the eventual result.
type WebhookAcceptedResponse struct {
	DeliveryID string `json:"delivery_id"`
	Status     string `json:"status"`
}

// ==================== Admin configuration ====================

type CreateProviderRequest struct {
	Type        string `json:"type" binding:"required"`
	DisplayName string `json:"display_name" binding:"required"`
}

type UpdateProviderRequest struct {
	DisplayName *string `json:"display_name"`
	Enabled     *bool   `json:"enabled"`
}

type ProviderResponse struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
	Enabled     bool   `json:"enabled"`
	CreatedAt   string `json:"created_at"`
}

// CreateCredentialRequest carries the plaintext API token exactly once, at
// intake. It is envelope-encrypted before anything is persisted.
type CreateCredentialRequest struct {
	ProviderID string `json:"provider_id" binding:"required"`
	Label      string `json:"label" binding:"required"`
	Token      string `json:"token" binding:"required"`
	KeyID      string `json:"key_id"`
}

type RotateCredentialRequest struct {
	Token string `json:"token" binding:"required"`
	KeyID string `json:"key_id"`
}

type CredentialResponse struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`
	Label      string `json:"label"`
	SecretID   string `json:"secret_id"`
	CreatedBy  string `json:"created_by"`
	CreatedAt  string `json:"created_at"`
}

type CreateMappingRequest struct {
	WHMCSProductID int64   `json:"whmcs_product_id" binding:"required"`
	ProviderID     string  `json:"provider_id" binding:"required"`
	CredentialID   string  `json:"credential_id" binding:"required"`
	PlanRef        PlanRef `json:"plan_ref" binding:"required"`
}

type MappingResponse struct {
	ID             string  `json:"id"`
	WHMCSProductID int64   `json:"whmcs_product_id"`
	ProviderID     string  `json:"provider_id"`
	CredentialID   string  `json:"credential_id"`
	PlanRef        PlanRef `json:"plan_ref"`
	CreatedAt      string  `json:"created_at"`
}

// ==================== Server actions ====================

type ServerActionRequest struct {
	Action  string  `json:"action" binding:"required"`
	PlanRef PlanRef `json:"plan_ref"`
}

type ActionResponse struct {
	ID                string  `json:"id"`
	ExternalServiceID int64   `json:"external_service_id"`
	Action            string  `json:"action"`
	Status            string  `json:"status"`
	StartedAt         string  `json:"started_at"`
	CompletedAt       *string `json:"completed_at,omitempty"`
	Error             *string `json:"error,omitempty"`
}

func NewActionResponse(a *ActionRequest) *ActionResponse {
	resp := &ActionResponse{
		ID:                a.ID,
		ExternalServiceID: a.ExternalServiceID,
		Action:            a.Action,
		Status:            a.Status,
		StartedAt:         a.StartedAt.Format(time.RFC3339),
		Error:             a.Error,
	}
	if a.CompletedAt != nil {
		done := a.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &done
	}
	return resp
}

// ==================== Read surface ====================

type ServerResponse struct {
	ID                 string                 `json:"id"`
	ExternalServiceID  int64                  `json:"external_service_id"`
	ProviderID         string                 `json:"provider_id"`
	ProviderResourceID string                 `json:"provider_resource_id"`
	Status             string                 `json:"status"`
	IP                 *string                `json:"ip,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt          string                 `json:"created_at"`
}

func NewServerResponse(s *ServerInstance) *ServerResponse {
	return &ServerResponse{
		ID:                 s.ID,
		ExternalServiceID:  s.ExternalServiceID,
		ProviderID:         s.ProviderID,
		ProviderResourceID: s.ProviderResourceID,
		Status:             s.Status,
		IP:                 s.IP,
		Metadata:           s.Metadata,
		CreatedAt:          s.CreatedAt.Format(time.RFC3339),
	}
}

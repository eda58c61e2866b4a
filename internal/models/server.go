package models

import "time"

// Server instance status constants
const (
	ServerStatusProvisioning = "provisioning"
	ServerStatusActive       = "active"
	ServerStatusStopped      = "stopped"
	ServerStatusSuspended    = "suspended"
	ServerStatusTerminated   = "terminated"
)

// ServerInstance is the one virtual server owned by a billing service record.
// ExternalServiceID is unique; the constraint is the backstop against double
// provisioning from duplicate webhook deliveries.
type ServerInstance struct {
	ID                 string
	ExternalServiceID  int64
	ProviderID         string
	CredentialID       string
	ProviderResourceID string
	Status             string
	IP                 *string
	Metadata           map[string]interface{}
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

package models

import "time"

// Supported provider types
const (
	ProviderHetzner      = "hetzner"
	ProviderDigitalOcean = "digitalocean"
	ProviderVultr        = "vultr"
)

// ValidProviderType reports whether t names a supported vendor.
func ValidProviderType(t string) bool {
	switch t {
	case ProviderHetzner, ProviderDigitalOcean, ProviderVultr:
		return true
	}
	return false
}

// Provider is one configured cloud vendor. Identity is immutable after
// creation except DisplayName and Enabled.
type Provider struct {
	ID          string
	Type        string
	DisplayName string
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProviderCredential is a named pointer to the Secret holding the plaintext
// API token for one provider account. The token itself is never stored here.
type ProviderCredential struct {
	ID         string
	ProviderID string
	Label      string
	SecretID   string
	CreatedBy  string
	CreatedAt  time.Time
}

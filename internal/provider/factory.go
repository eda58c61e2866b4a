package provider

import (
	"fmt"
	"net/http"

	"github.com/nimbushost/provision-service/internal/models"
)

// Options tweak adapter construction. Tests point adapters at a stub server.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New builds the adapter for a provider type with the account token. The
// caller resolves which type and token to use; adapters carry no knowledge of
// mappings or credentials.
func New(providerType, token string, opts *Options) (Adapter, error) {
	switch providerType {
	case models.ProviderHetzner:
		return NewHetzner(token, opts), nil
	case models.ProviderDigitalOcean:
		return NewDigitalOcean(token, opts), nil
	case models.ProviderVultr:
		return NewVultr(token, opts), nil
	default:
		return nil, fmt.Errorf("unsupported provider type %q", providerType)
	}
}

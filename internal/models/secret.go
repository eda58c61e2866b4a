package models

import "time"

// Secret scopes
const (
	SecretScopeSystem     = "system"
	SecretScopeCredential = "credential"
)

// Secret is one version of an envelope-encrypted value. Rows are append-only:
// rotation inserts a new version and deactivates the prior one, old ciphertext
// stays readable for audit history. For a given (scope, name) at most one row
// is active at any time.
type Secret struct {
	ID         string
	Scope      string
	Name       string
	Version    int
	IsActive   bool
	Ciphertext []byte
	KeyID      string
	// AAD binds the ciphertext to its semantic slot. It is replayed on decrypt
	// and must match what was used to encrypt.
	AAD       map[string]string
	CreatedAt time.Time
}

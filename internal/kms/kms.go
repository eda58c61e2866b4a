// Package kms wraps external key-management services behind a single
// encrypt/decrypt contract. Key ids carry a vendor prefix ("aws:", "gcp:",
// "local:") so callers never hold vendor-specific knowledge.
package kms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrKeyNotFound means the referenced key does not exist or is not usable.
	ErrKeyNotFound = errors.New("kms: key not found")
	// ErrDecryptionFailed covers wrong AAD, corrupted ciphertext and revoked
	// keys. It signals misconfiguration, not a transient fault; callers must
	// not retry.
	ErrDecryptionFailed = errors.New("kms: decryption failed")
)

// KeyManager encrypts and decrypts small payloads under a vendor-managed key.
// The aad binds a ciphertext to its semantic slot; decrypting with different
// aad fails rather than returning plaintext.
type KeyManager interface {
	Encrypt(ctx context.Context, keyRef string, plaintext []byte, aad map[string]string) ([]byte, error)
	Decrypt(ctx context.Context, keyRef string, ciphertext []byte, aad map[string]string) ([]byte, error)
}

// Resolver maps key ids of the form "vendor:ref" to a configured vendor
// client. Vendors are registered once at startup; resolution happens per
// operation and the resolved client is passed explicitly into the call.
type Resolver struct {
	managers map[string]KeyManager
}

func NewResolver() *Resolver {
	return &Resolver{managers: make(map[string]KeyManager)}
}

func (r *Resolver) Register(vendor string, km KeyManager) {
	r.managers[vendor] = km
}

// Resolve returns the vendor client for keyID along with the vendor-local
// key reference.
func (r *Resolver) Resolve(keyID string) (KeyManager, string, error) {
	vendor, ref, err := SplitKeyID(keyID)
	if err != nil {
		return nil, "", err
	}
	km, ok := r.managers[vendor]
	if !ok {
		return nil, "", fmt.Errorf("kms vendor %q not configured: %w", vendor, ErrKeyNotFound)
	}
	return km, ref, nil
}

// SplitKeyID splits "vendor:ref" into its parts.
func SplitKeyID(keyID string) (vendor, ref string, err error) {
	vendor, ref, ok := strings.Cut(keyID, ":")
	if !ok || vendor == "" || ref == "" {
		return "", "", fmt.Errorf("malformed key id %q (want vendor:ref): %w", keyID, ErrKeyNotFound)
	}
	return vendor, ref, nil
}

// canonicalAAD renders aad deterministically for vendors that take raw byte
// AAD. encoding/json sorts map keys, so equal maps always produce equal bytes.
func canonicalAAD(aad map[string]string) []byte {
	if len(aad) == 0 {
		return nil
	}
	b, _ := json.Marshal(aad)
	return b
}

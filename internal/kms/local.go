package kms

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// LocalKMS is an AES-256-GCM vendor keyed from configuration. It keeps the
// full envelope contract, including AAD binding, without a cloud dependency.
// Intended for development and tests; the key ref is accepted for interface
// parity but a single master key backs every ref.
type LocalKMS struct {
	aead cipher.AEAD
}

// NewLocalKMS expects a 64-character hex string (32 bytes).
func NewLocalKMS(masterKeyHex string) (*LocalKMS, error) {
	key, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode local kms master key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("local kms master key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &LocalKMS{aead: aead}, nil
}

func (k *LocalKMS) Encrypt(_ context.Context, _ string, plaintext []byte, aad map[string]string) ([]byte, error) {
	nonce := make([]byte, k.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	// nonce || ciphertext
	return k.aead.Seal(nonce, nonce, plaintext, canonicalAAD(aad)), nil
}

func (k *LocalKMS) Decrypt(_ context.Context, _ string, ciphertext []byte, aad map[string]string) ([]byte, error) {
	if len(ciphertext) < k.aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short: %w", ErrDecryptionFailed)
	}
	nonce, sealed := ciphertext[:k.aead.NonceSize()], ciphertext[k.aead.NonceSize():]
	pt, err := k.aead.Open(nil, nonce, sealed, canonicalAAD(aad))
	if err != nil {
		return nil, fmt.Errorf("local kms decrypt: %w", ErrDecryptionFailed)
	}
	return pt, nil
}

package kms

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	cloudkms "google.golang.org/api/cloudkms/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCPKMS encrypts under a Cloud KMS crypto key. Key refs are full resource
// names (projects/.../locations/.../keyRings/.../cryptoKeys/...). The AAD map
// is canonicalized to JSON and passed as additional authenticated data.
type GCPKMS struct {
	svc *cloudkms.Service
}

func NewGCPKMS(ctx context.Context, opts ...option.ClientOption) (*GCPKMS, error) {
	svc, err := cloudkms.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init cloudkms service: %w", err)
	}
	return &GCPKMS{svc: svc}, nil
}

func (k *GCPKMS) Encrypt(ctx context.Context, keyRef string, plaintext []byte, aad map[string]string) ([]byte, error) {
	req := &cloudkms.EncryptRequest{
		Plaintext:                   base64.StdEncoding.EncodeToString(plaintext),
		AdditionalAuthenticatedData: base64.StdEncoding.EncodeToString(canonicalAAD(aad)),
	}
	resp, err := k.svc.Projects.Locations.KeyRings.CryptoKeys.Encrypt(keyRef, req).Context(ctx).Do()
	if err != nil {
		return nil, gcpError("encrypt", keyRef, err)
	}
	ct, err := base64.StdEncoding.DecodeString(resp.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode cloudkms ciphertext: %w", err)
	}
	return ct, nil
}

func (k *GCPKMS) Decrypt(ctx context.Context, keyRef string, ciphertext []byte, aad map[string]string) ([]byte, error) {
	req := &cloudkms.DecryptRequest{
		Ciphertext:                  base64.StdEncoding.EncodeToString(ciphertext),
		AdditionalAuthenticatedData: base64.StdEncoding.EncodeToString(canonicalAAD(aad)),
	}
	resp, err := k.svc.Projects.Locations.KeyRings.CryptoKeys.Decrypt(keyRef, req).Context(ctx).Do()
	if err != nil {
		return nil, gcpError("decrypt", keyRef, err)
	}
	pt, err := base64.StdEncoding.DecodeString(resp.Plaintext)
	if err != nil {
		return nil, fmt.Errorf("decode cloudkms plaintext: %w", err)
	}
	return pt, nil
}

func gcpError(op, keyRef string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound, http.StatusForbidden:
			return fmt.Errorf("cloudkms key %s: %w", keyRef, ErrKeyNotFound)
		case http.StatusBadRequest:
			if op == "decrypt" {
				return fmt.Errorf("cloudkms decrypt: %v: %w", err, ErrDecryptionFailed)
			}
		}
	}
	return fmt.Errorf("cloudkms %s: %w", op, err)
}

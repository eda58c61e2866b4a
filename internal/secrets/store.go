// Package secrets is the versioned, envelope-encrypted secret store. Values
// are encrypted through a KMS vendor before anything touches the database;
// plaintext exists only inside the stack frame of the call that asked for it.
package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nimbushost/provision-service/internal/kms"
	"github.com/nimbushost/provision-service/internal/models"
	"github.com/nimbushost/provision-service/internal/repository"
)

// ErrDuplicateActiveSecret means an active secret already exists for the
// (scope, name); callers must rotate instead of creating.
var ErrDuplicateActiveSecret = errors.New("secrets: active secret already exists")

// Repository is the persistence surface the store needs. The pgx
// SecretRepository satisfies it.
type Repository interface {
	Insert(ctx context.Context, s *models.Secret) error
	GetByID(ctx context.Context, id string) (*models.Secret, error)
	GetActive(ctx context.Context, scope, name string) (*models.Secret, error)
	Rotate(ctx context.Context, deactivateID string, next *models.Secret) error
}

type Store struct {
	repo Repository
	keys *kms.Resolver
}

func NewStore(repo Repository, keys *kms.Resolver) *Store {
	return &Store{repo: repo, keys: keys}
}

// Create encrypts plaintext under keyID and persists version 1 as active.
func (s *Store) Create(ctx context.Context, scope, name, plaintext, keyID string, aad map[string]string) (*models.Secret, error) {
	existing, err := s.repo.GetActive(ctx, scope, name)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check active secret: %w", err)
	}
	if existing != nil {
		return nil, ErrDuplicateActiveSecret
	}

	km, ref, err := s.keys.Resolve(keyID)
	if err != nil {
		return nil, err
	}
	ciphertext, err := km.Encrypt(ctx, ref, []byte(plaintext), aad)
	if err != nil {
		return nil, fmt.Errorf("encrypt secret %s/%s: %w", scope, name, err)
	}

	secret := &models.Secret{
		ID:         uuid.New().String(),
		Scope:      scope,
		Name:       name,
		Version:    1,
		IsActive:   true,
		Ciphertext: ciphertext,
		KeyID:      keyID,
		AAD:        aad,
	}
	if err := s.repo.Insert(ctx, secret); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Lost a race with a concurrent create; the unique index held.
			return nil, ErrDuplicateActiveSecret
		}
		return nil, fmt.Errorf("persist secret: %w", err)
	}
	return secret, nil
}

// Rotate encrypts the new value and swaps it in as the next active version.
// The prior version is deactivated in the same transaction; it stays readable
// by id for history but is no longer the current value. Key id and AAD carry
// over unless overridden.
func (s *Store) Rotate(ctx context.Context, secretID, newPlaintext, keyID string, aad map[string]string) (*models.Secret, error) {
	prev, err := s.repo.GetByID(ctx, secretID)
	if err != nil {
		return nil, fmt.Errorf("load secret %s: %w", secretID, err)
	}
	if !prev.IsActive {
		return nil, fmt.Errorf("secret %s is not the active version", secretID)
	}

	if keyID == "" {
		keyID = prev.KeyID
	}
	if aad == nil {
		aad = prev.AAD
	}

	km, ref, err := s.keys.Resolve(keyID)
	if err != nil {
		return nil, err
	}
	ciphertext, err := km.Encrypt(ctx, ref, []byte(newPlaintext), aad)
	if err != nil {
		return nil, fmt.Errorf("encrypt rotated secret %s/%s: %w", prev.Scope, prev.Name, err)
	}

	next := &models.Secret{
		ID:         uuid.New().String(),
		Scope:      prev.Scope,
		Name:       prev.Name,
		Version:    prev.Version + 1,
		IsActive:   true,
		Ciphertext: ciphertext,
		KeyID:      keyID,
		AAD:        aad,
	}
	if err := s.repo.Rotate(ctx, prev.ID, next); err != nil {
		return nil, fmt.Errorf("rotate secret %s/%s: %w", prev.Scope, prev.Name, err)
	}
	return next, nil
}

// DecryptValue re-derives the plaintext from ciphertext on every call.
// Nothing is cached.
func (s *Store) DecryptValue(ctx context.Context, secretID string) (string, error) {
	secret, err := s.repo.GetByID(ctx, secretID)
	if err != nil {
		return "", fmt.Errorf("load secret %s: %w", secretID, err)
	}
	km, ref, err := s.keys.Resolve(secret.KeyID)
	if err != nil {
		return "", err
	}
	plaintext, err := km.Decrypt(ctx, ref, secret.Ciphertext, secret.AAD)
	if err != nil {
		return "", fmt.Errorf("decrypt secret %s/%s v%d: %w", secret.Scope, secret.Name, secret.Version, err)
	}
	return string(plaintext), nil
}

// ActiveValue decrypts the current active version for (scope, name).
func (s *Store) ActiveValue(ctx context.Context, scope, name string) (string, error) {
	secret, err := s.repo.GetActive(ctx, scope, name)
	if err != nil {
		return "", err
	}
	return s.DecryptValue(ctx, secret.ID)
}

package secrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbushost/provision-service/internal/kms"
	"github.com/nimbushost/provision-service/internal/models"
	"github.com/nimbushost/provision-service/internal/repository"
)

const testMasterKey = "ffeeddccbbaa99887766554433221100ffeeddccbbaa99887766554433221100"

// fakeSecretRepo mimics the pgx repository's semantics, including the
// single-active-version constraint.
type fakeSecretRepo struct {
	byID map[string]*models.Secret
}

func newFakeSecretRepo() *fakeSecretRepo {
	return &fakeSecretRepo{byID: make(map[string]*models.Secret)}
}

func (r *fakeSecretRepo) Insert(_ context.Context, s *models.Secret) error {
	for _, existing := range r.byID {
		if existing.Scope == s.Scope && existing.Name == s.Name && existing.IsActive && s.IsActive {
			return repository.ErrDuplicate
		}
	}
	cp := *s
	r.byID[s.ID] = &cp
	return nil
}

func (r *fakeSecretRepo) GetByID(_ context.Context, id string) (*models.Secret, error) {
	s, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSecretRepo) GetActive(_ context.Context, scope, name string) (*models.Secret, error) {
	for _, s := range r.byID {
		if s.Scope == scope && s.Name == name && s.IsActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeSecretRepo) Rotate(_ context.Context, deactivateID string, next *models.Secret) error {
	prev, ok := r.byID[deactivateID]
	if !ok || !prev.IsActive {
		return repository.ErrNotFound
	}
	prev.IsActive = false
	cp := *next
	r.byID[next.ID] = &cp
	return nil
}

func newTestStore(t *testing.T) (*Store, *fakeSecretRepo) {
	t.Helper()
	local, err := kms.NewLocalKMS(testMasterKey)
	require.NoError(t, err)
	resolver := kms.NewResolver()
	resolver.Register("local", local)
	repo := newFakeSecretRepo()
	return NewStore(repo, resolver), repo
}

func TestStoreCreateAndDecrypt(t *testing.T) {
	store, repo := newTestStore(t)
	ctx := context.Background()

	aad := map[string]string{"provider_id": "p-1", "label": "prod"}
	secret, err := store.Create(ctx, models.SecretScopeCredential, "p-1/prod", "hcloud-token", "local:default", aad)
	require.NoError(t, err)
	assert.Equal(t, 1, secret.Version)
	assert.True(t, secret.IsActive)
	assert.Equal(t, "local:default", secret.KeyID)

	// Plaintext must not be stored anywhere.
	stored := repo.byID[secret.ID]
	assert.NotContains(t, string(stored.Ciphertext), "hcloud-token")

	value, err := store.DecryptValue(ctx, secret.ID)
	require.NoError(t, err)
	assert.Equal(t, "hcloud-token", value)

	value, err = store.ActiveValue(ctx, models.SecretScopeCredential, "p-1/prod")
	require.NoError(t, err)
	assert.Equal(t, "hcloud-token", value)
}

func TestStoreCreateDuplicateActive(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, models.SecretScopeCredential, "p-1/prod", "token-a", "local:default", nil)
	require.NoError(t, err)

	_, err = store.Create(ctx, models.SecretScopeCredential, "p-1/prod", "token-b", "local:default", nil)
	assert.ErrorIs(t, err, ErrDuplicateActiveSecret)
}

func TestStoreRotate(t *testing.T) {
	store, repo := newTestStore(t)
	ctx := context.Background()

	aad := map[string]string{"provider_id": "p-1", "label": "prod"}
	v1, err := store.Create(ctx, models.SecretScopeCredential, "p-1/prod", "old-token", "local:default", aad)
	require.NoError(t, err)

	v2, err := store.Rotate(ctx, v1.ID, "new-token", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, v1.KeyID, v2.KeyID)
	assert.Equal(t, aad, v2.AAD)

	// Only the new version is active; the old ciphertext stays readable.
	assert.False(t, repo.byID[v1.ID].IsActive)
	assert.True(t, repo.byID[v2.ID].IsActive)

	value, err := store.ActiveValue(ctx, models.SecretScopeCredential, "p-1/prod")
	require.NoError(t, err)
	assert.Equal(t, "new-token", value)

	old, err := store.DecryptValue(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, "old-token", old)

	// Rotating the superseded version again is rejected.
	_, err = store.Rotate(ctx, v1.ID, "newer-token", "", nil)
	require.Error(t, err)
}

func TestStoreUnknownKeyVendor(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Create(context.Background(), models.SecretScopeSystem, "jwt-signing-key", "x", "aws:arn:missing", nil)
	assert.ErrorIs(t, err, kms.ErrKeyNotFound)
}

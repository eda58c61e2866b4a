package kms

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestLocalKMSRoundTrip(t *testing.T) {
	k, err := NewLocalKMS(testMasterKey)
	require.NoError(t, err)

	aad := map[string]string{"provider_id": "p-1", "label": "prod"}
	ciphertext, err := k.Encrypt(context.Background(), "default", []byte("api-token-value"), aad)
	require.NoError(t, err)
	assert.NotContains(t, string(ciphertext), "api-token-value")

	plaintext, err := k.Decrypt(context.Background(), "default", ciphertext, aad)
	require.NoError(t, err)
	assert.Equal(t, "api-token-value", string(plaintext))
}

func TestLocalKMSRejectsBadMasterKey(t *testing.T) {
	_, err := NewLocalKMS("too-short")
	require.Error(t, err)

	_, err = NewLocalKMS(strings.Repeat("zz", 32))
	require.Error(t, err)
}

func TestLocalKMSAADMismatch(t *testing.T) {
	k, err := NewLocalKMS(testMasterKey)
	require.NoError(t, err)

	ciphertext, err := k.Encrypt(context.Background(), "default", []byte("secret"), map[string]string{"purpose": "jwt"})
	require.NoError(t, err)

	_, err = k.Decrypt(context.Background(), "default", ciphertext, map[string]string{"purpose": "other"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	// nil AAD is not the same as the bound AAD either
	_, err = k.Decrypt(context.Background(), "default", ciphertext, nil)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestLocalKMSCorruptedCiphertext(t *testing.T) {
	k, err := NewLocalKMS(testMasterKey)
	require.NoError(t, err)

	ciphertext, err := k.Encrypt(context.Background(), "default", []byte("secret"), nil)
	require.NoError(t, err)

	ciphertext[len(ciphertext)-1] ^= 0xff
	_, err = k.Decrypt(context.Background(), "default", ciphertext, nil)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = k.Decrypt(context.Background(), "default", []byte("short"), nil)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestSplitKeyID(t *testing.T) {
	vendor, ref, err := SplitKeyID("aws:arn:aws:kms:eu-west-1:123:key/abc")
	require.NoError(t, err)
	assert.Equal(t, "aws", vendor)
	assert.Equal(t, "arn:aws:kms:eu-west-1:123:key/abc", ref)

	_, _, err = SplitKeyID("no-vendor-prefix")
	require.Error(t, err)
}

func TestResolver(t *testing.T) {
	k, err := NewLocalKMS(testMasterKey)
	require.NoError(t, err)

	r := NewResolver()
	r.Register("local", k)

	km, ref, err := r.Resolve("local:default")
	require.NoError(t, err)
	assert.Equal(t, k, km)
	assert.Equal(t, "default", ref)

	_, _, err = r.Resolve("gcp:projects/x/locations/y")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

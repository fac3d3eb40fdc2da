package encryption

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trust-engine/internal/config"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	cfg := config.LoadConfig()
	em := NewEncryptionManager(cfg, nil)
	ctx := context.Background()

	payload := []byte(`{"total_items":3,"pinned_count":1}`)
	sealed, err := em.Encrypt(ctx, payload)
	require.NoError(t, err)
	assert.NotEqual(t, string(payload), sealed.EncryptedValue)
	assert.NotEmpty(t, sealed.EncryptedDEK)
	assert.NotEmpty(t, sealed.KeyID)

	plain, err := em.Decrypt(ctx, sealed)
	require.NoError(t, err)
	assert.Equal(t, payload, plain)
}

func TestDecrypt_ColdKeyCache(t *testing.T) {
	cfg := config.LoadConfig()
	ctx := context.Background()

	sealed, err := NewEncryptionManager(cfg, nil).Encrypt(ctx, []byte("persisted recovery bundle"))
	require.NoError(t, err)

	// A fresh manager has an empty key cache, as after a restart. The
	// data key must be recoverable from the persisted record alone.
	plain, err := NewEncryptionManager(cfg, nil).Decrypt(ctx, sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted recovery bundle"), plain)
}

func TestDecrypt_RejectsTamperedCiphertext(t *testing.T) {
	cfg := config.LoadConfig()
	em := NewEncryptionManager(cfg, nil)
	ctx := context.Background()

	sealed, err := em.Encrypt(ctx, []byte("payload"))
	require.NoError(t, err)

	sealed.EncryptedValue = "not base64 at all!!!"
	_, err = em.Decrypt(ctx, sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

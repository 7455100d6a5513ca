package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/storage"
)

func createTestWallet(userID string) *domain.Wallet {
	return &domain.Wallet{
		UserID:             userID,
		SmartWalletAddress: "0x2222222222222222222222222222222222222222",
		SignerAddress:      "0x3333333333333333333333333333333333333333",
		EncryptedSignerKey: "c2VhbGVk",
		CreatedAt:          1000,
	}
}

func TestWalletStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewWalletStore(pool)

	wallet := createTestWallet("user-1")
	require.NoError(t, store.Insert(ctx, wallet))

	retrieved, err := store.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, wallet.SmartWalletAddress, retrieved.SmartWalletAddress)
	assert.Equal(t, wallet.SignerAddress, retrieved.SignerAddress)
	assert.Equal(t, wallet.EncryptedSignerKey, retrieved.EncryptedSignerKey)
}

func TestWalletStore_OneWalletPerUser(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewWalletStore(pool)

	require.NoError(t, store.Insert(ctx, createTestWallet("user-1")))

	err := store.Insert(ctx, createTestWallet("user-1"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestWalletStore_DeleteThenReinsert(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewWalletStore(pool)

	require.NoError(t, store.Insert(ctx, createTestWallet("user-1")))
	require.NoError(t, store.DeleteByUserID(ctx, "user-1"))

	_, err := store.GetByUserID(ctx, "user-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Regeneration inserts a fresh row for the same user.
	replacement := createTestWallet("user-1")
	replacement.SignerAddress = "0x4444444444444444444444444444444444444444"
	require.NoError(t, store.Insert(ctx, replacement))

	retrieved, err := store.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, replacement.SignerAddress, retrieved.SignerAddress)
}

func TestWalletStore_DeleteMissing(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewWalletStore(pool)

	err := store.DeleteByUserID(ctx, "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

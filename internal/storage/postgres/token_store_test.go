package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/storage"
)

func createTestToken(tokenID int64, artistName string) *domain.Token {
	return &domain.Token{
		TokenID:         tokenID,
		ArtistName:      artistName,
		ContractAddress: "0x1111111111111111111111111111111111111111",
		CreatorID:       "creator-1",
		BasePrice:       100_000,
		Coefficient:     10_000,
		IsActive:        true,
		CreatedAt:       1000,
		UpdatedAt:       1000,
	}
}

func TestTokenStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenStore(pool)

	token := createTestToken(1, "NOVA")
	require.NoError(t, store.Insert(ctx, token))

	retrieved, err := store.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, token.ArtistName, retrieved.ArtistName)
	assert.Equal(t, token.BasePrice, retrieved.BasePrice)
	assert.Equal(t, token.Coefficient, retrieved.Coefficient)
	assert.True(t, retrieved.IsActive)
	assert.Zero(t, retrieved.TotalSupply)
}

func TestTokenStore_GetByArtistName(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenStore(pool)

	require.NoError(t, store.Insert(ctx, createTestToken(1, "NOVA")))

	retrieved, err := store.GetByArtistName(ctx, "NOVA")
	require.NoError(t, err)
	assert.Equal(t, int64(1), retrieved.TokenID)

	_, err = store.GetByArtistName(ctx, "UNKNOWN")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTokenStore_InsertDuplicateArtistName(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenStore(pool)

	require.NoError(t, store.Insert(ctx, createTestToken(1, "NOVA")))

	err := store.Insert(ctx, createTestToken(2, "NOVA"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestTokenStore_ListActive(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenStore(pool)

	inactive := createTestToken(3, "AURA")
	inactive.IsActive = false

	require.NoError(t, store.Insert(ctx, createTestToken(1, "NOVA")))
	require.NoError(t, store.Insert(ctx, createTestToken(2, "LUMEN")))
	require.NoError(t, store.Insert(ctx, inactive))

	tokens, err := store.ListActive(ctx)
	require.NoError(t, err)

	require.Len(t, tokens, 2)
	assert.Equal(t, "LUMEN", tokens[0].ArtistName)
	assert.Equal(t, "NOVA", tokens[1].ArtistName)
}

func TestTokenStore_UpdateSupply(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenStore(pool)

	require.NoError(t, store.Insert(ctx, createTestToken(1, "NOVA")))
	require.NoError(t, store.UpdateSupply(ctx, 1, 25, 2000))

	retrieved, err := store.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), retrieved.TotalSupply)
	assert.Equal(t, int64(2000), retrieved.UpdatedAt)

	err = store.UpdateSupply(ctx, 99, 1, 2000)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

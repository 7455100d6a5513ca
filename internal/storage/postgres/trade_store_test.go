package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/storage"
)

func createTestTrade(tradeID, actorID, txHash string) *domain.Trade {
	return &domain.Trade{
		TradeID:            tradeID,
		TokenID:            7,
		ActorID:            actorID,
		Kind:               domain.TradeKindBuy,
		Units:              1,
		PricePerUnit:       500_000,
		GrossValue:         500_000,
		ReserveShare:       350_000,
		CommunityFundShare: 100_000,
		PlatformFee:        50_000,
		TxHash:             txHash,
		Status:             domain.TradeStatusPending,
		CreatedAt:          1000,
	}
}

func TestTradeStore_InsertAndGetByTxHash(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	trade := createTestTrade("trade-001", "user-1", "0xabc001")

	err := store.Insert(ctx, trade)
	require.NoError(t, err)

	retrieved, err := store.GetByTxHash(ctx, "0xabc001")
	require.NoError(t, err)

	assert.Equal(t, trade.TradeID, retrieved.TradeID)
	assert.Equal(t, trade.TokenID, retrieved.TokenID)
	assert.Equal(t, trade.ActorID, retrieved.ActorID)
	assert.Equal(t, trade.Kind, retrieved.Kind)
	assert.Equal(t, trade.Units, retrieved.Units)
	assert.Equal(t, trade.PricePerUnit, retrieved.PricePerUnit)
	assert.Equal(t, trade.GrossValue, retrieved.GrossValue)
	assert.Equal(t, trade.ReserveShare, retrieved.ReserveShare)
	assert.Equal(t, trade.CommunityFundShare, retrieved.CommunityFundShare)
	assert.Equal(t, trade.PlatformFee, retrieved.PlatformFee)
	assert.Equal(t, domain.TradeStatusPending, retrieved.Status)
	assert.Zero(t, retrieved.SettledAt)
}

func TestTradeStore_InsertDuplicateTxHash(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	err := store.Insert(ctx, createTestTrade("trade-dup-1", "user-1", "0xdup"))
	require.NoError(t, err)

	// Same tx_hash under a fresh trade_id must still be rejected.
	err = store.Insert(ctx, createTestTrade("trade-dup-2", "user-1", "0xdup"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestTradeStore_GetByTxHashNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	_, err := store.GetByTxHash(ctx, "0xmissing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTradeStore_MarkConfirmedExactlyOnce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	err := store.Insert(ctx, createTestTrade("trade-conf", "user-1", "0xconf"))
	require.NoError(t, err)

	applied, err := store.MarkConfirmed(ctx, "0xconf", 42, 2000)
	require.NoError(t, err)
	assert.True(t, applied)

	// A retry must not report the transition again.
	applied, err = store.MarkConfirmed(ctx, "0xconf", 42, 2001)
	require.NoError(t, err)
	assert.False(t, applied)

	retrieved, err := store.GetByTxHash(ctx, "0xconf")
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusConfirmed, retrieved.Status)
	assert.Equal(t, uint64(42), retrieved.BlockNumber)
	assert.Equal(t, int64(2000), retrieved.SettledAt)
}

func TestTradeStore_MarkConfirmedMissing(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	_, err := store.MarkConfirmed(ctx, "0xnothing", 1, 100)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTradeStore_MarkFailedKeepsReason(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	err := store.Insert(ctx, createTestTrade("trade-fail", "user-1", "0xfail"))
	require.NoError(t, err)

	applied, err := store.MarkFailed(ctx, "0xfail", "ERC20: transfer amount exceeds balance", 3000)
	require.NoError(t, err)
	assert.True(t, applied)

	retrieved, err := store.GetByTxHash(ctx, "0xfail")
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusFailed, retrieved.Status)
	assert.Equal(t, "ERC20: transfer amount exceeds balance", retrieved.FailReason)

	// A failed trade can never be confirmed afterwards.
	applied, err = store.MarkConfirmed(ctx, "0xfail", 9, 3100)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestTradeStore_GetByActor(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	first := createTestTrade("trade-a1", "actor-1", "0xa1")
	first.CreatedAt = 1000
	second := createTestTrade("trade-a2", "actor-1", "0xa2")
	second.CreatedAt = 2000
	other := createTestTrade("trade-b1", "actor-2", "0xb1")

	for _, tr := range []*domain.Trade{first, second, other} {
		require.NoError(t, store.Insert(ctx, tr))
	}

	result, err := store.GetByActor(ctx, "actor-1")
	require.NoError(t, err)

	require.Len(t, result, 2)
	assert.Equal(t, "trade-a2", result[0].TradeID)
	assert.Equal(t, "trade-a1", result[1].TradeID)
}

func TestTradeStore_GetByStatus(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	pendingOld := createTestTrade("trade-p1", "actor-1", "0xp1")
	pendingOld.CreatedAt = 1000
	pendingNew := createTestTrade("trade-p2", "actor-1", "0xp2")
	pendingNew.CreatedAt = 2000
	confirmed := createTestTrade("trade-c1", "actor-1", "0xc1")

	for _, tr := range []*domain.Trade{pendingOld, pendingNew, confirmed} {
		require.NoError(t, store.Insert(ctx, tr))
	}
	_, err := store.MarkConfirmed(ctx, "0xc1", 5, 2500)
	require.NoError(t, err)

	result, err := store.GetByStatus(ctx, domain.TradeStatusPending)
	require.NoError(t, err)

	require.Len(t, result, 2)
	assert.Equal(t, "trade-p1", result[0].TradeID)
	assert.Equal(t, "trade-p2", result[1].TradeID)
}

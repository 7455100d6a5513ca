package postgres

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/storage"
)

func createTestAgent(agentID, keyHash string) *domain.BotAgent {
	return &domain.BotAgent{
		AgentID:      agentID,
		Name:         "test-agent",
		APIKeyHash:   keyHash,
		DailyLimit:   100_000_000, // $100
		LimitResetAt: 86_400_000,
		CreatedAt:    1000,
	}
}

func TestBotAgentStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewBotAgentStore(pool)

	agent := createTestAgent("agent-1", "hash-1")
	require.NoError(t, store.Insert(ctx, agent))

	byID, err := store.GetByID(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, agent.Name, byID.Name)
	assert.Equal(t, agent.DailyLimit, byID.DailyLimit)
	assert.Zero(t, byID.SpentToday)

	byHash, err := store.GetByAPIKeyHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", byHash.AgentID)
}

func TestBotAgentStore_InsertDuplicateKeyHash(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewBotAgentStore(pool)

	require.NoError(t, store.Insert(ctx, createTestAgent("agent-1", "shared-hash")))

	err := store.Insert(ctx, createTestAgent("agent-2", "shared-hash"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestBotAgentStore_ReserveSpendAtLimit(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewBotAgentStore(pool)

	require.NoError(t, store.Insert(ctx, createTestAgent("agent-1", "hash-1")))

	// $98 fits under the $100 limit.
	require.NoError(t, store.ReserveSpend(ctx, "agent-1", 98_000_000, 1000))

	// A further $5 would cross the cap and must leave the counter alone.
	err := store.ReserveSpend(ctx, "agent-1", 5_000_000, 1001)
	assert.ErrorIs(t, err, storage.ErrLimitExceeded)

	agent, err := store.GetByID(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(98_000_000), agent.SpentToday)

	// Exactly reaching the limit is allowed.
	require.NoError(t, store.ReserveSpend(ctx, "agent-1", 2_000_000, 1002))
}

func TestBotAgentStore_ReserveSpendConcurrent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewBotAgentStore(pool)

	agent := createTestAgent("agent-conc", "hash-conc")
	agent.DailyLimit = 10_000_000 // room for exactly 10 reservations
	require.NoError(t, store.Insert(ctx, agent))

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.ReserveSpend(ctx, "agent-conc", 1_000_000, 1000); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, granted)

	final, err := store.GetByID(ctx, "agent-conc")
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), final.SpentToday)
}

func TestBotAgentStore_ReserveSpendResetsAtBoundary(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewBotAgentStore(pool)

	require.NoError(t, store.Insert(ctx, createTestAgent("agent-reset", "hash-reset")))
	require.NoError(t, store.ReserveSpend(ctx, "agent-reset", 99_000_000, 1000))

	// Past the reset boundary the counter starts fresh.
	require.NoError(t, store.ReserveSpend(ctx, "agent-reset", 99_000_000, 86_400_000))

	agent, err := store.GetByID(ctx, "agent-reset")
	require.NoError(t, err)
	assert.Equal(t, int64(99_000_000), agent.SpentToday)
	assert.Greater(t, agent.LimitResetAt, int64(86_400_000))
}

func TestBotAgentStore_ReserveSpendMissingAgent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewBotAgentStore(pool)

	err := store.ReserveSpend(ctx, "nonexistent", 1_000_000, 1000)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBotAgentStore_ReleaseSpendFloorsAtZero(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewBotAgentStore(pool)

	require.NoError(t, store.Insert(ctx, createTestAgent("agent-rel", "hash-rel")))
	require.NoError(t, store.ReserveSpend(ctx, "agent-rel", 5_000_000, 1000))

	// Releasing more than reserved clamps to zero.
	require.NoError(t, store.ReleaseSpend(ctx, "agent-rel", 9_000_000))

	agent, err := store.GetByID(ctx, "agent-rel")
	require.NoError(t, err)
	assert.Zero(t, agent.SpentToday)
}

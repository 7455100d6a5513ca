package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/storage"
)

func newTestAgent(id string, limit int64) *domain.BotAgent {
	return &domain.BotAgent{
		AgentID:      id,
		Name:         "agent-" + id,
		APIKeyHash:   "hash-" + id,
		DailyLimit:   limit,
		LimitResetAt: NextUTCMidnightMs(time.Now().UnixMilli()),
	}
}

func TestBotAgentStore_InsertAndGet(t *testing.T) {
	store := NewBotAgentStore()
	ctx := context.Background()

	if err := store.Insert(ctx, newTestAgent("a1", 100_000_000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByAPIKeyHash(ctx, "hash-a1")
	if err != nil {
		t.Fatalf("GetByAPIKeyHash failed: %v", err)
	}
	if got.AgentID != "a1" {
		t.Errorf("AgentID mismatch: got %s, want a1", got.AgentID)
	}
}

func TestBotAgentStore_DuplicateKeyHash(t *testing.T) {
	store := NewBotAgentStore()
	ctx := context.Background()

	if err := store.Insert(ctx, newTestAgent("a1", 100_000_000)); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	dup := newTestAgent("a2", 100_000_000)
	dup.APIKeyHash = "hash-a1"
	if err := store.Insert(ctx, dup); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestBotAgentStore_ReserveSpend_AtLimit(t *testing.T) {
	// Agent with dailyLimit=$100, spentToday=$98: a $5 reserve is
	// rejected and the counter stays at $98.
	store := NewBotAgentStore()
	ctx := context.Background()
	now := time.Now().UnixMilli()

	agent := newTestAgent("a1", 100_000_000)
	if err := store.Insert(ctx, agent); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.ReserveSpend(ctx, "a1", 98_000_000, now); err != nil {
		t.Fatalf("ReserveSpend to $98 failed: %v", err)
	}

	err := store.ReserveSpend(ctx, "a1", 5_000_000, now)
	if !errors.Is(err, storage.ErrLimitExceeded) {
		t.Errorf("Expected ErrLimitExceeded, got %v", err)
	}

	got, _ := store.GetByID(ctx, "a1")
	if got.SpentToday != 98_000_000 {
		t.Errorf("SpentToday changed on rejection: got %d, want 98000000", got.SpentToday)
	}
}

func TestBotAgentStore_ReserveSpend_Concurrent(t *testing.T) {
	// N concurrent reserves for one agent: accepted spend never exceeds
	// the daily limit.
	store := NewBotAgentStore()
	ctx := context.Background()
	now := time.Now().UnixMilli()

	const (
		limit  = 10_000_000 // $10
		unit   = 1_000_000  // $1 per request
		nReqs  = 50
	)

	agent := newTestAgent("a1", limit)
	if err := store.Insert(ctx, agent); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	var accepted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < nReqs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.ReserveSpend(ctx, "a1", unit, now); err == nil {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	if total := accepted.Load() * unit; total > limit {
		t.Errorf("accepted spend %d exceeds limit %d", total, limit)
	}
	if accepted.Load() != limit/unit {
		t.Errorf("accepted %d requests, want %d", accepted.Load(), limit/unit)
	}
}

func TestBotAgentStore_ReserveSpend_ResetsAtBoundary(t *testing.T) {
	store := NewBotAgentStore()
	ctx := context.Background()

	agent := newTestAgent("a1", 10_000_000)
	agent.SpentToday = 9_000_000
	agent.LimitResetAt = 1_000 // boundary long past
	if err := store.Insert(ctx, agent); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	now := time.Now().UnixMilli()
	if err := store.ReserveSpend(ctx, "a1", 5_000_000, now); err != nil {
		t.Fatalf("ReserveSpend after boundary failed: %v", err)
	}

	got, _ := store.GetByID(ctx, "a1")
	if got.SpentToday != 5_000_000 {
		t.Errorf("SpentToday after reset: got %d, want 5000000", got.SpentToday)
	}
	if got.LimitResetAt <= now {
		t.Errorf("LimitResetAt not rolled forward: %d <= %d", got.LimitResetAt, now)
	}
}

func TestBotAgentStore_ReleaseSpend_FloorsAtZero(t *testing.T) {
	store := NewBotAgentStore()
	ctx := context.Background()
	now := time.Now().UnixMilli()

	agent := newTestAgent("a1", 10_000_000)
	if err := store.Insert(ctx, agent); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.ReserveSpend(ctx, "a1", 2_000_000, now); err != nil {
		t.Fatalf("ReserveSpend failed: %v", err)
	}

	if err := store.ReleaseSpend(ctx, "a1", 5_000_000); err != nil {
		t.Fatalf("ReleaseSpend failed: %v", err)
	}

	got, _ := store.GetByID(ctx, "a1")
	if got.SpentToday != 0 {
		t.Errorf("SpentToday went below zero: got %d", got.SpentToday)
	}
}

func TestNextUTCMidnightMs(t *testing.T) {
	// 2026-03-10 15:04:05 UTC -> 2026-03-11 00:00:00 UTC
	now := time.Date(2026, 3, 10, 15, 4, 5, 0, time.UTC)
	want := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC).UnixMilli()
	if got := NextUTCMidnightMs(now.UnixMilli()); got != want {
		t.Errorf("NextUTCMidnightMs: got %d, want %d", got, want)
	}

	// Exactly at midnight rolls to the next day.
	mid := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	wantNext := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC).UnixMilli()
	if got := NextUTCMidnightMs(mid.UnixMilli()); got != wantNext {
		t.Errorf("NextUTCMidnightMs at midnight: got %d, want %d", got, wantNext)
	}
}

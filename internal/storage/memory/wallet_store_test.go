package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/storage"
)

func newTestWallet(userID string) *domain.Wallet {
	return &domain.Wallet{
		UserID:             userID,
		SmartWalletAddress: "0xSmart" + userID,
		SignerAddress:      "0xSigner" + userID,
		EncryptedSignerKey: "ciphertext-" + userID,
		CreatedAt:          1000,
	}
}

func TestWalletStore_InsertAndGet(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	if err := store.Insert(ctx, newTestWallet("u1")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByUserID(ctx, "u1")
	if err != nil {
		t.Fatalf("GetByUserID failed: %v", err)
	}
	if got.SmartWalletAddress != "0xSmartu1" {
		t.Errorf("SmartWalletAddress mismatch: got %s", got.SmartWalletAddress)
	}
}

func TestWalletStore_OneWalletPerUser(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	if err := store.Insert(ctx, newTestWallet("u1")); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, newTestWallet("u1"))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestWalletStore_ConcurrentInsert_SingleWinner(t *testing.T) {
	// Concurrent creation attempts resolve via the unique constraint:
	// exactly one insert wins, the rest see ErrDuplicateKey and refetch.
	store := NewWalletStore()
	ctx := context.Background()

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Insert(ctx, newTestWallet("u1")); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("Expected exactly 1 winning insert, got %d", wins.Load())
	}
}

func TestWalletStore_DeleteThenReinsert(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	if err := store.Insert(ctx, newTestWallet("u1")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.DeleteByUserID(ctx, "u1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := store.GetByUserID(ctx, "u1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}

	// Regeneration inserts a fresh row.
	fresh := newTestWallet("u1")
	fresh.SmartWalletAddress = "0xSmartNew"
	if err := store.Insert(ctx, fresh); err != nil {
		t.Fatalf("Reinsert failed: %v", err)
	}
}

func TestWalletStore_DeleteMissing(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	if err := store.DeleteByUserID(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

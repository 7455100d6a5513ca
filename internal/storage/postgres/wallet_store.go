package postgres

import (
	"context"
	"fmt"

	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL. The
// unique constraint on user_id is the race arbiter for concurrent
// wallet creation; callers refetch on ErrDuplicateKey.
type WalletStore struct {
	pool *Pool
}

// NewWalletStore creates a new WalletStore.
func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

// Insert adds a wallet. Returns ErrDuplicateKey if the user already has one.
func (s *WalletStore) Insert(ctx context.Context, w *domain.Wallet) error {
	query := `
		INSERT INTO wallets (
			user_id, smart_wallet_address, signer_address,
			encrypted_signer_key, created_at
		) VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		w.UserID, w.SmartWalletAddress, w.SignerAddress,
		w.EncryptedSignerKey, w.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByUserID retrieves a user's wallet.
func (s *WalletStore) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	query := `
		SELECT user_id, smart_wallet_address, signer_address,
		       encrypted_signer_key, created_at
		FROM wallets
		WHERE user_id = $1
	`

	var w domain.Wallet
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&w.UserID, &w.SmartWalletAddress, &w.SignerAddress,
		&w.EncryptedSignerKey, &w.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet by user id: %w", err)
	}
	return &w, nil
}

// DeleteByUserID removes a user's wallet and key material.
func (s *WalletStore) DeleteByUserID(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM wallets WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

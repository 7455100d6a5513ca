// Package vault manages custodial signing keys: generation, encryption
// at rest, smart-wallet address prediction, and scoped signing access.
// Plaintext keys never leave this package except inside a WithSigner
// callback.
package vault

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"fantoken-engine/internal/chain"
	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/storage"
	"fantoken-engine/internal/trading"
)

// Vault is the custodial wallet manager.
type Vault struct {
	wallets storage.WalletStore
	client  chain.Client
	secret  []byte
	logger  *log.Logger
	now     func() int64
}

// New creates a Vault. The secret is the server-side KDF input; it must
// be stable across restarts or existing wallets become undecryptable.
func New(wallets storage.WalletStore, client chain.Client, secret []byte, logger *log.Logger) *Vault {
	return &Vault{
		wallets: wallets,
		client:  client,
		secret:  secret,
		logger:  logger,
		now:     func() int64 { return time.Now().UnixMilli() },
	}
}

// CreateWallet returns the user's wallet, creating one if absent. The
// unique constraint on user_id arbitrates concurrent creation: losers of
// the race refetch the winner's row instead of failing.
func (v *Vault) CreateWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	if userID == "" {
		return nil, trading.New(trading.CodeValidation, "user id is required")
	}

	existing, err := v.wallets.GetByUserID(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	wallet, err := v.generate(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := v.wallets.Insert(ctx, wallet); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Lost the creation race; the stored row wins.
			return v.wallets.GetByUserID(ctx, userID)
		}
		return nil, fmt.Errorf("insert wallet: %w", err)
	}

	v.logger.Printf("created wallet for user %s signer %s", userID, wallet.SignerAddress)
	return wallet, nil
}

// RegenerateWallet discards the user's wallet, if any, and creates a
// fresh one. The old key material is unrecoverable afterwards.
func (v *Vault) RegenerateWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	if userID == "" {
		return nil, trading.New(trading.CodeValidation, "user id is required")
	}

	if err := v.wallets.DeleteByUserID(ctx, userID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("delete wallet: %w", err)
	}

	wallet, err := v.generate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := v.wallets.Insert(ctx, wallet); err != nil {
		return nil, fmt.Errorf("insert regenerated wallet: %w", err)
	}

	v.logger.Printf("regenerated wallet for user %s signer %s", userID, wallet.SignerAddress)
	return wallet, nil
}

// GetWallet retrieves the user's wallet without touching key material.
func (v *Vault) GetWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	return v.wallets.GetByUserID(ctx, userID)
}

// WithSigner decrypts the user's signing key, verifies it still derives
// the stored signer address, and hands it to fn. Key material is zeroed
// when fn returns. An address mismatch means the ciphertext has been
// corrupted or swapped and is fatal: no signing happens.
func (v *Vault) WithSigner(ctx context.Context, userID string, fn func(key *ecdsa.PrivateKey) error) error {
	wallet, err := v.wallets.GetByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get wallet: %w", err)
	}

	raw, err := DecryptKey(v.secret, wallet.EncryptedSignerKey)
	if err != nil {
		return trading.Wrap(trading.CodeWalletKeyMismatch, "signer key cannot be decrypted", err)
	}
	defer zero(raw)

	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return trading.Wrap(trading.CodeWalletKeyMismatch, "signer key is not a valid private key", err)
	}

	derived := crypto.PubkeyToAddress(key.PublicKey).Hex()
	if derived != wallet.SignerAddress {
		return trading.Newf(trading.CodeWalletKeyMismatch,
			"decrypted key derives %s, wallet records %s", derived, wallet.SignerAddress)
	}

	return fn(key)
}

// generate produces a fresh wallet row: random key, derived signer
// address, factory-predicted smart-wallet address, encrypted key blob.
func (v *Vault) generate(ctx context.Context, userID string) (*domain.Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	raw := crypto.FromECDSA(key)
	defer zero(raw)

	signer := crypto.PubkeyToAddress(key.PublicKey).Hex()

	smartWallet, err := v.client.PredictWalletAddress(ctx, signer, 0)
	if err != nil {
		return nil, trading.Wrap(trading.CodeOnchainUnavailable, "wallet address prediction failed", err)
	}

	sealed, err := EncryptKey(v.secret, raw)
	if err != nil {
		return nil, fmt.Errorf("encrypt signing key: %w", err)
	}

	return &domain.Wallet{
		UserID:             userID,
		SmartWalletAddress: smartWallet,
		SignerAddress:      signer,
		EncryptedSignerKey: sealed,
		CreatedAt:          v.now(),
	}, nil
}

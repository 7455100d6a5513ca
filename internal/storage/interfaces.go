package storage

import (
	"context"

	"fantoken-engine/internal/domain"
)

// TokenStore provides access to fan-token storage.
type TokenStore interface {
	// Insert adds a new token. Returns ErrDuplicateKey if token_id or
	// artist_name exists.
	Insert(ctx context.Context, t *domain.Token) error

	// GetByID retrieves a token by its chain identity. Returns ErrNotFound
	// if not exists.
	GetByID(ctx context.Context, tokenID int64) (*domain.Token, error)

	// GetByArtistName retrieves a token by its unique artist name.
	// Returns ErrNotFound if not exists.
	GetByArtistName(ctx context.Context, artistName string) (*domain.Token, error)

	// ListActive retrieves all active tokens ordered by artist name.
	ListActive(ctx context.Context) ([]*domain.Token, error)

	// UpdateSupply records the confirmed on-chain supply. Never called
	// speculatively; the chain is the source of truth.
	UpdateSupply(ctx context.Context, tokenID int64, supply uint64, updatedAtMs int64) error
}

// WalletStore provides access to custodial wallet storage.
// The unique-wallet-per-user invariant is enforced here: Insert fails
// with ErrDuplicateKey for an existing user, and callers resolve races
// by refetching on conflict rather than pre-checking.
type WalletStore interface {
	// Insert adds a wallet. Returns ErrDuplicateKey if the user already
	// has one.
	Insert(ctx context.Context, w *domain.Wallet) error

	// GetByUserID retrieves a user's wallet. Returns ErrNotFound if not
	// exists.
	GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error)

	// DeleteByUserID removes a user's wallet and key material. Returns
	// ErrNotFound if not exists.
	DeleteByUserID(ctx context.Context, userID string) error
}

// TradeStore provides access to trade storage. tx_hash is unique and is
// the idempotency key for the settlement saga.
type TradeStore interface {
	// Insert adds a trade. Returns ErrDuplicateKey if tx_hash exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// GetByTxHash retrieves a trade by transaction hash. Returns
	// ErrNotFound if not exists.
	GetByTxHash(ctx context.Context, txHash string) (*domain.Trade, error)

	// GetByActor retrieves all trades for an actor, newest first.
	GetByActor(ctx context.Context, actorID string) ([]*domain.Trade, error)

	// GetByStatus retrieves all trades in the given status, oldest first.
	GetByStatus(ctx context.Context, status string) ([]*domain.Trade, error)

	// MarkConfirmed transitions a PENDING trade to CONFIRMED. Returns
	// false if the trade was not PENDING (already terminal), making the
	// downstream ledger write exactly-once per hash.
	MarkConfirmed(ctx context.Context, txHash string, blockNumber uint64, settledAtMs int64) (bool, error)

	// MarkFailed transitions a PENDING trade to FAILED with the chain
	// revert reason. Returns false if the trade was not PENDING.
	MarkFailed(ctx context.Context, txHash string, reason string, settledAtMs int64) (bool, error)
}

// BotAgentStore provides access to bot agent storage. ReserveSpend and
// ReleaseSpend are the contention-safe daily-cap primitives.
type BotAgentStore interface {
	// Insert adds an agent. Returns ErrDuplicateKey if agent_id or
	// api_key_hash exists.
	Insert(ctx context.Context, a *domain.BotAgent) error

	// GetByID retrieves an agent. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, agentID string) (*domain.BotAgent, error)

	// GetByAPIKeyHash retrieves an agent by its key hash. Returns
	// ErrNotFound if not exists.
	GetByAPIKeyHash(ctx context.Context, hash string) (*domain.BotAgent, error)

	// ReserveSpend atomically adds amount to the agent's daily spend,
	// resetting the counter first if nowMs has passed the UTC boundary.
	// Returns ErrLimitExceeded (and leaves the counter unchanged) if the
	// increment would exceed the daily limit, even under concurrent
	// requests.
	ReserveSpend(ctx context.Context, agentID string, amount int64, nowMs int64) error

	// ReleaseSpend returns previously reserved spend after a failed or
	// rejected trade. The counter never goes below zero.
	ReleaseSpend(ctx context.Context, agentID string, amount int64) error
}

// FundLedgerStore provides access to the per-entity community-fund
// ledger. Mutated only by the fee distributor after confirmation.
type FundLedgerStore interface {
	// Credit adds amount to an entity's running total, creating the
	// entry if absent.
	Credit(ctx context.Context, entityID string, amount int64, updatedAtMs int64) error

	// GetByEntity retrieves an entity's entry. Returns ErrNotFound if
	// not exists.
	GetByEntity(ctx context.Context, entityID string) (*domain.FundLedgerEntry, error)

	// SumAll returns the ledger-wide total in micro-USD.
	SumAll(ctx context.Context) (int64, error)
}

// PriceObservationStore records on-chain quotes for analytics.
type PriceObservationStore interface {
	// Insert adds an observation. Duplicates are tolerated.
	Insert(ctx context.Context, o *domain.PriceObservation) error

	// GetRecent retrieves observations for a token at or after sinceMs,
	// ordered by timestamp ASC.
	GetRecent(ctx context.Context, tokenID int64, sinceMs int64) ([]*domain.PriceObservation, error)
}

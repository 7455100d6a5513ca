package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL. The unique
// index on tx_hash plus conditional status updates make the settlement
// saga idempotent by transaction hash.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	trade_id, token_id, actor_id, kind, units, price_per_unit, gross_value,
	reserve_share, community_fund_share, platform_fee,
	tx_hash, block_number, status, fail_reason, created_at, settled_at
`

// Insert adds a trade. Returns ErrDuplicateKey if tx_hash exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	query := `
		INSERT INTO trades (
			trade_id, token_id, actor_id, kind, units, price_per_unit, gross_value,
			reserve_share, community_fund_share, platform_fee,
			tx_hash, block_number, status, fail_reason, created_at, settled_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10,
			$11, $12, $13, $14, $15, $16
		)
	`

	_, err := s.pool.Exec(ctx, query,
		t.TradeID, t.TokenID, t.ActorID, t.Kind, int64(t.Units), t.PricePerUnit, t.GrossValue,
		t.ReserveShare, t.CommunityFundShare, t.PlatformFee,
		t.TxHash, int64(t.BlockNumber), t.Status, t.FailReason, t.CreatedAt, t.SettledAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// GetByTxHash retrieves a trade by transaction hash.
func (s *TradeStore) GetByTxHash(ctx context.Context, txHash string) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE tx_hash = $1`

	t, err := scanTrade(s.pool.QueryRow(ctx, query, txHash))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by tx hash: %w", err)
	}
	return t, nil
}

// GetByActor retrieves all trades for an actor, newest first.
func (s *TradeStore) GetByActor(ctx context.Context, actorID string) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE actor_id = $1 ORDER BY created_at DESC, trade_id DESC`

	rows, err := s.pool.Query(ctx, query, actorID)
	if err != nil {
		return nil, fmt.Errorf("get trades by actor: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetByStatus retrieves all trades in the given status, oldest first.
func (s *TradeStore) GetByStatus(ctx context.Context, status string) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE status = $1 ORDER BY created_at ASC, trade_id ASC`

	rows, err := s.pool.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("get trades by status: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// MarkConfirmed transitions a PENDING trade to CONFIRMED. The WHERE
// clause on status makes the transition exactly-once under retries.
func (s *TradeStore) MarkConfirmed(ctx context.Context, txHash string, blockNumber uint64, settledAtMs int64) (bool, error) {
	query := `
		UPDATE trades
		SET status = $2, block_number = $3, settled_at = $4
		WHERE tx_hash = $1 AND status = $5
	`

	tag, err := s.pool.Exec(ctx, query, txHash, domain.TradeStatusConfirmed, int64(blockNumber), settledAtMs, domain.TradeStatusPending)
	if err != nil {
		return false, fmt.Errorf("mark trade confirmed: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Distinguish "already terminal" from "no such trade".
	if _, err := s.GetByTxHash(ctx, txHash); err != nil {
		return false, err
	}
	return false, nil
}

// MarkFailed transitions a PENDING trade to FAILED with the chain revert
// reason.
func (s *TradeStore) MarkFailed(ctx context.Context, txHash string, reason string, settledAtMs int64) (bool, error) {
	query := `
		UPDATE trades
		SET status = $2, fail_reason = $3, settled_at = $4
		WHERE tx_hash = $1 AND status = $5
	`

	tag, err := s.pool.Exec(ctx, query, txHash, domain.TradeStatusFailed, reason, settledAtMs, domain.TradeStatusPending)
	if err != nil {
		return false, fmt.Errorf("mark trade failed: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	if _, err := s.GetByTxHash(ctx, txHash); err != nil {
		return false, err
	}
	return false, nil
}

// scanTrade scans a single row into a Trade.
func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var t domain.Trade
	var units, blockNumber int64

	err := row.Scan(
		&t.TradeID, &t.TokenID, &t.ActorID, &t.Kind, &units, &t.PricePerUnit, &t.GrossValue,
		&t.ReserveShare, &t.CommunityFundShare, &t.PlatformFee,
		&t.TxHash, &blockNumber, &t.Status, &t.FailReason, &t.CreatedAt, &t.SettledAt,
	)
	if err != nil {
		return nil, err
	}

	t.Units = uint64(units)
	t.BlockNumber = uint64(blockNumber)
	return &t, nil
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}

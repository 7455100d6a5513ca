package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

const tokenColumns = `
	token_id, artist_name, contract_address, creator_id,
	base_price, coefficient, total_supply, is_active,
	created_at, updated_at
`

// Insert adds a new token. Returns ErrDuplicateKey if token_id or
// artist_name exists.
func (s *TokenStore) Insert(ctx context.Context, t *domain.Token) error {
	query := `
		INSERT INTO tokens (
			token_id, artist_name, contract_address, creator_id,
			base_price, coefficient, total_supply, is_active,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.pool.Exec(ctx, query,
		t.TokenID, t.ArtistName, t.ContractAddress, t.CreatorID,
		t.BasePrice, t.Coefficient, int64(t.TotalSupply), t.IsActive,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// GetByID retrieves a token by its chain identity.
func (s *TokenStore) GetByID(ctx context.Context, tokenID int64) (*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE token_id = $1`

	t, err := scanToken(s.pool.QueryRow(ctx, query, tokenID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token by id: %w", err)
	}
	return t, nil
}

// GetByArtistName retrieves a token by its unique artist name.
func (s *TokenStore) GetByArtistName(ctx context.Context, artistName string) (*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE artist_name = $1`

	t, err := scanToken(s.pool.QueryRow(ctx, query, artistName))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token by artist name: %w", err)
	}
	return t, nil
}

// ListActive retrieves all active tokens ordered by artist name.
func (s *TokenStore) ListActive(ctx context.Context) ([]*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE is_active ORDER BY artist_name ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*domain.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token row: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token rows: %w", err)
	}

	return tokens, nil
}

// UpdateSupply records the confirmed on-chain supply.
func (s *TokenStore) UpdateSupply(ctx context.Context, tokenID int64, supply uint64, updatedAtMs int64) error {
	query := `UPDATE tokens SET total_supply = $2, updated_at = $3 WHERE token_id = $1`

	tag, err := s.pool.Exec(ctx, query, tokenID, int64(supply), updatedAtMs)
	if err != nil {
		return fmt.Errorf("update token supply: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanToken scans a single row into a Token.
func scanToken(row pgx.Row) (*domain.Token, error) {
	var t domain.Token
	var supply int64

	err := row.Scan(
		&t.TokenID, &t.ArtistName, &t.ContractAddress, &t.CreatorID,
		&t.BasePrice, &t.Coefficient, &supply, &t.IsActive,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.TotalSupply = uint64(supply)
	return &t, nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/storage"
)

// BotAgentStore implements storage.BotAgentStore using PostgreSQL.
// ReserveSpend uses a single guarded UPDATE (spent_today + x <= limit)
// so that concurrent requests for one agent cannot jointly exceed the
// daily cap regardless of interleaving.
type BotAgentStore struct {
	pool *Pool
}

// NewBotAgentStore creates a new BotAgentStore.
func NewBotAgentStore(pool *Pool) *BotAgentStore {
	return &BotAgentStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BotAgentStore = (*BotAgentStore)(nil)

// Insert adds an agent. Returns ErrDuplicateKey if agent_id or
// api_key_hash exists.
func (s *BotAgentStore) Insert(ctx context.Context, a *domain.BotAgent) error {
	query := `
		INSERT INTO bot_agents (
			agent_id, name, api_key_hash, daily_limit,
			spent_today, limit_reset_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		a.AgentID, a.Name, a.APIKeyHash, a.DailyLimit,
		a.SpentToday, a.LimitResetAt, a.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert bot agent: %w", err)
	}
	return nil
}

// GetByID retrieves an agent.
func (s *BotAgentStore) GetByID(ctx context.Context, agentID string) (*domain.BotAgent, error) {
	return s.get(ctx, `agent_id = $1`, agentID)
}

// GetByAPIKeyHash retrieves an agent by its key hash.
func (s *BotAgentStore) GetByAPIKeyHash(ctx context.Context, hash string) (*domain.BotAgent, error) {
	return s.get(ctx, `api_key_hash = $1`, hash)
}

func (s *BotAgentStore) get(ctx context.Context, where string, arg any) (*domain.BotAgent, error) {
	query := `
		SELECT agent_id, name, api_key_hash, daily_limit,
		       spent_today, limit_reset_at, created_at
		FROM bot_agents
		WHERE ` + where

	var a domain.BotAgent
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&a.AgentID, &a.Name, &a.APIKeyHash, &a.DailyLimit,
		&a.SpentToday, &a.LimitResetAt, &a.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get bot agent: %w", err)
	}
	return &a, nil
}

// ReserveSpend atomically adds amount to the agent's daily spend. The
// boundary reset and the guarded increment are separate statements, but
// each is individually atomic and the guard re-reads spent_today, so no
// interleaving can push the counter past the limit.
func (s *BotAgentStore) ReserveSpend(ctx context.Context, agentID string, amount int64, nowMs int64) error {
	if amount <= 0 {
		return storage.ErrInvalidInput
	}

	resetQuery := `
		UPDATE bot_agents
		SET spent_today = 0, limit_reset_at = $3
		WHERE agent_id = $1 AND limit_reset_at <= $2
	`
	if _, err := s.pool.Exec(ctx, resetQuery, agentID, nowMs, nextUTCMidnightMs(nowMs)); err != nil {
		return fmt.Errorf("reset daily spend: %w", err)
	}

	reserveQuery := `
		UPDATE bot_agents
		SET spent_today = spent_today + $2
		WHERE agent_id = $1 AND spent_today + $2 <= daily_limit
	`
	tag, err := s.pool.Exec(ctx, reserveQuery, agentID, amount)
	if err != nil {
		return fmt.Errorf("reserve daily spend: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Distinguish "over limit" from "no such agent".
	if _, err := s.GetByID(ctx, agentID); err != nil {
		return err
	}
	return storage.ErrLimitExceeded
}

// ReleaseSpend returns previously reserved spend. The counter never goes
// below zero.
func (s *BotAgentStore) ReleaseSpend(ctx context.Context, agentID string, amount int64) error {
	if amount <= 0 {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE bot_agents
		SET spent_today = GREATEST(spent_today - $2, 0)
		WHERE agent_id = $1
	`
	tag, err := s.pool.Exec(ctx, query, agentID, amount)
	if err != nil {
		return fmt.Errorf("release daily spend: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// nextUTCMidnightMs returns the first UTC midnight strictly after nowMs.
func nextUTCMidnightMs(nowMs int64) int64 {
	t := time.UnixMilli(nowMs).UTC()
	next := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return next.UnixMilli()
}

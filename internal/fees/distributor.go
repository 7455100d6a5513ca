// Package fees applies the off-chain side of the trade fee split. Fund
// and platform shares accrue in the ledger only after a trade confirms;
// the caller guarantees each confirmed trade is distributed exactly once.
package fees

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/storage"
)

// PlatformEntityID is the ledger entity collecting platform fees.
const PlatformEntityID = "platform"

// DefaultActivationSupply is the token supply at which the community
// fund is displayed as active. Display-only; accrual is unconditional.
const DefaultActivationSupply = 100

// FundStatus is the display view of an entity's community fund.
type FundStatus struct {
	EntityID string
	Total    int64 // micro-USD
	Active   bool
}

// Distributor credits confirmed-trade fee shares to the fund ledger.
type Distributor struct {
	ledger           storage.FundLedgerStore
	tokens           storage.TokenStore
	logger           *log.Logger
	activationSupply uint64
	now              func() int64
}

// New creates a Distributor.
func New(ledger storage.FundLedgerStore, tokens storage.TokenStore, logger *log.Logger) *Distributor {
	return &Distributor{
		ledger:           ledger,
		tokens:           tokens,
		logger:           logger,
		activationSupply: DefaultActivationSupply,
		now:              func() int64 { return time.Now().UnixMilli() },
	}
}

// WithActivationSupply overrides the display-activation threshold.
func (d *Distributor) WithActivationSupply(supply uint64) *Distributor {
	d.activationSupply = supply
	return d
}

// WithClock overrides the timestamp source. Tests only.
func (d *Distributor) WithClock(now func() int64) *Distributor {
	d.now = now
	return d
}

// Distribute credits the trade's fund share to the token creator and
// the platform fee to the platform entity. Zero shares write nothing.
func (d *Distributor) Distribute(ctx context.Context, trade *domain.Trade) error {
	if trade.Status != domain.TradeStatusConfirmed {
		return fmt.Errorf("trade %s is %s, only confirmed trades distribute fees", trade.TradeID, trade.Status)
	}

	nowMs := d.now()

	if trade.CommunityFundShare > 0 {
		token, err := d.tokens.GetByID(ctx, trade.TokenID)
		if err != nil {
			return fmt.Errorf("resolve token %d creator: %w", trade.TokenID, err)
		}
		if err := d.ledger.Credit(ctx, token.CreatorID, trade.CommunityFundShare, nowMs); err != nil {
			return fmt.Errorf("credit community fund: %w", err)
		}
	}

	if trade.PlatformFee > 0 {
		if err := d.ledger.Credit(ctx, PlatformEntityID, trade.PlatformFee, nowMs); err != nil {
			return fmt.Errorf("credit platform fee: %w", err)
		}
	}

	d.logger.Printf("distributed trade %s: fund %d platform %d", trade.TradeID, trade.CommunityFundShare, trade.PlatformFee)
	return nil
}

// FundStatus reports an entity's accrued fund total and whether the
// fund is displayed as active for the given token.
func (d *Distributor) FundStatus(ctx context.Context, tokenID int64) (*FundStatus, error) {
	token, err := d.tokens.GetByID(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	status := &FundStatus{
		EntityID: token.CreatorID,
		Active:   token.TotalSupply >= d.activationSupply,
	}

	entry, err := d.ledger.GetByEntity(ctx, token.CreatorID)
	switch {
	case err == nil:
		status.Total = entry.Total
	case errors.Is(err, storage.ErrNotFound):
		// No accrual yet.
	default:
		return nil, fmt.Errorf("get fund entry: %w", err)
	}

	return status, nil
}

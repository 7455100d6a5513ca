// Package audit reconciles the off-chain fund ledger against the
// on-chain balance of the fund-holding wallet. Discrepancies are
// flagged for manual investigation, never corrected automatically:
// silently "fixing" a financial ledger can mask fraud or a bug.
package audit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"fantoken-engine/internal/chain"
	"fantoken-engine/internal/observability"
	"fantoken-engine/internal/storage"
)

const (
	// DefaultAbsTolerance absorbs sub-cent rounding drift: $0.01.
	DefaultAbsTolerance = 10_000

	// DefaultPctToleranceBps absorbs in-flight trades between the two
	// reads: 0.5% of the ledger total, in basis points.
	DefaultPctToleranceBps = 50
)

// Result is one reconciliation outcome.
type Result struct {
	LedgerTotal    int64 // micro-USD
	OnchainBalance int64 // micro-USD
	Discrepancy    int64 // micro-USD, absolute difference
	Matched        bool
	CheckedAt      int64 // unix ms
}

// DiscrepancyUSD renders the absolute difference for reports.
func (r *Result) DiscrepancyUSD() decimal.Decimal {
	return decimal.New(r.Discrepancy, -6)
}

// Auditor runs ledger-vs-chain reconciliation.
type Auditor struct {
	ledger          storage.FundLedgerStore
	client          chain.Client
	fundWallet      string // address holding the fund settlement tokens
	absTolerance    int64
	pctToleranceBps int64
	logger          *log.Logger
	now             func() int64
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithTolerance overrides both tolerance bounds.
func WithTolerance(absMicroUSD, pctBps int64) Option {
	return func(a *Auditor) {
		a.absTolerance = absMicroUSD
		a.pctToleranceBps = pctBps
	}
}

// WithClock overrides the timestamp source. Tests only.
func WithClock(now func() int64) Option {
	return func(a *Auditor) {
		a.now = now
	}
}

// New creates an Auditor for the given fund wallet address.
func New(ledger storage.FundLedgerStore, client chain.Client, fundWallet string, logger *log.Logger, opts ...Option) *Auditor {
	a := &Auditor{
		ledger:          ledger,
		client:          client,
		fundWallet:      fundWallet,
		absTolerance:    DefaultAbsTolerance,
		pctToleranceBps: DefaultPctToleranceBps,
		logger:          logger,
		now:             func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Reconcile sums the ledger, reads the fund wallet's on-chain balance,
// and flags any difference beyond tolerance. Read-only by design.
func (a *Auditor) Reconcile(ctx context.Context) (*Result, error) {
	ledgerTotal, err := a.ledger.SumAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("sum fund ledger: %w", err)
	}

	balance, err := a.client.SettlementBalance(ctx, a.fundWallet)
	if err != nil {
		return nil, fmt.Errorf("read fund wallet balance: %w", err)
	}

	diff := ledgerTotal - balance
	if diff < 0 {
		diff = -diff
	}

	result := &Result{
		LedgerTotal:    ledgerTotal,
		OnchainBalance: balance,
		Discrepancy:    diff,
		Matched:        a.withinTolerance(diff, ledgerTotal),
		CheckedAt:      a.now(),
	}

	observability.RecordReconciliation(result.Matched, ledgerTotal, balance, diff, result.CheckedAt/1000)

	if result.Matched {
		a.logger.Printf("reconciliation matched: ledger %d, on-chain %d", ledgerTotal, balance)
	} else {
		a.logger.Printf("RECONCILIATION DISCREPANCY: ledger %d, on-chain %d, off by $%s; investigate manually",
			ledgerTotal, balance, result.DiscrepancyUSD())
	}
	return result, nil
}

func (a *Auditor) withinTolerance(diff, ledgerTotal int64) bool {
	if diff <= a.absTolerance {
		return true
	}
	return ledgerTotal > 0 && diff*10_000 <= ledgerTotal*a.pctToleranceBps
}

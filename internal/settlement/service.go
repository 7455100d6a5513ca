// Package settlement orchestrates the trade state machine:
// Quoted -> Validated -> Submitted -> Confirmed | Failed. A trade row is
// inserted PENDING at broadcast and driven to exactly one terminal
// state; ledger writes ride on the PENDING -> CONFIRMED transition so
// re-processing a transaction hash can never double-count.
package settlement

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"fantoken-engine/internal/chain"
	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/fees"
	"fantoken-engine/internal/observability"
	"fantoken-engine/internal/oracle"
	"fantoken-engine/internal/storage"
	"fantoken-engine/internal/trading"
	"fantoken-engine/internal/vault"
)

// DefaultReceiptTimeout bounds the synchronous wait for confirmation.
// Trades that outlive it stay PENDING and are finished by ResolvePending.
const DefaultReceiptTimeout = 60 * time.Second

// BuyRequest describes a buy on behalf of a custodial wallet owner.
type BuyRequest struct {
	TokenID int64
	ActorID string
	Units   uint64
	MaxCost int64 // micro-USD; on-chain overspend guard
}

// SellRequest describes a sell on behalf of a custodial wallet owner.
type SellRequest struct {
	TokenID int64
	ActorID string
	Units   uint64
}

// Service is the trade settlement orchestrator.
type Service struct {
	oracle         *oracle.Oracle
	vault          *vault.Vault
	client         chain.Client
	trades         storage.TradeStore
	tokens         storage.TokenStore
	fees           *fees.Distributor
	logger         *log.Logger
	receiptTimeout time.Duration
	now            func() int64
}

// Option configures a Service.
type Option func(*Service)

// WithReceiptTimeout overrides the synchronous confirmation wait.
func WithReceiptTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.receiptTimeout = d
	}
}

// WithClock overrides the timestamp source. Tests only.
func WithClock(now func() int64) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a settlement Service.
func New(
	o *oracle.Oracle,
	v *vault.Vault,
	client chain.Client,
	trades storage.TradeStore,
	tokens storage.TokenStore,
	distributor *fees.Distributor,
	logger *log.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		oracle:         o,
		vault:          v,
		client:         client,
		trades:         trades,
		tokens:         tokens,
		fees:           distributor,
		logger:         logger,
		receiptTimeout: DefaultReceiptTimeout,
		now:            func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Buy executes the full buy flow and returns the terminal trade row.
func (s *Service) Buy(ctx context.Context, req *BuyRequest) (*domain.Trade, error) {
	if req.Units == 0 || req.ActorID == "" {
		return nil, trading.New(trading.CodeValidation, "units and actor id are required")
	}
	if req.MaxCost <= 0 {
		return nil, trading.New(trading.CodeValidation, "max cost bound is required")
	}

	token, err := s.activeToken(ctx, req.TokenID)
	if err != nil {
		return nil, err
	}

	// Quoted. Always a fresh quote; a stale one could under-bound spend.
	quote, err := s.oracle.BuyQuote(ctx, req.TokenID, req.Units)
	if err != nil {
		return nil, err
	}

	// Validated.
	if quote.Total > req.MaxCost {
		return nil, trading.Newf(trading.CodeSlippageExceeded,
			"quoted cost %d exceeds max cost %d", quote.Total, req.MaxCost)
	}

	wallet, err := s.vault.GetWallet(ctx, req.ActorID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, trading.Newf(trading.CodeValidation, "actor %s has no wallet", req.ActorID)
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	balance, err := s.client.SettlementBalance(ctx, wallet.SmartWalletAddress)
	if err != nil {
		return nil, trading.Wrap(trading.CodeOnchainUnavailable, "balance check failed", err)
	}
	if balance < quote.Total {
		return nil, trading.Newf(trading.CodeInsufficientBalance,
			"balance %d below quoted cost %d", balance, quote.Total)
	}

	allowance, err := s.client.SettlementAllowance(ctx, wallet.SmartWalletAddress)
	if err != nil {
		return nil, trading.Wrap(trading.CodeOnchainUnavailable, "allowance check failed", err)
	}
	if allowance < quote.Total {
		return nil, trading.Newf(trading.CodeInsufficientAllowance,
			"allowance %d below quoted cost %d", allowance, quote.Total)
	}

	// Submitted. The maxCost bound rides into the contract call so the
	// chain itself rejects overspend if the price moves after validation.
	var txHash string
	err = s.vault.WithSigner(ctx, req.ActorID, func(key *ecdsa.PrivateKey) error {
		var submitErr error
		txHash, submitErr = s.client.SubmitBuy(ctx, key, wallet.SmartWalletAddress, req.TokenID, req.Units, req.MaxCost)
		return submitErr
	})
	if err != nil {
		if trading.IsCode(err, trading.CodeWalletKeyMismatch) {
			return nil, err
		}
		return nil, trading.Wrap(trading.CodeOnchainUnavailable, "buy submission failed", err)
	}

	trade := &domain.Trade{
		TradeID:            uuid.NewString(),
		TokenID:            req.TokenID,
		ActorID:            req.ActorID,
		Kind:               domain.TradeKindBuy,
		Units:              req.Units,
		PricePerUnit:       quote.Total / int64(req.Units),
		GrossValue:         quote.Total,
		ReserveShare:       quote.Reserve,
		CommunityFundShare: quote.CommunityFund,
		PlatformFee:        quote.PlatformFee,
		TxHash:             txHash,
		Status:             domain.TradeStatusPending,
		CreatedAt:          s.now(),
	}
	if err := s.trades.Insert(ctx, trade); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, trading.Newf(trading.CodeDuplicateSubmission, "transaction %s already tracked", txHash)
		}
		// The transaction is in flight but untracked. Log loudly.
		s.logger.Printf("CRITICAL: broadcast %s but failed to track trade: %v", txHash, err)
		return nil, fmt.Errorf("track pending trade: %w", err)
	}

	return s.awaitSettlement(ctx, trade, token)
}

// Sell executes the full sell flow and returns the terminal trade row.
func (s *Service) Sell(ctx context.Context, req *SellRequest) (*domain.Trade, error) {
	if req.Units == 0 || req.ActorID == "" {
		return nil, trading.New(trading.CodeValidation, "units and actor id are required")
	}

	token, err := s.activeToken(ctx, req.TokenID)
	if err != nil {
		return nil, err
	}

	quote, err := s.oracle.SellQuote(ctx, req.TokenID, req.Units)
	if err != nil {
		return nil, err
	}

	// A sell against zero supply is known to revert; reject here instead
	// of burning gas on it.
	if quote.Supply == 0 {
		return nil, trading.New(trading.CodeValidation, "token has no supply to sell against")
	}

	wallet, err := s.vault.GetWallet(ctx, req.ActorID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, trading.Newf(trading.CodeValidation, "actor %s has no wallet", req.ActorID)
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	holding, err := s.client.TokenBalance(ctx, wallet.SmartWalletAddress, req.TokenID)
	if err != nil {
		return nil, trading.Wrap(trading.CodeOnchainUnavailable, "holding check failed", err)
	}
	if holding < req.Units {
		return nil, trading.Newf(trading.CodeInsufficientBalance,
			"holding %d below sell units %d", holding, req.Units)
	}

	var txHash string
	err = s.vault.WithSigner(ctx, req.ActorID, func(key *ecdsa.PrivateKey) error {
		var submitErr error
		txHash, submitErr = s.client.SubmitSell(ctx, key, wallet.SmartWalletAddress, req.TokenID, req.Units)
		return submitErr
	})
	if err != nil {
		if trading.IsCode(err, trading.CodeWalletKeyMismatch) {
			return nil, err
		}
		return nil, trading.Wrap(trading.CodeOnchainUnavailable, "sell submission failed", err)
	}

	trade := &domain.Trade{
		TradeID:      uuid.NewString(),
		TokenID:      req.TokenID,
		ActorID:      req.ActorID,
		Kind:         domain.TradeKindSell,
		Units:        req.Units,
		PricePerUnit: quote.Gross / int64(req.Units),
		GrossValue:   quote.Gross,
		PlatformFee:  quote.PlatformFee,
		TxHash:       txHash,
		Status:       domain.TradeStatusPending,
		CreatedAt:    s.now(),
	}
	if err := s.trades.Insert(ctx, trade); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, trading.Newf(trading.CodeDuplicateSubmission, "transaction %s already tracked", txHash)
		}
		s.logger.Printf("CRITICAL: broadcast %s but failed to track trade: %v", txHash, err)
		return nil, fmt.Errorf("track pending trade: %w", err)
	}

	return s.awaitSettlement(ctx, trade, token)
}

// ResolvePending re-polls receipts for trades stuck in PENDING (for
// example after a crash between broadcast and confirmation) and drives
// them to a terminal state. Safe to run concurrently with live trades:
// the conditional status transition keeps fee application exactly-once.
func (s *Service) ResolvePending(ctx context.Context) error {
	pending, err := s.trades.GetByStatus(ctx, domain.TradeStatusPending)
	if err != nil {
		return fmt.Errorf("list pending trades: %w", err)
	}
	observability.UpdatePendingTrades(len(pending))

	for _, trade := range pending {
		token, err := s.tokens.GetByID(ctx, trade.TokenID)
		if err != nil {
			s.logger.Printf("resolve %s: token %d: %v", trade.TxHash, trade.TokenID, err)
			continue
		}
		if _, err := s.awaitSettlement(ctx, trade, token); err != nil {
			s.logger.Printf("resolve %s: %v", trade.TxHash, err)
		}
	}
	return nil
}

// awaitSettlement waits for the receipt and applies the terminal
// transition. On timeout the trade stays PENDING for a later pass.
func (s *Service) awaitSettlement(ctx context.Context, trade *domain.Trade, token *domain.Token) (*domain.Trade, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.receiptTimeout)
	defer cancel()

	// Nonterminal outcomes return the still-pending trade alongside the
	// error: the transaction is on the wire and may yet confirm, so the
	// caller must keep treating its spend as live.
	receipt, err := s.client.WaitForReceipt(waitCtx, trade.TxHash)
	if err != nil {
		return trade, trading.Wrap(trading.CodeOnchainUnavailable,
			fmt.Sprintf("transaction %s still unconfirmed", trade.TxHash), err)
	}

	settledAt := s.now()

	if !receipt.Success {
		applied, err := s.trades.MarkFailed(ctx, trade.TxHash, receipt.RevertReason, settledAt)
		if err != nil {
			return trade, fmt.Errorf("mark trade failed: %w", err)
		}
		if applied {
			s.logger.Printf("trade %s reverted: %s", trade.TxHash, receipt.RevertReason)
			observability.RecordTradeSettled(trade.Kind, domain.TradeStatusFailed, trade.GrossValue)
		}
		trade.Status = domain.TradeStatusFailed
		trade.FailReason = receipt.RevertReason
		trade.SettledAt = settledAt
		return trade, trading.New(trading.CodeTransactionReverted, receipt.RevertReason)
	}

	applied, err := s.trades.MarkConfirmed(ctx, trade.TxHash, receipt.BlockNumber, settledAt)
	if err != nil {
		return trade, fmt.Errorf("mark trade confirmed: %w", err)
	}

	trade.Status = domain.TradeStatusConfirmed
	trade.BlockNumber = receipt.BlockNumber
	trade.SettledAt = settledAt

	// Fee split and supply reflection ride on the one successful
	// transition only; a concurrent resolver that lost the race skips.
	if applied {
		observability.RecordTradeSettled(trade.Kind, domain.TradeStatusConfirmed, trade.GrossValue)
		observability.RecordSettlementLatency(trade.Kind, float64(settledAt-trade.CreatedAt)/1000)
		if err := s.fees.Distribute(ctx, trade); err != nil {
			// The trade itself is settled; accrual is repairable by audit.
			s.logger.Printf("distribute fees for %s: %v", trade.TxHash, err)
		}
		s.reflectSupply(ctx, token)
	}

	return trade, nil
}

// reflectSupply updates the off-chain supply mirror from confirmed
// chain state. Best-effort: the contract stays the source of truth.
func (s *Service) reflectSupply(ctx context.Context, token *domain.Token) {
	state, err := s.client.TokenState(ctx, token.TokenID)
	if err != nil {
		s.logger.Printf("reflect supply for token %d: %v", token.TokenID, err)
		return
	}
	if err := s.tokens.UpdateSupply(ctx, token.TokenID, state.Supply, s.now()); err != nil {
		s.logger.Printf("update supply for token %d: %v", token.TokenID, err)
	}
}

func (s *Service) activeToken(ctx context.Context, tokenID int64) (*domain.Token, error) {
	token, err := s.tokens.GetByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, trading.Newf(trading.CodeTokenNotFound, "token %d not found", tokenID)
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	if !token.IsActive {
		return nil, trading.Newf(trading.CodeValidation, "token %d is not active", tokenID)
	}
	return token, nil
}

package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
)

// ErrTxNotFound is returned while a broadcast transaction has no receipt yet.
var ErrTxNotFound = errors.New("transaction not found")

// BuyCost is the contract's fee decomposition for a buy, micro-USD.
// Reserve + FundFee + PlatformFee == Total.
type BuyCost struct {
	Reserve     int64
	FundFee     int64
	PlatformFee int64
	Total       int64
}

// SellRefund is the contract's refund decomposition for a sell, micro-USD.
// Net == Gross - Fee.
type SellRefund struct {
	Gross int64
	Fee   int64
	Net   int64
}

// TokenState is the on-chain curve state for a token.
type TokenState struct {
	Supply      uint64
	BasePrice   int64 // micro-USD
	Coefficient int64 // micro-USD
	Creator     string
	Exists      bool
}

// Receipt is the terminal outcome of a broadcast transaction.
type Receipt struct {
	TxHash       string
	BlockNumber  uint64
	Success      bool
	RevertReason string // verbatim contract reason, empty on success
}

// Client is the EVM access surface the engine depends on. The production
// implementation is RPCClient; tests use stub.Client.
type Client interface {
	// CalculateBuyCost reads the contract's buy quote for amount units.
	CalculateBuyCost(ctx context.Context, tokenID int64, amount uint64) (*BuyCost, error)

	// CalculateSellRefund reads the contract's sell quote for amount units.
	CalculateSellRefund(ctx context.Context, tokenID int64, amount uint64) (*SellRefund, error)

	// TokenState reads curve state. Exists is false for unregistered tokens.
	TokenState(ctx context.Context, tokenID int64) (*TokenState, error)

	// TokenBalance reads the ERC-1155 fan-token balance of an account.
	TokenBalance(ctx context.Context, account string, tokenID int64) (uint64, error)

	// SettlementBalance reads an account's settlement-token (ERC-20,
	// 6 decimals) balance in micro-USD.
	SettlementBalance(ctx context.Context, account string) (int64, error)

	// SettlementAllowance reads the settlement-token allowance an owner
	// has granted the curve contract, in micro-USD.
	SettlementAllowance(ctx context.Context, owner string) (int64, error)

	// PredictWalletAddress calls the wallet factory's read-only
	// getAddress(owner, nonce).
	PredictWalletAddress(ctx context.Context, owner string, nonce uint64) (string, error)

	// SubmitBuy relays buy(tokenId, amount, maxCost) through the actor's
	// smart wallet: the custodial key authorizes the call, the operator
	// key signs and pays for the outer transaction. Returns the
	// transaction hash.
	SubmitBuy(ctx context.Context, key *ecdsa.PrivateKey, wallet string, tokenID int64, amount uint64, maxCost int64) (string, error)

	// SubmitSell relays sell(tokenId, amount) through the actor's smart
	// wallet, sponsored the same way as SubmitBuy.
	SubmitSell(ctx context.Context, key *ecdsa.PrivateKey, wallet string, tokenID int64, amount uint64) (string, error)

	// WaitForReceipt polls until the transaction has a receipt or ctx
	// expires. Returns ErrTxNotFound wrapped in the context error if the
	// transaction never lands.
	WaitForReceipt(ctx context.Context, txHash string) (*Receipt, error)

	// Close releases the underlying connection.
	Close()
}

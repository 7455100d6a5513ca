// Package stub provides a scriptable in-memory chain.Client for tests.
package stub

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"

	"fantoken-engine/internal/chain"
)

// Submission records a broadcast transaction for assertions.
type Submission struct {
	TxHash  string
	Wallet  string // smart wallet the call was relayed through
	Signer  string
	Kind    string // "buy" | "sell"
	TokenID int64
	Amount  uint64
	MaxCost int64 // buys only
}

// Client implements chain.Client against in-memory fixtures. Fields are
// read under a mutex so tests can drive concurrent flows.
type Client struct {
	mu sync.Mutex

	Tokens      map[int64]*chain.TokenState
	BuyCosts    map[int64]*chain.BuyCost
	SellRefunds map[int64]*chain.SellRefund
	Receipts    map[string]*chain.Receipt
	Balances    map[string]int64  // settlement balance by account
	Allowances  map[string]int64  // settlement allowance by owner
	Holdings    map[string]uint64 // fan-token balance by account:tokenID

	// CallErr, when set, fails every read call. Simulates node outage.
	CallErr error
	// SubmitErr, when set, fails every broadcast.
	SubmitErr error

	Submissions []Submission
	nextTx      int
}

// Compile-time interface check.
var _ chain.Client = (*Client)(nil)

// NewClient creates an empty stub.
func NewClient() *Client {
	return &Client{
		Tokens:      make(map[int64]*chain.TokenState),
		BuyCosts:    make(map[int64]*chain.BuyCost),
		SellRefunds: make(map[int64]*chain.SellRefund),
		Receipts:    make(map[string]*chain.Receipt),
		Balances:    make(map[string]int64),
		Allowances:  make(map[string]int64),
		Holdings:    make(map[string]uint64),
	}
}

func holdingKey(account string, tokenID int64) string {
	return fmt.Sprintf("%s:%d", account, tokenID)
}

func (c *Client) CalculateBuyCost(_ context.Context, tokenID int64, _ uint64) (*chain.BuyCost, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CallErr != nil {
		return nil, c.CallErr
	}
	cost, ok := c.BuyCosts[tokenID]
	if !ok {
		return nil, fmt.Errorf("no buy cost fixture for token %d", tokenID)
	}
	out := *cost
	return &out, nil
}

func (c *Client) CalculateSellRefund(_ context.Context, tokenID int64, _ uint64) (*chain.SellRefund, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CallErr != nil {
		return nil, c.CallErr
	}
	refund, ok := c.SellRefunds[tokenID]
	if !ok {
		return nil, fmt.Errorf("no sell refund fixture for token %d", tokenID)
	}
	out := *refund
	return &out, nil
}

func (c *Client) TokenState(_ context.Context, tokenID int64) (*chain.TokenState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CallErr != nil {
		return nil, c.CallErr
	}
	state, ok := c.Tokens[tokenID]
	if !ok {
		// Contract mappings return zero values for unknown keys.
		return &chain.TokenState{}, nil
	}
	out := *state
	return &out, nil
}

func (c *Client) TokenBalance(_ context.Context, account string, tokenID int64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CallErr != nil {
		return 0, c.CallErr
	}
	return c.Holdings[holdingKey(account, tokenID)], nil
}

func (c *Client) SettlementBalance(_ context.Context, account string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CallErr != nil {
		return 0, c.CallErr
	}
	return c.Balances[account], nil
}

func (c *Client) SettlementAllowance(_ context.Context, owner string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CallErr != nil {
		return 0, c.CallErr
	}
	return c.Allowances[owner], nil
}

func (c *Client) PredictWalletAddress(_ context.Context, owner string, nonce uint64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CallErr != nil {
		return "", c.CallErr
	}
	// Deterministic fake derivation: keccak over owner and nonce.
	sum := crypto.Keccak256([]byte(fmt.Sprintf("%s:%d", owner, nonce)))
	return fmt.Sprintf("0x%x", sum[:20]), nil
}

func (c *Client) SubmitBuy(_ context.Context, key *ecdsa.PrivateKey, wallet string, tokenID int64, amount uint64, maxCost int64) (string, error) {
	return c.record(key, wallet, "buy", tokenID, amount, maxCost)
}

func (c *Client) SubmitSell(_ context.Context, key *ecdsa.PrivateKey, wallet string, tokenID int64, amount uint64) (string, error) {
	return c.record(key, wallet, "sell", tokenID, amount, 0)
}

func (c *Client) record(key *ecdsa.PrivateKey, wallet, kind string, tokenID int64, amount uint64, maxCost int64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubmitErr != nil {
		return "", c.SubmitErr
	}

	c.nextTx++
	txHash := fmt.Sprintf("0xstub%06d", c.nextTx)
	c.Submissions = append(c.Submissions, Submission{
		TxHash:  txHash,
		Wallet:  wallet,
		Signer:  crypto.PubkeyToAddress(key.PublicKey).Hex(),
		Kind:    kind,
		TokenID: tokenID,
		Amount:  amount,
		MaxCost: maxCost,
	})

	// Unless the test scripted a receipt up front, confirm immediately.
	if _, ok := c.Receipts[txHash]; !ok {
		c.Receipts[txHash] = &chain.Receipt{
			TxHash:      txHash,
			BlockNumber: uint64(100 + c.nextTx),
			Success:     true,
		}
	}
	return txHash, nil
}

func (c *Client) WaitForReceipt(ctx context.Context, txHash string) (*chain.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	receipt, ok := c.Receipts[txHash]
	if !ok || receipt == nil {
		return nil, fmt.Errorf("%w: %s: %w", chain.ErrTxNotFound, txHash, context.DeadlineExceeded)
	}
	out := *receipt
	return &out, nil
}

func (c *Client) Close() {}

// ScriptReceipt pre-arranges the receipt the next matching submission
// will resolve to. Keyed by the tx hash the stub will assign, which is
// sequential: 0xstub000001, 0xstub000002, ... A nil receipt marks the
// transaction as broadcast but not yet mined, so WaitForReceipt fails
// until a real receipt is scripted.
func (c *Client) ScriptReceipt(txHash string, receipt *chain.Receipt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Receipts[txHash] = receipt
}

// DropReceipt removes a receipt so WaitForReceipt fails, simulating a
// transaction that never lands.
func (c *Client) DropReceipt(txHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Receipts, txHash)
}

package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"fantoken-engine/internal/observability"
)

// Default configuration values.
const (
	DefaultCallTimeout     = 10 * time.Second
	DefaultMaxRetries      = 3
	DefaultRetryDelay      = 500 * time.Millisecond
	DefaultMaxDelay        = 5 * time.Second
	DefaultReceiptInterval = 2 * time.Second
)

// Config declares the contract topology the client talks to.
type Config struct {
	Endpoints         []string // JSON-RPC endpoints, tried in order
	ChainID           int64
	CurveAddress      string // bonding-curve contract (also ERC-1155 issuer)
	SettlementAddress string // ERC-20 settlement token, 6 decimals
	WalletFactory     string // smart-wallet factory

	// OperatorKey pays gas for relayed wallet calls. Optional for
	// read-only clients; submission fails without it.
	OperatorKey *ecdsa.PrivateKey
	MaxRetries        int
	RetryDelay        time.Duration
	MaxDelay          time.Duration
	ReceiptInterval   time.Duration
}

// RPCClient implements Client over go-ethereum's ethclient with endpoint
// failover. The zero value is not usable; construct with NewRPCClient and
// release with Close. No package-level connection state exists.
type RPCClient struct {
	cfg     Config
	chainID *big.Int
	logger  *log.Logger

	eth      *ethclient.Client
	endpoint int // index into cfg.Endpoints of the live connection
}

// Compile-time interface check.
var _ Client = (*RPCClient)(nil)

// NewRPCClient dials the first reachable endpoint. The caller owns the
// returned client and must Close it.
func NewRPCClient(ctx context.Context, cfg Config, logger *log.Logger) (*RPCClient, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("at least one RPC endpoint is required")
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.ReceiptInterval == 0 {
		cfg.ReceiptInterval = DefaultReceiptInterval
	}

	c := &RPCClient{
		cfg:     cfg,
		chainID: big.NewInt(cfg.ChainID),
		logger:  logger,
	}

	var lastErr error
	for i, endpoint := range cfg.Endpoints {
		eth, err := ethclient.DialContext(ctx, endpoint)
		if err != nil {
			lastErr = fmt.Errorf("dial %s: %w", endpoint, err)
			continue
		}
		c.eth = eth
		c.endpoint = i
		return c, nil
	}
	return nil, fmt.Errorf("no reachable endpoint: %w", lastErr)
}

// Close releases the underlying connection.
func (c *RPCClient) Close() {
	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
}

// rotate dials the next endpoint in the list, replacing the live
// connection. Called after a transport-level failure.
func (c *RPCClient) rotate(ctx context.Context) {
	next := (c.endpoint + 1) % len(c.cfg.Endpoints)
	eth, err := ethclient.DialContext(ctx, c.cfg.Endpoints[next])
	if err != nil {
		c.logger.Printf("endpoint rotation to %s failed: %v", c.cfg.Endpoints[next], err)
		return
	}
	c.eth.Close()
	c.eth = eth
	c.endpoint = next
	c.logger.Printf("rotated to endpoint %s", c.cfg.Endpoints[next])
}

// withRetry runs fn with bounded exponential backoff, rotating endpoints
// between attempts. Contract reverts are surfaced immediately; only
// connectivity is retried.
func (c *RPCClient) withRetry(ctx context.Context, fn func() error) error {
	delay := c.cfg.RetryDelay
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.cfg.MaxDelay {
				delay = c.cfg.MaxDelay
			}
			c.rotate(ctx)
		}

		if err := fn(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// callContract performs a read-only eth_call against the given contract.
func (c *RPCClient) callContract(ctx context.Context, method, contract string, data []byte) ([]byte, error) {
	to := common.HexToAddress(contract)
	msg := ethereum.CallMsg{To: &to, Data: data}

	started := time.Now()
	var out []byte
	err := c.withRetry(ctx, func() error {
		result, err := c.eth.CallContract(ctx, msg, nil)
		if err != nil {
			return err
		}
		out = result
		return nil
	})
	observability.RecordRPCLatency(method, time.Since(started).Seconds(), err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CalculateBuyCost reads the contract's buy quote for amount units.
func (c *RPCClient) CalculateBuyCost(ctx context.Context, tokenID int64, amount uint64) (*BuyCost, error) {
	data := packCall(selCalculateBuyCost, intWord(tokenID), uintWord(amount))
	out, err := c.callContract(ctx, "calculateBuyCost", c.cfg.CurveAddress, data)
	if err != nil {
		return nil, fmt.Errorf("calculateBuyCost: %w", err)
	}

	var cost BuyCost
	if cost.Reserve, err = wordToInt64(out, 0); err != nil {
		return nil, fmt.Errorf("calculateBuyCost: %w", err)
	}
	if cost.FundFee, err = wordToInt64(out, 1); err != nil {
		return nil, fmt.Errorf("calculateBuyCost: %w", err)
	}
	if cost.PlatformFee, err = wordToInt64(out, 2); err != nil {
		return nil, fmt.Errorf("calculateBuyCost: %w", err)
	}
	if cost.Total, err = wordToInt64(out, 3); err != nil {
		return nil, fmt.Errorf("calculateBuyCost: %w", err)
	}
	return &cost, nil
}

// CalculateSellRefund reads the contract's sell quote for amount units.
func (c *RPCClient) CalculateSellRefund(ctx context.Context, tokenID int64, amount uint64) (*SellRefund, error) {
	data := packCall(selCalculateSellRefund, intWord(tokenID), uintWord(amount))
	out, err := c.callContract(ctx, "calculateSellRefund", c.cfg.CurveAddress, data)
	if err != nil {
		return nil, fmt.Errorf("calculateSellRefund: %w", err)
	}

	var refund SellRefund
	if refund.Gross, err = wordToInt64(out, 0); err != nil {
		return nil, fmt.Errorf("calculateSellRefund: %w", err)
	}
	if refund.Fee, err = wordToInt64(out, 1); err != nil {
		return nil, fmt.Errorf("calculateSellRefund: %w", err)
	}
	if refund.Net, err = wordToInt64(out, 2); err != nil {
		return nil, fmt.Errorf("calculateSellRefund: %w", err)
	}
	return &refund, nil
}

// TokenState reads curve state for a token.
func (c *RPCClient) TokenState(ctx context.Context, tokenID int64) (*TokenState, error) {
	data := packCall(selTokens, intWord(tokenID))
	out, err := c.callContract(ctx, "tokens", c.cfg.CurveAddress, data)
	if err != nil {
		return nil, fmt.Errorf("tokens: %w", err)
	}

	var state TokenState
	if state.Supply, err = wordToUint64(out, 0); err != nil {
		return nil, fmt.Errorf("tokens: %w", err)
	}
	if state.BasePrice, err = wordToInt64(out, 1); err != nil {
		return nil, fmt.Errorf("tokens: %w", err)
	}
	if state.Coefficient, err = wordToInt64(out, 2); err != nil {
		return nil, fmt.Errorf("tokens: %w", err)
	}
	if state.Creator, err = wordToAddress(out, 3); err != nil {
		return nil, fmt.Errorf("tokens: %w", err)
	}
	if state.Exists, err = wordToBool(out, 4); err != nil {
		return nil, fmt.Errorf("tokens: %w", err)
	}
	return &state, nil
}

// TokenBalance reads the ERC-1155 fan-token balance of an account.
func (c *RPCClient) TokenBalance(ctx context.Context, account string, tokenID int64) (uint64, error) {
	data := packCall(selBalanceOf1155, addressWord(account), intWord(tokenID))
	out, err := c.callContract(ctx, "balanceOf", c.cfg.CurveAddress, data)
	if err != nil {
		return 0, fmt.Errorf("balanceOf(1155): %w", err)
	}
	return wordToUint64(out, 0)
}

// SettlementBalance reads an account's settlement-token balance.
func (c *RPCClient) SettlementBalance(ctx context.Context, account string) (int64, error) {
	data := packCall(selBalanceOf20, addressWord(account))
	out, err := c.callContract(ctx, "balanceOf", c.cfg.SettlementAddress, data)
	if err != nil {
		return 0, fmt.Errorf("balanceOf(20): %w", err)
	}
	return wordToInt64(out, 0)
}

// SettlementAllowance reads the allowance an owner granted the curve.
func (c *RPCClient) SettlementAllowance(ctx context.Context, owner string) (int64, error) {
	data := packCall(selAllowance, addressWord(owner), addressWord(c.cfg.CurveAddress))
	out, err := c.callContract(ctx, "allowance", c.cfg.SettlementAddress, data)
	if err != nil {
		return 0, fmt.Errorf("allowance: %w", err)
	}
	return wordToInt64(out, 0)
}

// PredictWalletAddress calls the factory's read-only getAddress.
func (c *RPCClient) PredictWalletAddress(ctx context.Context, owner string, nonce uint64) (string, error) {
	data := packCall(selGetAddress, addressWord(owner), uintWord(nonce))
	out, err := c.callContract(ctx, "getAddress", c.cfg.WalletFactory, data)
	if err != nil {
		return "", fmt.Errorf("getAddress: %w", err)
	}
	return wordToAddress(out, 0)
}

// SubmitBuy relays buy(tokenId, amount, maxCost) through the actor's
// smart wallet.
func (c *RPCClient) SubmitBuy(ctx context.Context, key *ecdsa.PrivateKey, wallet string, tokenID int64, amount uint64, maxCost int64) (string, error) {
	data := packCall(selBuy, intWord(tokenID), uintWord(amount), intWord(maxCost))
	return c.submitSponsored(ctx, key, wallet, data)
}

// SubmitSell relays sell(tokenId, amount) through the actor's smart
// wallet.
func (c *RPCClient) SubmitSell(ctx context.Context, key *ecdsa.PrivateKey, wallet string, tokenID int64, amount uint64) (string, error) {
	data := packCall(selSell, intWord(tokenID), uintWord(amount))
	return c.submitSponsored(ctx, key, wallet, data)
}

// submitSponsored wraps a curve call in executeSigned on the actor's
// smart wallet. The custodial key signs the call authorization the
// wallet verifies; the operator key signs and pays for the outer
// transaction, so custodial accounts never hold native currency.
func (c *RPCClient) submitSponsored(ctx context.Context, key *ecdsa.PrivateKey, wallet string, inner []byte) (string, error) {
	if c.cfg.OperatorKey == nil {
		return "", errors.New("operator key not configured")
	}

	walletAddr := common.HexToAddress(wallet)
	target := common.HexToAddress(c.cfg.CurveAddress)
	sig, err := signCallAuthorization(key, walletAddr, target, inner, c.chainID)
	if err != nil {
		return "", fmt.Errorf("sign call authorization: %w", err)
	}
	return c.submit(ctx, c.cfg.OperatorKey, walletAddr, packExecuteSigned(target, inner, sig))
}

func (c *RPCClient) submit(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, data []byte) (string, error) {
	from := crypto.PubkeyToAddress(key.PublicKey)

	started := time.Now()
	var txHash string
	err := c.withRetry(ctx, func() error {
		nonce, err := c.eth.PendingNonceAt(ctx, from)
		if err != nil {
			return fmt.Errorf("pending nonce: %w", err)
		}
		gasPrice, err := c.eth.SuggestGasPrice(ctx)
		if err != nil {
			return fmt.Errorf("suggest gas price: %w", err)
		}
		gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
			From: from,
			To:   &to,
			Data: data,
		})
		if err != nil {
			// Estimation failure is usually a revert, not connectivity.
			return fmt.Errorf("estimate gas: %w", err)
		}

		tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
		signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), key)
		if err != nil {
			return fmt.Errorf("sign transaction: %w", err)
		}
		if err := c.eth.SendTransaction(ctx, signed); err != nil {
			return fmt.Errorf("send transaction: %w", err)
		}
		txHash = signed.Hash().Hex()
		return nil
	})
	observability.RecordRPCLatency("sendTransaction", time.Since(started).Seconds(), err)
	if err != nil {
		return "", err
	}
	return txHash, nil
}

// WaitForReceipt polls until the transaction has a receipt or ctx
// expires. On a failed transaction the revert reason is recovered by
// replaying the call at the receipt block.
func (c *RPCClient) WaitForReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(c.cfg.ReceiptInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			out := &Receipt{
				TxHash:      txHash,
				BlockNumber: receipt.BlockNumber.Uint64(),
				Success:     receipt.Status == types.ReceiptStatusSuccessful,
			}
			if !out.Success {
				out.RevertReason = c.revertReason(ctx, hash, receipt)
			}
			return out, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			c.logger.Printf("receipt poll for %s: %v", txHash, err)
		}

		select {
		case <-ctx.Done():
			observability.RecordReceiptTimeout()
			return nil, fmt.Errorf("%w: %s: %w", ErrTxNotFound, txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// revertReason replays the failed transaction as an eth_call at its
// block to recover the contract's revert string. Best-effort; an empty
// reason is acceptable.
func (c *RPCClient) revertReason(ctx context.Context, hash common.Hash, receipt *types.Receipt) string {
	tx, _, err := c.eth.TransactionByHash(ctx, hash)
	if err != nil {
		return ""
	}
	from, err := types.Sender(types.NewEIP155Signer(c.chainID), tx)
	if err != nil {
		return ""
	}

	msg := ethereum.CallMsg{
		From:     from,
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
	}
	result, callErr := c.eth.CallContract(ctx, msg, receipt.BlockNumber)
	if callErr != nil {
		// Some nodes put the reason in the error message itself.
		return callErr.Error()
	}
	return unpackRevertReason(result)
}

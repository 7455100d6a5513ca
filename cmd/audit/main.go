// Package main runs a single fund reconciliation pass: sums the fund
// ledger, reads the fund wallet balance on-chain, and reports whether
// the two agree. Exits non-zero on a discrepancy so it can gate
// deploys and cron alerts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fantoken-engine/internal/audit"
	"fantoken-engine/internal/chain"
	pgstore "fantoken-engine/internal/storage/postgres"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	rpcEndpoints := flag.String("rpc-endpoints", os.Getenv("CHAIN_RPC_ENDPOINTS"), "Comma-separated JSON-RPC endpoints")
	chainID := flag.Int64("chain-id", 137, "EVM chain ID")
	curveAddress := flag.String("curve-address", os.Getenv("CURVE_ADDRESS"), "Bonding-curve contract address")
	settlementAddress := flag.String("settlement-address", os.Getenv("SETTLEMENT_TOKEN_ADDRESS"), "Settlement ERC-20 address")
	walletFactory := flag.String("wallet-factory", os.Getenv("WALLET_FACTORY_ADDRESS"), "Smart-wallet factory address")
	fundWallet := flag.String("fund-wallet", os.Getenv("FUND_WALLET_ADDRESS"), "Fund-holding wallet address for reconciliation")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	absTolerance := flag.Int64("abs-tolerance", audit.DefaultAbsTolerance, "Absolute tolerance in micro-USD")
	pctTolerance := flag.Int64("pct-tolerance-bps", audit.DefaultPctToleranceBps, "Relative tolerance in basis points of the ledger total")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall run timeout")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[audit] ", log.LstdFlags|log.Lshortfile)

	// Validate required configuration
	if *rpcEndpoints == "" {
		logger.Fatal("--rpc-endpoints is required")
	}
	if *curveAddress == "" || *settlementAddress == "" || *walletFactory == "" {
		logger.Fatal("--curve-address, --settlement-address and --wallet-factory are required")
	}
	if *fundWallet == "" {
		logger.Fatal("--fund-wallet is required")
	}
	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	client, err := chain.NewRPCClient(ctx, chain.Config{
		Endpoints:         splitList(*rpcEndpoints),
		ChainID:           *chainID,
		CurveAddress:      *curveAddress,
		SettlementAddress: *settlementAddress,
		WalletFactory:     *walletFactory,
	}, log.New(os.Stdout, "[chain] ", log.LstdFlags|log.Lshortfile))
	if err != nil {
		logger.Fatalf("Failed to connect to chain: %v", err)
	}
	defer client.Close()

	auditor := audit.New(pgstore.NewFundLedgerStore(pool), client, *fundWallet, logger,
		audit.WithTolerance(*absTolerance, *pctTolerance))

	result, err := auditor.Reconcile(ctx)
	if err != nil {
		logger.Fatalf("Reconciliation failed: %v", err)
	}

	fmt.Printf("Ledger total:     $%s\n", usd(result.LedgerTotal))
	fmt.Printf("On-chain balance: $%s\n", usd(result.OnchainBalance))
	fmt.Printf("Discrepancy:      $%s\n", result.DiscrepancyUSD().String())

	if !result.Matched {
		fmt.Println("Result: DISCREPANCY")
		os.Exit(1)
	}
	fmt.Println("Result: MATCHED")
}

func usd(micro int64) string {
	return decimal.New(micro, -6).StringFixed(2)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

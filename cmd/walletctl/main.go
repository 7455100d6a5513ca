// Package main is an operator tool for custodial wallets: create a
// wallet for a user, or regenerate one whose key material is lost or
// compromised. Regeneration destroys the old key; any funds held by
// the old signer must be swept first.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"fantoken-engine/internal/chain"
	"fantoken-engine/internal/domain"
	pgstore "fantoken-engine/internal/storage/postgres"
	"fantoken-engine/internal/vault"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	userID := flag.String("user", "", "User ID to operate on")
	regenerate := flag.Bool("regenerate", false, "Replace the user's wallet instead of creating one")
	confirm := flag.Bool("yes", false, "Confirm destructive regeneration")
	rpcEndpoints := flag.String("rpc-endpoints", os.Getenv("CHAIN_RPC_ENDPOINTS"), "Comma-separated JSON-RPC endpoints")
	chainID := flag.Int64("chain-id", 137, "EVM chain ID")
	curveAddress := flag.String("curve-address", os.Getenv("CURVE_ADDRESS"), "Bonding-curve contract address")
	settlementAddress := flag.String("settlement-address", os.Getenv("SETTLEMENT_TOKEN_ADDRESS"), "Settlement ERC-20 address")
	walletFactory := flag.String("wallet-factory", os.Getenv("WALLET_FACTORY_ADDRESS"), "Smart-wallet factory address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall run timeout")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[walletctl] ", log.LstdFlags|log.Lshortfile)

	// Validate required configuration
	if *userID == "" {
		logger.Fatal("--user is required")
	}
	if *rpcEndpoints == "" {
		logger.Fatal("--rpc-endpoints is required")
	}
	if *curveAddress == "" || *settlementAddress == "" || *walletFactory == "" {
		logger.Fatal("--curve-address, --settlement-address and --wallet-factory are required")
	}
	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}
	vaultSecret := os.Getenv("VAULT_SECRET")
	if vaultSecret == "" {
		logger.Fatal("VAULT_SECRET environment variable is required")
	}
	if *regenerate && !*confirm {
		logger.Fatal("--regenerate destroys the existing signing key; pass --yes to confirm")
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

	v := vault.New(pgstore.NewWalletStore(pool), client, []byte(vaultSecret), logger)

	var wallet *domain.Wallet
	if *regenerate {
		wallet, err = v.RegenerateWallet(ctx, *userID)
	} else {
		wallet, err = v.CreateWallet(ctx, *userID)
	}
	if err != nil {
		logger.Fatalf("Wallet operation failed: %v", err)
	}

	fmt.Printf("User:         %s\n", wallet.UserID)
	fmt.Printf("Smart wallet: %s\n", wallet.SmartWalletAddress)
	fmt.Printf("Signer:       %s\n", wallet.SignerAddress)
	fmt.Printf("Created at:   %s\n", time.UnixMilli(wallet.CreatedAt).UTC().Format(time.RFC3339))
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

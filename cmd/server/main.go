// Package main provides the unified trading-engine server:
// - Bot gateway (HTTP): agent registration, quotes, buy/sell
// - Pending-trade resolver (scheduled): finishes broadcast-but-unconfirmed trades
// - Fund auditor (scheduled): ledger-vs-chain reconciliation
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"fantoken-engine/internal/audit"
	"fantoken-engine/internal/chain"
	"fantoken-engine/internal/fees"
	"fantoken-engine/internal/gateway"
	"fantoken-engine/internal/observability"
	"fantoken-engine/internal/oracle"
	"fantoken-engine/internal/settlement"
	"fantoken-engine/internal/storage"
	chstore "fantoken-engine/internal/storage/clickhouse"
	"fantoken-engine/internal/storage/memory"
	"fantoken-engine/internal/storage/migrations"
	pgstore "fantoken-engine/internal/storage/postgres"
	"fantoken-engine/internal/vault"
)

// Server holds all components of the unified service.
type Server struct {
	listenAddr      string
	metricsAddr     string
	auditInterval   time.Duration
	resolveInterval time.Duration

	gateway    *gateway.Gateway
	settlement *settlement.Service
	auditor    *audit.Auditor
	logger     *log.Logger

	// State
	mu             sync.Mutex
	started        time.Time
	lastAuditRun   time.Time
	lastAuditMatch bool
	auditRuns      int
	resolveRuns    int
}

// allStores holds all storage implementations.
type allStores struct {
	tokens       storage.TokenStore
	wallets      storage.WalletStore
	trades       storage.TradeStore
	agents       storage.BotAgentStore
	ledger       storage.FundLedgerStore
	observations storage.PriceObservationStore
}

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
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	listenAddr := flag.String("listen-addr", ":8080", "Bot gateway HTTP address")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")
	auditInterval := flag.Duration("audit-interval", 1*time.Hour, "Fund reconciliation interval")
	resolveInterval := flag.Duration("resolve-interval", 30*time.Second, "Pending-trade resolution interval")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

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
	vaultSecret := os.Getenv("VAULT_SECRET")
	if vaultSecret == "" {
		logger.Fatal("VAULT_SECRET environment variable is required")
	}
	operatorKeyHex := os.Getenv("OPERATOR_KEY")
	if operatorKeyHex == "" {
		logger.Fatal("OPERATOR_KEY environment variable is required")
	}
	operatorKey, err := crypto.HexToECDSA(strings.TrimPrefix(operatorKeyHex, "0x"))
	if err != nil {
		logger.Fatalf("OPERATOR_KEY is not a valid private key: %v", err)
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Chain client
	client, err := chain.NewRPCClient(ctx, chain.Config{
		Endpoints:         splitList(*rpcEndpoints),
		ChainID:           *chainID,
		CurveAddress:      *curveAddress,
		SettlementAddress: *settlementAddress,
		WalletFactory:     *walletFactory,
		OperatorKey:       operatorKey,
	}, log.New(os.Stdout, "[chain] ", log.LstdFlags|log.Lshortfile))
	if err != nil {
		logger.Fatalf("Failed to connect to chain: %v", err)
	}
	defer client.Close()

	// Engine components
	o := oracle.New(client,
		log.New(os.Stdout, "[oracle] ", log.LstdFlags|log.Lshortfile),
		oracle.WithObservationStore(stores.observations))
	v := vault.New(stores.wallets, client, []byte(vaultSecret),
		log.New(os.Stdout, "[vault] ", log.LstdFlags|log.Lshortfile))
	distributor := fees.New(stores.ledger, stores.tokens,
		log.New(os.Stdout, "[fees] ", log.LstdFlags|log.Lshortfile))
	svc := settlement.New(o, v, client, stores.trades, stores.tokens, distributor,
		log.New(os.Stdout, "[settlement] ", log.LstdFlags|log.Lshortfile))
	gw := gateway.New(svc, o, v, stores.tokens, stores.agents, stores.trades, stores.observations,
		log.New(os.Stdout, "[gateway] ", log.LstdFlags|log.Lshortfile))
	auditor := audit.New(stores.ledger, client, *fundWallet,
		log.New(os.Stdout, "[audit] ", log.LstdFlags|log.Lshortfile))

	server := &Server{
		listenAddr:      *listenAddr,
		metricsAddr:     *metricsAddr,
		auditInterval:   *auditInterval,
		resolveInterval: *resolveInterval,
		gateway:         gw,
		settlement:      svc,
		auditor:         auditor,
		logger:          logger,
		started:         time.Now(),
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Server error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// createStores creates all required stores, running migrations first.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			tokens:       memory.NewTokenStore(),
			wallets:      memory.NewWalletStore(),
			trades:       memory.NewTradeStore(),
			agents:       memory.NewBotAgentStore(),
			ledger:       memory.NewFundLedgerStore(),
			observations: memory.NewPriceObservationStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	// ClickHouse
	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	stores := &allStores{
		tokens:       pgstore.NewTokenStore(pool),
		wallets:      pgstore.NewWalletStore(pool),
		trades:       pgstore.NewTradeStore(pool),
		agents:       pgstore.NewBotAgentStore(pool),
		ledger:       pgstore.NewFundLedgerStore(pool),
		observations: chstore.NewPriceObservationStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return stores, cleanup, nil
}

// Run starts all components and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Println("Starting trading engine server...")

	errCh := make(chan error, 3)

	go func() {
		if err := s.runGatewayServer(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("gateway: %w", err)
		}
	}()
	go func() {
		if err := s.runResolveScheduler(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("pending resolver: %w", err)
		}
	}()
	go func() {
		if err := s.runAuditScheduler(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("audit scheduler: %w", err)
		}
	}()

	go s.startMetricsServer(ctx)
	go trackUptime(ctx)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// runGatewayServer serves the bot trading API.
func (s *Server) runGatewayServer(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.listenAddr,
		Handler: s.gateway.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Printf("Bot gateway listening on %s", s.listenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// runResolveScheduler periodically finishes trades stuck in PENDING.
func (s *Server) runResolveScheduler(ctx context.Context) error {
	s.logger.Printf("Starting pending-trade resolver (interval: %v)...", s.resolveInterval)

	ticker := time.NewTicker(s.resolveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.settlement.ResolvePending(ctx); err != nil {
				s.logger.Printf("Pending resolution error: %v", err)
			}
			s.mu.Lock()
			s.resolveRuns++
			s.mu.Unlock()
		}
	}
}

// runAuditScheduler periodically reconciles the fund ledger.
func (s *Server) runAuditScheduler(ctx context.Context) error {
	s.logger.Printf("Starting audit scheduler (interval: %v)...", s.auditInterval)

	// Run immediately on start
	s.runAudit(ctx)

	ticker := time.NewTicker(s.auditInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runAudit(ctx)
		}
	}
}

func (s *Server) runAudit(ctx context.Context) {
	result, err := s.auditor.Reconcile(ctx)
	if err != nil {
		s.logger.Printf("Reconciliation error: %v", err)
		return
	}

	s.mu.Lock()
	s.lastAuditRun = time.Now()
	s.lastAuditMatch = result.Matched
	s.auditRuns++
	s.mu.Unlock()
}

// startMetricsServer serves health/metrics/status endpoints.
func (s *Server) startMetricsServer(ctx context.Context) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", s.handleStatus)

	srv := &http.Server{Addr: s.metricsAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Printf("Metrics server listening on %s", s.metricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Printf("Metrics server error: %v", err)
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status         string    `json:"status"`
	Uptime         string    `json:"uptime"`
	LastAuditRun   time.Time `json:"last_audit_run,omitempty"`
	LastAuditMatch bool      `json:"last_audit_matched"`
	AuditRuns      int       `json:"audit_runs"`
	ResolveRuns    int       `json:"resolve_runs"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := StatusResponse{
		Status:         "running",
		Uptime:         time.Since(s.started).String(),
		LastAuditRun:   s.lastAuditRun,
		LastAuditMatch: s.lastAuditMatch,
		AuditRuns:      s.auditRuns,
		ResolveRuns:    s.resolveRuns,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func trackUptime(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.DefaultMetrics.UptimeSeconds.Inc()
		}
	}
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

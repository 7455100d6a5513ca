// Package gateway is the external REST surface for programmatic trading
// agents. It is a stricter facade over the settlement service: API-key
// authentication, a hard one-unit-per-trade rule, an atomic daily spend
// cap, slippage defaults, and a price-movement circuit breaker.
package gateway

import (
	"log"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"fantoken-engine/internal/oracle"
	"fantoken-engine/internal/settlement"
	"fantoken-engine/internal/storage"
	"fantoken-engine/internal/vault"
)

const (
	// DefaultDailyLimit is granted to newly registered agents: $100.
	DefaultDailyLimit = 100_000_000

	// DefaultSlippagePct applies when a trade request omits
	// max_slippage_percent.
	DefaultSlippagePct = 5

	// MaxSlippagePct bounds caller-supplied tolerance.
	MaxSlippagePct = 50

	// DefaultBreakerThresholdPct pauses a token's trading when price
	// moved more than this within the breaker window.
	DefaultBreakerThresholdPct = 20

	// DefaultBreakerWindow is the lookback for the circuit breaker.
	DefaultBreakerWindow = 5 * time.Minute
)

// Gateway serves the bot trading REST API.
type Gateway struct {
	settlement   *settlement.Service
	oracle       *oracle.Oracle
	vault        *vault.Vault
	tokens       storage.TokenStore
	agents       storage.BotAgentStore
	trades       storage.TradeStore
	observations storage.PriceObservationStore
	logger       *log.Logger

	dailyLimit          int64
	defaultSlippagePct  int64
	breakerThresholdPct int64
	breakerWindow       time.Duration
	now                 func() int64
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithDailyLimit overrides the limit granted at registration.
func WithDailyLimit(microUSD int64) Option {
	return func(g *Gateway) {
		g.dailyLimit = microUSD
	}
}

// WithBreaker overrides the circuit-breaker threshold and window.
func WithBreaker(thresholdPct int64, window time.Duration) Option {
	return func(g *Gateway) {
		g.breakerThresholdPct = thresholdPct
		g.breakerWindow = window
	}
}

// WithClock overrides the timestamp source. Tests only.
func WithClock(now func() int64) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

// New creates a Gateway.
func New(
	svc *settlement.Service,
	o *oracle.Oracle,
	v *vault.Vault,
	tokens storage.TokenStore,
	agents storage.BotAgentStore,
	trades storage.TradeStore,
	observations storage.PriceObservationStore,
	logger *log.Logger,
	opts ...Option,
) *Gateway {
	g := &Gateway{
		settlement:          svc,
		oracle:              o,
		vault:               v,
		tokens:              tokens,
		agents:              agents,
		trades:              trades,
		observations:        observations,
		logger:              logger,
		dailyLimit:          DefaultDailyLimit,
		defaultSlippagePct:  DefaultSlippagePct,
		breakerThresholdPct: DefaultBreakerThresholdPct,
		breakerWindow:       DefaultBreakerWindow,
		now:                 func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Router builds the chi router for the bot API.
func (g *Gateway) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(countRequests)

	r.Post("/register", g.handleRegister)
	r.Get("/tokens", g.handleListTokens)
	r.Post("/token-price", g.handleTokenPrice)

	r.Group(func(r chi.Router) {
		r.Use(g.authenticate)
		r.Post("/buy", g.handleBuy)
		r.Post("/sell", g.handleSell)
	})

	return r
}

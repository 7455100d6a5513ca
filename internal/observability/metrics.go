// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading engine.
type Metrics struct {
	// Trading metrics
	TradesSettled     *prometheus.CounterVec
	TradeVolumeUSD    *prometheus.CounterVec
	TradesRejected    *prometheus.CounterVec
	PendingTrades     prometheus.Gauge
	SettlementLatency *prometheus.HistogramVec

	// Gateway metrics
	GatewayRequests    *prometheus.CounterVec
	DailyCapRejections prometheus.Counter
	BreakerTrips       prometheus.Counter
	AgentsRegistered   prometheus.Counter

	// Chain metrics
	RPCCallLatency  *prometheus.HistogramVec
	RPCCallErrors   *prometheus.CounterVec
	QuotesServed    *prometheus.CounterVec
	QuoteDivergence *prometheus.CounterVec
	ReceiptTimeouts prometheus.Counter

	// Audit metrics
	ReconciliationRuns    *prometheus.CounterVec
	LedgerTotalUSD        prometheus.Gauge
	FundWalletBalanceUSD  prometheus.Gauge
	DiscrepancyUSD        prometheus.Gauge
	LastReconciliationRun prometheus.Gauge

	// Health metrics
	UptimeSeconds prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "fantoken_engine"
	}

	return &Metrics{
		// Trading metrics
		TradesSettled: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "trades_total",
			Help:      "Total number of settled trades by kind and status",
		}, []string{"kind", "status"}),
		TradeVolumeUSD: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "trade_volume_usd_total",
			Help:      "Total confirmed trade volume in USD by kind",
		}, []string{"kind"}),
		TradesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "trades_rejected_total",
			Help:      "Total number of rejected trade requests by error code",
		}, []string{"code"}),
		PendingTrades: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "pending_trades",
			Help:      "Current number of broadcast-but-unconfirmed trades",
		}),
		SettlementLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "latency_seconds",
			Help:      "Broadcast-to-terminal-state latency in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"kind"}),

		// Gateway metrics
		GatewayRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Total number of bot API requests by route and status",
		}, []string{"route", "status"}),
		DailyCapRejections: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "daily_cap_rejections_total",
			Help:      "Total number of trades rejected by the daily spend cap",
		}),
		BreakerTrips: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "circuit_breaker_trips_total",
			Help:      "Total number of trades paused by the circuit breaker",
		}),
		AgentsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "agents_registered_total",
			Help:      "Total number of bot agents registered",
		}),

		// Chain metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_latency_seconds",
			Help:      "Chain RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_errors_total",
			Help:      "Total number of chain RPC call errors by method",
		}, []string{"method"}),
		QuotesServed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "quotes_served_total",
			Help:      "Total number of on-chain quotes served by side",
		}, []string{"side"}),
		QuoteDivergence: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "quote_divergence_total",
			Help:      "Total number of on-chain quotes that disagree with the curve model",
		}, []string{"side"}),
		ReceiptTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "receipt_timeouts_total",
			Help:      "Total number of receipt waits that timed out",
		}),

		// Audit metrics
		ReconciliationRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "reconciliation_runs_total",
			Help:      "Total number of reconciliation runs by outcome",
		}, []string{"outcome"}),
		LedgerTotalUSD: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "ledger_total_usd",
			Help:      "Fund ledger total in USD at the last reconciliation",
		}),
		FundWalletBalanceUSD: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "fund_wallet_balance_usd",
			Help:      "On-chain fund wallet balance in USD at the last reconciliation",
		}),
		DiscrepancyUSD: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "discrepancy_usd",
			Help:      "Absolute ledger-vs-chain discrepancy in USD",
		}),
		LastReconciliationRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "last_reconciliation_timestamp",
			Help:      "Unix timestamp of the last reconciliation run",
		}),

		// Health metrics
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTradeSettled increments the settled-trade counter and, for
// confirmed trades, the volume counter.
func RecordTradeSettled(kind, status string, grossMicroUSD int64) {
	DefaultMetrics.TradesSettled.WithLabelValues(kind, status).Inc()
	if status == "CONFIRMED" {
		DefaultMetrics.TradeVolumeUSD.WithLabelValues(kind).Add(float64(grossMicroUSD) / 1e6)
	}
}

// RecordTradeRejected increments the rejection counter for an error code.
func RecordTradeRejected(code string) {
	DefaultMetrics.TradesRejected.WithLabelValues(code).Inc()
}

// UpdatePendingTrades updates the pending-trade gauge.
func UpdatePendingTrades(n int) {
	DefaultMetrics.PendingTrades.Set(float64(n))
}

// RecordSettlementLatency records broadcast-to-terminal latency.
func RecordSettlementLatency(kind string, seconds float64) {
	DefaultMetrics.SettlementLatency.WithLabelValues(kind).Observe(seconds)
}

// RecordReceiptTimeout increments the receipt timeout counter.
func RecordReceiptTimeout() {
	DefaultMetrics.ReceiptTimeouts.Inc()
}

// RecordGatewayRequest records a bot API request.
func RecordGatewayRequest(route string, status int) {
	DefaultMetrics.GatewayRequests.WithLabelValues(route, statusLabel(status)).Inc()
}

// RecordAgentRegistered increments the agent registration counter.
func RecordAgentRegistered() {
	DefaultMetrics.AgentsRegistered.Inc()
}

// RecordDailyCapRejection increments the daily-cap rejection counter.
func RecordDailyCapRejection() {
	DefaultMetrics.DailyCapRejections.Inc()
}

// RecordBreakerTrip increments the circuit-breaker trip counter.
func RecordBreakerTrip() {
	DefaultMetrics.BreakerTrips.Inc()
}

// RecordQuote increments the served-quote counter.
func RecordQuote(side string) {
	DefaultMetrics.QuotesServed.WithLabelValues(side).Inc()
}

// RecordQuoteDivergence increments the model-divergence counter.
func RecordQuoteDivergence(side string) {
	DefaultMetrics.QuoteDivergence.WithLabelValues(side).Inc()
}

// RecordRPCLatency records chain RPC call latency.
func RecordRPCLatency(method string, seconds float64, err error) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
	if err != nil {
		DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordReconciliation records a reconciliation outcome.
func RecordReconciliation(matched bool, ledgerMicroUSD, balanceMicroUSD, discrepancyMicroUSD int64, atUnix int64) {
	outcome := "matched"
	if !matched {
		outcome = "discrepancy"
	}
	DefaultMetrics.ReconciliationRuns.WithLabelValues(outcome).Inc()
	DefaultMetrics.LedgerTotalUSD.Set(float64(ledgerMicroUSD) / 1e6)
	DefaultMetrics.FundWalletBalanceUSD.Set(float64(balanceMicroUSD) / 1e6)
	DefaultMetrics.DiscrepancyUSD.Set(float64(discrepancyMicroUSD) / 1e6)
	DefaultMetrics.LastReconciliationRun.Set(float64(atUnix))
}

func statusLabel(status int) string {
	switch {
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

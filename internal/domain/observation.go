package domain

// Price observation sources.
const (
	ObservationSourceBuyQuote  = "BUY_QUOTE"
	ObservationSourceSellQuote = "SELL_QUOTE"
)

// PriceObservation is a point-in-time record of an on-chain quote,
// kept for price-history analytics and circuit-breaker forensics.
type PriceObservation struct {
	TokenID      int64
	TimestampMs  int64
	PricePerUnit int64 // micro-USD
	Supply       uint64
	Source       string
}

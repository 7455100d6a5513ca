package domain

// Trade kinds.
const (
	TradeKindBuy  = "BUY"
	TradeKindSell = "SELL"
)

// Trade statuses. A trade is inserted PENDING at broadcast time and
// transitions to exactly one terminal state.
const (
	TradeStatusPending   = "PENDING"
	TradeStatusConfirmed = "CONFIRMED"
	TradeStatusFailed    = "FAILED"
)

// Trade is the off-chain record of a settled (or in-flight) on-chain
// buy/sell. TxHash is the idempotency key: re-processing the same hash
// must never double-count.
type Trade struct {
	TradeID      string // uuid
	TokenID      int64
	ActorID      string // user or bot agent
	Kind         string // TradeKindBuy | TradeKindSell
	Units        uint64 // always 1 on the bot path
	PricePerUnit int64  // micro-USD
	GrossValue   int64  // micro-USD; total cost (buy) or gross refund (sell)

	// Fee decomposition, micro-USD. Sum equals GrossValue for buys.
	ReserveShare       int64
	CommunityFundShare int64
	PlatformFee        int64

	TxHash      string // unique; idempotency key
	BlockNumber uint64
	Status      string // TradeStatusPending | Confirmed | Failed
	FailReason  string // chain revert reason, verbatim, for FAILED trades
	CreatedAt   int64  // unix ms
	SettledAt   int64  // unix ms, zero until terminal
}

package domain

// BuyQuote is an authoritative on-chain buy-cost decomposition.
// Reserve + CommunityFund + PlatformFee == Total exactly.
type BuyQuote struct {
	TokenID       int64
	Units         uint64
	Supply        uint64 // on-chain supply at quote time
	Reserve       int64  // micro-USD
	CommunityFund int64  // micro-USD
	PlatformFee   int64  // micro-USD
	Total         int64  // micro-USD
	IsOnchainData bool   // always true for quotes the oracle returns
	IsRegistered  bool
	QuotedAt      int64 // unix ms
}

// SellQuote is an authoritative on-chain sell-refund decomposition.
// Net == Gross - PlatformFee exactly.
type SellQuote struct {
	TokenID       int64
	Units         uint64
	Supply        uint64
	Gross         int64 // micro-USD
	PlatformFee   int64 // micro-USD
	Net           int64 // micro-USD
	IsOnchainData bool
	IsRegistered  bool
	QuotedAt      int64 // unix ms
}

// TokenState is the contract-reported state for a token.
type TokenState struct {
	TokenID     int64
	Supply      uint64
	BasePrice   int64 // micro-USD
	Coefficient int64
	Creator     string // hex address
	Exists      bool
}

package domain

// FundLedgerEntry is the running community-fund total for a
// token-owning entity. Mutated only by the fee distributor after
// confirmation; reconciled against the on-chain fund wallet balance.
type FundLedgerEntry struct {
	EntityID  string
	Total     int64 // micro-USD
	UpdatedAt int64 // unix ms
}

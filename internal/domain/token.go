package domain

// Token represents a fan token issued on the bonding-curve contract.
// TotalSupply mirrors confirmed on-chain state and is never adjusted
// speculatively; the contract is the source of truth.
type Token struct {
	TokenID         int64  // chain-native token identity
	ArtistName      string // unique display name, used by the bot API
	ContractAddress string // bonding-curve contract holding this token
	CreatorID       string // entity that issued the token
	BasePrice       int64  // micro-USD
	Coefficient     int64  // micro-USD per sqrt(supply) step
	TotalSupply     uint64 // reflection of confirmed on-chain supply
	IsActive        bool
	CreatedAt       int64 // unix ms
	UpdatedAt       int64 // unix ms
}

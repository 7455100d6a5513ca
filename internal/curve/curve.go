// Package curve implements the bonding-curve pricing math in integer
// fixed point. All monetary values are micro-USD (scale 10^6) matching
// the on-chain settlement currency; intermediate floating point is
// forbidden because repeated float rounding diverges from the contract
// over many trades.
package curve

import "errors"

// Scale is the fixed-point scale: 10^6 micro-USD per USD.
const Scale = 1_000_000

// Default split ratios in basis points. Fixed at the contract level for
// a given token; configurable per deployment.
const (
	DefaultReserveBps       = 7000
	DefaultCommunityFundBps = 2000
	DefaultPlatformBps      = 1000
	DefaultSellFeeBps       = 400
)

var (
	// ErrNoSupply is returned when a sell refund is requested at supply 0.
	// No tokens exist, so a refund is not computable; this is distinct
	// from a valid zero-refund state.
	ErrNoSupply = errors.New("curve: refund undefined at zero supply")

	// ErrAmountExceedsSupply is returned when selling more units than exist.
	ErrAmountExceedsSupply = errors.New("curve: amount exceeds supply")

	// ErrInvalidAmount is returned for a zero-unit trade.
	ErrInvalidAmount = errors.New("curve: amount must be positive")

	// ErrInvalidParams is returned for a negative base price or coefficient.
	ErrInvalidParams = errors.New("curve: negative curve parameters")
)

// Params are the per-token curve parameters, micro-USD.
type Params struct {
	BasePrice   int64
	Coefficient int64
}

// Split holds the fee ratios applied to buy proceeds, basis points.
// Reserve + CommunityFund + Platform must equal 10000.
type Split struct {
	ReserveBps       int64
	CommunityFundBps int64
	PlatformBps      int64
}

// DefaultSplit is the 70/20/10 reference deployment split.
var DefaultSplit = Split{
	ReserveBps:       DefaultReserveBps,
	CommunityFundBps: DefaultCommunityFundBps,
	PlatformBps:      DefaultPlatformBps,
}

// BuyCost is a buy-cost decomposition. Reserve absorbs any integer
// remainder so Reserve + CommunityFund + PlatformFee == Total exactly.
type BuyCost struct {
	Reserve       int64
	CommunityFund int64
	PlatformFee   int64
	Total         int64
}

// SellRefund is a sell-refund decomposition. Net == Gross - PlatformFee.
type SellRefund struct {
	Gross       int64
	PlatformFee int64
	Net         int64
}

// PriceAtSupply returns the unit price at the given supply:
// basePrice + coefficient * isqrt(supply). Monotonically non-decreasing
// in supply for coefficient >= 0.
func PriceAtSupply(p Params, supply uint64) int64 {
	return p.BasePrice + p.Coefficient*int64(isqrt(supply))
}

// Cost computes the buy-cost decomposition for purchasing amount units
// at the given supply, walking the curve one unit at a time.
func Cost(p Params, supply, amount uint64, split Split) (BuyCost, error) {
	if amount == 0 {
		return BuyCost{}, ErrInvalidAmount
	}
	if p.BasePrice < 0 || p.Coefficient < 0 {
		return BuyCost{}, ErrInvalidParams
	}

	var total int64
	for i := uint64(0); i < amount; i++ {
		total += PriceAtSupply(p, supply+i)
	}

	fund := total * split.CommunityFundBps / 10000
	fee := total * split.PlatformBps / 10000
	// Remainder from integer division goes to reserve.
	reserve := total - fund - fee

	return BuyCost{
		Reserve:       reserve,
		CommunityFund: fund,
		PlatformFee:   fee,
		Total:         total,
	}, nil
}

// Refund computes the sell-refund decomposition for selling amount units
// at the given supply. The gross refund is the reserve share of the unit
// prices walked downward from the current supply, so a buy immediately
// followed by a sell can never net more than the buy cost. sellFeeBps is
// the flat platform fee (4% in the reference deployment).
//
// Defined only for supply > 0; callers must treat ErrNoSupply as "no
// tokens exist", never as a zero refund.
func Refund(p Params, supply, amount uint64, reserveBps, sellFeeBps int64) (SellRefund, error) {
	if supply == 0 {
		return SellRefund{}, ErrNoSupply
	}
	if amount == 0 {
		return SellRefund{}, ErrInvalidAmount
	}
	if amount > supply {
		return SellRefund{}, ErrAmountExceedsSupply
	}
	if p.BasePrice < 0 || p.Coefficient < 0 {
		return SellRefund{}, ErrInvalidParams
	}

	var walked int64
	for i := uint64(1); i <= amount; i++ {
		walked += PriceAtSupply(p, supply-i)
	}

	gross := walked * reserveBps / 10000
	fee := gross * sellFeeBps / 10000
	net := gross - fee

	return SellRefund{
		Gross:       gross,
		PlatformFee: fee,
		Net:         net,
	}, nil
}

// isqrt returns the integer square root of n (floor of sqrt).
func isqrt(n uint64) uint64 {
	if n < 2 {
		return n
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}

// Package oracle reads authoritative price and supply state from the
// bonding-curve contract. Quotes are never recomputed locally: if the
// node cannot be reached the caller gets ONCHAIN_UNAVAILABLE and the
// trading path stops.
package oracle

import (
	"context"
	"log"
	"time"

	"fantoken-engine/internal/chain"
	"fantoken-engine/internal/curve"
	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/observability"
	"fantoken-engine/internal/storage"
	"fantoken-engine/internal/trading"
)

// DefaultCallTimeout bounds a single quote round-trip.
const DefaultCallTimeout = 10 * time.Second

// Oracle wraps the chain client with registration checks, per-call
// timeouts and best-effort observation recording.
type Oracle struct {
	client       chain.Client
	observations storage.PriceObservationStore // nil disables recording
	timeout      time.Duration
	logger       *log.Logger
	now          func() int64
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithCallTimeout overrides the per-call timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Oracle) {
		o.timeout = d
	}
}

// WithObservationStore enables best-effort quote recording.
func WithObservationStore(s storage.PriceObservationStore) Option {
	return func(o *Oracle) {
		o.observations = s
	}
}

// WithClock overrides the timestamp source. Tests only.
func WithClock(now func() int64) Option {
	return func(o *Oracle) {
		o.now = now
	}
}

// New creates an Oracle over the given chain client.
func New(client chain.Client, logger *log.Logger, opts ...Option) *Oracle {
	o := &Oracle{
		client:  client,
		timeout: DefaultCallTimeout,
		logger:  logger,
		now:     func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// BuyQuote returns the contract's buy-cost decomposition for units.
func (o *Oracle) BuyQuote(ctx context.Context, tokenID int64, units uint64) (*domain.BuyQuote, error) {
	if units == 0 {
		return nil, trading.New(trading.CodeValidation, "units must be positive")
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	state, err := o.tokenState(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	cost, err := o.client.CalculateBuyCost(ctx, tokenID, units)
	if err != nil {
		return nil, trading.Wrap(trading.CodeOnchainUnavailable, "buy quote unavailable", err)
	}
	o.crossCheckBuy(tokenID, state, units, cost)

	quote := &domain.BuyQuote{
		TokenID:       tokenID,
		Units:         units,
		Supply:        state.Supply,
		Reserve:       cost.Reserve,
		CommunityFund: cost.FundFee,
		PlatformFee:   cost.PlatformFee,
		Total:         cost.Total,
		IsOnchainData: true,
		IsRegistered:  true,
		QuotedAt:      o.now(),
	}

	o.observe(tokenID, quote.QuotedAt, cost.Total/int64(units), state.Supply, domain.ObservationSourceBuyQuote)
	observability.RecordQuote("buy")
	return quote, nil
}

// SellQuote returns the contract's sell-refund decomposition for units.
func (o *Oracle) SellQuote(ctx context.Context, tokenID int64, units uint64) (*domain.SellQuote, error) {
	if units == 0 {
		return nil, trading.New(trading.CodeValidation, "units must be positive")
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	state, err := o.tokenState(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	refund, err := o.client.CalculateSellRefund(ctx, tokenID, units)
	if err != nil {
		return nil, trading.Wrap(trading.CodeOnchainUnavailable, "sell quote unavailable", err)
	}
	o.crossCheckSell(tokenID, state, units, refund)

	quote := &domain.SellQuote{
		TokenID:       tokenID,
		Units:         units,
		Supply:        state.Supply,
		Gross:         refund.Gross,
		PlatformFee:   refund.Fee,
		Net:           refund.Net,
		IsOnchainData: true,
		IsRegistered:  true,
		QuotedAt:      o.now(),
	}

	o.observe(tokenID, quote.QuotedAt, refund.Gross/int64(units), state.Supply, domain.ObservationSourceSellQuote)
	observability.RecordQuote("sell")
	return quote, nil
}

// TokenState reads the contract's curve state for a token.
func (o *Oracle) TokenState(ctx context.Context, tokenID int64) (*domain.TokenState, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	state, err := o.tokenState(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	return &domain.TokenState{
		TokenID:     tokenID,
		Supply:      state.Supply,
		BasePrice:   state.BasePrice,
		Coefficient: state.Coefficient,
		Creator:     state.Creator,
		Exists:      true,
	}, nil
}

func (o *Oracle) tokenState(ctx context.Context, tokenID int64) (*chain.TokenState, error) {
	state, err := o.client.TokenState(ctx, tokenID)
	if err != nil {
		return nil, trading.Wrap(trading.CodeOnchainUnavailable, "token state unavailable", err)
	}
	if !state.Exists {
		return nil, trading.Newf(trading.CodeTokenNotRegistered, "token %d is not registered on the curve", tokenID)
	}
	return state, nil
}

// crossCheckBuy recomputes the quote from the contract's own curve
// parameters. The on-chain number always wins; a mismatch means the
// node served inconsistent state and is worth an alarm.
func (o *Oracle) crossCheckBuy(tokenID int64, state *chain.TokenState, units uint64, cost *chain.BuyCost) {
	expected, err := curve.Cost(
		curve.Params{BasePrice: state.BasePrice, Coefficient: state.Coefficient},
		state.Supply, units, curve.DefaultSplit)
	if err != nil || expected.Total == cost.Total {
		return
	}
	observability.RecordQuoteDivergence("buy")
	o.logger.Printf("token %d buy quote %d diverges from curve model %d at supply %d",
		tokenID, cost.Total, expected.Total, state.Supply)
}

func (o *Oracle) crossCheckSell(tokenID int64, state *chain.TokenState, units uint64, refund *chain.SellRefund) {
	expected, err := curve.Refund(
		curve.Params{BasePrice: state.BasePrice, Coefficient: state.Coefficient},
		state.Supply, units, curve.DefaultReserveBps, curve.DefaultSellFeeBps)
	if err != nil || expected.Gross == refund.Gross {
		return
	}
	observability.RecordQuoteDivergence("sell")
	o.logger.Printf("token %d sell quote %d diverges from curve model %d at supply %d",
		tokenID, refund.Gross, expected.Gross, state.Supply)
}

// observe records a quote for analytics. Failures are logged, never
// propagated: recording must not affect the trading path.
func (o *Oracle) observe(tokenID int64, atMs int64, pricePerUnit int64, supply uint64, source string) {
	if o.observations == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	err := o.observations.Insert(ctx, &domain.PriceObservation{
		TokenID:      tokenID,
		TimestampMs:  atMs,
		PricePerUnit: pricePerUnit,
		Supply:       supply,
		Source:       source,
	})
	if err != nil {
		o.logger.Printf("record observation for token %d: %v", tokenID, err)
	}
}

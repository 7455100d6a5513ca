package gateway

import (
	"context"
	"fmt"

	"fantoken-engine/internal/observability"
	"fantoken-engine/internal/trading"
)

// checkCircuitBreaker pauses trading for a token whose observed price
// moved more than the threshold within the lookback window. Quote
// observations double as the movement record, so a paused token stays
// paused until the window slides past the spike.
func (g *Gateway) checkCircuitBreaker(ctx context.Context, tokenID int64) error {
	if g.observations == nil {
		return nil
	}

	since := g.now() - g.breakerWindow.Milliseconds()
	recent, err := g.observations.GetRecent(ctx, tokenID, since)
	if err != nil {
		// Analytics outage must not block trading.
		g.logger.Printf("circuit breaker read for token %d: %v", tokenID, err)
		return nil
	}
	if len(recent) < 2 {
		return nil
	}

	low, high := recent[0].PricePerUnit, recent[0].PricePerUnit
	for _, obs := range recent[1:] {
		if obs.PricePerUnit < low {
			low = obs.PricePerUnit
		}
		if obs.PricePerUnit > high {
			high = obs.PricePerUnit
		}
	}
	if low <= 0 {
		return nil
	}

	movedPct := (high - low) * 100 / low
	if movedPct > g.breakerThresholdPct {
		observability.RecordBreakerTrip()
		return trading.New(trading.CodeTradingPaused, fmt.Sprintf(
			"token %d price moved %d%% within %s, trading paused",
			tokenID, movedPct, g.breakerWindow))
	}
	return nil
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/observability"
	"fantoken-engine/internal/settlement"
	"fantoken-engine/internal/storage"
	"fantoken-engine/internal/trading"
)

type registerRequest struct {
	AgentName string `json:"agent_name"`
}

type registerResponse struct {
	AgentID       string `json:"agent_id"`
	AgentName     string `json:"agent_name"`
	APIKey        string `json:"api_key"`
	DailyLimitUSD string `json:"daily_limit_usd"`
}

// handleRegister creates an agent and its custodial wallet. The
// plaintext API key appears in this response and nowhere else.
func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, trading.Wrap(trading.CodeValidation, "malformed request body", err))
		return
	}
	if req.AgentName == "" {
		g.writeError(w, trading.New(trading.CodeValidation, "agent_name is required"))
		return
	}

	apiKey := uuid.NewString()
	agent := &domain.BotAgent{
		AgentID:    uuid.NewString(),
		Name:       req.AgentName,
		APIKeyHash: hashAPIKey(apiKey),
		DailyLimit: g.dailyLimit,
		CreatedAt:  g.now(),
	}
	if err := g.agents.Insert(r.Context(), agent); err != nil {
		g.writeError(w, err)
		return
	}

	// Agents trade through a platform-held wallet; they never handle
	// keys or gas themselves.
	if _, err := g.vault.CreateWallet(r.Context(), agent.AgentID); err != nil {
		g.writeError(w, err)
		return
	}

	g.logger.Printf("registered agent %s (%s)", agent.AgentID, agent.Name)
	observability.RecordAgentRegistered()
	writeJSON(w, http.StatusCreated, registerResponse{
		AgentID:       agent.AgentID,
		AgentName:     agent.Name,
		APIKey:        apiKey,
		DailyLimitUSD: usd(agent.DailyLimit),
	})
}

type tokenResponse struct {
	TokenID         int64  `json:"token_id"`
	ArtistName      string `json:"artist_name"`
	TotalSupply     uint64 `json:"total_supply"`
	BasePriceUSD    string `json:"base_price_usd"`
	ContractAddress string `json:"contract_address,omitempty"`
}

func (g *Gateway) handleListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := g.tokens.ListActive(r.Context())
	if err != nil {
		g.writeError(w, err)
		return
	}

	out := make([]tokenResponse, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, tokenResponse{
			TokenID:         t.TokenID,
			ArtistName:      t.ArtistName,
			TotalSupply:     t.TotalSupply,
			BasePriceUSD:    usd(t.BasePrice),
			ContractAddress: t.ContractAddress,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type tokenPriceRequest struct {
	ArtistName string `json:"artist_name"`
}

type tokenPriceResponse struct {
	ArtistName       string `json:"artist_name"`
	TokenID          int64  `json:"token_id"`
	Supply           uint64 `json:"supply"`
	PriceUSD         string `json:"price_usd"`
	ReserveUSD       string `json:"reserve_usd"`
	CommunityFundUSD string `json:"community_fund_usd"`
	PlatformFeeUSD   string `json:"platform_fee_usd"`
	IsOnchainData    bool   `json:"is_onchain_data"`
	IsRegistered     bool   `json:"is_token_registered"`
}

func (g *Gateway) handleTokenPrice(w http.ResponseWriter, r *http.Request) {
	var req tokenPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, trading.Wrap(trading.CodeValidation, "malformed request body", err))
		return
	}

	token, err := g.tokenByArtist(r.Context(), req.ArtistName)
	if err != nil {
		g.writeError(w, err)
		return
	}

	quote, err := g.oracle.BuyQuote(r.Context(), token.TokenID, 1)
	if err != nil {
		g.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenPriceResponse{
		ArtistName:       token.ArtistName,
		TokenID:          token.TokenID,
		Supply:           quote.Supply,
		PriceUSD:         usd(quote.Total),
		ReserveUSD:       usd(quote.Reserve),
		CommunityFundUSD: usd(quote.CommunityFund),
		PlatformFeeUSD:   usd(quote.PlatformFee),
		IsOnchainData:    quote.IsOnchainData,
		IsRegistered:     quote.IsRegistered,
	})
}

type tradeRequest struct {
	ArtistName string `json:"artist_name"`
	// Amount defaults to 1 and must be exactly 1: a hard business rule
	// blunting curve manipulation by automated actors.
	Amount             *uint64 `json:"amount"`
	MaxSlippagePercent *int64  `json:"max_slippage_percent"`
}

type tradeResponse struct {
	TradeID          string `json:"trade_id"`
	ArtistName       string `json:"artist_name"`
	Kind             string `json:"kind"`
	Units            uint64 `json:"units"`
	TotalUSD         string `json:"total_usd"`
	ReserveUSD       string `json:"reserve_usd,omitempty"`
	CommunityFundUSD string `json:"community_fund_usd,omitempty"`
	PlatformFeeUSD   string `json:"platform_fee_usd"`
	NetUSD           string `json:"net_usd,omitempty"`
	TxHash           string `json:"tx_hash"`
	BlockNumber      uint64 `json:"block_number"`
	Status           string `json:"status"`
}

func (g *Gateway) handleBuy(w http.ResponseWriter, r *http.Request) {
	agent := agentFrom(r.Context())

	req, token, err := g.parseTrade(r)
	if err != nil {
		g.writeError(w, err)
		return
	}

	slippagePct := g.defaultSlippagePct
	if req.MaxSlippagePercent != nil {
		slippagePct = *req.MaxSlippagePercent
		if slippagePct < 0 || slippagePct > MaxSlippagePct {
			g.writeError(w, trading.Newf(trading.CodeValidation,
				"max_slippage_percent must be between 0 and %d", MaxSlippagePct))
			return
		}
	}

	if err := g.rejectInFlight(r.Context(), agent.AgentID, token.TokenID); err != nil {
		g.writeError(w, err)
		return
	}
	if err := g.checkCircuitBreaker(r.Context(), token.TokenID); err != nil {
		g.writeError(w, err)
		return
	}

	// The cap reservation covers the worst case the slippage bound
	// allows, so concurrent requests can never jointly exceed the limit.
	quote, err := g.oracle.BuyQuote(r.Context(), token.TokenID, 1)
	if err != nil {
		g.writeError(w, err)
		return
	}
	maxCost := quote.Total + quote.Total*slippagePct/100

	if err := g.agents.ReserveSpend(r.Context(), agent.AgentID, maxCost, g.now()); err != nil {
		if errors.Is(err, storage.ErrLimitExceeded) {
			observability.RecordDailyCapRejection()
			g.writeError(w, trading.Newf(trading.CodeRateLimitExceeded,
				"daily limit %s reached for agent %s", usd(agent.DailyLimit), agent.AgentID))
			return
		}
		g.writeError(w, err)
		return
	}

	trade, err := g.settlement.Buy(r.Context(), &settlement.BuyRequest{
		TokenID: token.TokenID,
		ActorID: agent.AgentID,
		Units:   1,
		MaxCost: maxCost,
	})
	if err != nil {
		// A trade that broadcast but has no terminal state yet keeps its
		// reservation: the pending resolver may still confirm the spend.
		if trade == nil || trade.Status != domain.TradeStatusPending {
			g.releaseSpend(r.Context(), agent.AgentID, maxCost)
		}
		g.writeError(w, err)
		return
	}

	// Return the reservation headroom above what was actually spent.
	if headroom := maxCost - trade.GrossValue; headroom > 0 {
		g.releaseSpend(r.Context(), agent.AgentID, headroom)
	}

	writeJSON(w, http.StatusOK, tradeResponse{
		TradeID:          trade.TradeID,
		ArtistName:       token.ArtistName,
		Kind:             trade.Kind,
		Units:            trade.Units,
		TotalUSD:         usd(trade.GrossValue),
		ReserveUSD:       usd(trade.ReserveShare),
		CommunityFundUSD: usd(trade.CommunityFundShare),
		PlatformFeeUSD:   usd(trade.PlatformFee),
		TxHash:           trade.TxHash,
		BlockNumber:      trade.BlockNumber,
		Status:           trade.Status,
	})
}

func (g *Gateway) handleSell(w http.ResponseWriter, r *http.Request) {
	agent := agentFrom(r.Context())

	_, token, err := g.parseTrade(r)
	if err != nil {
		g.writeError(w, err)
		return
	}

	if err := g.rejectInFlight(r.Context(), agent.AgentID, token.TokenID); err != nil {
		g.writeError(w, err)
		return
	}
	if err := g.checkCircuitBreaker(r.Context(), token.TokenID); err != nil {
		g.writeError(w, err)
		return
	}

	trade, err := g.settlement.Sell(r.Context(), &settlement.SellRequest{
		TokenID: token.TokenID,
		ActorID: agent.AgentID,
		Units:   1,
	})
	if err != nil {
		g.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tradeResponse{
		TradeID:        trade.TradeID,
		ArtistName:     token.ArtistName,
		Kind:           trade.Kind,
		Units:          trade.Units,
		TotalUSD:       usd(trade.GrossValue),
		PlatformFeeUSD: usd(trade.PlatformFee),
		NetUSD:         usd(trade.GrossValue - trade.PlatformFee),
		TxHash:         trade.TxHash,
		BlockNumber:    trade.BlockNumber,
		Status:         trade.Status,
	})
}

// parseTrade decodes and validates the shared buy/sell request shape.
func (g *Gateway) parseTrade(r *http.Request) (*tradeRequest, *domain.Token, error) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, nil, trading.Wrap(trading.CodeValidation, "malformed request body", err)
	}
	if req.Amount != nil && *req.Amount != 1 {
		return nil, nil, trading.New(trading.CodeValidation, "exactly 1 unit per trade")
	}

	token, err := g.tokenByArtist(r.Context(), req.ArtistName)
	if err != nil {
		return nil, nil, err
	}
	return &req, token, nil
}

func (g *Gateway) tokenByArtist(ctx context.Context, artistName string) (*domain.Token, error) {
	if artistName == "" {
		return nil, trading.New(trading.CodeValidation, "artist_name is required")
	}
	token, err := g.tokens.GetByArtistName(ctx, artistName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, trading.Newf(trading.CodeTokenNotFound, "no token for artist %q", artistName)
		}
		return nil, err
	}
	return token, nil
}

// rejectInFlight blocks a second submission for the same (agent, token)
// while an earlier one is still unconfirmed, keeping the agent to one
// transaction per block window.
func (g *Gateway) rejectInFlight(ctx context.Context, agentID string, tokenID int64) error {
	trades, err := g.trades.GetByActor(ctx, agentID)
	if err != nil {
		return err
	}
	for _, t := range trades {
		if t.TokenID == tokenID && t.Status == domain.TradeStatusPending {
			return trading.Newf(trading.CodeDuplicateSubmission,
				"trade %s for token %d is still pending", t.TxHash, tokenID)
		}
	}
	return nil
}

func (g *Gateway) releaseSpend(ctx context.Context, agentID string, amount int64) {
	if amount <= 0 {
		return
	}
	if err := g.agents.ReleaseSpend(ctx, agentID, amount); err != nil {
		g.logger.Printf("release spend %d for agent %s: %v", amount, agentID, err)
	}
}

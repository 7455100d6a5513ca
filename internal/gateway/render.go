package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"fantoken-engine/internal/observability"
	"fantoken-engine/internal/storage"
	"fantoken-engine/internal/trading"
)

type errorEnvelope struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// usd renders a micro-USD integer as a human-readable decimal string.
// The only place the integer representation leaves the service.
func usd(micro int64) string {
	return decimal.New(micro, -6).String()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are gone; nothing left to do.
		_ = err
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, err error) {
	code := trading.CodeOf(err)
	// CodeOf classifies anything without a trading code as internal, so
	// sentinel storage errors are mapped here before rendering.
	if code == trading.CodeInternal && errors.Is(err, storage.ErrNotFound) {
		code = trading.CodeTokenNotFound
	}

	observability.RecordTradeRejected(string(code))

	msg := err.Error()
	if code == trading.CodeInternal {
		// Internal detail stays in the log, not the response.
		g.logger.Printf("internal error: %v", err)
		msg = "internal error"
	}

	writeJSON(w, httpStatus(code), errorEnvelope{Code: string(code), Error: msg})
}

func httpStatus(code trading.Code) int {
	switch code {
	case trading.CodeValidation:
		return http.StatusBadRequest
	case trading.CodeTokenNotFound, trading.CodeTokenNotRegistered:
		return http.StatusNotFound
	case trading.CodeInsufficientBalance, trading.CodeInsufficientAllowance:
		return http.StatusPaymentRequired
	case trading.CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case trading.CodeSlippageExceeded, trading.CodeDuplicateSubmission:
		return http.StatusConflict
	case trading.CodeTransactionReverted:
		return http.StatusUnprocessableEntity
	case trading.CodeTradingPaused, trading.CodeOnchainUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

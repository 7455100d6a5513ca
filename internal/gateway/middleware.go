package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/observability"
	"fantoken-engine/internal/storage"
)

// APIKeyHeader carries the agent's API key on trading requests.
const APIKeyHeader = "x-bot-api-key"

type contextKey struct{}

var agentKey contextKey

// hashAPIKey is the stored form of an API key. One-way; the plaintext
// key is shown exactly once, at registration.
func hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// authenticate resolves the x-bot-api-key header to a registered agent
// and stashes it in the request context.
func (g *Gateway) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			writeJSON(w, http.StatusUnauthorized, errorEnvelope{
				Code: "UNAUTHORIZED", Error: "missing " + APIKeyHeader + " header",
			})
			return
		}

		agent, err := g.agents.GetByAPIKeyHash(r.Context(), hashAPIKey(key))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeJSON(w, http.StatusUnauthorized, errorEnvelope{
					Code: "UNAUTHORIZED", Error: "invalid api key",
				})
				return
			}
			g.writeError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), agentKey, agent)))
	})
}

func agentFrom(ctx context.Context) *domain.BotAgent {
	agent, _ := ctx.Value(agentKey).(*domain.BotAgent)
	return agent
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		observability.RecordGatewayRequest(r.URL.Path, ww.Status())
	})
}

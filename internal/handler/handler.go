// Package handler exposes the pricing engine over a JSON HTTP API.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/price-engine/internal/domain/auth"
	"github.com/xenking/price-engine/internal/domain/pricing"
)

// Handler serves the pricing API, delegating all business logic to the
// injected engine.
type Handler struct {
	engine   *pricing.Engine
	security *Security
	quotes   metric.Int64Counter
}

// NewHandler constructs a Handler with the required dependencies. A nil
// security disables authentication, for tests and local development.
func NewHandler(engine *pricing.Engine, security *Security) *Handler {
	meter := otel.Meter("github.com/xenking/price-engine/internal/handler")
	quotes, _ := meter.Int64Counter("pricing.quotes",
		metric.WithDescription("Quotes produced by the calculate endpoints"))
	return &Handler{engine: engine, security: security, quotes: quotes}
}

// Register mounts the API routes onto the mux. Preview endpoints require
// the calculate scope; commit and release require the commit scope.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /api/calculate", h.secured(auth.ScopeCalculate, h.Calculate))
	mux.Handle("POST /api/calculate/batch", h.secured(auth.ScopeCalculate, h.CalculateBatch))
	mux.Handle("POST /api/promotions/validate", h.secured(auth.ScopeCalculate, h.ValidatePromotion))
	mux.Handle("POST /api/promotions/commit", h.secured(auth.ScopeCommit, h.Commit))
	mux.Handle("POST /api/promotions/release", h.secured(auth.ScopeCommit, h.Release))
}

func (h *Handler) secured(scope string, fn http.HandlerFunc) http.Handler {
	if h.security == nil {
		return fn
	}
	return h.security.Require(scope)(fn)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "malformed request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zctx.From(r.Context()).Error("encoding response", zap.Error(err))
	}
}

// errorResponse is the uniform error body for all non-2xx responses.
type errorResponse struct {
	Code    int    `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, reason, message string) {
	writeJSON(w, r, status, errorResponse{Code: status, Reason: reason, Message: message})
}

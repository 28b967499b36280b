package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/price-engine/internal/domain/catalog"
	"github.com/xenking/price-engine/internal/domain/pricing"
	"github.com/xenking/price-engine/internal/domain/promo"
)

type calculateRequest struct {
	ProductID  string `json:"productId"`
	Quantity   int    `json:"quantity"`
	CustomerID string `json:"customerId"`
	PromoCode  string `json:"promoCode,omitempty"`
}

type batchItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type calculateBatchRequest struct {
	Items      []batchItemRequest `json:"items"`
	CustomerID string             `json:"customerId"`
	PromoCode  string             `json:"promoCode,omitempty"`
}

type lineResponse struct {
	ProductID            string  `json:"productId"`
	Quantity             int     `json:"quantity"`
	BasePrice            float64 `json:"basePrice"`
	TierDiscountPercent  float64 `json:"tierDiscountPercent,omitempty"`
	TierDiscountAmount   float64 `json:"tierDiscountAmount,omitempty"`
	AppliedRuleID        string  `json:"appliedRuleId,omitempty"`
	RuleDiscountAmount   float64 `json:"ruleDiscountAmount,omitempty"`
	PromotionCode        string  `json:"promotionCode,omitempty"`
	PromotionAmount      float64 `json:"promotionAmount,omitempty"`
	FinalUnitPrice       float64 `json:"finalUnitPrice"`
	LineTotal            float64 `json:"lineTotal"`
	TotalDiscount        float64 `json:"totalDiscount"`
	TotalDiscountPercent float64 `json:"totalDiscountPercent"`
}

type promotionVerdict struct {
	Code    string `json:"code"`
	Valid   bool   `json:"valid"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type quoteResponse struct {
	Lines     []lineResponse    `json:"lines"`
	Subtotal  float64           `json:"subtotal"`
	Discount  float64           `json:"discount"`
	Total     float64           `json:"total"`
	Promotion *promotionVerdict `json:"promotion,omitempty"`
}

type validatePromotionRequest struct {
	Code       string  `json:"code"`
	OrderTotal float64 `json:"orderTotal"`
	CustomerID string  `json:"customerId"`
}

type validatePromotionResponse struct {
	Valid             bool    `json:"valid"`
	Reason            string  `json:"reason"`
	Message           string  `json:"message"`
	EstimatedDiscount float64 `json:"estimatedDiscount"`
}

type commitRequest struct {
	Code           string `json:"code"`
	CustomerID     string `json:"customerId"`
	OrderReference string `json:"orderReference"`
}

// Calculate prices a single product line for a customer.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	quote, err := h.engine.Calculate(r.Context(), req.ProductID, req.Quantity, req.CustomerID, req.PromoCode)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.recordQuote(r, quote)
	writeJSON(w, r, http.StatusOK, toQuoteResponse(quote, req.PromoCode))
}

// CalculateBatch prices a multi-line order for a customer.
func (h *Handler) CalculateBatch(w http.ResponseWriter, r *http.Request) {
	var req calculateBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	items := make([]pricing.BatchItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = pricing.BatchItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	quote, err := h.engine.CalculateBatch(r.Context(), items, req.CustomerID, req.PromoCode)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.recordQuote(r, quote)
	writeJSON(w, r, http.StatusOK, toQuoteResponse(quote, req.PromoCode))
}

// recordQuote emits per-quote telemetry: a counter with line count and
// promotion verdict, plus span attributes for trace drill-down.
func (h *Handler) recordQuote(r *http.Request, q *pricing.Quote) {
	ctx := r.Context()
	promoApplied := q.Promotion != nil && q.Promotion.Valid

	if h.quotes != nil {
		h.quotes.Add(ctx, 1, metric.WithAttributes(
			attribute.Int("lines", len(q.Lines)),
			attribute.Bool("promotion_applied", promoApplied),
		))
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("pricing.lines", len(q.Lines)),
		attribute.Bool("pricing.promotion_applied", promoApplied),
	)
}

// ValidatePromotion checks a promotion code standalone, before any cart
// exists, against a claimed order total.
func (h *Handler) ValidatePromotion(w http.ResponseWriter, r *http.Request) {
	var req validatePromotionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	check, err := h.engine.ValidatePromotion(r.Context(), req.Code, decimal.NewFromFloat(req.OrderTotal), req.CustomerID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, validatePromotionResponse{
		Valid:             check.Valid,
		Reason:            string(check.Reason),
		Message:           check.Reason.Message(),
		EstimatedDiscount: check.EstimatedDiscount.InexactFloat64(),
	})
}

// Commit consumes one unit of the promotion's usage allowance for an order.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OrderReference == "" {
		writeError(w, r, http.StatusBadRequest, "bad_request", "orderReference required")
		return
	}

	if err := h.engine.Commit(r.Context(), req.Code, req.CustomerID, req.OrderReference); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "committed"})
}

// Release rolls back a committed reservation after the order failed.
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OrderReference == "" {
		writeError(w, r, http.StatusBadRequest, "bad_request", "orderReference required")
		return
	}

	if err := h.engine.Release(r.Context(), req.Code, req.CustomerID, req.OrderReference); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "released"})
}

// writeEngineError maps domain errors onto the HTTP error taxonomy.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var iqErr *pricing.InvalidQuantityError

	switch {
	case errors.Is(err, pricing.ErrEmptyItems):
		writeError(w, r, http.StatusBadRequest, "bad_request", "items required")
	case errors.As(err, &iqErr):
		writeError(w, r, http.StatusUnprocessableEntity, "invalid_quantity", iqErr.Error())
	case errors.Is(err, catalog.ErrProductNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, catalog.ErrCustomerNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "customer not found")
	case errors.Is(err, promo.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "promotion not found")
	case errors.Is(err, promo.ErrInvalidState):
		writeError(w, r, http.StatusUnprocessableEntity, "promotion_not_valid", "promotion is not currently valid")
	case errors.Is(err, promo.ErrUsageLimitReached):
		writeError(w, r, http.StatusConflict, "limit_reached", "promotion usage limit reached")
	case errors.Is(err, promo.ErrCustomerLimitReached):
		writeError(w, r, http.StatusConflict, "customer_limit_reached", "customer usage limit for this promotion reached")
	case errors.Is(err, pricing.ErrStackingConflict):
		writeError(w, r, http.StatusUnprocessableEntity, "stacking_conflict", "promotion stacking policy conflict")
	default:
		zctx.From(r.Context()).Error("internal error", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func toQuoteResponse(q *pricing.Quote, requestedCode string) quoteResponse {
	resp := quoteResponse{
		Lines:    make([]lineResponse, len(q.Lines)),
		Subtotal: q.Subtotal.InexactFloat64(),
		Discount: q.Discount.InexactFloat64(),
		Total:    q.Total.InexactFloat64(),
	}
	for i, l := range q.Lines {
		resp.Lines[i] = lineResponse{
			ProductID:            l.ProductID,
			Quantity:             l.Quantity,
			BasePrice:            l.BasePrice.InexactFloat64(),
			TierDiscountPercent:  l.TierPercent.InexactFloat64(),
			TierDiscountAmount:   l.TierAmount.InexactFloat64(),
			AppliedRuleID:        l.RuleID,
			RuleDiscountAmount:   l.RuleAmount.InexactFloat64(),
			PromotionCode:        l.PromotionCode,
			PromotionAmount:      l.PromotionAmount.InexactFloat64(),
			FinalUnitPrice:       l.FinalUnitPrice.InexactFloat64(),
			LineTotal:            l.LineTotal.InexactFloat64(),
			TotalDiscount:        l.TotalDiscount.InexactFloat64(),
			TotalDiscountPercent: l.TotalDiscountPercent.InexactFloat64(),
		}
	}
	if q.Promotion != nil {
		resp.Promotion = &promotionVerdict{
			Code:    requestedCode,
			Valid:   q.Promotion.Valid,
			Reason:  string(q.Promotion.Reason),
			Message: q.Promotion.Reason.Message(),
		}
	}
	return resp
}

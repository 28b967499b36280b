// Package pricing is the resolution engine: it combines tier pricing,
// scoped price rules, and promotions into a final chargeable unit price
// per line, with order-level proration for fixed promotion amounts.
package pricing

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/price-engine/internal/domain/promo"
)

// Sentinel errors for request validation.
var (
	ErrEmptyItems = errors.New("items required")
	// ErrStackingConflict reports a promotion whose stacking policy forbids
	// the requested combination. With a single code per request this cannot
	// currently trigger, but it stays in the taxonomy for the day multiple
	// promotions can be combined.
	ErrStackingConflict = errors.New("promotion stacking policy conflict")
)

// InvalidQuantityError indicates a line with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// Line is one (product, quantity) pairing being priced within a request,
// already joined with the catalog data the engine needs. Ephemeral; never
// persisted.
type Line struct {
	ProductID      string
	Quantity       int
	BasePrice      decimal.Decimal
	CategoryID     string
	ManufacturerID string
}

// Subtotal returns BasePrice × Quantity, the line's pre-discount value.
func (l Line) Subtotal() decimal.Decimal {
	return l.BasePrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Result is the priced outcome for one line. Tier and rule amounts are per
// unit; PromotionAmount is the line's share of the promotion's order-level
// discount, so that the shares of a fixed promotion sum exactly to its
// stated amount.
type Result struct {
	ProductID string
	Quantity  int
	BasePrice decimal.Decimal

	TierPercent decimal.Decimal
	TierAmount  decimal.Decimal

	RuleID     string
	RuleAmount decimal.Decimal

	PromotionCode   string
	PromotionAmount decimal.Decimal

	FinalUnitPrice decimal.Decimal
	LineTotal      decimal.Decimal

	// TotalDiscount is BasePrice − FinalUnitPrice per unit;
	// TotalDiscountPercent relates it back to the base price. Both are
	// display values, never inputs to further computation.
	TotalDiscount        decimal.Decimal
	TotalDiscountPercent decimal.Decimal
}

// Quote is the outcome of a preview calculation: priced lines plus the
// promotion verdict. Previews are pure; nothing is consumed until commit.
type Quote struct {
	Lines []Result

	// Subtotal is the pre-discount order value, Σ basePrice × quantity.
	Subtotal decimal.Decimal
	// Total is Σ line totals after all discount layers.
	Total decimal.Decimal
	// Discount is Subtotal − Total.
	Discount decimal.Decimal

	// Promotion is the validation verdict for the requested code, nil when
	// no code was supplied. An invalid code does not fail the preview; the
	// lines are simply priced without it.
	Promotion *promo.Validation
}

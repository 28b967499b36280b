package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/price-engine/internal/domain/rule"
)

var hundred = decimal.NewFromInt(100)

// Computation carries a line through the discount pipeline. Each layer is
// computed against the running price left by the previous one, so layers
// compound rather than add on the base and the composed discount can never
// exceed the base price no matter how many layers apply.
type Computation struct {
	Line    Line
	Running decimal.Decimal // current unit price, full precision

	tierPercent decimal.Decimal
	tierAmount  decimal.Decimal
	ruleID      string
	ruleAmount  decimal.Decimal
}

// ComposeBase applies the tier and rule layers to a line and returns the
// intermediate state the allocator prorates against. The tier layer is
// skipped when applyTier is false (a promotion that does not stack with
// tier pricing is in effect for the request). winner may be nil.
func ComposeBase(line Line, tierPercent decimal.Decimal, winner *rule.PriceRule, applyTier bool) Computation {
	c := Computation{Line: line, Running: line.BasePrice}

	if applyTier && tierPercent.IsPositive() {
		c.tierPercent = tierPercent
		c.tierAmount = c.Running.Mul(tierPercent).Div(hundred)
		c.Running = c.Running.Sub(c.tierAmount)
	}

	if winner != nil {
		c.ruleID = winner.ID
		switch winner.DiscountType {
		case rule.DiscountPercentage:
			c.ruleAmount = c.Running.Mul(winner.Value).Div(hundred)
		case rule.DiscountFixed:
			c.ruleAmount = decimal.Min(winner.Value, c.Running)
		}
		if c.ruleAmount.IsNegative() {
			c.ruleAmount = decimal.Zero
		}
		c.Running = c.Running.Sub(c.ruleAmount)
	}

	if c.Running.IsNegative() {
		c.Running = decimal.Zero
	}
	return c
}

// Subtotal returns the line's pre-promotion subtotal: the running unit
// price after tier and rule layers times the quantity. This is the
// proration base for fixed promotion amounts.
func (c Computation) Subtotal() decimal.Decimal {
	return c.Running.Mul(decimal.NewFromInt(int64(c.Line.Quantity)))
}

// Finalize subtracts the line's promotion share, clamps, rounds the final
// unit price to the currency minor unit (half-up), and fills the result.
// lineShare is the line-level promotion amount from the allocator; it is
// spread evenly over the line's units before subtraction.
func (c Computation) Finalize(promoCode string, lineShare decimal.Decimal) Result {
	res := Result{
		ProductID:   c.Line.ProductID,
		Quantity:    c.Line.Quantity,
		BasePrice:   c.Line.BasePrice,
		TierPercent: c.tierPercent,
		TierAmount:  c.tierAmount.Round(2),
		RuleID:      c.ruleID,
		RuleAmount:  c.ruleAmount.Round(2),
	}

	running := c.Running
	if lineShare.IsPositive() && c.Line.Quantity > 0 {
		perUnit := lineShare.Div(decimal.NewFromInt(int64(c.Line.Quantity)))
		if perUnit.GreaterThan(running) {
			perUnit = running
			lineShare = perUnit.Mul(decimal.NewFromInt(int64(c.Line.Quantity))).Round(2)
		}
		running = running.Sub(perUnit)
		res.PromotionCode = promoCode
		res.PromotionAmount = lineShare
	}

	if running.IsNegative() {
		running = decimal.Zero
	}
	res.FinalUnitPrice = running.Round(2)
	res.LineTotal = res.FinalUnitPrice.Mul(decimal.NewFromInt(int64(c.Line.Quantity)))

	res.TotalDiscount = c.Line.BasePrice.Sub(res.FinalUnitPrice)
	if res.TotalDiscount.IsNegative() {
		res.TotalDiscount = decimal.Zero
	}
	if c.Line.BasePrice.IsPositive() {
		res.TotalDiscountPercent = res.TotalDiscount.Div(c.Line.BasePrice).Mul(hundred).Round(2)
	}
	return res
}

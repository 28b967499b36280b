package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/price-engine/internal/domain/promo"
)

// Allocate distributes a validated promotion's discount across the lines
// of a batch. The returned slice is index-aligned with comps; ineligible
// lines get a zero share and are excluded from the proration base.
//
// Percentage promotions apply independently per eligible line against the
// line's post-tier, post-rule subtotal. Fixed promotions apply once to the
// order and are prorated over eligible lines proportional to each line's
// pre-promotion subtotal: raw shares are truncated to the currency minor
// unit and the rounding remainder goes to the line with the largest
// subtotal (ties broken by line order), so the shares sum to the stated
// amount exactly, never more. MaxDiscountAmount caps the total before
// proration in both cases.
func Allocate(p *promo.Promotion, comps []Computation, eligible []bool) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(comps))
	for i := range shares {
		shares[i] = decimal.Zero
	}

	switch p.Type {
	case promo.TypePercentage:
		allocatePercentage(p, comps, eligible, shares)
	case promo.TypeFixed:
		allocateFixed(p, comps, eligible, shares)
	}
	return shares
}

func allocatePercentage(p *promo.Promotion, comps []Computation, eligible []bool, shares []decimal.Decimal) {
	raw := make([]decimal.Decimal, len(comps))
	total := decimal.Zero
	for i, c := range comps {
		if !eligible[i] {
			raw[i] = decimal.Zero
			continue
		}
		raw[i] = c.Subtotal().Mul(p.Value).Div(hundred)
		total = total.Add(raw[i])
	}

	if p.MaxDiscountAmount.IsPositive() && total.GreaterThan(p.MaxDiscountAmount) {
		// The cap binds: redistribute the capped total with the same
		// proportions, exactly like a fixed amount.
		prorate(p.MaxDiscountAmount, raw, eligible, shares)
		return
	}

	for i := range comps {
		shares[i] = raw[i].Truncate(2)
	}
}

func allocateFixed(p *promo.Promotion, comps []Computation, eligible []bool, shares []decimal.Decimal) {
	subtotals := make([]decimal.Decimal, len(comps))
	total := decimal.Zero
	for i, c := range comps {
		if !eligible[i] {
			subtotals[i] = decimal.Zero
			continue
		}
		subtotals[i] = c.Subtotal()
		total = total.Add(subtotals[i])
	}

	amount := decimal.Min(p.Value, total)
	if p.MaxDiscountAmount.IsPositive() {
		amount = decimal.Min(amount, p.MaxDiscountAmount)
	}
	if !amount.IsPositive() {
		return
	}
	prorate(amount, subtotals, eligible, shares)
}

// prorate splits amount across lines proportional to their weights,
// truncating each raw share to cents and assigning the remainder to the
// heaviest line, first in line order among ties.
func prorate(amount decimal.Decimal, weights []decimal.Decimal, eligible []bool, shares []decimal.Decimal) {
	total := decimal.Zero
	for i, w := range weights {
		if eligible[i] {
			total = total.Add(w)
		}
	}
	if !total.IsPositive() {
		return
	}

	allocated := decimal.Zero
	heaviest := -1
	for i, w := range weights {
		if !eligible[i] || !w.IsPositive() {
			continue
		}
		shares[i] = amount.Mul(w).Div(total).Truncate(2)
		allocated = allocated.Add(shares[i])
		if heaviest < 0 || w.GreaterThan(weights[heaviest]) {
			heaviest = i
		}
	}

	if heaviest >= 0 {
		if rem := amount.Sub(allocated); rem.IsPositive() {
			shares[heaviest] = shares[heaviest].Add(rem)
		}
	}
}

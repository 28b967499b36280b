package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/price-engine/internal/domain/rule"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "expected %s, got %s", want, got)
}

func TestComposeBase_TierThenRuleCompound(t *testing.T) {
	line := Line{ProductID: "p1", Quantity: 1, BasePrice: dec("100.00"), CategoryID: "cat1"}
	categoryRule := &rule.PriceRule{
		ID:           "r1",
		Scope:        rule.ScopeCategory,
		Target:       "cat1",
		DiscountType: rule.DiscountPercentage,
		Value:        decimal.NewFromInt(5),
		Priority:     1,
		Active:       true,
	}

	c := ComposeBase(line, decimal.NewFromInt(10), categoryRule, true)

	// Tier takes 10% of 100, the rule 5% of the remaining 90.
	assertDecimal(t, "85.5", c.Running)

	res := c.Finalize("", decimal.Zero)
	assertDecimal(t, "10.00", res.TierAmount)
	assertDecimal(t, "4.50", res.RuleAmount)
	assertDecimal(t, "85.50", res.FinalUnitPrice)
	assert.Equal(t, "r1", res.RuleID)
}

func TestCompose_WorkedExample(t *testing.T) {
	// Base 100.00, tier 10%, category rule 5%, fixed promotion 15.00 on a
	// single eligible line: 100 -> 90 -> 85.50 -> 70.50.
	line := Line{ProductID: "p1", Quantity: 1, BasePrice: dec("100.00"), CategoryID: "cat1"}
	categoryRule := &rule.PriceRule{
		ID:           "r1",
		Scope:        rule.ScopeCategory,
		Target:       "cat1",
		DiscountType: rule.DiscountPercentage,
		Value:        decimal.NewFromInt(5),
		Priority:     1,
		Active:       true,
	}

	c := ComposeBase(line, decimal.NewFromInt(10), categoryRule, true)
	res := c.Finalize("PROMO15", dec("15.00"))

	assertDecimal(t, "10.00", res.TierAmount)
	assertDecimal(t, "4.50", res.RuleAmount)
	assertDecimal(t, "15.00", res.PromotionAmount)
	assertDecimal(t, "70.50", res.FinalUnitPrice)
	assertDecimal(t, "70.50", res.LineTotal)
	assertDecimal(t, "29.50", res.TotalDiscount)
	assertDecimal(t, "29.50", res.TotalDiscountPercent)
	assert.Equal(t, "PROMO15", res.PromotionCode)
}

func TestComposeBase_TierSkipped(t *testing.T) {
	line := Line{ProductID: "p1", Quantity: 1, BasePrice: dec("100.00")}

	c := ComposeBase(line, decimal.NewFromInt(10), nil, false)
	res := c.Finalize("", decimal.Zero)

	assert.True(t, res.TierAmount.IsZero())
	assertDecimal(t, "100.00", res.FinalUnitPrice)
}

func TestComposeBase_FixedRuleClampedToRunningPrice(t *testing.T) {
	line := Line{ProductID: "p1", Quantity: 1, BasePrice: dec("8.00")}
	fixedRule := &rule.PriceRule{
		ID:           "r1",
		Scope:        rule.ScopeProduct,
		Target:       "p1",
		DiscountType: rule.DiscountFixed,
		Value:        decimal.NewFromInt(50),
		Active:       true,
	}

	c := ComposeBase(line, decimal.Zero, fixedRule, true)
	res := c.Finalize("", decimal.Zero)

	assertDecimal(t, "8.00", res.RuleAmount)
	assert.True(t, res.FinalUnitPrice.IsZero())
}

func TestFinalize_PromotionClampedToRunningPrice(t *testing.T) {
	line := Line{ProductID: "p1", Quantity: 2, BasePrice: dec("10.00")}

	c := ComposeBase(line, decimal.Zero, nil, true)
	res := c.Finalize("HUGE", dec("999.00"))

	// The share is clamped so the composed result never goes negative.
	assert.True(t, res.FinalUnitPrice.IsZero())
	assertDecimal(t, "20.00", res.PromotionAmount)
	assert.True(t, res.LineTotal.IsZero())
}

func TestFinalize_LineShareSpreadOverUnits(t *testing.T) {
	line := Line{ProductID: "p1", Quantity: 4, BasePrice: dec("25.00")}

	c := ComposeBase(line, decimal.Zero, nil, true)
	res := c.Finalize("TENOFF", dec("10.00"))

	// 10.00 over 4 units is 2.50 per unit.
	assertDecimal(t, "22.50", res.FinalUnitPrice)
	assertDecimal(t, "90.00", res.LineTotal)
	assertDecimal(t, "10.00", res.PromotionAmount)
}

func TestFinalize_HalfUpRounding(t *testing.T) {
	// 10.00 minus 3.333% leaves 9.6667 which rounds up to 9.67;
	// 10.00 minus 3.335% leaves 9.6665 which also rounds up (half-up).
	tests := []struct {
		name string
		pct  string
		want string
	}{
		{name: "round up", pct: "3.333", want: "9.67"},
		{name: "half rounds up", pct: "3.335", want: "9.67"},
		{name: "round down", pct: "3.338", want: "9.67"},
		{name: "plain", pct: "25", want: "7.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := Line{ProductID: "p1", Quantity: 1, BasePrice: dec("10.00")}
			r := &rule.PriceRule{
				ID:           "r1",
				Scope:        rule.ScopeProduct,
				Target:       "p1",
				DiscountType: rule.DiscountPercentage,
				Value:        dec(tt.pct),
				Active:       true,
			}

			res := ComposeBase(line, decimal.Zero, r, true).Finalize("", decimal.Zero)
			assertDecimal(t, tt.want, res.FinalUnitPrice)
		})
	}
}

func TestFinalize_PriceNeverNegative(t *testing.T) {
	// Layer everything at once: 100% tier, 100% rule, huge promotion.
	line := Line{ProductID: "p1", Quantity: 1, BasePrice: dec("49.99")}
	r := &rule.PriceRule{
		ID:           "r1",
		Scope:        rule.ScopeProduct,
		Target:       "p1",
		DiscountType: rule.DiscountPercentage,
		Value:        decimal.NewFromInt(100),
		Active:       true,
	}

	res := ComposeBase(line, decimal.NewFromInt(100), r, true).Finalize("X", dec("1000"))

	require.False(t, res.FinalUnitPrice.IsNegative())
	assert.True(t, res.FinalUnitPrice.IsZero())
	assert.True(t, res.TotalDiscount.LessThanOrEqual(line.BasePrice))
}

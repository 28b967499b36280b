package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/price-engine/internal/domain/promo"
)

func compFor(productID string, qty int, unitPrice string) Computation {
	line := Line{ProductID: productID, Quantity: qty, BasePrice: dec(unitPrice)}
	return ComposeBase(line, decimal.Zero, nil, true)
}

func fixedPromo(value string) *promo.Promotion {
	return &promo.Promotion{
		Code:                 "FIXED",
		Type:                 promo.TypeFixed,
		Value:                dec(value),
		AppliesToAllProducts: true,
		Active:               true,
	}
}

func TestAllocate_FixedProportionalNoRemainder(t *testing.T) {
	// Subtotals 30.00 and 70.00 with a 10.00 order-level promotion:
	// shares 3.00 and 7.00, nothing left over.
	comps := []Computation{
		compFor("p1", 1, "30.00"),
		compFor("p2", 1, "70.00"),
	}

	shares := Allocate(fixedPromo("10.00"), comps, []bool{true, true})

	require.Len(t, shares, 2)
	assertDecimal(t, "3.00", shares[0])
	assertDecimal(t, "7.00", shares[1])
}

func TestAllocate_FixedRemainderToLargestLine(t *testing.T) {
	// 10.00 over three equal lines truncates to 3.33 each; the leftover
	// cent goes to the first of the equally-large lines.
	comps := []Computation{
		compFor("p1", 1, "20.00"),
		compFor("p2", 1, "20.00"),
		compFor("p3", 1, "20.00"),
	}

	shares := Allocate(fixedPromo("10.00"), comps, []bool{true, true, true})

	assertDecimal(t, "3.34", shares[0])
	assertDecimal(t, "3.33", shares[1])
	assertDecimal(t, "3.33", shares[2])
}

func TestAllocate_FixedSharesSumExactly(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		prices []string
	}{
		{name: "awkward thirds", value: "10.00", prices: []string{"10.00", "10.00", "10.00"}},
		{name: "prime split", value: "17.53", prices: []string{"12.34", "56.78", "9.01"}},
		{name: "one cent", value: "0.01", prices: []string{"5.00", "5.00"}},
		{name: "many lines", value: "9.99", prices: []string{"1.11", "2.22", "3.33", "4.44", "5.55", "6.66", "7.77"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comps := make([]Computation, len(tt.prices))
			eligible := make([]bool, len(tt.prices))
			for i, p := range tt.prices {
				comps[i] = compFor("p", 1, p)
				eligible[i] = true
			}

			shares := Allocate(fixedPromo(tt.value), comps, eligible)

			sum := decimal.Zero
			for _, s := range shares {
				sum = sum.Add(s)
			}
			assertDecimal(t, tt.value, sum)
		})
	}
}

func TestAllocate_IneligibleLinesExcluded(t *testing.T) {
	comps := []Computation{
		compFor("p1", 1, "30.00"),
		compFor("p2", 1, "70.00"),
		compFor("p3", 1, "500.00"),
	}

	// The expensive line is not covered by the promotion: it gets zero
	// and stays out of the proration base.
	shares := Allocate(fixedPromo("10.00"), comps, []bool{true, true, false})

	assertDecimal(t, "3.00", shares[0])
	assertDecimal(t, "7.00", shares[1])
	assert.True(t, shares[2].IsZero())
}

func TestAllocate_FixedClampedToEligibleSubtotal(t *testing.T) {
	comps := []Computation{
		compFor("p1", 1, "4.00"),
		compFor("p2", 1, "6.00"),
	}

	shares := Allocate(fixedPromo("100.00"), comps, []bool{true, true})

	sum := shares[0].Add(shares[1])
	assertDecimal(t, "10.00", sum)
}

func TestAllocate_MaxDiscountCapsBeforeProration(t *testing.T) {
	p := fixedPromo("50.00")
	p.MaxDiscountAmount = dec("10.00")

	comps := []Computation{
		compFor("p1", 1, "30.00"),
		compFor("p2", 1, "70.00"),
	}

	shares := Allocate(p, comps, []bool{true, true})

	assertDecimal(t, "3.00", shares[0])
	assertDecimal(t, "7.00", shares[1])
}

func TestAllocate_PercentagePerLine(t *testing.T) {
	p := &promo.Promotion{
		Code:                 "PCT10",
		Type:                 promo.TypePercentage,
		Value:                decimal.NewFromInt(10),
		AppliesToAllProducts: true,
		Active:               true,
	}

	comps := []Computation{
		compFor("p1", 2, "30.00"), // line subtotal 60.00
		compFor("p2", 1, "70.00"),
	}

	shares := Allocate(p, comps, []bool{true, true})

	assertDecimal(t, "6.00", shares[0])
	assertDecimal(t, "7.00", shares[1])
}

func TestAllocate_PercentageCapRedistributes(t *testing.T) {
	p := &promo.Promotion{
		Code:                 "PCT50",
		Type:                 promo.TypePercentage,
		Value:                decimal.NewFromInt(50),
		MaxDiscountAmount:    dec("10.00"),
		AppliesToAllProducts: true,
		Active:               true,
	}

	comps := []Computation{
		compFor("p1", 1, "30.00"),
		compFor("p2", 1, "70.00"),
	}

	// Raw 50% would be 15 + 35 = 50; the cap of 10.00 is spread with the
	// same proportions.
	shares := Allocate(p, comps, []bool{true, true})

	assertDecimal(t, "3.00", shares[0])
	assertDecimal(t, "7.00", shares[1])

	sum := shares[0].Add(shares[1])
	assertDecimal(t, "10.00", sum)
}

func TestAllocate_NoEligibleLines(t *testing.T) {
	comps := []Computation{compFor("p1", 1, "30.00")}

	shares := Allocate(fixedPromo("10.00"), comps, []bool{false})
	assert.True(t, shares[0].IsZero())
}

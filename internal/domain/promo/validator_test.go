package promo

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPromoRepo struct {
	promo *Promotion
	err   error
}

func (m *mockPromoRepo) FindByCode(_ context.Context, _ string) (*Promotion, error) {
	return m.promo, m.err
}

func basePromotion() *Promotion {
	return &Promotion{
		Code:                  "SAVE10",
		Name:                  "10% off",
		Type:                  TypePercentage,
		Value:                 decimal.NewFromInt(10),
		AppliesToAllProducts:  true,
		AppliesToAllCustomers: true,
		StackWithTierPricing:  true,
		Active:                true,
	}
}

func TestValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := fixedNow.Add(-24 * time.Hour)
	future := fixedNow.Add(24 * time.Hour)

	customer := CustomerRef{ID: "c1", Tier: "gold", Type: "retail"}
	lines := []LineRef{{ProductID: "p1", CategoryID: "cat1"}}
	subtotal := decimal.NewFromInt(100)

	tests := []struct {
		name       string
		promo      func() *Promotion
		repoErr    error
		ledger     func(l *MemoryLedger)
		lines      []LineRef
		subtotal   decimal.Decimal
		wantValid  bool
		wantReason Reason
	}{
		{
			name:       "valid promotion",
			promo:      basePromotion,
			lines:      lines,
			subtotal:   subtotal,
			wantValid:  true,
			wantReason: ReasonValid,
		},
		{
			name:       "unknown code",
			promo:      func() *Promotion { return nil },
			repoErr:    ErrNotFound,
			lines:      lines,
			subtotal:   subtotal,
			wantReason: ReasonNotFound,
		},
		{
			name: "inactive",
			promo: func() *Promotion {
				p := basePromotion()
				p.Active = false
				return p
			},
			lines:      lines,
			subtotal:   subtotal,
			wantReason: ReasonInactive,
		},
		{
			name: "not started",
			promo: func() *Promotion {
				p := basePromotion()
				p.StartDate = &future
				return p
			},
			lines:      lines,
			subtotal:   subtotal,
			wantReason: ReasonNotStarted,
		},
		{
			name: "expired",
			promo: func() *Promotion {
				p := basePromotion()
				p.EndDate = &past
				return p
			},
			lines:      lines,
			subtotal:   subtotal,
			wantReason: ReasonExpired,
		},
		{
			name: "global usage limit reached",
			promo: func() *Promotion {
				p := basePromotion()
				p.MaxUsageCount = 5
				return p
			},
			ledger: func(l *MemoryLedger) {
				l.SetUsage("SAVE10", "", 5, 0)
			},
			lines:      lines,
			subtotal:   subtotal,
			wantReason: ReasonUsageLimitReached,
		},
		{
			name: "customer usage limit reached",
			promo: func() *Promotion {
				p := basePromotion()
				p.MaxUsagePerCustomer = 1
				return p
			},
			ledger: func(l *MemoryLedger) {
				l.SetUsage("SAVE10", "c1", 3, 1)
			},
			lines:      lines,
			subtotal:   subtotal,
			wantReason: ReasonCustomerLimitReached,
		},
		{
			name: "minimum order amount not met",
			promo: func() *Promotion {
				p := basePromotion()
				p.MinOrderAmount = decimal.NewFromInt(150)
				return p
			},
			lines:      lines,
			subtotal:   subtotal,
			wantReason: ReasonMinOrderNotMet,
		},
		{
			name: "minimum order amount met exactly",
			promo: func() *Promotion {
				p := basePromotion()
				p.MinOrderAmount = decimal.NewFromInt(100)
				return p
			},
			lines:      lines,
			subtotal:   subtotal,
			wantValid:  true,
			wantReason: ReasonValid,
		},
		{
			name: "required tier mismatch",
			promo: func() *Promotion {
				p := basePromotion()
				p.AppliesToAllCustomers = false
				p.RequiredTier = "platinum"
				return p
			},
			lines:      lines,
			subtotal:   subtotal,
			wantReason: ReasonCustomerNotEligible,
		},
		{
			name: "required type mismatch",
			promo: func() *Promotion {
				p := basePromotion()
				p.AppliesToAllCustomers = false
				p.RequiredType = "wholesale"
				return p
			},
			lines:      lines,
			subtotal:   subtotal,
			wantReason: ReasonCustomerNotEligible,
		},
		{
			name: "required tier match",
			promo: func() *Promotion {
				p := basePromotion()
				p.AppliesToAllCustomers = false
				p.RequiredTier = "gold"
				return p
			},
			lines:      lines,
			subtotal:   subtotal,
			wantValid:  true,
			wantReason: ReasonValid,
		},
		{
			name: "no eligible items",
			promo: func() *Promotion {
				p := basePromotion()
				p.AppliesToAllProducts = false
				p.ProductIDs = []string{"p9"}
				return p
			},
			lines:      lines,
			subtotal:   subtotal,
			wantReason: ReasonNoEligibleItems,
		},
		{
			name: "allow-list hit by category",
			promo: func() *Promotion {
				p := basePromotion()
				p.AppliesToAllProducts = false
				p.CategoryIDs = []string{"cat1"}
				return p
			},
			lines:      lines,
			subtotal:   subtotal,
			wantValid:  true,
			wantReason: ReasonValid,
		},
		{
			name: "standalone check skips product eligibility",
			promo: func() *Promotion {
				p := basePromotion()
				p.AppliesToAllProducts = false
				p.ProductIDs = []string{"p9"}
				return p
			},
			lines:      nil,
			subtotal:   subtotal,
			wantValid:  true,
			wantReason: ReasonValid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := NewMemoryLedger()
			if tt.ledger != nil {
				tt.ledger(ledger)
			}

			v := NewValidator(&mockPromoRepo{promo: tt.promo(), err: tt.repoErr}, ledger)
			v.now = func() time.Time { return fixedNow }

			got, err := v.Validate(context.Background(), "SAVE10", customer, tt.lines, tt.subtotal)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantValid, got.Valid)
			assert.Equal(t, tt.wantReason, got.Reason)
		})
	}
}

func TestValidator_InfrastructureErrorPropagates(t *testing.T) {
	v := NewValidator(&mockPromoRepo{err: errors.New("db down")}, NewMemoryLedger())

	_, err := v.Validate(context.Background(), "SAVE10", CustomerRef{ID: "c1"}, nil, decimal.NewFromInt(10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup promotion")
}

func TestValidator_NeverMutatesUsage(t *testing.T) {
	ledger := NewMemoryLedger()
	v := NewValidator(&mockPromoRepo{promo: basePromotion()}, ledger)

	for range 10 {
		got, err := v.Validate(context.Background(), "SAVE10", CustomerRef{ID: "c1"}, nil, decimal.NewFromInt(100))
		require.NoError(t, err)
		require.True(t, got.Valid)
	}

	total, byCustomer, err := ledger.Usage(context.Background(), "SAVE10", "c1")
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Zero(t, byCustomer)
}

func TestEstimateDiscount(t *testing.T) {
	tests := []struct {
		name  string
		promo *Promotion
		total string
		want  string
	}{
		{
			name:  "percentage",
			promo: &Promotion{Type: TypePercentage, Value: decimal.NewFromInt(10)},
			total: "250.00",
			want:  "25.00",
		},
		{
			name: "percentage capped",
			promo: &Promotion{
				Type:              TypePercentage,
				Value:             decimal.NewFromInt(50),
				MaxDiscountAmount: decimal.NewFromInt(20),
			},
			total: "100.00",
			want:  "20.00",
		},
		{
			name:  "fixed clamped to order total",
			promo: &Promotion{Type: TypeFixed, Value: decimal.NewFromInt(30)},
			total: "12.50",
			want:  "12.50",
		},
		{
			name:  "fixed below order total",
			promo: &Promotion{Type: TypeFixed, Value: decimal.NewFromInt(15)},
			total: "100.00",
			want:  "15.00",
		},
		{
			name:  "unknown type estimates nothing",
			promo: &Promotion{Type: Type("free_shipping"), Value: decimal.NewFromInt(1)},
			total: "100.00",
			want:  "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateDiscount(tt.promo, decimal.RequireFromString(tt.total))
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got),
				"expected %s, got %s", tt.want, got)
		})
	}
}

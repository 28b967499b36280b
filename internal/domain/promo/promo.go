// Package promo implements code-activated promotions: the data model,
// the validation sequence, and the usage ledger that makes consumption
// of a promotion's allowance safe under concurrency.
package promo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates promotion discount strategies. The engine's arithmetic
// covers percentage and fixed amounts; other types (free shipping and the
// like) belong to collaborators.
type Type string

const (
	// TypePercentage discounts eligible lines by a percentage.
	TypePercentage Type = "percentage"
	// TypeFixed discounts the order by a fixed amount, prorated over
	// eligible lines.
	TypeFixed Type = "fixed"
)

var (
	// ErrNotFound is returned when a promotion code is unknown.
	ErrNotFound = errors.New("promotion not found")
	// ErrInvalidState is returned when a promotion exists but is inactive
	// or outside its validity window at the moment of use.
	ErrInvalidState = errors.New("promotion is not currently valid")
	// ErrUsageLimitReached is returned by Reserve when the promotion's
	// global usage cap is exhausted.
	ErrUsageLimitReached = errors.New("promotion usage limit reached")
	// ErrCustomerLimitReached is returned by Reserve when the customer's
	// per-promotion cap is exhausted.
	ErrCustomerLimitReached = errors.New("customer promotion usage limit reached")
)

// Promotion is a code-activated discount with usage and stacking
// constraints. CurrentUsageCount is the only field the engine ever
// mutates, and only through the Ledger at commit time.
type Promotion struct {
	Code string
	Name string

	Type  Type
	Value decimal.Decimal

	// MinOrderAmount guards the pre-discount order subtotal; zero = unset.
	MinOrderAmount decimal.Decimal
	// MaxDiscountAmount caps the total discount the promotion may
	// contribute; zero = unset.
	MaxDiscountAmount decimal.Decimal

	StartDate *time.Time
	EndDate   *time.Time

	MaxUsageCount       int // 0 = unlimited
	MaxUsagePerCustomer int // 0 = unlimited
	CurrentUsageCount   int

	RequiresCode bool

	AppliesToAllProducts bool
	ProductIDs           []string
	CategoryIDs          []string

	AppliesToAllCustomers bool
	RequiredTier          string
	RequiredType          string

	StackWithPromotions  bool
	StackWithTierPricing bool

	Active bool
}

// ValidAt reports whether the promotion is active and now falls inside its
// validity window.
func (p *Promotion) ValidAt(now time.Time) bool {
	if !p.Active {
		return false
	}
	if p.StartDate != nil && now.Before(*p.StartDate) {
		return false
	}
	if p.EndDate != nil && now.After(*p.EndDate) {
		return false
	}
	return true
}

// LimitReached reports whether the global usage cap is exhausted based on
// the promotion's own counter. The ledger's read path is authoritative;
// this derived check serves display surfaces.
func (p *Promotion) LimitReached() bool {
	return p.MaxUsageCount > 0 && p.CurrentUsageCount >= p.MaxUsageCount
}

// CoversProduct reports whether a product or its category is inside the
// promotion's allow-list.
func (p *Promotion) CoversProduct(productID, categoryID string) bool {
	if p.AppliesToAllProducts {
		return true
	}
	for _, id := range p.ProductIDs {
		if id == productID {
			return true
		}
	}
	for _, id := range p.CategoryIDs {
		if id == categoryID {
			return true
		}
	}
	return false
}

// Repository provides lookup of promotions by code.
type Repository interface {
	// FindByCode returns the promotion for the given code regardless of
	// its active flag or window; validity is the validator's concern so
	// that rejections carry precise reasons. Returns ErrNotFound when the
	// code is unknown.
	FindByCode(ctx context.Context, code string) (*Promotion, error)
}

// Ledger tracks per-promotion and per-customer usage counts. Reserve and
// Release are idempotent per (code, orderRef) so that retries after a
// crash between reservation and order persistence are safe.
type Ledger interface {
	// Usage returns the promotion's total usage count and the given
	// customer's own count, read from authoritative state.
	Usage(ctx context.Context, code, customerID string) (total, byCustomer int, err error)

	// Reserve atomically checks both usage caps and consumes one unit of
	// the promotion's allowance. Two concurrent reservations of the last
	// remaining slot must not both succeed. Returns ErrUsageLimitReached
	// or ErrCustomerLimitReached when the respective cap is exhausted.
	Reserve(ctx context.Context, code, customerID, orderRef string) error

	// Release is the compensating decrement for a reservation that must
	// be rolled back. Releasing an unknown or already-released
	// reservation is a no-op.
	Release(ctx context.Context, code, customerID, orderRef string) error
}

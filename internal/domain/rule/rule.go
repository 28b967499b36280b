// Package rule implements scoped price rules: matching them against a
// calculation context and resolving the matched set down to a single winner.
package rule

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Scope identifies the dimension a price rule targets.
type Scope string

const (
	ScopeProduct      Scope = "product"
	ScopeCategory     Scope = "category"
	ScopeManufacturer Scope = "manufacturer"
	ScopeCustomer     Scope = "customer"
	ScopeCustomerType Scope = "customer_type"
	ScopeCustomerTier Scope = "customer_tier"
)

// DiscountType enumerates the supported rule discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage of the current running price.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed subtracts a fixed amount, capped at the running price.
	DiscountFixed DiscountType = "fixed"
)

// PriceRule is a discount that applies when its scope target and quantity
// bounds match a line. Rules are created and edited by an administrative
// collaborator; the engine only reads them.
type PriceRule struct {
	ID           string
	Scope        Scope
	Target       string
	DiscountType DiscountType
	Value        decimal.Decimal
	MinQuantity  int // 0 = unbounded
	MaxQuantity  int // 0 = unbounded
	StartDate    *time.Time
	EndDate      *time.Time
	Priority     int
	Active       bool
}

// ValidAt reports whether the rule is active and now falls inside its
// validity window. Absent bounds are open-ended.
func (r *PriceRule) ValidAt(now time.Time) bool {
	if !r.Active {
		return false
	}
	if r.StartDate != nil && now.Before(*r.StartDate) {
		return false
	}
	if r.EndDate != nil && now.After(*r.EndDate) {
		return false
	}
	return true
}

// Repository provides lookup of price rules.
type Repository interface {
	// ListActive returns all rules whose Active flag is set. Window and
	// quantity filtering happen in the matcher, against the caller's clock.
	ListActive(ctx context.Context) ([]PriceRule, error)
}

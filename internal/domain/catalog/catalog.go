// Package catalog holds the read-only views of products, customers, and
// tier pricing that the resolution engine consumes. The records themselves
// are owned and managed elsewhere; the engine never mutates them.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrProductNotFound is returned when a requested product does not exist.
	ErrProductNotFound = errors.New("product not found")
	// ErrCustomerNotFound is returned when a requested customer does not exist.
	ErrCustomerNotFound = errors.New("customer not found")
)

// Product is the slice of catalog data the engine needs to price a line.
type Product struct {
	ID             string
	Name           string
	BasePrice      decimal.Decimal
	CategoryID     string
	ManufacturerID string
}

// Customer carries the identity and segmentation fields rules and
// promotions target.
type Customer struct {
	ID   string
	Name string
	Tier string
	Type string
}

// ProductRepository defines read operations for the product catalog.
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// CustomerRepository defines read operations for customers.
type CustomerRepository interface {
	GetByID(ctx context.Context, id string) (*Customer, error)
}

// TierPricing maps a customer tier to its baseline discount percentage.
// Unknown tiers discount nothing.
type TierPricing interface {
	DiscountPercent(ctx context.Context, tier string) (decimal.Decimal, error)
}

package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/price-engine/internal/domain/catalog"
)

const (
	getProductByIDSQL = `SELECT id, name, base_price, category_id, manufacturer_id
		FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT id, name, base_price, category_id, manufacturer_id
		FROM products WHERE id = ANY($1)`

	getCustomerByIDSQL = `SELECT id, name, tier, type FROM customers WHERE id = $1`

	getTierDiscountSQL = `SELECT discount_percent FROM tier_pricing WHERE tier = $1`
)

var _ catalog.ProductRepository = (*ProductRepository)(nil)

// ProductRepository implements catalog.ProductRepository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var (
		p     catalog.Product
		price decimal.Decimal
	)
	err := row.Scan(&p.ID, &p.Name, &price, &p.CategoryID, &p.ManufacturerID)
	p.BasePrice = price
	return p, err
}

var _ catalog.CustomerRepository = (*CustomerRepository)(nil)

// CustomerRepository implements catalog.CustomerRepository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// GetByID returns a single customer by its identifier.
func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*catalog.Customer, error) {
	var c catalog.Customer
	err := r.pool.QueryRow(ctx, getCustomerByIDSQL, id).Scan(&c.ID, &c.Name, &c.Tier, &c.Type)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	return &c, nil
}

var _ catalog.TierPricing = (*TierPricingRepository)(nil)

// TierPricingRepository reads per-tier discount percentages from the
// tier_pricing table. Unknown or empty tiers resolve to a zero percent
// discount rather than an error.
type TierPricingRepository struct {
	pool *pgxpool.Pool
}

// NewTierPricingRepository returns a TierPricingRepository that uses the given pool.
func NewTierPricingRepository(pool *pgxpool.Pool) *TierPricingRepository {
	return &TierPricingRepository{pool: pool}
}

// DiscountPercent returns the discount percentage configured for a tier.
func (r *TierPricingRepository) DiscountPercent(ctx context.Context, tier string) (decimal.Decimal, error) {
	if tier == "" {
		return decimal.Zero, nil
	}

	var percent decimal.Decimal
	err := r.pool.QueryRow(ctx, getTierDiscountSQL, tier).Scan(&percent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("getting tier discount for %q: %w", tier, err)
	}
	return percent, nil
}

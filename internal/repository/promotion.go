package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/price-engine/internal/domain/promo"
)

const (
	getPromotionByCodeSQL = `SELECT code, name, type, value,
		min_order_amount, max_discount_amount, start_date, end_date,
		max_usage_count, max_usage_per_customer, current_usage_count,
		requires_code, applies_to_all_products, applies_to_all_customers,
		required_tier, required_type,
		stack_with_promotions, stack_with_tier_pricing, active
		FROM promotions WHERE UPPER(code) = UPPER($1)`

	getPromotionProductsSQL = `SELECT product_id FROM promotion_products
		WHERE promotion_code = $1 ORDER BY product_id`

	getPromotionCategoriesSQL = `SELECT category_id FROM promotion_categories
		WHERE promotion_code = $1 ORDER BY category_id`

	upsertPromotionSQL = `INSERT INTO promotions (code, name, type, value,
		min_order_amount, max_discount_amount, start_date, end_date,
		max_usage_count, max_usage_per_customer,
		requires_code, applies_to_all_products, applies_to_all_customers,
		required_tier, required_type,
		stack_with_promotions, stack_with_tier_pricing, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			value = EXCLUDED.value,
			min_order_amount = EXCLUDED.min_order_amount,
			max_discount_amount = EXCLUDED.max_discount_amount,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			max_usage_count = EXCLUDED.max_usage_count,
			max_usage_per_customer = EXCLUDED.max_usage_per_customer,
			requires_code = EXCLUDED.requires_code,
			applies_to_all_products = EXCLUDED.applies_to_all_products,
			applies_to_all_customers = EXCLUDED.applies_to_all_customers,
			required_tier = EXCLUDED.required_tier,
			required_type = EXCLUDED.required_type,
			stack_with_promotions = EXCLUDED.stack_with_promotions,
			stack_with_tier_pricing = EXCLUDED.stack_with_tier_pricing,
			active = EXCLUDED.active`
)

var _ promo.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promo.Repository backed by PostgreSQL.
// Codes are matched case-insensitively.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// FindByCode loads a promotion with its product and category allow-lists.
// Returns promo.ErrNotFound when the code is unknown; inactive and expired
// promotions are returned as-is so callers can report precise reasons.
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (*promo.Promotion, error) {
	rows, err := r.pool.Query(ctx, getPromotionByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding promotion %q: %w", code, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, fmt.Errorf("finding promotion %q: %w", code, err)
	}

	if !p.AppliesToAllProducts {
		if p.ProductIDs, err = r.collectIDs(ctx, getPromotionProductsSQL, p.Code); err != nil {
			return nil, fmt.Errorf("loading products for promotion %q: %w", code, err)
		}
		if p.CategoryIDs, err = r.collectIDs(ctx, getPromotionCategoriesSQL, p.Code); err != nil {
			return nil, fmt.Errorf("loading categories for promotion %q: %w", code, err)
		}
	}
	return &p, nil
}

// Upsert inserts or replaces a promotion definition. The usage counter is
// never overwritten; it belongs to the ledger.
func (r *PromotionRepository) Upsert(ctx context.Context, p *promo.Promotion) error {
	_, err := r.pool.Exec(ctx, upsertPromotionSQL,
		p.Code, p.Name, string(p.Type), p.Value,
		p.MinOrderAmount, p.MaxDiscountAmount, p.StartDate, p.EndDate,
		p.MaxUsageCount, p.MaxUsagePerCustomer,
		p.RequiresCode, p.AppliesToAllProducts, p.AppliesToAllCustomers,
		p.RequiredTier, p.RequiredType,
		p.StackWithPromotions, p.StackWithTierPricing, p.Active,
	)
	if err != nil {
		return fmt.Errorf("upserting promotion %q: %w", p.Code, err)
	}
	return nil
}

func (r *PromotionRepository) collectIDs(ctx context.Context, sql, code string) ([]string, error) {
	rows, err := r.pool.Query(ctx, sql, code)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	})
}

func scanPromotion(row pgx.CollectableRow) (promo.Promotion, error) {
	var (
		p         promo.Promotion
		kind      string
		value     decimal.Decimal
		minOrder  decimal.Decimal
		maxDisc   decimal.Decimal
		startDate *time.Time
		endDate   *time.Time
		maxUses   int32
		maxPerCus int32
		curUses   int32
	)
	err := row.Scan(
		&p.Code, &p.Name, &kind, &value,
		&minOrder, &maxDisc, &startDate, &endDate,
		&maxUses, &maxPerCus, &curUses,
		&p.RequiresCode, &p.AppliesToAllProducts, &p.AppliesToAllCustomers,
		&p.RequiredTier, &p.RequiredType,
		&p.StackWithPromotions, &p.StackWithTierPricing, &p.Active,
	)
	p.Type = promo.Type(kind)
	p.Value = value
	p.MinOrderAmount = minOrder
	p.MaxDiscountAmount = maxDisc
	p.StartDate = startDate
	p.EndDate = endDate
	p.MaxUsageCount = int(maxUses)
	p.MaxUsagePerCustomer = int(maxPerCus)
	p.CurrentUsageCount = int(curUses)
	return p, err
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/price-engine/internal/domain/rule"
)

const listActiveRulesSQL = `SELECT id, scope, target, discount_type, value,
	min_quantity, max_quantity, start_date, end_date, priority, active
	FROM price_rules WHERE active = TRUE ORDER BY id`

var _ rule.Repository = (*RuleRepository)(nil)

// RuleRepository implements rule.Repository backed by PostgreSQL.
type RuleRepository struct {
	pool *pgxpool.Pool
}

// NewRuleRepository returns a RuleRepository that uses the given pool.
func NewRuleRepository(pool *pgxpool.Pool) *RuleRepository {
	return &RuleRepository{pool: pool}
}

// ListActive returns all active price rules ordered by ID. Date-window
// filtering happens in the matcher, against the request's clock.
func (r *RuleRepository) ListActive(ctx context.Context) ([]rule.PriceRule, error) {
	rows, err := r.pool.Query(ctx, listActiveRulesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing price rules: %w", err)
	}
	return pgx.CollectRows(rows, scanPriceRule)
}

func scanPriceRule(row pgx.CollectableRow) (rule.PriceRule, error) {
	var (
		pr           rule.PriceRule
		scope        string
		discountType string
		value        decimal.Decimal
		minQty       int32
		maxQty       int32
		startDate    *time.Time
		endDate      *time.Time
		priority     int32
	)
	err := row.Scan(
		&pr.ID, &scope, &pr.Target, &discountType, &value,
		&minQty, &maxQty, &startDate, &endDate, &priority, &pr.Active,
	)
	pr.Scope = rule.Scope(scope)
	pr.DiscountType = rule.DiscountType(discountType)
	pr.Value = value
	pr.MinQuantity = int(minQty)
	pr.MaxQuantity = int(maxQty)
	pr.StartDate = startDate
	pr.EndDate = endDate
	pr.Priority = int(priority)
	return pr, err
}

package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/price-engine/internal/domain/promo"
)

const (
	lockPromotionUsageSQL = `SELECT code, max_usage_count, max_usage_per_customer, current_usage_count
		FROM promotions WHERE UPPER(code) = UPPER($1) FOR UPDATE`

	getReservationSQL = `SELECT released FROM promotion_reservations
		WHERE promotion_code = $1 AND order_reference = $2`

	countCustomerReservationsSQL = `SELECT COUNT(*) FROM promotion_reservations
		WHERE promotion_code = $1 AND customer_id = $2 AND NOT released`

	insertReservationSQL = `INSERT INTO promotion_reservations
		(promotion_code, order_reference, customer_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (promotion_code, order_reference)
		DO UPDATE SET released = FALSE, customer_id = EXCLUDED.customer_id`

	incrementUsageSQL = `UPDATE promotions
		SET current_usage_count = current_usage_count + 1 WHERE code = $1`

	decrementUsageSQL = `UPDATE promotions
		SET current_usage_count = GREATEST(current_usage_count - 1, 0) WHERE code = $1`

	markReleasedSQL = `UPDATE promotion_reservations SET released = TRUE
		WHERE promotion_code = $1 AND order_reference = $2 AND NOT released`

	usageTotalSQL = `SELECT current_usage_count FROM promotions WHERE UPPER(code) = UPPER($1)`
)

var _ promo.Ledger = (*LedgerRepository)(nil)

// LedgerRepository implements promo.Ledger backed by PostgreSQL. Each
// reservation runs in a transaction that takes a row lock on the promotion,
// so concurrent reservations of the last remaining slot serialize and
// exactly one succeeds. Idempotency per (code, orderRef) is carried by the
// promotion_reservations primary key.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository returns a LedgerRepository that uses the given pool.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// Usage implements promo.Ledger.
func (r *LedgerRepository) Usage(ctx context.Context, code, customerID string) (int, int, error) {
	var total int32
	err := r.pool.QueryRow(ctx, usageTotalSQL, code).Scan(&total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, promo.ErrNotFound
		}
		return 0, 0, fmt.Errorf("reading usage for promotion %q: %w", code, err)
	}

	var byCustomer int32
	err = r.pool.QueryRow(ctx, countCustomerReservationsSQL, code, customerID).Scan(&byCustomer)
	if err != nil {
		return 0, 0, fmt.Errorf("counting customer reservations for %q: %w", code, err)
	}
	return int(total), int(byCustomer), nil
}

// Reserve implements promo.Ledger.
func (r *LedgerRepository) Reserve(ctx context.Context, code, customerID, orderRef string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning reservation tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		canonical      string
		maxTotal       int32
		maxPerCustomer int32
		current        int32
	)
	err = tx.QueryRow(ctx, lockPromotionUsageSQL, code).Scan(
		&canonical, &maxTotal, &maxPerCustomer, &current,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return promo.ErrNotFound
		}
		return fmt.Errorf("locking promotion %q: %w", code, err)
	}

	var released bool
	err = tx.QueryRow(ctx, getReservationSQL, canonical, orderRef).Scan(&released)
	switch {
	case err == nil && !released:
		// Retry of an already-held reservation.
		return tx.Commit(ctx)
	case err != nil && !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("checking reservation for %q: %w", canonical, err)
	}

	if maxTotal > 0 && current >= maxTotal {
		return promo.ErrUsageLimitReached
	}
	if maxPerCustomer > 0 {
		var byCustomer int32
		err = tx.QueryRow(ctx, countCustomerReservationsSQL, canonical, customerID).Scan(&byCustomer)
		if err != nil {
			return fmt.Errorf("counting customer reservations for %q: %w", canonical, err)
		}
		if byCustomer >= maxPerCustomer {
			return promo.ErrCustomerLimitReached
		}
	}

	if _, err = tx.Exec(ctx, insertReservationSQL, canonical, orderRef, customerID); err != nil {
		return fmt.Errorf("inserting reservation for %q: %w", canonical, err)
	}
	if _, err = tx.Exec(ctx, incrementUsageSQL, canonical); err != nil {
		return fmt.Errorf("incrementing usage for %q: %w", canonical, err)
	}
	return tx.Commit(ctx)
}

// Release implements promo.Ledger. The customer argument is not consulted;
// the reservation row is authoritative for which customer held it.
func (r *LedgerRepository) Release(ctx context.Context, code, _, orderRef string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning release tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var canonical string
	err = tx.QueryRow(ctx, `SELECT code FROM promotions WHERE UPPER(code) = UPPER($1) FOR UPDATE`, code).Scan(&canonical)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("locking promotion %q: %w", code, err)
	}

	tag, err := tx.Exec(ctx, markReleasedSQL, canonical, orderRef)
	if err != nil {
		return fmt.Errorf("releasing reservation for %q: %w", canonical, err)
	}
	if tag.RowsAffected() == 0 {
		// Unknown or already-released reservation.
		return tx.Commit(ctx)
	}

	if _, err = tx.Exec(ctx, decrementUsageSQL, canonical); err != nil {
		return fmt.Errorf("decrementing usage for %q: %w", canonical, err)
	}
	return tx.Commit(ctx)
}

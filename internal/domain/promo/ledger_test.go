package promo

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedger_ReserveAndUsage(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.SetLimits("PROMO", 3, 2)

	require.NoError(t, l.Reserve(ctx, "PROMO", "c1", "order-1"))
	require.NoError(t, l.Reserve(ctx, "PROMO", "c1", "order-2"))
	require.NoError(t, l.Reserve(ctx, "PROMO", "c2", "order-3"))

	total, byC1, err := l.Usage(ctx, "PROMO", "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 2, byC1)
}

func TestMemoryLedger_GlobalLimit(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.SetLimits("PROMO", 1, 0)

	require.NoError(t, l.Reserve(ctx, "PROMO", "c1", "order-1"))

	err := l.Reserve(ctx, "PROMO", "c2", "order-2")
	require.ErrorIs(t, err, ErrUsageLimitReached)
}

func TestMemoryLedger_PerCustomerLimit(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.SetLimits("PROMO", 0, 1)

	require.NoError(t, l.Reserve(ctx, "PROMO", "c1", "order-1"))

	err := l.Reserve(ctx, "PROMO", "c1", "order-2")
	require.ErrorIs(t, err, ErrCustomerLimitReached)

	// A different customer is unaffected.
	require.NoError(t, l.Reserve(ctx, "PROMO", "c2", "order-3"))
}

func TestMemoryLedger_ReserveIdempotentPerOrderRef(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.SetLimits("PROMO", 1, 0)

	// Retrying the same order reference consumes a single slot.
	require.NoError(t, l.Reserve(ctx, "PROMO", "c1", "order-1"))
	require.NoError(t, l.Reserve(ctx, "PROMO", "c1", "order-1"))
	require.NoError(t, l.Reserve(ctx, "PROMO", "c1", "order-1"))

	total, _, err := l.Usage(ctx, "PROMO", "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestMemoryLedger_ReleaseIsCompensatingAndIdempotent(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.SetLimits("PROMO", 1, 0)

	require.NoError(t, l.Reserve(ctx, "PROMO", "c1", "order-1"))
	require.ErrorIs(t, l.Reserve(ctx, "PROMO", "c2", "order-2"), ErrUsageLimitReached)

	require.NoError(t, l.Release(ctx, "PROMO", "c1", "order-1"))
	require.NoError(t, l.Release(ctx, "PROMO", "c1", "order-1")) // no double decrement

	total, byC1, err := l.Usage(ctx, "PROMO", "c1")
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Zero(t, byC1)

	// The freed slot is reservable again.
	require.NoError(t, l.Reserve(ctx, "PROMO", "c2", "order-2"))
}

func TestMemoryLedger_ReleaseUnknownReservation(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	require.NoError(t, l.Release(ctx, "PROMO", "c1", "never-reserved"))

	total, _, err := l.Usage(ctx, "PROMO", "c1")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestMemoryLedger_ConcurrentReservations(t *testing.T) {
	const (
		slots   = 5
		callers = 50
	)

	ctx := context.Background()
	l := NewMemoryLedger()
	l.SetLimits("PROMO", slots, 0)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		limited   int
	)

	for i := range callers {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := l.Reserve(ctx, "PROMO", fmt.Sprintf("c%d", n), fmt.Sprintf("order-%d", n))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrUsageLimitReached):
				limited++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, slots, succeeded, "exactly the available slots must be won")
	assert.Equal(t, callers-slots, limited)

	total, _, err := l.Usage(ctx, "PROMO", "any")
	require.NoError(t, err)
	assert.Equal(t, slots, total)
}

func TestMemoryLedger_ConcurrentLastSlot(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.SetLimits("PROMO", 1, 0)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n] = l.Reserve(ctx, "PROMO", fmt.Sprintf("c%d", n), fmt.Sprintf("order-%d", n))
		}(i)
	}
	wg.Wait()

	if results[0] == nil {
		require.ErrorIs(t, results[1], ErrUsageLimitReached)
	} else {
		require.ErrorIs(t, results[0], ErrUsageLimitReached)
		require.NoError(t, results[1])
	}
}

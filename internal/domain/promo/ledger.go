package promo

import (
	"context"
	"sync"
)

var _ Ledger = (*MemoryLedger)(nil)

// MemoryLedger is a mutex-guarded in-memory Ledger with the same
// semantics as the Postgres implementation: serializable reservations,
// idempotency per (code, orderRef), and compensating release. It backs
// unit tests and local development without a database.
type MemoryLedger struct {
	mu           sync.Mutex
	limits       map[string]ledgerLimits
	total        map[string]int
	byCustomer   map[string]map[string]int
	reservations map[reservationKey]*reservation
}

type ledgerLimits struct {
	maxTotal       int
	maxPerCustomer int
}

type reservationKey struct {
	code     string
	orderRef string
}

type reservation struct {
	customerID string
	released   bool
}

// NewMemoryLedger creates an empty MemoryLedger. Codes without registered
// limits are treated as unlimited.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		limits:       make(map[string]ledgerLimits),
		total:        make(map[string]int),
		byCustomer:   make(map[string]map[string]int),
		reservations: make(map[reservationKey]*reservation),
	}
}

// SetLimits registers the usage caps enforced for a code. Zero means
// unlimited on that axis.
func (l *MemoryLedger) SetLimits(code string, maxTotal, maxPerCustomer int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits[code] = ledgerLimits{maxTotal: maxTotal, maxPerCustomer: maxPerCustomer}
}

// SetUsage seeds the counters for a code, for tests and for mirroring
// externally accumulated usage.
func (l *MemoryLedger) SetUsage(code, customerID string, total, byCustomer int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total[code] = total
	if customerID != "" {
		l.customerCounts(code)[customerID] = byCustomer
	}
}

// Usage implements Ledger.
func (l *MemoryLedger) Usage(_ context.Context, code, customerID string) (int, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total[code], l.customerCounts(code)[customerID], nil
}

// Reserve implements Ledger. The whole check-and-increment runs under one
// lock, so concurrent reservations of the last slot cannot both succeed.
func (l *MemoryLedger) Reserve(_ context.Context, code, customerID, orderRef string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := reservationKey{code: code, orderRef: orderRef}
	if res, ok := l.reservations[key]; ok && !res.released {
		// Retry of an already-held reservation.
		return nil
	}

	lim := l.limits[code]
	if lim.maxTotal > 0 && l.total[code] >= lim.maxTotal {
		return ErrUsageLimitReached
	}
	counts := l.customerCounts(code)
	if lim.maxPerCustomer > 0 && counts[customerID] >= lim.maxPerCustomer {
		return ErrCustomerLimitReached
	}

	l.total[code]++
	counts[customerID]++
	l.reservations[key] = &reservation{customerID: customerID}
	return nil
}

// Release implements Ledger. The reservation row is authoritative for
// which customer held it, so the customer argument is not consulted.
func (l *MemoryLedger) Release(_ context.Context, code, _, orderRef string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := reservationKey{code: code, orderRef: orderRef}
	res, ok := l.reservations[key]
	if !ok || res.released {
		return nil
	}

	res.released = true
	if l.total[code] > 0 {
		l.total[code]--
	}
	counts := l.customerCounts(code)
	if counts[res.customerID] > 0 {
		counts[res.customerID]--
	}
	return nil
}

func (l *MemoryLedger) customerCounts(code string) map[string]int {
	counts, ok := l.byCustomer[code]
	if !ok {
		counts = make(map[string]int)
		l.byCustomer[code] = counts
	}
	return counts
}

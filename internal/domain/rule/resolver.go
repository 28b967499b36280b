package rule

// Specificity ranks scopes from most to least targeted. It is a policy
// constant rather than a derived truth: a Customer rule beats a Product
// rule, which beats Category, and so on down to the broad tier-wide rules.
// Lower rank wins.
type Specificity map[Scope]int

// DefaultSpecificity is the standard ranking used when no override is
// configured.
func DefaultSpecificity() Specificity {
	return Specificity{
		ScopeCustomer:     0,
		ScopeProduct:      1,
		ScopeCategory:     2,
		ScopeManufacturer: 3,
		ScopeCustomerType: 4,
		ScopeCustomerTier: 5,
	}
}

// Resolver picks the single winning rule from a matched set.
type Resolver struct {
	spec Specificity
}

// NewResolver creates a Resolver with the given specificity policy.
// A nil policy falls back to DefaultSpecificity.
func NewResolver(spec Specificity) *Resolver {
	if spec == nil {
		spec = DefaultSpecificity()
	}
	return &Resolver{spec: spec}
}

// Resolve selects the winner: most specific scope first, then highest
// Priority, then lowest rule ID. The final tie-break exists only to make
// the outcome reproducible; equally-ranked equal-priority rules are a data
// modelling smell, not something the resolver can order meaningfully.
// Returns nil when the matched set is empty.
func (rs *Resolver) Resolve(matched []PriceRule) *PriceRule {
	if len(matched) == 0 {
		return nil
	}

	best := &matched[0]
	for i := 1; i < len(matched); i++ {
		if rs.beats(&matched[i], best) {
			best = &matched[i]
		}
	}
	return best
}

// beats reports whether a should win over b.
func (rs *Resolver) beats(a, b *PriceRule) bool {
	ra, rb := rs.rank(a.Scope), rs.rank(b.Scope)
	if ra != rb {
		return ra < rb
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.ID < b.ID
}

// rank returns the specificity rank for a scope. Scopes missing from the
// policy sort last.
func (rs *Resolver) rank(s Scope) int {
	if r, ok := rs.spec[s]; ok {
		return r
	}
	return len(rs.spec)
}

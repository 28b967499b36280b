package rule

import "time"

// MatchContext is the per-line input the matcher evaluates rules against.
type MatchContext struct {
	ProductID      string
	CategoryID     string
	ManufacturerID string
	CustomerID     string
	CustomerTier   string
	CustomerType   string
	Quantity       int
}

// Match returns the subset of rules that apply to the given context at the
// given instant: the rule is valid, its scope target matches the
// corresponding context field, and the quantity falls within the rule's
// inclusive bounds. It has no side effects and preserves input order.
func Match(rules []PriceRule, mc MatchContext, now time.Time) []PriceRule {
	var matched []PriceRule
	for _, r := range rules {
		if !r.ValidAt(now) {
			continue
		}
		if !scopeMatches(&r, mc) {
			continue
		}
		if r.MinQuantity > 0 && mc.Quantity < r.MinQuantity {
			continue
		}
		if r.MaxQuantity > 0 && mc.Quantity > r.MaxQuantity {
			continue
		}
		matched = append(matched, r)
	}
	return matched
}

func scopeMatches(r *PriceRule, mc MatchContext) bool {
	switch r.Scope {
	case ScopeProduct:
		return r.Target == mc.ProductID
	case ScopeCategory:
		return r.Target == mc.CategoryID
	case ScopeManufacturer:
		return r.Target == mc.ManufacturerID
	case ScopeCustomer:
		return r.Target == mc.CustomerID
	case ScopeCustomerType:
		return r.Target == mc.CustomerType
	case ScopeCustomerTier:
		return r.Target == mc.CustomerTier
	default:
		return false
	}
}

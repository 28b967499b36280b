package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rankedRule(id string, scope Scope, priority int) PriceRule {
	return PriceRule{ID: id, Scope: scope, Priority: priority, Active: true}
}

func TestResolve_EmptySet(t *testing.T) {
	rs := NewResolver(nil)
	assert.Nil(t, rs.Resolve(nil))
	assert.Nil(t, rs.Resolve([]PriceRule{}))
}

func TestResolve_SpecificityBeatsPriority(t *testing.T) {
	rs := NewResolver(nil)

	matched := []PriceRule{
		rankedRule("tier", ScopeCustomerTier, 100),
		rankedRule("product", ScopeProduct, 0),
		rankedRule("category", ScopeCategory, 50),
	}

	winner := rs.Resolve(matched)
	require.NotNil(t, winner)
	assert.Equal(t, "product", winner.ID)
}

func TestResolve_FullSpecificityOrder(t *testing.T) {
	rs := NewResolver(nil)

	// Least to most specific; the resolver must invert this order.
	scopes := []Scope{
		ScopeCustomerTier,
		ScopeCustomerType,
		ScopeManufacturer,
		ScopeCategory,
		ScopeProduct,
		ScopeCustomer,
	}

	matched := make([]PriceRule, 0, len(scopes))
	for i, s := range scopes {
		matched = append(matched, rankedRule(string(s), s, i*10))
	}

	winner := rs.Resolve(matched)
	require.NotNil(t, winner)
	assert.Equal(t, string(ScopeCustomer), winner.ID)
}

func TestResolve_PriorityBreaksSameScope(t *testing.T) {
	rs := NewResolver(nil)

	matched := []PriceRule{
		rankedRule("low", ScopeCategory, 1),
		rankedRule("high", ScopeCategory, 9),
		rankedRule("mid", ScopeCategory, 5),
	}

	winner := rs.Resolve(matched)
	require.NotNil(t, winner)
	assert.Equal(t, "high", winner.ID)
}

func TestResolve_IDBreaksFullTie(t *testing.T) {
	rs := NewResolver(nil)

	matched := []PriceRule{
		rankedRule("rule-b", ScopeProduct, 5),
		rankedRule("rule-a", ScopeProduct, 5),
		rankedRule("rule-c", ScopeProduct, 5),
	}

	winner := rs.Resolve(matched)
	require.NotNil(t, winner)
	assert.Equal(t, "rule-a", winner.ID)
}

func TestResolve_Deterministic(t *testing.T) {
	rs := NewResolver(nil)

	matched := []PriceRule{
		rankedRule("r1", ScopeCategory, 5),
		rankedRule("r2", ScopeProduct, 1),
		rankedRule("r3", ScopeProduct, 1),
		rankedRule("r4", ScopeCustomerTier, 99),
	}

	first := rs.Resolve(matched)
	require.NotNil(t, first)
	for range 50 {
		again := rs.Resolve(matched)
		require.NotNil(t, again)
		assert.Equal(t, first.ID, again.ID)
	}
}

func TestResolve_CustomSpecificityPolicy(t *testing.T) {
	// Invert the default: tier-wide rules win over everything.
	rs := NewResolver(Specificity{
		ScopeCustomerTier: 0,
		ScopeProduct:      1,
	})

	matched := []PriceRule{
		rankedRule("product", ScopeProduct, 100),
		rankedRule("tier", ScopeCustomerTier, 0),
	}

	winner := rs.Resolve(matched)
	require.NotNil(t, winner)
	assert.Equal(t, "tier", winner.ID)
}

func TestResolve_UnknownScopeSortsLast(t *testing.T) {
	rs := NewResolver(Specificity{ScopeProduct: 0})

	matched := []PriceRule{
		rankedRule("weird", Scope("bundle"), 100),
		rankedRule("product", ScopeProduct, 0),
	}

	winner := rs.Resolve(matched)
	require.NotNil(t, winner)
	assert.Equal(t, "product", winner.ID)
}

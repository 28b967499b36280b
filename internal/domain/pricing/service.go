package pricing

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/price-engine/internal/domain/catalog"
	"github.com/xenking/price-engine/internal/domain/promo"
	"github.com/xenking/price-engine/internal/domain/rule"
)

// BatchItem is one (product, quantity) entry of a batch request.
type BatchItem struct {
	ProductID string
	Quantity  int
}

// CodeCheck is the outcome of a standalone promotion check, used by a
// checkout UI before it commits to a code.
type CodeCheck struct {
	Valid             bool
	Reason            promo.Reason
	EstimatedDiscount decimal.Decimal
}

// Engine is the price and promotion resolution engine. Preview operations
// are pure; only Commit and Release touch the ledger.
type Engine struct {
	products  catalog.ProductRepository
	customers catalog.CustomerRepository
	tiers     catalog.TierPricing
	rules     rule.Repository
	promos    promo.Repository
	ledger    promo.Ledger
	resolver  *rule.Resolver
	validator *promo.Validator
	now       func() time.Time
}

// NewEngine wires the engine with its collaborators. A nil resolver uses
// the default specificity policy.
func NewEngine(
	products catalog.ProductRepository,
	customers catalog.CustomerRepository,
	tiers catalog.TierPricing,
	rules rule.Repository,
	promos promo.Repository,
	ledger promo.Ledger,
	resolver *rule.Resolver,
) *Engine {
	if resolver == nil {
		resolver = rule.NewResolver(nil)
	}
	return &Engine{
		products:  products,
		customers: customers,
		tiers:     tiers,
		rules:     rules,
		promos:    promos,
		ledger:    ledger,
		resolver:  resolver,
		validator: promo.NewValidator(promos, ledger),
		now:       time.Now,
	}
}

// Calculate prices a single line. It is CalculateBatch with one item.
func (e *Engine) Calculate(ctx context.Context, productID string, quantity int, customerID, promoCode string) (*Quote, error) {
	return e.CalculateBatch(ctx, []BatchItem{{ProductID: productID, Quantity: quantity}}, customerID, promoCode)
}

// CalculateBatch prices a batch of lines for a customer, optionally under
// a promotion code. The promotion is validated once per request against
// the pre-discount order subtotal; an invalid code yields a Quote whose
// Promotion field carries the rejection reason while the lines are priced
// without it. No state is mutated.
func (e *Engine) CalculateBatch(ctx context.Context, items []BatchItem, customerID, promoCode string) (*Quote, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: it.ProductID}
		}
	}

	lines, err := e.loadLines(ctx, items)
	if err != nil {
		return nil, err
	}

	customer, err := e.customers.GetByID(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "get customer")
	}
	tierPercent, err := e.tiers.DiscountPercent(ctx, customer.Tier)
	if err != nil {
		return nil, errors.Wrap(err, "tier discount lookup")
	}

	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Subtotal())
	}

	// Promotion validation runs once per request, against the
	// pre-discount subtotal.
	var validation *promo.Validation
	if promoCode != "" {
		refs := make([]promo.LineRef, len(lines))
		for i, l := range lines {
			refs[i] = promo.LineRef{ProductID: l.ProductID, CategoryID: l.CategoryID}
		}
		validation, err = e.validator.Validate(ctx, promoCode, promo.CustomerRef{
			ID:   customer.ID,
			Tier: customer.Tier,
			Type: customer.Type,
		}, refs, subtotal)
		if err != nil {
			return nil, err
		}
	}

	var appliedPromo *promo.Promotion
	if validation != nil && validation.Valid {
		appliedPromo = validation.Promotion
	}
	applyTier := appliedPromo == nil || appliedPromo.StackWithTierPricing

	activeRules, err := e.rules.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list price rules")
	}

	now := e.now()
	comps := make([]Computation, len(lines))
	eligible := make([]bool, len(lines))
	for i, l := range lines {
		matched := rule.Match(activeRules, rule.MatchContext{
			ProductID:      l.ProductID,
			CategoryID:     l.CategoryID,
			ManufacturerID: l.ManufacturerID,
			CustomerID:     customer.ID,
			CustomerTier:   customer.Tier,
			CustomerType:   customer.Type,
			Quantity:       l.Quantity,
		}, now)
		winner := e.resolver.Resolve(matched)
		comps[i] = ComposeBase(l, tierPercent, winner, applyTier)
		eligible[i] = appliedPromo != nil && appliedPromo.CoversProduct(l.ProductID, l.CategoryID)
	}

	shares := make([]decimal.Decimal, len(lines))
	code := ""
	if appliedPromo != nil {
		shares = Allocate(appliedPromo, comps, eligible)
		code = appliedPromo.Code
	}

	quote := &Quote{
		Lines:     make([]Result, len(lines)),
		Subtotal:  subtotal.Round(2),
		Promotion: validation,
	}
	total := decimal.Zero
	for i, c := range comps {
		quote.Lines[i] = c.Finalize(code, shares[i])
		total = total.Add(quote.Lines[i].LineTotal)
	}
	quote.Total = total.Round(2)
	quote.Discount = quote.Subtotal.Sub(quote.Total)
	return quote, nil
}

// loadLines batch-fetches the catalog data for all requested products and
// joins it onto the items, preserving request order.
func (e *Engine) loadLines(ctx context.Context, items []BatchItem) ([]Line, error) {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}

	fetched, err := e.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]catalog.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lines := make([]Line, len(items))
	for i, it := range items {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, errors.Wrapf(catalog.ErrProductNotFound, "product %s", it.ProductID)
		}
		lines[i] = Line{
			ProductID:      p.ID,
			Quantity:       it.Quantity,
			BasePrice:      p.BasePrice,
			CategoryID:     p.CategoryID,
			ManufacturerID: p.ManufacturerID,
		}
	}
	return lines, nil
}

// ValidatePromotion is the standalone code check: no lines exist yet, so
// product eligibility is skipped and the discount is an estimate against
// the claimed order total.
func (e *Engine) ValidatePromotion(ctx context.Context, code string, orderTotal decimal.Decimal, customerID string) (*CodeCheck, error) {
	customer, err := e.customers.GetByID(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "get customer")
	}

	validation, err := e.validator.Validate(ctx, code, promo.CustomerRef{
		ID:   customer.ID,
		Tier: customer.Tier,
		Type: customer.Type,
	}, nil, orderTotal)
	if err != nil {
		return nil, err
	}

	check := &CodeCheck{Valid: validation.Valid, Reason: validation.Reason}
	if validation.Valid {
		check.EstimatedDiscount = promo.EstimateDiscount(validation.Promotion, orderTotal)
	}
	return check, nil
}

// Commit consumes one unit of the promotion's usage allowance for the
// given order reference. It is idempotent per (code, orderRef) and a
// no-op when no code was used. The promotion may have become invalid
// between preview and commit, so its window is re-checked here; callers
// that lose the reservation race receive the ledger's limit error and
// must re-validate.
func (e *Engine) Commit(ctx context.Context, promoCode, customerID, orderRef string) error {
	if promoCode == "" {
		return nil
	}

	p, err := e.promos.FindByCode(ctx, promoCode)
	if err != nil {
		return errors.Wrap(err, "lookup promotion")
	}
	if !p.ValidAt(e.now()) {
		return promo.ErrInvalidState
	}

	if err := e.ledger.Reserve(ctx, promoCode, customerID, orderRef); err != nil {
		return errors.Wrap(err, "reserve promotion usage")
	}
	return nil
}

// Release rolls back a reservation after the associated order failed.
// Releasing a reservation that was never made, or one already released,
// is a no-op.
func (e *Engine) Release(ctx context.Context, promoCode, customerID, orderRef string) error {
	if promoCode == "" {
		return nil
	}
	if err := e.ledger.Release(ctx, promoCode, customerID, orderRef); err != nil {
		return errors.Wrap(err, "release promotion usage")
	}
	return nil
}

package promo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Reason is a machine-readable code explaining why a promotion was
// accepted or rejected. Every distinct rejection has its own code; the
// validator never collapses failures into a generic error.
type Reason string

const (
	ReasonValid                Reason = "valid"
	ReasonNotFound             Reason = "not_found"
	ReasonInactive             Reason = "inactive"
	ReasonNotStarted           Reason = "not_started"
	ReasonExpired              Reason = "expired"
	ReasonUsageLimitReached    Reason = "usage_limit_reached"
	ReasonCustomerLimitReached Reason = "customer_limit_reached"
	ReasonMinOrderNotMet       Reason = "min_order_not_met"
	ReasonCustomerNotEligible  Reason = "customer_not_eligible"
	ReasonNoEligibleItems      Reason = "no_eligible_items"
)

// Message returns a human-readable description for the reason code.
func (r Reason) Message() string {
	switch r {
	case ReasonValid:
		return "promotion is valid"
	case ReasonNotFound:
		return "promotion code not found"
	case ReasonInactive:
		return "promotion is inactive"
	case ReasonNotStarted:
		return "promotion has not started yet"
	case ReasonExpired:
		return "promotion has expired"
	case ReasonUsageLimitReached:
		return "promotion usage limit reached"
	case ReasonCustomerLimitReached:
		return "customer usage limit for this promotion reached"
	case ReasonMinOrderNotMet:
		return "order subtotal below the promotion minimum"
	case ReasonCustomerNotEligible:
		return "customer is not eligible for this promotion"
	case ReasonNoEligibleItems:
		return "no item in the order is covered by this promotion"
	default:
		return string(r)
	}
}

// LineRef is the minimal view of an order line the validator needs for
// product eligibility checks.
type LineRef struct {
	ProductID  string
	CategoryID string
}

// CustomerRef is the minimal customer view for tier/type eligibility.
type CustomerRef struct {
	ID   string
	Tier string
	Type string
}

// Validation is the validator's verdict: whether the code may be applied,
// why not if not, and the raw discount the allocator will distribute.
type Validation struct {
	Valid     bool
	Reason    Reason
	Promotion *Promotion
}

// Validator checks a promotion code against a calculation context. It
// never mutates usage counts; consumption is deferred to commit.
type Validator struct {
	repo   Repository
	ledger Ledger
	now    func() time.Time
}

// NewValidator creates a Validator backed by the given repository and
// ledger read path.
func NewValidator(repo Repository, ledger Ledger) *Validator {
	return &Validator{repo: repo, ledger: ledger, now: time.Now}
}

// Validate runs the validation sequence and fails fast on the first
// unsatisfied constraint. Lines may be empty for standalone checks (a
// checkout UI probing a code before any cart exists); product eligibility
// is then skipped. The returned error is non-nil only for infrastructure
// failures; business rejections come back as a Validation with a reason.
func (v *Validator) Validate(
	ctx context.Context,
	code string,
	customer CustomerRef,
	lines []LineRef,
	orderSubtotal decimal.Decimal,
) (*Validation, error) {
	p, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &Validation{Reason: ReasonNotFound}, nil
		}
		return nil, errors.Wrap(err, "lookup promotion")
	}

	if !p.Active {
		return &Validation{Reason: ReasonInactive, Promotion: p}, nil
	}

	now := v.now()
	if p.StartDate != nil && now.Before(*p.StartDate) {
		return &Validation{Reason: ReasonNotStarted, Promotion: p}, nil
	}
	if p.EndDate != nil && now.After(*p.EndDate) {
		return &Validation{Reason: ReasonExpired, Promotion: p}, nil
	}

	total, byCustomer, err := v.ledger.Usage(ctx, code, customer.ID)
	if err != nil {
		return nil, errors.Wrap(err, "read promotion usage")
	}
	if p.MaxUsageCount > 0 && total >= p.MaxUsageCount {
		return &Validation{Reason: ReasonUsageLimitReached, Promotion: p}, nil
	}
	if p.MaxUsagePerCustomer > 0 && byCustomer >= p.MaxUsagePerCustomer {
		return &Validation{Reason: ReasonCustomerLimitReached, Promotion: p}, nil
	}

	if p.MinOrderAmount.IsPositive() && orderSubtotal.LessThan(p.MinOrderAmount) {
		return &Validation{Reason: ReasonMinOrderNotMet, Promotion: p}, nil
	}

	if !v.customerEligible(p, customer) {
		return &Validation{Reason: ReasonCustomerNotEligible, Promotion: p}, nil
	}

	if len(lines) > 0 && !anyLineCovered(p, lines) {
		return &Validation{Reason: ReasonNoEligibleItems, Promotion: p}, nil
	}

	return &Validation{Valid: true, Reason: ReasonValid, Promotion: p}, nil
}

func (v *Validator) customerEligible(p *Promotion, c CustomerRef) bool {
	if p.AppliesToAllCustomers {
		return true
	}
	if p.RequiredTier != "" && p.RequiredTier != c.Tier {
		return false
	}
	if p.RequiredType != "" && p.RequiredType != c.Type {
		return false
	}
	return true
}

func anyLineCovered(p *Promotion, lines []LineRef) bool {
	for _, l := range lines {
		if p.CoversProduct(l.ProductID, l.CategoryID) {
			return true
		}
	}
	return false
}

// EstimateDiscount computes the discount the promotion would contribute
// against the given order subtotal, honoring MaxDiscountAmount. Used by
// the standalone validate endpoint before a cart exists.
func EstimateDiscount(p *Promotion, orderSubtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch p.Type {
	case TypePercentage:
		amount = orderSubtotal.Mul(p.Value).Div(decimal.NewFromInt(100))
	case TypeFixed:
		amount = decimal.Min(p.Value, orderSubtotal)
	default:
		return decimal.Zero
	}
	if p.MaxDiscountAmount.IsPositive() {
		amount = decimal.Min(amount, p.MaxDiscountAmount)
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount.Round(2)
}

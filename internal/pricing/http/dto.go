package pricinghttp

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/printworks/storefront/internal/platform/httpx"
	"github.com/printworks/storefront/internal/pricing"
)

type serviceRequest struct {
	Slug     string `json:"slug" validate:"omitempty,max=120"`
	Name     string `json:"name" validate:"required,max=200"`
	Category string `json:"category" validate:"required,max=120"`
}

type tierRequest struct {
	Qty       int64           `json:"qty" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type rowRequest struct {
	Attrs      pricing.Attributes `json:"attrs"`
	Kind       string             `json:"kind" validate:"required,oneof=fixed perUnit tiers"`
	FixedPrice *decimal.Decimal   `json:"fixedPrice"`
	UnitPrice  *decimal.Decimal   `json:"unitPrice"`
	SetupFee   *decimal.Decimal   `json:"setupFee"`
	Tiers      []tierRequest      `json:"tiers" validate:"required_if=Kind tiers,dive"`
}

// rule builds the pricing rule described by the request.
func (req rowRequest) rule() (pricing.Rule, error) {
	setup := decimal.Zero
	if req.SetupFee != nil {
		setup = *req.SetupFee
	}
	switch pricing.RuleKind(req.Kind) {
	case pricing.KindFixed:
		if req.FixedPrice == nil {
			return nil, fieldError("fixedPrice", "required for fixed rows")
		}
		return pricing.NewFixedRule(*req.FixedPrice)
	case pricing.KindPerUnit:
		if req.UnitPrice == nil {
			return nil, fieldError("unitPrice", "required for perUnit rows")
		}
		return pricing.NewPerUnitRule(*req.UnitPrice, setup)
	case pricing.KindTiers:
		tiers := make([]pricing.Tier, 0, len(req.Tiers))
		for _, t := range req.Tiers {
			tiers = append(tiers, pricing.Tier{Qty: t.Qty, UnitPrice: t.UnitPrice})
		}
		return pricing.NewTieredRule(tiers, setup)
	}
	return nil, fieldError("kind", fmt.Sprintf("unknown kind %q", req.Kind))
}

func fieldError(field, reason string) error {
	return &pricing.ValidationError{Field: field, Reason: reason}
}

func validationErr(err error) error {
	return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
}

package pricing

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// RuleKind names the pricing strategy of a row.
type RuleKind string

const (
	KindFixed   RuleKind = "fixed"
	KindPerUnit RuleKind = "perUnit"
	KindTiers   RuleKind = "tiers"
)

// ParseRuleKind accepts the stored spelling of a kind, case-insensitively.
func ParseRuleKind(s string) (RuleKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed":
		return KindFixed, nil
	case "perunit", "per_unit":
		return KindPerUnit, nil
	case "tiers", "tiered":
		return KindTiers, nil
	}
	return "", invalid("rule kind", fmt.Sprintf("unknown kind %q", s))
}

// Tier is a quantity break: from Qty units upward the unit price applies.
type Tier struct {
	ID        int64           `json:"id,omitempty"`
	RowID     int64           `json:"rowId,omitempty"`
	Qty       int64           `json:"qty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Rule is the pricing strategy attached to a price row. The set of
// implementations is closed: FixedRule, PerUnitRule and TieredRule.
type Rule interface {
	Kind() RuleKind
	// Evaluate returns the net price for qty and, for tiered rules, the tier used.
	Evaluate(qty int64) (decimal.Decimal, *Tier)
	validate() error
}

// FixedRule charges a flat total regardless of quantity.
type FixedRule struct {
	total decimal.Decimal
}

// NewFixedRule allows a zero total, which the importer uses as its default.
func NewFixedRule(total decimal.Decimal) (FixedRule, error) {
	r := FixedRule{total: total}
	if err := r.validate(); err != nil {
		return FixedRule{}, err
	}
	return r, nil
}

func (r FixedRule) validate() error {
	if r.total.IsNegative() {
		return invalid("fixed price", "must not be negative")
	}
	return nil
}

func (FixedRule) Kind() RuleKind { return KindFixed }
func (r FixedRule) Total() decimal.Decimal { return r.total }

func (r FixedRule) Evaluate(int64) (decimal.Decimal, *Tier) {
	return r.total, nil
}

// PerUnitRule charges setup + unit*qty.
type PerUnitRule struct {
	unit  decimal.Decimal
	setup decimal.Decimal
}

func NewPerUnitRule(unit, setup decimal.Decimal) (PerUnitRule, error) {
	r := PerUnitRule{unit: unit, setup: setup}
	if err := r.validate(); err != nil {
		return PerUnitRule{}, err
	}
	return r, nil
}

func (r PerUnitRule) validate() error {
	if !r.unit.IsPositive() {
		return invalid("unit price", "must be positive")
	}
	if r.setup.IsNegative() {
		return invalid("setup fee", "must not be negative")
	}
	return nil
}

func (PerUnitRule) Kind() RuleKind { return KindPerUnit }
func (r PerUnitRule) Unit() decimal.Decimal { return r.unit }
func (r PerUnitRule) Setup() decimal.Decimal { return r.setup }

func (r PerUnitRule) Evaluate(qty int64) (decimal.Decimal, *Tier) {
	return r.setup.Add(r.unit.Mul(decimal.NewFromInt(qty))), nil
}

// TieredRule charges setup + tier.UnitPrice*qty for the tier selected by
// SelectTier. Tiers are kept sorted by ascending Qty.
type TieredRule struct {
	tiers []Tier
	setup decimal.Decimal
}

func NewTieredRule(tiers []Tier, setup decimal.Decimal) (TieredRule, error) {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Qty < sorted[j].Qty })
	r := TieredRule{tiers: sorted, setup: setup}
	if err := r.validate(); err != nil {
		return TieredRule{}, err
	}
	return r, nil
}

// validate expects the tiers already sorted, which NewTieredRule guarantees.
func (r TieredRule) validate() error {
	if len(r.tiers) == 0 {
		return invalid("tiers", "at least one tier is required")
	}
	if r.setup.IsNegative() {
		return invalid("setup fee", "must not be negative")
	}
	for i, t := range r.tiers {
		if t.Qty <= 0 {
			return invalid("tier qty", "must be positive")
		}
		if !t.UnitPrice.IsPositive() {
			return invalid("tier unit price", fmt.Sprintf("must be positive for qty %d", t.Qty))
		}
		if i > 0 && r.tiers[i-1].Qty >= t.Qty {
			return invalid("tier qty", fmt.Sprintf("duplicate qty %d", t.Qty))
		}
	}
	return nil
}

func (TieredRule) Kind() RuleKind { return KindTiers }
func (r TieredRule) Setup() decimal.Decimal { return r.setup }

// Tiers returns a copy of the tiers in ascending quantity order.
func (r TieredRule) Tiers() []Tier {
	out := make([]Tier, len(r.tiers))
	copy(out, r.tiers)
	return out
}

func (r TieredRule) Evaluate(qty int64) (decimal.Decimal, *Tier) {
	tier := SelectTier(r.tiers, qty)
	if tier == nil {
		return r.setup, nil
	}
	return r.setup.Add(tier.UnitPrice.Mul(decimal.NewFromInt(qty))), tier
}

// SelectTier returns the tier with the greatest Qty not above qty. When qty is
// below every tier the smallest tier applies. tiers must be sorted ascending.
func SelectTier(tiers []Tier, qty int64) *Tier {
	if len(tiers) == 0 {
		return nil
	}
	idx := sort.Search(len(tiers), func(i int) bool { return tiers[i].Qty > qty })
	if idx == 0 {
		t := tiers[0]
		return &t
	}
	t := tiers[idx-1]
	return &t
}

type ruleJSON struct {
	Kind  RuleKind         `json:"kind"`
	Total *decimal.Decimal `json:"total,omitempty"`
	Unit  *decimal.Decimal `json:"unitPrice,omitempty"`
	Setup *decimal.Decimal `json:"setupFee,omitempty"`
	Tiers []Tier           `json:"tiers,omitempty"`
}

// MarshalRule encodes r as {"kind":...} plus its fields.
func MarshalRule(r Rule) ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	var doc ruleJSON
	doc.Kind = r.Kind()
	switch v := r.(type) {
	case FixedRule:
		doc.Total = &v.total
	case PerUnitRule:
		doc.Unit = &v.unit
		doc.Setup = &v.setup
	case TieredRule:
		doc.Setup = &v.setup
		doc.Tiers = v.tiers
	}
	return json.Marshal(doc)
}

// UnmarshalRule decodes the output of MarshalRule, re-running validation.
func UnmarshalRule(data []byte) (Rule, error) {
	var doc ruleJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("pricing: decode rule: %w", err)
	}
	setup := decimal.Zero
	if doc.Setup != nil {
		setup = *doc.Setup
	}
	switch doc.Kind {
	case KindFixed:
		total := decimal.Zero
		if doc.Total != nil {
			total = *doc.Total
		}
		return NewFixedRule(total)
	case KindPerUnit:
		if doc.Unit == nil {
			return nil, invalid("unit price", "required for perUnit rule")
		}
		return NewPerUnitRule(*doc.Unit, setup)
	case KindTiers:
		return NewTieredRule(doc.Tiers, setup)
	}
	return nil, invalid("rule kind", fmt.Sprintf("unknown kind %q", doc.Kind))
}

// ValidateRule re-checks the invariants of r. Zero-value rules built
// without their constructor fail here.
func ValidateRule(r Rule) error {
	if r == nil {
		return invalid("rule", "required")
	}
	return r.validate()
}

// checkStrict applies the stricter admin-edit rules: a fixed total must be positive.
func checkStrict(r Rule) error {
	if err := ValidateRule(r); err != nil {
		return err
	}
	if f, ok := r.(FixedRule); ok && !f.total.IsPositive() {
		return invalid("fixed price", "must be positive")
	}
	return nil
}

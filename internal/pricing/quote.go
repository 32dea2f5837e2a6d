package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// VATRate is the flat UK standard rate applied to every quote.
var VATRate = decimal.RequireFromString("0.20")

// SnapshotSource yields the active pricing of a service by slug. Store and
// CachedSource both satisfy it.
type SnapshotSource interface {
	Snapshot(ctx context.Context, slug string) (Snapshot, error)
}

// Quote is an unrounded price breakdown.
type Quote struct {
	Service      Service
	Row          PriceRow
	Tier         *Tier
	RuleKind     RuleKind
	MatchedAttrs Attributes
	Quantity     int64
	Net          decimal.Decimal
	VAT          decimal.Decimal
	Gross        decimal.Decimal
}

// Amounts is a net/vat/gross triple.
type Amounts struct {
	Net   decimal.Decimal `json:"net"`
	VAT   decimal.Decimal `json:"vat"`
	Gross decimal.Decimal `json:"gross"`
}

// Rounded rounds each figure to pence on its own, so gross is not derived
// from the rounded net and vat.
func (q Quote) Rounded() Amounts {
	return Amounts{
		Net:   q.Net.Round(2),
		VAT:   q.VAT.Round(2),
		Gross: q.Gross.Round(2),
	}
}

// DisplayAmounts formats the rounded figures as pounds sterling for tag.
func (q Quote) DisplayAmounts(tag language.Tag) map[string]string {
	p := message.NewPrinter(tag)
	r := q.Rounded()
	format := func(d decimal.Decimal) string {
		return p.Sprint(currency.Symbol(currency.GBP.Amount(d.InexactFloat64())))
	}
	return map[string]string{
		"net":   format(r.Net),
		"vat":   format(r.VAT),
		"gross": format(r.Gross),
	}
}

// Engine prices selections against the active rows of a service.
type Engine struct {
	source SnapshotSource
}

func NewEngine(source SnapshotSource) *Engine {
	return &Engine{source: source}
}

// Quote prices qty units of the row matching sel.
func (e *Engine) Quote(ctx context.Context, slug string, sel Selection, qty int64) (Quote, error) {
	if qty <= 0 {
		return Quote{}, invalid("quantity", "must be greater than zero")
	}
	snap, err := e.source.Snapshot(ctx, slug)
	if err != nil {
		return Quote{}, err
	}
	row, ok := MatchRow(snap.Rows, sel)
	if !ok {
		return Quote{}, fmt.Errorf("%w: service %q", ErrNoMatchingRule, slug)
	}
	if row.Rule == nil {
		return Quote{}, invalid("rule", fmt.Sprintf("row %d has no rule", row.ID))
	}
	net, tier := row.Rule.Evaluate(qty)
	vat := net.Mul(VATRate)
	return Quote{
		Service:      snap.Service,
		Row:          row,
		Tier:         tier,
		RuleKind:     row.Rule.Kind(),
		MatchedAttrs: row.Attrs,
		Quantity:     qty,
		Net:          net,
		VAT:          vat,
		Gross:        net.Add(vat),
	}, nil
}

// Options returns the attribute catalog of the service.
func (e *Engine) Options(ctx context.Context, slug string) (Catalog, error) {
	snap, err := e.source.Snapshot(ctx, slug)
	if err != nil {
		return Catalog{}, err
	}
	return BuildCatalog(snap.Rows), nil
}

// MatchRow returns the first active row, in the given order, whose attributes
// agree with sel.
func MatchRow(rows []PriceRow, sel Selection) (PriceRow, bool) {
	for _, row := range rows {
		if !row.IsActive {
			continue
		}
		if row.Attrs.Matches(sel) {
			return row, true
		}
	}
	return PriceRow{}, false
}

package pricing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

type staticSource map[string]Snapshot

func (s staticSource) Snapshot(_ context.Context, slug string) (Snapshot, error) {
	snap, ok := s[slug]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

func mustRule(r Rule, err error) Rule {
	if err != nil {
		panic(err)
	}
	return r
}

func flyerSource() staticSource {
	return staticSource{
		"flyers": {
			Service: Service{ID: 1, Slug: "flyers", Name: "Flyers", IsActive: true},
			Rows: []PriceRow{
				{ID: 10, IsActive: true, Attrs: NewAttributes("Size", "A5", "Sides", "1"),
					Rule: mustRule(NewTieredRule(tiers(100, "0.50", 250, "0.40", 500, "0.30"), decimal.Zero))},
				{ID: 11, IsActive: true, Attrs: NewAttributes("Size", "A4", "Sides", "1"),
					Rule: mustRule(NewFixedRule(d("75")))},
				{ID: 12, IsActive: true, Attrs: NewAttributes("Size", "A4", "Sides", "2"),
					Rule: mustRule(NewPerUnitRule(d("0.333"), d("9.99")))},
			},
		},
	}
}

func TestQuoteTieredScenario(t *testing.T) {
	engine := NewEngine(flyerSource())

	q, err := engine.Quote(context.Background(), "flyers", Selection{"Size": "A5", "Sides": "1"}, 300)
	require.NoError(t, err)

	assert.Equal(t, KindTiers, q.RuleKind)
	require.NotNil(t, q.Tier)
	assert.Equal(t, int64(250), q.Tier.Qty)
	assert.True(t, q.Tier.UnitPrice.Equal(d("0.40")))
	assert.True(t, q.Net.Equal(d("120.00")))
	assert.True(t, q.VAT.Equal(d("24.00")))
	assert.True(t, q.Gross.Equal(d("144.00")))
	assert.Equal(t, int64(10), q.Row.ID)
	assert.True(t, q.MatchedAttrs.Equal(NewAttributes("Sides", "1", "Size", "A5")))
}

func TestQuoteTierFallbackBelowMinimum(t *testing.T) {
	engine := NewEngine(flyerSource())
	q, err := engine.Quote(context.Background(), "flyers", Selection{"Size": "A5"}, 10)
	require.NoError(t, err)
	require.NotNil(t, q.Tier)
	assert.Equal(t, int64(100), q.Tier.Qty)
	assert.True(t, q.Net.Equal(d("5.00")))
}

func TestQuoteFixedIgnoresQuantity(t *testing.T) {
	engine := NewEngine(flyerSource())
	for _, qty := range []int64{1, 50, 10000} {
		q, err := engine.Quote(context.Background(), "flyers", Selection{"Sides": "1", "Size": "A4"}, qty)
		require.NoError(t, err)
		assert.Equal(t, KindFixed, q.RuleKind)
		assert.True(t, q.Net.Equal(d("75")))
		assert.Nil(t, q.Tier)
	}
}

func TestQuoteSelectionOrderIndependent(t *testing.T) {
	engine := NewEngine(flyerSource())
	a, err := engine.Quote(context.Background(), "flyers", Selection{"Size": "A4", "Sides": "2"}, 100)
	require.NoError(t, err)
	b, err := engine.Quote(context.Background(), "flyers", Selection{"Sides": "2", "Size": "A4"}, 100)
	require.NoError(t, err)
	assert.Equal(t, a.Row.ID, b.Row.ID)
	assert.True(t, a.Net.Equal(b.Net))
}

func TestQuoteVATInvariant(t *testing.T) {
	engine := NewEngine(flyerSource())
	for _, qty := range []int64{1, 7, 99, 100, 333, 1001} {
		q, err := engine.Quote(context.Background(), "flyers", Selection{"Size": "A4", "Sides": "2"}, qty)
		require.NoError(t, err)
		assert.True(t, q.VAT.Equal(q.Net.Mul(d("0.20"))))
		assert.True(t, q.Gross.Equal(q.Net.Add(q.VAT)))
	}
}

func TestQuoteRoundsEachFigureIndependently(t *testing.T) {
	engine := NewEngine(flyerSource())
	q, err := engine.Quote(context.Background(), "flyers", Selection{"Size": "A4", "Sides": "2"}, 7)
	require.NoError(t, err)

	// 9.99 + 7*0.333 = 12.321, vat 2.4642, gross 14.7852
	assert.True(t, q.Net.Equal(d("12.321")))
	r := q.Rounded()
	assert.Equal(t, "12.32", r.Net.StringFixed(2))
	assert.Equal(t, "2.46", r.VAT.StringFixed(2))
	assert.Equal(t, "14.79", r.Gross.StringFixed(2))
	assert.False(t, r.Gross.Equal(r.Net.Add(r.VAT)), "gross is rounded on its own")

	shown := q.DisplayAmounts(language.BritishEnglish)
	assert.Contains(t, shown["gross"], "14.79")
}

func TestQuoteErrors(t *testing.T) {
	engine := NewEngine(flyerSource())
	ctx := context.Background()

	_, err := engine.Quote(ctx, "flyers", Selection{"Size": "A5"}, 0)
	assert.True(t, IsValidation(err))

	_, err = engine.Quote(ctx, "posters", Selection{}, 10)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = engine.Quote(ctx, "flyers", Selection{"Size": "A3"}, 10)
	assert.ErrorIs(t, err, ErrNoMatchingRule)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestMatchRowFirstInCatalogOrder(t *testing.T) {
	rows := []PriceRow{
		{ID: 1, IsActive: false, Attrs: NewAttributes("Size", "A4")},
		{ID: 2, IsActive: true, Attrs: NewAttributes("Size", "A4", "Sides", "1")},
		{ID: 3, IsActive: true, Attrs: NewAttributes("Size", "A4", "Sides", "2")},
	}
	row, ok := MatchRow(rows, Selection{"Size": "A4"})
	require.True(t, ok)
	assert.Equal(t, int64(2), row.ID)

	_, ok = MatchRow(rows, Selection{"Size": "A6"})
	assert.False(t, ok)
}

func TestEngineOptions(t *testing.T) {
	cat, err := NewEngine(flyerSource()).Options(context.Background(), "flyers")
	require.NoError(t, err)
	assert.Equal(t, []string{"Size", "Sides"}, cat.OptionKeys)
	assert.Equal(t, []string{"1", "2"}, cat.Options["Sides"])
}

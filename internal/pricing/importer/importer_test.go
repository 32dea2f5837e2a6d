package importer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/printworks/storefront/internal/platform/httpx"
	"github.com/printworks/storefront/internal/pricing"
)

type savedRow struct {
	serviceID int64
	attrs     pricing.Attributes
	rule      pricing.Rule
}

type fakeWriter struct {
	upserts  []string
	services map[string]int64
	rows     []savedRow
	failSlug string
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{services: map[string]int64{}}
}

func (w *fakeWriter) UpsertService(_ context.Context, slug, name, category string) (pricing.Service, error) {
	if slug == w.failSlug {
		return pricing.Service{}, errors.New("connection reset")
	}
	w.upserts = append(w.upserts, slug)
	id, ok := w.services[slug]
	if !ok {
		id = int64(len(w.services) + 1)
		w.services[slug] = id
	}
	return pricing.Service{ID: id, Slug: slug, Name: name, Category: category}, nil
}

func (w *fakeWriter) SavePriceRow(_ context.Context, serviceID int64, attrs pricing.Attributes, rule pricing.Rule) (pricing.PriceRow, bool, error) {
	for i, r := range w.rows {
		if r.serviceID == serviceID && r.attrs.Equal(attrs) {
			w.rows[i].rule = rule
			return pricing.PriceRow{ID: int64(i + 1)}, false, nil
		}
	}
	w.rows = append(w.rows, savedRow{serviceID: serviceID, attrs: attrs, rule: rule})
	return pricing.PriceRow{ID: int64(len(w.rows))}, true, nil
}

type fakeRecorder struct {
	summaries []pricing.ImportSummary
	err       error
}

func (r *fakeRecorder) RecordImport(_ context.Context, sum pricing.ImportSummary) error {
	r.summaries = append(r.summaries, sum)
	return r.err
}

func runCSV(t *testing.T, w *fakeWriter, csv string) Result {
	t.Helper()
	res, err := New(w, nil, nil).ImportCSV(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)
	return res
}

func TestImportInfersRuleKinds(t *testing.T) {
	w := newFakeWriter()
	res := runCSV(t, w, strings.Join([]string{
		"Category,Service,Size,Sides,Fixed,Unit,Q100,Q 250,Q500",
		"Print,Flyers,A5,1,75,,,,",
		"Print,Flyers,A5,2,,0.12,,,",
		"Print,Flyers,A4,1,,,0.50,0.40,0.30",
		"Print,Flyers,A4,2,,,0.50,,0.30",
	}, "\n"))

	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 4, res.Imported)
	assert.Equal(t, 0, res.Skipped)
	require.Len(t, w.rows, 4)

	assert.Equal(t, pricing.KindFixed, w.rows[0].rule.Kind())
	assert.Equal(t, pricing.KindPerUnit, w.rows[1].rule.Kind())
	require.Equal(t, pricing.KindTiers, w.rows[2].rule.Kind())
	assert.Len(t, w.rows[2].rule.(pricing.TieredRule).Tiers(), 3)
	assert.Len(t, w.rows[3].rule.(pricing.TieredRule).Tiers(), 2, "one tier per populated Q column")

	tiers := w.rows[2].rule.(pricing.TieredRule).Tiers()
	assert.Equal(t, int64(250), tiers[1].Qty)

	assert.Equal(t, []string{"Size", "Sides"}, w.rows[0].attrs.Keys())
	assert.Equal(t, []string{"flyers"}, w.upserts, "service upserted once per run")
	assert.Equal(t, map[string]int64{"flyers": 1}, res.Services)
}

func TestImportQtyPriceShortcutWins(t *testing.T) {
	w := newFakeWriter()
	runCSV(t, w, "Group,Name,Paper,Qty,PRICE,Q100\nCards,Business Cards,Silk,250,0.08,0.10\n")

	require.Len(t, w.rows, 1)
	tr, ok := w.rows[0].rule.(pricing.TieredRule)
	require.True(t, ok)
	require.Len(t, tr.Tiers(), 1)
	assert.Equal(t, int64(250), tr.Tiers()[0].Qty)
	assert.True(t, tr.Tiers()[0].UnitPrice.Equal(decimal.RequireFromString("0.08")))
	assert.Equal(t, []string{"Paper"}, w.rows[0].attrs.Keys())
	assert.Contains(t, w.services, "business-cards")
}

func TestImportCommaDecimal(t *testing.T) {
	w := newFakeWriter()
	runCSV(t, w, "Category,Service,Unit,Setup\n"+`Print,Posters,"1,50","2,5"`+"\n")

	require.Len(t, w.rows, 1)
	per, ok := w.rows[0].rule.(pricing.PerUnitRule)
	require.True(t, ok)
	assert.True(t, per.Unit().Equal(decimal.RequireFromString("1.50")))
	assert.True(t, per.Setup().Equal(decimal.RequireFromString("2.5")))
}

func TestImportFixedDefaultsToZero(t *testing.T) {
	w := newFakeWriter()
	runCSV(t, w, "category,service,slug,size,fixed\nPrint,Banners,roller-banner,850mm,n/a\n")

	require.Len(t, w.rows, 1)
	fixed, ok := w.rows[0].rule.(pricing.FixedRule)
	require.True(t, ok)
	assert.True(t, fixed.Total().IsZero())
	assert.Contains(t, w.services, "roller-banner", "explicit slug is used as given")
}

func TestImportSkipsAndCountsBadRows(t *testing.T) {
	w := newFakeWriter()
	w.failSlug = "stickers"
	res := runCSV(t, w, strings.Join([]string{
		"Category,Service,Size,Unit",
		",Flyers,A5,0.1",
		"Print,,A5,0.1",
		"Print,!!!,A5,0.1",
		"Print,Stickers,A5,0.1",
		",,,",
		"Print,Flyers,A5,0.1",
	}, "\n"))

	assert.Equal(t, 5, res.Total, "blank rows are not counted")
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 4, res.Skipped)
	assert.Equal(t, res.Total, res.Imported+res.Skipped)
	require.Len(t, res.Errors, 4)
	assert.Equal(t, 2, res.Errors[0].Row)
	assert.Contains(t, res.Errors[0].Reason, "category")
	assert.Contains(t, res.Errors[1].Reason, "service name")
	assert.Contains(t, res.Errors[2].Reason, "slug")
	assert.Contains(t, res.Errors[3].Reason, "connection reset")
}

func TestImportReimportUpdates(t *testing.T) {
	w := newFakeWriter()
	csv := "Category,Service,Size,Unit\nPrint,Flyers,A5,0.1\n"
	first := runCSV(t, w, csv)
	second := runCSV(t, w, csv)

	assert.Equal(t, 1, first.Created)
	assert.Equal(t, 1, second.Updated)
	assert.Len(t, w.rows, 1)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestImportRecordsRun(t *testing.T) {
	w := newFakeWriter()
	rec := &fakeRecorder{}
	res, err := New(w, rec, nil).ImportCSV(context.Background(), strings.NewReader("Category,Service,Unit\nPrint,Flyers,0.1\n"))
	require.NoError(t, err)

	require.Len(t, rec.summaries, 1)
	assert.Equal(t, res.RunID.String(), rec.summaries[0].RunID)
	assert.Equal(t, 1, rec.summaries[0].Imported)
}

func TestImportWholeFileFailures(t *testing.T) {
	im := New(newFakeWriter(), nil, nil)

	_, err := im.ImportCSV(context.Background(), strings.NewReader(""))
	assert.ErrorIs(t, err, ErrInvalidFile)

	_, err = im.ImportCSV(context.Background(), strings.NewReader(",,\nPrint,Flyers,1\n"))
	assert.ErrorIs(t, err, ErrInvalidFile)

	_, err = im.ImportXLSX(context.Background(), []byte("not a workbook"))
	assert.ErrorIs(t, err, ErrInvalidFile)
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestImportXLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Prices")
	require.NoError(t, err)
	for _, rowData := range [][]string{
		{"Category", "Service", "Size", "Q100", "Q500"},
		{"Print", "Leaflets", "A6", "0,20", "0,15"},
	} {
		row := sheet.AddRow()
		for _, v := range rowData {
			row.AddCell().SetString(v)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	w := newFakeWriter()
	res, err := New(w, nil, nil).ImportFile(context.Background(), FormatXLSX, buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	require.Len(t, w.rows, 1)
	assert.Equal(t, pricing.KindTiers, w.rows[0].rule.Kind())
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatXLSX, DetectFormat("prices.XLSX", ""))
	assert.Equal(t, FormatXLSX, DetectFormat("", xlsxContentType))
	assert.Equal(t, FormatCSV, DetectFormat("prices.csv", "text/csv"))
	assert.Equal(t, FormatCSV, DetectFormat("", ""))
}

func TestParseHeaderFoldsCase(t *testing.T) {
	l := parseHeader([]string{"CATEGORY", " service ", "UnitPrice", "q 1000", "Lamination", "VAT", "Price +VAT"})
	assert.True(t, l.has(fieldCategory))
	assert.True(t, l.has(fieldService))
	assert.True(t, l.has(fieldUnit))
	require.Len(t, l.tiers, 1)
	assert.Equal(t, int64(1000), l.tiers[0].qty)
	assert.Equal(t, []int{4}, l.attrs)
}

func TestImportRecorderFailureKeepsResult(t *testing.T) {
	w := newFakeWriter()
	rec := &fakeRecorder{err: errors.New("history insert failed")}
	res, err := New(w, rec, nil).ImportCSV(context.Background(), strings.NewReader("Category,Service,Size,Fixed\nPrint,Flyers,A5,10\n"))

	var recErr *RecordError
	require.ErrorAs(t, err, &recErr)
	assert.Contains(t, err.Error(), "history insert failed")
	assert.Equal(t, 1, res.Imported)
	assert.Len(t, w.rows, 1)
	require.Len(t, rec.summaries, 1)
}

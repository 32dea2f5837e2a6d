// Package importer loads price lists exported from spreadsheets.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/printworks/storefront/internal/platform/httpx"
	"github.com/printworks/storefront/internal/pricing"
)

// ErrInvalidFile marks whole-file failures: unreadable input or a missing
// header. Nothing has been written when it is returned.
var ErrInvalidFile = fmt.Errorf("importer: invalid file: %w", httpx.ErrValidation)

func invalidFile(err error) error {
	if errors.Is(err, ErrInvalidFile) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInvalidFile, err)
}

// Writer persists imported services and rows. *pricing.Store satisfies it.
type Writer interface {
	UpsertService(ctx context.Context, slug, name, category string) (pricing.Service, error)
	SavePriceRow(ctx context.Context, serviceID int64, attrs pricing.Attributes, rule pricing.Rule) (pricing.PriceRow, bool, error)
}

// Recorder is told about every finished run. *pricing.Admin satisfies it.
type Recorder interface {
	RecordImport(ctx context.Context, sum pricing.ImportSummary) error
}

// RowError explains why a data row was skipped. Row is the 1-based line in
// the sheet, counting the header as line 1.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// RecordError reports that rows were written but the run could not be
// recorded in the change log or the cache could not be invalidated. The
// accompanying Result is complete.
type RecordError struct {
	Err error
}

func (e *RecordError) Error() string { return e.Err.Error() }

func (e *RecordError) Unwrap() error { return e.Err }

// Result summarises a run. Imported + Skipped == Total, with one RowError
// per skipped row.
type Result struct {
	RunID    uuid.UUID        `json:"runId"`
	Total    int              `json:"totalRowCount"`
	Imported int              `json:"importedRowCount"`
	Created  int              `json:"created"`
	Updated  int              `json:"updated"`
	Skipped  int              `json:"skipped"`
	Errors   []RowError       `json:"errors"`
	Services map[string]int64 `json:"services"`
}

// Summary converts the result for the change log.
func (r Result) Summary() pricing.ImportSummary {
	return pricing.ImportSummary{
		RunID:    r.RunID.String(),
		Total:    r.Total,
		Imported: r.Imported,
		Skipped:  r.Skipped,
		Services: r.Services,
	}
}

// Importer turns spreadsheet rows into services and price rows. Rows are
// written one by one: a bad row is skipped and reported, the rest still land.
// Runs touching the same services must not overlap.
type Importer struct {
	writer   Writer
	recorder Recorder
	logger   *slog.Logger
}

// New builds an importer. recorder may be nil.
func New(writer Writer, recorder Recorder, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Importer{writer: writer, recorder: recorder, logger: logger}
}

// Import processes a header row followed by data rows.
func (im *Importer) Import(ctx context.Context, records [][]string) (Result, error) {
	res := Result{RunID: uuid.New(), Services: make(map[string]int64)}
	if len(records) == 0 || isBlank(records[0]) {
		return res, invalidFile(eris.New("importer: header row required"))
	}
	cols := parseHeader(records[0])
	logger := im.logger.With(slog.String("run_id", res.RunID.String()))

	for i, record := range records[1:] {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "importer: cancelled")
		}
		if isBlank(record) {
			continue
		}
		line := i + 2
		res.Total++
		created, err := im.importRow(ctx, cols, record, res.Services)
		if err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, RowError{Row: line, Reason: err.Error()})
			logger.Debug("import row skipped", slog.Int("row", line), slog.Any("error", err))
			continue
		}
		res.Imported++
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}

	logger.Info("price import finished",
		slog.Int("total", res.Total),
		slog.Int("imported", res.Imported),
		slog.Int("skipped", res.Skipped))

	if im.recorder != nil && len(res.Services) > 0 {
		if err := im.recorder.RecordImport(ctx, res.Summary()); err != nil {
			return res, &RecordError{Err: eris.Wrap(err, "importer: record import")}
		}
	}
	return res, nil
}

func (im *Importer) importRow(ctx context.Context, cols layout, record []string, services map[string]int64) (bool, error) {
	category := cols.cell(record, fieldCategory)
	name := cols.cell(record, fieldService)
	slug := cols.cell(record, fieldSlug)
	if slug == "" {
		slug = pricing.Slugify(name)
	}
	switch {
	case category == "":
		return false, fmt.Errorf("missing category")
	case name == "":
		return false, fmt.Errorf("missing service name")
	case slug == "":
		return false, fmt.Errorf("cannot derive slug from %q", name)
	}

	serviceID, ok := services[slug]
	if !ok {
		svc, err := im.writer.UpsertService(ctx, slug, name, category)
		if err != nil {
			return false, err
		}
		serviceID = svc.ID
		services[slug] = serviceID
	}

	rule, err := inferRule(cols, record)
	if err != nil {
		return false, err
	}
	_, created, err := im.writer.SavePriceRow(ctx, serviceID, rowAttributes(cols, record), rule)
	return created, err
}

// rowAttributes keeps every non-price column with a value, in sheet order.
func rowAttributes(cols layout, record []string) pricing.Attributes {
	var attrs pricing.Attributes
	for _, i := range cols.attrs {
		if i >= len(record) {
			continue
		}
		value := strings.TrimSpace(record[i])
		if value == "" || pricing.IsReservedKey(cols.names[i]) {
			continue
		}
		attrs.Set(cols.names[i], value)
	}
	return attrs
}

// inferRule picks the rule kind in priority order: Qty+PRICE single tier,
// Q<n> tier columns, Unit per-unit price, then Fixed with 0 as default.
func inferRule(cols layout, record []string) (pricing.Rule, error) {
	setup, ok := parseAmount(cols.cell(record, fieldSetup))
	if !ok || setup.IsNegative() {
		setup = decimal.Zero
	}

	qty, qtyOK := parsePositive(cols.cell(record, fieldQty))
	price, priceOK := parsePositive(cols.cell(record, fieldPrice))
	if qtyOK && priceOK && qty.IsInteger() {
		return pricing.NewTieredRule([]pricing.Tier{{Qty: qty.IntPart(), UnitPrice: price}}, setup)
	}

	var tiers []pricing.Tier
	for _, tc := range cols.tiers {
		if tc.index >= len(record) {
			continue
		}
		if unit, ok := parsePositive(record[tc.index]); ok {
			tiers = append(tiers, pricing.Tier{Qty: tc.qty, UnitPrice: unit})
		}
	}
	if len(tiers) > 0 {
		return pricing.NewTieredRule(tiers, setup)
	}

	if unit, ok := parsePositive(cols.unitCell(record)); ok {
		return pricing.NewPerUnitRule(unit, setup)
	}

	fixed, ok := parseAmount(cols.cell(record, fieldFixed))
	if !ok || fixed.IsNegative() {
		fixed = decimal.Zero
	}
	return pricing.NewFixedRule(fixed)
}

func isBlank(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/printworks/storefront/internal/history"
)

// AdminStore is the part of Store the admin surface writes through.
type AdminStore interface {
	UpsertService(ctx context.Context, slug, name, category string) (Service, error)
	GetService(ctx context.Context, id int64) (Service, error)
	GetServiceBySlug(ctx context.Context, slug string) (Service, error)
	DeleteService(ctx context.Context, id int64) error
	CreatePriceRow(ctx context.Context, serviceID int64, attrs Attributes, rule Rule) (PriceRow, error)
	ReplacePriceRow(ctx context.Context, rowID int64, attrs Attributes, rule Rule) (PriceRow, PriceRow, error)
	DeactivatePriceRow(ctx context.Context, id int64) (PriceRow, error)
	DeletePriceRow(ctx context.Context, id int64) (PriceRow, error)
}

// ChangeLog records and lists history entries.
type ChangeLog interface {
	Record(ctx context.Context, c history.Change) (history.Entry, error)
	History(ctx context.Context, serviceID int64, limit int) ([]history.Entry, error)
}

// ImportSummary describes a finished import run for the change log.
type ImportSummary struct {
	RunID    string           `json:"runId"`
	Total    int              `json:"total"`
	Imported int              `json:"imported"`
	Skipped  int              `json:"skipped"`
	Services map[string]int64 `json:"services"`
}

// Admin performs admin edits. Each write is followed by a history entry and
// a cache invalidation; an error from either is returned after the write
// has already been committed.
type Admin struct {
	store  AdminStore
	log    ChangeLog
	cache  Invalidator
	logger *slog.Logger
}

// NewAdmin wires the admin service. cache may be nil.
func NewAdmin(store AdminStore, log ChangeLog, cache Invalidator, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Admin{store: store, log: log, cache: cache, logger: logger}
}

func (a *Admin) UpsertService(ctx context.Context, slug, name, category string) (Service, error) {
	var before any
	if existing, err := a.store.GetServiceBySlug(ctx, slug); err == nil {
		before = existing
	} else if !errors.Is(err, ErrNotFound) {
		return Service{}, err
	}
	svc, err := a.store.UpsertService(ctx, slug, name, category)
	if err != nil {
		return Service{}, err
	}
	verb := "Created"
	if before != nil {
		verb = "Updated"
	}
	return svc, a.after(ctx, history.Change{
		ServiceID:   svc.ID,
		Type:        history.ServiceUpsert,
		Description: fmt.Sprintf("%s service %s (%s)", verb, svc.Name, svc.Slug),
		OldData:     before,
		NewData:     svc,
	})
}

func (a *Admin) DeleteService(ctx context.Context, id int64) error {
	svc, err := a.store.GetService(ctx, id)
	if err != nil {
		return err
	}
	if err := a.store.DeleteService(ctx, id); err != nil {
		return err
	}
	return a.after(ctx, history.Change{
		ServiceID:   id,
		Type:        history.ServiceDelete,
		Description: fmt.Sprintf("Deleted service %s (%s)", svc.Name, svc.Slug),
		OldData:     svc,
	})
}

func (a *Admin) CreateRow(ctx context.Context, serviceID int64, attrs Attributes, rule Rule) (PriceRow, error) {
	if err := checkStrict(rule); err != nil {
		return PriceRow{}, err
	}
	row, err := a.store.CreatePriceRow(ctx, serviceID, attrs, rule)
	if err != nil {
		return PriceRow{}, err
	}
	return row, a.after(ctx, history.Change{
		ServiceID:   serviceID,
		RowID:       history.RowRef(row.ID),
		Type:        history.RowCreate,
		Description: fmt.Sprintf("Created %s row %s", row.Rule.Kind(), row.Attrs),
		NewData:     row,
	})
}

func (a *Admin) ReplaceRow(ctx context.Context, rowID int64, attrs Attributes, rule Rule) (PriceRow, error) {
	before, after, err := a.store.ReplacePriceRow(ctx, rowID, attrs, rule)
	if err != nil {
		return PriceRow{}, err
	}
	return after, a.after(ctx, history.Change{
		ServiceID:   after.ServiceID,
		RowID:       history.RowRef(rowID),
		Type:        history.RowUpdate,
		Description: fmt.Sprintf("Updated row %s", after.Attrs),
		OldData:     before,
		NewData:     after,
	})
}

func (a *Admin) DeactivateRow(ctx context.Context, id int64) error {
	row, err := a.store.DeactivatePriceRow(ctx, id)
	if err != nil {
		return err
	}
	deactivated := row
	deactivated.IsActive = false
	return a.after(ctx, history.Change{
		ServiceID:   row.ServiceID,
		RowID:       history.RowRef(id),
		Type:        history.RowDeactivate,
		Description: fmt.Sprintf("Deactivated row %s", row.Attrs),
		OldData:     row,
		NewData:     deactivated,
	})
}

func (a *Admin) DeleteRow(ctx context.Context, id int64) error {
	row, err := a.store.DeletePriceRow(ctx, id)
	if err != nil {
		return err
	}
	return a.after(ctx, history.Change{
		ServiceID:   row.ServiceID,
		RowID:       history.RowRef(id),
		Type:        history.RowDelete,
		Description: fmt.Sprintf("Deleted row %s", row.Attrs),
		OldData:     row,
	})
}

// RecordImport logs one entry per touched service. The cache is only
// invalidated when at least one row was imported.
func (a *Admin) RecordImport(ctx context.Context, sum ImportSummary) error {
	var errs []error
	for slug, id := range sum.Services {
		_, err := a.log.Record(ctx, history.Change{
			ServiceID:   id,
			Type:        history.Import,
			Description: fmt.Sprintf("Import %s: %d of %d rows imported (%s)", sum.RunID, sum.Imported, sum.Total, slug),
			NewData:     sum,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	if sum.Imported > 0 {
		if err := a.invalidate(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// History lists the change log of the service with the given slug.
func (a *Admin) History(ctx context.Context, slug string, limit int) (Service, []history.Entry, error) {
	svc, err := a.store.GetServiceBySlug(ctx, slug)
	if err != nil {
		return Service{}, nil, err
	}
	entries, err := a.log.History(ctx, svc.ID, limit)
	if err != nil {
		return Service{}, nil, err
	}
	return svc, entries, nil
}

func (a *Admin) after(ctx context.Context, change history.Change) error {
	if _, err := a.log.Record(ctx, change); err != nil {
		a.logger.Error("record pricing change", slog.String("type", string(change.Type)), slog.Any("error", err))
		return fmt.Errorf("pricing: record history: %w", err)
	}
	return a.invalidate(ctx)
}

func (a *Admin) invalidate(ctx context.Context) error {
	if a.cache == nil {
		return nil
	}
	if err := a.cache.Invalidate(ctx); err != nil {
		a.logger.Error("invalidate pricing cache", slog.Any("error", err))
		return err
	}
	return nil
}

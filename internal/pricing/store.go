package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store owns services, price rows and tiers. It validates every write before
// touching storage. Pairing writes with history is left to Admin.
type Store struct {
	repo Storage
}

// NewStore constructs a store over the given storage.
func NewStore(repo Storage) *Store {
	return &Store{repo: repo}
}

// UpsertService creates the service or renames it when the slug exists.
func (s *Store) UpsertService(ctx context.Context, slug, name, category string) (Service, error) {
	slug, name, category = strings.TrimSpace(slug), strings.TrimSpace(name), strings.TrimSpace(category)
	switch {
	case slug == "":
		return Service{}, invalid("slug", "required")
	case name == "":
		return Service{}, invalid("name", "required")
	case category == "":
		return Service{}, invalid("category", "required")
	}
	svc, err := s.repo.UpsertService(ctx, slug, name, category)
	return svc, persistErr("upsert service", err)
}

func (s *Store) GetService(ctx context.Context, id int64) (Service, error) {
	svc, err := s.repo.GetService(ctx, id)
	return svc, persistErr("get service", err)
}

func (s *Store) GetServiceBySlug(ctx context.Context, slug string) (Service, error) {
	svc, err := s.repo.GetServiceBySlug(ctx, slug)
	return svc, persistErr("get service", err)
}

func (s *Store) ListServices(ctx context.Context, filters ListFilters) ([]Service, error) {
	list, err := s.repo.ListServices(ctx, filters)
	return list, persistErr("list services", err)
}

// DeleteService removes the service together with its rows and tiers.
func (s *Store) DeleteService(ctx context.Context, id int64) error {
	return persistErr("delete service", s.repo.DeleteService(ctx, id))
}

func (s *Store) GetPriceRow(ctx context.Context, id int64) (PriceRow, error) {
	row, err := s.repo.GetRow(ctx, id)
	return row, persistErr("get row", err)
}

func (s *Store) ListPriceRows(ctx context.Context, serviceID int64, activeOnly bool) ([]PriceRow, error) {
	rows, err := s.repo.ListRows(ctx, serviceID, activeOnly)
	return rows, persistErr("list rows", err)
}

// CreatePriceRow inserts a row and its tiers in one transaction. A row whose
// attribute set is already active on the service fails with ErrDuplicate.
func (s *Store) CreatePriceRow(ctx context.Context, serviceID int64, attrs Attributes, rule Rule) (PriceRow, error) {
	if err := ValidateRule(rule); err != nil {
		return PriceRow{}, err
	}
	if _, err := s.repo.GetService(ctx, serviceID); err != nil {
		return PriceRow{}, persistErr("create row", err)
	}

	var created PriceRow
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := ensureUnique(ctx, tx, serviceID, attrs, 0); err != nil {
			return err
		}
		row, err := tx.InsertRow(ctx, PriceRow{ServiceID: serviceID, Attrs: attrs, Rule: rule})
		if err != nil {
			return err
		}
		if tr, ok := rule.(TieredRule); ok {
			if err := tx.InsertTiers(ctx, row.ID, tr.Tiers()); err != nil {
				return err
			}
		}
		created = row
		return nil
	})
	if err != nil {
		return PriceRow{}, persistErr("create row", err)
	}
	return created, nil
}

// SavePriceRow creates the row, or replaces the rule of the active row that
// already holds the same attribute set. created reports which happened.
func (s *Store) SavePriceRow(ctx context.Context, serviceID int64, attrs Attributes, rule Rule) (row PriceRow, created bool, err error) {
	if err := ValidateRule(rule); err != nil {
		return PriceRow{}, false, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.FindActiveRow(ctx, serviceID, attrs.Fingerprint())
		switch {
		case errors.Is(err, ErrNotFound):
			row, err = tx.InsertRow(ctx, PriceRow{ServiceID: serviceID, Attrs: attrs, Rule: rule})
			if err != nil {
				return err
			}
			created = true
		case err != nil:
			return err
		default:
			existing, err := tx.LockRow(ctx, id)
			if err != nil {
				return err
			}
			row = existing
			row.Attrs = attrs
			row.Rule = rule
			if err := tx.UpdateRow(ctx, row); err != nil {
				return err
			}
			if err := tx.DeleteTiers(ctx, row.ID); err != nil {
				return err
			}
		}
		if tr, ok := rule.(TieredRule); ok {
			return tx.InsertTiers(ctx, row.ID, tr.Tiers())
		}
		return nil
	})
	if err != nil {
		return PriceRow{}, false, persistErr("save row", err)
	}
	return row, created, nil
}

// ReplacePriceRow swaps the attributes, rule and whole tier set of a row
// atomically. Concurrent readers see either the old or the new tier set.
// The previous state is returned alongside the new one.
func (s *Store) ReplacePriceRow(ctx context.Context, rowID int64, attrs Attributes, rule Rule) (before, after PriceRow, err error) {
	if err := checkStrict(rule); err != nil {
		return PriceRow{}, PriceRow{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		old, err := tx.LockRow(ctx, rowID)
		if err != nil {
			return err
		}
		if old.IsActive {
			if err := ensureUnique(ctx, tx, old.ServiceID, attrs, rowID); err != nil {
				return err
			}
		}
		next := old
		next.Attrs = attrs
		next.Rule = rule
		if err := tx.UpdateRow(ctx, next); err != nil {
			return err
		}
		if err := tx.DeleteTiers(ctx, rowID); err != nil {
			return err
		}
		if tr, ok := rule.(TieredRule); ok {
			if err := tx.InsertTiers(ctx, rowID, tr.Tiers()); err != nil {
				return err
			}
		}
		before, after = old, next
		return nil
	})
	if err != nil {
		return PriceRow{}, PriceRow{}, persistErr("replace row", err)
	}
	return before, after, nil
}

// DeactivatePriceRow hides a row from quotes and the catalog.
func (s *Store) DeactivatePriceRow(ctx context.Context, id int64) (PriceRow, error) {
	row, err := s.repo.GetRow(ctx, id)
	if err != nil {
		return PriceRow{}, persistErr("deactivate row", err)
	}
	if err := s.repo.SetRowActive(ctx, id, false); err != nil {
		return PriceRow{}, persistErr("deactivate row", err)
	}
	return row, nil
}

// DeletePriceRow removes a row and its tiers, returning what was deleted.
func (s *Store) DeletePriceRow(ctx context.Context, id int64) (PriceRow, error) {
	row, err := s.repo.GetRow(ctx, id)
	if err != nil {
		return PriceRow{}, persistErr("delete row", err)
	}
	if err := s.repo.DeleteRow(ctx, id); err != nil {
		return PriceRow{}, persistErr("delete row", err)
	}
	return row, nil
}

// Snapshot loads an active service and its active rows in catalog order.
// Inactive services are reported as not found.
func (s *Store) Snapshot(ctx context.Context, slug string) (Snapshot, error) {
	svc, err := s.repo.GetServiceBySlug(ctx, slug)
	if err != nil {
		return Snapshot{}, persistErr("snapshot", err)
	}
	if !svc.IsActive {
		return Snapshot{}, fmt.Errorf("%w: service %q is inactive", ErrNotFound, slug)
	}
	rows, err := s.repo.ListRows(ctx, svc.ID, true)
	if err != nil {
		return Snapshot{}, persistErr("snapshot", err)
	}
	return Snapshot{Service: svc, Rows: rows}, nil
}

func ensureUnique(ctx context.Context, tx TxRepository, serviceID int64, attrs Attributes, self int64) error {
	id, err := tx.FindActiveRow(ctx, serviceID, attrs.Fingerprint())
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	case id != self:
		return fmt.Errorf("%w: row %d has %s", ErrDuplicate, id, attrs)
	}
	return nil
}

package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/printworks/storefront/internal/platform/db"
)

// Storage is the persistence contract behind Store.
type Storage interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	UpsertService(ctx context.Context, slug, name, category string) (Service, error)
	GetService(ctx context.Context, id int64) (Service, error)
	GetServiceBySlug(ctx context.Context, slug string) (Service, error)
	ListServices(ctx context.Context, filters ListFilters) ([]Service, error)
	DeleteService(ctx context.Context, id int64) error
	GetRow(ctx context.Context, id int64) (PriceRow, error)
	ListRows(ctx context.Context, serviceID int64, activeOnly bool) ([]PriceRow, error)
	SetRowActive(ctx context.Context, id int64, active bool) error
	DeleteRow(ctx context.Context, id int64) error
}

// TxRepository exposes the operations that run inside a row transaction.
type TxRepository interface {
	LockRow(ctx context.Context, id int64) (PriceRow, error)
	FindActiveRow(ctx context.Context, serviceID int64, attrKey string) (int64, error)
	InsertRow(ctx context.Context, row PriceRow) (PriceRow, error)
	UpdateRow(ctx context.Context, row PriceRow) error
	DeleteTiers(ctx context.Context, rowID int64) error
	InsertTiers(ctx context.Context, rowID int64, tiers []Tier) error
}

// Repository provides PostgreSQL backed persistence for services, price rows and tiers.
type Repository struct {
	pool db.Pool
	queries
}

// NewRepository constructs a repository.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool, queries: queries{q: pool}}
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &queries{q: tx})
	})
}

// queries runs statements against either the pool or a transaction.
type queries struct {
	q db.Querier
}

const serviceColumns = `id, slug, name, category, sort_order, is_active, configurator_enabled, calculator_enabled, created_at, updated_at`

const rowColumns = `id, service_id, attrs, rule_kind, fixed_price, unit_price, setup_fee, sort_order, is_active`

func scanService(row pgx.Row) (Service, error) {
	var s Service
	err := row.Scan(&s.ID, &s.Slug, &s.Name, &s.Category, &s.SortOrder, &s.IsActive,
		&s.ConfiguratorEnabled, &s.CalculatorEnabled, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Service{}, ErrNotFound
	}
	return s, err
}

func (r *queries) UpsertService(ctx context.Context, slug, name, category string) (Service, error) {
	const query = `
		INSERT INTO services (slug, name, category, sort_order)
		VALUES ($1, $2, $3, COALESCE((SELECT MAX(sort_order) + 1 FROM services), 0))
		ON CONFLICT (slug) DO UPDATE
		SET name = EXCLUDED.name, category = EXCLUDED.category, updated_at = NOW()
		RETURNING ` + serviceColumns
	s, err := scanService(r.q.QueryRow(ctx, query, slug, name, category))
	if err != nil {
		return Service{}, fmt.Errorf("upsert service: %w", err)
	}
	return s, nil
}

func (r *queries) GetService(ctx context.Context, id int64) (Service, error) {
	s, err := scanService(r.q.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	if err != nil {
		return Service{}, err
	}
	return s, nil
}

func (r *queries) GetServiceBySlug(ctx context.Context, slug string) (Service, error) {
	s, err := scanService(r.q.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE slug = $1`, slug))
	if err != nil {
		return Service{}, err
	}
	return s, nil
}

func (r *queries) ListServices(ctx context.Context, filters ListFilters) ([]Service, error) {
	var (
		clauses []string
		args    []any
	)
	if filters.Category != "" {
		args = append(args, filters.Category)
		clauses = append(clauses, fmt.Sprintf("category = $%d", len(args)))
	}
	if filters.ActiveOnly {
		clauses = append(clauses, "is_active")
	}
	query := `SELECT ` + serviceColumns + ` FROM services`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY sort_order, id`

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *queries) DeleteService(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// rowRecord is the column-level shape of a price row before its rule is built.
type rowRecord struct {
	row   PriceRow
	kind  string
	fixed decimal.NullDecimal
	unit  decimal.NullDecimal
	setup decimal.NullDecimal
}

func scanRow(row pgx.Row) (rowRecord, error) {
	var (
		rec   rowRecord
		attrs []byte
	)
	err := row.Scan(&rec.row.ID, &rec.row.ServiceID, &attrs, &rec.kind,
		&rec.fixed, &rec.unit, &rec.setup, &rec.row.SortOrder, &rec.row.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return rowRecord{}, ErrNotFound
	}
	if err != nil {
		return rowRecord{}, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &rec.row.Attrs); err != nil {
			return rowRecord{}, fmt.Errorf("decode attrs of row %d: %w", rec.row.ID, err)
		}
	}
	return rec, nil
}

// build turns stored columns back into a validated rule.
func (rec rowRecord) build(tiers []Tier) (PriceRow, error) {
	kind, err := ParseRuleKind(rec.kind)
	if err != nil {
		return PriceRow{}, err
	}
	setup := decimal.Zero
	if rec.setup.Valid {
		setup = rec.setup.Decimal
	}
	var rule Rule
	switch kind {
	case KindFixed:
		rule, err = NewFixedRule(rec.fixed.Decimal)
	case KindPerUnit:
		rule, err = NewPerUnitRule(rec.unit.Decimal, setup)
	case KindTiers:
		rule, err = NewTieredRule(tiers, setup)
	}
	if err != nil {
		return PriceRow{}, fmt.Errorf("row %d: %w", rec.row.ID, err)
	}
	row := rec.row
	row.Rule = rule
	return row, nil
}

// ruleColumns flattens a rule into its stored columns.
func ruleColumns(rule Rule) (kind string, fixed, unit, setup decimal.NullDecimal, tiers []Tier) {
	switch v := rule.(type) {
	case FixedRule:
		fixed = decimal.NewNullDecimal(v.Total())
	case PerUnitRule:
		unit = decimal.NewNullDecimal(v.Unit())
		setup = decimal.NewNullDecimal(v.Setup())
	case TieredRule:
		setup = decimal.NewNullDecimal(v.Setup())
		tiers = v.Tiers()
	}
	return string(rule.Kind()), fixed, unit, setup, tiers
}

func (r *queries) tiersFor(ctx context.Context, rowIDs []int64) (map[int64][]Tier, error) {
	out := make(map[int64][]Tier)
	if len(rowIDs) == 0 {
		return out, nil
	}
	rows, err := r.q.Query(ctx, `
		SELECT id, row_id, qty, unit_price
		FROM price_tiers
		WHERE row_id = ANY($1)
		ORDER BY row_id, qty`, rowIDs)
	if err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t Tier
		if err := rows.Scan(&t.ID, &t.RowID, &t.Qty, &t.UnitPrice); err != nil {
			return nil, err
		}
		out[t.RowID] = append(out[t.RowID], t)
	}
	return out, rows.Err()
}

func (r *queries) getRow(ctx context.Context, query string, id int64) (PriceRow, error) {
	rec, err := scanRow(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return PriceRow{}, err
	}
	tiers, err := r.tiersFor(ctx, []int64{id})
	if err != nil {
		return PriceRow{}, err
	}
	return rec.build(tiers[id])
}

func (r *queries) GetRow(ctx context.Context, id int64) (PriceRow, error) {
	return r.getRow(ctx, `SELECT `+rowColumns+` FROM price_rows WHERE id = $1`, id)
}

// LockRow loads a row and holds its lock until the transaction ends.
func (r *queries) LockRow(ctx context.Context, id int64) (PriceRow, error) {
	return r.getRow(ctx, `SELECT `+rowColumns+` FROM price_rows WHERE id = $1 FOR UPDATE`, id)
}

// ListRows returns the rows of a service in catalog order.
func (r *queries) ListRows(ctx context.Context, serviceID int64, activeOnly bool) ([]PriceRow, error) {
	query := `SELECT ` + rowColumns + ` FROM price_rows WHERE service_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY sort_order, id`

	rows, err := r.q.Query(ctx, query, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	var (
		records []rowRecord
		ids     []int64
	)
	for rows.Next() {
		rec, err := scanRow(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		records = append(records, rec)
		if rec.kind == string(KindTiers) {
			ids = append(ids, rec.row.ID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tiers, err := r.tiersFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]PriceRow, 0, len(records))
	for _, rec := range records {
		row, err := rec.build(tiers[rec.row.ID])
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// FindActiveRow returns the id of the active row holding attrKey, or ErrNotFound.
func (r *queries) FindActiveRow(ctx context.Context, serviceID int64, attrKey string) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx,
		`SELECT id FROM price_rows WHERE service_id = $1 AND attr_key = $2 AND is_active`,
		serviceID, attrKey).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("find active row: %w", err)
	}
	return id, nil
}

// InsertRow appends the row to the end of the service's catalog order.
func (r *queries) InsertRow(ctx context.Context, row PriceRow) (PriceRow, error) {
	attrs, err := json.Marshal(row.Attrs)
	if err != nil {
		return PriceRow{}, err
	}
	kind, fixed, unit, setup, _ := ruleColumns(row.Rule)
	const query = `
		INSERT INTO price_rows (service_id, attrs, attr_key, rule_kind, fixed_price, unit_price, setup_fee, sort_order, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7,
		        COALESCE((SELECT MAX(sort_order) + 1 FROM price_rows WHERE service_id = $1), 0), TRUE)
		RETURNING id, sort_order`
	err = r.q.QueryRow(ctx, query, row.ServiceID, attrs, row.Attrs.Fingerprint(), kind, fixed, unit, setup).
		Scan(&row.ID, &row.SortOrder)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return PriceRow{}, ErrDuplicate
		}
		return PriceRow{}, fmt.Errorf("insert row: %w", err)
	}
	row.IsActive = true
	return row, nil
}

// UpdateRow overwrites the attributes and rule columns of a row.
func (r *queries) UpdateRow(ctx context.Context, row PriceRow) error {
	attrs, err := json.Marshal(row.Attrs)
	if err != nil {
		return err
	}
	kind, fixed, unit, setup, _ := ruleColumns(row.Rule)
	tag, err := r.q.Exec(ctx, `
		UPDATE price_rows
		SET attrs = $2, attr_key = $3, rule_kind = $4, fixed_price = $5, unit_price = $6, setup_fee = $7, updated_at = NOW()
		WHERE id = $1`,
		row.ID, attrs, row.Attrs.Fingerprint(), kind, fixed, unit, setup)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update row: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *queries) DeleteTiers(ctx context.Context, rowID int64) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM price_tiers WHERE row_id = $1`, rowID); err != nil {
		return fmt.Errorf("delete tiers: %w", err)
	}
	return nil
}

// InsertTiers bulk-loads tiers with COPY.
func (r *queries) InsertTiers(ctx context.Context, rowID int64, tiers []Tier) error {
	if len(tiers) == 0 {
		return nil
	}
	_, err := r.q.CopyFrom(ctx, pgx.Identifier{"price_tiers"}, []string{"row_id", "qty", "unit_price"},
		pgx.CopyFromSlice(len(tiers), func(i int) ([]any, error) {
			return []any{rowID, tiers[i].Qty, tiers[i].UnitPrice}, nil
		}))
	if err != nil {
		return fmt.Errorf("insert tiers: %w", err)
	}
	return nil
}

func (r *queries) SetRowActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.q.Exec(ctx, `UPDATE price_rows SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("set row active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *queries) DeleteRow(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM price_rows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete row: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

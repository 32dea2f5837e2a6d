package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rowCols = []string{"id", "service_id", "attrs", "rule_kind", "fixed_price", "unit_price", "setup_fee", "sort_order", "is_active"}

var serviceCols = []string{"id", "slug", "name", "category", "sort_order", "is_active", "configurator_enabled", "calculator_enabled", "created_at", "updated_at"}

var repeatableRead = pgx.TxOptions{IsoLevel: pgx.RepeatableRead}

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(d(s))
}

func expectLockedFixedRow(mock pgxmock.PgxPoolIface, id, serviceID int64) {
	mock.ExpectQuery("FROM price_rows WHERE id = .* FOR UPDATE").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(rowCols).
			AddRow(id, serviceID, []byte(`{"Size":"A5"}`), "fixed", nd("40"), decimal.NullDecimal{}, decimal.NullDecimal{}, 0, true))
	mock.ExpectQuery("FROM price_tiers").
		WithArgs([]int64{id}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "row_id", "qty", "unit_price"}))
}

func TestReplacePriceRowTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	attrs := NewAttributes("Size", "A5", "Sides", "2")
	rule := mustRule(NewTieredRule(tiers(100, "0.30", 500, "0.20"), decimal.Zero))

	mock.ExpectBeginTx(repeatableRead)
	expectLockedFixedRow(mock, 7, 3)
	mock.ExpectQuery("SELECT id FROM price_rows WHERE service_id").
		WithArgs(int64(3), attrs.Fingerprint()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectExec("UPDATE price_rows").
		WithArgs(int64(7), pgxmock.AnyArg(), attrs.Fingerprint(), "tiers", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("DELETE FROM price_tiers").WithArgs(int64(7)).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"price_tiers"}, []string{"row_id", "qty", "unit_price"}).WillReturnResult(2)
	mock.ExpectCommit()

	store := NewStore(NewRepository(mock))
	before, after, err := store.ReplacePriceRow(context.Background(), 7, attrs, rule)
	require.NoError(t, err)
	assert.Equal(t, KindFixed, before.Rule.Kind())
	assert.Equal(t, KindTiers, after.Rule.Kind())
	assert.Equal(t, int64(3), after.ServiceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplacePriceRowRollsBackOnTierFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	attrs := NewAttributes("Size", "A5")
	rule := mustRule(NewTieredRule(tiers(100, "0.30"), decimal.Zero))

	mock.ExpectBeginTx(repeatableRead)
	expectLockedFixedRow(mock, 7, 3)
	mock.ExpectQuery("SELECT id FROM price_rows WHERE service_id").
		WithArgs(int64(3), attrs.Fingerprint()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec("UPDATE price_rows").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("DELETE FROM price_tiers").WithArgs(int64(7)).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"price_tiers"}, []string{"row_id", "qty", "unit_price"}).
		WillReturnError(errors.New("copy interrupted"))
	mock.ExpectRollback()

	store := NewStore(NewRepository(mock))
	_, _, err = store.ReplacePriceRow(context.Background(), 7, attrs, rule)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplacePriceRowUnknownRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(repeatableRead)
	mock.ExpectQuery("FROM price_rows WHERE id = .* FOR UPDATE").
		WithArgs(int64(99)).
		WillReturnRows(pgxmock.NewRows(rowCols))
	mock.ExpectRollback()

	store := NewStore(NewRepository(mock))
	_, _, err = store.ReplacePriceRow(context.Background(), 99, NewAttributes("Size", "A5"), mustRule(NewFixedRule(d("10"))))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRowsLoadsTiers(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM price_rows WHERE service_id = .* AND is_active ORDER BY sort_order, id").
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(rowCols).
			AddRow(int64(1), int64(1), []byte(`{"Size":"A4","Sides":"1"}`), "perUnit", decimal.NullDecimal{}, nd("0.12"), nd("15"), 0, true).
			AddRow(int64(2), int64(1), []byte(`{"Size":"A5","Sides":"1"}`), "tiers", decimal.NullDecimal{}, decimal.NullDecimal{}, decimal.NullDecimal{}, 1, true))
	mock.ExpectQuery("FROM price_tiers").
		WithArgs([]int64{2}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "row_id", "qty", "unit_price"}).
			AddRow(int64(20), int64(2), int64(100), d("0.50")).
			AddRow(int64(21), int64(2), int64(250), d("0.40")))

	rows, err := NewRepository(mock).ListRows(context.Background(), 1, true)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	per, ok := rows[0].Rule.(PerUnitRule)
	require.True(t, ok)
	assert.True(t, per.Setup().Equal(d("15")))
	assert.Equal(t, []string{"Size", "Sides"}, rows[0].Attrs.Keys())

	tr, ok := rows[1].Rule.(TieredRule)
	require.True(t, ok)
	assert.Len(t, tr.Tiers(), 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertServiceOnConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO services .* ON CONFLICT \\(slug\\) DO UPDATE").
		WithArgs("flyers", "Flyers", "Print").
		WillReturnRows(pgxmock.NewRows(serviceCols).AddRow(int64(4), "flyers", "Flyers", "Print", 2, true, false, true, now, now))

	svc, err := NewStore(NewRepository(mock)).UpsertService(context.Background(), "flyers", "Flyers", "Print")
	require.NoError(t, err)
	assert.Equal(t, int64(4), svc.ID)
	assert.True(t, svc.CalculatorEnabled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRowMapsUniqueViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO price_rows").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "price_rows_active_attrs_uq"})

	_, err = NewRepository(mock).InsertRow(context.Background(), PriceRow{
		ServiceID: 1,
		Attrs:     NewAttributes("Size", "A4"),
		Rule:      mustRule(NewFixedRule(d("10"))),
	})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteServiceNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM services").WithArgs(int64(8)).WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err = NewStore(NewRepository(mock)).DeleteService(context.Background(), 8)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

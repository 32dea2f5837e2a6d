package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printworks/storefront/internal/history"
)

// eventLog collects history writes and cache bumps in the order they happen.
type eventLog struct {
	events    []string
	changes   []history.Change
	recordErr error
}

func (l *eventLog) Record(_ context.Context, c history.Change) (history.Entry, error) {
	if l.recordErr != nil {
		return history.Entry{}, l.recordErr
	}
	l.events = append(l.events, "history:"+string(c.Type))
	l.changes = append(l.changes, c)
	return history.Entry{ID: int64(len(l.changes)), ServiceID: c.ServiceID, Type: c.Type}, nil
}

func (l *eventLog) History(_ context.Context, serviceID int64, limit int) ([]history.Entry, error) {
	var out []history.Entry
	for i := len(l.changes) - 1; i >= 0 && len(out) < limit; i-- {
		if l.changes[i].ServiceID == serviceID {
			out = append(out, history.Entry{ID: int64(i + 1), ServiceID: serviceID, Type: l.changes[i].Type})
		}
	}
	return out, nil
}

func (l *eventLog) Invalidate(context.Context) error {
	l.events = append(l.events, "invalidate")
	return nil
}

func newTestAdmin() (*Admin, *eventLog, *memStorage) {
	mem := newMemStorage()
	events := &eventLog{}
	return NewAdmin(NewStore(mem), events, events, nil), events, mem
}

func TestAdminWritesHistoryThenInvalidates(t *testing.T) {
	admin, events, _ := newTestAdmin()
	ctx := context.Background()

	svc, err := admin.UpsertService(ctx, "flyers", "Flyers", "Print")
	require.NoError(t, err)
	row, err := admin.CreateRow(ctx, svc.ID, NewAttributes("Size", "A5"), mustRule(NewFixedRule(d("40"))))
	require.NoError(t, err)
	_, err = admin.ReplaceRow(ctx, row.ID, NewAttributes("Size", "A5"), mustRule(NewFixedRule(d("45"))))
	require.NoError(t, err)
	require.NoError(t, admin.DeactivateRow(ctx, row.ID))
	require.NoError(t, admin.DeleteRow(ctx, row.ID))
	require.NoError(t, admin.DeleteService(ctx, svc.ID))

	assert.Equal(t, []string{
		"history:service_upsert", "invalidate",
		"history:row_create", "invalidate",
		"history:row_update", "invalidate",
		"history:row_deactivate", "invalidate",
		"history:row_delete", "invalidate",
		"history:service_delete", "invalidate",
	}, events.events)

	update := events.changes[2]
	require.NotNil(t, update.RowID)
	assert.Equal(t, row.ID, *update.RowID)
	assert.NotNil(t, update.OldData)
	assert.NotNil(t, update.NewData)

	deleted := events.changes[4]
	assert.NotNil(t, deleted.OldData)
	assert.Nil(t, deleted.NewData)
}

func TestAdminUpsertDescribesCreateAndUpdate(t *testing.T) {
	admin, events, _ := newTestAdmin()
	ctx := context.Background()

	_, err := admin.UpsertService(ctx, "cards", "Cards", "Print")
	require.NoError(t, err)
	_, err = admin.UpsertService(ctx, "cards", "Business Cards", "Print")
	require.NoError(t, err)

	require.Len(t, events.changes, 2)
	assert.Contains(t, events.changes[0].Description, "Created")
	assert.Nil(t, events.changes[0].OldData)
	assert.Contains(t, events.changes[1].Description, "Updated")
	assert.NotNil(t, events.changes[1].OldData)
}

func TestAdminFailedWriteRecordsNothing(t *testing.T) {
	admin, events, _ := newTestAdmin()
	ctx := context.Background()

	_, err := admin.CreateRow(ctx, 42, NewAttributes("Size", "A5"), mustRule(NewFixedRule(d("40"))))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = admin.CreateRow(ctx, 42, NewAttributes("Size", "A5"), mustRule(NewFixedRule(d("0"))))
	assert.True(t, IsValidation(err))
	assert.ErrorIs(t, admin.DeleteRow(ctx, 7), ErrNotFound)
	assert.Empty(t, events.events)
}

func TestAdminReportsHistoryFailure(t *testing.T) {
	admin, events, mem := newTestAdmin()
	events.recordErr = errors.New("history table missing")

	svc, err := admin.UpsertService(context.Background(), "flyers", "Flyers", "Print")
	assert.Error(t, err)
	assert.Equal(t, "flyers", svc.Slug, "the write itself is kept")
	assert.Len(t, mem.services, 1)
	assert.NotContains(t, events.events, "invalidate")
}

func TestAdminRecordImport(t *testing.T) {
	admin, events, _ := newTestAdmin()
	ctx := context.Background()

	err := admin.RecordImport(ctx, ImportSummary{RunID: "run-1", Total: 3, Imported: 2, Skipped: 1, Services: map[string]int64{"flyers": 1, "cards": 2}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"history:import", "history:import", "invalidate"}, events.events)

	events.events = nil
	err = admin.RecordImport(ctx, ImportSummary{RunID: "run-2", Total: 1, Skipped: 1, Services: map[string]int64{"flyers": 1}})
	require.NoError(t, err)
	assert.Equal(t, []string{"history:import"}, events.events, "nothing imported, nothing invalidated")
}

func TestAdminHistoryBySlug(t *testing.T) {
	admin, _, _ := newTestAdmin()
	ctx := context.Background()

	svc, err := admin.UpsertService(ctx, "flyers", "Flyers", "Print")
	require.NoError(t, err)
	_, err = admin.CreateRow(ctx, svc.ID, NewAttributes("Size", "A5"), mustRule(NewFixedRule(d("40"))))
	require.NoError(t, err)

	got, entries, err := admin.History(ctx, "flyers", 50)
	require.NoError(t, err)
	assert.Equal(t, svc.ID, got.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, history.RowCreate, entries[0].Type)

	_, _, err = admin.History(ctx, "posters", 50)
	assert.ErrorIs(t, err, ErrNotFound)
}

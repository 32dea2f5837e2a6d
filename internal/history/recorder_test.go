package history

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printworks/storefront/internal/platform/httpx"
)

type stubStore struct {
	inserted  []Entry
	lastLimit int
	insertErr error
}

func (s *stubStore) Insert(_ context.Context, e Entry) (Entry, error) {
	if s.insertErr != nil {
		return Entry{}, s.insertErr
	}
	e.ID = int64(len(s.inserted) + 1)
	s.inserted = append(s.inserted, e)
	return e, nil
}

func (s *stubStore) List(_ context.Context, _ int64, limit int) ([]Entry, error) {
	s.lastLimit = limit
	out := make([]Entry, 0, len(s.inserted))
	for i := len(s.inserted) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.inserted[i])
	}
	return out, nil
}

func TestRecordEncodesSnapshots(t *testing.T) {
	store := &stubStore{}
	rec := NewRecorder(store, nil)

	entry, err := rec.Record(context.Background(), Change{
		ServiceID:   3,
		RowID:       RowRef(11),
		Type:        RowUpdate,
		Description: "Updated A4 single sided",
		OldData:     map[string]string{"Size": "A4"},
		NewData:     map[string]string{"Size": "A5"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.ID)
	assert.JSONEq(t, `{"Size":"A4"}`, string(entry.OldData))
	assert.JSONEq(t, `{"Size":"A5"}`, string(entry.NewData))
	require.NotNil(t, entry.RowID)
	assert.Equal(t, int64(11), *entry.RowID)
}

func TestRecordAllowsMissingSnapshots(t *testing.T) {
	store := &stubStore{}
	rec := NewRecorder(store, nil)

	entry, err := rec.Record(context.Background(), Change{ServiceID: 1, Type: RowDelete, Description: "Deleted row 9", RowID: RowRef(9)})
	require.NoError(t, err)
	assert.Nil(t, entry.OldData)
	assert.Nil(t, entry.NewData)
}

func TestRecordRequiresFields(t *testing.T) {
	rec := NewRecorder(&stubStore{}, nil)
	cases := []Change{
		{Type: RowCreate, Description: "x"},
		{ServiceID: 1, Description: "x"},
		{ServiceID: 1, Type: RowCreate, Description: "  "},
	}
	for _, c := range cases {
		_, err := rec.Record(context.Background(), c)
		assert.ErrorIs(t, err, httpx.ErrValidation)
	}
}

func TestRecordPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("connection refused")
	rec := NewRecorder(&stubStore{insertErr: boom}, nil)
	_, err := rec.Record(context.Background(), Change{ServiceID: 1, Type: Import, Description: "Imported 3 rows"})
	assert.ErrorIs(t, err, boom)
}

func TestHistoryLimits(t *testing.T) {
	store := &stubStore{}
	rec := NewRecorder(store, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := rec.Record(ctx, Change{ServiceID: 1, Type: RowCreate, Description: "row"})
		require.NoError(t, err)
	}

	entries, err := rec.History(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, store.lastLimit)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(3), entries[0].ID, "newest first")

	_, err = rec.History(ctx, 1, 1000)
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, store.lastLimit)

	entries, err = rec.History(ctx, 1, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

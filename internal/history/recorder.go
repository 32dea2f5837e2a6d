package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/printworks/storefront/internal/platform/httpx"
)

// Store is the persistence used by Recorder.
type Store interface {
	Insert(ctx context.Context, e Entry) (Entry, error)
	List(ctx context.Context, serviceID int64, limit int) ([]Entry, error)
}

// Recorder writes and reads the change log.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder returns a recorder. A nil logger discards output.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{store: store, logger: logger}
}

// Record appends a change. It only fails on missing fields or storage errors.
func (r *Recorder) Record(ctx context.Context, c Change) (Entry, error) {
	if r == nil || r.store == nil {
		return Entry{}, fmt.Errorf("history: recorder not initialised")
	}
	if c.ServiceID <= 0 || c.Type == "" || strings.TrimSpace(c.Description) == "" {
		return Entry{}, fmt.Errorf("history: service, type and description are required: %w", httpx.ErrValidation)
	}
	oldData, err := encode(c.OldData)
	if err != nil {
		return Entry{}, fmt.Errorf("history: encode old data: %w", err)
	}
	newData, err := encode(c.NewData)
	if err != nil {
		return Entry{}, fmt.Errorf("history: encode new data: %w", err)
	}
	entry, err := r.store.Insert(ctx, Entry{
		ServiceID:   c.ServiceID,
		RowID:       c.RowID,
		Type:        c.Type,
		Description: c.Description,
		OldData:     oldData,
		NewData:     newData,
	})
	if err != nil {
		return Entry{}, err
	}
	r.logger.Debug("change recorded", slog.Int64("service_id", c.ServiceID), slog.String("type", string(c.Type)))
	return entry, nil
}

// History lists entries newest first. A non-positive limit means DefaultLimit
// and anything above MaxLimit is capped.
func (r *Recorder) History(ctx context.Context, serviceID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return r.store.List(ctx, serviceID, limit)
}

func encode(v any) (json.RawMessage, error) {
	switch data := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return data, nil
	}
	return json.Marshal(v)
}

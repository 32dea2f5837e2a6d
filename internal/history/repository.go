package history

import (
	"context"
	"fmt"

	"github.com/printworks/storefront/internal/platform/db"
)

// Repository persists entries in change_history.
type Repository struct {
	q db.Querier
}

// NewRepository constructs a repository.
func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

// Insert appends an entry and fills in its id and timestamp.
func (r *Repository) Insert(ctx context.Context, e Entry) (Entry, error) {
	const query = `
		INSERT INTO change_history (service_id, row_id, change_type, description, old_data, new_data)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	err := r.q.QueryRow(ctx, query, e.ServiceID, e.RowID, string(e.Type), e.Description,
		nullJSON(e.OldData), nullJSON(e.NewData)).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("history: insert: %w", err)
	}
	return e, nil
}

// List returns up to limit entries of a service, newest first.
func (r *Repository) List(ctx context.Context, serviceID int64, limit int) ([]Entry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, service_id, row_id, change_type, description, old_data, new_data, created_at
		FROM change_history
		WHERE service_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, serviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			changeType string
			oldData    []byte
			newData    []byte
		)
		if err := rows.Scan(&e.ID, &e.ServiceID, &e.RowID, &changeType, &e.Description, &oldData, &newData, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.Type = ChangeType(changeType)
		e.OldData = oldData
		e.NewData = newData
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

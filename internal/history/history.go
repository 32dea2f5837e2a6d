// Package history keeps the append-only change log of pricing edits.
package history

import (
	"encoding/json"
	"time"
)

// ChangeType labels what kind of edit an entry describes.
type ChangeType string

const (
	ServiceUpsert ChangeType = "service_upsert"
	ServiceDelete ChangeType = "service_delete"
	RowCreate     ChangeType = "row_create"
	RowUpdate     ChangeType = "row_update"
	RowDeactivate ChangeType = "row_deactivate"
	RowDelete     ChangeType = "row_delete"
	Import        ChangeType = "import"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Change is an edit to record. OldData and NewData are marshalled to JSON
// when set. RowID may point at a row that no longer exists.
type Change struct {
	ServiceID   int64
	RowID       *int64
	Type        ChangeType
	Description string
	OldData     any
	NewData     any
}

// Entry is a stored change.
type Entry struct {
	ID          int64           `json:"id"`
	ServiceID   int64           `json:"serviceId"`
	RowID       *int64          `json:"rowId,omitempty"`
	Type        ChangeType      `json:"changeType"`
	Description string          `json:"description"`
	OldData     json.RawMessage `json:"oldData,omitempty"`
	NewData     json.RawMessage `json:"newData,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// RowRef is a convenience for building Change.RowID.
func RowRef(id int64) *int64 {
	return &id
}

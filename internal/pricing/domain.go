package pricing

import (
	"encoding/json"
	"time"
)

// Service is a sellable print product such as business cards or flyers.
type Service struct {
	ID                  int64     `json:"id"`
	Slug                string    `json:"slug"`
	Name                string    `json:"name"`
	Category            string    `json:"category"`
	SortOrder           int       `json:"sortOrder"`
	IsActive            bool      `json:"isActive"`
	ConfiguratorEnabled bool      `json:"configuratorEnabled"`
	CalculatorEnabled   bool      `json:"calculatorEnabled"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// PriceRow prices one attribute combination of a service.
type PriceRow struct {
	ID        int64
	ServiceID int64
	Attrs     Attributes
	Rule      Rule
	SortOrder int
	IsActive  bool
}

type priceRowJSON struct {
	ID        int64           `json:"id"`
	ServiceID int64           `json:"serviceId"`
	Attrs     Attributes      `json:"attrs"`
	Rule      json.RawMessage `json:"rule"`
	SortOrder int             `json:"sortOrder"`
	IsActive  bool            `json:"isActive"`
}

func (r PriceRow) MarshalJSON() ([]byte, error) {
	rule, err := MarshalRule(r.Rule)
	if err != nil {
		return nil, err
	}
	return json.Marshal(priceRowJSON{
		ID:        r.ID,
		ServiceID: r.ServiceID,
		Attrs:     r.Attrs,
		Rule:      rule,
		SortOrder: r.SortOrder,
		IsActive:  r.IsActive,
	})
}

func (r *PriceRow) UnmarshalJSON(data []byte) error {
	var doc priceRowJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*r = PriceRow{
		ID:        doc.ID,
		ServiceID: doc.ServiceID,
		Attrs:     doc.Attrs,
		SortOrder: doc.SortOrder,
		IsActive:  doc.IsActive,
	}
	if len(doc.Rule) == 0 || string(doc.Rule) == "null" {
		return nil
	}
	rule, err := UnmarshalRule(doc.Rule)
	if err != nil {
		return err
	}
	r.Rule = rule
	return nil
}

// Snapshot is a service together with its active rows in catalog order.
// It is what the quote engine and catalog read, and what the cache stores.
type Snapshot struct {
	Service Service    `json:"service"`
	Rows    []PriceRow `json:"rows"`
}

// ListFilters narrows ListServices.
type ListFilters struct {
	Category   string
	ActiveOnly bool
}

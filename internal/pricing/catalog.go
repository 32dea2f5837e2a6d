package pricing

import (
	"sort"
	"strings"
)

// preferredKeys fixes the presentation order of well-known option keys.
var preferredKeys = []string{"Size", "Sides", "Paper", "Stock", "GSM", "Colour", "Lamination", "Fold", "Corners"}

var reservedKeys = map[string]struct{}{
	"price":      {},
	"net price":  {},
	"vat":        {},
	"price +vat": {},
	"qty":        {},
}

// IsReservedKey reports whether key names a price or quantity column rather
// than a selectable option.
func IsReservedKey(key string) bool {
	_, ok := reservedKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// Catalog lists the selectable options of a service.
type Catalog struct {
	OptionKeys []string            `json:"optionKeys"`
	Options    map[string][]string `json:"options"`
}

// BuildCatalog collects the distinct option values across the active rows.
func BuildCatalog(rows []PriceRow) Catalog {
	seen := make(map[string]map[string]struct{})
	for _, row := range rows {
		if !row.IsActive {
			continue
		}
		for _, key := range row.Attrs.Keys() {
			if IsReservedKey(key) {
				continue
			}
			value, _ := row.Attrs.Get(key)
			if seen[key] == nil {
				seen[key] = make(map[string]struct{})
			}
			seen[key][value] = struct{}{}
		}
	}

	cat := Catalog{OptionKeys: orderKeys(seen), Options: make(map[string][]string, len(seen))}
	for key, values := range seen {
		list := make([]string, 0, len(values))
		for v := range values {
			list = append(list, v)
		}
		sort.Strings(list)
		cat.Options[key] = list
	}
	return cat
}

func orderKeys(seen map[string]map[string]struct{}) []string {
	keys := make([]string, 0, len(seen))
	placed := make(map[string]bool, len(seen))
	for _, k := range preferredKeys {
		if _, ok := seen[k]; ok {
			keys = append(keys, k)
			placed[k] = true
		}
	}
	rest := make([]string, 0, len(seen))
	for k := range seen {
		if !placed[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

package importer

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

type field int

const (
	fieldNone field = iota
	fieldCategory
	fieldService
	fieldSlug
	fieldUnit
	fieldFixed
	fieldSetup
	fieldQty
	fieldPrice
	fieldReserved
)

// aliases maps case-folded header names to the field they feed. "price" is
// both the single-tier price next to Qty and a unit price alias.
var aliases = map[string]field{
	"category":   fieldCategory,
	"group":      fieldCategory,
	"service":    fieldService,
	"name":       fieldService,
	"slug":       fieldSlug,
	"unit":       fieldUnit,
	"unitprice":  fieldUnit,
	"price":      fieldPrice,
	"fixed":      fieldFixed,
	"fixedprice": fieldFixed,
	"total":      fieldFixed,
	"setup":      fieldSetup,
	"setupfee":   fieldSetup,
	"qty":        fieldQty,
	"net price":  fieldReserved,
	"vat":        fieldReserved,
	"price +vat": fieldReserved,
}

var tierHeader = regexp.MustCompile(`^q\s*(\d+)$`)

var folder = cases.Fold()

func fold(h string) string {
	return strings.TrimSpace(folder.String(strings.TrimSpace(h)))
}

type tierColumn struct {
	index int
	qty   int64
}

// layout records where each known column sits in the header.
type layout struct {
	fields map[field]int
	tiers  []tierColumn
	attrs  []int
	names  []string
}

func parseHeader(header []string) layout {
	l := layout{fields: make(map[field]int), names: make([]string, len(header))}
	for i, raw := range header {
		name := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
		l.names[i] = name
		if name == "" {
			continue
		}
		key := fold(name)
		if f, ok := aliases[key]; ok {
			if _, seen := l.fields[f]; !seen {
				l.fields[f] = i
			}
			continue
		}
		if m := tierHeader.FindStringSubmatch(key); m != nil {
			qty, err := strconv.ParseInt(m[1], 10, 64)
			if err == nil && qty > 0 {
				l.tiers = append(l.tiers, tierColumn{index: i, qty: qty})
			}
			continue
		}
		l.attrs = append(l.attrs, i)
	}
	sort.SliceStable(l.tiers, func(a, b int) bool { return l.tiers[a].qty < l.tiers[b].qty })
	return l
}

func (l layout) has(f field) bool {
	_, ok := l.fields[f]
	return ok
}

// cell returns the trimmed value of field f in record, or "".
func (l layout) cell(record []string, f field) string {
	i, ok := l.fields[f]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// unitCell prefers an explicit Unit/UnitPrice column over Price.
func (l layout) unitCell(record []string) string {
	if l.has(fieldUnit) {
		return l.cell(record, fieldUnit)
	}
	return l.cell(record, fieldPrice)
}

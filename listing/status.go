package listing

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status is the availability state of a property listing.
type Status string

const (
	StatusAvailable Status = "available"
	StatusActive    Status = "active"
	StatusPending   Status = "pending"
	StatusSold      Status = "sold"
	StatusRented    Status = "rented"
	StatusLeased    Status = "leased"
	StatusRejected  Status = "rejected"
)

// ListingType is the transaction category of a property.
type ListingType string

const (
	ListingTypeSale  ListingType = "sale"
	ListingTypeRent  ListingType = "rent"
	ListingTypeLease ListingType = "lease"
)

// Normalize treats an absent listing type as a sale.
func (t ListingType) Normalize() ListingType {
	trimmed := ListingType(strings.ToLower(strings.TrimSpace(string(t))))
	if trimmed == "" {
		return ListingTypeSale
	}
	return trimmed
}

// StatusInfo is the display metadata for a status code.
type StatusInfo struct {
	Label string
	Color string
	Order int
}

var catalog = map[Status]StatusInfo{
	StatusPending:   {Label: "Pending Approval", Color: "warning", Order: 0},
	StatusAvailable: {Label: "Available", Color: "success", Order: 1},
	StatusActive:    {Label: "Active", Color: "success", Order: 2},
	StatusSold:      {Label: "Sold", Color: "secondary", Order: 3},
	StatusRented:    {Label: "Rented", Color: "info", Order: 4},
	StatusLeased:    {Label: "Leased", Color: "info", Order: 5},
	StatusRejected:  {Label: "Rejected", Color: "destructive", Order: 6},
}

// Info returns the catalog entry for s. Unknown codes get a derived label and
// the neutral color, ordered after every known status.
func Info(s Status) (StatusInfo, bool) {
	if info, ok := catalog[s]; ok {
		return info, true
	}
	return StatusInfo{Label: titleCase(string(s)), Color: "default", Order: len(catalog)}, false
}

// LabelFor returns the human label for s.
func LabelFor(s Status) string {
	info, _ := Info(s)
	return info.Label
}

// ColorFor returns the color token for s.
func ColorFor(s Status) string {
	info, _ := Info(s)
	return info.Color
}

// Statuses lists the known statuses in display order.
func Statuses() []Status {
	out := make([]Status, 0, len(catalog))
	for s := range catalog {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return catalog[out[i]].Order < catalog[out[j]].Order
	})
	return out
}

// IsKnown reports whether s is part of the catalog.
func (s Status) IsKnown() bool {
	_, ok := catalog[s]
	return ok
}

// IsTerminal reports whether no transition is ever offered out of s.
func (s Status) IsTerminal() bool {
	return s == StatusSold
}

var titleCaser = cases.Title(language.English)

func titleCase(raw string) string {
	words := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	if len(words) == 0 {
		return ""
	}
	return titleCaser.String(strings.ToLower(strings.Join(words, " ")))
}

// Package customer holds the customer directory and the picker used to attach
// a customer to a forward status transition.
package customer

import (
	"fmt"
	"strings"
)

// Profile carries the optional personal details of a customer account.
type Profile struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Customer is a read-only view of an account with role customer.
type Customer struct {
	ID      string   `json:"id"`
	Email   string   `json:"email"`
	Profile *Profile `json:"profile,omitempty"`
}

// FullName joins the first and last name. Missing parts are empty strings.
func (c Customer) FullName() string {
	if c.Profile == nil {
		return ""
	}
	return strings.TrimSpace(c.Profile.FirstName + " " + c.Profile.LastName)
}

// Phone returns the profile phone or an empty string.
func (c Customer) Phone() string {
	if c.Profile == nil {
		return ""
	}
	return c.Profile.Phone
}

// DisplayName is the name shown in the picker, falling back to the email.
func (c Customer) DisplayName() string {
	if name := c.FullName(); name != "" {
		return name
	}
	return c.Email
}

// String renders "Jane Doe <jane@example.com>".
func (c Customer) String() string {
	name := c.FullName()
	if name == "" {
		return c.Email
	}
	return fmt.Sprintf("%s <%s>", name, c.Email)
}

// MatchField names a customer attribute searched by the picker.
type MatchField string

const (
	MatchName  MatchField = "name"
	MatchEmail MatchField = "email"
	MatchPhone MatchField = "phone"
)

// DefaultMatchFields is the match set used when none is configured.
var DefaultMatchFields = []MatchField{MatchName, MatchEmail}

// ParseMatchFields validates configured field names. An empty list yields
// DefaultMatchFields.
func ParseMatchFields(names []string) ([]MatchField, error) {
	if len(names) == 0 {
		return append([]MatchField(nil), DefaultMatchFields...), nil
	}
	out := make([]MatchField, 0, len(names))
	seen := map[MatchField]bool{}
	for _, raw := range names {
		f := MatchField(strings.ToLower(strings.TrimSpace(raw)))
		switch f {
		case MatchName, MatchEmail, MatchPhone:
		default:
			return nil, fmt.Errorf("customer: unknown match field %q", raw)
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out, nil
}

// Matches reports whether query is a case-insensitive substring of the
// selected fields joined by single spaces, so a query may span from the name
// into the email. An empty query matches every customer.
func Matches(c Customer, query string, fields []MatchField) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		var v string
		switch f {
		case MatchName:
			v = c.FullName()
		case MatchEmail:
			v = c.Email
		case MatchPhone:
			v = c.Phone()
		}
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Contains(strings.ToLower(strings.Join(parts, " ")), q)
}

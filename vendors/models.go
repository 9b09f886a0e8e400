// Package vendors exposes the accounts that own listings.
package vendors

import (
	"time"

	"squares/listing"
)

// Profile is a vendor account with its listing counts per status.
type Profile struct {
	UserID      string
	Email       string
	CompanyName string
	Verified    bool
	CreatedAt   time.Time
	Listings    map[listing.Status]int
}

// Occupied counts listings currently sold, rented or leased.
func (p Profile) Occupied() int {
	return p.Listings[listing.StatusSold] + p.Listings[listing.StatusRented] + p.Listings[listing.StatusLeased]
}

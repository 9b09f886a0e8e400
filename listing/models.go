package listing

import "time"

// Property mirrors the properties table.
type Property struct {
	ID                 string
	VendorID           string
	Title              string
	Status             Status
	ListingType        ListingType
	AssignedCustomerID *string
	RejectionReason    *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TransitionRequest is one confirmed status change. CustomerID is set only
// for forward transitions.
type TransitionRequest struct {
	PropertyID string
	NewStatus  Status
	CustomerID string
	Reason     string
}

// TransactionKind names the deal recorded by a forward transition.
type TransactionKind string

const (
	TransactionSale   TransactionKind = "sale"
	TransactionRental TransactionKind = "rental"
	TransactionLease  TransactionKind = "lease"
)

// KindFor maps an occupied status to the transaction it records.
func KindFor(s Status) (TransactionKind, bool) {
	switch s {
	case StatusSold:
		return TransactionSale, true
	case StatusRented:
		return TransactionRental, true
	case StatusLeased:
		return TransactionLease, true
	default:
		return "", false
	}
}

// HistoryEntry is an immutable status change recorded for a property.
type HistoryEntry struct {
	ID             int64
	PropertyID     string
	PreviousStatus Status
	NextStatus     Status
	ActorID        *string
	CustomerID     *string
	Reason         *string
	CreatedAt      time.Time
}

// Filters narrows property listings.
type Filters struct {
	VendorID    string
	Status      Status
	ListingType ListingType
	Page        int
	PageSize    int
	SortKey     string
	SortOrder   string
}

const (
	// OutboxTopicStatusChanged is published whenever a property changes status.
	OutboxTopicStatusChanged = "property.status_changed"
)

package apiclient

import (
	"encoding/json"
	"time"

	"squares/customer"
	"squares/listing"
)

// Envelope is the response wrapper used by every endpoint.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Property is the wire form of a listing.
type Property struct {
	ID                 string    `json:"id"`
	VendorID           string    `json:"vendorId"`
	Title              string    `json:"title"`
	Status             string    `json:"status"`
	StatusLabel        string    `json:"statusLabel"`
	StatusColor        string    `json:"statusColor"`
	ListingType        string    `json:"listingType"`
	AssignedCustomerID *string   `json:"assignedCustomerId,omitempty"`
	RejectionReason    *string   `json:"rejectionReason,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// PropertyFrom renders p for the wire.
func PropertyFrom(p listing.Property) Property {
	info, _ := listing.Info(p.Status)
	return Property{
		ID:                 p.ID,
		VendorID:           p.VendorID,
		Title:              p.Title,
		Status:             string(p.Status),
		StatusLabel:        info.Label,
		StatusColor:        info.Color,
		ListingType:        string(p.ListingType.Normalize()),
		AssignedCustomerID: p.AssignedCustomerID,
		RejectionReason:    p.RejectionReason,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

// Listing converts the wire form back to the domain type.
func (p Property) Listing() listing.Property {
	return listing.Property{
		ID:                 p.ID,
		VendorID:           p.VendorID,
		Title:              p.Title,
		Status:             listing.Status(p.Status),
		ListingType:        listing.ListingType(p.ListingType).Normalize(),
		AssignedCustomerID: p.AssignedCustomerID,
		RejectionReason:    p.RejectionReason,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

// StatusUpdate is the body of PATCH /api/properties/{id}/status.
type StatusUpdate struct {
	Status     string `json:"status"`
	CustomerID string `json:"customerId,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Action is the resolver output for one property.
type Action struct {
	Available        bool   `json:"available"`
	Status           string `json:"status,omitempty"`
	Label            string `json:"label,omitempty"`
	RequiresCustomer bool   `json:"requiresCustomer"`
	IsRevert         bool   `json:"isRevert"`
	Enabled          bool   `json:"enabled"`
}

// ActionFrom renders the resolver output; ok=false yields an unavailable action.
func ActionFrom(a listing.Action, ok bool) Action {
	if !ok {
		return Action{}
	}
	return Action{
		Available:        true,
		Status:           string(a.Target.Status),
		Label:            a.Label,
		RequiresCustomer: a.Target.RequiresCustomer,
		IsRevert:         a.Target.IsRevert,
		Enabled:          a.Enabled,
	}
}

// Users is the data of GET /api/users.
type Users struct {
	Users []customer.Customer `json:"users"`
}

// HistoryEntry is the wire form of a status history row.
type HistoryEntry struct {
	Previous   string    `json:"previous"`
	Next       string    `json:"next"`
	ActorID    *string   `json:"actorId,omitempty"`
	CustomerID *string   `json:"customerId,omitempty"`
	Reason     *string   `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func HistoryFrom(e listing.HistoryEntry) HistoryEntry {
	return HistoryEntry{
		Previous:   string(e.PreviousStatus),
		Next:       string(e.NextStatus),
		ActorID:    e.ActorID,
		CustomerID: e.CustomerID,
		Reason:     e.Reason,
		CreatedAt:  e.CreatedAt,
	}
}

package workflow

import (
	"errors"
	"strings"
)

// FallbackUpdateMessage is shown when a failed update carries no message.
const FallbackUpdateMessage = "Failed to update property status"

var (
	// ErrNotOpen signals an operation on a closed dialog.
	ErrNotOpen = errors.New("workflow: dialog is not open")
	// ErrNoAction signals the property has no available action.
	ErrNoAction = errors.New("workflow: no action available for this property")
	// ErrActionDisabled signals the action exists but cannot be taken yet.
	ErrActionDisabled = errors.New("workflow: action is disabled until the property is approved")
	// ErrNoActionChosen signals submit or an edit before the action was confirmed.
	ErrNoActionChosen = errors.New("workflow: no action chosen")
	// ErrBusy signals an edit while a submission is in flight.
	ErrBusy = errors.New("workflow: submission in progress")
)

// ValidationError is a local failure caught before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// TransportError wraps a rejected update call.
type TransportError struct {
	Err error
}

// Error returns the remote message verbatim, or a generic fallback.
func (e *TransportError) Error() string {
	if e.Err == nil {
		return FallbackUpdateMessage
	}
	if msg := strings.TrimSpace(e.Err.Error()); msg != "" {
		return msg
	}
	return FallbackUpdateMessage
}

func (e *TransportError) Unwrap() error { return e.Err }

// LoadError wraps a failed customer list fetch. It never blocks the dialog.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return "Failed to load customers"
	}
	return "Failed to load customers: " + e.Err.Error()
}

func (e *LoadError) Unwrap() error { return e.Err }

func errCustomerRequired() error {
	return &ValidationError{Field: "customerId", Message: "Please select a customer"}
}

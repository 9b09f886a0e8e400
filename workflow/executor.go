// Package workflow sequences a property status change: resolve the single
// action, pick a customer when one is required, and submit it once.
package workflow

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"squares/listing"
)

// StatusUpdater is the external "update property status" operation. The
// customer assignment and the status change travel in one call.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, req listing.TransitionRequest) error
}

// UpdaterFunc adapts a function to StatusUpdater.
type UpdaterFunc func(ctx context.Context, req listing.TransitionRequest) error

func (f UpdaterFunc) UpdateStatus(ctx context.Context, req listing.TransitionRequest) error {
	return f(ctx, req)
}

// Executor validates a confirmed transition and submits it exactly once.
// It never retries.
type Executor struct {
	updater StatusUpdater
	logger  *zap.Logger
}

func NewExecutor(updater StatusUpdater) *Executor {
	return &Executor{updater: updater, logger: zap.NewNop()}
}

func (e *Executor) WithLogger(logger *zap.Logger) *Executor {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// Execute submits target for propertyID. A forward transition that requires
// a customer fails with *ValidationError before any call is made; any other
// target never sends a customer. Failures of the call are returned as
// *TransportError.
func (e *Executor) Execute(ctx context.Context, propertyID string, target listing.Target, customerID, reason string) error {
	req := BuildRequest(propertyID, target, customerID, reason)
	if target.RequiresCustomer && req.CustomerID == "" {
		return errCustomerRequired()
	}
	if err := e.updater.UpdateStatus(ctx, req); err != nil {
		e.logger.Warn("status update rejected",
			zap.String("property_id", propertyID),
			zap.String("status", string(target.Status)),
			zap.Error(err))
		return &TransportError{Err: err}
	}
	e.logger.Debug("status update accepted",
		zap.String("property_id", propertyID),
		zap.String("status", string(target.Status)))
	return nil
}

// BuildRequest assembles the one request sent for a confirmed transition.
// The customer is carried only when the target requires one.
func BuildRequest(propertyID string, target listing.Target, customerID, reason string) listing.TransitionRequest {
	req := listing.TransitionRequest{
		PropertyID: propertyID,
		NewStatus:  target.Status,
		Reason:     strings.TrimSpace(reason),
	}
	if target.RequiresCustomer {
		req.CustomerID = strings.TrimSpace(customerID)
	}
	return req
}

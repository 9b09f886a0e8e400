package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"squares/auth"
)

var (
	// ErrInvalidTransition signals the requested status is not the resolver's target.
	ErrInvalidTransition = errors.New("listing: invalid status transition")
	// ErrTransitionDisabled signals a forward transition on a listing that is not approved.
	ErrTransitionDisabled = errors.New("listing: property must be available before it can be marked")
	// ErrCustomerRequired signals a forward transition without a customer.
	ErrCustomerRequired = errors.New("listing: customer is required for this transition")
	// ErrCustomerNotFound signals the customer id does not name a customer account.
	ErrCustomerNotFound = errors.New("listing: customer not found")
	// ErrForbidden signals the actor may not change this property.
	ErrForbidden = errors.New("listing: forbidden")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OutboxWriter enqueues messages inside the caller's transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Actor is the authenticated caller of a write.
type Actor struct {
	ID   string
	Role auth.Role
}

// UpdateStatusParams is one status change submitted by an actor.
type UpdateStatusParams struct {
	Actor          Actor
	Request        TransitionRequest
	IdempotencyKey string
}

// Service is the authoritative status transition workflow. The resolver's
// output is advisory for clients; every write is checked again here while
// the property row is locked.
type Service struct {
	pool   TxBeginner
	repo   Repository
	outbox OutboxWriter
	logger *zap.Logger
}

func NewService(pool TxBeginner, repo Repository, outbox OutboxWriter) *Service {
	return &Service{
		pool:   pool,
		repo:   repo,
		outbox: outbox,
		logger: zap.NewNop(),
	}
}

// WithLogger attaches a logger.
func (s *Service) WithLogger(logger *zap.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *Service) Get(ctx context.Context, id string) (Property, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filters Filters) ([]Property, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) History(ctx context.Context, propertyID string) ([]HistoryEntry, error) {
	if _, err := s.repo.Get(ctx, propertyID); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, propertyID)
}

// UpdateStatus applies one status change. The customer assignment, the
// status change, the history row and the outbox message commit together.
func (s *Service) UpdateStatus(ctx context.Context, params UpdateStatusParams) (Property, error) {
	req := params.Request
	if req.PropertyID == "" {
		return Property{}, fmt.Errorf("listing: missing property id")
	}
	if req.NewStatus == "" {
		return Property{}, fmt.Errorf("listing: missing status")
	}
	if params.Actor.ID == "" {
		return Property{}, ErrForbidden
	}
	if !params.Actor.Role.IsStaff() && params.Actor.Role != auth.RoleVendor {
		return Property{}, ErrForbidden
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Property{}, fmt.Errorf("listing: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if params.IdempotencyKey != "" {
		if err := s.repo.InsertIdempotencyKey(ctx, tx, params.IdempotencyKey); err != nil {
			if errors.Is(err, ErrDuplicateIdempotencyKey) {
				_ = tx.Rollback(ctx)
				s.logger.Info("status change replayed",
					zap.String("property_id", req.PropertyID),
					zap.String("idempotency_key", params.IdempotencyKey))
				return s.repo.Get(ctx, req.PropertyID)
			}
			return Property{}, err
		}
	}

	current, err := s.repo.GetForUpdate(ctx, tx, req.PropertyID)
	if err != nil {
		return Property{}, err
	}
	if params.Actor.Role == auth.RoleVendor && current.VendorID != params.Actor.ID {
		return Property{}, ErrForbidden
	}

	target, ok := Resolve(current.Status, current.ListingType)
	if !ok || target.Status != req.NewStatus {
		return Property{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, req.NewStatus)
	}
	if !Enabled(current.Status, target) {
		return Property{}, ErrTransitionDisabled
	}

	// Only targets that require a customer record one; a supplied id is
	// ignored on reverts and on the unknown-type fallback.
	assigned := strings.TrimSpace(req.CustomerID)
	if !target.RequiresCustomer {
		assigned = ""
	}
	if target.RequiresCustomer && assigned == "" {
		return Property{}, ErrCustomerRequired
	}
	var customerID *string
	if assigned != "" {
		exists, err := s.repo.CustomerExists(ctx, tx, assigned)
		if err != nil {
			return Property{}, err
		}
		if !exists {
			return Property{}, ErrCustomerNotFound
		}
		customerID = &assigned
	}

	if target.IsRevert {
		if err := s.repo.CloseTransaction(ctx, tx, current.ID); err != nil {
			return Property{}, err
		}
	} else if customerID != nil {
		kind, _ := KindFor(target.Status)
		if err := s.repo.OpenTransaction(ctx, tx, current.ID, *customerID, kind); err != nil {
			return Property{}, err
		}
	}

	updated, err := s.repo.UpdateStatus(ctx, tx, current.ID, target.Status, customerID)
	if err != nil {
		return Property{}, err
	}

	actorID := params.Actor.ID
	var reason *string
	if trimmed := strings.TrimSpace(req.Reason); trimmed != "" {
		reason = &trimmed
	}
	if err := s.repo.AppendHistory(ctx, tx, HistoryEntry{
		PropertyID:     current.ID,
		PreviousStatus: current.Status,
		NextStatus:     target.Status,
		ActorID:        &actorID,
		CustomerID:     customerID,
		Reason:         reason,
	}); err != nil {
		return Property{}, err
	}

	if s.outbox != nil {
		payload := map[string]any{
			"property_id": current.ID,
			"title":       current.Title,
			"vendor_id":   current.VendorID,
			"previous":    current.Status,
			"next":        target.Status,
			"is_revert":   target.IsRevert,
			"actor_id":    actorID,
		}
		if customerID != nil {
			payload["customer_id"] = *customerID
		}
		if reason != nil {
			payload["reason"] = *reason
		}
		if err := s.outbox.Enqueue(ctx, tx, OutboxTopicStatusChanged, payload); err != nil {
			return Property{}, fmt.Errorf("listing: enqueue outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Property{}, fmt.Errorf("listing: commit status change: %w", err)
	}

	s.logger.Info("property status changed",
		zap.String("property_id", current.ID),
		zap.String("previous", string(current.Status)),
		zap.String("next", string(target.Status)),
		zap.Bool("revert", target.IsRevert),
		zap.String("actor_id", actorID))
	return updated, nil
}

package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"squares/listing"
)

// PropertyLocker is the subset of listing.Repository moderation shares.
type PropertyLocker interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (listing.Property, error)
	AppendHistory(ctx context.Context, tx pgx.Tx, entry listing.HistoryEntry) error
}

// Service approves and rejects pending listings. Each decision, its history
// row and its outbox message commit together.
type Service struct {
	pool       listing.TxBeginner
	properties PropertyLocker
	store      Store
	outbox     listing.OutboxWriter
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(pool listing.TxBeginner, properties PropertyLocker, store Store, outbox listing.OutboxWriter) *Service {
	return &Service{
		pool:       pool,
		properties: properties,
		store:      store,
		outbox:     outbox,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
}

func (s *Service) WithLogger(logger *zap.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Pending lists listings awaiting moderation.
func (s *Service) Pending(ctx context.Context, actor listing.Actor, limit int) ([]listing.Property, error) {
	if !actor.Role.IsStaff() {
		return nil, ErrForbidden
	}
	return s.store.Pending(ctx, limit)
}

// Approve makes a pending listing available.
func (s *Service) Approve(ctx context.Context, actor listing.Actor, propertyID string) (Record, error) {
	return s.decide(ctx, actor, propertyID, DecisionApprove, "")
}

// Reject moves a pending listing to rejected, recording reason.
func (s *Service) Reject(ctx context.Context, actor listing.Actor, propertyID, reason string) (Record, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Record{}, ErrReasonRequired
	}
	return s.decide(ctx, actor, propertyID, DecisionReject, reason)
}

func (s *Service) decide(ctx context.Context, actor listing.Actor, propertyID string, decision Decision, reason string) (Record, error) {
	if actor.ID == "" || !actor.Role.IsStaff() {
		return Record{}, ErrForbidden
	}

	next := listing.StatusAvailable
	var reasonPtr *string
	if decision == DecisionReject {
		next = listing.StatusRejected
		reasonPtr = &reason
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("moderation: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.properties.GetForUpdate(ctx, tx, propertyID)
	if err != nil {
		if errors.Is(err, listing.ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	if current.Status != listing.StatusPending {
		return Record{}, fmt.Errorf("%w: %s", ErrBadStatus, current.Status)
	}

	updated, err := s.store.Decide(ctx, tx, propertyID, next, reasonPtr)
	if err != nil {
		return Record{}, err
	}

	actorID := actor.ID
	if err := s.properties.AppendHistory(ctx, tx, listing.HistoryEntry{
		PropertyID:     propertyID,
		PreviousStatus: current.Status,
		NextStatus:     next,
		ActorID:        &actorID,
		Reason:         reasonPtr,
	}); err != nil {
		return Record{}, err
	}

	if s.outbox != nil {
		payload := map[string]any{
			"property_id": propertyID,
			"title":       current.Title,
			"vendor_id":   current.VendorID,
			"decision":    string(decision),
			"next":        string(next),
			"actor_id":    actorID,
		}
		if reasonPtr != nil {
			payload["reason"] = reason
		}
		if err := s.outbox.Enqueue(ctx, tx, OutboxTopicModerated, payload); err != nil {
			return Record{}, fmt.Errorf("moderation: enqueue outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("moderation: commit: %w", err)
	}

	s.logger.Info("listing moderated",
		zap.String("property_id", propertyID),
		zap.String("decision", string(decision)),
		zap.String("actor_id", actorID))

	return Record{
		Property: updated,
		Decision: decision,
		Previous: current.Status,
		Reason:   reason,
		ActorID:  actorID,
		At:       s.now().UTC(),
	}, nil
}

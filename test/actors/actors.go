package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"squares/auth"
	"squares/listing"
	"squares/moderation"
	"squares/outbox"
)

// Stats counts outcomes across all actors.
type Stats struct {
	Applied  atomic.Int64
	Rejected atomic.Int64
	Replayed atomic.Int64
	Failed   atomic.Int64
}

func (s *Stats) String() string {
	return fmt.Sprintf("applied=%d rejected=%d replayed=%d failed=%d",
		s.Applied.Load(), s.Rejected.Load(), s.Replayed.Load(), s.Failed.Load())
}

// expected reports whether err is a domain refusal a racing actor should see.
func expected(err error) bool {
	return errors.Is(err, listing.ErrInvalidTransition) ||
		errors.Is(err, listing.ErrTransitionDisabled) ||
		errors.Is(err, listing.ErrAlreadyAssigned) ||
		errors.Is(err, listing.ErrCustomerRequired) ||
		errors.Is(err, moderation.ErrBadStatus)
}

func record(stats *Stats, err error) {
	switch {
	case err == nil:
		stats.Applied.Add(1)
	case expected(err):
		stats.Rejected.Add(1)
	default:
		// backend kills from chaos surface here
		stats.Failed.Add(1)
	}
}

func stopped(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	default:
		return false
	}
}

// Transitioner repeatedly applies the resolver's action to random properties.
// Several transitioners race on the same rows.
func Transitioner(ctx context.Context, svc *listing.Service, actor listing.Actor, propertyIDs, customerIDs []string, stats *Stats, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		id := propertyIDs[rand.Intn(len(propertyIDs))]
		p, err := svc.Get(ctx, id)
		if err != nil {
			record(stats, err)
			continue
		}
		action, ok := listing.ActionFor(p)
		if !ok || !action.Enabled {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		req := listing.TransitionRequest{PropertyID: id, NewStatus: action.Target.Status, Reason: "stress"}
		if !action.Target.IsRevert {
			req.CustomerID = customerIDs[rand.Intn(len(customerIDs))]
		}
		_, err = svc.UpdateStatus(ctx, listing.UpdateStatusParams{Actor: actor, Request: req})
		record(stats, err)
		time.Sleep(time.Duration(5+rand.Intn(20)) * time.Millisecond)
	}
	return nil
}

// Replayer submits every change twice under the same idempotency key; the
// second submission must not record another history row.
func Replayer(ctx context.Context, svc *listing.Service, actor listing.Actor, propertyIDs, customerIDs []string, stats *Stats, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		id := propertyIDs[rand.Intn(len(propertyIDs))]
		p, err := svc.Get(ctx, id)
		if err != nil {
			record(stats, err)
			continue
		}
		action, ok := listing.ActionFor(p)
		if !ok || !action.Enabled {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		params := listing.UpdateStatusParams{
			Actor:          actor,
			Request:        listing.TransitionRequest{PropertyID: id, NewStatus: action.Target.Status},
			IdempotencyKey: uuid.NewString(),
		}
		if !action.Target.IsRevert {
			params.Request.CustomerID = customerIDs[rand.Intn(len(customerIDs))]
		}
		_, err = svc.UpdateStatus(ctx, params)
		record(stats, err)
		if err == nil {
			if _, err := svc.UpdateStatus(ctx, params); err == nil {
				stats.Replayed.Add(1)
			} else {
				record(stats, err)
			}
		}
		time.Sleep(time.Duration(20+rand.Intn(30)) * time.Millisecond)
	}
	return nil
}

// Moderator approves pending listings as they appear, racing other moderators.
func Moderator(ctx context.Context, svc *moderation.Service, actor listing.Actor, stats *Stats, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		pending, err := svc.Pending(ctx, actor, 10)
		if err != nil {
			record(stats, err)
			continue
		}
		for _, p := range pending {
			_, err := svc.Approve(ctx, actor, p.ID)
			record(stats, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	return nil
}

type countingPublisher struct {
	published atomic.Int64
}

func (c *countingPublisher) Publish(_ context.Context, _ outbox.Message) error {
	if rand.Intn(10) == 0 {
		return errors.New("simulated publish failure")
	}
	c.published.Add(1)
	return nil
}

// RelayWorker drains the outbox with SKIP LOCKED batches, failing one publish
// in ten so retries are exercised.
func RelayWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	relay := outbox.NewRelay(outbox.NewPGStore(pool), &countingPublisher{}, outbox.RelayConfig{BatchSize: 20, MaxAttempts: 10}, nil)
	for !stopped(ctx, stop) {
		if _, err := relay.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
			time.Sleep(50 * time.Millisecond)
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

// StaffActor is the identity actors act as.
func StaffActor(id string) listing.Actor {
	return listing.Actor{ID: id, Role: auth.RoleAdmin}
}

package listing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"squares/auth"
	"squares/migrations"
	"squares/outbox"
)

// TestUpdateStatus_Integration drives a rent listing through rented and back
// against a live PostgreSQL named by DATABASE_URL.
func TestUpdateStatus_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	var vendorID, customerID, propertyID string
	suffix := time.Now().UnixNano()
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, role) VALUES ($1, 'vendor') RETURNING id::text`,
		fmt.Sprintf("vendor+%d@example.com", suffix)).Scan(&vendorID); err != nil {
		t.Fatalf("seed vendor: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, role, first_name) VALUES ($1, 'customer', 'Jane') RETURNING id::text`,
		fmt.Sprintf("jane+%d@example.com", suffix)).Scan(&customerID); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	if err := pool.QueryRow(ctx, `
		INSERT INTO properties (vendor_id, title, status, listing_type)
		VALUES ($1, 'Harbor Flat', 'available', 'rent') RETURNING id::text
	`, vendorID).Scan(&propertyID); err != nil {
		t.Fatalf("seed property: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM property_status_history WHERE property_id = $1`, propertyID)
		pool.Exec(ctx2, `DELETE FROM property_transactions WHERE property_id = $1`, propertyID)
		pool.Exec(ctx2, `DELETE FROM outbox WHERE payload->>'property_id' = $1`, propertyID)
		pool.Exec(ctx2, `DELETE FROM properties WHERE id = $1`, propertyID)
		pool.Exec(ctx2, `DELETE FROM users WHERE id IN ($1, $2)`, vendorID, customerID)
	})

	svc := NewService(pool, NewRepository(pool), outbox.NewWriter())
	actor := Actor{ID: vendorID, Role: auth.RoleVendor}
	idemKey := fmt.Sprintf("itest-rent-%d", suffix)

	rented, err := svc.UpdateStatus(ctx, UpdateStatusParams{
		Actor:          actor,
		Request:        TransitionRequest{PropertyID: propertyID, NewStatus: StatusRented, CustomerID: customerID},
		IdempotencyKey: idemKey,
	})
	if err != nil {
		t.Fatalf("mark rented: %v", err)
	}
	if rented.Status != StatusRented || rented.AssignedCustomerID == nil || *rented.AssignedCustomerID != customerID {
		t.Fatalf("unexpected rented property: %+v", rented)
	}

	// Replaying the same key is a no-op.
	if _, err := svc.UpdateStatus(ctx, UpdateStatusParams{
		Actor:          actor,
		Request:        TransitionRequest{PropertyID: propertyID, NewStatus: StatusRented, CustomerID: customerID},
		IdempotencyKey: idemKey,
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	defer pool.Exec(context.Background(), `DELETE FROM idempotency WHERE key = $1`, idemKey)

	// The rented listing now only offers the revert.
	if _, err := svc.UpdateStatus(ctx, UpdateStatusParams{
		Actor:   actor,
		Request: TransitionRequest{PropertyID: propertyID, NewStatus: StatusRented, CustomerID: customerID},
	}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	available, err := svc.UpdateStatus(ctx, UpdateStatusParams{
		Actor:   actor,
		Request: TransitionRequest{PropertyID: propertyID, NewStatus: StatusAvailable},
	})
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if available.Status != StatusAvailable || available.AssignedCustomerID != nil {
		t.Fatalf("unexpected reverted property: %+v", available)
	}

	var open int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM property_transactions WHERE property_id = $1 AND ended_at IS NULL`, propertyID).Scan(&open); err != nil {
		t.Fatalf("count open transactions: %v", err)
	}
	if open != 0 {
		t.Fatalf("expected no open transaction after revert, got %d", open)
	}

	history, err := svc.History(ctx, propertyID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].NextStatus != StatusRented || history[1].NextStatus != StatusAvailable {
		t.Fatalf("unexpected history: %+v", history)
	}

	var outCount int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE topic = $1 AND payload->>'property_id' = $2`,
		OutboxTopicStatusChanged, propertyID).Scan(&outCount); err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if outCount != 2 {
		t.Fatalf("expected 2 outbox messages, got %d", outCount)
	}
}

func TestRepository_MalformedIDIsNotFound_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	repo := NewRepository(pool)
	if _, err := repo.Get(ctx, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get: expected ErrNotFound, got %v", err)
	}
	if _, err := repo.History(ctx, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("History: expected ErrNotFound, got %v", err)
	}

	svc := NewService(pool, repo, outbox.NewWriter())
	_, err = svc.UpdateStatus(ctx, UpdateStatusParams{
		Actor:   Actor{ID: "admin", Role: auth.RoleAdmin},
		Request: TransitionRequest{PropertyID: "not-a-uuid", NewStatus: StatusSold},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateStatus: expected ErrNotFound, got %v", err)
	}
}

package moderation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"squares/listing"
)

var (
	ErrNotFound       = errors.New("moderation: property not found")
	ErrForbidden      = errors.New("moderation: forbidden")
	ErrBadStatus      = errors.New("moderation: property is not pending")
	ErrReasonRequired = errors.New("moderation: rejection reason is required")
)

// Store is the data access required by Service.
type Store interface {
	Pending(ctx context.Context, limit int) ([]listing.Property, error)
	Decide(ctx context.Context, tx pgx.Tx, propertyID string, next listing.Status, reason *string) (listing.Property, error)
}

// Repository implements Store on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Pending lists listings awaiting a decision, oldest first.
func (r *Repository) Pending(ctx context.Context, limit int) ([]listing.Property, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	const query = `
		SELECT id::text, vendor_id::text, title, status::text, listing_type, rejection_reason, created_at, updated_at
		FROM properties
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("moderation: pending: %w", err)
	}
	defer rows.Close()

	out := make([]listing.Property, 0, 8)
	for rows.Next() {
		var (
			p           listing.Property
			listingType string
		)
		if err := rows.Scan(&p.ID, &p.VendorID, &p.Title, &p.Status, &listingType, &p.RejectionReason, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("moderation: scan: %w", err)
		}
		p.ListingType = listing.ListingType(listingType).Normalize()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("moderation: iterate: %w", err)
	}
	return out, nil
}

// Decide moves a pending listing to next. The status guard in the WHERE
// clause makes a lost race surface as ErrBadStatus.
func (r *Repository) Decide(ctx context.Context, tx pgx.Tx, propertyID string, next listing.Status, reason *string) (listing.Property, error) {
	const query = `
		UPDATE properties
		SET status = $2::property_status,
		    rejection_reason = $3,
		    updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING id::text, vendor_id::text, title, status::text, listing_type, rejection_reason, created_at, updated_at
	`
	var (
		p           listing.Property
		listingType string
	)
	err := tx.QueryRow(ctx, query, propertyID, string(next), reason).
		Scan(&p.ID, &p.VendorID, &p.Title, &p.Status, &listingType, &p.RejectionReason, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return listing.Property{}, ErrBadStatus
		}
		return listing.Property{}, fmt.Errorf("moderation: decide: %w", err)
	}
	p.ListingType = listing.ListingType(listingType).Normalize()
	return p, nil
}

package vendors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"squares/listing"
)

var (
	// ErrNotFound signals the requested vendor does not exist.
	ErrNotFound = errors.New("vendors: not found")
	// ErrForbidden signals the caller may not read the profile.
	ErrForbidden = errors.New("vendors: forbidden")
)

// Repository provides read access to vendor profiles.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const profileQuery = `
	SELECT v.user_id::text, u.email, v.company_name, v.verified, v.created_at
	FROM vendors v
	JOIN users u ON u.id = v.user_id
`

// GetByID fetches a vendor profile by user id, including listing counts.
func (r *Repository) GetByID(ctx context.Context, id string) (Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx, profileQuery+` WHERE v.user_id::text = $1`, id).
		Scan(&p.UserID, &p.Email, &p.CompanyName, &p.Verified, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("vendors: query by id: %w", err)
	}

	counts, err := r.statusCounts(ctx, p.UserID)
	if err != nil {
		return Profile{}, err
	}
	p.Listings = counts
	return p, nil
}

// List fetches up to limit vendor profiles ordered by company name. Listing
// counts are not populated.
func (r *Repository) List(ctx context.Context, limit int) ([]Profile, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, profileQuery+` ORDER BY v.company_name ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("vendors: list: %w", err)
	}
	defer rows.Close()

	profiles := make([]Profile, 0, limit)
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.UserID, &p.Email, &p.CompanyName, &p.Verified, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("vendors: scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vendors: iterate profiles: %w", err)
	}
	return profiles, nil
}

func (r *Repository) statusCounts(ctx context.Context, vendorID string) (map[listing.Status]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status::text, COUNT(*)
		FROM properties
		WHERE vendor_id::text = $1
		GROUP BY status
	`, vendorID)
	if err != nil {
		return nil, fmt.Errorf("vendors: status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[listing.Status]int)
	for rows.Next() {
		var (
			status listing.Status
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("vendors: scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Ensure creates the vendor row for a user if it does not exist yet.
func (r *Repository) Ensure(ctx context.Context, userID, companyName string) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO vendors (user_id, company_name)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, companyName); err != nil {
		return fmt.Errorf("vendors: ensure: %w", err)
	}
	return nil
}

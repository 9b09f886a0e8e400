package customer

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

const maxListLimit = 500

// PGRepository reads customer accounts from the users table.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListCustomers returns accounts with role customer ordered by name then email.
func (r *PGRepository) ListCustomers(ctx context.Context, filter Filter) ([]Customer, error) {
	where := []string{"role = 'customer'"}
	args := []any{}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"concat_ws(' ', nullif(btrim(coalesce(first_name,'') || ' ' || coalesce(last_name,'')), ''), email, nullif(phone,'')) ILIKE $%d", n))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	query := fmt.Sprintf(`
		SELECT id::text, email, first_name, last_name, phone
		FROM users
		WHERE %s
		ORDER BY lower(coalesce(first_name,'')), lower(coalesce(last_name,'')), email
		LIMIT %d`, strings.Join(where, " AND "), limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("customer: list: %w", err)
	}
	defer rows.Close()

	out := []Customer{}
	for rows.Next() {
		var (
			c                  Customer
			first, last, phone *string
		)
		if err := rows.Scan(&c.ID, &c.Email, &first, &last, &phone); err != nil {
			return nil, fmt.Errorf("customer: scan: %w", err)
		}
		if first != nil || last != nil || phone != nil {
			c.Profile = &Profile{FirstName: deref(first), LastName: deref(last), Phone: deref(phone)}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("customer: iterate: %w", err)
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

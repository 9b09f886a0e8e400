package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the property does not exist.
	ErrNotFound = errors.New("listing: property not found")
	// ErrAlreadyAssigned signals the property already has an open transaction.
	ErrAlreadyAssigned = errors.New("listing: property already assigned to a customer")
	// ErrDuplicateIdempotencyKey signals the status change was already applied.
	ErrDuplicateIdempotencyKey = errors.New("listing: duplicate idempotency key")
)

// Repository is the data access required by Service.
type Repository interface {
	Get(ctx context.Context, id string) (Property, error)
	List(ctx context.Context, filters Filters) ([]Property, int, error)
	History(ctx context.Context, propertyID string) ([]HistoryEntry, error)

	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Property, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status Status, customerID *string) (Property, error)
	CustomerExists(ctx context.Context, tx pgx.Tx, customerID string) (bool, error)
	OpenTransaction(ctx context.Context, tx pgx.Tx, propertyID, customerID string, kind TransactionKind) error
	CloseTransaction(ctx context.Context, tx pgx.Tx, propertyID string) error
	AppendHistory(ctx context.Context, tx pgx.Tx, entry HistoryEntry) error
	InsertIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) error
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed property repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const propertyColumns = `id::text, vendor_id::text, title, status::text, listing_type, assigned_customer_id::text, rejection_reason, created_at, updated_at`

func (r *PGRepository) Get(ctx context.Context, id string) (Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE id = $1`
	p, err := scanProperty(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isMalformedID(err) {
			return Property{}, ErrNotFound
		}
		return Property{}, fmt.Errorf("listing: get: %w", err)
	}
	return p, nil
}

func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Property, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	where := []string{"1=1"}
	args := []any{}
	if filters.VendorID != "" {
		where = append(where, fmt.Sprintf("vendor_id=$%d", len(args)+1))
		args = append(args, filters.VendorID)
	}
	if filters.Status != "" {
		where = append(where, fmt.Sprintf("status=$%d::property_status", len(args)+1))
		args = append(args, string(filters.Status))
	}
	if filters.ListingType != "" {
		where = append(where, fmt.Sprintf("listing_type=$%d", len(args)+1))
		args = append(args, string(filters.ListingType.Normalize()))
	}
	whereClause := " WHERE " + strings.Join(where, " AND ")

	sortOrder := strings.ToUpper(filters.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}
	limit := filters.PageSize
	offset := (filters.Page - 1) * filters.PageSize

	query := fmt.Sprintf(`SELECT %s FROM properties%s ORDER BY %s %s LIMIT %d OFFSET %d`,
		propertyColumns, whereClause, mapSortKey(filters.SortKey), sortOrder, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing: query list: %w", err)
	}
	defer rows.Close()

	list := []Property{}
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("listing: scan property: %w", err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("listing: iterate properties: %w", err)
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM properties"+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("listing: count list: %w", err)
	}
	return list, total, nil
}

func (r *PGRepository) History(ctx context.Context, propertyID string) ([]HistoryEntry, error) {
	const query = `
		SELECT id, property_id::text, previous_status::text, next_status::text, actor_id::text, customer_id::text, reason, created_at
		FROM property_status_history
		WHERE property_id = $1
		ORDER BY id ASC
	`
	rows, err := r.pool.Query(ctx, query, propertyID)
	if err != nil {
		if isMalformedID(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("listing: history: %w", err)
	}
	defer rows.Close()

	out := make([]HistoryEntry, 0, 8)
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.PropertyID, &e.PreviousStatus, &e.NextStatus, &e.ActorID, &e.CustomerID, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("listing: scan history: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		if isMalformedID(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("listing: iterate history: %w", err)
	}
	return out, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE id = $1 FOR UPDATE`
	p, err := scanProperty(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isMalformedID(err) {
			return Property{}, ErrNotFound
		}
		return Property{}, fmt.Errorf("listing: get for update: %w", err)
	}
	return p, nil
}

func (r *PGRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status Status, customerID *string) (Property, error) {
	query := `
		UPDATE properties
		SET status = $2::property_status,
		    assigned_customer_id = $3::uuid,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + propertyColumns
	p, err := scanProperty(tx.QueryRow(ctx, query, id, string(status), customerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Property{}, ErrNotFound
		}
		return Property{}, fmt.Errorf("listing: update status: %w", err)
	}
	return p, nil
}

func (r *PGRepository) CustomerExists(ctx context.Context, tx pgx.Tx, customerID string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id::text = $1 AND role = 'customer')`, customerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("listing: verify customer: %w", err)
	}
	return exists, nil
}

func (r *PGRepository) OpenTransaction(ctx context.Context, tx pgx.Tx, propertyID, customerID string, kind TransactionKind) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO property_transactions (property_id, customer_id, kind)
		VALUES ($1, $2, $3)
	`, propertyID, customerID, string(kind))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyAssigned
		}
		return fmt.Errorf("listing: open transaction: %w", err)
	}
	return nil
}

func (r *PGRepository) CloseTransaction(ctx context.Context, tx pgx.Tx, propertyID string) error {
	if _, err := tx.Exec(ctx, `
		UPDATE property_transactions
		SET ended_at = now()
		WHERE property_id = $1 AND ended_at IS NULL
	`, propertyID); err != nil {
		return fmt.Errorf("listing: close transaction: %w", err)
	}
	return nil
}

func (r *PGRepository) AppendHistory(ctx context.Context, tx pgx.Tx, entry HistoryEntry) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO property_status_history (property_id, previous_status, next_status, actor_id, customer_id, reason)
		VALUES ($1, $2::property_status, $3::property_status, $4::uuid, $5::uuid, $6)
	`, entry.PropertyID, string(entry.PreviousStatus), string(entry.NextStatus), entry.ActorID, entry.CustomerID, entry.Reason); err != nil {
		return fmt.Errorf("listing: append history: %w", err)
	}
	return nil
}

func (r *PGRepository) InsertIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) error {
	if key == "" {
		return fmt.Errorf("listing: empty idempotency key")
	}
	_, err := tx.Exec(ctx, `INSERT INTO idempotency (key) VALUES ($1)`, key)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("listing: insert idempotency key: %w", err)
	}
	return nil
}

// isMalformedID reports a property id PostgreSQL could not parse as a uuid
// (invalid_text_representation). Such an id names no listing.
func isMalformedID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

func scanProperty(row pgx.Row) (Property, error) {
	var (
		p           Property
		listingType string
	)
	err := row.Scan(
		&p.ID,
		&p.VendorID,
		&p.Title,
		&p.Status,
		&listingType,
		&p.AssignedCustomerID,
		&p.RejectionReason,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return Property{}, err
	}
	p.ListingType = ListingType(listingType).Normalize()
	return p, nil
}

func mapSortKey(key string) string {
	switch key {
	case "title":
		return "title"
	case "status":
		return "status"
	case "updatedAt":
		return "updated_at"
	case "createdAt":
		fallthrough
	default:
		return "created_at"
	}
}

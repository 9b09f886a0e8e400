package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the invariants checked against a live database. Each query
// returns rows only when its invariant is broken.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_sold_is_terminal",
			SQL: `SELECT id, property_id, next_status FROM property_status_history
                  WHERE previous_status = 'sold'`,
		},
		{
			Name: "O2_occupancy_matches_listing_type",
			SQL: `SELECT id, status, listing_type FROM properties
                  WHERE (status = 'rented' AND listing_type <> 'rent')
                     OR (status = 'leased' AND listing_type <> 'lease')
                     OR (status = 'sold' AND listing_type IN ('rent', 'lease'))`,
		},
		{
			Name: "O3_single_open_transaction",
			SQL: `SELECT property_id, COUNT(*) FROM property_transactions
                  WHERE ended_at IS NULL
                  GROUP BY property_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O4_assignment_has_open_transaction",
			SQL: `SELECT p.id, p.status FROM properties p
                  WHERE p.assigned_customer_id IS NOT NULL
                    AND NOT EXISTS (
                        SELECT 1 FROM property_transactions t
                        WHERE t.property_id = p.id AND t.ended_at IS NULL
                          AND t.customer_id = p.assigned_customer_id)`,
		},
		{
			Name: "O5_open_transaction_only_when_occupied",
			SQL: `SELECT t.id, p.status FROM property_transactions t
                  JOIN properties p ON p.id = t.property_id
                  WHERE t.ended_at IS NULL
                    AND p.status NOT IN ('sold', 'rented', 'leased')`,
		},
		{
			Name: "O6_history_chain",
			SQL: `WITH h AS (
                      SELECT property_id, id, previous_status,
                             LAG(next_status) OVER (PARTITION BY property_id ORDER BY id) AS prev_next
                      FROM property_status_history)
                  SELECT * FROM h WHERE prev_next IS NOT NULL AND prev_next <> previous_status`,
		},
		{
			Name: "O7_status_matches_latest_history",
			SQL: `SELECT p.id, p.status, h.next_status FROM properties p
                  JOIN LATERAL (
                      SELECT next_status FROM property_status_history
                      WHERE property_id = p.id ORDER BY id DESC LIMIT 1) h ON true
                  WHERE h.next_status <> p.status`,
		},
		{
			Name: "O8_outbox_drained",
			SQL: `SELECT id, topic, attempts FROM outbox
                  WHERE status = 'pending'
                    AND now() - created_at > interval '5 minutes'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}

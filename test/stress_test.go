package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"squares/listing"
	"squares/moderation"
	"squares/outbox"
	"squares/test/actors"
	"squares/test/chaos"
	"squares/test/infra"
	"squares/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 30*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent transitioners")
	flProperties  = flag.Int("properties", 12, "number of seeded properties")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
	flChaos       = flag.Bool("chaos", true, "terminate random backends while running")
)

func TestStatusTransitionConcurrency(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test skipped in -short mode")
	}
	seed := *flSeed
	rand.Seed(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Skipf("no database available: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	if !usedShared {
		if err := infra.Reset(ctx, pool); err != nil {
			t.Fatalf("reset: %v", err)
		}
	}
	seedData := mustSeed(t, ctx, pool, *flProperties)

	writer := outbox.NewWriter()
	repo := listing.NewRepository(pool)
	listingSvc := listing.NewService(pool, repo, writer)
	moderationSvc := moderation.NewService(pool, repo, moderation.NewRepository(pool), writer)
	staff := actors.StaffActor(seedData.adminID)
	stats := &actors.Stats{}

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error {
			return actors.Transitioner(ctx2, listingSvc, staff, seedData.propertyIDs, seedData.customerIDs, stats, stop)
		})
	}
	g.Go(func() error {
		return actors.Replayer(ctx2, listingSvc, staff, seedData.propertyIDs, seedData.customerIDs, stats, stop)
	})
	for i := 0; i < 2; i++ {
		g.Go(func() error { return actors.Moderator(ctx2, moderationSvc, staff, stats, stop) })
	}
	g.Go(func() error { return actors.RelayWorker(ctx2, pool, stop) })
	if *flChaos {
		go chaos.TerminateRandomBackend(ctx2, pool, stop)
	}

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				// a chaos kill can land on the oracle connection
				t.Logf("oracle error: %v", err)
				continue
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}

	if name, row, err := oracles.Run(context.Background(), pool); err == nil && name != "" {
		t.Fatalf("Oracle %s failed after run. First row: %s (seed=%d)", name, row, seed)
	}
	t.Logf("stress done: %s (seed=%d)", stats, seed)
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	adminID     string
	vendorID    string
	customerIDs []string
	propertyIDs []string
}

var seedTypes = []string{"sale", "rent", "lease", "auction"}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool, properties int) seedIDs {
	t.Helper()
	var s seedIDs
	run := rand.Int63()

	if err := pool.QueryRow(ctx, `INSERT INTO users (email, role) VALUES ($1, 'admin') RETURNING id::text`,
		fmt.Sprintf("admin-%d@example.com", run)).Scan(&s.adminID); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, role) VALUES ($1, 'vendor') RETURNING id::text`,
		fmt.Sprintf("vendor-%d@example.com", run)).Scan(&s.vendorID); err != nil {
		t.Fatalf("seed vendor: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO vendors (user_id, company_name) VALUES ($1, 'Stress Homes')`, s.vendorID); err != nil {
		t.Fatalf("seed vendor row: %v", err)
	}
	for i := 0; i < 6; i++ {
		var id string
		if err := pool.QueryRow(ctx, `INSERT INTO users (email, role, first_name) VALUES ($1, 'customer', $2) RETURNING id::text`,
			fmt.Sprintf("customer-%d-%d@example.com", run, i), fmt.Sprintf("Customer %d", i)).Scan(&id); err != nil {
			t.Fatalf("seed customer: %v", err)
		}
		s.customerIDs = append(s.customerIDs, id)
	}
	for i := 0; i < properties; i++ {
		status := "available"
		if i%3 == 0 {
			status = "pending"
		}
		var id string
		if err := pool.QueryRow(ctx, `INSERT INTO properties (vendor_id, title, status, listing_type) VALUES ($1, $2, $3::property_status, $4) RETURNING id::text`,
			s.vendorID, fmt.Sprintf("Stress listing %d", i), status, seedTypes[i%len(seedTypes)]).Scan(&id); err != nil {
			t.Fatalf("seed property: %v", err)
		}
		s.propertyIDs = append(s.propertyIDs, id)
	}
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"property_status_history", `SELECT id, property_id, previous_status, next_status, customer_id, created_at FROM property_status_history ORDER BY id DESC LIMIT 50`},
		{"property_transactions", `SELECT id, property_id, customer_id, kind, started_at, ended_at FROM property_transactions ORDER BY started_at DESC LIMIT 50`},
		{"outbox", `SELECT id, topic, status, attempts, created_at FROM outbox ORDER BY created_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}

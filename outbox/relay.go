package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Publisher delivers a committed message to its consumers.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Batch is a set of claimed messages held under row locks until Commit.
type Batch interface {
	Messages() []Message
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, dead bool) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store claims pending messages.
type Store interface {
	Claim(ctx context.Context, limit int) (Batch, error)
}

// RelayConfig tunes the relay loop.
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	return c
}

// Relay moves pending outbox messages to a Publisher.
type Relay struct {
	store     Store
	publisher Publisher
	cfg       RelayConfig
	logger    *zap.Logger
}

func NewRelay(store Store, publisher Publisher, cfg RelayConfig, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Run polls until ctx is cancelled. Batch errors are logged and retried on
// the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.ProcessBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Warn("outbox batch failed", zap.Error(err))
			}
		}
	}
}

// ProcessBatch claims up to BatchSize messages and publishes them. It returns
// the number of messages published.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	batch, err := r.store.Claim(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("outbox: claim: %w", err)
	}
	defer batch.Rollback(ctx)

	published := 0
	for _, msg := range batch.Messages() {
		if err := r.publisher.Publish(ctx, msg); err != nil {
			dead := msg.Attempts+1 >= r.cfg.MaxAttempts
			r.logger.Warn("outbox publish failed",
				zap.String("message_id", msg.ID),
				zap.String("topic", msg.Topic),
				zap.Int("attempts", msg.Attempts+1),
				zap.Bool("dead", dead),
				zap.Error(err))
			if err := batch.MarkFailed(ctx, msg.ID, dead); err != nil {
				return published, err
			}
			continue
		}
		if err := batch.MarkProcessed(ctx, msg.ID); err != nil {
			return published, err
		}
		published++
	}

	if err := batch.Commit(ctx); err != nil {
		return published, fmt.Errorf("outbox: commit batch: %w", err)
	}
	return published, nil
}

// PGStore claims messages with FOR UPDATE SKIP LOCKED so several relays can
// share one table.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Claim(ctx context.Context, limit int) (Batch, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("outbox: begin tx: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT id::text, topic, payload, status, attempts, created_at
		FROM outbox
		WHERE status = 'pending'
		ORDER BY created_at
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, limit)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("outbox: select pending: %w", err)
	}
	defer rows.Close()

	msgs := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.Status, &m.Attempts, &m.CreatedAt); err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("outbox: scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("outbox: iterate messages: %w", err)
	}
	return &pgBatch{tx: tx, msgs: msgs}, nil
}

type pgBatch struct {
	tx   pgx.Tx
	msgs []Message
}

func (b *pgBatch) Messages() []Message {
	return b.msgs
}

func (b *pgBatch) MarkProcessed(ctx context.Context, id string) error {
	if _, err := b.tx.Exec(ctx, `UPDATE outbox SET status='processed', last_attempt=now() WHERE id=$1`, id); err != nil {
		return fmt.Errorf("outbox: mark processed: %w", err)
	}
	return nil
}

func (b *pgBatch) MarkFailed(ctx context.Context, id string, dead bool) error {
	status := StatusPending
	if dead {
		status = StatusDead
	}
	if _, err := b.tx.Exec(ctx, `UPDATE outbox SET attempts=attempts+1, status=$2, last_attempt=now() WHERE id=$1`, id, status); err != nil {
		return fmt.Errorf("outbox: mark failed: %w", err)
	}
	return nil
}

func (b *pgBatch) Commit(ctx context.Context) error {
	return b.tx.Commit(ctx)
}

func (b *pgBatch) Rollback(ctx context.Context) error {
	return b.tx.Rollback(ctx)
}

// Package outbox implements the transactional outbox: writers enqueue
// messages inside the business transaction and a Relay publishes them after
// commit.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusDead      = "dead"
)

// Message represents a transactional outbox entry.
type Message struct {
	ID        string
	Topic     string
	Payload   []byte
	Status    string
	Attempts  int
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("outbox: decode %s payload: %w", m.Topic, err)
	}
	return nil
}

// Writer enqueues messages inside the caller's transaction.
type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

// Enqueue inserts a pending message for topic.
func (w *Writer) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	if topic == "" {
		return fmt.Errorf("outbox: empty topic")
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`, topic, string(b)); err != nil {
		return fmt.Errorf("outbox: insert message: %w", err)
	}
	return nil
}

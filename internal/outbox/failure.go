package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DLQWriter records undeliverable outbox events for later retry.
type DLQWriter struct {
	pool *pgxpool.Pool
}

// NewDLQWriter constructs a DLQWriter.
func NewDLQWriter(pool *pgxpool.Pool) *DLQWriter {
	return &DLQWriter{pool: pool}
}

// Write inserts an event into outbox_dlq with the failure reason.
func (w *DLQWriter) Write(ctx context.Context, msg Message, reason string) error {
	query := `INSERT INTO outbox_dlq (
            event_id, aggregate_type, aggregate_id, event_type,
            topic, schema_subject, partition_key, payload, failure_reason
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (event_id) DO NOTHING`

	_, err := w.pool.Exec(ctx, query,
		msg.EventID,
		msg.AggregateType,
		msg.AggregateID,
		msg.EventType,
		msg.Topic,
		msg.SchemaSubject,
		msg.PartitionKey,
		msg.Payload,
		reason,
	)
	return err
}

package outbox

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
)

// DLQManager retries dead-lettered events with exponential backoff and
// quarantines entries that exhaust their retry budget.
type DLQManager struct {
	pool       *pgxpool.Pool
	producer   messageWriter
	registry   schemaRegistrar
	maxRetries int
	baseDelay  time.Duration
	batchSize  int
}

// NewDLQManager constructs a DLQManager.
func NewDLQManager(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, maxRetries int, baseDelay time.Duration) *DLQManager {
	return &DLQManager{
		pool:       pool,
		producer:   producer,
		registry:   registry,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		batchSize:  50,
	}
}

type dlqEntry struct {
	Message
	RetryCount int
}

// RunOnce processes one batch of due DLQ entries.
func (m *DLQManager) RunOnce(ctx context.Context) error {
	entries, err := m.fetchDue(ctx)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := m.process(ctx, entry); err != nil {
			log.Printf("dlq: event %d retry failed: %v", entry.EventID, err)
		}
	}

	return m.updateBacklogGauge(ctx)
}

func (m *DLQManager) fetchDue(ctx context.Context) ([]dlqEntry, error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `SELECT event_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, retry_count
        FROM outbox_dlq
        WHERE quarantined_at IS NULL AND next_retry_at <= NOW()
        ORDER BY next_retry_at
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, query, m.batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]dlqEntry, 0)
	for rows.Next() {
		var entry dlqEntry
		if err := rows.Scan(&entry.EventID, &entry.AggregateType, &entry.AggregateID, &entry.EventType, &entry.Topic, &entry.SchemaSubject, &entry.PartitionKey, &entry.Payload, &entry.RetryCount); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.EventID)
	}
	if len(ids) > 0 {
		if _, err := tx.Exec(ctx, `UPDATE outbox_dlq SET last_attempt_at = NOW() WHERE event_id = ANY($1)`, ids); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entries, nil
}

func (m *DLQManager) process(ctx context.Context, entry dlqEntry) error {
	if err := m.redeliver(ctx, entry); err != nil {
		return m.recordFailure(ctx, entry, err)
	}

	if _, err := m.pool.Exec(ctx, `DELETE FROM outbox_dlq WHERE event_id = $1`, entry.EventID); err != nil {
		return err
	}
	recordDLQRedelivered(entry.Topic)
	return nil
}

func (m *DLQManager) redeliver(ctx context.Context, entry dlqEntry) error {
	meta, ok := schemaCatalog[entry.EventType]
	if !ok {
		return fmt.Errorf("no schema metadata for event_type=%s", entry.EventType)
	}

	schemaID, err := m.registry.EnsureSchema(ctx, entry.SchemaSubject, meta.Schema)
	if err != nil {
		return err
	}

	record := kafka.Message{
		Key:   []byte(entry.PartitionKey),
		Value: encodeWireFormat(schemaID, []byte(entry.Payload)),
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(entry.EventType)},
			{Key: "schema_subject", Value: []byte(entry.SchemaSubject)},
		},
	}

	return m.producer.WriteMessages(ctx, entry.Topic, record)
}

func (m *DLQManager) recordFailure(ctx context.Context, entry dlqEntry, cause error) error {
	retries := entry.RetryCount + 1
	if retries >= m.maxRetries {
		_, err := m.pool.Exec(ctx,
			`UPDATE outbox_dlq SET retry_count = $2, quarantined_at = NOW(), quarantine_reason = $3 WHERE event_id = $1`,
			entry.EventID, retries, cause.Error())
		if err != nil {
			return err
		}
		recordDLQQuarantined(entry.Topic)
		log.Printf("dlq: event %d quarantined after %d attempts", entry.EventID, retries)
		return nil
	}

	delay := m.backoff(retries)
	_, err := m.pool.Exec(ctx,
		`UPDATE outbox_dlq SET retry_count = $2, next_retry_at = NOW() + $3 WHERE event_id = $1`,
		entry.EventID, retries, delay)
	if err != nil {
		return err
	}
	recordDLQRetry(entry.Topic)
	return nil
}

// backoff doubles the base delay per attempt, capped at one hour.
func (m *DLQManager) backoff(retries int) time.Duration {
	delay := m.baseDelay
	for i := 1; i < retries; i++ {
		delay *= 2
		if delay >= time.Hour {
			return time.Hour
		}
	}
	return delay
}

func (m *DLQManager) updateBacklogGauge(ctx context.Context) error {
	rows, err := m.pool.Query(ctx,
		`SELECT topic, COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL GROUP BY topic`)
	if err != nil {
		return err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var topic string
		var count int64
		if err := rows.Scan(&topic, &count); err != nil {
			return err
		}
		counts[topic] = count
	}
	if err := rows.Err(); err != nil {
		return err
	}

	setDLQBacklog(counts)
	return nil
}

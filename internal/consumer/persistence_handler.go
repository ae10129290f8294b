package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/tracking/internal/events"
)

// PersistenceHandler writes consumed events into Postgres. Every event lands
// in activity_event_log; completed activities additionally roll up into the
// user_daily_stats read model. Both writes happen in one transaction keyed on
// the record's topic/partition/offset, so a redelivered event is a no-op for
// the rollup as well as the log.
type PersistenceHandler struct {
	pool *pgxpool.Pool
}

// NewPersistenceHandler constructs a handler backed by the provided pool.
func NewPersistenceHandler(pool *pgxpool.Pool) *PersistenceHandler {
	return &PersistenceHandler{pool: pool}
}

// Handle persists the event.
func (h *PersistenceHandler) Handle(ctx context.Context, event Event) error {
	tx, err := h.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx,
		`INSERT INTO activity_event_log (event_type, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
         ON CONFLICT (topic, partition, record_offset) DO NOTHING`,
		event.EventType,
		event.SchemaID,
		event.SchemaSubject,
		event.Topic,
		event.Partition,
		event.Offset,
		event.Payload,
		event.Timestamp,
	)
	if err != nil {
		return err
	}

	// Zero rows means this exact record was already applied; the rollup
	// must not run again or redelivery would double-count.
	if tag.RowsAffected() == 1 && event.EventType == "activity.completed" {
		if err = applyCompleted(ctx, tx, event); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func applyCompleted(ctx context.Context, tx pgx.Tx, event Event) error {
	var completed events.ActivityCompleted
	if err := json.Unmarshal(event.Payload, &completed); err != nil {
		return fmt.Errorf("decode activity.completed payload: %w", err)
	}

	day := completed.EndedAt.UTC().Truncate(24 * time.Hour)

	_, err := tx.Exec(ctx,
		`INSERT INTO user_daily_stats (user_id, day, activity_count, step_count, distance_m, calories_burned, altitude_gain_m)
         VALUES ($1, $2, 1, $3, $4, $5, $6)
         ON CONFLICT (user_id, day) DO UPDATE SET
            activity_count  = user_daily_stats.activity_count + 1,
            step_count      = user_daily_stats.step_count + EXCLUDED.step_count,
            distance_m      = user_daily_stats.distance_m + EXCLUDED.distance_m,
            calories_burned = user_daily_stats.calories_burned + EXCLUDED.calories_burned,
            altitude_gain_m = user_daily_stats.altitude_gain_m + EXCLUDED.altitude_gain_m,
            updated_at      = NOW()`,
		completed.UserID,
		day,
		completed.StepCount,
		completed.DistanceM,
		completed.CaloriesBurned,
		completed.AltitudeGainM,
	)
	return err
}

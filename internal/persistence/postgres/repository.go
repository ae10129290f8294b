package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/tracking/internal/domain"
	"example.com/tracking/internal/events"
	"example.com/tracking/internal/observability"
)

// Repository provides Postgres-backed persistence for activities and outbox
// events. Telemetry arrays live in JSONB columns; appends concatenate under
// the row lock, so concurrent samples never interleave partial writes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const activityColumns = `activity_id, user_id, activity_type, state, started_at, ended_at,
        location_data, altitude_changes, distance_km, calories_burned, step_count,
        pace, speed_kmh, altitude_gain_m, weather, created_at, updated_at`

// Create persists the aggregate and records the started event inside a single transaction.
func (r *Repository) Create(ctx context.Context, aggregate domain.ActivityAggregate) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const insertActivity = `INSERT INTO activities (activity_id, user_id, activity_type, state, started_at, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err = tx.Exec(ctx, insertActivity,
		aggregate.ID,
		aggregate.UserID,
		aggregate.Type,
		aggregate.State,
		aggregate.StartedAt,
		aggregate.CreatedAt,
		aggregate.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, aggregate, "activity.started", events.ActivityStarted{
		ActivityID:   aggregate.ID,
		UserID:       aggregate.UserID,
		ActivityType: string(aggregate.Type),
		StartedAt:    aggregate.StartedAt,
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordActivityStarted(aggregate.CreatedAt)
	return nil
}

// Get retrieves an activity by ID. Missing rows yield (nil, nil).
func (r *Repository) Get(ctx context.Context, activityID string) (*domain.ActivityAggregate, error) {
	query := fmt.Sprintf(`SELECT %s FROM activities WHERE activity_id=$1`, activityColumns)

	row := r.pool.QueryRow(ctx, query, activityID)
	aggregate, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return aggregate, nil
}

// AppendTelemetry appends one location/altitude pair in a single guarded
// UPDATE. It returns nil when no active row matched, letting the caller
// distinguish not-found from already-terminal.
func (r *Repository) AppendTelemetry(ctx context.Context, activityID string, location domain.LocationSample, altitude domain.AltitudeSample, stepCount *int, calories *float64) (*domain.ActivityAggregate, error) {
	locationJSON, err := json.Marshal([]domain.LocationSample{location})
	if err != nil {
		return nil, err
	}
	altitudeJSON, err := json.Marshal([]domain.AltitudeSample{altitude})
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`UPDATE activities
        SET location_data = location_data || $2::jsonb,
            altitude_changes = altitude_changes || $3::jsonb,
            step_count = COALESCE($4, step_count),
            calories_burned = COALESCE($5, calories_burned),
            updated_at = NOW()
        WHERE activity_id = $1 AND state = 'active'
        RETURNING %s`, activityColumns)

	row := r.pool.QueryRow(ctx, query, activityID, locationJSON, altitudeJSON, stepCount, calories)
	aggregate, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return aggregate, nil
}

// Finalize transitions the activity to ended and records the completed event
// in the same transaction. The conditional UPDATE makes concurrent ends
// resolve to exactly one winner.
func (r *Repository) Finalize(ctx context.Context, aggregate domain.ActivityAggregate) (bool, error) {
	locationJSON, err := json.Marshal(aggregate.Locations)
	if err != nil {
		return false, err
	}

	var weatherJSON []byte
	if aggregate.Weather != nil {
		if weatherJSON, err = json.Marshal(aggregate.Weather); err != nil {
			return false, err
		}
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const update = `UPDATE activities
        SET state = 'ended',
            ended_at = $2,
            location_data = $3,
            distance_km = $4,
            calories_burned = $5,
            step_count = $6,
            pace = $7,
            speed_kmh = $8,
            altitude_gain_m = $9,
            weather = $10,
            updated_at = $11
        WHERE activity_id = $1 AND state = 'active'`

	tag, err := tx.Exec(ctx, update,
		aggregate.ID,
		aggregate.EndedAt,
		locationJSON,
		aggregate.DistanceKM,
		aggregate.CaloriesBurned,
		aggregate.StepCount,
		aggregate.Pace,
		aggregate.SpeedKMH,
		aggregate.AltitudeGainM,
		nullIfEmptyJSON(weatherJSON),
		aggregate.UpdatedAt,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		tx.Rollback(ctx)
		return false, nil
	}

	var endedAt time.Time
	if aggregate.EndedAt != nil {
		endedAt = *aggregate.EndedAt
	}
	if err = insertOutbox(ctx, tx, aggregate, "activity.completed", events.ActivityCompleted{
		ActivityID:      aggregate.ID,
		UserID:          aggregate.UserID,
		ActivityType:    string(aggregate.Type),
		StartedAt:       aggregate.StartedAt,
		EndedAt:         endedAt,
		DistanceM:       aggregate.DistanceKM * 1000,
		CaloriesBurned:  aggregate.CaloriesBurned,
		StepCount:       aggregate.StepCount,
		AltitudeGainM:   aggregate.AltitudeGainM,
		DurationSeconds: endedAt.Sub(aggregate.StartedAt).Seconds(),
	}); err != nil {
		return false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	observability.RecordActivityFinalized(string(aggregate.Type), aggregate.UpdatedAt)
	return true, nil
}

// Cancel marks the activity cancelled and records the event. Cancelled rows
// stay in the table for auditability but drop out of every listing.
func (r *Repository) Cancel(ctx context.Context, activityID string, occurredAt time.Time) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const update = `UPDATE activities
        SET state = 'cancelled', updated_at = $2
        WHERE activity_id = $1 AND state = 'active'
        RETURNING user_id`

	var userID string
	if err = tx.QueryRow(ctx, update, activityID, occurredAt).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			tx.Rollback(ctx)
			return false, nil
		}
		return false, err
	}

	cancelled := domain.ActivityAggregate{ID: activityID, UserID: userID}
	if err = insertOutbox(ctx, tx, cancelled, "activity.cancelled", events.ActivityCancelled{
		ActivityID: activityID,
		UserID:     userID,
		OccurredAt: occurredAt,
	}); err != nil {
		return false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ListByUser returns the user's non-cancelled activities ordered by time.
func (r *Repository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.ActivityAggregate, *domain.Cursor, error) {
	args := []interface{}{userID, limit}
	query := fmt.Sprintf(`SELECT %s FROM activities WHERE user_id=$1 AND state <> 'cancelled'`, activityColumns)

	if cursor != nil {
		query += ` AND (started_at, activity_id) < ($3, $4)`
		args = append(args, cursor.StartedAt, cursor.ID)
	}

	query += ` ORDER BY started_at DESC, activity_id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.ActivityAggregate, 0, limit)
	for rows.Next() {
		aggregate, err := scanActivity(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, *aggregate)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{StartedAt: last.StartedAt, ID: last.ID}
	}

	return results, nextCursor, nil
}

// ListByUserSince returns the user's non-cancelled activities started on or
// after the given instant, oldest first. Feeds the weekly aggregator.
func (r *Repository) ListByUserSince(ctx context.Context, userID string, since time.Time) ([]domain.ActivityAggregate, error) {
	query := fmt.Sprintf(`SELECT %s FROM activities
        WHERE user_id=$1 AND state <> 'cancelled' AND started_at >= $2
        ORDER BY started_at ASC, activity_id ASC`, activityColumns)

	rows, err := r.pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.ActivityAggregate
	for rows.Next() {
		aggregate, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *aggregate)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func scanActivity(row pgx.Row) (*domain.ActivityAggregate, error) {
	var (
		agg          domain.ActivityAggregate
		locationJSON []byte
		altitudeJSON []byte
		weatherJSON  []byte
	)

	if err := row.Scan(
		&agg.ID,
		&agg.UserID,
		&agg.Type,
		&agg.State,
		&agg.StartedAt,
		&agg.EndedAt,
		&locationJSON,
		&altitudeJSON,
		&agg.DistanceKM,
		&agg.CaloriesBurned,
		&agg.StepCount,
		&agg.Pace,
		&agg.SpeedKMH,
		&agg.AltitudeGainM,
		&weatherJSON,
		&agg.CreatedAt,
		&agg.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(locationJSON) > 0 {
		if err := json.Unmarshal(locationJSON, &agg.Locations); err != nil {
			return nil, err
		}
	}
	if len(altitudeJSON) > 0 {
		if err := json.Unmarshal(altitudeJSON, &agg.Altitudes); err != nil {
			return nil, err
		}
	}
	if len(weatherJSON) > 0 {
		var snapshot domain.WeatherSnapshot
		if err := json.Unmarshal(weatherJSON, &snapshot); err != nil {
			return nil, err
		}
		agg.Weather = &snapshot
	}
	return &agg, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, aggregate domain.ActivityAggregate, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	partitionKey := meta.PartitionKeyFn(aggregate)
	dedupeKey := fmt.Sprintf("%s:%s", aggregate.ID, eventType)

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		"activity",
		aggregate.ID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

func nullIfEmptyJSON(value []byte) interface{} {
	if len(value) == 0 {
		return nil
	}
	return value
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.ActivityAggregate) string
}

var eventCatalog = map[string]EventMetadata{
	"activity.started": {
		Topic:         "activity_events",
		SchemaSubject: "activity_events-value",
		PartitionKeyFn: func(a domain.ActivityAggregate) string {
			return a.UserID
		},
	},
	"activity.completed": {
		Topic:         "activity_lifecycle",
		SchemaSubject: "activity_lifecycle-value",
		PartitionKeyFn: func(a domain.ActivityAggregate) string {
			return a.ID
		},
	},
	"activity.cancelled": {
		Topic:         "activity_lifecycle",
		SchemaSubject: "activity_lifecycle-value",
		PartitionKeyFn: func(a domain.ActivityAggregate) string {
			return a.ID
		},
	},
}

// Package events defines the payloads emitted through the outbox.
package events

import "time"

// ActivityStarted is emitted when a new tracked activity is created.
type ActivityStarted struct {
	ActivityID   string    `json:"activity_id"`
	UserID       string    `json:"user_id"`
	ActivityType string    `json:"activity_type"`
	StartedAt    time.Time `json:"started_at"`
}

// ActivityCompleted carries the finalized metrics for read models and charts.
type ActivityCompleted struct {
	ActivityID      string    `json:"activity_id"`
	UserID          string    `json:"user_id"`
	ActivityType    string    `json:"activity_type"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DistanceM       float64   `json:"distance_m"`
	CaloriesBurned  float64   `json:"calories_burned"`
	StepCount       int       `json:"step_count"`
	AltitudeGainM   float64   `json:"altitude_gain_m"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// ActivityCancelled marks a discarded activity so read models can drop it.
type ActivityCancelled struct {
	ActivityID string    `json:"activity_id"`
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Package domain defines the activity lifecycle and its business logic.
package domain

import (
	"errors"
	"time"
)

var (
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrActivityNotActive is returned when a lifecycle operation targets an
	// activity that has already been ended or cancelled.
	ErrActivityNotActive = errors.New("activity is not active")
	// ErrNotOwner is returned when a caller operates on another user's activity.
	ErrNotOwner = errors.New("activity belongs to another user")
	// ErrInvalidActivityType is returned for activity types outside the known set.
	ErrInvalidActivityType = errors.New("invalid activity type")
)

// ActivityType enumerates the supported workout kinds.
type ActivityType string

const (
	ActivityTypeRun   ActivityType = "Run"
	ActivityTypeWalk  ActivityType = "Walk"
	ActivityTypeCycle ActivityType = "Cycle"
	ActivityTypeHike  ActivityType = "Hike"
)

// ValidActivityType reports whether t is one of the enumerated kinds.
func ValidActivityType(t ActivityType) bool {
	switch t {
	case ActivityTypeRun, ActivityTypeWalk, ActivityTypeCycle, ActivityTypeHike:
		return true
	}
	return false
}

// ActivityState is the explicit lifecycle tag of an activity record.
type ActivityState string

const (
	ActivityStateActive    ActivityState = "active"
	ActivityStateEnded     ActivityState = "ended"
	ActivityStateCancelled ActivityState = "cancelled"
)

// LocationSample is one GPS fix on the activity's path. RecordedAt is stamped
// server-side at append time and orders samples at finalization, so a delayed
// retry cannot reorder the path.
type LocationSample struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RecordedAt time.Time `json:"recorded_at"`
}

// AltitudeSample is one altitude reading, timestamped server-side to decouple
// it from device clock skew.
type AltitudeSample struct {
	Time     time.Time `json:"time"`
	Altitude float64   `json:"altitude"`
}

// WeatherSnapshot captures the conditions attached to a finalized activity.
type WeatherSnapshot struct {
	Temperature        float64 `json:"temperature"`
	Humidity           float64 `json:"humidity"`
	WindSpeed          float64 `json:"wind_speed"`
	WeatherDescription string  `json:"weather_description"`
	Precipitation      float64 `json:"precipitation"`
}

// ActivityAggregate is the tracked workout stored in Postgres. Telemetry
// arrays are append-only while the activity is active and frozen afterwards.
type ActivityAggregate struct {
	ID             string
	UserID         string
	Type           ActivityType
	State          ActivityState
	StartedAt      time.Time
	EndedAt        *time.Time
	Locations      []LocationSample
	Altitudes      []AltitudeSample
	DistanceKM     float64
	CaloriesBurned float64
	StepCount      int
	Pace           string
	SpeedKMH       float64
	AltitudeGainM  float64
	Weather        *WeatherSnapshot
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Active reports whether the activity still accepts telemetry.
func (a *ActivityAggregate) Active() bool {
	return a.State == ActivityStateActive
}

// Cursor models the pagination token for activity listings.
type Cursor struct {
	StartedAt time.Time
	ID        string
}

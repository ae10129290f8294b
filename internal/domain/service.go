package domain

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"example.com/tracking/internal/geo"
)

// ErrInvalidEndTime is returned when a finalization timestamp precedes the
// activity's start.
var ErrInvalidEndTime = errors.New("end time precedes start time")

// ActivityRepository captures persistence operations. Append and the two
// terminal transitions are conditional on the active state so concurrent
// callers resolve to a single winner.
type ActivityRepository interface {
	Create(ctx context.Context, aggregate ActivityAggregate) error
	Get(ctx context.Context, activityID string) (*ActivityAggregate, error)
	// AppendTelemetry atomically appends one location/altitude pair while the
	// activity is active, optionally updating running counters. It returns
	// nil when no active row matched.
	AppendTelemetry(ctx context.Context, activityID string, location LocationSample, altitude AltitudeSample, stepCount *int, calories *float64) (*ActivityAggregate, error)
	// Finalize transitions the activity to ended, guarded on the active
	// state. The bool reports whether this call won the transition.
	Finalize(ctx context.Context, aggregate ActivityAggregate) (bool, error)
	// Cancel transitions the activity to cancelled, guarded likewise.
	Cancel(ctx context.Context, activityID string, occurredAt time.Time) (bool, error)
	ListByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]ActivityAggregate, *Cursor, error)
	ListByUserSince(ctx context.Context, userID string, since time.Time) ([]ActivityAggregate, error)
}

// WeatherProvider fetches a best-effort conditions snapshot for a coordinate.
type WeatherProvider interface {
	Snapshot(ctx context.Context, latitude, longitude float64) (*WeatherSnapshot, error)
}

const weatherTimeout = 3 * time.Second

// Service orchestrates the activity lifecycle.
type Service struct {
	repo    ActivityRepository
	weather WeatherProvider
	logger  *log.Logger
}

// NewService constructs a Service. The weather provider may be nil, in which
// case finalized activities simply carry no snapshot.
func NewService(repo ActivityRepository, weather WeatherProvider) *Service {
	return &Service{
		repo:    repo,
		weather: weather,
		logger:  log.New(log.Writer(), "[activity] ", log.LstdFlags),
	}
}

// StartActivityInput captures the payload for starting a tracked activity.
type StartActivityInput struct {
	UserID    string
	Type      ActivityType
	StartedAt time.Time
}

// AppendTelemetryInput carries one streamed telemetry sample. UserID is the
// acting identity from the bearer token, not a client-supplied field.
type AppendTelemetryInput struct {
	ActivityID     string
	UserID         string
	Latitude       float64
	Longitude      float64
	Altitude       float64
	StepCount      *int
	CaloriesBurned *float64
}

// EndActivityInput captures the finalization payload. Client-supplied step
// and calorie counts take precedence over server-derived values.
type EndActivityInput struct {
	ActivityID     string
	UserID         string
	EndedAt        time.Time
	StepCount      *int
	CaloriesBurned *float64
}

// Start creates a new activity in the active state with empty telemetry.
func (s *Service) Start(ctx context.Context, input StartActivityInput) (*ActivityAggregate, error) {
	if !ValidActivityType(input.Type) {
		return nil, ErrInvalidActivityType
	}

	now := time.Now().UTC()
	startedAt := input.StartedAt.UTC()
	if startedAt.IsZero() {
		startedAt = now
	}

	aggregate := ActivityAggregate{
		ID:        uuid.NewString(),
		UserID:    input.UserID,
		Type:      input.Type,
		State:     ActivityStateActive,
		StartedAt: startedAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, aggregate); err != nil {
		return nil, err
	}
	return &aggregate, nil
}

// AppendTelemetry appends one location/altitude pair to an active activity
// owned by the caller. The altitude sample is timestamped server-side.
func (s *Service) AppendTelemetry(ctx context.Context, input AppendTelemetryInput) (*ActivityAggregate, error) {
	activity, err := s.load(ctx, input.ActivityID, input.UserID)
	if err != nil {
		return nil, err
	}
	if !activity.Active() {
		return nil, ErrActivityNotActive
	}

	now := time.Now().UTC()
	location := LocationSample{Latitude: input.Latitude, Longitude: input.Longitude, RecordedAt: now}
	altitude := AltitudeSample{Time: now, Altitude: input.Altitude}

	updated, err := s.repo.AppendTelemetry(ctx, input.ActivityID, location, altitude, input.StepCount, input.CaloriesBurned)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// Ended or cancelled between the load and the guarded append.
		return nil, ErrActivityNotActive
	}
	return updated, nil
}

// End finalizes an activity: it freezes telemetry, recomputes the distance
// from the accumulated path, derives the remaining metrics, and attaches a
// weather snapshot when one can be fetched. At most one caller wins the
// transition; losers observe ErrActivityNotActive.
func (s *Service) End(ctx context.Context, input EndActivityInput) (*ActivityAggregate, error) {
	activity, err := s.load(ctx, input.ActivityID, input.UserID)
	if err != nil {
		return nil, err
	}
	if !activity.Active() {
		return nil, ErrActivityNotActive
	}

	endedAt := input.EndedAt.UTC()
	if endedAt.IsZero() {
		endedAt = time.Now().UTC()
	}
	if endedAt.Before(activity.StartedAt) {
		return nil, ErrInvalidEndTime
	}

	locations := sortedLocations(activity.Locations)
	distanceKM := geo.PathDistanceKM(locationPoints(locations))

	steps := activity.StepCount
	if input.StepCount != nil {
		steps = *input.StepCount
	}

	metrics := ComputeMetrics(activity.Type, endedAt.Sub(activity.StartedAt), steps, distanceKM, activity.Altitudes)

	calories := metrics.CaloriesBurned
	if input.CaloriesBurned != nil {
		calories = *input.CaloriesBurned
	}

	activity.State = ActivityStateEnded
	activity.EndedAt = &endedAt
	activity.Locations = locations
	activity.DistanceKM = distanceKM
	activity.StepCount = steps
	activity.CaloriesBurned = calories
	activity.Pace = metrics.Pace
	activity.SpeedKMH = metrics.SpeedKMH
	activity.AltitudeGainM = metrics.AltitudeGainM
	activity.Weather = s.fetchWeather(ctx, locations)
	activity.UpdatedAt = time.Now().UTC()

	won, err := s.repo.Finalize(ctx, *activity)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrActivityNotActive
	}
	return activity, nil
}

// Cancel discards an active activity. No metrics are computed and the record
// is excluded from listings.
func (s *Service) Cancel(ctx context.Context, activityID, userID string) error {
	activity, err := s.load(ctx, activityID, userID)
	if err != nil {
		return err
	}
	if !activity.Active() {
		return ErrActivityNotActive
	}

	won, err := s.repo.Cancel(ctx, activityID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !won {
		return ErrActivityNotActive
	}
	return nil
}

// Get fetches an activity owned by the caller.
func (s *Service) Get(ctx context.Context, activityID, userID string) (*ActivityAggregate, error) {
	return s.load(ctx, activityID, userID)
}

// ListByUser fetches a user's activities with cursor pagination.
func (s *Service) ListByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]ActivityAggregate, *Cursor, error) {
	return s.repo.ListByUser(ctx, userID, cursor, limit)
}

// Weekly builds the trailing 7-day chart series anchored at the given day.
func (s *Service) Weekly(ctx context.Context, userID string, anchor time.Time, loc *time.Location) (WeeklySeries, error) {
	if loc == nil {
		loc = time.UTC
	}
	start := anchor.In(loc).AddDate(0, 0, -(WeeklyDays - 1))
	windowStart := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)

	activities, err := s.repo.ListByUserSince(ctx, userID, windowStart)
	if err != nil {
		return WeeklySeries{}, err
	}
	return ComputeWeeklySeries(activities, anchor, loc), nil
}

func (s *Service) load(ctx context.Context, activityID, userID string) (*ActivityAggregate, error) {
	activity, err := s.repo.Get(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	if activity.UserID != userID {
		return nil, ErrNotOwner
	}
	return activity, nil
}

// fetchWeather is best-effort: a provider failure is logged and finalization
// proceeds without a snapshot.
func (s *Service) fetchWeather(ctx context.Context, locations []LocationSample) *WeatherSnapshot {
	if s.weather == nil || len(locations) == 0 {
		return nil
	}

	last := locations[len(locations)-1]
	weatherCtx, cancel := context.WithTimeout(ctx, weatherTimeout)
	defer cancel()

	snapshot, err := s.weather.Snapshot(weatherCtx, last.Latitude, last.Longitude)
	if err != nil {
		s.logger.Printf("weather snapshot unavailable: %v", err)
		return nil
	}
	return snapshot
}

func sortedLocations(locations []LocationSample) []LocationSample {
	sorted := make([]LocationSample, len(locations))
	copy(sorted, locations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RecordedAt.Before(sorted[j].RecordedAt)
	})
	return sorted
}

func locationPoints(locations []LocationSample) []geo.Point {
	points := make([]geo.Point, len(locations))
	for i, sample := range locations {
		points[i] = geo.Point{Latitude: sample.Latitude, Longitude: sample.Longitude}
	}
	return points
}

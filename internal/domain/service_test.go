package domain

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func TestStartRejectsUnknownActivityType(t *testing.T) {
	service := NewService(newMemoryRepo(), nil)

	_, err := service.Start(context.Background(), StartActivityInput{
		UserID: "user-1",
		Type:   ActivityType("Swim"),
	})
	if !errors.Is(err, ErrInvalidActivityType) {
		t.Fatalf("expected ErrInvalidActivityType, got %v", err)
	}
}

func TestStartCreatesActiveActivityWithEmptyTelemetry(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, nil)

	started := time.Date(2026, time.April, 2, 7, 0, 0, 0, time.UTC)
	activity, err := service.Start(context.Background(), StartActivityInput{
		UserID:    "user-1",
		Type:      ActivityTypeRun,
		StartedAt: started,
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if activity.State != ActivityStateActive {
		t.Fatalf("expected active state, got %s", activity.State)
	}
	if len(activity.Locations) != 0 || len(activity.Altitudes) != 0 {
		t.Fatal("expected empty telemetry on start")
	}
	if !activity.StartedAt.Equal(started) {
		t.Fatalf("expected start time preserved, got %v", activity.StartedAt)
	}
}

func TestAppendTelemetryAccumulatesSamples(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, nil)
	activity := mustStart(t, service, "user-1", ActivityTypeRun)

	for i := 0; i < 3; i++ {
		_, err := service.AppendTelemetry(context.Background(), AppendTelemetryInput{
			ActivityID: activity.ID,
			UserID:     "user-1",
			Latitude:   46.0 + float64(i)*0.001,
			Longitude:  14.5,
			Altitude:   300 + float64(i),
		})
		if err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}

	stored := repo.activities[activity.ID]
	if len(stored.Locations) != 3 {
		t.Fatalf("expected 3 location samples, got %d", len(stored.Locations))
	}
	if len(stored.Altitudes) != 3 {
		t.Fatalf("expected 3 altitude samples, got %d", len(stored.Altitudes))
	}
	if stored.Altitudes[0].Time.IsZero() {
		t.Fatal("altitude samples must carry a server-side timestamp")
	}
}

func TestAppendTelemetryRejectsOtherUsers(t *testing.T) {
	service := NewService(newMemoryRepo(), nil)
	activity := mustStart(t, service, "user-1", ActivityTypeWalk)

	_, err := service.AppendTelemetry(context.Background(), AppendTelemetryInput{
		ActivityID: activity.ID,
		UserID:     "user-2",
		Latitude:   46,
		Longitude:  14,
	})
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestAppendTelemetryUnknownActivity(t *testing.T) {
	service := NewService(newMemoryRepo(), nil)

	_, err := service.AppendTelemetry(context.Background(), AppendTelemetryInput{
		ActivityID: "missing",
		UserID:     "user-1",
	})
	if !errors.Is(err, ErrActivityNotFound) {
		t.Fatalf("expected ErrActivityNotFound, got %v", err)
	}
}

func TestEndComputesDistanceAndMetrics(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, nil)

	started := time.Now().UTC().Add(-300 * time.Second)
	activity := mustStart(t, service, "user-1", ActivityTypeRun)
	repo.activities[activity.ID].StartedAt = started

	// Three fixes tracing roughly 500 m due north.
	for _, lat := range []float64{46.0, 46.00225, 46.0045} {
		if _, err := service.AppendTelemetry(context.Background(), AppendTelemetryInput{
			ActivityID: activity.ID,
			UserID:     "user-1",
			Latitude:   lat,
			Longitude:  14.5,
			Altitude:   300,
		}); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	steps := 600
	ended, err := service.End(context.Background(), EndActivityInput{
		ActivityID: activity.ID,
		UserID:     "user-1",
		EndedAt:    started.Add(300 * time.Second),
		StepCount:  &steps,
	})
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}

	if ended.State != ActivityStateEnded {
		t.Fatalf("expected ended state, got %s", ended.State)
	}
	if math.Abs(ended.DistanceKM-0.5) > 0.01 {
		t.Fatalf("expected ~0.5 km, got %f", ended.DistanceKM)
	}
	if math.Abs(ended.CaloriesBurned-36) > 1e-9 {
		t.Fatalf("expected 36 kcal, got %f", ended.CaloriesBurned)
	}
	if ended.Pace != "10:00 min/km" {
		t.Fatalf("expected 10:00 min/km, got %q", ended.Pace)
	}
	if ended.EndedAt == nil || ended.EndedAt.Before(ended.StartedAt) {
		t.Fatal("end time must be set and not precede the start")
	}
}

func TestEndIsOneWay(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, nil)
	activity := mustStart(t, service, "user-1", ActivityTypeWalk)

	first, err := service.End(context.Background(), EndActivityInput{
		ActivityID: activity.ID,
		UserID:     "user-1",
		EndedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("first end failed: %v", err)
	}

	_, err = service.End(context.Background(), EndActivityInput{
		ActivityID: activity.ID,
		UserID:     "user-1",
		EndedAt:    time.Now().UTC(),
	})
	if !errors.Is(err, ErrActivityNotActive) {
		t.Fatalf("expected ErrActivityNotActive on second end, got %v", err)
	}

	if repo.activities[activity.ID].DistanceKM != first.DistanceKM {
		t.Fatal("distance must not change after the winning end")
	}
}

func TestEndRejectsTimeBeforeStart(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, nil)
	activity := mustStart(t, service, "user-1", ActivityTypeRun)

	_, err := service.End(context.Background(), EndActivityInput{
		ActivityID: activity.ID,
		UserID:     "user-1",
		EndedAt:    repo.activities[activity.ID].StartedAt.Add(-time.Minute),
	})
	if !errors.Is(err, ErrInvalidEndTime) {
		t.Fatalf("expected ErrInvalidEndTime, got %v", err)
	}
}

func TestEndSurvivesWeatherFailure(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, failingWeather{})
	activity := mustStart(t, service, "user-1", ActivityTypeRun)

	if _, err := service.AppendTelemetry(context.Background(), AppendTelemetryInput{
		ActivityID: activity.ID,
		UserID:     "user-1",
		Latitude:   46,
		Longitude:  14.5,
	}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	ended, err := service.End(context.Background(), EndActivityInput{
		ActivityID: activity.ID,
		UserID:     "user-1",
		EndedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("end must not fail on weather errors: %v", err)
	}
	if ended.Weather != nil {
		t.Fatal("expected no snapshot after provider failure")
	}
}

func TestEndAttachesWeatherSnapshot(t *testing.T) {
	repo := newMemoryRepo()
	snapshot := &WeatherSnapshot{Temperature: 21.5, WeatherDescription: "clear sky"}
	service := NewService(repo, staticWeather{snapshot: snapshot})
	activity := mustStart(t, service, "user-1", ActivityTypeCycle)

	if _, err := service.AppendTelemetry(context.Background(), AppendTelemetryInput{
		ActivityID: activity.ID,
		UserID:     "user-1",
		Latitude:   46,
		Longitude:  14.5,
	}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	ended, err := service.End(context.Background(), EndActivityInput{
		ActivityID: activity.ID,
		UserID:     "user-1",
		EndedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if ended.Weather == nil || ended.Weather.WeatherDescription != "clear sky" {
		t.Fatalf("expected snapshot attached, got %+v", ended.Weather)
	}
}

func TestCancelFreezesTelemetry(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, nil)
	activity := mustStart(t, service, "user-1", ActivityTypeHike)

	if err := service.Cancel(context.Background(), activity.ID, "user-1"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	_, err := service.AppendTelemetry(context.Background(), AppendTelemetryInput{
		ActivityID: activity.ID,
		UserID:     "user-1",
		Latitude:   46,
		Longitude:  14,
	})
	if !errors.Is(err, ErrActivityNotActive) {
		t.Fatalf("expected ErrActivityNotActive, got %v", err)
	}
	if len(repo.activities[activity.ID].Locations) != 0 {
		t.Fatal("cancelled activity telemetry must not grow")
	}

	if err := service.Cancel(context.Background(), activity.ID, "user-1"); !errors.Is(err, ErrActivityNotActive) {
		t.Fatalf("expected conflict on second cancel, got %v", err)
	}
}

func mustStart(t *testing.T, service *Service, userID string, kind ActivityType) *ActivityAggregate {
	t.Helper()
	activity, err := service.Start(context.Background(), StartActivityInput{
		UserID:    userID,
		Type:      kind,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	return activity
}

// memoryRepo mirrors the Postgres repository's state-guard semantics.
type memoryRepo struct {
	activities map[string]*ActivityAggregate
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{activities: make(map[string]*ActivityAggregate)}
}

func (m *memoryRepo) Create(_ context.Context, aggregate ActivityAggregate) error {
	stored := aggregate
	m.activities[aggregate.ID] = &stored
	return nil
}

func (m *memoryRepo) Get(_ context.Context, activityID string) (*ActivityAggregate, error) {
	stored, ok := m.activities[activityID]
	if !ok {
		return nil, nil
	}
	copied := *stored
	return &copied, nil
}

func (m *memoryRepo) AppendTelemetry(_ context.Context, activityID string, location LocationSample, altitude AltitudeSample, stepCount *int, calories *float64) (*ActivityAggregate, error) {
	stored, ok := m.activities[activityID]
	if !ok || stored.State != ActivityStateActive {
		return nil, nil
	}
	stored.Locations = append(stored.Locations, location)
	stored.Altitudes = append(stored.Altitudes, altitude)
	if stepCount != nil {
		stored.StepCount = *stepCount
	}
	if calories != nil {
		stored.CaloriesBurned = *calories
	}
	copied := *stored
	return &copied, nil
}

func (m *memoryRepo) Finalize(_ context.Context, aggregate ActivityAggregate) (bool, error) {
	stored, ok := m.activities[aggregate.ID]
	if !ok || stored.State != ActivityStateActive {
		return false, nil
	}
	copied := aggregate
	m.activities[aggregate.ID] = &copied
	return true, nil
}

func (m *memoryRepo) Cancel(_ context.Context, activityID string, occurredAt time.Time) (bool, error) {
	stored, ok := m.activities[activityID]
	if !ok || stored.State != ActivityStateActive {
		return false, nil
	}
	stored.State = ActivityStateCancelled
	stored.UpdatedAt = occurredAt
	return true, nil
}

func (m *memoryRepo) ListByUser(_ context.Context, userID string, _ *Cursor, _ int) ([]ActivityAggregate, *Cursor, error) {
	var out []ActivityAggregate
	for _, stored := range m.activities {
		if stored.UserID == userID && stored.State != ActivityStateCancelled {
			out = append(out, *stored)
		}
	}
	return out, nil, nil
}

func (m *memoryRepo) ListByUserSince(_ context.Context, userID string, since time.Time) ([]ActivityAggregate, error) {
	var out []ActivityAggregate
	for _, stored := range m.activities {
		if stored.UserID == userID && stored.State != ActivityStateCancelled && !stored.StartedAt.Before(since) {
			out = append(out, *stored)
		}
	}
	return out, nil
}

type failingWeather struct{}

func (failingWeather) Snapshot(context.Context, float64, float64) (*WeatherSnapshot, error) {
	return nil, errors.New("upstream timeout")
}

type staticWeather struct {
	snapshot *WeatherSnapshot
}

func (w staticWeather) Snapshot(context.Context, float64, float64) (*WeatherSnapshot, error) {
	return w.snapshot, nil
}

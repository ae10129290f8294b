package domain

import (
	"math"
	"testing"
	"time"
)

func TestWeeklySeriesEmptyHistory(t *testing.T) {
	anchor := time.Date(2026, time.June, 7, 12, 0, 0, 0, time.UTC)

	series := ComputeWeeklySeries(nil, anchor, time.UTC)

	if len(series.Steps) != WeeklyDays || len(series.DistanceKM) != WeeklyDays || len(series.AltitudeGainM) != WeeklyDays {
		t.Fatalf("expected three series of %d entries", WeeklyDays)
	}
	for i := 0; i < WeeklyDays; i++ {
		if series.Steps[i] != 0 || series.DistanceKM[i] != 0 || series.AltitudeGainM[i] != 0 {
			t.Fatalf("expected zeros at index %d, got %d/%f/%f", i, series.Steps[i], series.DistanceKM[i], series.AltitudeGainM[i])
		}
	}
}

func TestWeeklySeriesSingleActivityOnDayThree(t *testing.T) {
	anchor := time.Date(2026, time.June, 7, 12, 0, 0, 0, time.UTC)
	// Index 3 of [June 1 .. June 7] is June 4.
	activities := []ActivityAggregate{
		{
			Type:      ActivityTypeWalk,
			State:     ActivityStateEnded,
			StartedAt: time.Date(2026, time.June, 4, 8, 30, 0, 0, time.UTC),
			StepCount: 1000,
		},
	}

	series := ComputeWeeklySeries(activities, anchor, time.UTC)

	for i := 0; i < WeeklyDays; i++ {
		want := 0
		if i == 3 {
			want = 1000
		}
		if series.Steps[i] != want {
			t.Fatalf("expected %d steps at index %d, got %d", want, i, series.Steps[i])
		}
	}
}

func TestWeeklySeriesOrderedOldestToNewest(t *testing.T) {
	anchor := time.Date(2026, time.June, 7, 23, 59, 0, 0, time.UTC)

	series := ComputeWeeklySeries(nil, anchor, time.UTC)

	if !series.Days[0].Equal(time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected window to open on June 1, got %v", series.Days[0])
	}
	if !series.Days[6].Equal(time.Date(2026, time.June, 7, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected window to close on the anchor day, got %v", series.Days[6])
	}
	for i := 1; i < WeeklyDays; i++ {
		if !series.Days[i].After(series.Days[i-1]) {
			t.Fatal("days must be strictly increasing")
		}
	}
}

func TestWeeklySeriesIgnoresActivitiesOutsideWindow(t *testing.T) {
	anchor := time.Date(2026, time.June, 7, 12, 0, 0, 0, time.UTC)
	activities := []ActivityAggregate{
		{StartedAt: time.Date(2026, time.May, 31, 10, 0, 0, 0, time.UTC), StepCount: 500},
		{StartedAt: time.Date(2026, time.June, 8, 10, 0, 0, 0, time.UTC), StepCount: 700},
	}

	series := ComputeWeeklySeries(activities, anchor, time.UTC)

	for i, steps := range series.Steps {
		if steps != 0 {
			t.Fatalf("expected out-of-window activities ignored, got %d at index %d", steps, i)
		}
	}
}

func TestWeeklySeriesSumsMultipleActivitiesPerDay(t *testing.T) {
	anchor := time.Date(2026, time.June, 7, 12, 0, 0, 0, time.UTC)
	day := time.Date(2026, time.June, 7, 0, 0, 0, 0, time.UTC)
	activities := []ActivityAggregate{
		{StartedAt: day.Add(7 * time.Hour), StepCount: 2000, DistanceKM: 1.5},
		{StartedAt: day.Add(18 * time.Hour), StepCount: 3000, DistanceKM: 2.5},
	}

	series := ComputeWeeklySeries(activities, anchor, time.UTC)

	if series.Steps[6] != 5000 {
		t.Fatalf("expected 5000 steps on the anchor day, got %d", series.Steps[6])
	}
	if math.Abs(series.DistanceKM[6]-4) > 1e-9 {
		t.Fatalf("expected 4 km on the anchor day, got %f", series.DistanceKM[6])
	}
}

func TestWeeklySeriesBucketsByCalendarDayAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// US spring-forward is 2026-03-08: that local day is 23 hours long, so
	// the anchor day starts 143 hours after the window opens, not 144.
	anchor := time.Date(2026, time.March, 14, 12, 0, 0, 0, loc)
	activities := []ActivityAggregate{
		{
			Type:      ActivityTypeRun,
			State:     ActivityStateEnded,
			StartedAt: time.Date(2026, time.March, 14, 9, 0, 0, 0, loc),
			StepCount: 1000,
		},
		{
			Type:      ActivityTypeWalk,
			State:     ActivityStateEnded,
			StartedAt: time.Date(2026, time.March, 8, 9, 0, 0, 0, loc),
			StepCount: 400,
		},
	}

	series := ComputeWeeklySeries(activities, anchor, loc)

	if series.Steps[6] != 1000 {
		t.Fatalf("expected 1000 steps in the anchor bucket, got %v", series.Steps)
	}
	if series.Steps[0] != 400 {
		t.Fatalf("expected 400 steps in the transition-day bucket, got %v", series.Steps)
	}
	for i := 1; i < WeeklyDays-1; i++ {
		if series.Steps[i] != 0 {
			t.Fatalf("unexpected steps at index %d: %v", i, series.Steps)
		}
	}
}

func TestWeeklySeriesNeverPropagatesNaN(t *testing.T) {
	anchor := time.Date(2026, time.June, 7, 12, 0, 0, 0, time.UTC)
	activities := []ActivityAggregate{
		{
			StartedAt:  time.Date(2026, time.June, 5, 10, 0, 0, 0, time.UTC),
			DistanceKM: math.NaN(),
			StepCount:  -5,
		},
		{
			StartedAt:  time.Date(2026, time.June, 5, 16, 0, 0, 0, time.UTC),
			DistanceKM: math.Inf(1),
		},
	}

	series := ComputeWeeklySeries(activities, anchor, time.UTC)

	for i := 0; i < WeeklyDays; i++ {
		if math.IsNaN(series.DistanceKM[i]) || math.IsInf(series.DistanceKM[i], 0) {
			t.Fatalf("distance series poisoned at index %d", i)
		}
		if series.Steps[i] != 0 {
			t.Fatalf("negative step counts must contribute zero, got %d", series.Steps[i])
		}
	}
}

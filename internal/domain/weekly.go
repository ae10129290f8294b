package domain

import (
	"math"
	"time"
)

// WeeklyDays is the size of the trailing chart window.
const WeeklyDays = 7

// WeeklySeries carries three parallel per-day series for the trailing 7-day
// window, ordered oldest to newest. Days hold the local calendar dates the
// buckets represent.
type WeeklySeries struct {
	Days          []time.Time
	Steps         []int
	DistanceKM    []float64
	AltitudeGainM []float64
}

// ComputeWeeklySeries buckets a user's activity history into the window
// [anchor-6, anchor] by local calendar day. Days with no activities yield
// zeros; malformed numeric fields contribute zero rather than poisoning the
// sums.
func ComputeWeeklySeries(activities []ActivityAggregate, anchor time.Time, loc *time.Location) WeeklySeries {
	if loc == nil {
		loc = time.UTC
	}

	anchorDay := truncateToDay(anchor.In(loc))
	firstDay := anchorDay.AddDate(0, 0, -(WeeklyDays - 1))

	series := WeeklySeries{
		Days:          make([]time.Time, WeeklyDays),
		Steps:         make([]int, WeeklyDays),
		DistanceKM:    make([]float64, WeeklyDays),
		AltitudeGainM: make([]float64, WeeklyDays),
	}
	for i := 0; i < WeeklyDays; i++ {
		series.Days[i] = firstDay.AddDate(0, 0, i)
	}

	for _, activity := range activities {
		day := truncateToDay(activity.StartedAt.In(loc))
		// Buckets are calendar dates, not 24h spans; DST makes some local
		// days 23 or 25 hours long, so hour arithmetic would mis-bucket.
		idx := dayIndex(series.Days, day)
		if idx < 0 {
			continue
		}

		if activity.StepCount > 0 {
			series.Steps[idx] += activity.StepCount
		}
		series.DistanceKM[idx] += sanitize(activity.DistanceKM)
		series.AltitudeGainM[idx] += sanitize(AltitudeGain(activity.Altitudes))
	}

	return series
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func dayIndex(days []time.Time, day time.Time) int {
	for i, d := range days {
		if d.Year() == day.Year() && d.Month() == day.Month() && d.Day() == day.Day() {
			return i
		}
	}
	return -1
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

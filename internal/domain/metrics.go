package domain

import (
	"fmt"
	"math"
	"time"
)

// PaceSentinel is reported when pace cannot be derived (zero distance or
// duration).
const PaceSentinel = "0:00 min/km"

// Metrics holds the values derived from a completed activity's telemetry.
// All of them are pure functions of the collected data; the service applies
// them to the aggregate at finalization.
type Metrics struct {
	DistanceKM     float64
	DistanceM      float64
	CaloriesBurned float64
	Pace           string
	SpeedKMH       float64
	AltitudeGainM  float64
	Duration       time.Duration
}

// ComputeMetrics derives calories, pace, speed, and altitude gain for a
// finalized activity.
func ComputeMetrics(activityType ActivityType, duration time.Duration, steps int, distanceKM float64, altitudes []AltitudeSample) Metrics {
	if duration < 0 {
		duration = 0
	}

	m := Metrics{
		DistanceKM:    distanceKM,
		DistanceM:     distanceKM * 1000,
		AltitudeGainM: AltitudeGain(altitudes),
		Duration:      duration,
	}

	m.CaloriesBurned = Calories(activityType, duration, steps)

	switch activityType {
	case ActivityTypeRun:
		m.Pace = FormatPace(duration, distanceKM)
	case ActivityTypeCycle:
		m.SpeedKMH = Speed(duration, distanceKM)
	}

	return m
}

// Calories estimates energy burned per activity type. Walking and running
// scale with steps, cycling with duration. Hiking has no reference formula;
// it is priced between a walk and a run at 0.05 kcal per step.
func Calories(activityType ActivityType, duration time.Duration, steps int) float64 {
	switch activityType {
	case ActivityTypeWalk:
		return float64(steps) * 0.04
	case ActivityTypeRun:
		return float64(steps) * 0.06
	case ActivityTypeCycle:
		return duration.Minutes() * 8
	case ActivityTypeHike:
		return float64(steps) * 0.05
	}
	return 0
}

// FormatPace renders minutes:seconds per kilometre. Zero distance or duration
// yields the sentinel rather than NaN or a division panic.
func FormatPace(duration time.Duration, distanceKM float64) string {
	if distanceKM <= 0 || duration <= 0 {
		return PaceSentinel
	}

	minPerKM := duration.Minutes() / distanceKM
	if math.IsNaN(minPerKM) || math.IsInf(minPerKM, 0) {
		return PaceSentinel
	}

	minutes := int(minPerKM)
	seconds := int(math.Round((minPerKM - float64(minutes)) * 60))
	if seconds == 60 {
		minutes++
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d min/km", minutes, seconds)
}

// Speed returns km/h over the activity, zero-guarded.
func Speed(duration time.Duration, distanceKM float64) float64 {
	hours := duration.Hours()
	if hours <= 0 || distanceKM <= 0 {
		return 0
	}
	return distanceKM / hours
}

// AltitudeGain sums the absolute differences between consecutive altitude
// samples. This measures total ascent plus descent, not net elevation change.
func AltitudeGain(altitudes []AltitudeSample) float64 {
	var gain float64
	for i := 1; i < len(altitudes); i++ {
		delta := altitudes[i].Altitude - altitudes[i-1].Altitude
		if math.IsNaN(delta) || math.IsInf(delta, 0) {
			continue
		}
		gain += math.Abs(delta)
	}
	return gain
}

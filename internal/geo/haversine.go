// Package geo provides great-circle distance calculations over GPS paths.
package geo

import "math"

// earthRadiusKM is the mean Earth radius. A spherical model is accurate to
// well under a metre at walking/running scale.
const earthRadiusKM = 6371.0

// Point is a GPS coordinate in decimal degrees.
type Point struct {
	Latitude  float64
	Longitude float64
}

// PathDistanceKM returns the total length in kilometres of the path described
// by the ordered points, as the sum of consecutive haversine segments.
// Paths with fewer than two points have zero length.
func PathDistanceKM(points []Point) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += SegmentKM(points[i-1], points[i])
	}
	return total
}

// SegmentKM computes the haversine distance in kilometres between two points.
func SegmentKM(p1, p2 Point) float64 {
	lat1 := toRadians(p1.Latitude)
	lat2 := toRadians(p2.Latitude)
	deltaLat := toRadians(p2.Latitude - p1.Latitude)
	deltaLon := toRadians(p2.Longitude - p1.Longitude)

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	// Floating-point round-off can push a fractionally outside [0,1] for
	// coincident points, which would turn the Sqrt into NaN.
	if a < 0 {
		a = 0
	} else if a > 1 {
		a = 1
	}

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

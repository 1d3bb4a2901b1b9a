// Package geo holds great-circle helpers shared by search and SOS proximity.
package geo

import "math"

const earthRadiusKm = 6371.0

// DistanceKm returns the haversine distance between two points in kilometres.
// Inputs must be finite; callers check for missing coordinates first.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLon := degreesToRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(degreesToRadians(lat1))*math.Cos(degreesToRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// Round2 rounds a distance to two decimal places for display.
func Round2(km float64) float64 {
	return math.Round(km*100) / 100
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

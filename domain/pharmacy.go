package domain

import "medlink/m/internal/geo"

// Coordinates is always a complete latitude/longitude pair.
type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// PairCoordinates returns nil unless both values are present.
func PairCoordinates(lat, lon *float64) *Coordinates {
	if lat == nil || lon == nil {
		return nil
	}
	return &Coordinates{Latitude: *lat, Longitude: *lon}
}

// DistanceBetween returns the rounded distance in km, or nil when either side has no location.
func DistanceBetween(from, to *Coordinates) *float64 {
	if from == nil || to == nil {
		return nil
	}
	d := geo.Round2(geo.DistanceKm(from.Latitude, from.Longitude, to.Latitude, to.Longitude))
	return &d
}

type PharmacyLocation struct {
	ID       int64        `json:"id"`
	Name     string       `json:"name"`
	Location *Coordinates `json:"location"`
	Phone    string       `json:"phone"`
	Address  string       `json:"address"`
}

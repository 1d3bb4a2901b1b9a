package domain

import "time"

type SignalStatus string

const (
	SignalOpen     SignalStatus = "open"
	SignalResolved SignalStatus = "resolved"
)

// DistressSignal is a patient's report that a medicine could not be found.
type DistressSignal struct {
	ID           int64        `json:"id"`
	PatientID    int64        `json:"patient_id"`
	MedicineName string       `json:"medicine_name"`
	Location     *Coordinates `json:"location"`
	Status       SignalStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	ResolvedAt   *time.Time   `json:"resolved_at,omitempty"`
}

// NearbySignal is an open signal annotated with its distance from a viewer.
type NearbySignal struct {
	DistressSignal
	DistanceKm *float64 `json:"distance_km"`
}

// Package sos manages distress signals raised by patients who cannot find a medicine.
package sos

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"medlink/m/domain"
	"medlink/m/internal/validation"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
	DefaultRadiusKm  = 15.0

	// nearbyScanLimit bounds how many open signals a proximity query inspects.
	nearbyScanLimit = 500
)

const (
	EventCreated  = "sos.created"
	EventResolved = "sos.resolved"
)

// Repository persists signals. ResolveSignal must transition atomically and report
// whether this call performed the transition; it returns NOT_FOUND for unknown ids.
type Repository interface {
	CreateSignal(ctx context.Context, signal *domain.DistressSignal) error
	ListOpenSignals(ctx context.Context, limit int) ([]domain.DistressSignal, error)
	ResolveSignal(ctx context.Context, id int64, at time.Time) (domain.DistressSignal, bool, error)
}

// Event is published after a signal changes state.
type Event struct {
	Type   string                `json:"type"`
	Signal domain.DistressSignal `json:"signal"`
}

type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

// CreateSignal is the validated input for raising a signal.
type CreateSignal struct {
	PatientID    int64    `json:"patient_id" validate:"gt=0"`
	MedicineName string   `json:"medicine_name" validate:"required,max=100"`
	Latitude     *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude    *float64 `json:"longitude" validate:"omitempty,longitude"`
}

type Service struct {
	repo     Repository
	notifier Notifier
	now      func() time.Time
}

func NewService(repo Repository, notifier Notifier) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{repo: repo, notifier: notifier, now: time.Now}
}

func (s *Service) Create(ctx context.Context, in CreateSignal) (domain.DistressSignal, error) {
	in.MedicineName = strings.TrimSpace(in.MedicineName)
	if err := validation.Struct(in); err != nil {
		return domain.DistressSignal{}, err
	}
	if err := validation.Pair("latitude", in.Latitude, "longitude", in.Longitude); err != nil {
		return domain.DistressSignal{}, err
	}

	signal := domain.DistressSignal{
		PatientID:    in.PatientID,
		MedicineName: in.MedicineName,
		Location:     domain.PairCoordinates(in.Latitude, in.Longitude),
		Status:       domain.SignalOpen,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateSignal(ctx, &signal); err != nil {
		return domain.DistressSignal{}, err
	}
	s.publish(ctx, EventCreated, signal)
	return signal, nil
}

// ListOpen returns open signals newest-first. A non-positive limit means the default.
func (s *Service) ListOpen(ctx context.Context, limit int) ([]domain.DistressSignal, error) {
	return s.repo.ListOpenSignals(ctx, ClampLimit(limit))
}

// ListOpenNear returns open signals within radiusKm of the viewer, newest-first.
// Signals raised without a location cannot be ruled out and are kept with no distance.
func (s *Service) ListOpenNear(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]domain.NearbySignal, error) {
	if err := validation.Struct(struct {
		Latitude  float64 `json:"lat" validate:"latitude"`
		Longitude float64 `json:"lng" validate:"longitude"`
	}{lat, lon}); err != nil {
		return nil, err
	}
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}
	limit = ClampLimit(limit)

	open, err := s.repo.ListOpenSignals(ctx, nearbyScanLimit)
	if err != nil {
		return nil, err
	}
	viewer := &domain.Coordinates{Latitude: lat, Longitude: lon}
	nearby := make([]domain.NearbySignal, 0, limit)
	for _, signal := range open {
		dist := domain.DistanceBetween(viewer, signal.Location)
		if dist != nil && *dist > radiusKm {
			continue
		}
		nearby = append(nearby, domain.NearbySignal{DistressSignal: signal, DistanceKm: dist})
		if len(nearby) == limit {
			break
		}
	}
	return nearby, nil
}

// Resolve marks a signal resolved. Resolving an already-resolved signal is a no-op.
func (s *Service) Resolve(ctx context.Context, id int64) error {
	signal, changed, err := s.repo.ResolveSignal(ctx, id, s.now().UTC())
	if err != nil {
		return err
	}
	if changed {
		s.publish(ctx, EventResolved, signal)
	}
	return nil
}

// publish notifies subscribers once the store has committed; delivery is best-effort.
func (s *Service) publish(ctx context.Context, eventType string, signal domain.DistressSignal) {
	if err := s.notifier.Publish(ctx, Event{Type: eventType, Signal: signal}); err != nil {
		log.Warn().Err(err).Str("event", eventType).Int64("signal_id", signal.ID).Msg("failed to publish sos event")
	}
}

func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

// NopNotifier discards events.
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, Event) error { return nil }

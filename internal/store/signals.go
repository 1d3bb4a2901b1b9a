package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"medlink/m/domain"
	"medlink/m/internal/apperrors"
)

type signalRow struct {
	ID           int64           `db:"id"`
	PatientID    int64           `db:"patient_id"`
	MedicineName string          `db:"medicine_name"`
	Latitude     sql.NullFloat64 `db:"latitude"`
	Longitude    sql.NullFloat64 `db:"longitude"`
	Status       string          `db:"status"`
	CreatedAt    dbTime          `db:"created_at"`
	ResolvedAt   dbTime          `db:"resolved_at"`
}

func (r signalRow) signal() domain.DistressSignal {
	return domain.DistressSignal{
		ID:           r.ID,
		PatientID:    r.PatientID,
		MedicineName: r.MedicineName,
		Location:     coordinates(r.Latitude, r.Longitude),
		Status:       domain.SignalStatus(r.Status),
		CreatedAt:    r.CreatedAt.Time,
		ResolvedAt:   r.ResolvedAt.ptr(),
	}
}

var signalColumns = []any{"id", "patient_id", "medicine_name", "latitude", "longitude", "status", "created_at", "resolved_at"}

func (s *Store) CreateSignal(ctx context.Context, signal *domain.DistressSignal) error {
	id, err := s.insert(ctx, tableSignals, goqu.Record{
		"patient_id":    signal.PatientID,
		"medicine_name": signal.MedicineName,
		"latitude":      nullableLat(signal.Location),
		"longitude":     nullableLon(signal.Location),
		"status":        string(domain.SignalOpen),
		"created_at":    s.timestamp(signal.CreatedAt),
	})
	if err != nil {
		return err
	}
	signal.ID = id
	signal.Status = domain.SignalOpen
	return nil
}

// ListOpenSignals returns up to limit open signals, newest first.
func (s *Store) ListOpenSignals(ctx context.Context, limit int) ([]domain.DistressSignal, error) {
	ds := s.from(tableSignals).Select(signalColumns...).
		Where(goqu.C("status").Eq(string(domain.SignalOpen))).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc()).
		Limit(uint(limit))
	var rows []signalRow
	if err := s.selectAll(ctx, "list open signals", &rows, ds); err != nil {
		return nil, err
	}
	signals := make([]domain.DistressSignal, len(rows))
	for i, r := range rows {
		signals[i] = r.signal()
	}
	return signals, nil
}

// ResolveSignal moves an open signal to resolved. changed is false when it was already resolved.
func (s *Store) ResolveSignal(ctx context.Context, id int64, at time.Time) (domain.DistressSignal, bool, error) {
	ds := s.dialect.Update(tableSignals).Prepared(true).
		Set(goqu.Record{
			"status":      string(domain.SignalResolved),
			"resolved_at": s.timestamp(at),
		}).
		Where(goqu.C("id").Eq(id), goqu.C("status").Eq(string(domain.SignalOpen)))
	n, err := s.exec(ctx, "resolve signal", ds)
	if err != nil {
		return domain.DistressSignal{}, false, err
	}
	signal, err := s.getSignal(ctx, id)
	if err != nil {
		return domain.DistressSignal{}, false, err
	}
	return signal, n > 0, nil
}

func (s *Store) getSignal(ctx context.Context, id int64) (domain.DistressSignal, error) {
	query, args, err := s.from(tableSignals).Select(signalColumns...).Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return domain.DistressSignal{}, apperrors.Storage("failed to build query", err)
	}
	var row signalRow
	err = s.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DistressSignal{}, apperrors.NotFound(fmt.Sprintf("distress signal %d not found", id))
	}
	if err != nil {
		return domain.DistressSignal{}, apperrors.Storage("failed to load distress signal", err)
	}
	return row.signal(), nil
}

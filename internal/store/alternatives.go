package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"

	"medlink/m/domain"
	"medlink/m/internal/apperrors"
)

// AlternativesFor returns targets of every mapping whose source contains term, in mapping id order.
func (s *Store) AlternativesFor(ctx context.Context, term string) ([]string, error) {
	ds := s.from(tableAlternatives).
		Select("alternative_name").
		Where(containsFold("medicine_name", term)).
		Order(goqu.C("id").Asc())
	var names []string
	if err := s.selectAll(ctx, "look up alternatives", &names, ds); err != nil {
		return nil, err
	}
	return names, nil
}

// AddMapping records source→target. Adding an existing pair returns the stored mapping.
func (s *Store) AddMapping(ctx context.Context, source, target string) (domain.AlternativeMapping, error) {
	ds := s.dialect.Insert(tableAlternatives).Prepared(true).
		Rows(goqu.Record{
			"medicine_name":    source,
			"alternative_name": target,
			"created_at":       s.timestamp(time.Now()),
		}).
		OnConflict(goqu.DoNothing())
	if _, err := s.exec(ctx, "add alternative mapping", ds); err != nil {
		return domain.AlternativeMapping{}, err
	}

	query, args, err := s.from(tableAlternatives).
		Select("id", "medicine_name", "alternative_name").
		Where(goqu.C("medicine_name").Eq(source), goqu.C("alternative_name").Eq(target)).
		ToSQL()
	if err != nil {
		return domain.AlternativeMapping{}, apperrors.Storage("failed to build query", err)
	}
	var mapping domain.AlternativeMapping
	if err := s.db.GetContext(ctx, &mapping, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AlternativeMapping{}, apperrors.Storage("alternative mapping vanished after insert", err)
		}
		return domain.AlternativeMapping{}, apperrors.Storage("failed to load alternative mapping", err)
	}
	return mapping, nil
}

func (s *Store) ListMappings(ctx context.Context) ([]domain.AlternativeMapping, error) {
	ds := s.from(tableAlternatives).
		Select("id", "medicine_name", "alternative_name").
		Order(goqu.C("id").Asc())
	mappings := make([]domain.AlternativeMapping, 0)
	if err := s.selectAll(ctx, "list alternative mappings", &mappings, ds); err != nil {
		return nil, err
	}
	return mappings, nil
}

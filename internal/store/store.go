// Package store is the relational persistence for stock, pharmacies, alternative
// mappings and distress signals. Queries are built with goqu for the connected
// dialect and executed through sqlx.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"medlink/m/internal/apperrors"
)

const (
	tablePharmacies   = "pharmacies"
	tableStock        = "stock_entries"
	tableAlternatives = "medicine_alternatives"
	tableSignals      = "distress_signals"
)

// Store implements the repository interfaces of search, alternatives, sos and inventory.
type Store struct {
	db        *sqlx.DB
	dialect   goqu.DialectWrapper
	returning bool
}

func New(db *sqlx.DB) *Store {
	name := "sqlite3"
	if db.DriverName() == "postgres" {
		name = "postgres"
	}
	return &Store{
		db:        db,
		dialect:   goqu.Dialect(name),
		returning: name == "postgres",
	}
}

// sqliteTimeLayout is fixed-width so stored timestamps order correctly as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func (s *Store) timestamp(t time.Time) any {
	if s.returning {
		return t.UTC()
	}
	return t.UTC().Format(sqliteTimeLayout)
}

func (s *Store) from(table any) *goqu.SelectDataset {
	return s.dialect.From(table).Prepared(true)
}

// insert adds one row and returns its generated id.
func (s *Store) insert(ctx context.Context, table string, record goqu.Record) (int64, error) {
	ds := s.dialect.Insert(table).Rows(record).Prepared(true)
	if s.returning {
		query, args, err := ds.Returning("id").ToSQL()
		if err != nil {
			return 0, apperrors.Storage("failed to build insert query", err)
		}
		var id int64
		if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
			return 0, apperrors.Storage("failed to insert into "+table, err)
		}
		return id, nil
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return 0, apperrors.Storage("failed to build insert query", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.Storage("failed to insert into "+table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperrors.Storage("failed to read inserted id", err)
	}
	return id, nil
}

// exec runs an update or delete and returns the number of affected rows.
func (s *Store) exec(ctx context.Context, what string, ds interface {
	ToSQL() (string, []any, error)
}) (int64, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return 0, apperrors.Storage("failed to build query", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.Storage("failed to "+what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Storage("failed to "+what, err)
	}
	return n, nil
}

func (s *Store) selectAll(ctx context.Context, what string, dest any, ds *goqu.SelectDataset) error {
	query, args, err := ds.ToSQL()
	if err != nil {
		return apperrors.Storage("failed to build query", err)
	}
	if err := s.db.SelectContext(ctx, dest, query, args...); err != nil {
		return apperrors.Storage("failed to "+what, err)
	}
	return nil
}

// containsFold matches rows whose column contains term, ignoring case.
// LIKE wildcards in term are escaped so they match literally.
func containsFold(column string, term string) exp.Expression {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
	return goqu.L("LOWER(?) LIKE ? ESCAPE '!'", goqu.I(column), pattern)
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

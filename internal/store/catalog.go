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

type stockHitRow struct {
	StockID      int64           `db:"stock_id"`
	PharmacyID   int64           `db:"pharmacy_id"`
	Name         string          `db:"name"`
	Manufacturer *string         `db:"manufacturer"`
	Description  *string         `db:"description"`
	Quantity     int64           `db:"quantity"`
	Expiry       domain.Date     `db:"expiry"`
	Price        *float64        `db:"price"`
	PharmacyName string          `db:"pharmacy_name"`
	Phone        string          `db:"phone"`
	Address      string          `db:"address"`
	Latitude     sql.NullFloat64 `db:"latitude"`
	Longitude    sql.NullFloat64 `db:"longitude"`
}

func (r stockHitRow) hit() domain.StockHit {
	return domain.StockHit{
		Stock: domain.StockEntry{
			ID:           r.StockID,
			PharmacyID:   r.PharmacyID,
			Name:         r.Name,
			Manufacturer: r.Manufacturer,
			Description:  r.Description,
			Quantity:     r.Quantity,
			Expiry:       r.Expiry,
			Price:        r.Price,
		},
		Pharmacy: domain.PharmacyLocation{
			ID:       r.PharmacyID,
			Name:     r.PharmacyName,
			Location: coordinates(r.Latitude, r.Longitude),
			Phone:    r.Phone,
			Address:  r.Address,
		},
	}
}

var stockColumns = []any{"id", "pharmacy_id", "name", "manufacturer", "description", "quantity", "expiry", "price"}

// FindStock returns stock whose name contains term, joined with its pharmacy, oldest entry first.
func (s *Store) FindStock(ctx context.Context, term string, pharmacyID *int64) ([]domain.StockHit, error) {
	ds := s.from(goqu.T(tableStock).As("s")).
		Join(goqu.T(tablePharmacies).As("p"), goqu.On(goqu.I("p.id").Eq(goqu.I("s.pharmacy_id")))).
		Select(
			goqu.I("s.id").As("stock_id"),
			goqu.I("s.pharmacy_id"),
			goqu.I("s.name"),
			goqu.I("s.manufacturer"),
			goqu.I("s.description"),
			goqu.I("s.quantity"),
			goqu.I("s.expiry"),
			goqu.I("s.price"),
			goqu.I("p.name").As("pharmacy_name"),
			goqu.I("p.phone"),
			goqu.I("p.address"),
			goqu.I("p.latitude"),
			goqu.I("p.longitude"),
		).
		Where(containsFold("s.name", term)).
		Order(goqu.I("s.id").Asc())
	if pharmacyID != nil {
		ds = ds.Where(goqu.I("s.pharmacy_id").Eq(*pharmacyID))
	}

	var rows []stockHitRow
	if err := s.selectAll(ctx, "search stock", &rows, ds); err != nil {
		return nil, err
	}
	hits := make([]domain.StockHit, len(rows))
	for i, r := range rows {
		hits[i] = r.hit()
	}
	return hits, nil
}

// StockNamesContaining lists up to limit distinct stock names across every pharmacy.
// Names differing only in case count once; the earliest spelling is returned.
func (s *Store) StockNamesContaining(ctx context.Context, term string, limit int) ([]string, error) {
	firstOfEach := s.from(tableStock).
		Select(goqu.MIN("id")).
		Where(containsFold("name", term)).
		GroupBy(goqu.L("LOWER(?)", goqu.I("name")))
	ds := s.from(tableStock).
		Select("name").
		Where(goqu.I("id").In(firstOfEach)).
		Order(goqu.I("id").Asc()).
		Limit(uint(limit))

	var names []string
	if err := s.selectAll(ctx, "list stock names", &names, ds); err != nil {
		return nil, err
	}
	return names, nil
}

func (s *Store) CreateStock(ctx context.Context, entry *domain.StockEntry) error {
	now := s.timestamp(time.Now())
	id, err := s.insert(ctx, tableStock, goqu.Record{
		"pharmacy_id":  entry.PharmacyID,
		"name":         entry.Name,
		"manufacturer": entry.Manufacturer,
		"description":  entry.Description,
		"quantity":     entry.Quantity,
		"expiry":       entry.Expiry.String(),
		"price":        entry.Price,
		"created_at":   now,
		"updated_at":   now,
	})
	if err != nil {
		return err
	}
	entry.ID = id
	return nil
}

func (s *Store) GetStock(ctx context.Context, id int64) (domain.StockEntry, error) {
	query, args, err := s.from(tableStock).Select(stockColumns...).Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return domain.StockEntry{}, apperrors.Storage("failed to build query", err)
	}
	var entry domain.StockEntry
	err = s.db.GetContext(ctx, &entry, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StockEntry{}, apperrors.NotFound(fmt.Sprintf("stock entry %d not found", id))
	}
	if err != nil {
		return domain.StockEntry{}, apperrors.Storage("failed to load stock entry", err)
	}
	return entry, nil
}

// UpdateStock writes quantity and price for an existing entry.
func (s *Store) UpdateStock(ctx context.Context, entry domain.StockEntry) error {
	ds := s.dialect.Update(tableStock).Prepared(true).
		Set(goqu.Record{
			"quantity":   entry.Quantity,
			"price":      entry.Price,
			"updated_at": s.timestamp(time.Now()),
		}).
		Where(goqu.C("id").Eq(entry.ID))
	n, err := s.exec(ctx, "update stock", ds)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NotFound(fmt.Sprintf("stock entry %d not found", entry.ID))
	}
	return nil
}

func (s *Store) DeleteStock(ctx context.Context, id int64) error {
	n, err := s.exec(ctx, "delete stock", s.dialect.Delete(tableStock).Prepared(true).Where(goqu.C("id").Eq(id)))
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NotFound(fmt.Sprintf("stock entry %d not found", id))
	}
	return nil
}

func (s *Store) ListStock(ctx context.Context, pharmacyID int64) ([]domain.StockEntry, error) {
	ds := s.from(tableStock).Select(stockColumns...).
		Where(goqu.C("pharmacy_id").Eq(pharmacyID)).
		Order(goqu.C("id").Asc())
	entries := make([]domain.StockEntry, 0)
	if err := s.selectAll(ctx, "list stock", &entries, ds); err != nil {
		return nil, err
	}
	return entries, nil
}

// ExpiringOnOrBefore lists every entry, catalog-wide, expiring on or before the given day.
func (s *Store) ExpiringOnOrBefore(ctx context.Context, day domain.Date) ([]domain.ExpiringStock, error) {
	ds := s.from(goqu.T(tableStock).As("s")).
		Join(goqu.T(tablePharmacies).As("p"), goqu.On(goqu.I("p.id").Eq(goqu.I("s.pharmacy_id")))).
		Select(
			goqu.I("s.id").As("stock_id"),
			goqu.I("s.name"),
			goqu.I("s.pharmacy_id"),
			goqu.I("p.name").As("pharmacy_name"),
			goqu.I("s.expiry"),
			goqu.I("s.quantity"),
		).
		Where(goqu.I("s.expiry").Lte(day.String())).
		Order(goqu.I("s.expiry").Asc(), goqu.I("s.id").Asc())
	expiring := make([]domain.ExpiringStock, 0)
	if err := s.selectAll(ctx, "scan expiring stock", &expiring, ds); err != nil {
		return nil, err
	}
	return expiring, nil
}

type pharmacyRow struct {
	ID        int64           `db:"id"`
	Name      string          `db:"name"`
	Phone     string          `db:"phone"`
	Address   string          `db:"address"`
	Latitude  sql.NullFloat64 `db:"latitude"`
	Longitude sql.NullFloat64 `db:"longitude"`
}

func (s *Store) CreatePharmacy(ctx context.Context, p *domain.PharmacyLocation) error {
	id, err := s.insert(ctx, tablePharmacies, goqu.Record{
		"name":       p.Name,
		"phone":      p.Phone,
		"address":    p.Address,
		"latitude":   nullableLat(p.Location),
		"longitude":  nullableLon(p.Location),
		"created_at": s.timestamp(time.Now()),
	})
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

func (s *Store) GetPharmacy(ctx context.Context, id int64) (domain.PharmacyLocation, error) {
	query, args, err := s.from(tablePharmacies).
		Select("id", "name", "phone", "address", "latitude", "longitude").
		Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return domain.PharmacyLocation{}, apperrors.Storage("failed to build query", err)
	}
	var row pharmacyRow
	err = s.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PharmacyLocation{}, apperrors.NotFound(fmt.Sprintf("pharmacy %d not found", id))
	}
	if err != nil {
		return domain.PharmacyLocation{}, apperrors.Storage("failed to load pharmacy", err)
	}
	return domain.PharmacyLocation{
		ID:       row.ID,
		Name:     row.Name,
		Location: coordinates(row.Latitude, row.Longitude),
		Phone:    row.Phone,
		Address:  row.Address,
	}, nil
}

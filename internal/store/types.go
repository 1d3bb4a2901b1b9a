package store

import (
	"database/sql"
	"fmt"
	"time"

	"medlink/m/domain"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// dbTime scans timestamps from drivers that return either time.Time or text.
type dbTime struct {
	Time  time.Time
	Valid bool
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = dbTime{}
		return nil
	case time.Time:
		*t = dbTime{Time: v.UTC(), Valid: true}
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("store: cannot scan %T into timestamp", src)
	}
}

func (t *dbTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = dbTime{Time: parsed.UTC(), Valid: true}
			return nil
		}
	}
	return fmt.Errorf("store: unrecognised timestamp %q", s)
}

func (t dbTime) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func coordinates(lat, lon sql.NullFloat64) *domain.Coordinates {
	if !lat.Valid || !lon.Valid {
		return nil
	}
	return &domain.Coordinates{Latitude: lat.Float64, Longitude: lon.Float64}
}

func nullableLat(c *domain.Coordinates) *float64 {
	if c == nil {
		return nil
	}
	return &c.Latitude
}

func nullableLon(c *domain.Coordinates) *float64 {
	if c == nil {
		return nil
	}
	return &c.Longitude
}

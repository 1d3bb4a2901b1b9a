// Package search implements the patient-facing medicine stock search.
package search

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"medlink/m/domain"
	"medlink/m/internal/alternatives"
)

// MinQueryLength is the shortest query that reaches the catalog.
const MinQueryLength = 2

// Catalog finds stock whose name contains term, case-insensitively, joined with the
// owning pharmacy, in catalog insertion order. A non-nil pharmacyID scopes the lookup.
type Catalog interface {
	FindStock(ctx context.Context, term string, pharmacyID *int64) ([]domain.StockHit, error)
}

// Query is a validated search request. Latitude and Longitude are either both set or both nil.
type Query struct {
	Text       string
	Latitude   *float64
	Longitude  *float64
	PharmacyID *int64
}

type Engine struct {
	catalog  Catalog
	resolver alternatives.Resolver
}

func NewEngine(catalog Catalog, resolver alternatives.Resolver) *Engine {
	return &Engine{catalog: catalog, resolver: resolver}
}

// Search runs the exact pass and, only when it finds nothing, the alternative pass.
// Results keep catalog order; distance is informational and not used for ranking.
func (e *Engine) Search(ctx context.Context, q Query) ([]domain.SearchResult, error) {
	text := strings.TrimSpace(q.Text)
	results := make([]domain.SearchResult, 0)
	if utf8.RuneCountInString(text) < MinQueryLength {
		return results, nil
	}
	origin := domain.PairCoordinates(q.Latitude, q.Longitude)

	hits, err := e.catalog.FindStock(ctx, text, q.PharmacyID)
	if err != nil {
		return nil, err
	}
	for _, hit := range hits {
		results = append(results, toResult(hit, origin, domain.ConfidenceExact, ""))
	}
	if len(results) > 0 {
		return results, nil
	}

	candidates, err := e.resolver.Resolve(ctx, text)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("query", text).Int("candidates", len(candidates)).Msg("no exact stock match, trying alternatives")

	for _, c := range candidates {
		hits, err := e.catalog.FindStock(ctx, c.Name, q.PharmacyID)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			results = append(results, toResult(hit, origin, c.Confidence, text))
		}
	}
	return results, nil
}

func toResult(hit domain.StockHit, origin *domain.Coordinates, confidence domain.Confidence, original string) domain.SearchResult {
	return domain.SearchResult{
		StockID:          hit.Stock.ID,
		MedicineName:     hit.Stock.Name,
		PharmacyName:     hit.Pharmacy.Name,
		Price:            hit.Stock.Price,
		Address:          hit.Pharmacy.Address,
		Phone:            hit.Pharmacy.Phone,
		PharmacyLocation: hit.Pharmacy.Location,
		DistanceKm:       domain.DistanceBetween(origin, hit.Pharmacy.Location),
		IsAlternative:    original != "",
		OriginalSearch:   original,
		Confidence:       confidence,
	}
}

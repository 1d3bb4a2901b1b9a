// Package alternatives proposes substitute medicine names when a search finds no stock.
//
// Resolution is a chain of strategies: curated brand→generic mappings first, then a
// fuzzy prefix match over every stock name in the catalog. The first strategy that
// produces candidates wins.
package alternatives

import (
	"context"
	"strings"

	"medlink/m/domain"
)

// FuzzyLimit caps the number of names the prefix strategy may return.
const FuzzyLimit = 5

const prefixLength = 3

// Candidate is an alternative name and how it was found.
type Candidate struct {
	Name       string            `json:"name"`
	Confidence domain.Confidence `json:"confidence"`
}

// Resolver produces ordered, de-duplicated candidate names for a query.
type Resolver interface {
	Resolve(ctx context.Context, query string) ([]Candidate, error)
}

// MappingSource looks up curated targets whose source name contains term, case-insensitively.
type MappingSource interface {
	AlternativesFor(ctx context.Context, term string) ([]string, error)
}

// NameSource lists distinct catalog-wide stock names containing term, case-insensitively,
// in catalog insertion order.
type NameSource interface {
	StockNamesContaining(ctx context.Context, term string, limit int) ([]string, error)
}

// MappingStrategy resolves through the curated mapping table.
type MappingStrategy struct {
	source MappingSource
}

func NewMappingStrategy(source MappingSource) *MappingStrategy {
	return &MappingStrategy{source: source}
}

func (s *MappingStrategy) Resolve(ctx context.Context, query string) ([]Candidate, error) {
	names, err := s.source.AlternativesFor(ctx, query)
	if err != nil {
		return nil, err
	}
	return candidates(names, domain.ConfidenceMapping, 0), nil
}

// PrefixStrategy matches the first three characters of the query against stock names.
type PrefixStrategy struct {
	source NameSource
	limit  int
}

func NewPrefixStrategy(source NameSource) *PrefixStrategy {
	return &PrefixStrategy{source: source, limit: FuzzyLimit}
}

func (s *PrefixStrategy) Resolve(ctx context.Context, query string) ([]Candidate, error) {
	prefix := Prefix(query)
	if prefix == "" {
		return nil, nil
	}
	names, err := s.source.StockNamesContaining(ctx, prefix, s.limit)
	if err != nil {
		return nil, err
	}
	return candidates(names, domain.ConfidenceFuzzy, s.limit), nil
}

// Prefix returns the first three characters of query, or all of it when shorter.
func Prefix(query string) string {
	runes := []rune(query)
	if len(runes) > prefixLength {
		runes = runes[:prefixLength]
	}
	return string(runes)
}

// Chain tries each resolver in order and returns the first non-empty result.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context, query string) ([]Candidate, error) {
	for _, r := range c {
		found, err := r.Resolve(ctx, query)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			return found, nil
		}
	}
	return nil, nil
}

// NewDefault builds the mapping-then-prefix chain.
func NewDefault(mappings MappingSource, names NameSource) Chain {
	return Chain{NewMappingStrategy(mappings), NewPrefixStrategy(names)}
}

// candidates drops blanks and case-insensitive repeats, keeping first-seen order.
// A positive limit truncates the result.
func candidates(names []string, confidence domain.Confidence, limit int) []Candidate {
	seen := make(map[string]struct{}, len(names))
	out := make([]Candidate, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, Candidate{Name: name, Confidence: confidence})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

package alternatives

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const cacheKeyPrefix = "medlink:alternatives:"

// Cache is the byte store the Cached decorator writes through.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cached memoizes another resolver. Cache failures fall through to the wrapped resolver.
type Cached struct {
	next  Resolver
	cache Cache
	ttl   time.Duration
}

func NewCached(next Resolver, cache Cache, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: cache, ttl: ttl}
}

func (c *Cached) Resolve(ctx context.Context, query string) ([]Candidate, error) {
	key := CacheKey(query)

	data, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("key", key).Msg("alternatives cache read failed")
	case ok:
		var cached []Candidate
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
		log.Warn().Str("key", key).Msg("discarding undecodable alternatives cache entry")
	}

	found, err := c.next.Resolve(ctx, query)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(found); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("alternatives cache write failed")
		}
	}
	return found, nil
}

// CacheKey normalizes a query so differently-cased searches share an entry.
func CacheKey(query string) string {
	return cacheKeyPrefix + strings.ToLower(strings.TrimSpace(query))
}

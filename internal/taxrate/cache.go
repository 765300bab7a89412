package taxrate

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CacheHashKey is the single redis hash holding serialized jurisdiction
// payloads, field = reporting code.
const CacheHashKey = "tax-rate-breakdowns:v1"

// CachedCatalog is a per-import-run write-through wrapper around a base
// catalog. Reads are cache-first; misses consult the base and queue the
// resolved payload for one bulk flush at the end of the run. The cache is
// advisory: it never fails a lookup.
type CachedCatalog struct {
	base Lookuper

	mu      sync.Mutex
	cached  map[string]*Breakdown
	pending map[string]string
}

// NewCachedCatalog hydrates a wrapper from the redis hash. Corrupt entries
// are skipped with a warning; a redis read failure yields an empty cache.
func NewCachedCatalog(ctx context.Context, rdb redis.Cmdable, base Lookuper) (*CachedCatalog, error) {
	entries, err := rdb.HGetAll(ctx, CacheHashKey).Result()
	if err != nil {
		return nil, eris.Wrap(err, "taxrate: hydrate cache")
	}
	return HydrateCachedCatalog(entries, base), nil
}

// HydrateCachedCatalog builds the wrapper from raw hash entries.
func HydrateCachedCatalog(entries map[string]string, base Lookuper) *CachedCatalog {
	cached := make(map[string]*Breakdown, len(entries))
	for rawCode, rawPayload := range entries {
		code, err := NormalizeReportingCode(rawCode)
		if err != nil {
			zap.L().Warn("taxrate: skipping cached entry with bad code", zap.String("code", rawCode))
			continue
		}
		j, err := ParseJurisdictions(json.RawMessage(rawPayload), code)
		if err != nil {
			zap.L().Warn("taxrate: skipping corrupt cached entry", zap.String("code", code), zap.Error(err))
			continue
		}
		cached[code] = BuildBreakdown(code, j)
	}
	return &CachedCatalog{
		base:    base,
		cached:  cached,
		pending: make(map[string]string),
	}
}

// Lookup is safe for concurrent use by parallel row-compute workers.
func (c *CachedCatalog) Lookup(reportingCode string) (*Breakdown, error) {
	code, err := NormalizeReportingCode(reportingCode)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	cached := c.cached[code]
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	resolved, err := c.base.Lookup(code)
	if err != nil || resolved == nil {
		return resolved, err
	}

	payload, err := json.Marshal(resolved.Jurisdictions)
	if err != nil {
		// Serialization never fails for a parsed payload; keep the lookup alive.
		return resolved, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing := c.cached[code]; existing != nil {
		return existing, nil
	}
	c.cached[code] = resolved
	c.pending[code] = string(payload)
	return resolved, nil
}

// Flush writes queued payloads to redis in one HSET and drains the queue.
// The queue is drained even when the write fails; the cache is advisory.
func (c *CachedCatalog) Flush(ctx context.Context, rdb redis.Cmdable) error {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return nil
	}
	payload := make(map[string]string, len(c.pending))
	for code, raw := range c.pending {
		payload[code] = raw
	}
	c.pending = make(map[string]string)
	c.mu.Unlock()

	if err := rdb.HSet(ctx, CacheHashKey, payload).Err(); err != nil {
		return eris.Wrap(err, "taxrate: flush cache")
	}
	return nil
}

// PendingCount reports the number of entries queued for flush.
func (c *CachedCatalog) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

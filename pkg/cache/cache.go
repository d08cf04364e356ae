// Package cache implements the result cache: fingerprinted
// entries with TTL, type-scoped invalidation, and a reservation guard
// against duplicate concurrent builds for the same fingerprint. Grounded on
// Lens/modules/core/pkg/aitaskqueue/queue.go's Task/TaskStatus shape
// and store_pg.go's terminal-status result read, translated from a
// Postgres row to a kvstore blob since the cache has no relational
// shape.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/kvstore"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/metrics"
)

const (
	resultKeyPrefix      = "cache:result:"
	reservationKeyPrefix = "cache:reservation:"
)

// Entry is a cached result: the dispatched workflow id it resolves
// to, its payload, and its validity window.
type Entry struct {
	Fingerprint string          `json:"fingerprint"`
	ResultType  string          `json:"result_type"`
	WorkflowID  string          `json:"workflow_id,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// Cache is the result cache.
type Cache struct {
	store          kvstore.Store
	defaultTTL     time.Duration
	reservationTTL time.Duration
}

func New(store kvstore.Store, defaultTTL, reservationTTL time.Duration) *Cache {
	return &Cache{store: store, defaultTTL: defaultTTL, reservationTTL: reservationTTL}
}

// Fingerprint derives a stable cache key from a result type and its
// input parameters, sorting map keys so equivalent parameter sets
// always hash identically regardless of map iteration order.
func Fingerprint(resultType string, params map[string]interface{}) (string, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		ordered = append(ordered, k, params[k])
	}

	data, err := json.Marshal(struct {
		Type   string        `json:"type"`
		Params []interface{} `json:"params"`
	}{Type: resultType, Params: ordered})
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Get returns a cached entry if present and unexpired. An entry whose
// ExpiresAt has passed is treated as a miss and removed, belt-and-braces
// over the store's own TTL.
func (c *Cache) Get(ctx context.Context, fingerprint string) (*Entry, bool, error) {
	raw, ok, err := c.store.Get(ctx, resultKeyPrefix+fingerprint)
	if err != nil {
		metrics.CacheHitTotal.WithLabelValues("error").Inc()
		return nil, false, err
	}
	if !ok {
		metrics.CacheHitTotal.WithLabelValues("miss").Inc()
		return nil, false, nil
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, false, err
	}
	if !e.ExpiresAt.IsZero() && e.ExpiresAt.Before(time.Now()) {
		_ = c.store.Delete(ctx, resultKeyPrefix+fingerprint)
		metrics.CacheHitTotal.WithLabelValues("miss").Inc()
		return nil, false, nil
	}
	metrics.CacheHitTotal.WithLabelValues("hit").Inc()
	return &e, true, nil
}

// Put stores a completed result bound to workflowID. ttl of zero uses
// the cache default and is authoritative for both the store's own TTL
// and the entry's recorded ExpiresAt.
func (c *Cache) Put(ctx context.Context, fingerprint, resultType, workflowID string, payload json.RawMessage, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := time.Now()
	e := Entry{
		Fingerprint: fingerprint,
		ResultType:  resultType,
		WorkflowID:  workflowID,
		Payload:     payload,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, resultKeyPrefix+fingerprint, string(data), ttl)
}

// Reserve claims the right to build a result for fingerprint, returning
// (true, "") if this caller won the reservation, or (false, ownerID) if
// another task already holds it and the caller should poll that task
// instead of dispatching a duplicate.
func (c *Cache) Reserve(ctx context.Context, fingerprint, taskID string) (bool, string, error) {
	won, err := c.store.SetNX(ctx, reservationKeyPrefix+fingerprint, taskID, c.reservationTTL)
	if err != nil {
		return false, "", err
	}
	if won {
		metrics.CacheHitTotal.WithLabelValues("reserved").Inc()
		return true, "", nil
	}
	owner, _, err := c.store.Get(ctx, reservationKeyPrefix+fingerprint)
	if err != nil {
		return false, "", err
	}
	return false, owner, nil
}

// Release drops a reservation, called on both dispatch success and
// failure so a future submission isn't blocked by a dead claim before
// the TTL expires on its own.
func (c *Cache) Release(ctx context.Context, fingerprint string) error {
	return c.store.Delete(ctx, reservationKeyPrefix+fingerprint)
}

// Invalidate removes one cached entry by its fingerprint.
func (c *Cache) Invalidate(ctx context.Context, fingerprint string) error {
	return c.store.Delete(ctx, resultKeyPrefix+fingerprint)
}

// InvalidateByType removes every cached entry of resultType. This is
// an SCAN-driven prefix sweep rather than a reverse type index — an
// operator-triggered action, not a hot path.
func (c *Cache) InvalidateByType(ctx context.Context, resultType string) (int, error) {
	keys, err := c.store.Scan(ctx, resultKeyPrefix)
	if err != nil {
		return 0, err
	}

	var toDelete []string
	for _, key := range keys {
		raw, ok, err := c.store.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		if e.ResultType == resultType {
			toDelete = append(toDelete, key)
		}
	}

	if len(toDelete) == 0 {
		return 0, nil
	}
	if err := c.store.DeleteBatched(ctx, toDelete); err != nil {
		return 0, err
	}
	metrics.CacheInvalidationTotal.WithLabelValues(resultType).Add(float64(len(toDelete)))
	return len(toDelete), nil
}

// Clear removes every cached entry, pipelining the deletes once the
// batch is large enough to be worth it.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	keys, err := c.store.Scan(ctx, resultKeyPrefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.store.DeleteBatched(ctx, keys); err != nil {
		return 0, err
	}
	metrics.CacheInvalidationTotal.WithLabelValues("__all__").Add(float64(len(keys)))
	return len(keys), nil
}

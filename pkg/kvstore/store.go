// Package kvstore defines the key-value store adapter contract
// and a Redis-backed implementation. Every other package
// in the coordinator reaches the backing datastore only through this
// interface.
package kvstore

import (
	"context"
	"time"
)

// ScoredMember is one entry of an ordered set, the unit the priority
// queues pop and push.
type ScoredMember struct {
	Member string
	Score  float64
}

// Store is the key-value store adapter contract.
type Store interface {
	// String values with optional TTL.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// DeleteBatched removes keys, using a pipelined round trip once the
	// batch is large enough (>= 20 keys) to be worth the overhead of
	// building one; smaller batches fall back to a single Delete call.
	DeleteBatched(ctx context.Context, keys []string) error

	// SetNX sets key only if absent, returning whether it won the race
	// — the primitive behind reservations and single-flight claims.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Ordered set: the priority queue primitive. Lower score pops first.
	ZAdd(ctx context.Context, key, member string, score float64) error
	ZPopMin(ctx context.Context, key string, count int64) ([]ScoredMember, error)
	ZRem(ctx context.Context, key, member string) error
	ZRange(ctx context.Context, key string, min, max float64) ([]ScoredMember, error)
	ZCount(ctx context.Context, key string, min, max float64) (int64, error)

	// Hash: field-grouped payloads (the autoscaling tracked-services set).
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDelete(ctx context.Context, key string, fields ...string) error

	// Scan returns every key matching a prefix, for bulk invalidation.
	Scan(ctx context.Context, prefix string) ([]string, error)

	Close() error
}

var (
	// ErrNotFound is returned by callers that want a typed not-found
	// signal; Get itself reports absence via its bool return instead.
	ErrNotFound = errNotFound{}
)

type errNotFound struct{}

func (errNotFound) Error() string { return "kvstore: not found" }

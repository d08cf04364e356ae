package kvstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by unit tests that don't
// need a real Redis round trip.
type MemoryStore struct {
	mu      sync.Mutex
	strs    map[string]memVal
	zsets   map[string]map[string]float64
	hashes  map[string]map[string]string
}

type memVal struct {
	value   string
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		strs:   make(map[string]memVal),
		zsets:  make(map[string]map[string]float64),
		hashes: make(map[string]map[string]string),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.strs[key]
	if !ok || s.expired(v) {
		return "", false, nil
	}
	return v.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strs[key] = s.newVal(value, ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.strs, k)
		delete(s.zsets, k)
		delete(s.hashes, k)
	}
	return nil
}

// DeleteBatched has no pipelining distinction in-process; it's here
// purely to satisfy Store for tests run against MemoryStore.
func (s *MemoryStore) DeleteBatched(ctx context.Context, keys []string) error {
	return s.Delete(ctx, keys...)
}

func (s *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.strs[key]; ok && !s.expired(v) {
		return false, nil
	}
	s.strs[key] = s.newVal(value, ttl)
	return true, nil
}

func (s *MemoryStore) ZAdd(_ context.Context, key, member string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	z[member] = score
	return nil
}

func (s *MemoryStore) ZPopMin(_ context.Context, key string, count int64) ([]ScoredMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z := s.zsets[key]
	members := sortedMembers(z)
	if int64(len(members)) > count {
		members = members[:count]
	}
	for _, m := range members {
		delete(z, m.Member)
	}
	return members, nil
}

func (s *MemoryStore) ZRem(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if z, ok := s.zsets[key]; ok {
		delete(z, member)
	}
	return nil
}

func (s *MemoryStore) ZRange(_ context.Context, key string, min, max float64) ([]ScoredMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z := s.zsets[key]
	members := sortedMembers(z)
	out := make([]ScoredMember, 0, len(members))
	for _, m := range members {
		if m.Score >= min && m.Score <= max {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MemoryStore) ZCount(ctx context.Context, key string, min, max float64) (int64, error) {
	members, err := s.ZRange(ctx, key, min, max)
	if err != nil {
		return 0, err
	}
	return int64(len(members)), nil
}

func (s *MemoryStore) HSet(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) HDelete(_ context.Context, key string, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		return nil
	}
	for _, f := range fields {
		delete(h, f)
	}
	return nil
}

func (s *MemoryStore) Scan(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.strs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	for k := range s.hashes {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	for k := range s.zsets {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) expired(v memVal) bool {
	return !v.expires.IsZero() && time.Now().After(v.expires)
}

func (s *MemoryStore) newVal(value string, ttl time.Duration) memVal {
	v := memVal{value: value}
	if ttl > 0 {
		v.expires = time.Now().Add(ttl)
	}
	return v
}

func sortedMembers(z map[string]float64) []ScoredMember {
	out := make([]ScoredMember, 0, len(z))
	for m, sc := range z {
		out = append(out, ScoredMember{Member: m, Score: sc})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Member < out[j].Member
		}
		return out[i].Score < out[j].Score
	})
	return out
}

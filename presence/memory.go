package presence

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	onlinePrefix   = "online:"
	lastSeenPrefix = "seen:"
)

// MemoryStore is an in-process Store backed by go-cache. Online markers
// never expire; last-seen records expire after the configured TTL.
type MemoryStore struct {
	cache *cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryStore creates an in-memory presence store.
//
// Parameters:
//   - ttl: How long last-seen records are kept (cache.NoExpiration keeps them forever)
//   - cleanupInterval: Interval at which expired records are purged
//
// Returns:
//   - A new *MemoryStore
func NewMemoryStore(ttl, cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: cache.New(ttl, cleanupInterval),
		ttl:   ttl,
		now:   time.Now,
	}
}

// MarkOnline implements Store.
func (s *MemoryStore) MarkOnline(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.cache.Set(onlinePrefix+name, struct{}{}, cache.NoExpiration)
	return nil
}

// MarkOffline implements Store.
func (s *MemoryStore) MarkOffline(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.cache.Delete(onlinePrefix + name)
	s.cache.Set(lastSeenPrefix+name, s.now(), s.ttl)
	return nil
}

// LastSeen implements Store.
func (s *MemoryStore) LastSeen(ctx context.Context, name string) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}

	v, found := s.cache.Get(lastSeenPrefix + name)
	if !found {
		return time.Time{}, false, nil
	}

	seen, ok := v.(time.Time)
	return seen, ok, nil
}

// Online implements Store.
func (s *MemoryStore) Online(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var names []string
	for key := range s.cache.Items() {
		if name, ok := strings.CutPrefix(key, onlinePrefix); ok {
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.cache.Flush()
	return nil
}

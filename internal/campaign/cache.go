package campaign

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CampaignKey is the cache key of a campaign's mapped state.
func CampaignKey(address string) string {
	return "campaign:" + address
}

// BalanceKey is the cache key of a wallet's balance of a cw20 token or native denom.
func BalanceKey(wallet, token string) string {
	return "balance:" + wallet + ":" + token
}

// DAOConfigKey is the cache key of a DAO's config.
func DAOConfigKey(dao string) string {
	return "dao_config:" + dao
}

// FeeManagerConfigKey is the cache key of a fee manager's config.
func FeeManagerConfigKey(feeManager string) string {
	return "fee_manager_config:" + feeManager
}

const (
	RegistryKey = "registry"
	FeaturedKey = "featured"
)

// DefaultLoadTimeout bounds a shared load once it is detached from its caller.
const DefaultLoadTimeout = 30 * time.Second

type cacheEntry struct {
	value   interface{}
	version uint64
}

// Cache memoizes loaded values by key. Invalidate bumps a key's version, so a load
// that started before the invalidation never overwrites the newer state.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]cacheEntry
	versions map[string]uint64
	subs     map[string]map[int]chan struct{}
	nextSub  int

	group       singleflight.Group
	loadTimeout time.Duration
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries:     make(map[string]cacheEntry),
		versions:    make(map[string]uint64),
		subs:        make(map[string]map[int]chan struct{}),
		loadTimeout: DefaultLoadTimeout,
	}
}

// Get returns the cached value for key or loads it. Concurrent loads of the same
// key and version share one call. The shared load is detached from the caller's
// cancellation; each caller returns when its own ctx is done. Errors are not cached.
func (c *Cache) Get(ctx context.Context, key string, load func(context.Context) (interface{}, error)) (interface{}, error) {
	c.mu.Lock()
	version := c.versions[key]
	if entry, ok := c.entries[key]; ok && entry.version == version {
		c.mu.Unlock()
		return entry.value, nil
	}
	c.mu.Unlock()

	flightKey := fmt.Sprintf("%s@%d", key, version)
	results := c.group.DoChan(flightKey, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()
		value, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.versions[key] == version {
			c.entries[key] = cacheEntry{value: value, version: version}
		}
		c.mu.Unlock()
		return value, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		return res.Val, res.Err
	}
}

// Load is a typed wrapper around Cache.Get.
func Load[V any](ctx context.Context, c *Cache, key string, load func(context.Context) (V, error)) (V, error) {
	value, err := c.Get(ctx, key, func(ctx context.Context) (interface{}, error) {
		return load(ctx)
	})
	if err != nil {
		var zero V
		return zero, err
	}
	typed, ok := value.(V)
	if !ok {
		var zero V
		return zero, fmt.Errorf("cache key %s holds %T", key, value)
	}
	return typed, nil
}

// Invalidate drops the cached values for keys and notifies their subscribers.
func (c *Cache) Invalidate(keys ...string) {
	c.mu.Lock()
	var notify []chan struct{}
	for _, key := range keys {
		c.versions[key]++
		delete(c.entries, key)
		for _, ch := range c.subs[key] {
			notify = append(notify, ch)
		}
	}
	c.mu.Unlock()

	for _, ch := range notify {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// InvalidatePrefix invalidates every cached key starting with prefix.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	var keys []string
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	c.mu.Unlock()
	c.Invalidate(keys...)
}

// Version returns the number of times key has been invalidated.
func (c *Cache) Version(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[key]
}

// Subscribe returns a channel signalled after each invalidation of key.
func (c *Cache) Subscribe(key string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	if c.subs[key] == nil {
		c.subs[key] = make(map[int]chan struct{})
	}
	c.subs[key][id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		delete(c.subs[key], id)
		if len(c.subs[key]) == 0 {
			delete(c.subs, key)
		}
		c.mu.Unlock()
	}
}

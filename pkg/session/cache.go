package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"jobhunt/pkg/domain"
)

// Cache stores identities resolved from access tokens. Set never keeps an
// entry past tokenExpiry; a zero tokenExpiry means the expiry is unknown.
type Cache interface {
	Get(ctx context.Context, token string) (domain.User, bool, error)
	Set(ctx context.Context, token string, user domain.User, tokenExpiry time.Time) error
	Delete(ctx context.Context, token string) error
}

// entryTTL returns min(ttl, time left on the token). ok is false when the
// entry must not be stored.
func entryTTL(ttl time.Duration, tokenExpiry, now time.Time) (time.Duration, bool) {
	if tokenExpiry.IsZero() {
		return ttl, true
	}
	left := tokenExpiry.Sub(now)
	if left <= 0 {
		return 0, false
	}
	if ttl <= 0 || left < ttl {
		return left, true
	}
	return ttl, true
}

// RedisCache keeps token -> identity mappings in Redis with TTL. Keys hold
// a hash of the token, never the token itself.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisCacheWithClient builds the cache on an existing client.
func NewRedisCacheWithClient(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "jobhunt:identity"
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (c *RedisCache) Get(ctx context.Context, token string) (domain.User, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	val, err := c.client.Get(ctx, c.key(token)).Result()
	if err == redis.Nil {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, err
	}
	var user domain.User
	if err := json.Unmarshal([]byte(val), &user); err != nil {
		return domain.User{}, false, err
	}
	return user, true, nil
}

func (c *RedisCache) Set(ctx context.Context, token string, user domain.User, tokenExpiry time.Time) error {
	ttl, ok := entryTTL(c.ttl, tokenExpiry, c.now())
	if !ok {
		return nil
	}
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return c.client.Set(ctx, c.key(token), data, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.client.Del(ctx, c.key(token)).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

func (c *RedisCache) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return c.prefix + ":" + hex.EncodeToString(sum[:])
}

// MemoryCache is an in-process Cache. Expired entries are swept on Set.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	user    domain.User
	expires time.Time // zero: never
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, token string) (domain.User, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[token]
	if !ok {
		return domain.User{}, false, nil
	}
	if e.expired(c.now()) {
		delete(c.entries, token)
		return domain.User{}, false, nil
	}
	return e.user, true, nil
}

func (c *MemoryCache) Set(_ context.Context, token string, user domain.User, tokenExpiry time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
		}
	}
	ttl, ok := entryTTL(c.ttl, tokenExpiry, now)
	if !ok {
		delete(c.entries, token)
		return nil
	}
	var expires time.Time
	if ttl > 0 {
		expires = now.Add(ttl)
	}
	c.entries[token] = memoryEntry{user: user, expires: expires}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, token)
	return nil
}

package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"jobhunt/pkg/domain"
)

type fakeAuth struct {
	calls atomic.Int32
	users map[string]domain.User
}

func (f *fakeAuth) User(_ context.Context, token string) (domain.User, error) {
	f.calls.Add(1)
	u, ok := f.users[token]
	if !ok {
		return domain.User{}, errors.New("invalid token")
	}
	return u, nil
}

type fakeVerifier map[string]string

func (f fakeVerifier) VerifySubject(token string) (string, error) {
	sub, ok := f[token]
	if !ok {
		return "", errors.New("bad signature")
	}
	return sub, nil
}

func newRedisCache(t *testing.T, mr *miniredis.Miniredis, prefix string, ttl time.Duration) *RedisCache {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCacheWithClient(client, prefix, ttl)
}

func signedToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestTokenAccessorNoToken(t *testing.T) {
	auth := &fakeAuth{}
	a := NewTokenAccessor(auth, ContextTokens{})
	if _, ok := a.CurrentIdentity(context.Background()); ok {
		t.Fatalf("expected no identity without token")
	}
	if auth.calls.Load() != 0 {
		t.Fatalf("auth should not be called without token")
	}
}

func TestTokenAccessorResolvesAndCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	auth := &fakeAuth{users: map[string]domain.User{"tok": {ID: "u1", Email: "ada@example.com"}}}
	a := NewTokenAccessor(auth, ContextTokens{}, WithCache(newRedisCache(t, mr, "test:identity", time.Minute)))
	ctx := WithToken(context.Background(), "tok")

	for i := 0; i < 3; i++ {
		user, ok := a.CurrentIdentity(ctx)
		if !ok || user.ID != "u1" {
			t.Fatalf("identity = %+v, %v", user, ok)
		}
	}
	if got := auth.calls.Load(); got != 1 {
		t.Fatalf("expected 1 auth call, got %d", got)
	}
	for _, key := range mr.Keys() {
		if key == "test:identity:tok" {
			t.Fatalf("raw token must not be used as cache key")
		}
	}

	a.Forget(ctx, "tok")
	if _, ok := a.CurrentIdentity(ctx); !ok {
		t.Fatalf("expected identity after cache drop")
	}
	if got := auth.calls.Load(); got != 2 {
		t.Fatalf("expected 2 auth calls after forget, got %d", got)
	}
}

func TestTokenAccessorFallsThroughOnCacheFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	auth := &fakeAuth{users: map[string]domain.User{"tok": {ID: "u1"}}}
	a := NewTokenAccessor(auth, ContextTokens{}, WithCache(newRedisCache(t, mr, "", time.Minute)))
	mr.Close()
	if _, ok := a.CurrentIdentity(WithToken(context.Background(), "tok")); !ok {
		t.Fatalf("expected identity when redis is down")
	}
}

func TestTokenAccessorVerifier(t *testing.T) {
	auth := &fakeAuth{users: map[string]domain.User{
		"good":    {ID: "u1"},
		"swapped": {ID: "u2"},
	}}
	verifier := fakeVerifier{"good": "u1", "swapped": "u1"}
	a := NewTokenAccessor(auth, ContextTokens{}, WithVerifier(verifier))

	if _, ok := a.CurrentIdentity(WithToken(context.Background(), "forged")); ok {
		t.Fatalf("expected forged token to be rejected")
	}
	if auth.calls.Load() != 0 {
		t.Fatalf("auth should not be called for a locally rejected token")
	}
	if _, ok := a.CurrentIdentity(WithToken(context.Background(), "swapped")); ok {
		t.Fatalf("expected subject mismatch to be rejected")
	}
	if user, ok := a.CurrentIdentity(WithToken(context.Background(), "good")); !ok || user.ID != "u1" {
		t.Fatalf("identity = %+v, %v", user, ok)
	}
}

func TestMemoryCacheExpires(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()
	_ = c.Set(ctx, "tok", domain.User{ID: "u1"}, time.Time{})
	if _, ok, _ := c.Get(ctx, "tok"); !ok {
		t.Fatalf("expected cache hit")
	}
	now = now.Add(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "tok"); ok {
		t.Fatalf("expected expired entry to miss")
	}
}

func TestRedisCacheBoundedByTokenExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := newRedisCache(t, mr, "test:identity", time.Hour)
	token := signedToken(t, "u1", time.Now().Add(5*time.Second))
	auth := &fakeAuth{users: map[string]domain.User{token: {ID: "u1"}}}
	a := NewTokenAccessor(auth, ContextTokens{}, WithCache(cache))
	ctx := WithToken(context.Background(), token)

	if _, ok := a.CurrentIdentity(ctx); !ok {
		t.Fatalf("expected identity for a live token")
	}
	if ttl := mr.TTL(cache.key(token)); ttl <= 0 || ttl > 5*time.Second {
		t.Fatalf("cache ttl = %s, want at most the 5s left on the token", ttl)
	}

	delete(auth.users, token)
	mr.FastForward(10 * time.Second)
	if user, ok := a.CurrentIdentity(ctx); ok {
		t.Fatalf("expired token still resolved to %+v", user)
	}
}

func TestExpiredTokenIsNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	token := signedToken(t, "u1", time.Now().Add(-time.Minute))
	auth := &fakeAuth{users: map[string]domain.User{token: {ID: "u1"}}}
	a := NewTokenAccessor(auth, ContextTokens{}, WithCache(newRedisCache(t, mr, "test:identity", time.Hour)))

	_, _ = a.CurrentIdentity(WithToken(context.Background(), token))
	_, _ = a.CurrentIdentity(WithToken(context.Background(), token))
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("expired token cached under %v", keys)
	}
	if got := auth.calls.Load(); got != 2 {
		t.Fatalf("expected every lookup to reach auth, got %d calls", got)
	}
}

func TestMemoryCacheBoundedByTokenExpiry(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()
	_ = c.Set(ctx, "tok", domain.User{ID: "u1"}, now.Add(10*time.Second))
	if _, ok, _ := c.Get(ctx, "tok"); !ok {
		t.Fatalf("expected cache hit before token expiry")
	}
	now = now.Add(11 * time.Second)
	if _, ok, _ := c.Get(ctx, "tok"); ok {
		t.Fatalf("expected miss after token expiry")
	}
	_ = c.Set(ctx, "old", domain.User{ID: "u1"}, now.Add(-time.Second))
	if _, ok := c.entries["old"]; ok {
		t.Fatalf("already expired token must not be stored")
	}
}

func TestMemoryCacheSweepsOnSet(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()
	for _, tok := range []string{"a", "b", "c"} {
		_ = c.Set(ctx, tok, domain.User{ID: "u1"}, time.Time{})
	}
	now = now.Add(2 * time.Minute)
	_ = c.Set(ctx, "d", domain.User{ID: "u1"}, time.Time{})
	if len(c.entries) != 1 {
		t.Fatalf("entries after sweep = %d, want 1", len(c.entries))
	}
}

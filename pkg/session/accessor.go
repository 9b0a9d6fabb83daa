package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"jobhunt/pkg/domain"
)

// Accessor resolves the signed-in identity. ok is false when there is no
// active session; read paths render nothing and write paths abort.
type Accessor interface {
	CurrentIdentity(ctx context.Context) (domain.User, bool)
}

// Authenticator resolves an access token through the auth service.
type Authenticator interface {
	User(ctx context.Context, token string) (domain.User, error)
}

// TokenSource supplies the caller's access token.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, bool)
}

// SubjectVerifier checks a token locally before the auth round-trip.
type SubjectVerifier interface {
	VerifySubject(token string) (string, error)
}

// TokenAccessor resolves identity from an access token, optionally
// verifying the token locally and caching the resolved user.
type TokenAccessor struct {
	auth     Authenticator
	tokens   TokenSource
	cache    Cache
	verifier SubjectVerifier
}

type AccessorOption func(*TokenAccessor)

// WithCache caches resolved identities.
func WithCache(c Cache) AccessorOption {
	return func(a *TokenAccessor) { a.cache = c }
}

// WithVerifier rejects tokens that fail local signature and claim checks
// without calling the auth service.
func WithVerifier(v SubjectVerifier) AccessorOption {
	return func(a *TokenAccessor) { a.verifier = v }
}

func NewTokenAccessor(auth Authenticator, tokens TokenSource, opts ...AccessorOption) *TokenAccessor {
	a := &TokenAccessor{auth: auth, tokens: tokens}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

func (a *TokenAccessor) CurrentIdentity(ctx context.Context) (domain.User, bool) {
	token, ok := a.tokens.AccessToken(ctx)
	if !ok || token == "" {
		return domain.User{}, false
	}
	subject := ""
	if a.verifier != nil {
		var err error
		subject, err = a.verifier.VerifySubject(token)
		if err != nil {
			slog.Debug("access token rejected", "err", err)
			return domain.User{}, false
		}
	}
	if a.cache != nil {
		user, hit, err := a.cache.Get(ctx, token)
		if err != nil {
			slog.Warn("identity cache get failed", "err", err)
		} else if hit && (subject == "" || subject == user.ID) {
			return user, true
		}
	}
	user, err := a.auth.User(ctx, token)
	if err != nil {
		slog.Debug("resolve identity failed", "err", err)
		return domain.User{}, false
	}
	if subject != "" && subject != user.ID {
		slog.Warn("token subject does not match resolved user", "subject", subject, "user_id", user.ID)
		return domain.User{}, false
	}
	if a.cache != nil {
		if err := a.cache.Set(ctx, token, user, tokenExpiry(token)); err != nil {
			slog.Warn("identity cache set failed", "err", err)
		}
	}
	return user, true
}

// Forget drops a cached identity, e.g. after sign out.
func (a *TokenAccessor) Forget(ctx context.Context, token string) {
	if a.cache == nil || token == "" {
		return
	}
	if err := a.cache.Delete(ctx, token); err != nil {
		slog.Warn("identity cache delete failed", "err", err)
	}
}

// tokenExpiry reads the exp claim without checking the signature. It only
// bounds how long a resolved identity may be cached. Opaque tokens and
// tokens without exp yield the zero time.
func tokenExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// Static is an Accessor with a fixed identity, for tests and tooling.
type Static struct {
	User domain.User
}

func (s Static) CurrentIdentity(context.Context) (domain.User, bool) {
	return s.User, s.User.ID != ""
}

package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"jobhunt/pkg/domain"
)

type tokenContextKey struct{}

// WithToken binds an access token to ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, strings.TrimSpace(token))
}

// TokenFromContext returns the access token bound by WithToken.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	token, _ := ctx.Value(tokenContextKey{}).(string)
	return token, token != ""
}

// ContextTokens reads the token bound to the request context.
type ContextTokens struct{}

func (ContextTokens) AccessToken(ctx context.Context) (string, bool) {
	return TokenFromContext(ctx)
}

// Refresher exchanges a refresh token for a new session.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (domain.Session, error)
}

const refreshSkew = 30 * time.Second

// FileTokens serves the access token persisted in a session file,
// refreshing and rewriting it when it is about to expire.
type FileTokens struct {
	files     *FileStore
	refresher Refresher
	now       func() time.Time

	mu sync.Mutex
}

func NewFileTokens(files *FileStore, refresher Refresher) *FileTokens {
	return &FileTokens{files: files, refresher: refresher, now: time.Now}
}

func (t *FileTokens) AccessToken(ctx context.Context) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok, err := t.files.Load()
	if err != nil {
		slog.Warn("read session file failed", "path", t.files.Path(), "err", err)
		return "", false
	}
	if !ok || sess.AccessToken == "" {
		return "", false
	}
	if !sess.Expired(t.now(), refreshSkew) {
		return sess.AccessToken, true
	}
	if t.refresher == nil || sess.RefreshToken == "" {
		return "", false
	}
	fresh, err := t.refresher.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		slog.Warn("refresh session failed", "err", err)
		return "", false
	}
	if fresh.User.ID == "" {
		fresh.User = sess.User
	}
	if err := t.files.Save(fresh); err != nil {
		slog.Warn("write session file failed", "path", t.files.Path(), "err", err)
	}
	return fresh.AccessToken, fresh.AccessToken != ""
}

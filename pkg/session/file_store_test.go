package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"jobhunt/pkg/domain"
)

type fakeRefresher struct {
	calls int
	next  domain.Session
	err   error
}

func (f *fakeRefresher) Refresh(_ context.Context, refreshToken string) (domain.Session, error) {
	f.calls++
	if refreshToken != "rt" {
		return domain.Session{}, errors.New("unexpected refresh token")
	}
	return f.next, f.err
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	files := NewFileStore(path)
	if _, ok, err := files.Load(); ok || err != nil {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}
	sess := domain.Session{AccessToken: "at", RefreshToken: "rt", User: domain.User{ID: "u1", Email: "ada@example.com"}}
	if err := files.Save(sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("session file mode = %v, want 0600", info.Mode().Perm())
	}
	got, ok, err := files.Load()
	if err != nil || !ok || got.AccessToken != "at" || got.User.Email != "ada@example.com" {
		t.Fatalf("load = %+v ok=%v err=%v", got, ok, err)
	}
	if err := files.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := files.Clear(); err != nil {
		t.Fatalf("second clear should be a no-op: %v", err)
	}
}

func TestFileTokensRefreshesExpiredSession(t *testing.T) {
	files := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	_ = files.Save(domain.Session{AccessToken: "old", RefreshToken: "rt", ExpiresAt: now.Add(10 * time.Second), User: domain.User{ID: "u1"}})

	refresher := &fakeRefresher{next: domain.Session{AccessToken: "new", RefreshToken: "rt2", ExpiresAt: now.Add(time.Hour)}}
	tokens := NewFileTokens(files, refresher)
	tokens.now = func() time.Time { return now }

	token, ok := tokens.AccessToken(context.Background())
	if !ok || token != "new" {
		t.Fatalf("token = %q ok=%v, want refreshed token", token, ok)
	}
	saved, _, _ := files.Load()
	if saved.AccessToken != "new" || saved.RefreshToken != "rt2" || saved.User.ID != "u1" {
		t.Fatalf("session file not rewritten: %+v", saved)
	}

	token, ok = tokens.AccessToken(context.Background())
	if !ok || token != "new" || refresher.calls != 1 {
		t.Fatalf("expected cached fresh token without a second refresh, calls=%d", refresher.calls)
	}
}

func TestFileTokensRefreshFailure(t *testing.T) {
	files := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	_ = files.Save(domain.Session{AccessToken: "old", RefreshToken: "rt", ExpiresAt: now.Add(-time.Minute)})

	tokens := NewFileTokens(files, &fakeRefresher{err: errors.New("revoked")})
	tokens.now = func() time.Time { return now }
	if _, ok := tokens.AccessToken(context.Background()); ok {
		t.Fatalf("expected no token when refresh fails")
	}
}

package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignInReturnsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Fatalf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		if r.Header.Get("apikey") != "anon-key" {
			t.Fatalf("apikey = %q", r.Header.Get("apikey"))
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "ada@example.com" || body["password"] != "secret" {
			t.Fatalf("unexpected body %+v", body)
		}
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600,"user":{"id":"u1","email":"ada@example.com"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon-key")
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }
	sess, err := c.SignIn(context.Background(), "ada@example.com", "secret")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if sess.AccessToken != "at" || sess.RefreshToken != "rt" || sess.User.ID != "u1" {
		t.Fatalf("unexpected session %+v", sess)
	}
	if !sess.ExpiresAt.Equal(fixed.Add(time.Hour)) {
		t.Fatalf("expires at = %v", sess.ExpiresAt)
	}
}

func TestSignUpPendingConfirmation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("redirect_to"); got != "https://jobs.example.com/dashboard" {
			t.Fatalf("redirect_to = %q", got)
		}
		_, _ = w.Write([]byte(`{"id":"u1","email":"ada@example.com"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon-key")
	sess, err := c.SignUp(context.Background(), "ada@example.com", "secret", "https://jobs.example.com/dashboard")
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if sess.User.ID != "u1" || sess.User.Email != "ada@example.com" {
		t.Fatalf("unexpected user %+v", sess.User)
	}
}

func TestErrorShapes(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantMsg  string
		wantCode string
	}{
		{name: "msg", body: `{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`, wantMsg: "Invalid login credentials", wantCode: "invalid_credentials"},
		{name: "oauth", body: `{"error":"invalid_grant","error_description":"Invalid Refresh Token"}`, wantMsg: "Invalid Refresh Token", wantCode: "invalid_grant"},
		{name: "empty", body: ``, wantMsg: "400 Bad Request"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "").SignIn(context.Background(), "a@b.c", "x")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Status != http.StatusBadRequest || apiErr.Message != tc.wantMsg || apiErr.Code != tc.wantCode {
				t.Fatalf("unexpected error %+v", apiErr)
			}
		})
	}
}

func TestUserSendsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":"u1","email":"ada@example.com"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon-key")
	user, err := c.User(context.Background(), "at")
	if err != nil || user.ID != "u1" {
		t.Fatalf("user = %+v, %v", user, err)
	}
	if _, err := c.User(context.Background(), "bad"); err == nil {
		t.Fatalf("expected unauthorized error")
	}
}

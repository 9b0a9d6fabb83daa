package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"jobhunt/pkg/domain"
	"jobhunt/pkg/store"
	"jobhunt/services/dashboard/internal/app"
)

// fakeBackend serves the auth API for two users, token-a and token-b.
type fakeBackend struct {
	*httptest.Server
	userCalls  atomic.Int32
	mu         sync.Mutex
	redirectTo string
	rest       http.HandlerFunc
}

func newFakeBackend(t *testing.T, rest http.HandlerFunc) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{rest: rest}
	users := map[string]domain.User{
		"token-a": {ID: "user-a", Email: "a@example.com"},
		"token-b": {ID: "user-b", Email: "b@example.com"},
	}
	fb.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/auth/v1/user":
			fb.userCalls.Add(1)
			user, ok := users[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
			if !ok {
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"msg": "invalid JWT"})
				return
			}
			_ = json.NewEncoder(w).Encode(user)
		case r.URL.Path == "/auth/v1/token":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "token-a",
				"refresh_token": "refresh-a",
				"expires_in":    3600,
				"user":          users["token-a"],
			})
		case r.URL.Path == "/auth/v1/signup":
			fb.mu.Lock()
			fb.redirectTo = r.URL.Query().Get("redirect_to")
			fb.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "user-new", "email": "new@example.com"})
		case r.URL.Path == "/auth/v1/logout":
			w.WriteHeader(http.StatusNoContent)
		case strings.HasPrefix(r.URL.Path, "/rest/v1/") && fb.rest != nil:
			fb.rest(w, r)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(fb.Close)
	return fb
}

type testEnv struct {
	backend *fakeBackend
	server  *httptest.Server
	redis   *miniredis.Miniredis
}

func newTestEnv(t *testing.T, rest http.HandlerFunc, mutate func(*app.Config, *Config)) *testEnv {
	t.Helper()
	backend := newFakeBackend(t, rest)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	appCfg := app.Config{
		BackendURL:        backend.URL,
		AnonKey:           "anon-key",
		SignupRedirectURL: "https://jobs.example.com/dashboard",
		Store:             store.NewMemoryStore(),
		Redis:             client,
	}
	srvCfg := Config{Redis: client}
	if mutate != nil {
		mutate(&appCfg, &srvCfg)
	}
	core, err := app.New(appCfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srvCfg.App = core
	srv, err := New(srvCfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	httpSrv := httptest.NewServer(srv.Router())
	t.Cleanup(httpSrv.Close)
	return &testEnv{backend: backend, server: httpSrv, redis: mr}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	resp, body := env.do(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health = %d %v", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatal("expected request id header")
	}
}

func TestDataRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	for _, path := range []string{"/api/jobs", "/api/linkedin", "/api/emails", "/api/dashboard", "/api/users/me"} {
		resp, _ := env.do(t, http.MethodGet, path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("GET %s without token = %d, want 401", path, resp.StatusCode)
		}
	}
	if got := env.backend.userCalls.Load(); got != 0 {
		t.Fatalf("auth user lookups without token = %d, want 0", got)
	}

	resp, _ := env.do(t, http.MethodGet, "/api/jobs", "bogus", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("GET with unknown token = %d, want 401", resp.StatusCode)
	}

	resp, body := env.do(t, http.MethodGet, "/api/users/me", "token-a", nil)
	if resp.StatusCode != http.StatusOK || body["email"] != "a@example.com" {
		t.Fatalf("me = %d %v", resp.StatusCode, body)
	}
}

func TestJobsAreScopedToOwner(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	resp, created := env.do(t, http.MethodPost, "/api/jobs", "token-a", map[string]any{
		"company": "Acme",
		"role":    "Engineer",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create = %d %v", resp.StatusCode, created)
	}
	id, _ := created["id"].(string)
	if id == "" || created["user_id"] != "user-a" {
		t.Fatalf("unexpected created row: %v", created)
	}
	if created["status"] != string(domain.JobApplied) || created["probability_score"] != float64(domain.DefaultJobScore) {
		t.Fatalf("defaults not applied: %v", created)
	}

	_, listA := env.do(t, http.MethodGet, "/api/jobs", "token-a", nil)
	if listA["count"] != float64(1) {
		t.Fatalf("owner list count = %v, want 1", listA["count"])
	}
	_, listB := env.do(t, http.MethodGet, "/api/jobs", "token-b", nil)
	if listB["count"] != float64(0) {
		t.Fatalf("other user list count = %v, want 0", listB["count"])
	}

	resp, body := env.do(t, http.MethodPut, "/api/jobs/"+id, "token-b", map[string]any{
		"company": "Hijack",
		"role":    "Engineer",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign update = %d %v, want 403", resp.StatusCode, body)
	}
	resp, _ = env.do(t, http.MethodDelete, "/api/jobs/"+id, "token-b", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("foreign delete = %d, want 204 no-op", resp.StatusCode)
	}
	_, listA = env.do(t, http.MethodGet, "/api/jobs", "token-a", nil)
	if listA["count"] != float64(1) {
		t.Fatalf("foreign delete removed the row: %v", listA)
	}

	resp, updated := env.do(t, http.MethodPut, "/api/jobs/"+id, "token-a", map[string]any{
		"company": "Acme",
		"role":    "Engineer",
		"status":  "Interview",
	})
	if resp.StatusCode != http.StatusOK || updated["status"] != "Interview" {
		t.Fatalf("owner update = %d %v", resp.StatusCode, updated)
	}

	_, summary := env.do(t, http.MethodGet, "/api/dashboard", "token-a", nil)
	if summary["total_applications"] != float64(1) || summary["reply_rate"] != float64(100) {
		t.Fatalf("unexpected summary: %v", summary)
	}

	resp, _ = env.do(t, http.MethodDelete, "/api/jobs/"+id, "token-a", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("owner delete = %d", resp.StatusCode)
	}
	_, listA = env.do(t, http.MethodGet, "/api/jobs", "token-a", nil)
	if listA["count"] != float64(0) {
		t.Fatalf("row still listed after delete: %v", listA)
	}
}

func TestPatchIsNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	resp, created := env.do(t, http.MethodPost, "/api/jobs", "token-a", map[string]any{
		"company": "Acme", "role": "Engineer", "status": "Interview", "probability_score": 8,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create = %d", resp.StatusCode)
	}
	id, _ := created["id"].(string)

	resp, _ = env.do(t, http.MethodPatch, "/api/jobs/"+id, "token-a", map[string]any{"role": "Staff Engineer"})
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("PATCH = %d, want 405", resp.StatusCode)
	}
	_, list := env.do(t, http.MethodGet, "/api/jobs", "token-a", nil)
	items, _ := list["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %v", list)
	}
	job, _ := items[0].(map[string]any)
	if job["role"] != "Engineer" || job["status"] != "Interview" || job["probability_score"] != float64(8) {
		t.Fatalf("row changed after rejected PATCH: %v", job)
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	tests := []struct {
		path string
		body map[string]any
	}{
		{path: "/api/jobs", body: map[string]any{"company": "", "role": "Engineer"}},
		{path: "/api/jobs", body: map[string]any{"company": "Acme", "role": "Engineer", "probability_score": 11}},
		{path: "/api/linkedin", body: map[string]any{"contact_name": "Ada", "status": "Waiting"}},
		{path: "/api/emails", body: map[string]any{"contact_name": "Ada", "contact_email": "not-an-email"}},
	}
	for _, tc := range tests {
		resp, body := env.do(t, http.MethodPost, tc.path, "token-a", tc.body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("POST %s %v = %d, want 400", tc.path, tc.body, resp.StatusCode)
		}
		if msg, _ := body["error"].(string); msg == "" {
			t.Fatalf("expected validation message, got %v", body)
		}
	}

	resp, _ := env.do(t, http.MethodPost, "/api/jobs", "token-a", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty body = %d, want 400", resp.StatusCode)
	}
}

func TestListSearch(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	for _, name := range []string{"Ada Lovelace", "Grace Hopper"} {
		resp, _ := env.do(t, http.MethodPost, "/api/linkedin", "token-a", map[string]any{"contact_name": name})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create contact = %d", resp.StatusCode)
		}
	}
	_, body := env.do(t, http.MethodGet, "/api/linkedin?q=ADA", "token-a", nil)
	if body["count"] != float64(1) {
		t.Fatalf("search count = %v, want 1", body["count"])
	}
	_, body = env.do(t, http.MethodGet, "/api/linkedin", "token-a", nil)
	items, _ := body["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("list = %v", body)
	}
	if first, _ := items[0].(map[string]any); first["contact_name"] != "Grace Hopper" {
		t.Fatalf("expected newest first, got %v", items[0])
	}
}

func TestSignupPendingConfirmation(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	resp, body := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    "New@Example.com ",
		"password": "secret-pass",
	})
	if resp.StatusCode != http.StatusAccepted || body["confirmationRequired"] != true {
		t.Fatalf("signup = %d %v", resp.StatusCode, body)
	}
	env.backend.mu.Lock()
	redirect := env.backend.redirectTo
	env.backend.mu.Unlock()
	if redirect != "https://jobs.example.com/dashboard" {
		t.Fatalf("redirect_to = %q", redirect)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{"email": "x@example.com"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("signup without password = %d, want 400", resp.StatusCode)
	}
}

func TestLoginAndLogout(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	resp, body := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "a@example.com",
		"password": "pw",
	})
	if resp.StatusCode != http.StatusOK || body["token"] != "token-a" || body["refreshToken"] != "refresh-a" {
		t.Fatalf("login = %d %v", resp.StatusCode, body)
	}
	resp, _ = env.do(t, http.MethodPost, "/api/auth/logout", "token-a", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout = %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodPost, "/api/auth/logout", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("logout without token = %d, want 401", resp.StatusCode)
	}
}

func TestIdentityCacheSkipsRepeatLookups(t *testing.T) {
	env := newTestEnv(t, nil, func(a *app.Config, _ *Config) {
		a.IdentityCacheTTL = time.Minute
	})
	for i := 0; i < 3; i++ {
		resp, _ := env.do(t, http.MethodGet, "/api/users/me", "token-a", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("me = %d", resp.StatusCode)
		}
	}
	if got := env.backend.userCalls.Load(); got != 1 {
		t.Fatalf("auth user lookups = %d, want 1", got)
	}

	resp, _ := env.do(t, http.MethodPost, "/api/auth/logout", "token-a", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout = %d", resp.StatusCode)
	}
	env.do(t, http.MethodGet, "/api/users/me", "token-a", nil)
	if got := env.backend.userCalls.Load(); got != 2 {
		t.Fatalf("logout should drop the cached identity; lookups = %d, want 2", got)
	}
}

func TestRESTModeForwardsUserToken(t *testing.T) {
	var (
		mu       sync.Mutex
		sawQuery string
		sawAuth  string
	)
	rest := func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		sawQuery = r.URL.RawQuery
		sawAuth = r.Header.Get("Authorization")
		mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{"id": "j1", "user_id": "user-a", "company": "Acme", "role": "Engineer", "status": "Applied"},
			})
		case http.MethodPost:
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"code":    "42501",
				"message": "new row violates row-level security policy for table \"jobs\"",
			})
		}
	}
	env := newTestEnv(t, rest, func(a *app.Config, _ *Config) {
		a.Store = nil
		a.DataMode = "rest"
	})

	resp, body := env.do(t, http.MethodGet, "/api/jobs", "token-a", nil)
	if resp.StatusCode != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("list = %d %v", resp.StatusCode, body)
	}
	mu.Lock()
	gotAuth, gotQuery := sawAuth, sawQuery
	mu.Unlock()
	if gotAuth != "Bearer token-a" {
		t.Fatalf("store got Authorization %q, want the caller's token", gotAuth)
	}
	if !strings.Contains(gotQuery, "user_id=eq.user-a") || !strings.Contains(gotQuery, "order=created_at.desc") {
		t.Fatalf("unexpected store query: %s", gotQuery)
	}

	resp, body = env.do(t, http.MethodPost, "/api/jobs", "token-a", map[string]any{"company": "Acme", "role": "Engineer"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("rls rejection = %d, want 403", resp.StatusCode)
	}
	if msg, _ := body["error"].(string); !strings.Contains(msg, "row-level security") {
		t.Fatalf("store message not passed through: %v", body)
	}
}

func TestServerRequiresRedis(t *testing.T) {
	core, err := app.New(app.Config{BackendURL: "http://127.0.0.1:1", Store: store.NewMemoryStore()})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if _, err := New(Config{App: core}); err == nil {
		t.Fatal("expected server without redis to fail")
	}
}

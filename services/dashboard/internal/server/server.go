package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"jobhunt/internal/ratelimit"
	"jobhunt/internal/util"
	"jobhunt/pkg/authclient"
	"jobhunt/pkg/domain"
	"jobhunt/pkg/session"
	"jobhunt/pkg/store"
	"jobhunt/services/dashboard/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                       *app.App
	Redis                     redis.UniversalClient
	TrustedProxies            *util.TrustedProxies
	AllowedOrigins            []string
	SignupRateLimitPerMinute  int
	LoginRateLimitPerMinute   int
	RefreshRateLimitPerMinute int
}

// Server exposes the dashboard JSON API.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	trusted        *util.TrustedProxies
	allowedOrigins []string
	signupLimiter  *ratelimit.FixedWindowLimiter
	loginLimiter   *ratelimit.FixedWindowLimiter
	refreshLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires app")
	}
	if cfg.Redis == nil {
		return nil, errors.New("server requires redis for rate limiting")
	}
	signupLimit := cfg.SignupRateLimitPerMinute
	if signupLimit <= 0 {
		signupLimit = 5
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	refreshLimit := cfg.RefreshRateLimitPerMinute
	if refreshLimit <= 0 {
		refreshLimit = 20
	}
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		limiter, err := ratelimit.NewFixedWindowLimiter(cfg.Redis, "jobhunt:dashboard:ratelimit:"+name, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	signupLimiter, err := newLimiter("signup", signupLimit)
	if err != nil {
		return nil, err
	}
	loginLimiter, err := newLimiter("login", loginLimit)
	if err != nil {
		return nil, err
	}
	refreshLimiter, err := newLimiter("refresh", refreshLimit)
	if err != nil {
		return nil, err
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		trusted:        cfg.TrustedProxies,
		allowedOrigins: cfg.AllowedOrigins,
		signupLimiter:  signupLimiter,
		loginLimiter:   loginLimiter,
		refreshLimiter: refreshLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithCORS(s.allowedOrigins, h)
	h = util.WithSecurityHeaders(h)
	h = util.WithRequestLog(h)
	return util.WithRequestID(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/refresh", s.handleRefresh)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.Handle("/api/users/me", s.authenticated(s.handleMe))

	// per-user data (auth required)
	mount(s, "/api/jobs", s.app.Jobs())
	mount(s, "/api/linkedin", s.app.LinkedIn())
	mount(s, "/api/emails", s.app.Emails())
	s.mux.Handle("/api/dashboard", s.authenticated(s.handleDashboard))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, domain.User)

// authenticated binds the bearer token to the request context and resolves
// the identity through it. Store calls made by next run as that user.
func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "dashboard.authorize", "fail", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := session.WithToken(r.Context(), token)
		user, ok := s.app.CurrentIdentity(ctx)
		if !ok {
			s.audit(r, "dashboard.authorize", "fail", "reason", "identity_unresolved")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		s.audit(r, "dashboard.authorize", "success", "user_id", user.ID)
		ctx = util.ContextWithLogger(ctx, util.LoggerFromContext(ctx).With("user_id", user.ID))
		next(w, r.WithContext(ctx), user)
	})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.signupLimiter, "too many signup attempts") {
		s.audit(r, "dashboard.signup", "rate_limited")
		return
	}
	var req authRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "dashboard.signup", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sess, err := s.app.SignUp(r.Context(), req.Email, req.Password)
	if errors.Is(err, authclient.ErrNoSession) {
		s.audit(r, "dashboard.signup", "success", "user_id", sess.User.ID, "confirmation", "pending")
		writeJSON(w, http.StatusAccepted, authResponse{User: sess.User, ConfirmationRequired: true})
		return
	}
	if err != nil {
		s.audit(r, "dashboard.signup", "fail", "reason", err.Error())
		writeDomainError(w, err)
		return
	}
	s.audit(r, "dashboard.signup", "success", "user_id", sess.User.ID)
	writeJSON(w, http.StatusCreated, newAuthResponse(sess))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "dashboard.login", "rate_limited")
		return
	}
	var req authRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "dashboard.login", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sess, err := s.app.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.audit(r, "dashboard.login", "fail", "reason", err.Error())
		writeDomainError(w, err)
		return
	}
	s.audit(r, "dashboard.login", "success", "user_id", sess.User.ID)
	writeJSON(w, http.StatusOK, newAuthResponse(sess))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.refreshLimiter, "too many refresh attempts") {
		s.audit(r, "dashboard.refresh", "rate_limited")
		return
	}
	var req refreshRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "dashboard.refresh", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		s.audit(r, "dashboard.refresh", "fail", "reason", "missing_refresh_token")
		writeError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}
	sess, err := s.app.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.audit(r, "dashboard.refresh", "fail", "reason", err.Error())
		writeDomainError(w, err)
		return
	}
	s.audit(r, "dashboard.refresh", "success", "user_id", sess.User.ID)
	writeJSON(w, http.StatusOK, newAuthResponse(sess))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.refreshLimiter, "too many logout attempts") {
		s.audit(r, "dashboard.logout", "rate_limited")
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		s.audit(r, "dashboard.logout", "fail", "reason", "missing_token")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.app.SignOut(r.Context(), token); err != nil {
		s.audit(r, "dashboard.logout", "fail", "reason", err.Error())
		writeDomainError(w, err)
		return
	}
	s.audit(r, "dashboard.logout", "success")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	summary, err := s.app.Dashboard(r.Context(), user.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token                string      `json:"token,omitempty"`
	RefreshToken         string      `json:"refreshToken,omitempty"`
	ExpiresAt            *time.Time  `json:"expiresAt,omitempty"`
	User                 domain.User `json:"user"`
	ConfirmationRequired bool        `json:"confirmationRequired,omitempty"`
}

func newAuthResponse(sess domain.Session) authResponse {
	resp := authResponse{
		Token:        sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		User:         sess.User,
	}
	if !sess.ExpiresAt.IsZero() {
		expires := sess.ExpiresAt.UTC()
		resp.ExpiresAt = &expires
	}
	return resp
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		util.LoggerFromContext(r.Context()).Warn("empty bearer token", "path", r.URL.Path)
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the error taxonomy onto HTTP statuses. Remote
// errors keep the backend's status and message.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		validation *domain.ValidationError
		storeErr   *store.APIError
		authErr    *authclient.APIError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Message)
	case errors.Is(err, domain.ErrAuthRequired):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &storeErr):
		writeError(w, remoteStatus(storeErr.Status), storeErr.Message)
	case errors.As(err, &authErr):
		writeError(w, remoteStatus(authErr.Status), authErr.Message)
	case errors.Is(err, domain.ErrPermission):
		writeError(w, http.StatusForbidden, domain.ErrPermission.Error())
	default:
		slog.Error("backend call failed", "err", err)
		writeError(w, http.StatusBadGateway, "backend unavailable")
	}
}

func remoteStatus(status int) int {
	if status < 400 || status > 599 {
		return http.StatusBadGateway
	}
	return status
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, s.trusted)
	decision := limiter.Check(r.Context(), key)
	if decision.Allowed {
		return true
	}
	retry := int(decision.RetryAfter.Round(time.Second) / time.Second)
	if retry <= 0 {
		retry = 60
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

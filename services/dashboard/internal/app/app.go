package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	gormlogger "gorm.io/gorm/logger"

	"jobhunt/pkg/authclient"
	"jobhunt/pkg/domain"
	"jobhunt/pkg/repository"
	"jobhunt/pkg/session"
	"jobhunt/pkg/store"
	"jobhunt/pkg/summary"
)

// Config holds runtime configuration for the core application.
type Config struct {
	BackendURL        string
	AnonKey           string
	SignupRedirectURL string
	// DataMode is "rest" (PostgREST with the caller's token) or "postgres"
	// (direct database connection).
	DataMode         string
	DatabaseURL      string
	AutoMigrate      bool
	SQLLogLevel      gormlogger.LogLevel
	Redis            redis.UniversalClient
	IdentityCacheTTL time.Duration
	Verifier         session.SubjectVerifier
	Store            store.Store
}

// App wires the auth client, the per-user repositories and the summary.
type App struct {
	auth           *authclient.Client
	identity       *session.TokenAccessor
	jobs           *repository.Table[domain.Job, domain.JobFields]
	linkedIn       *repository.Table[domain.LinkedInContact, domain.LinkedInFields]
	emails         *repository.Table[domain.ColdEmail, domain.EmailFields]
	summary        *summary.Service
	signupRedirect string
}

// New constructs the application. Tokens are read from the request context,
// so every store call runs as the signed-in user.
func New(cfg Config) (*App, error) {
	if strings.TrimSpace(cfg.BackendURL) == "" {
		return nil, errors.New("backend URL required")
	}
	auth := authclient.NewClient(cfg.BackendURL, cfg.AnonKey)

	dataStore := cfg.Store
	if dataStore == nil {
		switch cfg.DataMode {
		case "", "rest":
			dataStore = store.NewRESTStore(cfg.BackendURL, cfg.AnonKey, session.ContextTokens{})
		case "postgres":
			if cfg.DatabaseURL == "" {
				return nil, errors.New("database URL required for postgres data mode")
			}
			gormOpts := []store.GormStoreOption{store.WithAutoMigrate(cfg.AutoMigrate)}
			if cfg.SQLLogLevel != 0 {
				gormOpts = append(gormOpts, store.WithLogLevel(cfg.SQLLogLevel))
			}
			gs, err := store.NewGormStore(cfg.DatabaseURL, gormOpts...)
			if err != nil {
				return nil, fmt.Errorf("init postgres store: %w", err)
			}
			dataStore = gs
		default:
			return nil, fmt.Errorf("unknown data mode %q", cfg.DataMode)
		}
	}

	var opts []session.AccessorOption
	if cfg.Verifier != nil {
		opts = append(opts, session.WithVerifier(cfg.Verifier))
	}
	switch {
	case cfg.IdentityCacheTTL <= 0:
	case cfg.Redis != nil:
		opts = append(opts, session.WithCache(session.NewRedisCacheWithClient(cfg.Redis, "jobhunt:dashboard:identity", cfg.IdentityCacheTTL)))
	default:
		opts = append(opts, session.WithCache(session.NewMemoryCache(cfg.IdentityCacheTTL)))
	}

	jobs := repository.Jobs(dataStore)
	linkedIn := repository.LinkedIn(dataStore)
	emails := repository.Emails(dataStore)
	return &App{
		auth:           auth,
		identity:       session.NewTokenAccessor(auth, session.ContextTokens{}, opts...),
		jobs:           jobs,
		linkedIn:       linkedIn,
		emails:         emails,
		summary:        summary.NewService(jobs, linkedIn, emails),
		signupRedirect: cfg.SignupRedirectURL,
	}, nil
}

// SignUp registers an account. authclient.ErrNoSession is returned with the
// user when email confirmation is pending.
func (a *App) SignUp(ctx context.Context, email, password string) (domain.Session, error) {
	email, err := credentials(email, password)
	if err != nil {
		return domain.Session{}, err
	}
	return a.auth.SignUp(ctx, email, password, a.signupRedirect)
}

// SignIn exchanges credentials for a session.
func (a *App) SignIn(ctx context.Context, email, password string) (domain.Session, error) {
	email, err := credentials(email, password)
	if err != nil {
		return domain.Session{}, err
	}
	return a.auth.SignIn(ctx, email, password)
}

// Refresh exchanges a refresh token for a new session.
func (a *App) Refresh(ctx context.Context, refreshToken string) (domain.Session, error) {
	return a.auth.Refresh(ctx, refreshToken)
}

// SignOut revokes the session at the auth service and drops the cached identity.
func (a *App) SignOut(ctx context.Context, token string) error {
	if err := a.auth.SignOut(ctx, token); err != nil {
		return err
	}
	a.identity.Forget(ctx, token)
	return nil
}

// CurrentIdentity resolves the user for the token bound to ctx.
func (a *App) CurrentIdentity(ctx context.Context) (domain.User, bool) {
	return a.identity.CurrentIdentity(ctx)
}

func (a *App) Jobs() repository.Repository[domain.Job, domain.JobFields] {
	return a.jobs
}

func (a *App) LinkedIn() repository.Repository[domain.LinkedInContact, domain.LinkedInFields] {
	return a.linkedIn
}

func (a *App) Emails() repository.Repository[domain.ColdEmail, domain.EmailFields] {
	return a.emails
}

// Dashboard computes the aggregate summary from fresh reads.
func (a *App) Dashboard(ctx context.Context, owner string) (summary.Summary, error) {
	s, err := a.summary.Load(ctx, owner)
	if err != nil {
		slog.Warn("load dashboard summary failed", "user_id", owner, "err", err)
		return summary.Summary{}, err
	}
	return s, nil
}

func credentials(email, password string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", &domain.ValidationError{Field: "email", Message: "email is required"}
	}
	if password == "" {
		return "", &domain.ValidationError{Field: "password", Message: "password is required"}
	}
	return email, nil
}

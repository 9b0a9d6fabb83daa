package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	gormlogger "gorm.io/gorm/logger"

	"jobhunt/internal/usertoken"
	"jobhunt/internal/util"
	"jobhunt/pkg/session"
	"jobhunt/services/dashboard/internal/app"
	"jobhunt/services/dashboard/internal/config"
	"jobhunt/services/dashboard/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	jwtLeeway, err := config.ParseDuration("jwtLeeway", cfg.JWTLeeway, 0)
	if err != nil {
		log.Fatalf("failed to parse jwt leeway: %v", err)
	}
	identityTTL, err := config.ParseDuration("identityCacheTTL", cfg.IdentityCacheTTL, time.Minute)
	if err != nil {
		log.Fatalf("failed to parse identity cache TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer redisClient.Close()

	// Projects still on shared-secret signing publish no asymmetric keys;
	// identity then rests on the auth service lookup alone.
	var verifier session.SubjectVerifier
	if v, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:  cfg.JWKSURL,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   jwtLeeway,
	}); err != nil {
		logger.Warn("local token verification disabled", "jwks_url", cfg.JWKSURL, "err", err)
	} else {
		verifier = v
	}

	sqlLogLevel := gormlogger.Warn
	if strings.EqualFold(cfg.LogLevel, "debug") {
		sqlLogLevel = gormlogger.Info
	}
	appCore, err := app.New(app.Config{
		BackendURL:        cfg.BackendURL,
		AnonKey:           cfg.BackendAnonKey,
		SignupRedirectURL: cfg.SignupRedirectURL,
		DataMode:          cfg.DataMode,
		DatabaseURL:       cfg.DatabaseURL,
		AutoMigrate:       cfg.AutoMigrate,
		SQLLogLevel:       sqlLogLevel,
		Redis:             redisClient,
		IdentityCacheTTL:  identityTTL,
		Verifier:          verifier,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                       appCore,
		Redis:                     redisClient,
		TrustedProxies:            trusted,
		AllowedOrigins:            cfg.AllowedOrigins,
		SignupRateLimitPerMinute:  cfg.SignupRateLimitPerMinute,
		LoginRateLimitPerMinute:   cfg.LoginRateLimitPerMinute,
		RefreshRateLimitPerMinute: cfg.RefreshRateLimitPerMinute,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	}()

	slog.Info("server listening", "addr", addr, "data_mode", cfg.DataMode)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}

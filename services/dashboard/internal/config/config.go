package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

const (
	DataModeREST     = "rest"
	DataModePostgres = "postgres"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                      string   `yaml:"port"`
	LogLevel                  string   `yaml:"logLevel"`
	BackendURL                string   `yaml:"backendURL"`
	BackendAnonKey            string   `yaml:"backendAnonKey"`
	SiteURL                   string   `yaml:"siteURL"`
	SignupRedirectURL         string   `yaml:"signupRedirectURL"`
	JWKSURL                   string   `yaml:"jwksURL"`
	JWTIssuer                 string   `yaml:"jwtIssuer"`
	JWTAudience               string   `yaml:"jwtAudience"`
	JWTLeeway                 string   `yaml:"jwtLeeway"`
	RedisAddr                 string   `yaml:"redisAddr"`
	RedisPassword             string   `yaml:"redisPassword"`
	IdentityCacheTTL          string   `yaml:"identityCacheTTL"`
	DataMode                  string   `yaml:"dataMode"`
	DatabaseURL               string   `yaml:"databaseURL"`
	AutoMigrate               bool     `yaml:"autoMigrate"`
	AllowedOrigins            []string `yaml:"allowedOrigins"`
	TrustedProxyCIDRs         []string `yaml:"trustedProxyCidrs"`
	SignupRateLimitPerMinute  int      `yaml:"signupRateLimitPerMinute"`
	LoginRateLimitPerMinute   int      `yaml:"loginRateLimitPerMinute"`
	RefreshRateLimitPerMinute int      `yaml:"refreshRateLimitPerMinute"`
}

// Load reads config from path (defaults to config.yaml). A .env file next
// to the working directory is loaded first; real env vars win over it.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BACKEND_URL"); v != "" {
		cfg.BackendURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("BACKEND_ANON_KEY"); v != "" {
		cfg.BackendAnonKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("SITE_URL"); v != "" {
		cfg.SiteURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("DASHBOARD_SIGNUP_REDIRECT_URL"); v != "" {
		cfg.SignupRedirectURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("DASHBOARD_JWKS_URL"); v != "" {
		cfg.JWKSURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.JWTAudience = v
	}
	if v := os.Getenv("JWT_LEEWAY"); v != "" {
		cfg.JWTLeeway = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("DASHBOARD_IDENTITY_CACHE_TTL"); v != "" {
		cfg.IdentityCacheTTL = strings.TrimSpace(v)
	}
	if v := os.Getenv("DASHBOARD_DATA_MODE"); v != "" {
		cfg.DataMode = strings.TrimSpace(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("DASHBOARD_AUTO_MIGRATE"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.AutoMigrate = b
		}
	}
	if v := os.Getenv("DASHBOARD_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("DASHBOARD_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("DASHBOARD_SIGNUP_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SignupRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("DASHBOARD_LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("DASHBOARD_REFRESH_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RefreshRateLimitPerMinute = n
		}
	}
}

func applyDefaults(cfg *FileConfig) {
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	if cfg.DataMode == "" {
		cfg.DataMode = DataModeREST
	}
	if cfg.SignupRedirectURL == "" && cfg.SiteURL != "" {
		cfg.SignupRedirectURL = cfg.SiteURL + "/dashboard"
	}
	if cfg.BackendURL != "" {
		if cfg.JWKSURL == "" {
			cfg.JWKSURL = cfg.BackendURL + "/auth/v1/.well-known/jwks.json"
		}
		if cfg.JWTIssuer == "" {
			cfg.JWTIssuer = cfg.BackendURL + "/auth/v1"
		}
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.BackendURL == "" {
		return errors.New("config: backendURL is required (set in config.yaml or BACKEND_URL)")
	}
	if u, err := url.Parse(cfg.BackendURL); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("config: backendURL must be an absolute URL")
	}
	if strings.TrimSpace(cfg.BackendAnonKey) == "" {
		return errors.New("config: backendAnonKey is required (set in config.yaml or BACKEND_ANON_KEY)")
	}
	switch cfg.DataMode {
	case DataModeREST:
	case DataModePostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("config: databaseURL is required when dataMode is postgres")
		}
	default:
		return fmt.Errorf("config: unknown dataMode %q (want rest or postgres)", cfg.DataMode)
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for distributed rate limiting")
	}
	if cfg.SignupRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 || cfg.RefreshRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseDuration parses an optional duration; empty yields fallback.
func ParseDuration(name, value string, fallback time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid %s duration: must be >= 0", name)
	}
	return dur, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileConfig represents the CLI configuration. Every field can also be set
// through a JOBHUNT_* environment variable.
type FileConfig struct {
	BackendURL        string `yaml:"backendURL"`
	BackendAnonKey    string `yaml:"backendAnonKey"`
	SiteURL           string `yaml:"siteURL"`
	SignupRedirectURL string `yaml:"signupRedirectURL"`
	SessionPath       string `yaml:"sessionPath"`
	LogLevel          string `yaml:"logLevel"`
}

// DefaultPath is <user config dir>/jobhunt/config.yaml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "jobhunt", "config.yaml"), nil
}

// Load reads path if it exists and applies env overrides. A missing file is
// fine as long as the environment supplies the backend settings.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if v := os.Getenv("JOBHUNT_BACKEND_URL"); v != "" {
		cfg.BackendURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("JOBHUNT_BACKEND_ANON_KEY"); v != "" {
		cfg.BackendAnonKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("JOBHUNT_SITE_URL"); v != "" {
		cfg.SiteURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("JOBHUNT_SIGNUP_REDIRECT_URL"); v != "" {
		cfg.SignupRedirectURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("JOBHUNT_SESSION_PATH"); v != "" {
		cfg.SessionPath = strings.TrimSpace(v)
	}
	if v := os.Getenv("JOBHUNT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	if cfg.SignupRedirectURL == "" && cfg.SiteURL != "" {
		cfg.SignupRedirectURL = cfg.SiteURL + "/dashboard"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "warn"
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.BackendURL == "" {
		return errors.New("config: backendURL is required (set in config.yaml or JOBHUNT_BACKEND_URL)")
	}
	if cfg.BackendAnonKey == "" {
		return errors.New("config: backendAnonKey is required (set in config.yaml or JOBHUNT_BACKEND_ANON_KEY)")
	}
	return nil
}

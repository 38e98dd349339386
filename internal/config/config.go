// Package config loads the suite configuration from the environment.
//
// Values come from E2E_-prefixed environment variables, after .env.local and
// .env have been merged into the process environment. Variables already set
// in the environment always win over the files. Artifact upload settings use
// the standard unprefixed AWS_ names so CI secrets can be shared.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/kuitang/todo-e2e/internal/logutil"
	"github.com/kuitang/todo-e2e/internal/session"
)

// DefaultEnvFiles are merged in order; earlier files take precedence.
var DefaultEnvFiles = []string{".env.local", ".env"}

// Supported browser engines and selector strategies.
var (
	Browsers           = []string{"chromium", "firefox", "webkit"}
	SelectorStrategies = []string{"testid", "accessible"}
)

// Config holds all suite configuration.
type Config struct {
	// Application under test. Empty means the bundled demo app.
	BaseURL   string `envconfig:"E2E_BASE_URL"`
	LoginPath string `envconfig:"E2E_LOGIN_PATH" default:"/login"`

	// Credentials. Absence is valid: authenticated tests skip or fail.
	Username string `envconfig:"E2E_USERNAME"`
	Password string `envconfig:"E2E_PASSWORD"`

	// RequireCredentials turns missing credentials from a skip into a failure.
	RequireCredentials bool `envconfig:"E2E_REQUIRE_CREDENTIALS" default:"false"`

	// Timeouts
	LoginTimeout  time.Duration `envconfig:"E2E_LOGIN_TIMEOUT" default:"15s"`
	ActionTimeout time.Duration `envconfig:"E2E_ACTION_TIMEOUT" default:"5s"`

	// Browser
	Browser   string        `envconfig:"E2E_BROWSER" default:"chromium"`
	Headless  bool          `envconfig:"E2E_HEADLESS" default:"true"`
	SlowMo    time.Duration `envconfig:"E2E_SLOW_MO" default:"0s"`
	Selectors string        `envconfig:"E2E_SELECTORS" default:"testid"`

	// Outputs
	ArtifactsDir string `envconfig:"E2E_ARTIFACTS_DIR" default:"./artifacts"`
	StorageState string `envconfig:"E2E_STORAGE_STATE"`

	Upload UploadConfig `ignored:"true"`
}

// UploadConfig configures artifact upload to S3-compatible storage.
type UploadConfig struct {
	Bucket          string `envconfig:"ARTIFACTS_BUCKET"`
	Endpoint        string `envconfig:"AWS_ENDPOINT_URL_S3"`
	Region          string `envconfig:"AWS_REGION" default:"auto"`
	AccessKeyID     string `envconfig:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"AWS_SECRET_ACCESS_KEY"`
	PublicURL       string `envconfig:"ARTIFACTS_PUBLIC_URL"`
}

// Enabled reports whether artifacts should be uploaded.
func (u UploadConfig) Enabled() bool {
	return u.Bucket != ""
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// LoadEnvFiles merges the given dotenv files into the process environment.
// Missing files are ignored.
func LoadEnvFiles(files ...string) error {
	for _, file := range files {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// Load merges DefaultEnvFiles and reads the configuration.
func Load() (*Config, error) {
	if err := LoadEnvFiles(DefaultEnvFiles...); err != nil {
		return nil, err
	}
	return LoadFromEnv()
}

// LoadFromEnv reads the configuration from the process environment only.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}
	// Tags carry full variable names so envconfig never falls back to
	// unprefixed names such as USERNAME or BROWSER.
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("read E2E_ environment: %w", err)
	}
	if err := envconfig.Process("", &cfg.Upload); err != nil {
		return nil, fmt.Errorf("read artifact upload environment: %w", err)
	}

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.Username = strings.TrimSpace(cfg.Username)
	cfg.Browser = strings.ToLower(strings.TrimSpace(cfg.Browser))
	cfg.Selectors = strings.ToLower(strings.TrimSpace(cfg.Selectors))
	if !strings.HasPrefix(cfg.LoginPath, "/") {
		cfg.LoginPath = "/" + cfg.LoginPath
	}
	// HEADFUL=1 is the quick local override for watching a run.
	if os.Getenv("HEADFUL") != "" {
		cfg.Headless = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that configured values are usable.
func (c *Config) Validate() error {
	var errs []string

	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, "E2E_BASE_URL must be an absolute http(s) URL")
		}
	}
	if c.LoginTimeout <= 0 {
		errs = append(errs, "E2E_LOGIN_TIMEOUT must be positive")
	}
	if c.ActionTimeout <= 0 {
		errs = append(errs, "E2E_ACTION_TIMEOUT must be positive")
	}
	if c.SlowMo < 0 {
		errs = append(errs, "E2E_SLOW_MO must not be negative")
	}
	if !contains(Browsers, c.Browser) {
		errs = append(errs, fmt.Sprintf("E2E_BROWSER must be one of %s", strings.Join(Browsers, ", ")))
	}
	if !contains(SelectorStrategies, c.Selectors) {
		errs = append(errs, fmt.Sprintf("E2E_SELECTORS must be one of %s", strings.Join(SelectorStrategies, ", ")))
	}
	if c.Upload.Enabled() {
		if c.Upload.AccessKeyID == "" {
			errs = append(errs, "AWS_ACCESS_KEY_ID is required when ARTIFACTS_BUCKET is set")
		}
		if c.Upload.SecretAccessKey == "" {
			errs = append(errs, "AWS_SECRET_ACCESS_KEY is required when ARTIFACTS_BUCKET is set")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// Credentials returns the configured login pair, or the configuration error
// naming the variables that are missing.
func (c *Config) Credentials() (session.Credentials, error) {
	creds := session.Credentials{Identifier: c.Username, Secret: c.Password}
	if err := session.MissingCredentials(creds); err != nil {
		return session.Credentials{}, err
	}
	return creds, nil
}

// HasCredentials reports whether both credential variables are set.
func (c *Config) HasCredentials() bool {
	return session.MissingCredentials(session.Credentials{Identifier: c.Username, Secret: c.Password}) == nil
}

// UsesDemoApp reports whether tests should start the bundled application.
func (c *Config) UsesDemoApp() bool {
	return c.BaseURL == ""
}

// LoginURL joins a base URL with the configured login path.
func (c *Config) LoginURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + c.LoginPath
}

// PrintStartupSummary writes a human-readable, redacted summary to w.
func (c *Config) PrintStartupSummary(w io.Writer) {
	target := c.BaseURL
	if c.UsesDemoApp() {
		target = "bundled demo app"
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "todo-e2e configuration")
	fmt.Fprintf(w, "  Target:   %s (login %s)\n", target, c.LoginPath)
	fmt.Fprintf(w, "  User:     %s\n", orUnset(logutil.MaskIdentifier(c.Username)))
	fmt.Fprintf(w, "  Password: %s\n", orUnset(logutil.RedactValue("password", c.Password)))
	fmt.Fprintf(w, "  Browser:  %s (headless=%t, slow-mo=%s)\n", c.Browser, c.Headless, c.SlowMo)
	fmt.Fprintf(w, "  Timeouts: login=%s action=%s\n", c.LoginTimeout, c.ActionTimeout)
	if c.Upload.Enabled() {
		fmt.Fprintf(w, "  Upload:   s3://%s (endpoint %s)\n", c.Upload.Bucket, orUnset(c.Upload.Endpoint))
	} else {
		fmt.Fprintf(w, "  Upload:   off, artifacts in %s\n", c.ArtifactsDir)
	}
	fmt.Fprintln(w, "")
}

func orUnset(v string) string {
	if v == "" {
		return "<unset>"
	}
	return v
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

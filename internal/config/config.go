package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// ErrMissingConfiguration is returned when a required setting is absent.
var ErrMissingConfiguration = errors.New("missing configuration")

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config holds all configuration for the application.
type Config struct {
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	BackendURL    string `json:"backend_url" validate:"required,url"`
	Port          int    `json:"port" validate:"gte=1,lte=65535"`
	PublicURL     string `json:"public_url" validate:"omitempty,url"`
	Scopes        string `json:"scopes"`
	AdminJWTToken string `json:"admin_jwt_token"`

	MetricsPort int    `json:"metrics_port" validate:"gte=0,lte=65535"`
	LogLevel    string `json:"log_level" validate:"oneof=debug info warn error"`
	Environment string `json:"environment" validate:"oneof=development production"`

	HTTPTimeout   Duration `json:"http_timeout" validate:"min=1s"`
	PendingTTL    Duration `json:"pending_ttl" validate:"min=1m"`
	SweepInterval Duration `json:"sweep_interval" validate:"min=1s"`

	StoreBackend  string `json:"store_backend" validate:"oneof=memory sqlite"`
	DBPath        string `json:"db_path" validate:"required_if=StoreBackend sqlite"`
	EncryptionKey string `json:"encryption_key" validate:"required_if=StoreBackend sqlite"`

	CORSAllowedOrigins []string `json:"cors_allowed_origins"`
}

// Duration is a wrapper around time.Duration that implements JSON marshaling/unmarshaling
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		if err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("invalid duration")
	}
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		BackendURL:    "http://localhost:3000",
		Port:          8888,
		Scopes:        "openid profile email",
		MetricsPort:   9090,
		LogLevel:      "info",
		Environment:   "development",
		HTTPTimeout:   Duration{10 * time.Second},
		PendingTTL:    Duration{10 * time.Minute},
		SweepInterval: Duration{time.Minute},
		StoreBackend:  StoreMemory,
		DBPath:        "oauthsample.db",
	}
}

// Load builds the server configuration: defaults, then the optional JSON
// file at path, then .env, then the process environment. CLIENT_ID and
// CLIENT_SECRET are required.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.requireClientCredentials(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadAdmin is Load without the client credential requirement, for the
// operator CLI.
func LoadAdmin(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Variables already in the environment take precedence over .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if cfg.PublicURL == "" {
		cfg.PublicURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides overrides config fields with environment variables.
func (c *Config) applyEnvOverrides() error {
	text := map[string]*string{
		"CLIENT_ID":       &c.ClientID,
		"CLIENT_SECRET":   &c.ClientSecret,
		"BACKEND_URL":     &c.BackendURL,
		"PUBLIC_URL":      &c.PublicURL,
		"OAUTH_SCOPES":    &c.Scopes,
		"ADMIN_JWT_TOKEN": &c.AdminJWTToken,
		"LOG_LEVEL":       &c.LogLevel,
		"APP_ENV":         &c.Environment,
		"STORE_BACKEND":   &c.StoreBackend,
		"DB_PATH":         &c.DBPath,
		"ENCRYPTION_KEY":  &c.EncryptionKey,
	}
	for name, field := range text {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}

	ints := map[string]*int{
		"PORT":         &c.Port,
		"METRICS_PORT": &c.MetricsPort,
	}
	for name, field := range ints {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", name, err)
			}
			*field = n
		}
	}

	durations := map[string]*Duration{
		"HTTP_TIMEOUT":   &c.HTTPTimeout,
		"PENDING_TTL":    &c.PendingTTL,
		"SWEEP_INTERVAL": &c.SweepInterval,
	}
	for name, field := range durations {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", name, err)
			}
			*field = Duration{d}
		}
	}

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORSAllowedOrigins = splitList(v)
	}

	return nil
}

// validate checks the configuration for errors.
func (c *Config) validate() error {
	validate := validator.New()

	// Register custom validation for Duration
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if duration, ok := field.Interface().(Duration); ok {
			return duration.Duration
		}
		return nil
	}, Duration{})

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if c.StoreBackend == StoreSQLite && len(c.EncryptionKey) != 32 {
		return fmt.Errorf("validation failed: ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(c.EncryptionKey))
	}

	return nil
}

func (c *Config) requireClientCredentials() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "CLIENT_ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "CLIENT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// RedirectURL is the callback address registered with the authorization server.
func (c *Config) RedirectURL() string {
	return c.PublicURL + "/callback"
}

// ScopeList splits Scopes on whitespace.
func (c *Config) ScopeList() []string {
	return strings.Fields(c.Scopes)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Package config loads the TOML configuration shared by the api server and
// statusctl.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"squares/customer"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Auth     AuthConfig     `toml:"auth"`
	Outbox   OutboxConfig   `toml:"outbox"`
	Notify   NotifyConfig   `toml:"notify"`
	Logging  LoggingConfig  `toml:"logging"`
	Picker   PickerConfig   `toml:"picker"`
	Client   ClientConfig   `toml:"client"`
}

type ServerConfig struct {
	Port            int      `toml:"port"`
	ReadTimeout     Duration `toml:"read_timeout"`
	IdleTimeout     Duration `toml:"idle_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL      string `toml:"url"`
	MaxConns int32  `toml:"max_conns"`
	Migrate  bool   `toml:"migrate"`
}

type AuthConfig struct {
	JWTSecret string   `toml:"jwt_secret"`
	TokenTTL  Duration `toml:"token_ttl"`
}

type OutboxConfig struct {
	PollInterval Duration `toml:"poll_interval"`
	BatchSize    int      `toml:"batch_size"`
	MaxAttempts  int      `toml:"max_attempts"`
}

type NotifyConfig struct {
	Buffer int `toml:"buffer"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`  // debug | info | warn | error
	Format string `toml:"format"` // json | console
}

type PickerConfig struct {
	MatchFields    []string `toml:"match_fields"`
	CustomerStatus string   `toml:"customer_status"`
	Limit          int      `toml:"limit"`
}

type ClientConfig struct {
	BaseURL string   `toml:"base_url"`
	Token   string   `toml:"token"`
	Timeout Duration `toml:"timeout"`
}

// Duration decodes TOML strings such as "1500ms" or "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration{15 * time.Second},
			IdleTimeout:     Duration{60 * time.Second},
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Database: DatabaseConfig{
			MaxConns: 10,
			Migrate:  true,
		},
		Auth: AuthConfig{
			TokenTTL: Duration{24 * time.Hour},
		},
		Outbox: OutboxConfig{
			PollInterval: Duration{time.Second},
			BatchSize:    10,
			MaxAttempts:  5,
		},
		Notify: NotifyConfig{
			Buffer: 256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Picker: PickerConfig{
			MatchFields:    []string{"name", "email"},
			CustomerStatus: "active",
			Limit:          200,
		},
		Client: ClientConfig{
			BaseURL: "http://localhost:8080",
			Timeout: Duration{15 * time.Second},
		},
	}
}

// Load reads path over defaults, then applies environment overrides. A
// missing or empty file yields the defaults.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		case len(content) > 0:
			if err := toml.Unmarshal(content, &cfg); err != nil {
				return Config{}, fmt.Errorf("decode toml: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		c.Database.URL = v
	}
	if v, ok := lookup("JWT_SECRET"); ok && v != "" {
		c.Auth.JWTSecret = v
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("SQUARES_API_URL"); ok && v != "" {
		c.Client.BaseURL = v
	}
	if v, ok := lookup("SQUARES_TOKEN"); ok && v != "" {
		c.Client.Token = v
	}
	return nil
}

func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Database.MaxConns < 0 {
		return errors.New("database.max_conns must be >= 0")
	}
	if c.Outbox.BatchSize <= 0 {
		return errors.New("outbox.batch_size must be > 0")
	}
	if c.Outbox.MaxAttempts <= 0 {
		return errors.New("outbox.max_attempts must be > 0")
	}
	if c.Outbox.PollInterval.Duration <= 0 {
		return errors.New("outbox.poll_interval must be > 0")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging.format: %q", c.Logging.Format)
	}
	if _, err := c.Picker.Fields(); err != nil {
		return fmt.Errorf("picker.match_fields: %w", err)
	}
	if c.Picker.Limit < 0 {
		return errors.New("picker.limit must be >= 0")
	}
	return nil
}

// Fields returns the configured customer match fields.
func (p PickerConfig) Fields() ([]customer.MatchField, error) {
	return customer.ParseMatchFields(p.MatchFields)
}

// RequireServer checks the settings only the api server needs.
func (c Config) RequireServer() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("database.url is required (or set DATABASE_URL)")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth.jwt_secret is required (or set JWT_SECRET)")
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"squares/customer"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "squares.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"), Default())
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, time.Second, cfg.Outbox.PollInterval.Duration)

	fields, err := cfg.Picker.Fields()
	require.NoError(t, err)
	assert.Equal(t, []customer.MatchField{customer.MatchName, customer.MatchEmail}, fields)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
[server]
port = 9090
shutdown_timeout = "3s"

[outbox]
poll_interval = "250ms"
max_attempts = 3

[picker]
match_fields = ["name", "email", "phone"]
`)
	cfg, err := Load(path, Default())
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Duration)
	assert.Equal(t, 250*time.Millisecond, cfg.Outbox.PollInterval.Duration)
	assert.Equal(t, 3, cfg.Outbox.MaxAttempts)
	assert.Equal(t, 10, cfg.Outbox.BatchSize, "unset keys keep defaults")

	fields, err := cfg.Picker.Fields()
	require.NoError(t, err)
	assert.Contains(t, fields, customer.MatchPhone)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "7070")
	t.Setenv("SQUARES_API_URL", "https://api.example.com")
	t.Setenv("SQUARES_TOKEN", "tok")

	cfg, err := Load(writeFile(t, "[database]\nurl = \"postgres://file/db\"\n"), Default())
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "https://api.example.com", cfg.Client.BaseURL)
	assert.Equal(t, "tok", cfg.Client.Token)
	assert.NoError(t, cfg.RequireServer())
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad toml":     "[server\nport = 1",
		"bad duration": "[outbox]\npoll_interval = \"soon\"",
		"bad level":    "[logging]\nlevel = \"loud\"",
		"bad field":    "[picker]\nmatch_fields = [\"address\"]",
		"bad port":     "[server]\nport = 70000",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, content), Default())
			assert.Error(t, err)
		})
	}

	t.Setenv("PORT", "eighty")
	_, err := Load("", Default())
	assert.Error(t, err)
}

func TestRequireServer(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.RequireServer())
	cfg.Database.URL = "postgres://x"
	assert.Error(t, cfg.RequireServer())
	cfg.Auth.JWTSecret = "k"
	assert.NoError(t, cfg.RequireServer())
}

package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"DATABASE_URL", "PORT", "JWT_SECRET", "JWT_EXPIRY", "TREE_ROOT", "SEED_SAMPLE_EVENTS",
	"DEDUPE_ON_START", "CORS_ORIGINS", "EMAIL_PROVIDER", "EMAIL_FROM_ADDRESS", "EMAIL_FROM_NAME",
	"AWS_REGION", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
	t.Setenv("GO_ENV", "test")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "memory://local")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, "copenhagen_buzz", cfg.TreeRoot)
	assert.False(t, cfg.SeedSampleEvents)
	assert.False(t, cfg.DedupeOnStart)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.Equal(t, DriverMemory, cfg.Driver())
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/buzz?sslmode=disable")
	t.Setenv("PORT", "9000")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("JWT_EXPIRY", "90m")
	t.Setenv("TREE_ROOT", "staging_buzz")
	t.Setenv("SEED_SAMPLE_EVENTS", "true")
	t.Setenv("DEDUPE_ON_START", "1")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, 90*time.Minute, cfg.JWTExpiry)
	assert.Equal(t, "staging_buzz", cfg.TreeRoot)
	assert.True(t, cfg.SeedSampleEvents)
	assert.True(t, cfg.DedupeOnStart)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, DriverPostgres, cfg.Driver())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want error
	}{
		{name: "missing database url", env: map[string]string{}, want: ErrMissingDatabaseURL},
		{name: "unsupported scheme", env: map[string]string{"DATABASE_URL": "mysql://x"}},
		{name: "bad expiry", env: map[string]string{"DATABASE_URL": "memory://", "JWT_EXPIRY": "tomorrow"}},
		{name: "bad bool", env: map[string]string{"DATABASE_URL": "memory://", "SEED_SAMPLE_EVENTS": "maybe"}},
		{name: "production without secret", env: map[string]string{"DATABASE_URL": "memory://", "GO_ENV": "production"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestDriver(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{url: "postgres://localhost/buzz", want: DriverPostgres},
		{url: "postgresql://localhost/buzz", want: DriverPostgres},
		{url: "redis://localhost:6379/0", want: DriverRedis},
		{url: "rediss://cache:6380", want: DriverRedis},
		{url: "memory://", want: DriverMemory},
		{url: "sqlite://file.db", wantErr: true},
	}
	for _, tt := range tests {
		got, err := Driver(tt.url)
		if tt.wantErr {
			assert.Error(t, err, tt.url)
			continue
		}
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.want, got)
	}
}

func TestNewLogger_Level(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{level: "", want: slog.LevelInfo},
		{level: "debug", want: slog.LevelDebug},
		{level: "WARN", want: slog.LevelWarn},
		{level: "error", want: slog.LevelError},
		{level: "loud", want: slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Setenv("LOG_LEVEL", tt.level)
		assert.Equal(t, tt.want, ParseLevel(tt.level), tt.level)
		logger := NewLogger()
		assert.True(t, logger.Enabled(t.Context(), tt.want), tt.level)
		if tt.want > slog.LevelDebug {
			assert.False(t, logger.Enabled(t.Context(), tt.want-1), tt.level)
		}
	}
}

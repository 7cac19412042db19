package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv はテスト中に設定キーの環境変数を空にする。
// t.Setenvを使うため、このヘルパーを使うテストは並行実行できない。
func clearEnv(t *testing.T) {
	t.Helper()
	for key := range defaults {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad(t *testing.T) {
	t.Run("未設定の場合はデフォルト値が使われる", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)
		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, DriverSQLite, cfg.DBDriver)
		assert.Equal(t, 5*time.Minute, cfg.IdentityCacheTTL)
		assert.Equal(t, 60, cfg.MessageRatePerMinute)
		assert.Equal(t, "relay-events", cfg.QueueName)
		assert.True(t, cfg.IsDevelopment())
		assert.Equal(t, devJWTSecret, cfg.JWTSecret)
	})

	t.Run("環境変数が.envより優先される", func(t *testing.T) {
		clearEnv(t)

		envFile := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(envFile, []byte("PORT=9000\nQUEUE_CONCURRENCY=3\nIDENTITY_CACHE_TTL=30s\n"), 0o600))
		t.Setenv("PORT", "9100")

		cfg, err := Load(envFile)
		require.NoError(t, err)
		assert.Equal(t, "9100", cfg.Port)
		assert.Equal(t, 3, cfg.QueueConcurrency)
		assert.Equal(t, 30*time.Second, cfg.IdentityCacheTTL)
	})

	t.Run("本番環境でJWT_SECRETが未設定ならエラー", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("APP_ENV", "production")

		_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT_SECRET")
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Port:                 "8080",
			AppEnv:               "production",
			JWTSecret:            "secret",
			DBDriver:             DriverPostgres,
			DatabaseURL:          "postgres://localhost/relay",
			MessageRatePerMinute: 60,
			MessageRateBurst:     10,
			QueueConcurrency:     5,
			QueueMaxRetry:        3,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "正しい設定はエラーにならない", mutate: func(*Config) {}},
		{name: "不明なドライバは拒否される", mutate: func(c *Config) { c.DBDriver = "mysql" }, wantErr: "DB_DRIVER"},
		{name: "DATABASE_URLが空なら拒否される", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: "DATABASE_URL"},
		{name: "レートが0なら拒否される", mutate: func(c *Config) { c.MessageRateBurst = 0 }, wantErr: "MESSAGE_RATE"},
		{name: "並行数が0なら拒否される", mutate: func(c *Config) { c.QueueConcurrency = 0 }, wantErr: "QUEUE_CONCURRENCY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_AllowedOrigins(t *testing.T) {
	t.Parallel()

	cfg := Config{CORSAllowedOrigins: " https://a.example.com, ,https://b.example.com "}
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins())
}

// Package config は環境変数と.envファイルからサービスの設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// データベースドライバ。
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// 開発環境を表すAPP_ENVの値。
const envDevelopment = "development"

// devJWTSecret は開発環境でJWT_SECRETが未設定の場合に使う秘密鍵。
const devJWTSecret = "relay-dev-secret"

// Config はサービス全体の設定。
type Config struct {
	// Port はHTTPサーバーの待ち受けポート。
	Port string `mapstructure:"PORT"`
	// AppEnv は実行環境（development, production）。
	AppEnv string `mapstructure:"APP_ENV"`
	// LogLevel はログレベル。
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// JWTSecret はJWTの署名鍵。
	JWTSecret string `mapstructure:"JWT_SECRET"`

	// DBDriver はストレージの種類（sqlite, postgres）。
	DBDriver string `mapstructure:"DB_DRIVER"`
	// DatabaseURL はSQLiteのファイルパスまたはPostgreSQLの接続文字列。
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL が空でない場合はasynqのイベントバスとユーザー情報キャッシュを使う。
	RedisURL string `mapstructure:"REDIS_URL"`

	// IdentityURL はユーザー情報サービスのベースURL。
	IdentityURL string `mapstructure:"IDENTITY_URL"`
	// ContentURL は投稿・コメントサービスのベースURL。
	ContentURL string `mapstructure:"CONTENT_URL"`
	// IdentityCacheTTL はユーザー情報キャッシュの有効期間。
	IdentityCacheTTL time.Duration `mapstructure:"IDENTITY_CACHE_TTL"`

	// CORSAllowedOrigins はカンマ区切りの許可オリジン。
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	// MessageRatePerMinute はユーザーごとのメッセージ送信レート。
	MessageRatePerMinute int `mapstructure:"MESSAGE_RATE_PER_MINUTE"`
	// MessageRateBurst はメッセージ送信のバースト許容量。
	MessageRateBurst int `mapstructure:"MESSAGE_RATE_BURST"`

	// QueueName はasynqのキュー名。
	QueueName string `mapstructure:"QUEUE_NAME"`
	// QueueConcurrency はasynqワーカーの並行数。
	QueueConcurrency int `mapstructure:"QUEUE_CONCURRENCY"`
	// QueueMaxRetry はイベント処理の最大リトライ回数。
	QueueMaxRetry int `mapstructure:"QUEUE_MAX_RETRY"`
}

var defaults = map[string]any{
	"PORT":                    "8080",
	"APP_ENV":                 envDevelopment,
	"LOG_LEVEL":               "info",
	"JWT_SECRET":              "",
	"DB_DRIVER":               DriverSQLite,
	"DATABASE_URL":            "relay.db",
	"REDIS_URL":               "",
	"IDENTITY_URL":            "http://localhost:8081",
	"CONTENT_URL":             "http://localhost:8082",
	"IDENTITY_CACHE_TTL":      "5m",
	"CORS_ALLOWED_ORIGINS":    "*",
	"MESSAGE_RATE_PER_MINUTE": 60,
	"MESSAGE_RATE_BURST":      10,
	"QUEUE_NAME":              "relay-events",
	"QUEUE_CONCURRENCY":       10,
	"QUEUE_MAX_RETRY":         5,
}

// Load は.envファイル（存在する場合）と環境変数から設定を読み込み、検証する。
// 環境変数は.envの値より優先される。
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// 既に設定されている環境変数は上書きしない
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%sの読み込みに失敗: %w", f, err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("設定のデコードに失敗: %w", err)
	}
	if cfg.JWTSecret == "" && cfg.IsDevelopment() {
		cfg.JWTSecret = devJWTSecret
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate は設定値を検証する。
func (c *Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVERが不正です: %q", c.DBDriver))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URLが空です"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRETが未設定です"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("PORTが空です"))
	}
	if c.MessageRatePerMinute <= 0 || c.MessageRateBurst <= 0 {
		errs = append(errs, errors.New("MESSAGE_RATE_PER_MINUTEとMESSAGE_RATE_BURSTは正の値である必要があります"))
	}
	if c.QueueConcurrency <= 0 {
		errs = append(errs, errors.New("QUEUE_CONCURRENCYは正の値である必要があります"))
	}
	if c.QueueMaxRetry < 0 {
		errs = append(errs, errors.New("QUEUE_MAX_RETRYは0以上である必要があります"))
	}
	if c.IdentityCacheTTL < 0 {
		errs = append(errs, errors.New("IDENTITY_CACHE_TTLは0以上である必要があります"))
	}
	return errors.Join(errs...)
}

// IsDevelopment は開発環境であればtrueを返す。
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == envDevelopment
}

// AllowedOrigins はCORS_ALLOWED_ORIGINSを分割して返す。
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

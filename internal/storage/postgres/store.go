// Package postgres はPostgreSQL（pgx/v5）による永続化を提供する。
//
// Store は conversation.Repository と notification.Repository の両方を実装する。
// スキーマはpkg/migrationでdatabase/sql経由（pgx/v5/stdlib）で適用する。
package postgres

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/nao1215/relay/pkg/migration"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store はPostgreSQLの接続プールを保持する。
type Store struct {
	pool *pgxpool.Pool
}

// Open は接続プールを生成して疎通を確認し、マイグレーションを適用する。
func Open(ctx context.Context, dsn string, logger zerolog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: 接続設定の解析に失敗: %w", err)
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 4
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = time.Hour
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: 接続プールの生成に失敗: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: 疎通確認に失敗: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	_, err = migration.Run(ctx, db, migration.Postgres, migrations, "migrations", logger)
	_ = db.Close()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: マイグレーションに失敗: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping はデータベースとの疎通を確認する。
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close は接続プールを閉じる。
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// nullable は空文字をNULLとして扱う。
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

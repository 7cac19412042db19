package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nao1215/relay/internal/bus"
	"github.com/nao1215/relay/internal/config"
	"github.com/nao1215/relay/internal/content"
	"github.com/nao1215/relay/internal/conversation"
	"github.com/nao1215/relay/internal/identity"
	"github.com/nao1215/relay/internal/metrics"
	"github.com/nao1215/relay/internal/notification"
	"github.com/nao1215/relay/internal/realtime"
	"github.com/nao1215/relay/internal/storage/postgres"
	"github.com/nao1215/relay/internal/storage/sqlite"
	"github.com/nao1215/relay/pkg/httpclient"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// store は会話と通知の両方を永続化するストレージ。
type store interface {
	conversation.Repository
	notification.Repository
	Ping(ctx context.Context) error
	Close() error
}

// App は設定から組み立てたrelayサービス全体。
type App struct {
	// Server はHTTPサーバー。
	Server *Server
	// consumer はRedisを使う場合のイベント購読者。nilの場合はプロセス内バスで処理する。
	consumer *bus.AsynqConsumer
	// closers は終了時に閉じるリソース。逆順に閉じる。
	closers []io.Closer
	logger  zerolog.Logger
}

// Build は設定に従ってストレージ・イベントバス・外部サービスクライアントを組み立てる。
// REDIS_URLが設定されている場合はasynqのイベントバスとユーザー情報キャッシュを使い、
// 未設定の場合はプロセス内の同期バスを使う。
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (_ *App, err error) {
	app := &App{logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, st)

	m := metrics.New()
	hub := realtime.NewHub(cfg.AllowedOrigins(), m, logger.With().Str("component", "realtime").Logger())

	var resolver identity.Resolver = identity.NewHTTPResolver(httpclient.New(cfg.IdentityURL))
	contentReader := content.NewHTTPReader(httpclient.New(cfg.ContentURL))

	var (
		publisher  bus.Publisher
		subscriber bus.Subscriber
	)
	if cfg.RedisURL != "" {
		cache, err := identity.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, cache)
		resolver = identity.NewCachedResolver(resolver, cache, cfg.IdentityCacheTTL, logger)

		p, err := bus.NewAsynqPublisher(cfg.RedisURL, cfg.QueueName, cfg.QueueMaxRetry)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, p)
		publisher = p

		consumer, err := bus.NewAsynqConsumer(bus.ConsumerConfig{
			RedisURL:    cfg.RedisURL,
			Queue:       cfg.QueueName,
			Concurrency: cfg.QueueConcurrency,
		}, logger.With().Str("component", "bus").Logger())
		if err != nil {
			return nil, err
		}
		app.consumer = consumer
		subscriber = consumer
	} else {
		local := bus.NewLocal(logger.With().Str("component", "bus").Logger())
		publisher, subscriber = local, local
	}

	engine := notification.NewEngine(st, contentReader, resolver,
		notification.WithPusher(hub),
		notification.WithMetrics(m),
		notification.WithLogger(logger.With().Str("component", "notification").Logger()),
	)
	engine.Register(subscriber)

	convLogger := logger.With().Str("component", "conversation").Logger()
	deps := Deps{
		Directory: conversation.NewDirectory(st, conversation.WithMetrics(m), conversation.WithLogger(convLogger)),
		Thread: conversation.NewThread(st,
			conversation.WithPusher(hub),
			conversation.WithMetrics(m),
			conversation.WithLogger(convLogger),
		),
		Inbox:     notification.NewInbox(st),
		Resolver:  resolver,
		Publisher: publisher,
		Hub:       hub,
		Metrics:   m,
		Ping:      st.Ping,
	}
	server, err := NewServer(deps, Options{
		Port:                 cfg.Port,
		JWTSecret:            cfg.JWTSecret,
		AllowedOrigins:       cfg.AllowedOrigins(),
		MessageRatePerMinute: cfg.MessageRatePerMinute,
		MessageRateBurst:     cfg.MessageRateBurst,
	}, logger)
	if err != nil {
		return nil, err
	}
	app.Server = server

	return app, nil
}

// openStore はDB_DRIVERに応じたストレージを開く。
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		st, err := postgres.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("PostgreSQLの初期化に失敗: %w", err)
		}
		return st, nil
	case config.DriverSQLite:
		st, err := sqlite.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("SQLiteの初期化に失敗: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("未対応のDB_DRIVERです: %q", cfg.DBDriver)
	}
}

// Run はHTTPサーバーとイベント購読を起動し、ctxがキャンセルされるか
// どちらかが失敗するまでブロックする。
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Server.Run(ctx)
	})
	if a.consumer != nil {
		g.Go(func() error {
			return a.consumer.Run(ctx)
		})
	}
	return g.Wait()
}

// Close は保持しているリソースを逆順に閉じる。
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

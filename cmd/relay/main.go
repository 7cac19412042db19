// relayサービスのエントリポイント。
// ユーザー間の1対1メッセージと、いいね・コメントの通知配信を担当する。
// REDIS_URLが設定されている場合はasynqのキューからイベントを購読する。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/relay/internal/config"
	"github.com/nao1215/relay/internal/messaging"
	"github.com/nao1215/relay/pkg/logger"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("設定の読み込みに失敗")
	}

	l := logger.Init(logger.Config{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "relay",
	})

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := messaging.Build(ctx, cfg, l)
	if err != nil {
		l.Fatal().Err(err).Msg("サービスの初期化に失敗")
	}

	l.Info().
		Str("port", cfg.Port).
		Str("db_driver", cfg.DBDriver).
		Bool("redis", cfg.RedisURL != "").
		Msg("relayサービスを起動します")
	runErr := app.Run(ctx)
	if err := app.Close(); err != nil {
		l.Error().Err(err).Msg("リソースの解放に失敗")
	}
	if runErr != nil {
		l.Fatal().Err(runErr).Msg("relayサービスが異常終了しました")
	}
	l.Info().Msg("relayサービスを停止しました")
}

package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/nao1215/relay/internal/bus"
	"github.com/nao1215/relay/internal/conversation"
	"github.com/nao1215/relay/internal/identity"
	"github.com/nao1215/relay/internal/metrics"
	"github.com/nao1215/relay/internal/notification"
	"github.com/nao1215/relay/internal/realtime"
	"github.com/nao1215/relay/pkg/middleware"
	"github.com/rs/zerolog"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 10 * time.Second

// Deps はServerが依存するコンポーネント。
type Deps struct {
	// Directory は会話の検索と作成を担う。
	Directory *conversation.Directory
	// Thread はメッセージの追加と取得を担う。
	Thread *conversation.Thread
	// Inbox は通知の取得と既読化を担う。
	Inbox *notification.Inbox
	// Resolver は会話相手の存在確認に使う。
	Resolver identity.Resolver
	// Publisher は内部APIで受け取ったイベントの投入先。
	Publisher bus.Publisher
	// Hub はWebSocket接続を管理する。
	Hub *realtime.Hub
	// Metrics はPrometheusメトリクス。nilの場合は計測しない。
	Metrics *metrics.Metrics
	// Ping はヘルスチェックでストレージの疎通を確認する。nilの場合は常に成功。
	Ping func(ctx context.Context) error
}

// Options はServerの設定値。
type Options struct {
	// Port はリッスンポート。
	Port string
	// JWTSecret はJWTの署名鍵。
	JWTSecret string
	// AllowedOrigins はCORSで許可するオリジン。"*"を含む場合はすべて許可する。
	AllowedOrigins []string
	// MessageRatePerMinute はユーザーごとのメッセージ送信レート。
	MessageRatePerMinute int
	// MessageRateBurst はメッセージ送信のバースト許容量。
	MessageRateBurst int
}

// Server はrelayサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// opts はサーバーの設定値。
	opts Options
	// deps はドメインコンポーネント。
	deps Deps
	// limiter はメッセージ送信のレート制限。
	limiter *middleware.RateLimiter
	// logger はハンドラ内のエラーログに使う。
	logger zerolog.Logger
}

// NewServer は新しいHTTPサーバーを生成する。
func NewServer(deps Deps, opts Options, logger zerolog.Logger) (*Server, error) {
	if deps.Directory == nil || deps.Thread == nil || deps.Inbox == nil {
		return nil, errors.New("会話・メッセージ・通知のコンポーネントは必須です")
	}
	if deps.Resolver == nil || deps.Publisher == nil || deps.Hub == nil {
		return nil, errors.New("Resolver・Publisher・Hubは必須です")
	}
	if opts.JWTSecret == "" {
		return nil, errors.New("JWTの署名鍵が空です")
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	router.Use(deps.Metrics.Middleware())
	router.Use(newCORS(opts.AllowedOrigins))

	s := &Server{
		router:  router,
		opts:    opts,
		deps:    deps,
		limiter: middleware.NewRateLimiter(opts.MessageRatePerMinute, opts.MessageRateBurst),
		logger:  logger,
	}
	s.setupRoutes()

	return s, nil
}

// newCORS はgin-contrib/corsのミドルウェアを生成する。
func newCORS(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       24 * time.Hour,
	}
	if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// Handler はルーティング済みのhttp.Handlerを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.opts.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("HTTPサーバーを起動します")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info().Msg("HTTPサーバーを停止します")
	// WebSocket接続はShutdownの対象外なので先に閉じる
	s.deps.Hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
	}
	return nil
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// ヘルスチェック
	s.router.GET("/health", s.handleHealth())
	// Prometheusメトリクス
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	auth := middleware.JWTAuth(s.opts.JWTSecret)

	// リアルタイム配信（ブラウザはヘッダーを付けられないためtokenクエリも受け付ける）
	s.router.GET("/ws", auth, s.handleWebSocket())

	api := s.router.Group("/api/v1")
	api.Use(auth)
	{
		conversations := api.Group("/conversations")
		{
			// 会話の開始（既存の会話があればそれを返す）
			conversations.POST("", s.handleStartConversation())
			// 参加中の会話一覧
			conversations.GET("", s.handleListConversations())
			// 会話の詳細
			conversations.GET("/:id", s.handleGetConversation())
			// メッセージ一覧
			conversations.GET("/:id/messages", s.handleListMessages())
			// メッセージ送信
			conversations.POST("/:id/messages", s.limiter.Middleware(), s.handleSendMessage())
			// 受信メッセージを既読にする
			conversations.PUT("/:id/read", s.handleMarkConversationRead())
		}

		notifications := api.Group("/notifications")
		{
			// 通知一覧取得（unread=trueで未読のみ）
			notifications.GET("", s.handleListNotifications())
			// 未読件数
			notifications.GET("/unread-count", s.handleUnreadCount())
			// 全通知を既読にする
			notifications.PUT("/read-all", s.handleMarkAllNotificationsRead())
			// 通知を既読にする
			notifications.PUT("/:id/read", s.handleMarkNotificationRead())
		}

		// イベント投入（内部API - 投稿サービスから呼び出される）
		internal := api.Group("/internal")
		{
			internal.POST("/events", s.handlePublishEvent())
		}
	}
}

// handleHealth はストレージの疎通を含めたヘルスチェックのハンドラ。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.Ping != nil {
			if err := s.deps.Ping(c.Request.Context()); err != nil {
				s.logger.Error().Err(err).Msg("ヘルスチェックに失敗しました")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": "relay"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "relay"})
	}
}

// handleWebSocket はWebSocket接続を受け付けるハンドラ。切断されるまで戻らない。
func (s *Server) handleWebSocket() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if err := s.deps.Hub.Serve(c.Writer, c.Request, userID); err != nil {
			// アップグレード失敗時のレスポンスはUpgraderが書き込み済み
			s.logger.Debug().Err(err).Str("user_id", userID).Msg("WebSocketのアップグレードに失敗しました")
		}
	}
}

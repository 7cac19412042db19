package realtime

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/nao1215/relay/internal/metrics"
	"github.com/nao1215/relay/pkg/event"
	"github.com/rs/zerolog"
)

// Hub はユーザーごとのWebSocketセッションを管理する。
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Connection // userID -> connection

	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewHub はHubを生成する。allowedOriginsが空の場合はすべてのOriginを許可する。
func NewHub(allowedOrigins []string, m *metrics.Metrics, logger zerolog.Logger) *Hub {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			origins = nil
			break
		}
		origins[o] = struct{}{}
	}

	return &Hub{
		sessions: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if len(origins) == 0 || origin == "" {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
		metrics: m,
		logger:  logger,
	}
}

// Serve はHTTP接続をWebSocketにアップグレードし、切断されるまでブロックする。
// userIDは認証済みであること。
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	conn := NewConnection(userID, ws)
	h.Attach(conn)
	defer h.Detach(conn)

	conn.readLoop()
	return nil
}

// Attach は接続を登録して送信を開始する。同じユーザーの既存の接続は閉じる。
func (h *Hub) Attach(conn *Connection) {
	h.mu.Lock()
	previous := h.sessions[conn.UserID]
	h.sessions[conn.UserID] = conn
	h.mu.Unlock()

	go conn.writeLoop()
	h.metrics.ConnectionOpened()
	h.logger.Debug().Str("user_id", conn.UserID).Str("session_id", conn.ID).Msg("WebSocketセッションを開始しました")

	if previous != nil {
		previous.Close(closeSessionReplaced, "session replaced")
	}
}

// Detach は接続の登録を解除して閉じる。既に別の接続に置き換わっている場合は登録を変更しない。
func (h *Hub) Detach(conn *Connection) {
	h.mu.Lock()
	if current, ok := h.sessions[conn.UserID]; ok && current == conn {
		delete(h.sessions, conn.UserID)
	}
	h.mu.Unlock()

	conn.Close(websocket.CloseNormalClosure, "")
	h.metrics.ConnectionClosed()
	h.logger.Debug().Str("user_id", conn.UserID).Str("session_id", conn.ID).Msg("WebSocketセッションを終了しました")
}

// Push はユーザーの接続へイベントを送る。未接続の場合は何もしない。
func (h *Hub) Push(userID string, ev *event.Event) {
	h.mu.RLock()
	conn := h.sessions[userID]
	h.mu.RUnlock()
	if conn == nil {
		return
	}

	payload, err := event.Marshal(ev)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("配信イベントのシリアライズに失敗しました")
		return
	}
	if err := conn.Send(payload); err != nil {
		h.logger.Debug().Err(err).Str("user_id", userID).Msg("イベントを配信できませんでした")
	}
}

// Connected はユーザーが接続中であればtrueを返す。
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sessions[userID]
	return ok
}

// Close はすべての接続を閉じる。
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*Connection)
	h.mu.Unlock()

	for _, conn := range sessions {
		conn.Close(websocket.CloseGoingAway, "server shutdown")
	}
}

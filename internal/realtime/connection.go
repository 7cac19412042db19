// Package realtime はWebSocketでユーザーへイベントをリアルタイム配信する。
//
// Hub はユーザーごとに1つのセッションを保持し、新しい接続が来ると古い接続を閉じる。
// 配信はベストエフォートであり、未接続のユーザーや送信バッファが溢れた接続への
// 配信は破棄する。永続化された通知やメッセージはHTTP APIから取得し直せる。
package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait は1回の書き込みの期限。
	writeWait = 10 * time.Second
	// pongWait はクライアントからのpongを待つ期限。
	pongWait = 60 * time.Second
	// pingPeriod はpingの送信間隔。pongWaitより短くする。
	pingPeriod = 30 * time.Second
	// sendBufferSize は接続ごとの送信キューの長さ。
	sendBufferSize = 128
	// maxMessageSize はクライアントから受け付けるメッセージの最大バイト数。
	maxMessageSize = 4096
)

// クローズコード。
const (
	closeSessionReplaced = 4001
	closeBufferExceeded  = 4002
)

// errConnectionClosed は閉じた接続への送信を表す。
var errConnectionClosed = errors.New("接続は閉じられています")

// Connection はWebSocket接続をラップし、送信をバッファ付きチャネルで直列化する。
type Connection struct {
	// ID はセッションの一意識別子。
	ID string
	// UserID は接続しているユーザーのID。
	UserID string

	ws   *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

// NewConnection はユーザーの接続を生成する。
func NewConnection(userID string, ws *websocket.Conn) *Connection {
	return &Connection{
		ID:     uuid.NewString(),
		UserID: userID,
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// Send はpayloadを送信キューに積む。キューが溢れた場合は遅いクライアントとみなして接続を閉じる。
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.done:
		return errConnectionClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		c.Close(closeBufferExceeded, "send buffer full")
		return errors.New("送信バッファが溢れました")
	}
}

// Done は接続が閉じられると閉じるチャネルを返す。
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close は接続を閉じる。複数回呼んでも安全。
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		deadline := time.Now().Add(writeWait)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.ws.Close()
	})
}

// writeLoop は送信キューのメッセージとpingを書き込む。
func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}

// readLoop はクライアントからの受信を読み捨て、切断を検知するまでブロックする。
// pongを受け取るたびに読み込み期限を延長する。
func (c *Connection) readLoop() {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

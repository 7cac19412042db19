package messaging

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/relay/pkg/event"
	"github.com/nao1215/relay/pkg/middleware"
)

var (
	errInvalidEventData = errors.New("イベントデータが不正です")
	errUnsupportedEvent = errors.New("未対応のイベントタイプです")
	errActorMismatch    = errors.New("actor_user_idは認証ユーザーと一致する必要があります")
)

// publishEventRequest はイベント投入のリクエストボディ。
type publishEventRequest struct {
	// Type はイベントの種類（LikeAdded, CommentCreated）。
	Type event.Type `json:"type"`
	// Data はイベント固有のデータ。
	Data json.RawMessage `json:"data"`
}

// handlePublishEvent は投稿サービスからのイベントをイベントバスへ投入するハンドラ。
// 通知の生成は非同期に行われるため、受理した時点で202を返す。
// LikeAddedのactor_user_idは認証ユーザー自身でなければ403を返す。
func (s *Server) handlePublishEvent() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req publishEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディが不正です", "code": "invalid_body"})
			return
		}

		ev, err := newInboundEvent(req, middleware.GetUserID(c))
		if errors.Is(err, errActorMismatch) {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "code": "actor_mismatch"})
			return
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_event"})
			return
		}

		if err := s.deps.Publisher.Publish(c.Request.Context(), ev); err != nil {
			s.respondError(c, err, "イベントの投入に失敗しました")
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"event_id": ev.ID})
	}
}

// newInboundEvent はリクエストから受け付け可能なイベントを生成する。
// requesterIDはLikeAddedの操作主体として扱う認証ユーザー。
func newInboundEvent(req publishEventRequest, requesterID string) (*event.Event, error) {
	switch req.Type {
	case event.TypeLikeAdded:
		var data event.LikeAddedData
		if err := json.Unmarshal(req.Data, &data); err != nil {
			return nil, errInvalidEventData
		}
		ev, err := event.NewLikeAdded(data)
		if err != nil {
			return nil, err
		}
		if data.ActorUserID != requesterID {
			return nil, errActorMismatch
		}
		return ev, nil
	case event.TypeCommentCreated:
		var data event.CommentCreatedData
		if err := json.Unmarshal(req.Data, &data); err != nil {
			return nil, errInvalidEventData
		}
		return event.NewCommentCreated(data)
	default:
		return nil, errUnsupportedEvent
	}
}

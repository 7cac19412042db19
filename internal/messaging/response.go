package messaging

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/relay/internal/conversation"
	"github.com/nao1215/relay/internal/notification"
	"github.com/nao1215/relay/internal/pagination"
	"github.com/nao1215/relay/pkg/apperr"
	"github.com/nao1215/relay/pkg/middleware"
)

// messageResponse はメッセージのJSONレスポンス構造。
type messageResponse struct {
	// ID はメッセージの一意識別子。
	ID string `json:"id"`
	// ConversationID は所属する会話のID。
	ConversationID string `json:"conversation_id"`
	// SenderID は送信者のユーザーID。
	SenderID string `json:"sender_id"`
	// Text は本文。
	Text string `json:"text"`
	// IsRead は受信者の既読状態。
	IsRead bool `json:"is_read"`
	// CreatedAt は送信日時（RFC3339Nano形式）。
	CreatedAt string `json:"created_at"`
}

// conversationResponse は会話のJSONレスポンス構造。
type conversationResponse struct {
	// ID は会話の一意識別子。
	ID string `json:"id"`
	// Participants は参加者のユーザーID。
	Participants []string `json:"participants"`
	// CreatedAt は作成日時（RFC3339Nano形式）。
	CreatedAt string `json:"created_at"`
	// UpdatedAt は最終更新日時（RFC3339Nano形式）。
	UpdatedAt string `json:"updated_at"`
	// LastMessage は最新のメッセージ。メッセージがなければnull。
	LastMessage *messageResponse `json:"last_message"`
}

// notificationResponse は通知のJSONレスポンス構造。
type notificationResponse struct {
	// ID は通知の一意識別子。
	ID string `json:"id"`
	// RecipientID は通知先のユーザーID。
	RecipientID string `json:"recipient_id"`
	// ActorID は通知のきっかけとなったユーザーのID。
	ActorID string `json:"actor_id,omitempty"`
	// Kind は通知の種類（like, comment）。
	Kind string `json:"kind"`
	// Text は通知本文。
	Text string `json:"text"`
	// URL は遷移先のパス。
	URL string `json:"url,omitempty"`
	// Read は既読状態。
	Read bool `json:"read"`
	// CreatedAt は作成日時（RFC3339Nano形式）。
	CreatedAt string `json:"created_at"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func toMessageResponse(m conversation.Message) messageResponse {
	return messageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Text:           m.Text,
		IsRead:         m.Read,
		CreatedAt:      formatTime(m.CreatedAt),
	}
}

func toMessageResponses(msgs []conversation.Message) []messageResponse {
	responses := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		responses = append(responses, toMessageResponse(m))
	}
	return responses
}

func toConversationResponse(c conversation.Conversation) conversationResponse {
	resp := conversationResponse{
		ID:           c.ID,
		Participants: []string{c.Participants[0], c.Participants[1]},
		CreatedAt:    formatTime(c.CreatedAt),
		UpdatedAt:    formatTime(c.UpdatedAt),
	}
	if c.LastMessage != nil {
		last := toMessageResponse(*c.LastMessage)
		resp.LastMessage = &last
	}
	return resp
}

func toConversationResponses(convs []conversation.Conversation) []conversationResponse {
	responses := make([]conversationResponse, 0, len(convs))
	for _, c := range convs {
		responses = append(responses, toConversationResponse(c))
	}
	return responses
}

func toNotificationResponse(n notification.Notification) notificationResponse {
	return notificationResponse{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		ActorID:     n.ActorID,
		Kind:        string(n.Kind),
		Text:        n.Text,
		URL:         n.URL,
		Read:        n.Read,
		CreatedAt:   formatTime(n.CreatedAt),
	}
}

func toNotificationResponses(ns []notification.Notification) []notificationResponse {
	responses := make([]notificationResponse, 0, len(ns))
	for _, n := range ns {
		responses = append(responses, toNotificationResponse(n))
	}
	return responses
}

// parsePage はクエリパラメータlimitとoffsetを読み取る。
func parsePage(c *gin.Context) (pagination.Page, bool) {
	var page pagination.Page
	for key, dst := range map[string]*int{"limit": &page.Limit, "offset": &page.Offset} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": key + "は0以上の整数で指定してください", "code": "invalid_" + key})
			return pagination.Page{}, false
		}
		*dst = v
	}
	return page.Normalize(), true
}

// respondError はドメインエラーをHTTPレスポンスに変換する。
// 分類されないエラーは内容を隠して500を返し、ログに記録する。
func (s *Server) respondError(c *gin.Context, err error, msg string) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).
			Str("route", c.FullPath()).
			Str("user_id", middleware.GetUserID(c)).
			Msg(msg)
		c.JSON(status, gin.H{"error": msg, "code": "internal"})
		return
	}

	message := err.Error()
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	c.JSON(status, gin.H{"error": message, "code": apperr.CodeOf(err)})
}

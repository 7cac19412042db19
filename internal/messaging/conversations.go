package messaging

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/relay/internal/identity"
	"github.com/nao1215/relay/pkg/middleware"
)

// startConversationRequest は会話開始のリクエストボディ。
type startConversationRequest struct {
	// UserID は会話相手のユーザーID。
	UserID string `json:"user_id"`
}

// sendMessageRequest はメッセージ送信のリクエストボディ。
type sendMessageRequest struct {
	// Text は本文。
	Text string `json:"text"`
}

// handleStartConversation は相手ユーザーとの会話を返すハンドラ。会話がなければ作成する。
func (s *Server) handleStartConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)

		var req startConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディが不正です", "code": "invalid_body"})
			return
		}
		otherID := strings.TrimSpace(req.UserID)
		if otherID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_idが必要です", "code": "user_id_required"})
			return
		}

		// 自分自身との会話はユーザー解決の前に拒否する
		if otherID != userID {
			if _, err := s.deps.Resolver.ResolveUser(c.Request.Context(), otherID); err != nil {
				if errors.Is(err, identity.ErrUserNotFound) {
					c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません", "code": "user_not_found"})
					return
				}
				s.respondError(c, err, "ユーザー情報の取得に失敗しました")
				return
			}
		}

		conv, err := s.deps.Directory.FindOrCreate(c.Request.Context(), userID, otherID)
		if err != nil {
			s.respondError(c, err, "会話の開始に失敗しました")
			return
		}

		c.JSON(http.StatusOK, toConversationResponse(conv))
	}
}

// handleListConversations は認証済みユーザーの会話一覧を返すハンドラ。
func (s *Server) handleListConversations() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, ok := parsePage(c)
		if !ok {
			return
		}

		convs, err := s.deps.Directory.ListForUser(c.Request.Context(), middleware.GetUserID(c), page)
		if err != nil {
			s.respondError(c, err, "会話一覧の取得に失敗しました")
			return
		}

		c.JSON(http.StatusOK, toConversationResponses(convs))
	}
}

// handleGetConversation は会話の詳細を返すハンドラ。参加者以外は403。
func (s *Server) handleGetConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		conv, err := s.deps.Directory.Get(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
		if err != nil {
			s.respondError(c, err, "会話の取得に失敗しました")
			return
		}

		c.JSON(http.StatusOK, toConversationResponse(conv))
	}
}

// handleListMessages は会話のメッセージを古い順に返すハンドラ。参加者以外は403。
func (s *Server) handleListMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, ok := parsePage(c)
		if !ok {
			return
		}

		conversationID := c.Param("id")
		if _, err := s.deps.Directory.Get(c.Request.Context(), conversationID, middleware.GetUserID(c)); err != nil {
			s.respondError(c, err, "会話の取得に失敗しました")
			return
		}

		msgs, err := s.deps.Thread.List(c.Request.Context(), conversationID, page)
		if err != nil {
			s.respondError(c, err, "メッセージ一覧の取得に失敗しました")
			return
		}

		c.JSON(http.StatusOK, toMessageResponses(msgs))
	}
}

// handleSendMessage は会話にメッセージを追加するハンドラ。
func (s *Server) handleSendMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディが不正です", "code": "invalid_body"})
			return
		}

		msg, err := s.deps.Thread.Append(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), req.Text)
		if err != nil {
			s.respondError(c, err, "メッセージの送信に失敗しました")
			return
		}

		c.JSON(http.StatusCreated, toMessageResponse(msg))
	}
}

// handleMarkConversationRead は相手から受信したメッセージを既読にするハンドラ。
func (s *Server) handleMarkConversationRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := s.deps.Thread.MarkRead(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
		if err != nil {
			s.respondError(c, err, "メッセージの既読化に失敗しました")
			return
		}

		c.JSON(http.StatusOK, gin.H{"updated": n})
	}
}

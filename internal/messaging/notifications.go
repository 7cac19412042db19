package messaging

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/relay/internal/notification"
	"github.com/nao1215/relay/pkg/middleware"
)

// handleListNotifications は認証済みユーザーの通知一覧を新しい順に返すハンドラ。
func (s *Server) handleListNotifications() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, ok := parsePage(c)
		if !ok {
			return
		}
		filter := notification.Filter{UnreadOnly: c.Query("unread") == "true"}

		ns, err := s.deps.Inbox.ListForUser(c.Request.Context(), middleware.GetUserID(c), filter, page)
		if err != nil {
			s.respondError(c, err, "通知一覧の取得に失敗しました")
			return
		}

		c.JSON(http.StatusOK, toNotificationResponses(ns))
	}
}

// handleUnreadCount は未読通知の件数を返すハンドラ。
func (s *Server) handleUnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := s.deps.Inbox.UnreadCount(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			s.respondError(c, err, "未読件数の取得に失敗しました")
			return
		}

		c.JSON(http.StatusOK, gin.H{"count": n})
	}
}

// handleMarkNotificationRead は指定された通知を既読にするハンドラ。
// 他のユーザー宛ての通知は存在しない通知と同じく404を返す。
func (s *Server) handleMarkNotificationRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := s.deps.Inbox.MarkRead(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
		if err != nil {
			s.respondError(c, err, "通知の既読化に失敗しました")
			return
		}

		c.JSON(http.StatusOK, toNotificationResponse(n))
	}
}

// handleMarkAllNotificationsRead は全通知を既読にするハンドラ。
func (s *Server) handleMarkAllNotificationsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := s.deps.Inbox.MarkAllRead(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			s.respondError(c, err, "通知の一括既読化に失敗しました")
			return
		}

		c.JSON(http.StatusOK, gin.H{"updated": n})
	}
}

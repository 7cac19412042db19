package notification

import (
	"context"
	"fmt"
	"iter"

	"github.com/nao1215/relay/internal/pagination"
)

// Inbox は受信者ごとの通知一覧と既読管理を提供する。
// すべての操作は受信者本人の通知のみを対象とする。
type Inbox struct {
	repo Repository
}

// NewInbox はInboxを生成する。
func NewInbox(repo Repository) *Inbox {
	return &Inbox{repo: repo}
}

// ListForUser はuserID宛ての通知を作成日時の降順で返す。
func (i *Inbox) ListForUser(ctx context.Context, userID string, filter Filter, page pagination.Page) ([]Notification, error) {
	ns, err := i.repo.ListNotifications(ctx, userID, filter, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}
	return ns, nil
}

// Notifications はuserID宛ての通知をページ単位で遅延取得するイテレータを返す。
func (i *Inbox) Notifications(ctx context.Context, userID string, filter Filter, pageSize int) iter.Seq2[Notification, error] {
	return pagination.Seq(ctx, pageSize, func(ctx context.Context, page pagination.Page) ([]Notification, error) {
		return i.ListForUser(ctx, userID, filter, page)
	})
}

// MarkRead は通知を既読にする。既読済みの通知に対しても成功する。
// 通知が存在しない場合とrequester宛てでない場合は区別せずErrNotificationNotFoundを返す。
func (i *Inbox) MarkRead(ctx context.Context, id, requester string) (Notification, error) {
	if id == "" || requester == "" {
		return Notification{}, ErrNotificationNotFound
	}
	return i.repo.MarkNotificationRead(ctx, id, requester)
}

// MarkAllRead はuserID宛ての未読通知をすべて既読にし、更新件数を返す。
func (i *Inbox) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := i.repo.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("通知の一括既読化に失敗: %w", err)
	}
	return n, nil
}

// UnreadCount はuserID宛ての未読通知の件数を返す。
func (i *Inbox) UnreadCount(ctx context.Context, userID string) (int64, error) {
	n, err := i.repo.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("未読件数の取得に失敗: %w", err)
	}
	return n, nil
}

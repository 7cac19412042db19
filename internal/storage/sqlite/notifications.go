package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nao1215/relay/internal/notification"
	"github.com/nao1215/relay/internal/pagination"
)

var _ notification.Repository = (*Store)(nil)

const notificationColumns = `id, recipient_id, actor_id, kind, text, url, is_read, created_at`

// CreateNotification は通知を保存する。
func (s *Store) CreateNotification(ctx context.Context, n notification.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, actor_id, kind, text, url, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.RecipientID, nullString(n.ActorID), string(n.Kind), n.Text, nullString(n.URL),
		boolToInt(n.Read), toNanos(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("通知の保存に失敗: %w", err)
	}
	return nil
}

// ListNotifications は受信者宛ての通知を作成日時の降順で返す。
func (s *Store) ListNotifications(ctx context.Context, recipientID string, filter notification.Filter, page pagination.Page) ([]notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = ?`
	if filter.UnreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, seq DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, recipientID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	ns := []notification.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		ns = append(ns, n)
	}
	return ns, rows.Err()
}

// MarkNotificationRead は受信者宛ての通知を既読にして返す。既読済みでも成功する。
func (s *Store) MarkNotificationRead(ctx context.Context, id, recipientID string) (notification.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE notifications SET is_read = 1
		WHERE id = ? AND recipient_id = ?
		RETURNING `+notificationColumns,
		id, recipientID,
	)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return notification.Notification{}, notification.ErrNotificationNotFound
	}
	if err != nil {
		return notification.Notification{}, fmt.Errorf("通知の既読化に失敗: %w", err)
	}
	return n, nil
}

// MarkAllNotificationsRead は受信者宛ての未読通知をすべて既読にする。
func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE recipient_id = ? AND is_read = 0`, recipientID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountUnreadNotifications は受信者宛ての未読通知の件数を返す。
func (s *Store) CountUnreadNotifications(ctx context.Context, recipientID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND is_read = 0`, recipientID,
	).Scan(&n)
	return n, err
}

// rowScanner は *sql.Row と *sql.Rows の共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (notification.Notification, error) {
	var (
		n          notification.Notification
		kind       string
		actor, url sql.NullString
		read       int
		createdAt  int64
	)
	if err := row.Scan(&n.ID, &n.RecipientID, &actor, &kind, &n.Text, &url, &read, &createdAt); err != nil {
		return notification.Notification{}, err
	}
	n.ActorID = actor.String
	n.Kind = notification.Kind(kind)
	n.URL = url.String
	n.Read = read != 0
	n.CreatedAt = fromNanos(createdAt)
	return n, nil
}

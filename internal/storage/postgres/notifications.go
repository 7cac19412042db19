package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/nao1215/relay/internal/notification"
	"github.com/nao1215/relay/internal/pagination"
)

var _ notification.Repository = (*Store)(nil)

const notificationColumns = `id, recipient_id, actor_id, kind, text, url, is_read, created_at`

// CreateNotification は通知を保存する。
func (s *Store) CreateNotification(ctx context.Context, n notification.Notification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, actor_id, kind, text, url, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.RecipientID, nullable(n.ActorID), string(n.Kind), n.Text, nullable(n.URL), n.Read, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("通知の保存に失敗: %w", err)
	}
	return nil
}

// ListNotifications は受信者宛ての通知を作成日時の降順で返す。
func (s *Store) ListNotifications(ctx context.Context, recipientID string, filter notification.Filter, page pagination.Page) ([]notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = $1`
	if filter.UnreadOnly {
		query += ` AND NOT is_read`
	}
	query += ` ORDER BY created_at DESC, seq DESC LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, recipientID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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
	row := s.pool.QueryRow(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND recipient_id = $2
		RETURNING `+notificationColumns,
		id, recipientID,
	)
	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return notification.Notification{}, notification.ErrNotificationNotFound
	}
	if err != nil {
		return notification.Notification{}, fmt.Errorf("通知の既読化に失敗: %w", err)
	}
	return n, nil
}

// MarkAllNotificationsRead は受信者宛ての未読通知をすべて既読にする。
func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE recipient_id = $1 AND NOT is_read`, recipientID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountUnreadNotifications は受信者宛ての未読通知の件数を返す。
func (s *Store) CountUnreadNotifications(ctx context.Context, recipientID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND NOT is_read`, recipientID,
	).Scan(&n)
	return n, err
}

func scanNotification(row pgx.Row) (notification.Notification, error) {
	var (
		n          notification.Notification
		kind       string
		actor, url *string
	)
	if err := row.Scan(&n.ID, &n.RecipientID, &actor, &kind, &n.Text, &url, &n.Read, &n.CreatedAt); err != nil {
		return notification.Notification{}, err
	}
	n.ActorID = deref(actor)
	n.Kind = notification.Kind(kind)
	n.URL = deref(url)
	n.CreatedAt = n.CreatedAt.UTC()
	return n, nil
}

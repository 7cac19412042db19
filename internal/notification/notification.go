package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/relay/internal/metrics"
	"github.com/nao1215/relay/internal/pagination"
	"github.com/nao1215/relay/pkg/apperr"
	"github.com/nao1215/relay/pkg/event"
	"github.com/rs/zerolog"
)

// Kind は通知の種類を表す。
type Kind string

const (
	// KindLike は投稿へのいいね通知。
	KindLike Kind = "like"
	// KindComment は投稿へのコメント通知。
	KindComment Kind = "comment"
)

// Notification はユーザーへの通知を表す。作成後に変更されるのは既読フラグのみ。
type Notification struct {
	// ID は通知の一意識別子。
	ID string
	// RecipientID は通知先のユーザーID。
	RecipientID string
	// ActorID は通知のきっかけとなったユーザーのID。不明な場合は空。
	ActorID string
	// Kind は通知の種類。
	Kind Kind
	// Text は通知本文。MaxTextLength文字以内。
	Text string
	// URL は通知から遷移する先のパス。空の場合もある。
	URL string
	// Read は既読かどうか。
	Read bool
	// CreatedAt は通知の作成日時。
	CreatedAt time.Time
}

// Filter は通知一覧の絞り込み条件。
type Filter struct {
	// UnreadOnly がtrueの場合は未読の通知のみ返す。
	UnreadOnly bool
}

var (
	// ErrNotificationNotFound は通知が存在しないか、操作ユーザー宛てでない場合のエラー。
	ErrNotificationNotFound = apperr.New(apperr.KindNotFound, "notification_not_found", "通知が見つかりません")
	// ErrIdentityUnresolvable は通知に必要なユーザー情報を解決できない場合のエラー。
	// Engineの内部でのみ使用し、呼び出し元には返さない。
	ErrIdentityUnresolvable = apperr.New(apperr.KindIdentityUnresolvable, "identity_unresolvable", "ユーザー情報を解決できません")
)

// Repository は通知の永続化を担う。
type Repository interface {
	// CreateNotification は通知を保存する。
	CreateNotification(ctx context.Context, n Notification) error
	// ListNotifications は受信者宛ての通知を作成日時の降順で返す。
	ListNotifications(ctx context.Context, recipientID string, filter Filter, page pagination.Page) ([]Notification, error)
	// MarkNotificationRead は受信者宛ての通知を既読にして返す。
	// 該当する通知がなければErrNotificationNotFoundを返す。
	MarkNotificationRead(ctx context.Context, id, recipientID string) (Notification, error)
	// MarkAllNotificationsRead は受信者宛ての未読通知をすべて既読にし、更新件数を返す。
	MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error)
	// CountUnreadNotifications は受信者宛ての未読通知の件数を返す。
	CountUnreadNotifications(ctx context.Context, recipientID string) (int64, error)
}

// Pusher はユーザーへのリアルタイム配信を行う。配信はベストエフォート。
type Pusher interface {
	Push(userID string, ev *event.Event)
}

// Option はEngineの生成オプション。
type Option func(*options)

type options struct {
	now     func() time.Time
	newID   func() string
	pusher  Pusher
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func applyOptions(opts []Option) options {
	o := options{
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
		newID: func() string {
			return uuid.Must(uuid.NewV7()).String()
		},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator はID採番関数を差し替える。
func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// WithPusher は通知作成時のリアルタイム配信先を設定する。
func WithPusher(p Pusher) Option {
	return func(o *options) { o.pusher = p }
}

// WithMetrics はメトリクスの記録先を設定する。
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger はロガーを設定する。
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

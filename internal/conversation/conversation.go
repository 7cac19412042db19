package conversation

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

// Conversation は2人のユーザー間の会話を表す。
type Conversation struct {
	// ID は会話の一意識別子。
	ID string
	// Participants は参加者のユーザーID。常に昇順に並ぶ。
	Participants [2]string
	// CreatedAt は会話の作成日時。
	CreatedAt time.Time
	// UpdatedAt は最後にメッセージが追加された日時。メッセージがなければ作成日時。
	UpdatedAt time.Time
	// LastMessage は最新のメッセージ。一覧取得時のみ設定され、メッセージがなければnil。
	LastMessage *Message
}

// HasParticipant はuserIDが会話の参加者であればtrueを返す。
func (c Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.Participants[0] == userID || c.Participants[1] == userID)
}

// Message は会話内の1件のメッセージを表す。作成後は既読フラグ以外変更されない。
type Message struct {
	// ID はメッセージの一意識別子。
	ID string
	// ConversationID は所属する会話のID。
	ConversationID string
	// SenderID は送信者のユーザーID。
	SenderID string
	// Text は本文。
	Text string
	// CreatedAt は送信日時。
	CreatedAt time.Time
	// Read は受信者が既読にしたかどうか。
	Read bool
}

var (
	// ErrInvalidParticipants は会話の参加者の組が不正な場合のエラー（同一ユーザー、空のID）。
	ErrInvalidParticipants = apperr.New(apperr.KindInvalidInput, "invalid_participants", "会話の参加者が不正です")
	// ErrEmptyText はメッセージ本文が空の場合のエラー。
	ErrEmptyText = apperr.New(apperr.KindInvalidInput, "empty_text", "メッセージ本文が空です")
	// ErrConversationNotFound は会話が存在しない場合のエラー。
	ErrConversationNotFound = apperr.New(apperr.KindNotFound, "conversation_not_found", "会話が見つかりません")
	// ErrNotAParticipant は操作ユーザーが会話の参加者でない場合のエラー。
	ErrNotAParticipant = apperr.New(apperr.KindForbidden, "not_a_participant", "会話の参加者ではありません")
)

// Repository は会話とメッセージの永続化を担う。
type Repository interface {
	// FindOrCreatePair は参加者の組が同じ会話を返し、なければconvを保存して返す。
	// createdは新規に保存した場合にtrue。
	FindOrCreatePair(ctx context.Context, conv Conversation) (stored Conversation, created bool, err error)
	// GetConversation はIDで会話を取得する。存在しなければErrConversationNotFoundを返す。
	GetConversation(ctx context.Context, id string) (Conversation, error)
	// ListConversations はuserIDが参加する会話を最終更新日時の降順で返す。LastMessageを含む。
	ListConversations(ctx context.Context, userID string, page pagination.Page) ([]Conversation, error)
	// AppendMessage はメッセージを保存し、会話のUpdatedAtをメッセージの送信日時に更新する。
	// 両方が同一トランザクションで行われる。会話がなければErrConversationNotFoundを返す。
	AppendMessage(ctx context.Context, msg Message) error
	// ListMessages は会話のメッセージを送信日時の昇順で返す。
	ListMessages(ctx context.Context, conversationID string, page pagination.Page) ([]Message, error)
	// MarkMessagesRead はreaderID以外が送信した未読メッセージを既読にし、更新件数を返す。
	MarkMessagesRead(ctx context.Context, conversationID, readerID string) (int64, error)
}

// Pusher はユーザーへのリアルタイム配信を行う。配信はベストエフォート。
type Pusher interface {
	Push(userID string, ev *event.Event)
}

// Option はDirectoryとThreadの生成オプション。
type Option func(*options)

type options struct {
	now     func() time.Time
	newID   func() string
	pusher  Pusher
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func defaultOptions() options {
	return options{
		now:    defaultNow,
		newID:  defaultID,
		logger: zerolog.Nop(),
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// defaultNow はPostgreSQLのTIMESTAMPTZと同じマイクロ秒精度に丸めた現在時刻を返す。
func defaultNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func defaultID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator はID採番関数を差し替える。
func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// WithPusher はメッセージ追加時のリアルタイム配信先を設定する。
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

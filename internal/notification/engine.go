package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/nao1215/relay/internal/bus"
	"github.com/nao1215/relay/internal/content"
	"github.com/nao1215/relay/internal/identity"
	"github.com/nao1215/relay/pkg/event"
)

// Outcome はイベント1件に対する通知エンジンの処理結果を表す。
type Outcome int

const (
	// OutcomeCreated は通知を1件作成したことを表す。
	OutcomeCreated Outcome = iota + 1
	// OutcomeSuppressed は自分自身への操作のため通知を作らなかったことを表す。
	OutcomeSuppressed
	// OutcomeSkipped は投稿・コメント・ユーザーを解決できず通知を作らなかったことを表す。
	OutcomeSkipped
	// OutcomeFailed は通知の保存に失敗したことを表す。イベントは再配信されうる。
	OutcomeFailed
)

// String はメトリクスのラベルに使う名前を返す。
func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeSuppressed:
		return "suppressed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Engine はソーシャルイベントから通知を生成する。
type Engine struct {
	repo     Repository
	content  content.Reader
	resolver identity.Resolver
	opts     options
}

// NewEngine はEngineを生成する。
func NewEngine(repo Repository, contentReader content.Reader, resolver identity.Resolver, opts ...Option) *Engine {
	return &Engine{
		repo:     repo,
		content:  contentReader,
		resolver: resolver,
		opts:     applyOptions(opts),
	}
}

// Register はEngineが処理するイベントのハンドラーをバスに登録する。
func (e *Engine) Register(sub bus.Subscriber) {
	sub.Subscribe(event.TypeLikeAdded, e.HandleEvent)
	sub.Subscribe(event.TypeCommentCreated, e.HandleEvent)
}

// HandleEvent はバスから受け取ったイベントを処理する。
// 返すエラーは通知の保存失敗のみで、この場合イベントは再配信される。
// データを復元できないイベントは再配信しても処理できないため、ログに残して破棄する。
func (e *Engine) HandleEvent(ctx context.Context, ev *event.Event) error {
	var err error
	switch ev.EventType {
	case event.TypeLikeAdded:
		data, decodeErr := event.DecodeData[event.LikeAddedData](ev)
		if decodeErr != nil {
			return e.discard(ev, decodeErr)
		}
		_, err = e.HandleLikeAdded(ctx, *data)
	case event.TypeCommentCreated:
		data, decodeErr := event.DecodeData[event.CommentCreatedData](ev)
		if decodeErr != nil {
			return e.discard(ev, decodeErr)
		}
		_, err = e.HandleCommentCreated(ctx, *data)
	default:
		e.opts.logger.Debug().Str("event_type", string(ev.EventType)).Msg("処理対象外のイベントです")
		return nil
	}

	if err != nil {
		e.opts.metrics.EventConsumed(string(ev.EventType), "error")
		return fmt.Errorf("イベント %s の処理に失敗: %w", ev.ID, err)
	}
	e.opts.metrics.EventConsumed(string(ev.EventType), "ok")
	return nil
}

func (e *Engine) discard(ev *event.Event, err error) error {
	e.opts.metrics.EventConsumed(string(ev.EventType), "malformed")
	e.opts.logger.Error().Err(err).
		Str("event_id", ev.ID).
		Str("event_type", string(ev.EventType)).
		Msg("イベントデータを復元できないため破棄します")
	return nil
}

// HandleLikeAdded はいいね追加イベントから投稿者宛ての通知を作成する。
// 自分の投稿へのいいねは通知しない。
func (e *Engine) HandleLikeAdded(ctx context.Context, data event.LikeAddedData) (Outcome, error) {
	if err := data.Validate(); err != nil {
		return e.skip(KindLike, "invalid_event", err), nil
	}

	post, err := e.content.GetPost(ctx, data.PostID)
	if err != nil {
		return e.skip(KindLike, "post_lookup", err), nil
	}
	if post.AuthorID == data.ActorUserID {
		return e.suppress(KindLike, data.ActorUserID), nil
	}

	actor, err := e.resolve(ctx, data.ActorUserID)
	if err != nil {
		return e.skip(KindLike, "actor_lookup", err), nil
	}
	if _, err := e.resolve(ctx, post.AuthorID); err != nil {
		return e.skip(KindLike, "recipient_lookup", err), nil
	}

	return e.deliver(ctx, Notification{
		RecipientID: post.AuthorID,
		ActorID:     actor.ID,
		Kind:        KindLike,
		Text:        likeText(actor.Name()),
		URL:         postURL(post.ID),
	})
}

// HandleCommentCreated はコメント作成イベントから投稿者宛ての通知を作成する。
// 自分の投稿へのコメントは通知しない。
func (e *Engine) HandleCommentCreated(ctx context.Context, data event.CommentCreatedData) (Outcome, error) {
	if err := data.Validate(); err != nil {
		return e.skip(KindComment, "invalid_event", err), nil
	}

	comment, err := e.content.GetComment(ctx, data.CommentID)
	if err != nil {
		return e.skip(KindComment, "comment_lookup", err), nil
	}
	post, err := e.content.GetPost(ctx, comment.PostID)
	if err != nil {
		return e.skip(KindComment, "post_lookup", err), nil
	}
	if post.AuthorID == comment.AuthorID {
		return e.suppress(KindComment, comment.AuthorID), nil
	}

	actor, err := e.resolve(ctx, comment.AuthorID)
	if err != nil {
		return e.skip(KindComment, "actor_lookup", err), nil
	}
	if _, err := e.resolve(ctx, post.AuthorID); err != nil {
		return e.skip(KindComment, "recipient_lookup", err), nil
	}

	return e.deliver(ctx, Notification{
		RecipientID: post.AuthorID,
		ActorID:     actor.ID,
		Kind:        KindComment,
		Text:        commentText(actor.Name(), comment.Content),
		URL:         postURL(post.ID),
	})
}

// resolve はユーザーを解決する。失敗はErrIdentityUnresolvableで包む。
func (e *Engine) resolve(ctx context.Context, userID string) (identity.User, error) {
	user, err := e.resolver.ResolveUser(ctx, userID)
	if err != nil {
		return identity.User{}, ErrIdentityUnresolvable.Wrap(err)
	}
	return user, nil
}

// deliver は通知を保存し、受信者へリアルタイム配信する。
func (e *Engine) deliver(ctx context.Context, n Notification) (Outcome, error) {
	n.ID = e.opts.newID()
	n.CreatedAt = e.opts.now()

	if err := e.repo.CreateNotification(ctx, n); err != nil {
		e.opts.metrics.NotificationOutcome(string(n.Kind), OutcomeFailed.String())
		return OutcomeFailed, fmt.Errorf("通知の保存に失敗: %w", err)
	}

	e.opts.metrics.NotificationOutcome(string(n.Kind), OutcomeCreated.String())
	e.opts.logger.Info().
		Str("notification_id", n.ID).
		Str("recipient_id", n.RecipientID).
		Str("kind", string(n.Kind)).
		Msg("通知を作成しました")
	e.push(n)
	return OutcomeCreated, nil
}

func (e *Engine) push(n Notification) {
	if e.opts.pusher == nil {
		return
	}
	ev, err := event.New(n.ID, event.AggregateTypeNotification, event.TypeNotificationCreated, event.NotificationCreatedData{
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		Text:           n.Text,
	})
	if err != nil {
		e.opts.logger.Warn().Err(err).Str("notification_id", n.ID).Msg("配信イベントの生成に失敗しました")
		return
	}
	e.opts.pusher.Push(n.RecipientID, ev)
}

func (e *Engine) suppress(kind Kind, actorID string) Outcome {
	e.opts.metrics.NotificationOutcome(string(kind), OutcomeSuppressed.String())
	e.opts.logger.Debug().Str("kind", string(kind)).Str("actor_id", actorID).Msg("自分自身への操作のため通知しません")
	return OutcomeSuppressed
}

func (e *Engine) skip(kind Kind, reason string, err error) Outcome {
	e.opts.metrics.NotificationOutcome(string(kind), OutcomeSkipped.String())
	ev := e.opts.logger.Warn()
	if errors.Is(err, ErrIdentityUnresolvable) {
		ev = ev.Str("code", ErrIdentityUnresolvable.Code)
	}
	ev.Err(err).Str("kind", string(kind)).Str("reason", reason).Msg("通知の生成をスキップしました")
	return OutcomeSkipped
}

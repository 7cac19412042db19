package conversation

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/nao1215/relay/internal/pagination"
	"github.com/nao1215/relay/pkg/event"
)

// Thread は会話内のメッセージの追加と取得を担う。
type Thread struct {
	repo Repository
	opts options
}

// NewThread はThreadを生成する。
func NewThread(repo Repository, opts ...Option) *Thread {
	return &Thread{repo: repo, opts: applyOptions(opts)}
}

// Append は会話にメッセージを追加し、会話の最終更新日時を送信日時に進める。
// 本文が空白のみ、会話が存在しない、送信者が参加者でない場合は何も変更せずエラーを返す。
func (t *Thread) Append(ctx context.Context, conversationID, senderID, text string) (Message, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, ErrEmptyText
	}

	conv, err := t.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return Message{}, err
	}
	recipientID, err := OtherParticipant(conv, senderID)
	if err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:             t.opts.newID(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Text:           text,
		CreatedAt:      t.opts.now(),
	}
	if err := t.repo.AppendMessage(ctx, msg); err != nil {
		return Message{}, fmt.Errorf("メッセージの保存に失敗: %w", err)
	}

	t.opts.metrics.MessageSent()
	t.opts.logger.Debug().
		Str("conversation_id", conv.ID).
		Str("message_id", msg.ID).
		Str("sender_id", senderID).
		Msg("メッセージを追加しました")
	t.push(recipientID, msg)
	return msg, nil
}

// push は受信者へメッセージ追加を通知する。失敗しても送信自体は成功扱い。
func (t *Thread) push(recipientID string, msg Message) {
	if t.opts.pusher == nil {
		return
	}
	ev, err := event.New(msg.ConversationID, event.AggregateTypeConversation, event.TypeMessageSent, event.MessageSentData{
		MessageID:   msg.ID,
		SenderID:    msg.SenderID,
		RecipientID: recipientID,
	})
	if err != nil {
		t.opts.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("配信イベントの生成に失敗しました")
		return
	}
	t.opts.pusher.Push(recipientID, ev)
}

// List は会話のメッセージを送信日時の昇順で返す。同時刻の場合は追加順。
func (t *Thread) List(ctx context.Context, conversationID string, page pagination.Page) ([]Message, error) {
	if _, err := t.repo.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	msgs, err := t.repo.ListMessages(ctx, conversationID, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("メッセージ一覧の取得に失敗: %w", err)
	}
	return msgs, nil
}

// Messages は会話のメッセージをページ単位で遅延取得するイテレータを返す。
func (t *Thread) Messages(ctx context.Context, conversationID string, pageSize int) iter.Seq2[Message, error] {
	return pagination.Seq(ctx, pageSize, func(ctx context.Context, page pagination.Page) ([]Message, error) {
		return t.List(ctx, conversationID, page)
	})
}

// MarkRead はreaderIDが受信したメッセージをすべて既読にし、更新件数を返す。
func (t *Thread) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	conv, err := t.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !conv.HasParticipant(readerID) {
		return 0, ErrNotAParticipant
	}
	n, err := t.repo.MarkMessagesRead(ctx, conv.ID, readerID)
	if err != nil {
		return 0, fmt.Errorf("メッセージの既読化に失敗: %w", err)
	}
	return n, nil
}

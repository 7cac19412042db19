package conversation

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/nao1215/relay/internal/pagination"
)

// Directory はユーザーの組ごとの会話を管理する。
type Directory struct {
	repo Repository
	opts options
}

// NewDirectory はDirectoryを生成する。
func NewDirectory(repo Repository, opts ...Option) *Directory {
	return &Directory{repo: repo, opts: applyOptions(opts)}
}

// FindOrCreate はuserAとuserBの会話を返し、なければ作成する。
// 引数の順序は問わず、同じ組に対しては常に同じ会話を返す。
func (d *Directory) FindOrCreate(ctx context.Context, userA, userB string) (Conversation, error) {
	if !validUserID(userA) || !validUserID(userB) || userA == userB {
		return Conversation{}, ErrInvalidParticipants
	}

	now := d.opts.now()
	conv := Conversation{
		ID:           d.opts.newID(),
		Participants: sortedPair(userA, userB),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	stored, created, err := d.repo.FindOrCreatePair(ctx, conv)
	if err != nil {
		return Conversation{}, fmt.Errorf("会話の取得または作成に失敗: %w", err)
	}
	if created {
		d.opts.metrics.ConversationCreated()
		d.opts.logger.Info().
			Str("conversation_id", stored.ID).
			Strs("participants", stored.Participants[:]).
			Msg("会話を作成しました")
	}
	return stored, nil
}

// Get は会話を取得する。requesterが参加者でなければErrNotAParticipantを返す。
func (d *Directory) Get(ctx context.Context, id, requester string) (Conversation, error) {
	conv, err := d.repo.GetConversation(ctx, id)
	if err != nil {
		return Conversation{}, err
	}
	if !conv.HasParticipant(requester) {
		return Conversation{}, ErrNotAParticipant
	}
	return conv, nil
}

// ListForUser はuserIDが参加する会話を最終更新日時の降順で返す。
// 同時刻の場合は後に作成された会話が先に並ぶ。
func (d *Directory) ListForUser(ctx context.Context, userID string, page pagination.Page) ([]Conversation, error) {
	convs, err := d.repo.ListConversations(ctx, userID, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("会話一覧の取得に失敗: %w", err)
	}
	return convs, nil
}

// Conversations はuserIDの会話一覧をページ単位で遅延取得するイテレータを返す。
func (d *Directory) Conversations(ctx context.Context, userID string, pageSize int) iter.Seq2[Conversation, error] {
	return pagination.Seq(ctx, pageSize, func(ctx context.Context, page pagination.Page) ([]Conversation, error) {
		return d.ListForUser(ctx, userID, page)
	})
}

// OtherParticipant はconvにおけるuserIDの相手のユーザーIDを返す。
func OtherParticipant(conv Conversation, userID string) (string, error) {
	switch userID {
	case "":
		return "", ErrNotAParticipant
	case conv.Participants[0]:
		return conv.Participants[1], nil
	case conv.Participants[1]:
		return conv.Participants[0], nil
	default:
		return "", ErrNotAParticipant
	}
}

// sortedPair は2つのユーザーIDを昇順に並べる。
func sortedPair(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

// validUserID はIDが空でなく、前後に空白を含まなければtrueを返す。
func validUserID(id string) bool {
	return id != "" && strings.TrimSpace(id) == id
}

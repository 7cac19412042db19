package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nao1215/relay/internal/conversation"
	"github.com/nao1215/relay/internal/pagination"
)

var _ conversation.Repository = (*Store)(nil)

// FindOrCreatePair は参加者の組に一致する会話を返し、なければconvを保存する。
func (s *Store) FindOrCreatePair(ctx context.Context, conv conversation.Conversation) (conversation.Conversation, bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, participant_low, participant_high, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (participant_low, participant_high) DO NOTHING`,
		conv.ID, conv.Participants[0], conv.Participants[1], conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return conversation.Conversation{}, false, fmt.Errorf("会話の作成に失敗: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		SELECT id, participant_low, participant_high, created_at, updated_at
		FROM conversations
		WHERE participant_low = $1 AND participant_high = $2`,
		conv.Participants[0], conv.Participants[1],
	)
	stored, err := scanConversation(row)
	if err != nil {
		return conversation.Conversation{}, false, fmt.Errorf("会話の取得に失敗: %w", err)
	}
	return stored, tag.RowsAffected() == 1, nil
}

// GetConversation はIDで会話を取得する。
func (s *Store) GetConversation(ctx context.Context, id string) (conversation.Conversation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, participant_low, participant_high, created_at, updated_at
		FROM conversations
		WHERE id = $1`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return conversation.Conversation{}, conversation.ErrConversationNotFound
	}
	if err != nil {
		return conversation.Conversation{}, fmt.Errorf("会話の取得に失敗: %w", err)
	}
	return conv, nil
}

// ListConversations はuserIDが参加する会話を最終更新日時の降順で、最新メッセージとともに返す。
func (s *Store) ListConversations(ctx context.Context, userID string, page pagination.Page) ([]conversation.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.participant_low, c.participant_high, c.created_at, c.updated_at,
		       m.id, m.sender_id, m.text, m.is_read, m.created_at
		FROM conversations c
		LEFT JOIN LATERAL (
		    SELECT id, sender_id, text, is_read, created_at
		    FROM messages
		    WHERE conversation_id = c.id
		    ORDER BY created_at DESC, seq DESC
		    LIMIT 1
		) m ON TRUE
		WHERE c.participant_low = $1 OR c.participant_high = $1
		ORDER BY c.updated_at DESC, c.seq DESC
		LIMIT $2 OFFSET $3`,
		userID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := []conversation.Conversation{}
	for rows.Next() {
		var (
			conv         conversation.Conversation
			msgID        *string
			sender, text *string
			msgRead      *bool
			msgCreatedAt *time.Time
		)
		if err := rows.Scan(
			&conv.ID, &conv.Participants[0], &conv.Participants[1], &conv.CreatedAt, &conv.UpdatedAt,
			&msgID, &sender, &text, &msgRead, &msgCreatedAt,
		); err != nil {
			return nil, err
		}
		conv.CreatedAt = conv.CreatedAt.UTC()
		conv.UpdatedAt = conv.UpdatedAt.UTC()
		if msgID != nil {
			conv.LastMessage = &conversation.Message{
				ID:             *msgID,
				ConversationID: conv.ID,
				SenderID:       deref(sender),
				Text:           deref(text),
				Read:           msgRead != nil && *msgRead,
				CreatedAt:      msgCreatedAt.UTC(),
			}
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// AppendMessage はメッセージの保存と会話の最終更新日時の更新を1つのトランザクションで行う。
// 最終更新日時は巻き戻さない。
func (s *Store) AppendMessage(ctx context.Context, msg conversation.Message) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE conversations SET updated_at = GREATEST(updated_at, $1) WHERE id = $2`,
			msg.CreatedAt, msg.ConversationID,
		)
		if err != nil {
			return fmt.Errorf("会話の更新に失敗: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return conversation.ErrConversationNotFound
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO messages (id, conversation_id, sender_id, text, is_read, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			msg.ID, msg.ConversationID, msg.SenderID, msg.Text, msg.Read, msg.CreatedAt,
		); err != nil {
			return fmt.Errorf("メッセージの保存に失敗: %w", err)
		}
		return nil
	})
}

// ListMessages は会話のメッセージを送信日時の昇順で返す。
func (s *Store) ListMessages(ctx context.Context, conversationID string, page pagination.Page) ([]conversation.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, text, is_read, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, seq ASC
		LIMIT $2 OFFSET $3`,
		conversationID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []conversation.Message{}
	for rows.Next() {
		var msg conversation.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Text, &msg.Read, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.CreatedAt = msg.CreatedAt.UTC()
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// MarkMessagesRead はreaderID以外が送信した未読メッセージを既読にする。
func (s *Store) MarkMessagesRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET is_read = TRUE
		WHERE conversation_id = $1 AND sender_id <> $2 AND NOT is_read`,
		conversationID, readerID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanConversation(row pgx.Row) (conversation.Conversation, error) {
	var conv conversation.Conversation
	if err := row.Scan(&conv.ID, &conv.Participants[0], &conv.Participants[1], &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return conversation.Conversation{}, err
	}
	conv.CreatedAt = conv.CreatedAt.UTC()
	conv.UpdatedAt = conv.UpdatedAt.UTC()
	return conv, nil
}

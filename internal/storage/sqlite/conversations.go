package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nao1215/relay/internal/conversation"
	"github.com/nao1215/relay/internal/pagination"
)

var _ conversation.Repository = (*Store)(nil)

// FindOrCreatePair は参加者の組に一致する会話を返し、なければconvを保存する。
// 同時に呼ばれても一意制約により会話は1件しか作られない。
func (s *Store) FindOrCreatePair(ctx context.Context, conv conversation.Conversation) (conversation.Conversation, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, participant_low, participant_high, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (participant_low, participant_high) DO NOTHING`,
		conv.ID, conv.Participants[0], conv.Participants[1], toNanos(conv.CreatedAt), toNanos(conv.UpdatedAt),
	)
	if err != nil {
		return conversation.Conversation{}, false, fmt.Errorf("会話の作成に失敗: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return conversation.Conversation{}, false, fmt.Errorf("会話の作成結果の取得に失敗: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, participant_low, participant_high, created_at, updated_at
		FROM conversations
		WHERE participant_low = ? AND participant_high = ?`,
		conv.Participants[0], conv.Participants[1],
	)
	stored, err := scanConversation(row)
	if err != nil {
		return conversation.Conversation{}, false, fmt.Errorf("会話の取得に失敗: %w", err)
	}
	return stored, inserted == 1, nil
}

// GetConversation はIDで会話を取得する。
func (s *Store) GetConversation(ctx context.Context, id string) (conversation.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, participant_low, participant_high, created_at, updated_at
		FROM conversations
		WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return conversation.Conversation{}, conversation.ErrConversationNotFound
	}
	if err != nil {
		return conversation.Conversation{}, fmt.Errorf("会話の取得に失敗: %w", err)
	}
	return conv, nil
}

// ListConversations はuserIDが参加する会話を最終更新日時の降順で、最新メッセージとともに返す。
func (s *Store) ListConversations(ctx context.Context, userID string, page pagination.Page) ([]conversation.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.participant_low, c.participant_high, c.created_at, c.updated_at,
		       m.id, m.sender_id, m.text, m.is_read, m.created_at
		FROM conversations c
		LEFT JOIN messages m ON m.seq = (
		    SELECT seq FROM messages
		    WHERE conversation_id = c.id
		    ORDER BY created_at DESC, seq DESC
		    LIMIT 1
		)
		WHERE c.participant_low = ? OR c.participant_high = ?
		ORDER BY c.updated_at DESC, c.seq DESC
		LIMIT ? OFFSET ?`,
		userID, userID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	convs := []conversation.Conversation{}
	for rows.Next() {
		var (
			conv                  conversation.Conversation
			createdAt, updatedAt  int64
			msgID, sender, text   sql.NullString
			msgRead, msgCreatedAt sql.NullInt64
		)
		if err := rows.Scan(
			&conv.ID, &conv.Participants[0], &conv.Participants[1], &createdAt, &updatedAt,
			&msgID, &sender, &text, &msgRead, &msgCreatedAt,
		); err != nil {
			return nil, err
		}
		conv.CreatedAt = fromNanos(createdAt)
		conv.UpdatedAt = fromNanos(updatedAt)
		if msgID.Valid {
			conv.LastMessage = &conversation.Message{
				ID:             msgID.String,
				ConversationID: conv.ID,
				SenderID:       sender.String,
				Text:           text.String,
				Read:           msgRead.Int64 != 0,
				CreatedAt:      fromNanos(msgCreatedAt.Int64),
			}
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// AppendMessage はメッセージの保存と会話の最終更新日時の更新を1つのトランザクションで行う。
// 最終更新日時は巻き戻さない。
func (s *Store) AppendMessage(ctx context.Context, msg conversation.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = MAX(updated_at, ?) WHERE id = ?`,
		toNanos(msg.CreatedAt), msg.ConversationID,
	)
	if err != nil {
		return fmt.Errorf("会話の更新に失敗: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return conversation.ErrConversationNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, text, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Text, boolToInt(msg.Read), toNanos(msg.CreatedAt),
	); err != nil {
		return fmt.Errorf("メッセージの保存に失敗: %w", err)
	}

	return tx.Commit()
}

// ListMessages は会話のメッセージを送信日時の昇順で返す。
func (s *Store) ListMessages(ctx context.Context, conversationID string, page pagination.Page) ([]conversation.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, text, is_read, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, seq ASC
		LIMIT ? OFFSET ?`,
		conversationID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	msgs := []conversation.Message{}
	for rows.Next() {
		var (
			msg       conversation.Message
			read      int
			createdAt int64
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Text, &read, &createdAt); err != nil {
			return nil, err
		}
		msg.Read = read != 0
		msg.CreatedAt = fromNanos(createdAt)
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// MarkMessagesRead はreaderID以外が送信した未読メッセージを既読にする。
func (s *Store) MarkMessagesRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_read = 1
		WHERE conversation_id = ? AND sender_id <> ? AND is_read = 0`,
		conversationID, readerID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanConversation(row *sql.Row) (conversation.Conversation, error) {
	var (
		conv                 conversation.Conversation
		createdAt, updatedAt int64
	)
	if err := row.Scan(&conv.ID, &conv.Participants[0], &conv.Participants[1], &createdAt, &updatedAt); err != nil {
		return conversation.Conversation{}, err
	}
	conv.CreatedAt = fromNanos(createdAt)
	conv.UpdatedAt = fromNanos(updatedAt)
	return conv, nil
}

package event

import (
	"encoding/json"
	"errors"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypePost は投稿エンティティを表す。
	AggregateTypePost AggregateType = "Post"
	// AggregateTypeComment はコメントエンティティを表す。
	AggregateTypeComment AggregateType = "Comment"
	// AggregateTypeConversation は会話エンティティを表す。
	AggregateTypeConversation AggregateType = "Conversation"
	// AggregateTypeNotification は通知エンティティを表す。
	AggregateTypeNotification AggregateType = "Notification"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeLikeAdded は投稿に「いいね」が追加されたことを表す。
	// 取り消し→再追加のたびに新しいイベントとして配信される。
	TypeLikeAdded Type = "LikeAdded"
	// TypeCommentCreated は投稿にコメントが作成されたことを表す。
	TypeCommentCreated Type = "CommentCreated"
	// TypeNotificationCreated は通知が作成されたことを表す。
	TypeNotificationCreated Type = "NotificationCreated"
	// TypeMessageSent は会話にメッセージが追加されたことを表す。
	TypeMessageSent Type = "MessageSent"
)

// Event はイベントバス上を流れる不変のイベントレコードを表す。
// 配信は少なくとも1回（at-least-once）であり、同じイベントが再配信されることがある。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// LikeAddedData はLikeAddedイベントのデータ。
type LikeAddedData struct {
	// PostID はいいねされた投稿のID。
	PostID string `json:"post_id"`
	// ActorUserID はいいねしたユーザーのID。
	ActorUserID string `json:"actor_user_id"`
}

// Validate は必須フィールドを検証する。
func (d LikeAddedData) Validate() error {
	if d.PostID == "" {
		return errors.New("post_idが空です")
	}
	if d.ActorUserID == "" {
		return errors.New("actor_user_idが空です")
	}
	return nil
}

// CommentCreatedData はCommentCreatedイベントのデータ。
type CommentCreatedData struct {
	// CommentID は作成されたコメントのID。
	CommentID string `json:"comment_id"`
}

// Validate は必須フィールドを検証する。
func (d CommentCreatedData) Validate() error {
	if d.CommentID == "" {
		return errors.New("comment_idが空です")
	}
	return nil
}

// NotificationCreatedData はNotificationCreatedイベントのデータ。
type NotificationCreatedData struct {
	// NotificationID は作成された通知のID。
	NotificationID string `json:"notification_id"`
	// RecipientID は通知先のユーザーID。
	RecipientID string `json:"recipient_id"`
	// Text は通知の本文。
	Text string `json:"text"`
}

// MessageSentData はMessageSentイベントのデータ。
type MessageSentData struct {
	// MessageID は追加されたメッセージのID。
	MessageID string `json:"message_id"`
	// SenderID は送信者のユーザーID。
	SenderID string `json:"sender_id"`
	// RecipientID は会話のもう一方の参加者のユーザーID。
	RecipientID string `json:"recipient_id"`
}

package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New は新しいイベントを生成する。
// dataにはイベント固有のデータ構造体を渡す。JSON形式にシリアライズされる。
// IDは時系列順に並ぶUUIDv7で採番する。
func New(aggregateID string, aggregateType AggregateType, eventType Type, data any) (*Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("イベントデータのシリアライズに失敗: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("イベントIDの採番に失敗: %w", err)
	}

	return &Event{
		ID:            id.String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// NewLikeAdded はLikeAddedイベントを生成する。
func NewLikeAdded(data LikeAddedData) (*Event, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return New(data.PostID, AggregateTypePost, TypeLikeAdded, data)
}

// NewCommentCreated はCommentCreatedイベントを生成する。
func NewCommentCreated(data CommentCreatedData) (*Event, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return New(data.CommentID, AggregateTypeComment, TypeCommentCreated, data)
}

// DecodeData はイベントのDataフィールドを指定された型にデシリアライズする。
func DecodeData[T any](e *Event) (*T, error) {
	var data T
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("イベントデータのデシリアライズに失敗: %w", err)
	}
	return &data, nil
}

// Marshal はイベント全体をJSONにシリアライズする。イベントバスのペイロードとして使用する。
func Marshal(e *Event) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("イベントのシリアライズに失敗: %w", err)
	}
	return b, nil
}

// Unmarshal はイベントバスのペイロードからイベントを復元する。
func Unmarshal(payload []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("イベントのデシリアライズに失敗: %w", err)
	}
	if e.EventType == "" {
		return nil, fmt.Errorf("イベントタイプが空です: id=%s", e.ID)
	}
	return &e, nil
}

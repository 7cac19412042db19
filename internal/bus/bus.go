// Package bus はドメインイベントの配信を担うイベントバスを提供する。
//
// 配信は少なくとも1回（at-least-once）であり、ハンドラーがエラーを返した
// イベントは再配信されうる。プロセス内で同期的に配信する Local と、
// Redis上のasynqキューを経由する AsynqPublisher / AsynqConsumer がある。
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nao1215/relay/pkg/event"
	"github.com/rs/zerolog"
)

// Handler はイベントを処理する。エラーを返すと再配信の対象になる。
type Handler func(ctx context.Context, ev *event.Event) error

// Publisher はイベントをバスに発行する。
type Publisher interface {
	Publish(ctx context.Context, ev *event.Event) error
}

// Subscriber はイベント種別ごとにハンドラーを登録する。
type Subscriber interface {
	Subscribe(eventType event.Type, h Handler)
}

// Local はプロセス内で同期的にイベントを配信するバス。
// Publishはすべてのハンドラーの完了を待ち、失敗したハンドラーのエラーをまとめて返す。
type Local struct {
	mu       sync.RWMutex
	handlers map[event.Type][]Handler
	logger   zerolog.Logger
}

var (
	_ Publisher  = (*Local)(nil)
	_ Subscriber = (*Local)(nil)
)

// NewLocal はLocalを生成する。
func NewLocal(logger zerolog.Logger) *Local {
	return &Local{
		handlers: make(map[event.Type][]Handler),
		logger:   logger,
	}
}

// Subscribe はイベント種別にハンドラーを登録する。
func (b *Local) Subscribe(eventType event.Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Publish はイベントを登録済みのハンドラーへ順に配信する。
// ハンドラーがない種別のイベントは破棄する。
func (b *Local) Publish(ctx context.Context, ev *event.Event) error {
	if ev == nil || ev.EventType == "" {
		return errors.New("イベントタイプが空です")
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[ev.EventType]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.logger.Debug().Str("event_type", string(ev.EventType)).Msg("購読者のいないイベントを破棄しました")
		return nil
	}

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("イベント %s の処理に失敗: %w", ev.ID, err)
	}
	return nil
}

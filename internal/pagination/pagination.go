// Package pagination は一覧取得APIで共通のページ指定と、
// ページ単位で遅延取得するイテレータを提供する。
package pagination

import (
	"context"
	"iter"
)

const (
	// DefaultLimit はLimit未指定時の取得件数。
	DefaultLimit = 50
	// MaxLimit は1ページで取得できる最大件数。
	MaxLimit = 200
)

// Page は一覧取得の範囲を表す。
type Page struct {
	// Limit は取得件数。
	Limit int
	// Offset は読み飛ばす件数。
	Offset int
}

// Normalize はLimitとOffsetを有効な範囲に丸めたPageを返す。
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// FetchFunc は1ページ分の要素を取得する関数。
type FetchFunc[T any] func(ctx context.Context, page Page) ([]T, error)

// Seq はfetchをページ単位で呼び出して要素を順に返すイテレータを生成する。
// 反復のたびに先頭から取得し直すため、何度でも再開できる。
// 取得エラーは (ゼロ値, err) として1度だけ返し、反復を終了する。
func Seq[T any](ctx context.Context, pageSize int, fetch FetchFunc[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		page := Page{Limit: pageSize}.Normalize()
		for {
			items, err := fetch(ctx, page)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
			if len(items) < page.Limit {
				return
			}
			page.Offset += len(items)
		}
	}
}

// Package content は投稿とコメントを参照するための読み取り専用クライアントを提供する。
//
// 投稿とコメントは別サービスが所有しており、通知エンジンは
// 通知先（投稿者）と抜粋（コメント本文）の解決にのみ利用する。
package content

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/nao1215/relay/pkg/httpclient"
)

// Post は投稿を表す。
type Post struct {
	// ID は投稿の一意識別子。
	ID string `json:"id"`
	// AuthorID は投稿者のユーザーID。
	AuthorID string `json:"author_id"`
}

// Comment は投稿へのコメントを表す。
type Comment struct {
	// ID はコメントの一意識別子。
	ID string `json:"id"`
	// PostID はコメント先の投稿ID。
	PostID string `json:"post_id"`
	// AuthorID はコメントしたユーザーのID。
	AuthorID string `json:"author_id"`
	// Content はコメント本文。
	Content string `json:"content"`
}

var (
	// ErrPostNotFound は投稿が存在しない場合のエラー。
	ErrPostNotFound = errors.New("投稿が見つかりません")
	// ErrCommentNotFound はコメントが存在しない場合のエラー。
	ErrCommentNotFound = errors.New("コメントが見つかりません")
)

// Reader は投稿とコメントを取得する。
type Reader interface {
	GetPost(ctx context.Context, id string) (Post, error)
	GetComment(ctx context.Context, id string) (Comment, error)
}

// HTTPReader はコンテンツサービスのHTTP APIで投稿とコメントを取得する。
type HTTPReader struct {
	client *httpclient.Client
}

var _ Reader = (*HTTPReader)(nil)

// NewHTTPReader はHTTPReaderを生成する。
func NewHTTPReader(client *httpclient.Client) *HTTPReader {
	return &HTTPReader{client: client}
}

// GetPost は GET /api/v1/posts/:id で投稿を取得する。
func (r *HTTPReader) GetPost(ctx context.Context, id string) (Post, error) {
	var post Post
	if err := r.client.GetJSON(ctx, "/api/v1/posts/"+url.PathEscape(id), &post); err != nil {
		if errors.Is(err, httpclient.ErrNotFound) {
			return Post{}, ErrPostNotFound
		}
		return Post{}, fmt.Errorf("投稿の取得に失敗: id=%s: %w", id, err)
	}
	if post.AuthorID == "" {
		return Post{}, fmt.Errorf("投稿者が空です: id=%s", id)
	}
	return post, nil
}

// GetComment は GET /api/v1/comments/:id でコメントを取得する。
func (r *HTTPReader) GetComment(ctx context.Context, id string) (Comment, error) {
	var comment Comment
	if err := r.client.GetJSON(ctx, "/api/v1/comments/"+url.PathEscape(id), &comment); err != nil {
		if errors.Is(err, httpclient.ErrNotFound) {
			return Comment{}, ErrCommentNotFound
		}
		return Comment{}, fmt.Errorf("コメントの取得に失敗: id=%s: %w", id, err)
	}
	if comment.PostID == "" || comment.AuthorID == "" {
		return Comment{}, fmt.Errorf("コメントの投稿IDまたは投稿者が空です: id=%s", id)
	}
	return comment, nil
}

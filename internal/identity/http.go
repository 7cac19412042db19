package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/nao1215/relay/pkg/httpclient"
)

// HTTPResolver はユーザーサービスのHTTP APIでユーザー情報を解決する。
type HTTPResolver struct {
	client *httpclient.Client
}

var _ Resolver = (*HTTPResolver)(nil)

// NewHTTPResolver はHTTPResolverを生成する。
func NewHTTPResolver(client *httpclient.Client) *HTTPResolver {
	return &HTTPResolver{client: client}
}

// ResolveUser は GET /api/v1/users/:id でユーザー情報を取得する。
func (r *HTTPResolver) ResolveUser(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, ErrUserNotFound
	}

	var user User
	if err := r.client.GetJSON(ctx, "/api/v1/users/"+url.PathEscape(id), &user); err != nil {
		if errors.Is(err, httpclient.ErrNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("ユーザー情報の取得に失敗: id=%s: %w", id, err)
	}
	if user.ID == "" {
		user.ID = id
	}
	return user, nil
}

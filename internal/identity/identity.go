// Package identity はユーザーIDから表示名などのユーザー情報を解決する。
//
// ユーザーの登録や認証は別サービスの責務であり、
// このパッケージは参照のみを行う。
package identity

import (
	"context"
	"errors"
)

// User は外部のユーザーサービスが管理するユーザーを表す。
type User struct {
	// ID はユーザーの一意識別子。
	ID string `json:"id"`
	// DisplayName は通知本文などに埋め込む表示名。
	DisplayName string `json:"display_name"`
}

// Name は表示名を返す。表示名が空の場合はIDを返す。
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.ID
}

// ErrUserNotFound はユーザーが存在しない場合のエラー。
var ErrUserNotFound = errors.New("ユーザーが見つかりません")

// Resolver はユーザーIDからユーザー情報を解決する。
type Resolver interface {
	ResolveUser(ctx context.Context, id string) (User, error)
}

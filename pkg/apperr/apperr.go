// Package apperr はドメイン層が返す型付きエラーを提供する。
//
// エラーは Kind（入力不正・未検出・権限なし等）で分類され、
// 境界層（HTTP API）は Kind からステータスコードを決定する。
package apperr

import (
	"errors"
	"net/http"
)

// Kind はエラーの分類を表す。
type Kind int

const (
	// KindInternal は分類されない内部エラーを表す。
	KindInternal Kind = iota
	// KindInvalidInput は入力値の検証エラーを表す（空のテキスト、同一ユーザー同士の会話など）。
	KindInvalidInput
	// KindNotFound は対象リソースが存在しないことを表す。
	KindNotFound
	// KindForbidden は操作主体に権限がないことを表す（会話の参加者でない等）。
	KindForbidden
	// KindIdentityUnresolvable はユーザー情報の解決に失敗したことを表す。
	// 通知エンジン内部でのみ発生し、呼び出し元には返さない。
	KindIdentityUnresolvable
)

// String はKindの名前を返す。
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindIdentityUnresolvable:
		return "identity_unresolvable"
	default:
		return "internal"
	}
}

// Error はKindとエラーコードを持つアプリケーションエラー。
type Error struct {
	// Kind はエラーの分類。
	Kind Kind
	// Code は機械可読なエラーコード（例: "empty_text"）。
	Code string
	// Message は人間向けのエラーメッセージ。
	Message string
	// Err は原因となったエラー。
	Err error
}

// New は新しいアプリケーションエラーを生成する。
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Error はエラーメッセージを返す。
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap は原因となったエラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// Is はKindとCodeが一致する場合にtrueを返す。
// Wrapで原因を付与したエラーも元のセンチネルと一致する。
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// Wrap はセンチネルエラーに原因を付与したコピーを返す。
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: cause}
}

// KindOf はエラーチェーンからKindを取り出す。アプリケーションエラーでなければKindInternalを返す。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf はエラーチェーンからエラーコードを取り出す。
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// HTTPStatus はエラーに対応するHTTPステータスコードを返す。
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

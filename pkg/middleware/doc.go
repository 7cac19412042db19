// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// JWT認証トークンの検証、zerologによるアクセスログ、パニックリカバリ、
// ユーザー単位のレート制限を含む。
package middleware

// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// ユーザー情報を管理するアイデンティティサービスや、投稿・コメントを管理する
// コンテンツサービスのAPIを呼び出す際に使用する。
// 404はErrNotFoundとして型付きで返し、呼び出し側が「存在しない」と
// 「通信に失敗した」を区別できるようにする。
package httpclient

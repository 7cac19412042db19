// Package messaging はrelayサービスのHTTP境界を提供する。
//
// 会話・メッセージ・通知のREST API、WebSocketによるリアルタイム配信、
// 上流サービスからのイベント受け口（内部API）を1つのGinルーターで公開する。
// ドメインエラーは apperr の分類に従ってHTTPステータスへ変換する。
//
// 主なエンドポイント:
//   - POST /api/v1/conversations: 相手ユーザーとの会話を開始（既存なら同じ会話を返す）
//   - GET  /api/v1/conversations: 参加中の会話一覧（最終更新の新しい順）
//   - POST /api/v1/conversations/:id/messages: メッセージ送信
//   - GET  /api/v1/notifications: 通知一覧（新しい順）
//   - PUT  /api/v1/notifications/:id/read: 通知を既読にする
//   - POST /api/v1/internal/events: LikeAdded/CommentCreatedイベントの投入
//   - GET  /ws: リアルタイム配信
package messaging

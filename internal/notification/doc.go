// Package notification はソーシャルイベントからユーザー向け通知を生成し、
// 受信者ごとの通知一覧と既読管理を提供する。
//
// Engine はイベントバスから「いいね追加」「コメント作成」を受け取り、
// 自分自身への操作を除いて投稿者宛ての通知を1件作成する。
// 投稿・コメント・ユーザーの解決に失敗したイベントは通知を作らずに
// スキップし、エラーとしては扱わない。
// Inbox は受信者本人だけが通知を参照・既読化できるようにする。
package notification

// Package conversation は2者間の会話とメッセージスレッドを管理する。
//
// Directory はユーザーの組ごとに高々1つの会話を払い出し、
// 最終更新日時の降順で会話一覧を返す。
// Thread は会話へのメッセージ追加と時系列順の一覧取得を担う。
// 永続化は Repository インターフェースを通じて行い、
// 同じ組に対する会話の一意性はストレージの一意制約で保証する。
package conversation

package notification

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MaxTextLength は通知本文の最大文字数。
	MaxTextLength = 255
	// ExcerptLength はコメント通知に含めるコメント本文の最大文字数。
	ExcerptLength = 80
)

// likeText はいいね通知の本文を返す。
func likeText(actorName string) string {
	const format = "%s liked your post"
	return fmt.Sprintf(format, fitName(actorName, format, ""))
}

// commentText はコメント通知の本文を返す。コメント本文は先頭ExcerptLength文字のみ含める。
// MaxTextLengthを超える場合はユーザー名を切り詰め、抜粋は削らない。
func commentText(actorName, content string) string {
	const format = "%s commented on your post: \"%s\""
	excerpt := clip(content, ExcerptLength)
	return fmt.Sprintf(format, fitName(actorName, format, excerpt), excerpt)
}

// fitName は本文がMaxTextLength文字に収まるようにユーザー名を切り詰める。
// formatの書式指定子（%s）2文字分はユーザー名と抜粋で置き換わるため差し引く。
func fitName(name, format, excerpt string) string {
	placeholders := 2 * strings.Count(format, "%s")
	fixed := utf8.RuneCountInString(format) - placeholders + utf8.RuneCountInString(excerpt)
	return clip(name, max(MaxTextLength-fixed, 0))
}

// postURL は投稿の相対パスを返す。
func postURL(postID string) string {
	return fmt.Sprintf("/posts/%s/", postID)
}

// clip はsの先頭n文字（ルーン単位）を返す。省略記号は付けない。
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

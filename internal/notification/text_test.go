package notification

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestClip(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", clip("abc", 5))
	assert.Equal(t, "ab", clip("abc", 2))
	assert.Equal(t, "", clip("abc", 0))
	assert.Equal(t, "あい", clip("あいうえお", 2), "ルーン単位で切り詰める")
}

func TestCommentText(t *testing.T) {
	t.Parallel()

	t.Run("200文字のコメントは先頭80文字だけ含める", func(t *testing.T) {
		t.Parallel()

		content := strings.Repeat("x", 80) + strings.Repeat("y", 120)
		got := commentText("bob", content)
		assert.Equal(t, `bob commented on your post: "`+strings.Repeat("x", 80)+`"`, got)
	})

	t.Run("マルチバイト文字も80文字で切る", func(t *testing.T) {
		t.Parallel()

		content := strings.Repeat("猫", 100)
		got := commentText("bob", content)
		assert.Equal(t, `bob commented on your post: "`+strings.Repeat("猫", 80)+`"`, got)
	})

	t.Run("短いコメントはそのまま含める", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, `bob commented on your post: "nice"`, commentText("bob", "nice"))
	})

	t.Run("本文全体はMaxTextLength文字以内", func(t *testing.T) {
		t.Parallel()

		got := commentText(strings.Repeat("n", 300), "nice")
		assert.Equal(t, MaxTextLength, utf8.RuneCountInString(got))
	})

	t.Run("長いユーザー名でも抜粋は80文字のまま", func(t *testing.T) {
		t.Parallel()

		got := commentText(strings.Repeat("N", 200), strings.Repeat("x", 200))
		assert.Equal(t, MaxTextLength, utf8.RuneCountInString(got))
		assert.True(t, strings.HasSuffix(got, ` commented on your post: "`+strings.Repeat("x", 80)+`"`), got)
		assert.True(t, strings.HasPrefix(got, "NNN"))
	})
}

func TestLikeTextAndURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "bob liked your post", likeText("bob"))

	long := likeText(strings.Repeat("N", 300))
	assert.Equal(t, MaxTextLength, utf8.RuneCountInString(long))
	assert.True(t, strings.HasSuffix(long, "N liked your post"), long)
	assert.Equal(t, "/posts/p1/", postURL("p1"))
}

package content

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nao1215/relay/pkg/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContentServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/posts/p1":
			_, _ = w.Write([]byte(`{"id":"p1","author_id":"alice"}`))
		case "/api/v1/posts/orphan":
			_, _ = w.Write([]byte(`{"id":"orphan"}`))
		case "/api/v1/comments/c1":
			_, _ = w.Write([]byte(`{"id":"c1","post_id":"p1","author_id":"bob","content":"nice"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPReader(t *testing.T) {
	t.Parallel()

	r := NewHTTPReader(httpclient.New(newContentServer(t).URL))
	ctx := context.Background()

	t.Run("投稿を取得できる", func(t *testing.T) {
		t.Parallel()

		post, err := r.GetPost(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, Post{ID: "p1", AuthorID: "alice"}, post)
	})

	t.Run("存在しない投稿はErrPostNotFound", func(t *testing.T) {
		t.Parallel()

		_, err := r.GetPost(ctx, "missing")
		assert.ErrorIs(t, err, ErrPostNotFound)
	})

	t.Run("投稿者のない投稿はエラー", func(t *testing.T) {
		t.Parallel()

		_, err := r.GetPost(ctx, "orphan")
		assert.Error(t, err)
	})

	t.Run("コメントを取得できる", func(t *testing.T) {
		t.Parallel()

		comment, err := r.GetComment(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, Comment{ID: "c1", PostID: "p1", AuthorID: "bob", Content: "nice"}, comment)
	})

	t.Run("存在しないコメントはErrCommentNotFound", func(t *testing.T) {
		t.Parallel()

		_, err := r.GetComment(ctx, "missing")
		assert.ErrorIs(t, err, ErrCommentNotFound)
	})
}

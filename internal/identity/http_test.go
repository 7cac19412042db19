package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nao1215/relay/pkg/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/users/alice":
			_ = json.NewEncoder(w).Encode(User{ID: "alice", DisplayName: "Alice"})
		case "/api/v1/users/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPResolver_ResolveUser(t *testing.T) {
	t.Parallel()

	srv := newUserServer(t)
	r := NewHTTPResolver(httpclient.New(srv.URL))

	t.Run("存在するユーザーを解決できる", func(t *testing.T) {
		t.Parallel()

		user, err := r.ResolveUser(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, User{ID: "alice", DisplayName: "Alice"}, user)
	})

	t.Run("404はErrUserNotFoundになる", func(t *testing.T) {
		t.Parallel()

		_, err := r.ResolveUser(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("空のIDはErrUserNotFoundになる", func(t *testing.T) {
		t.Parallel()

		_, err := r.ResolveUser(context.Background(), "")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("5xxはErrUserNotFound以外のエラーになる", func(t *testing.T) {
		t.Parallel()

		_, err := r.ResolveUser(context.Background(), "broken")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUserNotFound)
	})
}

func TestUser_Name(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Alice", User{ID: "alice", DisplayName: "Alice"}.Name())
	assert.Equal(t, "alice", User{ID: "alice"}.Name())
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Allow(t *testing.T) {
	t.Parallel()

	t.Run("バースト幅を超えると拒否される", func(t *testing.T) {
		t.Parallel()

		rl := NewRateLimiter(1, 2)
		assert.True(t, rl.Allow("user-1"))
		assert.True(t, rl.Allow("user-1"))
		assert.False(t, rl.Allow("user-1"))
	})

	t.Run("キーごとに独立して制限される", func(t *testing.T) {
		t.Parallel()

		rl := NewRateLimiter(1, 1)
		assert.True(t, rl.Allow("user-1"))
		assert.False(t, rl.Allow("user-1"))
		assert.True(t, rl.Allow("user-2"))
	})

	t.Run("時間経過でトークンが補充される", func(t *testing.T) {
		t.Parallel()

		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		rl := NewRateLimiter(60, 1)
		rl.now = func() time.Time { return now }

		assert.True(t, rl.Allow("user-1"))
		assert.False(t, rl.Allow("user-1"))

		now = now.Add(time.Second)
		assert.True(t, rl.Allow("user-1"))
	})

	t.Run("使われていないエントリは掃除される", func(t *testing.T) {
		t.Parallel()

		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		rl := NewRateLimiter(60, 1)
		rl.now = func() time.Time { return now }

		rl.Allow("idle")
		now = now.Add(rl.idleTTL + time.Minute)
		rl.Allow("active")

		rl.mu.Lock()
		defer rl.mu.Unlock()
		assert.NotContains(t, rl.limiters, "idle")
		assert.Contains(t, rl.limiters, "active")
	})
}

func TestRateLimiter_Middleware(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, 1)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(contextKeyUserID, c.GetHeader("X-Test-User"))
		c.Next()
	})
	router.Use(rl.Middleware())
	router.POST("/send", func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	send := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/send", nil)
		req.Header.Set("X-Test-User", user)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusCreated, send("alice").Code)

	w := send("alice")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusCreated, send("bob").Code)
}

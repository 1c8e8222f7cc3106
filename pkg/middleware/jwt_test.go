package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testPrincipal string

func (p testPrincipal) PrincipalID() string { return string(p) }

// staticAuth は "Bearer good" のみを受け付ける。
func staticAuth(_ context.Context, authorization string) (Principal, error) {
	if authorization == "Bearer good" {
		return testPrincipal("user-123"), nil
	}
	return nil, errors.New("invalid")
}

func newAuthRouter(auth Authenticator, onError ErrorHandler) *gin.Engine {
	router := gin.New()
	router.GET("/me", JWTAuth(auth, onError), func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "principal missing"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"principal": p.PrincipalID(), "user_id": GetUserID(c)})
	})
	return router
}

func TestJWTAuth(t *testing.T) {
	t.Parallel()

	t.Run("有効なトークンで利用者がコンテキストに設定されること", func(t *testing.T) {
		t.Parallel()

		router := newAuthRouter(staticAuth, nil)
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer good")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"principal":"user-123","user_id":"user-123"}`, w.Body.String())
	})

	t.Run("検証に失敗した場合は既定で401を返すこと", func(t *testing.T) {
		t.Parallel()

		router := newAuthRouter(staticAuth, nil)
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer bad")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"認証が必要です"}`, w.Body.String())
	})

	t.Run("エラーハンドラーが指定された場合はそれを使うこと", func(t *testing.T) {
		t.Parallel()

		var got error
		onError := func(c *gin.Context, err error) {
			got = err
			c.JSON(http.StatusTeapot, gin.H{"error": "custom"})
		}
		router := newAuthRouter(staticAuth, onError)
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusTeapot, w.Code)
		assert.EqualError(t, got, "invalid")
	})

	t.Run("エラーなしでnilの利用者を返した場合も拒否すること", func(t *testing.T) {
		t.Parallel()

		nilAuth := func(context.Context, string) (Principal, error) { return nil, nil }
		router := newAuthRouter(nilAuth, nil)
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer good")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestGetUserID_未認証では空文字を返すこと(t *testing.T) {
	t.Parallel()

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, GetUserID(c))
	_, ok := GetPrincipal(c)
	assert.False(t, ok)
}

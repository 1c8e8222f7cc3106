package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		allowed     []string
		method      string
		origin      string
		wantStatus  int
		wantOrigin  string
		wantHandled bool
	}{
		{
			name:    "許可されたオリジンにはCORSヘッダーを設定すること",
			allowed: []string{"http://localhost:3000", "https://example.com"},
			method:  http.MethodGet, origin: "https://example.com",
			wantStatus: http.StatusOK, wantOrigin: "https://example.com", wantHandled: true,
		},
		{
			name:    "許可されていないオリジンにはCORSヘッダーを設定しないこと",
			allowed: []string{"http://localhost:3000"},
			method:  http.MethodGet, origin: "https://evil.example.com",
			wantStatus: http.StatusOK, wantHandled: true,
		},
		{
			name:    "Originヘッダーがなければ設定しないこと",
			allowed: []string{"*"},
			method:  http.MethodGet,
			wantStatus: http.StatusOK, wantHandled: true,
		},
		{
			name:    "ワイルドカードはすべてのオリジンを許可すること",
			allowed: []string{"*"},
			method:  http.MethodGet, origin: "https://campus.example.jp",
			wantStatus: http.StatusOK, wantOrigin: "https://campus.example.jp", wantHandled: true,
		},
		{
			name:    "プリフライトは204で中断しハンドラーを呼ばないこと",
			allowed: []string{"http://localhost:3000"},
			method:  http.MethodOptions, origin: "http://localhost:3000",
			wantStatus: http.StatusNoContent, wantOrigin: "http://localhost:3000",
		},
		{
			name:    "許可されていないオリジンのプリフライトも204で中断すること",
			allowed: []string{"http://localhost:3000"},
			method:  http.MethodOptions, origin: "https://evil.example.com",
			wantStatus: http.StatusNoContent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handled := false
			router := gin.New()
			router.Use(CORS(tt.allowed))
			router.Handle(tt.method, "/test", func(c *gin.Context) {
				handled = true
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(tt.method, "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantHandled, handled)
			if tt.wantOrigin != "" {
				assert.Equal(t, "GET, POST, PUT, PATCH, DELETE, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
				assert.Equal(t, "Authorization, Content-Type, X-Admin-Token", w.Header().Get("Access-Control-Allow-Headers"))
				assert.Equal(t, "Origin", w.Header().Get("Vary"))
			}
		})
	}
}

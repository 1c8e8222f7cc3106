package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// コンテキストキー
const (
	contextKeyPrincipal = "principal"
	contextKeyUserID    = "user_id"
)

// Principal は認証済みの利用者。
type Principal interface {
	PrincipalID() string
}

// Authenticator はAuthorizationヘッダーの値を検証し、利用者を返す。
// 検証に失敗した場合はエラーを返す。
type Authenticator func(ctx context.Context, authorization string) (Principal, error)

// ErrorHandler は認証失敗時のレスポンスを書き込む。
type ErrorHandler func(c *gin.Context, err error)

// JWTAuth はBearerトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストに "principal" と "user_id" を設定する。
// onErrorがnilの場合は401と固定のメッセージを返す。
func JWTAuth(authenticate Authenticator, onError ErrorHandler) gin.HandlerFunc {
	if onError == nil {
		onError = func(c *gin.Context, _ error) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "認証が必要です"})
		}
	}

	return func(c *gin.Context) {
		p, err := authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err == nil && p == nil {
			err = errNoPrincipal
		}
		if err != nil {
			onError(c, err)
			c.Abort()
			return
		}

		c.Set(contextKeyPrincipal, p)
		c.Set(contextKeyUserID, p.PrincipalID())
		c.Next()
	}
}

type authError string

func (e authError) Error() string { return string(e) }

const errNoPrincipal = authError("利用者を特定できません")

// GetPrincipal はGinコンテキストから認証済みの利用者を取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetPrincipal(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(contextKeyPrincipal)
	if !ok {
		return nil, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get(contextKeyUserID)
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/campusqa/internal/apperror"
)

// renderError はエラーをHTTPレスポンスに変換する。内部の原因はログにのみ出力する。
func (s *Server) renderError(c *gin.Context, err error) {
	e, ok := apperror.As(err)
	if !ok {
		e = apperror.Unexpected("内部サーバーエラーが発生しました", err)
	}

	status := e.Kind.HTTPStatus()
	ctx := c.Request.Context()
	switch {
	case status >= http.StatusInternalServerError:
		s.logger.Error(ctx, e.Message, "kind", e.Kind.String(), "error", err)
	case e.Err != nil:
		s.logger.Debug(ctx, e.Message, "kind", e.Kind.String(), "reason", string(e.Reason), "error", e.Err)
	}

	c.AbortWithStatusJSON(status, gin.H{"error": e.Message})
}

// badRequest はリクエストボディやクエリの解釈に失敗した場合のレスポンスを返す。
func (s *Server) badRequest(c *gin.Context, err error) {
	s.renderError(c, apperror.Wrap(apperror.KindInvalidInput, "リクエストの形式が不正です", err))
}

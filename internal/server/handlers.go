package server

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/campusqa/internal/apperror"
	"github.com/nao1215/campusqa/internal/auth"
	"github.com/nao1215/campusqa/internal/model"
	"github.com/nao1215/campusqa/internal/profile"
	"github.com/nao1215/campusqa/internal/qa"
	"github.com/nao1215/campusqa/pkg/middleware"
)

// headerAdminToken は内部APIの認証ヘッダー。
const headerAdminToken = "X-Admin-Token"

// pageQuery はページングのクエリパラメータ。
type pageQuery struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

// principal は認証済みの利用者を取得する。JWTAuthの後でのみ使用する。
func principal(c *gin.Context) *model.Principal {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		return nil
	}
	mp, _ := p.(*model.Principal)
	return mp
}

// handleRegister はユーザー登録を処理する。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in auth.RegisterInput
		if err := c.ShouldBindJSON(&in); err != nil {
			s.badRequest(c, err)
			return
		}

		sess, err := s.deps.Gateway.Register(c.Request.Context(), in)
		if err != nil {
			s.renderError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"message": "ユーザーを登録しました",
			"token":   sess.Token,
			"user":    sess.User,
		})
	}
}

// handleLogin はログインを処理する。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in auth.LoginInput
		if err := c.ShouldBindJSON(&in); err != nil {
			s.badRequest(c, err)
			return
		}

		sess, err := s.deps.Gateway.Login(c.Request.Context(), in)
		if err != nil {
			s.renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"token": sess.Token,
			"user":  sess.User,
		})
	}
}

func (s *Server) handleGetOwnProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := s.deps.Profiles.GetOwn(c.Request.Context(), principal(c))
		if err != nil {
			s.renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": p})
	}
}

func (s *Server) handleUpdateProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in profile.UpdateInput
		if err := c.ShouldBindJSON(&in); err != nil {
			s.badRequest(c, err)
			return
		}

		p, err := s.deps.Profiles.Update(c.Request.Context(), principal(c), in)
		if err != nil {
			s.renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

func (s *Server) handleRequestAvatarUpload() gin.HandlerFunc {
	return func(c *gin.Context) {
		up, err := s.deps.Profiles.RequestAvatarUpload(c.Request.Context(), principal(c))
		if err != nil {
			s.renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, up)
	}
}

func (s *Server) handleGetPublicProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := s.deps.Profiles.GetPublic(c.Request.Context(), c.Param("id"))
		if err != nil {
			s.renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

func (s *Server) handleListQuestionsByUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q pageQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			s.badRequest(c, err)
			return
		}

		page, err := s.deps.Coordinator.ListQuestionsByUser(c.Request.Context(), c.Param("id"), q.Page, q.Limit)
		if err != nil {
			s.renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

// handleListQuestions は質問一覧を返す。
// クエリパラメータ: search, university, major, tag, sort, page, limit
func (s *Server) handleListQuestions() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in qa.ListQuestionsInput
		if err := c.ShouldBindQuery(&in); err != nil {
			s.badRequest(c, err)
			return
		}

		page, err := s.deps.Coordinator.ListQuestions(c.Request.Context(), in)
		if err != nil {
			s.renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

// handleGetQuestion は質問を返す。取得のたびに閲覧数が1増える。
func (s *Server) handleGetQuestion() gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := s.deps.Coordinator.GetQuestion(c.Request.Context(), c.Param("id"))
		if err != nil {
			s.renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, q)
	}
}

func (s *Server) handleCreateQuestion() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in qa.CreateQuestionInput
		if err := c.ShouldBindJSON(&in); err != nil {
			s.badRequest(c, err)
			return
		}

		q, err := s.deps.Coordinator.CreateQuestion(c.Request.Context(), principal(c), in)
		if err != nil {
			s.renderError(c, err)
			return
		}
		c.JSON(http.StatusCreated, q)
	}
}

func (s *Server) handleUpdateQuestion() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in qa.UpdateQuestionInput
		if err := c.ShouldBindJSON(&in); err != nil {
			s.badRequest(c, err)
			return
		}

		q, err := s.deps.Coordinator.UpdateQuestion(c.Request.Context(), principal(c), c.Param("id"), in)
		if err != nil {
			s.renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, q)
	}
}

func (s *Server) handleDeleteQuestion() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.deps.Coordinator.DeleteQuestion(c.Request.Context(), principal(c), c.Param("id")); err != nil {
			s.renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "質問を削除しました"})
	}
}

func (s *Server) handleListAnswers() gin.HandlerFunc {
	return func(c *gin.Context) {
		answers, err := s.deps.Coordinator.ListAnswersByQuestion(c.Request.Context(), c.Param("questionId"))
		if err != nil {
			s.renderError(c, err)
			return
		}
		if answers == nil {
			answers = []*model.Answer{}
		}
		c.JSON(http.StatusOK, answers)
	}
}

func (s *Server) handleCreateAnswer() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in qa.CreateAnswerInput
		if err := c.ShouldBindJSON(&in); err != nil {
			s.badRequest(c, err)
			return
		}

		a, err := s.deps.Coordinator.CreateAnswer(c.Request.Context(), principal(c), in)
		if err != nil {
			s.renderError(c, err)
			return
		}
		c.JSON(http.StatusCreated, a)
	}
}

// requireAdmin は管理トークンを検証する。
func (s *Server) requireAdmin() gin.HandlerFunc {
	want := []byte(s.deps.AdminToken)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(headerAdminToken))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			s.renderError(c, apperror.Unauthenticated(apperror.ReasonMissingCredential, "管理トークンが無効です"))
			return
		}
		c.Next()
	}
}

// handleReconcile は修復パスを実行し、結果を返す。
func (s *Server) handleReconcile() gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := s.deps.Reconciler.RunOnce(c.Request.Context())
		if err != nil {
			s.renderError(c, apperror.Unexpected("修復パスに失敗しました", err))
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// Package server はキャンパスQ&AのHTTP APIを提供する。
//
// ルーティングと入出力の変換のみを担当し、認証・整合性の維持は
// auth、qa、profile、reconcileの各パッケージに委ねる。
// エラーは常に {"error": "<メッセージ>"} の形式で返す。
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/campusqa/internal/auth"
	"github.com/nao1215/campusqa/internal/logging"
	"github.com/nao1215/campusqa/internal/profile"
	"github.com/nao1215/campusqa/internal/qa"
	"github.com/nao1215/campusqa/internal/reconcile"
	"github.com/nao1215/campusqa/pkg/middleware"
)

// ShutdownTimeout はグレースフルシャットダウンの待ち時間。
const ShutdownTimeout = 10 * time.Second

// Deps はサーバーが依存するサービス。
type Deps struct {
	Gateway     *auth.Gateway
	Coordinator *qa.Coordinator
	Profiles    *profile.Service
	// Reconciler がnilまたはAdminTokenが空の場合、内部APIは登録しない。
	Reconciler *reconcile.Reconciler
	Logger     logging.Logger
	// CORSOrigins はCORSで許可するオリジン。
	CORSOrigins []string
	// AdminToken は内部APIの認証トークン。
	AdminToken string
	// Health はストアの疎通確認。nilの場合は常に正常とする。
	Health func(ctx context.Context) error
}

// Server はHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	deps   Deps
	logger logging.Logger
}

// New はルーティングを設定したサーバーを生成する。
func New(deps Deps) *Server {
	router := gin.New()
	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORS(deps.CORSOrigins))

	s := &Server{
		router: router,
		deps:   deps,
		logger: deps.Logger.With("component", "server"),
	}
	s.setupRoutes()
	return s
}

// Handler はHTTPハンドラーを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルに停止する。
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		s.logger.Info(ctx, "HTTPサーバーを起動します", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	s.logger.Info(shutdownCtx, "HTTPサーバーを停止します")
	return srv.Shutdown(shutdownCtx)
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	requireAuth := middleware.JWTAuth(s.authenticate, s.renderError)

	v1 := s.router.Group("/api/v1")

	// 認証（認証不要）
	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/register", s.handleRegister())
		authGroup.POST("/login", s.handleLogin())
		authGroup.PATCH("", s.handleLogin())
	}

	// プロフィール
	profileGroup := v1.Group("/profile", requireAuth)
	{
		profileGroup.GET("", s.handleGetOwnProfile())
		profileGroup.PUT("", s.handleUpdateProfile())
		profileGroup.POST("/avatar", s.handleRequestAvatarUpload())
	}

	// ユーザー（公開）
	v1.GET("/users/:id", s.handleGetPublicProfile())
	v1.GET("/users/:id/questions", s.handleListQuestionsByUser())

	// 質問
	v1.GET("/questions", s.handleListQuestions())
	v1.GET("/questions/:id", s.handleGetQuestion())
	v1.POST("/questions", requireAuth, s.handleCreateQuestion())
	v1.PUT("/questions/:id", requireAuth, s.handleUpdateQuestion())
	v1.DELETE("/questions/:id", requireAuth, s.handleDeleteQuestion())

	// 回答
	v1.GET("/answers/:questionId", s.handleListAnswers())
	v1.POST("/answers", requireAuth, s.handleCreateAnswer())

	// 内部API
	if s.deps.Reconciler != nil && s.deps.AdminToken != "" {
		v1.POST("/internal/reconcile", s.requireAdmin(), s.handleReconcile())
	}

	// ヘルスチェック
	s.router.GET("/health", s.handleHealth())
}

// authenticate はJWTAuthミドルウェア用にGatewayの認証結果を変換する。
func (s *Server) authenticate(ctx context.Context, authorization string) (middleware.Principal, error) {
	p, err := s.deps.Gateway.Authenticate(ctx, authorization)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.Health != nil {
			if err := s.deps.Health(c.Request.Context()); err != nil {
				s.logger.Error(c.Request.Context(), "ヘルスチェックに失敗しました", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "campusqa"})
	}
}

// Package app は設定からストアと各サービスを組み立て、プロセスのライフサイクルを管理する。
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/campusqa/internal/auth"
	"github.com/nao1215/campusqa/internal/avatar"
	"github.com/nao1215/campusqa/internal/config"
	"github.com/nao1215/campusqa/internal/logging"
	"github.com/nao1215/campusqa/internal/profile"
	"github.com/nao1215/campusqa/internal/qa"
	"github.com/nao1215/campusqa/internal/reconcile"
	"github.com/nao1215/campusqa/internal/server"
	"github.com/nao1215/campusqa/internal/store"
	"github.com/nao1215/campusqa/internal/store/memstore"
	"github.com/nao1215/campusqa/internal/store/sqlstore"
	"github.com/nao1215/campusqa/pkg/migration"
)

// App は組み立て済みのアプリケーション。
type App struct {
	config     *config.Config
	logger     logging.Logger
	store      store.Store
	health     func(ctx context.Context) error
	reconciler *reconcile.Reconciler
	server     *server.Server
}

// New は設定に従ってストアを開き、サービスを組み立てる。
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	s, health, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var avatars avatar.Presigner
	if cfg.S3.Enabled() {
		p, err := avatar.NewS3Presigner(ctx, cfg.S3)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("S3クライアントの初期化に失敗: %w", err)
		}
		avatars = p
	}

	gateway := auth.NewGateway(s, auth.NewSigner(cfg.JWTSecret), auth.NewBcryptHasher(cfg.BcryptCost), logger.With("component", "auth"))
	coordinator := qa.NewCoordinator(s, logger.With("component", "qa"))
	profiles := profile.NewService(s, avatars, logger.With("component", "profile"))
	reconciler := reconcile.New(s, logger.With("component", "reconcile"), cfg.ReconcileInterval)

	srv := server.New(server.Deps{
		Gateway:     gateway,
		Coordinator: coordinator,
		Profiles:    profiles,
		Reconciler:  reconciler,
		Logger:      logger,
		CORSOrigins: cfg.CORSOrigins,
		AdminToken:  cfg.AdminToken,
		Health:      health,
	})

	return &App{
		config:     cfg,
		logger:     logger,
		store:      s,
		health:     health,
		reconciler: reconciler,
		server:     srv,
	}, nil
}

// OpenStore は設定されたドライバのストアを開く。
// 返す関数はストアの疎通確認に使用する。
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, func(context.Context) error, error) {
	switch cfg.DBDriver {
	case "memory":
		return memstore.New(), nil, nil
	case "sqlite", "postgres":
		s, err := sqlstore.Open(ctx, sqlstore.Options{
			Dialect: migration.Dialect(cfg.DBDriver),
			DSN:     cfg.DatabaseDSN,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("ストアの初期化に失敗: %w", err)
		}
		return s, s.DB().PingContext, nil
	default:
		return nil, nil, fmt.Errorf("未対応のDB_DRIVERです: %q", cfg.DBDriver)
	}
}

// Run はSIGINT/SIGTERMを受け取るまでHTTPサーバーと修復パスを実行する。
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.logger.Info(ctx, "サービスを起動します", "env", a.config.Env, "db_driver", a.config.DBDriver)

	a.reconciler.Start(ctx)
	defer a.reconciler.Stop()

	return a.server.Run(ctx, a.config.Addr())
}

// Reconcile は修復パスを1回だけ実行する。
func (a *App) Reconcile(ctx context.Context) (*reconcile.Report, error) {
	return a.reconciler.RunOnce(ctx)
}

// Close はストアを閉じる。
func (a *App) Close() error {
	return a.store.Close()
}

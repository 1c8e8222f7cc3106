// キャンパスQ&Aサービスのエントリポイント。
// 認証、質問・回答、プロフィールのHTTP APIを提供し、
// バックグラウンドで集計値の修復パスを定期実行する。
package main

import (
	"context"
	"log"
	"os"

	"github.com/nao1215/campusqa/internal/app"
	"github.com/nao1215/campusqa/internal/config"
	"github.com/nao1215/campusqa/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "初期化に失敗しました", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		logger.Error(ctx, "サービスが異常終了しました", "error", err)
		a.Close()
		os.Exit(1)
	}
	logger.Info(ctx, "サービスを停止しました")
}

// 集計値の修復パスを1回だけ実行するコマンド。
// 修復ジャーナルの再適用、孤立した回答の削除、全カウンタの再計算を行い、
// 結果をJSONで標準出力に書き出す。
//
// -remote を指定した場合はストアを直接開かず、稼働中のサービスの内部APIを
// ADMIN_TOKEN で呼び出す。
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/nao1215/campusqa/internal/app"
	"github.com/nao1215/campusqa/internal/config"
	"github.com/nao1215/campusqa/internal/logging"
	"github.com/nao1215/campusqa/internal/reconcile"
	"github.com/nao1215/campusqa/pkg/httpclient"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(stderr)
	remote := fs.String("remote", "", "稼働中のサービスのベースURL（例: http://localhost:8080）")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗: %w", err)
	}
	// 標準出力は結果のJSONに使う
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, stderr)

	var report *reconcile.Report
	if *remote != "" {
		report, err = runRemote(ctx, *remote, cfg.AdminToken)
	} else {
		report, err = runLocal(ctx, cfg, logger)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func runLocal(ctx context.Context, cfg *config.Config, logger logging.Logger) (*reconcile.Report, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("初期化に失敗: %w", err)
	}
	defer a.Close()

	report, err := a.Reconcile(ctx)
	if err != nil {
		return nil, fmt.Errorf("修復パスに失敗: %w", err)
	}
	return report, nil
}

func runRemote(ctx context.Context, baseURL, adminToken string) (*reconcile.Report, error) {
	if adminToken == "" {
		return nil, errors.New("-remote にはADMIN_TOKENの設定が必要です")
	}
	client := httpclient.New(baseURL,
		httpclient.WithHeader("X-Admin-Token", adminToken),
		httpclient.WithTimeout(5*time.Minute),
		httpclient.WithRetry(func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(time.Second))
		}),
	)

	var report reconcile.Report
	if err := client.PostJSON(ctx, "/api/v1/internal/reconcile", nil, &report); err != nil {
		return nil, fmt.Errorf("修復パスの呼び出しに失敗: %w", err)
	}
	return &report, nil
}

// Package logging はプロジェクト全体で使用する構造化ロガーのインターフェースを定義する。
//
// 実装はlog/slogをラップする。可変長引数はキーと値のペアとして解釈される。
//
//	logger.Info(ctx, "サーバーを起動します", "addr", addr)
package logging

import "context"

// Logger はコンテキスト対応の構造化ロガー。
type Logger interface {
	// Debug はデバッグ用のメッセージを出力する。
	Debug(ctx context.Context, msg string, args ...any)
	// Info は情報メッセージを出力する。
	Info(ctx context.Context, msg string, args ...any)
	// Warn は処理は継続できるが注意が必要な事象を出力する。
	Warn(ctx context.Context, msg string, args ...any)
	// Error は失敗を出力する。
	Error(ctx context.Context, msg string, args ...any)
	// With は指定したキーと値を常に含む子ロガーを返す。
	With(args ...any) Logger
}

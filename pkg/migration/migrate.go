// Package migration はSQLデータベースのスキーママイグレーションを管理する。
// embed.FSからgoose形式のSQLファイルを読み込み、未適用のものだけを順に適用する。
// ファイル名形式: 00001_description.sql（-- +goose Up / -- +goose Down）
package migration

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

// Dialect はマイグレーション対象のSQL方言。
type Dialect string

const (
	// SQLite はSQLite（modernc.org/sqlite）。
	SQLite Dialect = "sqlite"
	// Postgres はPostgreSQL（pgx）。
	Postgres Dialect = "postgres"
)

// gooseDialect はDialectをgooseの方言に変換する。
func (d Dialect) gooseDialect() (goose.Dialect, error) {
	switch d {
	case SQLite:
		return goose.DialectSQLite3, nil
	case Postgres:
		return goose.DialectPostgres, nil
	default:
		return "", fmt.Errorf("未対応のSQL方言です: %q", d)
	}
}

// Run はfsys内のdirに置かれたマイグレーションを順序通りに適用する。
// 適用したバージョンを昇順で返す。適用済みのものはスキップする。
func Run(ctx context.Context, db *sql.DB, dialect Dialect, fsys fs.FS, dir string) ([]int64, error) {
	gd, err := dialect.gooseDialect()
	if err != nil {
		return nil, err
	}

	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("マイグレーションディレクトリの参照に失敗: %w", err)
	}

	provider, err := goose.NewProvider(gd, db, sub)
	if err != nil {
		return nil, fmt.Errorf("マイグレーションの準備に失敗: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("マイグレーションの適用に失敗: %w", err)
	}

	applied := make([]int64, 0, len(results))
	for _, r := range results {
		applied = append(applied, r.Source.Version)
	}
	return applied, nil
}

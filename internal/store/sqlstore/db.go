// Package sqlstore はdatabase/sqlを用いたstore.Storeの実装を提供する。
//
// SQLite（modernc.org/sqlite）とPostgreSQL（pgx）に対応する。
// クエリはプレースホルダに ? を使って記述し、PostgreSQLでは $n に書き換えて実行する。
// カウンタは UPDATE ... SET col = col + ? の1文で差分更新する。
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/nao1215/campusqa/internal/store"
	"github.com/nao1215/campusqa/pkg/migration"
)

//go:embed migrations
var migrations embed.FS

// Options はデータベース接続の設定。
type Options struct {
	// Dialect は接続先のSQL方言。
	Dialect migration.Dialect
	// DSN は接続文字列。SQLiteではファイルパス（file:...）を指定する。
	DSN string
}

// Store はSQLデータベースに永続化するストア。
type Store struct {
	db      *sql.DB
	dialect migration.Dialect
}

var _ store.Store = (*Store)(nil)

// DBTX は*sql.DBと*sql.Txの共通部分。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open はデータベースに接続し、未適用のマイグレーションを適用する。
func Open(ctx context.Context, opts Options) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch opts.Dialect {
	case migration.SQLite:
		db, err = sql.Open("sqlite", sqliteDSN(opts.DSN))
		if err != nil {
			return nil, fmt.Errorf("SQLiteのオープンに失敗: %w", err)
		}
		// 書き込みの競合でSQLITE_BUSYにならないよう接続を1本に絞る
		db.SetMaxOpenConns(1)
	case migration.Postgres:
		db, err = sql.Open("pgx", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("PostgreSQLのオープンに失敗: %w", err)
		}
	default:
		return nil, fmt.Errorf("未対応のSQL方言です: %q", opts.Dialect)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("データベースへの接続に失敗: %w", err)
	}

	if _, err := migration.Run(ctx, db, opts.Dialect, migrations, "migrations/"+string(opts.Dialect)); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, dialect: opts.Dialect}, nil
}

// sqliteDSN は外部キー制約の有効化などの接続時設定をDSNに付与する。
func sqliteDSN(dsn string) string {
	params := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_time_format=sqlite",
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// DB は内部の*sql.DBを返す。
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close は接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind は ? プレースホルダを方言に合わせて書き換える。
func (s *Store) rebind(query string) string {
	if s.dialect != migration.Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// withTx はトランザクション内でfnを実行し、成功時にコミット、失敗またはpanic時にロールバックする。
func (s *Store) withTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}

// translate はドライバ固有の制約違反エラーをストアのエラーに変換する。
// 一意制約違反はErrDuplicate、外部キー違反（参照先が存在しない）はErrNotFoundになる。
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		msg := se.Error()
		switch {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
		case code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %v", store.ErrNotFound, err)
		case code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(msg, "UNIQUE"):
			// 拡張エラーコードが無効な接続
			return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
		case code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(msg, "FOREIGN KEY"):
			return fmt.Errorf("%w: %v", store.ErrNotFound, err)
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
		case "23503":
			return fmt.Errorf("%w: %v", store.ErrNotFound, err)
		}
	}

	return fmt.Errorf("db error: %w", err)
}

// requireAffected は更新件数が0件の場合にErrNotFoundを返す。
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// placeholders はn個の ? をカンマ区切りで返す。
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// escapeLike はLIKEのワイルドカードをエスケープする。ESCAPE '\' と組み合わせて使う。
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

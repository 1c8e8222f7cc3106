// Package config はサーバーの実行時設定を環境変数から読み込む。
//
// カレントディレクトリに .env ファイルがあれば先に読み込み、
// すでに設定されている環境変数は上書きしない。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// defaultJWTSecret は開発用のJWT署名鍵。本番環境では使用できない。
const defaultJWTSecret = "dev-secret-key"

// Config はサーバーの実行時設定。
type Config struct {
	// Env は実行環境（development / production）。
	Env string
	// Port はHTTPサーバーのリッスンポート。
	Port string
	// DBDriver はストアの種類（sqlite / postgres / memory）。
	DBDriver string
	// DatabaseDSN はデータベースの接続文字列。
	DatabaseDSN string
	// JWTSecret はJWT署名用の秘密鍵。
	JWTSecret string
	// BcryptCost はパスワードハッシュのコスト。
	BcryptCost int
	// LogLevel はログレベル。
	LogLevel string
	// LogFormat はログ形式（json / text）。
	LogFormat string
	// CORSOrigins はCORSで許可するオリジン。
	CORSOrigins []string
	// ReconcileInterval は整合性修復パスの実行間隔。0の場合は定期実行しない。
	ReconcileInterval time.Duration
	// AdminToken は内部APIの認証トークン。空の場合は内部APIを公開しない。
	AdminToken string
	// S3 はプロフィール画像の保存先。
	S3 S3Config
}

// S3Config はS3互換オブジェクトストレージの設定。
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Enabled はS3が設定されているかどうかを返す。
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// Load は .env ファイルと環境変数から設定を読み込む。
func Load() (*Config, error) {
	// .env が存在しない場合は環境変数のみを使用する
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv は環境変数から設定を組み立てて検証する。
func FromEnv() (*Config, error) {
	cfg := &Config{
		Env:         getEnvOr("APP_ENV", "development"),
		Port:        getEnvOr("PORT", "8080"),
		DBDriver:    strings.ToLower(getEnvOr("DB_DRIVER", "sqlite")),
		DatabaseDSN: getEnvOr("DATABASE_DSN", "file:/data/campusqa.db"),
		JWTSecret:   getEnvOr("JWT_SECRET", defaultJWTSecret),
		LogLevel:    getEnvOr("LOG_LEVEL", "info"),
		LogFormat:   getEnvOr("LOG_FORMAT", "json"),
		CORSOrigins: splitList(getEnvOr("FRONTEND_URL", "http://localhost:3000")),
		AdminToken:  os.Getenv("ADMIN_TOKEN"),
		S3: S3Config{
			Bucket:    os.Getenv("S3_BUCKET"),
			Region:    getEnvOr("S3_REGION", "us-east-1"),
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
		},
	}

	cost, err := strconv.Atoi(getEnvOr("BCRYPT_COST", "10"))
	if err != nil {
		return nil, fmt.Errorf("BCRYPT_COSTが不正です: %w", err)
	}
	cfg.BcryptCost = cost

	interval, err := time.ParseDuration(getEnvOr("RECONCILE_INTERVAL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("RECONCILE_INTERVALが不正です: %w", err)
	}
	cfg.ReconcileInterval = interval

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("DB_DRIVERが不正です: %q", c.DBDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRETが設定されていません")
	}
	if c.IsProduction() && c.JWTSecret == defaultJWTSecret {
		return errors.New("本番環境では開発用のJWT_SECRETを使用できません")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COSTは4〜31で指定してください: %d", c.BcryptCost)
	}
	if c.ReconcileInterval < 0 {
		return errors.New("RECONCILE_INTERVALに負の値は指定できません")
	}
	return nil
}

// IsProduction は本番環境かどうかを返す。
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Addr はHTTPサーバーのリッスンアドレスを返す。
func (c *Config) Addr() string {
	return ":" + c.Port
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

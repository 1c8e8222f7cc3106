package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialTTL は資格情報の有効期間。リフレッシュはなく、期限切れ後は再ログインが必要。
const CredentialTTL = time.Hour

var (
	// ErrExpired は資格情報の有効期限切れを表す。
	ErrExpired = errors.New("auth: credential expired")
	// ErrInvalid は署名不正・形式不正の資格情報を表す。
	ErrInvalid = errors.New("auth: credential invalid")
)

// Credential は発行された資格情報。
type Credential struct {
	// Token は署名済みのトークン文字列。
	Token string
	// Subject はユーザーID。
	Subject string
	// IssuedAt は発行日時。
	IssuedAt time.Time
	// ExpiresAt は有効期限。
	ExpiresAt time.Time
}

// Signer はHS256で資格情報に署名し、検証する。
// ペイロードはsub・iat・expのみで、その他のクレームは持たない。
type Signer struct {
	secret []byte
	now    func() time.Time
}

// SignerOption はSignerの設定を変更する。
type SignerOption func(*Signer)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) {
		s.now = now
	}
}

// NewSigner はSignerを生成する。
func NewSigner(secret string, opts ...SignerOption) *Signer {
	s := &Signer{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue はsubjectに対する資格情報を発行する。
func (s *Signer) Issue(subject string) (*Credential, error) {
	if subject == "" {
		return nil, errors.New("auth: subject is empty")
	}

	issuedAt := s.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(CredentialTTL)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return &Credential{
		Token:     signed,
		Subject:   subject,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Parse はトークンを検証し、subjectを返す。
// 期限切れはErrExpired、それ以外の検証失敗はErrInvalidを返す。
func (s *Signer) Parse(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(_ *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpired
		}
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrInvalid
	}
	return claims.Subject, nil
}

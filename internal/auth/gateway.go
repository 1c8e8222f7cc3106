// Package auth は資格情報の発行と検証、ユーザー登録とログインを提供する。
//
// 保護されたリクエストは Authenticate で資格情報を検証し、現在のユーザーを
// プリンシパルとして解決する。検証や解決に失敗した場合は常に拒否する。
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/campusqa/internal/apperror"
	"github.com/nao1215/campusqa/internal/logging"
	"github.com/nao1215/campusqa/internal/model"
	"github.com/nao1215/campusqa/internal/store"
	"github.com/nao1215/campusqa/internal/validation"
)

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Username   string `json:"username" validate:"required,min=3,max=32"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=6"`
	University string `json:"university" validate:"required"`
	Major      string `json:"major"`
	Year       int    `json:"year" validate:"omitempty,min=1,max=10"`
}

// LoginInput はログインの入力。
type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Session は登録・ログインの結果。
type Session struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	User      *model.Principal `json:"user"`
}

// Gateway は資格情報の発行と検証を行う。
type Gateway struct {
	users    store.UserStore
	signer   *Signer
	hasher   PasswordHasher
	validate *validation.Validator
	logger   logging.Logger
	now      func() time.Time

	dummyOnce   sync.Once
	dummyDigest string
}

// NewGateway はGatewayを生成する。
func NewGateway(users store.UserStore, signer *Signer, hasher PasswordHasher, logger logging.Logger) *Gateway {
	return &Gateway{
		users:    users,
		signer:   signer,
		hasher:   hasher,
		validate: validation.New(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register はユーザーを登録し、資格情報を発行する。
// ユーザー名またはメールアドレスが使用済みの場合はDuplicateIdentityを返す。
func (g *Gateway) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.University = strings.TrimSpace(in.University)
	in.Major = strings.TrimSpace(in.Major)

	if err := g.validate.Struct(in); err != nil {
		appErr := apperror.Wrap(apperror.KindInvalidInput, err.Error(), err)
		var ve *validation.Error
		if errors.As(err, &ve) && ve.Has("university") {
			return nil, appErr.WithReason(apperror.ReasonMissingUniversity)
		}
		return nil, appErr
	}

	exists, err := g.users.UserIdentityExists(ctx, in.Username, in.Email)
	if err != nil {
		return nil, apperror.Unexpected("ユーザーの確認に失敗しました", err)
	}
	if exists {
		return nil, duplicateIdentity(nil)
	}

	digest, err := g.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperror.Unexpected("ユーザーの登録に失敗しました", err)
	}

	now := g.now()
	u := &model.User{
		ID:             uuid.NewString(),
		Username:       in.Username,
		Email:          in.Email,
		PasswordDigest: digest,
		University:     in.University,
		Major:          in.Major,
		Year:           in.Year,
		IsVerified:     true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := g.users.CreateUser(ctx, u); err != nil {
		// 確認後に同じ名前で登録された場合
		if errors.Is(err, store.ErrDuplicate) {
			return nil, duplicateIdentity(err)
		}
		return nil, apperror.Unexpected("ユーザーの登録に失敗しました", err)
	}

	g.logger.Info(ctx, "ユーザーを登録しました", "user_id", u.ID)
	return g.newSession(u)
}

// Login はメールアドレスとパスワードを照合し、資格情報を発行する。
// メールアドレスが存在しない場合とパスワードが一致しない場合は区別しない。
func (g *Gateway) Login(ctx context.Context, in LoginInput) (*Session, error) {
	if err := g.validate.Struct(in); err != nil {
		return nil, apperror.Wrap(apperror.KindInvalidInput, err.Error(), err)
	}

	u, err := g.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(in.Email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// 応答時間からアカウントの有無を推測されないよう照合を1回行う
			g.hasher.Verify(in.Password, g.fallbackDigest())
			return nil, invalidCredentials()
		}
		return nil, apperror.Unexpected("ログインに失敗しました", err)
	}
	if !g.hasher.Verify(in.Password, u.PasswordDigest) {
		return nil, invalidCredentials()
	}

	g.logger.Info(ctx, "ログインしました", "user_id", u.ID)
	return g.newSession(u)
}

// Authenticate はAuthorizationヘッダーの値から資格情報を取り出して検証する。
func (g *Gateway) Authenticate(ctx context.Context, authorization string) (*model.Principal, error) {
	token, ok := BearerToken(authorization)
	if !ok {
		return nil, apperror.Unauthenticated(apperror.ReasonMissingCredential, "認証が必要です")
	}
	return g.Verify(ctx, token)
}

// Verify はトークンを検証し、現在のユーザーをプリンシパルとして返す。
func (g *Gateway) Verify(ctx context.Context, token string) (*model.Principal, error) {
	subject, err := g.signer.Parse(token)
	if err != nil {
		return nil, &apperror.Error{
			Kind:    apperror.KindUnauthenticated,
			Reason:  apperror.ReasonInvalidSignatureOrExpired,
			Message: "トークンが無効です",
			Err:     err,
		}
	}

	u, err := g.users.GetUserByID(ctx, subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.Unauthenticated(apperror.ReasonPrincipalNotFound, "ユーザーが見つかりません")
		}
		return nil, apperror.Unexpected("ユーザーの取得に失敗しました", err)
	}
	return model.NewPrincipal(u), nil
}

// BearerToken は "Bearer <token>" 形式のヘッダー値からトークンを取り出す。
func BearerToken(authorization string) (string, bool) {
	token, found := strings.CutPrefix(authorization, "Bearer ")
	token = strings.TrimSpace(token)
	if !found || token == "" {
		return "", false
	}
	return token, true
}

func (g *Gateway) newSession(u *model.User) (*Session, error) {
	cred, err := g.signer.Issue(u.ID)
	if err != nil {
		return nil, apperror.Unexpected("資格情報の発行に失敗しました", err)
	}
	return &Session{
		Token:     cred.Token,
		ExpiresAt: cred.ExpiresAt,
		User:      model.NewPrincipal(u),
	}, nil
}

func (g *Gateway) fallbackDigest() string {
	g.dummyOnce.Do(func() {
		digest, err := g.hasher.Hash(uuid.NewString())
		if err == nil {
			g.dummyDigest = digest
		}
	})
	return g.dummyDigest
}

func duplicateIdentity(err error) *apperror.Error {
	return &apperror.Error{
		Kind:    apperror.KindDuplicateIdentity,
		Reason:  apperror.ReasonDuplicateIdentity,
		Message: "ユーザー名またはメールアドレスは既に使用されています",
		Err:     err,
	}
}

func invalidCredentials() *apperror.Error {
	return apperror.Unauthenticated(apperror.ReasonInvalidCredentials, "メールアドレスまたはパスワードが正しくありません")
}

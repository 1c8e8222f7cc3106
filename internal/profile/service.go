// Package profile はプロフィールの参照と更新を提供する。
package profile

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/campusqa/internal/apperror"
	"github.com/nao1215/campusqa/internal/avatar"
	"github.com/nao1215/campusqa/internal/logging"
	"github.com/nao1215/campusqa/internal/model"
	"github.com/nao1215/campusqa/internal/store"
	"github.com/nao1215/campusqa/internal/validation"
)

// UpdateInput はプロフィール更新の入力。nilの項目は変更しない。
// 所属大学とアカウント情報は変更できない。
type UpdateInput struct {
	Major          *string `json:"major"`
	Year           *int    `json:"year" validate:"omitempty,min=1,max=10"`
	Bio            *string `json:"bio" validate:"omitempty,max=500"`
	ProfilePicture *string `json:"profilePicture" validate:"omitempty,max=1024"`
}

// Service はプロフィールを扱う。
type Service struct {
	users    store.UserStore
	avatars  avatar.Presigner
	validate *validation.Validator
	logger   logging.Logger
	now      func() time.Time
}

// NewService はServiceを生成する。avatarsがnilの場合、画像アップロードは利用できない。
func NewService(users store.UserStore, avatars avatar.Presigner, logger logging.Logger) *Service {
	return &Service{
		users:    users,
		avatars:  avatars,
		validate: validation.New(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetOwn は認証済みユーザー自身のプロフィールを返す。
func (s *Service) GetOwn(_ context.Context, p *model.Principal) (*model.Principal, error) {
	if p == nil {
		return nil, apperror.Unauthenticated(apperror.ReasonMissingCredential, "認証が必要です")
	}
	return p, nil
}

// GetPublic は公開プロフィールを返す。
func (s *Service) GetPublic(ctx context.Context, userID string) (*model.PublicProfile, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, apperror.InvalidInput("IDの形式が不正です")
	}
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.NotFound("ユーザーが見つかりません")
		}
		return nil, apperror.Unexpected("ユーザーの取得に失敗しました", err)
	}
	return model.NewPublicProfile(u), nil
}

// Update はプロフィールを更新し、更新後のプロフィールを返す。
func (s *Service) Update(ctx context.Context, p *model.Principal, in UpdateInput) (*model.Principal, error) {
	if p == nil {
		return nil, apperror.Unauthenticated(apperror.ReasonMissingCredential, "認証が必要です")
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, apperror.Wrap(apperror.KindInvalidInput, err.Error(), err)
	}

	u, err := s.users.GetUserByID(ctx, p.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.Unauthenticated(apperror.ReasonPrincipalNotFound, "ユーザーが見つかりません")
		}
		return nil, apperror.Unexpected("ユーザーの取得に失敗しました", err)
	}

	if in.Major != nil {
		u.Major = strings.TrimSpace(*in.Major)
	}
	if in.Year != nil {
		u.Year = *in.Year
	}
	if in.Bio != nil {
		u.Bio = strings.TrimSpace(*in.Bio)
	}
	if in.ProfilePicture != nil {
		u.ProfilePicture = strings.TrimSpace(*in.ProfilePicture)
	}
	u.UpdatedAt = s.now()

	if err := s.users.UpdateUserProfile(ctx, u); err != nil {
		return nil, apperror.Unexpected("プロフィールの更新に失敗しました", err)
	}
	return model.NewPrincipal(u), nil
}

// RequestAvatarUpload はプロフィール画像のアップロード先を発行する。
func (s *Service) RequestAvatarUpload(ctx context.Context, p *model.Principal) (*avatar.Upload, error) {
	if p == nil {
		return nil, apperror.Unauthenticated(apperror.ReasonMissingCredential, "認証が必要です")
	}
	if s.avatars == nil {
		return nil, apperror.NotFound("画像のアップロードは利用できません")
	}
	up, err := s.avatars.PresignUpload(ctx, avatar.ObjectKey(p.ID))
	if err != nil {
		return nil, apperror.Unexpected("アップロード先の発行に失敗しました", err)
	}
	s.logger.Info(ctx, "画像のアップロード先を発行しました", "user_id", p.ID, "key", up.Key)
	return up, nil
}

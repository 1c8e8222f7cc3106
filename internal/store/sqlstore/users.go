package sqlstore

import (
	"context"
	"fmt"

	"github.com/nao1215/campusqa/internal/model"
	"github.com/nao1215/campusqa/internal/store"
)

const userColumns = `id, username, email, password_digest, university, major, year,
	profile_picture, bio, reputation_score, questions_asked, answers_given,
	is_verified, created_at, updated_at`

func scanUser(row rowScanner) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordDigest, &u.University, &u.Major, &u.Year,
		&u.ProfilePicture, &u.Bio, &u.ReputationScore, &u.QuestionsAsked, &u.AnswersGiven,
		&u.IsVerified, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

// CreateUser はユーザーを作成する。
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	query := `INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		u.ID, u.Username, u.Email, u.PasswordDigest, u.University, u.Major, u.Year,
		u.ProfilePicture, u.Bio, u.ReputationScore, u.QuestionsAsked, u.AnswersGiven,
		u.IsVerified, u.CreatedAt.UTC(), u.UpdatedAt.UTC(),
	)
	return translate(err)
}

// GetUserByID はIDでユーザーを取得する。
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return scanUser(s.db.QueryRowContext(ctx, s.rebind(query), id))
}

// GetUserByEmail はメールアドレスでユーザーを取得する。
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return scanUser(s.db.QueryRowContext(ctx, s.rebind(query), email))
}

// UserIdentityExists はユーザー名またはメールアドレスが使用済みかを返す。
func (s *Store) UserIdentityExists(ctx context.Context, username, email string) (bool, error) {
	query := `SELECT COUNT(*) FROM users WHERE username = ? OR email = ?`
	var n int64
	if err := s.db.QueryRowContext(ctx, s.rebind(query), username, email).Scan(&n); err != nil {
		return false, translate(err)
	}
	return n > 0, nil
}

// UpdateUserProfile はプロフィール項目を更新する。
func (s *Store) UpdateUserProfile(ctx context.Context, u *model.User) error {
	query := `UPDATE users
		SET major = ?, year = ?, bio = ?, profile_picture = ?, updated_at = ?
		WHERE id = ?`
	res, err := s.db.ExecContext(ctx, s.rebind(query),
		u.Major, u.Year, u.Bio, u.ProfilePicture, u.UpdatedAt.UTC(), u.ID)
	if err != nil {
		return translate(err)
	}
	return requireAffected(res)
}

// IncrementUserCounter はカウンタにdeltaを加算する。
func (s *Store) IncrementUserCounter(ctx context.Context, id string, counter store.UserCounter, delta int64) error {
	if !counter.Valid() {
		return fmt.Errorf("不明なユーザーカウンタです: %q", counter)
	}
	// counterは既知の列名に限定済み
	query := `UPDATE users SET ` + string(counter) + ` = ` + string(counter) + ` + ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, s.rebind(query), delta, id)
	if err != nil {
		return translate(err)
	}
	return requireAffected(res)
}

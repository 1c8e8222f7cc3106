// Package model はユーザー・質問・回答のドメインモデルを定義する。
package model

import "time"

// User は登録ユーザー。
// QuestionsAsked と AnswersGiven は所有する質問・回答の件数を差分更新で保持する派生カウンタ。
type User struct {
	// ID はユーザーの一意識別子（UUID）。
	ID string `json:"id"`
	// Username は一意なユーザー名。
	Username string `json:"username"`
	// Email は一意なメールアドレス（小文字で保存）。
	Email string `json:"email"`
	// PasswordDigest はパスワードのハッシュ値。レスポンスには含めない。
	PasswordDigest string `json:"-"`
	// University は所属大学。
	University string `json:"university"`
	// Major は専攻。
	Major string `json:"major"`
	// Year は学年（1〜10、未設定は0）。
	Year int `json:"year"`
	// ProfilePicture はプロフィール画像の参照（オブジェクトキーまたはURL）。
	ProfilePicture string `json:"profilePicture"`
	// Bio は自己紹介。
	Bio string `json:"bio"`
	// ReputationScore は評判スコア。
	ReputationScore int64 `json:"reputationScore"`
	// QuestionsAsked は投稿した質問数。
	QuestionsAsked int64 `json:"questionsAsked"`
	// AnswersGiven は投稿した回答数。
	AnswersGiven int64 `json:"answersGiven"`
	// IsVerified は検証済みかどうか。登録時点でtrue。
	IsVerified bool `json:"isVerified"`
	// CreatedAt は登録日時。
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt は更新日時。
	UpdatedAt time.Time `json:"updatedAt"`
}

// Principal は資格情報から解決された認証済みユーザー。
// パスワードハッシュを持たない。
type Principal struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	University      string    `json:"university"`
	Major           string    `json:"major"`
	Year            int       `json:"year"`
	ProfilePicture  string    `json:"profilePicture"`
	Bio             string    `json:"bio"`
	ReputationScore int64     `json:"reputationScore"`
	QuestionsAsked  int64     `json:"questionsAsked"`
	AnswersGiven    int64     `json:"answersGiven"`
	IsVerified      bool      `json:"isVerified"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// PrincipalID はプリンシパルのユーザーIDを返す。
func (p *Principal) PrincipalID() string {
	return p.ID
}

// NewPrincipal はUserからパスワードハッシュを除いたPrincipalを生成する。
func NewPrincipal(u *User) *Principal {
	return &Principal{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		University:      u.University,
		Major:           u.Major,
		Year:            u.Year,
		ProfilePicture:  u.ProfilePicture,
		Bio:             u.Bio,
		ReputationScore: u.ReputationScore,
		QuestionsAsked:  u.QuestionsAsked,
		AnswersGiven:    u.AnswersGiven,
		IsVerified:      u.IsVerified,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// PublicProfile は他のユーザーに公開するプロフィール。メールアドレスを含まない。
type PublicProfile struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	University      string    `json:"university"`
	Major           string    `json:"major"`
	Year            int       `json:"year"`
	ProfilePicture  string    `json:"profilePicture"`
	Bio             string    `json:"bio"`
	ReputationScore int64     `json:"reputationScore"`
	QuestionsAsked  int64     `json:"questionsAsked"`
	AnswersGiven    int64     `json:"answersGiven"`
	CreatedAt       time.Time `json:"createdAt"`
}

// NewPublicProfile はUserから公開プロフィールを生成する。
func NewPublicProfile(u *User) *PublicProfile {
	return &PublicProfile{
		ID:              u.ID,
		Username:        u.Username,
		University:      u.University,
		Major:           u.Major,
		Year:            u.Year,
		ProfilePicture:  u.ProfilePicture,
		Bio:             u.Bio,
		ReputationScore: u.ReputationScore,
		QuestionsAsked:  u.QuestionsAsked,
		AnswersGiven:    u.AnswersGiven,
		CreatedAt:       u.CreatedAt,
	}
}

// AuthorSummary は質問・回答に埋め込む投稿者の概要。
type AuthorSummary struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	ProfilePicture  string `json:"profilePicture"`
	University      string `json:"university"`
	ReputationScore int64  `json:"reputationScore"`
}

// Question は質問。
// AnswersCount は参照している回答の件数を差分更新で保持する。
type Question struct {
	// ID は質問の一意識別子（UUID）。
	ID string `json:"id"`
	// Title はタイトル。
	Title string `json:"title"`
	// Content は本文。
	Content string `json:"content"`
	// AuthorID は投稿者のユーザーID。作成後は変更されない。
	AuthorID string `json:"authorId"`
	// Author は投稿者の概要。読み取り時のみ設定される。
	Author *AuthorSummary `json:"author,omitempty"`
	// University は作成時点の投稿者の所属大学。
	University string `json:"university"`
	// MajorTags は専攻タグの集合。
	MajorTags []string `json:"majorTags"`
	// GeneralTags は一般タグの集合。
	GeneralTags []string `json:"generalTags"`
	// Views は閲覧数。
	Views int64 `json:"views"`
	// AnswersCount は回答数。
	AnswersCount int64 `json:"answersCount"`
	// CreatedAt は作成日時。
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt は更新日時。
	UpdatedAt time.Time `json:"updatedAt"`
}

// Answer は質問への回答。親の質問が削除されると一緒に削除される。
type Answer struct {
	// ID は回答の一意識別子（UUID）。
	ID string `json:"id"`
	// QuestionID は回答先の質問ID。
	QuestionID string `json:"questionId"`
	// Content は本文。
	Content string `json:"content"`
	// AuthorID は投稿者のユーザーID。作成後は変更されない。
	AuthorID string `json:"authorId"`
	// Author は投稿者の概要。読み取り時のみ設定される。
	Author *AuthorSummary `json:"author,omitempty"`
	// CreatedAt は作成日時。
	CreatedAt time.Time `json:"createdAt"`
}

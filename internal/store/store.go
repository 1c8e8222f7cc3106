// Package store はユーザー・質問・回答の永続化の契約を定義する。
//
// カウンタは常に相対的な差分（+1 / -1）で更新する。
// 現在値を読んで計算した値を書き戻す方式は、並行書き込み時に更新が失われるため使わない。
// 排他制御はストアのレコード単位の原子的操作に任せ、呼び出し側はロックを持たない。
package store

import (
	"context"
	"errors"

	"github.com/nao1215/campusqa/internal/model"
	"github.com/nao1215/campusqa/pkg/event"
)

var (
	// ErrNotFound は対象のレコードが存在しないことを表す。
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate は一意制約に違反したことを表す。
	ErrDuplicate = errors.New("store: duplicate key")
)

// UserCounter は差分更新できるユーザーのカウンタ。
type UserCounter string

const (
	CounterQuestionsAsked UserCounter = "questions_asked"
	CounterAnswersGiven   UserCounter = "answers_given"
)

// Valid はカウンタ名が既知のものかを返す。
func (c UserCounter) Valid() bool {
	return c == CounterQuestionsAsked || c == CounterAnswersGiven
}

// QuestionCounter は差分更新できる質問のカウンタ。
type QuestionCounter string

const (
	CounterAnswersCount QuestionCounter = "answers_count"
	CounterViews        QuestionCounter = "views"
)

// Valid はカウンタ名が既知のものかを返す。
func (c QuestionCounter) Valid() bool {
	return c == CounterAnswersCount || c == CounterViews
}

// SortOrder は質問一覧の並び順。
type SortOrder string

const (
	// SortRecent は作成日時の降順。
	SortRecent SortOrder = "recent"
	// SortViews は閲覧数の降順。
	SortViews SortOrder = "views"
)

// QuestionFilter は質問一覧の検索条件。条件はすべてANDで結合する。
type QuestionFilter struct {
	// Search はタイトルまたは本文に含まれる文字列（大文字小文字を区別しない）。
	Search string
	// University は所属大学の完全一致。
	University string
	// Major は専攻タグに含まれるタグ。
	Major string
	// Tag は専攻タグまたは一般タグに含まれるタグ。
	Tag string
	// AuthorID は投稿者。
	AuthorID string
	// Sort は並び順。
	Sort SortOrder
	// Limit は取得件数。
	Limit int
	// Offset は読み飛ばす件数。
	Offset int
}

// UserStore はユーザーの永続化。
type UserStore interface {
	// CreateUser はユーザーを作成する。ユーザー名またはメールアドレスが重複する場合はErrDuplicate。
	CreateUser(ctx context.Context, u *model.User) error
	// GetUserByID はIDでユーザーを取得する。
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	// GetUserByEmail はメールアドレスでユーザーを取得する。
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// UserIdentityExists はユーザー名またはメールアドレスが使用済みかを返す。
	UserIdentityExists(ctx context.Context, username, email string) (bool, error)
	// UpdateUserProfile はプロフィール項目（専攻・学年・自己紹介・画像）を更新する。
	// カウンタは書き換えない。
	UpdateUserProfile(ctx context.Context, u *model.User) error
	// IncrementUserCounter はカウンタにdeltaを原子的に加算する。
	IncrementUserCounter(ctx context.Context, id string, counter UserCounter, delta int64) error
}

// QuestionStore は質問の永続化。
type QuestionStore interface {
	// CreateQuestion は質問を作成する。
	CreateQuestion(ctx context.Context, q *model.Question) error
	// GetQuestion はIDで質問を取得する。投稿者の概要を含む。
	GetQuestion(ctx context.Context, id string) (*model.Question, error)
	// RecordView は閲覧数を1加算し、加算後の質問を返す。
	RecordView(ctx context.Context, id string) (*model.Question, error)
	// UpdateQuestionContent はタイトル・本文・タグ・更新日時のみを更新する。
	UpdateQuestionContent(ctx context.Context, q *model.Question) error
	// DeleteQuestion は質問を削除する。
	DeleteQuestion(ctx context.Context, id string) error
	// ListQuestions は条件に一致する質問と総件数を返す。
	ListQuestions(ctx context.Context, f QuestionFilter) ([]*model.Question, int, error)
	// IncrementQuestionCounter はカウンタにdeltaを原子的に加算する。
	IncrementQuestionCounter(ctx context.Context, id string, counter QuestionCounter, delta int64) error
}

// AnswerStore は回答の永続化。
type AnswerStore interface {
	// CreateAnswer は回答を作成する。質問が存在しない場合はErrNotFound。
	CreateAnswer(ctx context.Context, a *model.Answer) error
	// ListAnswersByQuestion は質問への回答を作成日時の昇順で返す。投稿者の概要を含む。
	ListAnswersByQuestion(ctx context.Context, questionID string) ([]*model.Answer, error)
	// DeleteAnswersByQuestion は質問への回答をすべて削除し、投稿者ごとの削除件数を返す。
	// 全件削除するか、1件も削除しないかのどちらかとなる。
	DeleteAnswersByQuestion(ctx context.Context, questionID string) (map[string]int64, error)
}

// RepairStore は修復ジャーナルと再集計。
type RepairStore interface {
	// AppendRepair は修復が必要な副作用の失敗を記録する。
	AppendRepair(ctx context.Context, ev *event.Event) error
	// PendingRepairs は未解決のレコードを古い順にlimit件まで返す。
	PendingRepairs(ctx context.Context, limit int) ([]*event.Event, error)
	// ResolveRepair はレコードを解決済みにする。
	ResolveRepair(ctx context.Context, id string) error
	// RecountUser は1ユーザーのカウンタを実件数で再計算する。
	RecountUser(ctx context.Context, id string) error
	// RecountQuestion は1質問の回答数を実件数で再計算する。
	RecountQuestion(ctx context.Context, id string) error
	// Reconcile は孤立した回答を削除し、全カウンタを実件数で再計算する。
	Reconcile(ctx context.Context) (ReconcileResult, error)
}

// ReconcileResult は全体再集計の結果。
type ReconcileResult struct {
	// OrphanAnswersDeleted は削除した孤立回答の件数。
	OrphanAnswersDeleted int64 `json:"orphanAnswersDeleted"`
	// UsersRepaired はカウンタを修正したユーザー数。
	UsersRepaired int64 `json:"usersRepaired"`
	// QuestionsRepaired は回答数を修正した質問数。
	QuestionsRepaired int64 `json:"questionsRepaired"`
}

// Store はすべての永続化操作を提供する。
type Store interface {
	UserStore
	QuestionStore
	AnswerStore
	RepairStore
	// Close は接続を解放する。
	Close() error
}

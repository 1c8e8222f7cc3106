// Package qa は質問と回答に対するコマンドを実行し、関連する集計値と従属関係を保つ。
//
// 各コマンドは認可と入力検証を書き込みの前に行う。主となる書き込み（質問・回答の
// 作成または削除）が成功した後の副作用（カウンタの差分更新、回答の連鎖削除）は
// ベストエフォートで実行し、失敗しても呼び出し元への応答は変えない。
// 失敗した副作用はログに出力し、修復ジャーナルに記録して再集計で回復する。
package qa

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/nao1215/campusqa/internal/apperror"
	"github.com/nao1215/campusqa/internal/logging"
	"github.com/nao1215/campusqa/internal/model"
	"github.com/nao1215/campusqa/internal/store"
	"github.com/nao1215/campusqa/pkg/event"
)

// Coordinator は質問・回答のコマンドと副作用の適用順序を管理する。
type Coordinator struct {
	store   store.Store
	logger  logging.Logger
	now     func() time.Time
	backoff func() retry.Backoff
}

// Option はCoordinatorの設定を変更する。
type Option func(*Coordinator)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithCascadeBackoff は回答の連鎖削除を再試行する間隔を差し替える。
func WithCascadeBackoff(b func() retry.Backoff) Option {
	return func(c *Coordinator) {
		c.backoff = b
	}
}

// DefaultCascadeBackoff は回答の連鎖削除の既定の再試行間隔（指数バックオフ、最大3回）。
func DefaultCascadeBackoff() retry.Backoff {
	return retry.WithMaxRetries(3, retry.NewExponential(50*time.Millisecond))
}

// NewCoordinator はCoordinatorを生成する。
func NewCoordinator(s store.Store, logger logging.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   s,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		backoff: DefaultCascadeBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateQuestionInput は質問作成の入力。
type CreateQuestionInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// UpdateQuestionInput は質問更新の入力。
// 空のタイトル・本文は変更しない。タグはnilなら変更せず、空スライスなら空にする。
type UpdateQuestionInput struct {
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	MajorTags   []string `json:"majorTags"`
	GeneralTags []string `json:"generalTags"`
}

// CreateAnswerInput は回答作成の入力。
type CreateAnswerInput struct {
	QuestionID string `json:"questionId"`
	Content    string `json:"content"`
}

// CreateQuestion は質問を作成し、投稿者の質問数を1加算する。
func (c *Coordinator) CreateQuestion(ctx context.Context, p *model.Principal, in CreateQuestionInput) (*model.Question, error) {
	if p == nil {
		return nil, unauthenticated()
	}
	if strings.TrimSpace(p.University) == "" {
		return nil, apperror.InvalidInput("質問するには所属大学の設定が必要です").
			WithReason(apperror.ReasonMissingUniversity)
	}
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)
	if title == "" || content == "" {
		return nil, apperror.InvalidInput("タイトルと本文は必須です")
	}

	now := c.now()
	q := &model.Question{
		ID:          uuid.NewString(),
		Title:       title,
		Content:     content,
		AuthorID:    p.ID,
		University:  p.University,
		MajorTags:   []string{},
		GeneralTags: []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.store.CreateQuestion(ctx, q); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperror.Conflict("同じIDの質問が既に存在します", err)
		}
		return nil, apperror.Unexpected("質問の作成に失敗しました", err)
	}

	c.applyUserDelta(ctx, p.ID, store.CounterQuestionsAsked, 1)

	q.Author = authorOf(p)
	c.logger.Info(ctx, "質問を作成しました", "question_id", q.ID, "user_id", p.ID)
	return q, nil
}

// UpdateQuestion は質問のタイトル・本文・タグを更新する。投稿者のみが実行できる。
func (c *Coordinator) UpdateQuestion(ctx context.Context, p *model.Principal, id string, in UpdateQuestionInput) (*model.Question, error) {
	if p == nil {
		return nil, unauthenticated()
	}
	q, err := c.loadOwnedQuestion(ctx, p, id, "この質問を更新する権限がありません")
	if err != nil {
		return nil, err
	}

	if title := strings.TrimSpace(in.Title); title != "" {
		q.Title = title
	}
	if content := strings.TrimSpace(in.Content); content != "" {
		q.Content = content
	}
	if in.MajorTags != nil {
		q.MajorTags = model.NormalizeTags(in.MajorTags)
	}
	if in.GeneralTags != nil {
		q.GeneralTags = model.NormalizeTags(in.GeneralTags)
	}
	q.UpdatedAt = c.now()

	if err := c.store.UpdateQuestionContent(ctx, q); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, questionNotFound()
		}
		return nil, apperror.Unexpected("質問の更新に失敗しました", err)
	}
	return q, nil
}

// DeleteQuestion は質問を削除する。投稿者のみが実行できる。
//
// 回答の削除、質問の削除、投稿者の質問数の減算の順に実行する。
// 回答の削除は再試行し、それでも失敗した場合は質問を削除せずに中断する。
// 削除した回答の投稿者ごとに回答数も減算する。
func (c *Coordinator) DeleteQuestion(ctx context.Context, p *model.Principal, id string) error {
	if p == nil {
		return unauthenticated()
	}
	q, err := c.loadOwnedQuestion(ctx, p, id, "この質問を削除する権限がありません")
	if err != nil {
		return err
	}

	var removed map[string]int64
	err = retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		byAuthor, err := c.store.DeleteAnswersByQuestion(ctx, q.ID)
		if err != nil {
			c.logger.Warn(ctx, "回答の削除に失敗したため再試行します", "question_id", q.ID, "error", err)
			return retry.RetryableError(err)
		}
		removed = byAuthor
		return nil
	})
	if err != nil {
		c.logger.Error(ctx, "回答の削除に失敗したため質問の削除を中断しました", "question_id", q.ID, "error", err)
		return apperror.Unexpected("質問の削除に失敗しました", err)
	}

	// ここから先はクライアントが切断しても完了させる
	sideCtx := context.WithoutCancel(ctx)

	var total int64
	for authorID, n := range removed {
		total += n
		c.applyUserDelta(sideCtx, authorID, store.CounterAnswersGiven, -n)
	}

	if err := c.store.DeleteQuestion(sideCtx, q.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// 並行した削除が先に完了した。質問数の減算はそちらで行われる
			return questionNotFound()
		}
		if total > 0 {
			c.applyQuestionDelta(sideCtx, q.ID, store.CounterAnswersCount, -total)
		}
		return apperror.Unexpected("質問の削除に失敗しました", err)
	}

	c.applyUserDelta(sideCtx, q.AuthorID, store.CounterQuestionsAsked, -1)

	c.logger.Info(ctx, "質問を削除しました", "question_id", q.ID, "user_id", p.ID, "answers_removed", total)
	return nil
}

// CreateAnswer は回答を作成し、質問の回答数と投稿者の回答数を1加算する。
func (c *Coordinator) CreateAnswer(ctx context.Context, p *model.Principal, in CreateAnswerInput) (*model.Answer, error) {
	if p == nil {
		return nil, unauthenticated()
	}
	content := strings.TrimSpace(in.Content)
	if in.QuestionID == "" || content == "" {
		return nil, apperror.InvalidInput("質問IDと本文は必須です")
	}
	if !validID(in.QuestionID) {
		return nil, invalidID()
	}

	a := &model.Answer{
		ID:         uuid.NewString(),
		QuestionID: in.QuestionID,
		Content:    content,
		AuthorID:   p.ID,
		CreatedAt:  c.now(),
	}
	// 質問の存在は挿入時の参照整合性で確認する
	if err := c.store.CreateAnswer(ctx, a); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, questionNotFound()
		}
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperror.Conflict("同じIDの回答が既に存在します", err)
		}
		return nil, apperror.Unexpected("回答の作成に失敗しました", err)
	}

	sideCtx := context.WithoutCancel(ctx)
	c.applyQuestionDelta(sideCtx, a.QuestionID, store.CounterAnswersCount, 1)
	c.applyUserDelta(sideCtx, p.ID, store.CounterAnswersGiven, 1)

	a.Author = authorOf(p)
	c.logger.Info(ctx, "回答を作成しました", "answer_id", a.ID, "question_id", a.QuestionID, "user_id", p.ID)
	return a, nil
}

// GetQuestion は質問を取得し、閲覧数を1加算する。返す閲覧数は加算後の値。
func (c *Coordinator) GetQuestion(ctx context.Context, id string) (*model.Question, error) {
	if !validID(id) {
		return nil, invalidID()
	}
	q, err := c.store.RecordView(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, questionNotFound()
		}
		return nil, apperror.Unexpected("質問の取得に失敗しました", err)
	}
	return q, nil
}

func (c *Coordinator) loadOwnedQuestion(ctx context.Context, p *model.Principal, id, forbidden string) (*model.Question, error) {
	if !validID(id) {
		return nil, invalidID()
	}
	q, err := c.store.GetQuestion(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, questionNotFound()
		}
		return nil, apperror.Unexpected("質問の取得に失敗しました", err)
	}
	if q.AuthorID != p.ID {
		return nil, apperror.Forbidden(forbidden)
	}
	return q, nil
}

// applyUserDelta はユーザーのカウンタを更新する。失敗した場合は記録のみ行う。
func (c *Coordinator) applyUserDelta(ctx context.Context, userID string, counter store.UserCounter, delta int64) {
	err := c.store.IncrementUserCounter(ctx, userID, counter, delta)
	if err == nil {
		return
	}
	c.logger.Warn(ctx, "ユーザーのカウンタ更新に失敗しました",
		"user_id", userID, "counter", string(counter), "delta", delta, "error", err)
	ev, evErr := event.UserCounterSkipped(userID, string(counter), delta, err)
	c.journal(ctx, ev, evErr)
}

// applyQuestionDelta は質問のカウンタを更新する。失敗した場合は記録のみ行う。
func (c *Coordinator) applyQuestionDelta(ctx context.Context, questionID string, counter store.QuestionCounter, delta int64) {
	err := c.store.IncrementQuestionCounter(ctx, questionID, counter, delta)
	if err == nil {
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		// 回答の挿入後に質問が削除された。孤立した回答と回答者のカウンタが残りうる
		c.logger.Warn(ctx, "回答の作成中に質問が削除されました",
			"question_id", questionID, "counter", string(counter), "error", err)
		ev, evErr := event.AnswerCascadeIncomplete(questionID, err)
		c.journal(ctx, ev, evErr)
		return
	}
	c.logger.Warn(ctx, "質問のカウンタ更新に失敗しました",
		"question_id", questionID, "counter", string(counter), "delta", delta, "error", err)
	ev, evErr := event.QuestionCounterSkipped(questionID, string(counter), delta, err)
	c.journal(ctx, ev, evErr)
}

func (c *Coordinator) journal(ctx context.Context, ev *event.Event, err error) {
	if err == nil {
		err = c.store.AppendRepair(ctx, ev)
	}
	if err != nil {
		// ジャーナルに残せなくても定期的な再集計で回復する
		c.logger.Error(ctx, "修復ジャーナルへの記録に失敗しました", "error", err)
	}
}

func authorOf(p *model.Principal) *model.AuthorSummary {
	return &model.AuthorSummary{
		ID:              p.ID,
		Username:        p.Username,
		ProfilePicture:  p.ProfilePicture,
		University:      p.University,
		ReputationScore: p.ReputationScore,
	}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func unauthenticated() *apperror.Error {
	return apperror.Unauthenticated(apperror.ReasonMissingCredential, "認証が必要です")
}

func invalidID() *apperror.Error {
	return apperror.InvalidInput("IDの形式が不正です")
}

func questionNotFound() *apperror.Error {
	return apperror.NotFound("質問が見つかりません")
}

package qa

import (
	"context"
	"math"
	"strings"

	"github.com/nao1215/campusqa/internal/apperror"
	"github.com/nao1215/campusqa/internal/model"
	"github.com/nao1215/campusqa/internal/store"
)

const (
	// DefaultPageSize は1ページの既定の件数。
	DefaultPageSize = 10
	// MaxPageSize は1ページの最大件数。
	MaxPageSize = 100
)

// ListQuestionsInput は質問一覧の検索条件。
type ListQuestionsInput struct {
	Search     string `form:"search"`
	University string `form:"university"`
	Major      string `form:"major"`
	Tag        string `form:"tag"`
	// Sort は "views" で閲覧数順、それ以外は新しい順。
	Sort  string `form:"sort"`
	Page  int    `form:"page"`
	Limit int    `form:"limit"`
}

// QuestionPage は質問一覧の1ページ。
type QuestionPage struct {
	Questions   []*model.Question `json:"questions"`
	TotalPages  int               `json:"totalPages"`
	CurrentPage int               `json:"currentPage"`
	TotalCount  int               `json:"totalCount"`
}

// ListQuestions は条件に一致する質問を1ページ分返す。
func (c *Coordinator) ListQuestions(ctx context.Context, in ListQuestionsInput) (*QuestionPage, error) {
	sort := store.SortRecent
	if in.Sort == string(store.SortViews) {
		sort = store.SortViews
	}
	return c.listPage(ctx, store.QuestionFilter{
		Search:     strings.TrimSpace(in.Search),
		University: strings.TrimSpace(in.University),
		Major:      strings.TrimSpace(in.Major),
		Tag:        strings.TrimSpace(in.Tag),
		Sort:       sort,
	}, in.Page, in.Limit)
}

// ListQuestionsByUser はユーザーの質問を新しい順に1ページ分返す。
// 存在しないユーザーの場合は空のページになる。
func (c *Coordinator) ListQuestionsByUser(ctx context.Context, userID string, page, limit int) (*QuestionPage, error) {
	if !validID(userID) {
		return nil, invalidID()
	}
	return c.listPage(ctx, store.QuestionFilter{AuthorID: userID, Sort: store.SortRecent}, page, limit)
}

// ListAnswersByQuestion は質問への回答を古い順に返す。存在しない質問の場合は空になる。
func (c *Coordinator) ListAnswersByQuestion(ctx context.Context, questionID string) ([]*model.Answer, error) {
	if !validID(questionID) {
		return nil, invalidID()
	}
	answers, err := c.store.ListAnswersByQuestion(ctx, questionID)
	if err != nil {
		return nil, apperror.Unexpected("回答の取得に失敗しました", err)
	}
	return answers, nil
}

func (c *Coordinator) listPage(ctx context.Context, f store.QuestionFilter, page, limit int) (*QuestionPage, error) {
	page, limit = normalizePage(page, limit)
	f.Limit = limit
	f.Offset = (page - 1) * limit

	questions, total, err := c.store.ListQuestions(ctx, f)
	if err != nil {
		return nil, apperror.Unexpected("質問一覧の取得に失敗しました", err)
	}
	return &QuestionPage{
		Questions:   questions,
		TotalPages:  (total + limit - 1) / limit,
		CurrentPage: page,
		TotalCount:  total,
	}, nil
}

// normalizePage は範囲外のページ番号と件数を丸める。
// (page-1)*limit がintに収まるようにページ番号の上限も抑える。
func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if maxPage := math.MaxInt / limit; page > maxPage {
		page = maxPage
	}
	return page, limit
}

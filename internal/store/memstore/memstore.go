// Package memstore はプロセス内メモリに保持するストア実装を提供する。
//
// テスト用の代替実装、および開発時の使い捨てストアとして使用する。
// 各操作は1つのミューテックスの中で完結し、カウンタの差分更新は原子的に行われる。
// 外部キー制約は持たないため、質問を削除しても回答は自動では削除されない。
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nao1215/campusqa/internal/model"
	"github.com/nao1215/campusqa/internal/store"
	"github.com/nao1215/campusqa/pkg/event"
)

// Store はメモリ上のストア。
type Store struct {
	mu        sync.Mutex
	users     map[string]*model.User
	questions map[string]*model.Question
	answers   map[string]*model.Answer
	repairs   []*repairRecord
}

type repairRecord struct {
	ev       *event.Event
	resolved bool
}

var _ store.Store = (*Store)(nil)

// New は空のストアを生成する。
func New() *Store {
	return &Store{
		users:     make(map[string]*model.User),
		questions: make(map[string]*model.Question),
		answers:   make(map[string]*model.Answer),
	}
}

// Close は何もしない。
func (s *Store) Close() error {
	return nil
}

// ---- users ----

func (s *Store) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; ok {
		return store.ErrDuplicate
	}
	for _, existing := range s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return store.ErrDuplicate
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UserIdentityExists(_ context.Context, username, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) UpdateUserProfile(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.Major = u.Major
	existing.Year = u.Year
	existing.Bio = u.Bio
	existing.ProfilePicture = u.ProfilePicture
	existing.UpdatedAt = u.UpdatedAt
	return nil
}

func (s *Store) IncrementUserCounter(_ context.Context, id string, counter store.UserCounter, delta int64) error {
	if !counter.Valid() {
		return fmt.Errorf("不明なユーザーカウンタです: %q", counter)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	switch counter {
	case store.CounterQuestionsAsked:
		u.QuestionsAsked += delta
	case store.CounterAnswersGiven:
		u.AnswersGiven += delta
	}
	return nil
}

// DeleteUser はユーザーを削除する。アカウント削除を再現するテストで使用する。
func (s *Store) DeleteUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

// ---- questions ----

func (s *Store) CreateQuestion(_ context.Context, q *model.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.questions[q.ID]; ok {
		return store.ErrDuplicate
	}
	s.questions[q.ID] = cloneQuestion(q)
	return nil
}

func (s *Store) GetQuestion(_ context.Context, id string) (*model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.populateQuestion(q), nil
}

func (s *Store) RecordView(_ context.Context, id string) (*model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	q.Views++
	return s.populateQuestion(q), nil
}

func (s *Store) UpdateQuestionContent(_ context.Context, q *model.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.questions[q.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.Title = q.Title
	existing.Content = q.Content
	existing.MajorTags = append([]string{}, q.MajorTags...)
	existing.GeneralTags = append([]string{}, q.GeneralTags...)
	existing.UpdatedAt = q.UpdatedAt
	return nil
}

func (s *Store) DeleteQuestion(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.questions[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.questions, id)
	return nil
}

func (s *Store) ListQuestions(_ context.Context, f store.QuestionFilter) ([]*model.Question, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]*model.Question, 0)
	for _, q := range s.questions {
		if matchQuestion(q, f) {
			matched = append(matched, q)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if f.Sort == store.SortViews && a.Views != b.Views {
			return a.Views > b.Views
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	// Offsetは件数指定がある場合のみ適用する
	total := len(matched)
	start, end := 0, total
	if f.Limit > 0 {
		start = min(max(f.Offset, 0), total)
		end = min(start+f.Limit, total)
	}

	out := make([]*model.Question, 0, end-start)
	for _, q := range matched[start:end] {
		out = append(out, s.populateQuestion(q))
	}
	return out, total, nil
}

func (s *Store) IncrementQuestionCounter(_ context.Context, id string, counter store.QuestionCounter, delta int64) error {
	if !counter.Valid() {
		return fmt.Errorf("不明な質問カウンタです: %q", counter)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questions[id]
	if !ok {
		return store.ErrNotFound
	}
	switch counter {
	case store.CounterAnswersCount:
		q.AnswersCount += delta
	case store.CounterViews:
		q.Views += delta
	}
	return nil
}

// ---- answers ----

func (s *Store) CreateAnswer(_ context.Context, a *model.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.questions[a.QuestionID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := s.answers[a.ID]; ok {
		return store.ErrDuplicate
	}
	cp := *a
	cp.Author = nil
	s.answers[a.ID] = &cp
	return nil
}

func (s *Store) ListAnswersByQuestion(_ context.Context, questionID string) ([]*model.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Answer, 0)
	for _, a := range s.answers {
		if a.QuestionID != questionID {
			continue
		}
		cp := *a
		cp.Author = s.authorSummary(a.AuthorID)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) DeleteAnswersByQuestion(_ context.Context, questionID string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byAuthor := make(map[string]int64)
	for id, a := range s.answers {
		if a.QuestionID == questionID {
			byAuthor[a.AuthorID]++
			delete(s.answers, id)
		}
	}
	return byAuthor, nil
}

// ---- repair ----

func (s *Store) AppendRepair(_ context.Context, ev *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *ev
	s.repairs = append(s.repairs, &repairRecord{ev: &cp})
	return nil
}

func (s *Store) PendingRepairs(_ context.Context, limit int) ([]*event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*event.Event, 0)
	for _, r := range s.repairs {
		if r.resolved {
			continue
		}
		cp := *r.ev
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ResolveRepair(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.repairs {
		if r.ev.ID == id {
			r.resolved = true
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) RecountUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	s.recountUserLocked(u)
	return nil
}

func (s *Store) RecountQuestion(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questions[id]
	if !ok {
		return store.ErrNotFound
	}
	s.recountQuestionLocked(q)
	return nil
}

func (s *Store) Reconcile(_ context.Context) (store.ReconcileResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res store.ReconcileResult
	for id, a := range s.answers {
		if _, ok := s.questions[a.QuestionID]; !ok {
			delete(s.answers, id)
			res.OrphanAnswersDeleted++
		}
	}
	for _, u := range s.users {
		if s.recountUserLocked(u) {
			res.UsersRepaired++
		}
	}
	for _, q := range s.questions {
		if s.recountQuestionLocked(q) {
			res.QuestionsRepaired++
		}
	}
	return res, nil
}

// recountUserLocked はカウンタを実件数に合わせ、変更があればtrueを返す。
func (s *Store) recountUserLocked(u *model.User) bool {
	var asked, given int64
	for _, q := range s.questions {
		if q.AuthorID == u.ID {
			asked++
		}
	}
	for _, a := range s.answers {
		if a.AuthorID == u.ID {
			given++
		}
	}
	changed := u.QuestionsAsked != asked || u.AnswersGiven != given
	u.QuestionsAsked, u.AnswersGiven = asked, given
	return changed
}

func (s *Store) recountQuestionLocked(q *model.Question) bool {
	var n int64
	for _, a := range s.answers {
		if a.QuestionID == q.ID {
			n++
		}
	}
	changed := q.AnswersCount != n
	q.AnswersCount = n
	return changed
}

// ---- helpers ----

func (s *Store) populateQuestion(q *model.Question) *model.Question {
	cp := cloneQuestion(q)
	cp.Author = s.authorSummary(q.AuthorID)
	return cp
}

func (s *Store) authorSummary(userID string) *model.AuthorSummary {
	u, ok := s.users[userID]
	if !ok {
		return nil
	}
	return &model.AuthorSummary{
		ID:              u.ID,
		Username:        u.Username,
		ProfilePicture:  u.ProfilePicture,
		University:      u.University,
		ReputationScore: u.ReputationScore,
	}
}

func cloneQuestion(q *model.Question) *model.Question {
	cp := *q
	cp.Author = nil
	cp.MajorTags = append([]string{}, q.MajorTags...)
	cp.GeneralTags = append([]string{}, q.GeneralTags...)
	return &cp
}

func matchQuestion(q *model.Question, f store.QuestionFilter) bool {
	if f.AuthorID != "" && q.AuthorID != f.AuthorID {
		return false
	}
	if f.University != "" && q.University != f.University {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(q.Title), needle) &&
			!strings.Contains(strings.ToLower(q.Content), needle) {
			return false
		}
	}
	if f.Major != "" && !contains(q.MajorTags, f.Major) {
		return false
	}
	if f.Tag != "" && !contains(q.MajorTags, f.Tag) && !contains(q.GeneralTags, f.Tag) {
		return false
	}
	return true
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

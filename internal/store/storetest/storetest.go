// Package storetest はstore.Storeの実装が満たすべき振る舞いを検証する共通テストを提供する。
// 各実装のテストから Run を呼び出して使用する。
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/campusqa/internal/model"
	"github.com/nao1215/campusqa/internal/store"
	"github.com/nao1215/campusqa/pkg/event"
)

// Factory はテストごとに空のストアを生成する。
type Factory func(t *testing.T) store.Store

// Run はすべての共通テストを実行する。
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("ユーザー", func(t *testing.T) { testUsers(t, newStore) })
	t.Run("質問", func(t *testing.T) { testQuestions(t, newStore) })
	t.Run("質問一覧", func(t *testing.T) { testListQuestions(t, newStore) })
	t.Run("回答", func(t *testing.T) { testAnswers(t, newStore) })
	t.Run("カウンタの並行更新", func(t *testing.T) { testConcurrentCounters(t, newStore) })
	t.Run("修復ジャーナル", func(t *testing.T) { testRepairs(t, newStore) })
	t.Run("再集計", func(t *testing.T) { testReconcile(t, newStore) })
}

var base = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

// NewUser はテスト用のユーザーを生成する。
func NewUser(name string) *model.User {
	return &model.User{
		ID:             uuid.NewString(),
		Username:       name,
		Email:          name + "@example.ac.jp",
		PasswordDigest: "digest",
		University:     "Tokyo Tech",
		Major:          "CS",
		Year:           2,
		IsVerified:     true,
		CreatedAt:      base,
		UpdatedAt:      base,
	}
}

// NewQuestion はテスト用の質問を生成する。
func NewQuestion(author *model.User, title string, createdAt time.Time) *model.Question {
	return &model.Question{
		ID:          uuid.NewString(),
		Title:       title,
		Content:     title + " の本文",
		AuthorID:    author.ID,
		University:  author.University,
		MajorTags:   []string{},
		GeneralTags: []string{},
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

// NewAnswer はテスト用の回答を生成する。
func NewAnswer(q *model.Question, author *model.User, createdAt time.Time) *model.Answer {
	return &model.Answer{
		ID:         uuid.NewString(),
		QuestionID: q.ID,
		Content:    "回答",
		AuthorID:   author.ID,
		CreatedAt:  createdAt,
	}
}

func testUsers(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	alice := NewUser("alice")
	require.NoError(t, s.CreateUser(ctx, alice))

	t.Run("IDとメールアドレスで取得できる", func(t *testing.T) {
		got, err := s.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)
		assert.Equal(t, "digest", got.PasswordDigest)
		assert.True(t, got.IsVerified)

		got, err = s.GetUserByEmail(ctx, alice.Email)
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
	})

	t.Run("存在しないユーザーはErrNotFound", func(t *testing.T) {
		_, err := s.GetUserByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.GetUserByEmail(ctx, "nobody@example.ac.jp")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("ユーザー名またはメールアドレスの重複はErrDuplicate", func(t *testing.T) {
		sameName := NewUser("alice")
		sameName.Email = "other@example.ac.jp"
		assert.ErrorIs(t, s.CreateUser(ctx, sameName), store.ErrDuplicate)

		sameEmail := NewUser("alice2")
		sameEmail.Email = alice.Email
		assert.ErrorIs(t, s.CreateUser(ctx, sameEmail), store.ErrDuplicate)
	})

	t.Run("UserIdentityExists", func(t *testing.T) {
		ok, err := s.UserIdentityExists(ctx, "alice", "x@example.ac.jp")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.UserIdentityExists(ctx, "x", alice.Email)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.UserIdentityExists(ctx, "bob", "bob@example.ac.jp")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("プロフィール更新はカウンタを書き換えない", func(t *testing.T) {
		require.NoError(t, s.IncrementUserCounter(ctx, alice.ID, store.CounterQuestionsAsked, 3))

		update := *alice
		update.Major = "Math"
		update.Year = 4
		update.Bio = "hello"
		update.ProfilePicture = "avatars/alice/1"
		update.QuestionsAsked = 100
		update.UpdatedAt = base.Add(time.Hour)
		require.NoError(t, s.UpdateUserProfile(ctx, &update))

		got, err := s.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "Math", got.Major)
		assert.Equal(t, 4, got.Year)
		assert.Equal(t, "hello", got.Bio)
		assert.Equal(t, "avatars/alice/1", got.ProfilePicture)
		assert.Equal(t, int64(3), got.QuestionsAsked)
	})

	t.Run("存在しないユーザーのカウンタ更新はErrNotFound", func(t *testing.T) {
		err := s.IncrementUserCounter(ctx, uuid.NewString(), store.CounterAnswersGiven, 1)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("不明なカウンタ名はエラー", func(t *testing.T) {
		err := s.IncrementUserCounter(ctx, alice.ID, store.UserCounter("password"), 1)
		assert.Error(t, err)
	})
}

func testQuestions(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	alice := NewUser("alice")
	require.NoError(t, s.CreateUser(ctx, alice))

	q := NewQuestion(alice, "線形代数の質問", base)
	q.MajorTags = []string{"math"}
	q.GeneralTags = []string{"exam", "help"}
	require.NoError(t, s.CreateQuestion(ctx, q))

	t.Run("投稿者の概要を含めて取得できる", func(t *testing.T) {
		got, err := s.GetQuestion(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, q.Title, got.Title)
		assert.Equal(t, alice.ID, got.AuthorID)
		require.NotNil(t, got.Author)
		assert.Equal(t, "alice", got.Author.Username)
		assert.Equal(t, []string{"math"}, got.MajorTags)
		assert.Equal(t, []string{"exam", "help"}, got.GeneralTags)
		assert.Equal(t, int64(0), got.Views)
		assert.Equal(t, int64(0), got.AnswersCount)
	})

	t.Run("RecordViewは加算後の閲覧数を返す", func(t *testing.T) {
		got, err := s.RecordView(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Views)
		require.NotNil(t, got.Author)

		got, err = s.RecordView(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Views)
	})

	t.Run("内容の更新はカウンタと投稿者を変えない", func(t *testing.T) {
		update := *q
		update.Title = "新しいタイトル"
		update.Content = "新しい本文"
		update.MajorTags = []string{"physics"}
		update.GeneralTags = []string{}
		update.Views = 999
		update.AuthorID = uuid.NewString()
		update.UpdatedAt = base.Add(time.Hour)
		require.NoError(t, s.UpdateQuestionContent(ctx, &update))

		got, err := s.GetQuestion(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, "新しいタイトル", got.Title)
		assert.Equal(t, "新しい本文", got.Content)
		assert.Equal(t, []string{"physics"}, got.MajorTags)
		assert.Empty(t, got.GeneralTags)
		assert.Equal(t, int64(2), got.Views)
		assert.Equal(t, alice.ID, got.AuthorID)
	})

	t.Run("存在しない質問はErrNotFound", func(t *testing.T) {
		missing := uuid.NewString()
		_, err := s.GetQuestion(ctx, missing)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.RecordView(ctx, missing)
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, s.DeleteQuestion(ctx, missing), store.ErrNotFound)
		assert.ErrorIs(t, s.IncrementQuestionCounter(ctx, missing, store.CounterAnswersCount, 1), store.ErrNotFound)
		assert.ErrorIs(t, s.UpdateQuestionContent(ctx, &model.Question{ID: missing}), store.ErrNotFound)
	})

	t.Run("削除後は取得できない", func(t *testing.T) {
		require.NoError(t, s.DeleteQuestion(ctx, q.ID))
		_, err := s.GetQuestion(ctx, q.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func testListQuestions(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	alice := NewUser("alice")
	bob := NewUser("bob")
	bob.University = "Kyoto"
	require.NoError(t, s.CreateUser(ctx, alice))
	require.NoError(t, s.CreateUser(ctx, bob))

	q1 := NewQuestion(alice, "Fourier transform", base)
	q1.MajorTags = []string{"math"}
	q2 := NewQuestion(alice, "Compiler design", base.Add(time.Minute))
	q2.MajorTags = []string{"cs"}
	q2.GeneralTags = []string{"math"}
	q3 := NewQuestion(bob, "Kyoto dorm rules", base.Add(2*time.Minute))
	q3.GeneralTags = []string{"life"}
	for _, q := range []*model.Question{q1, q2, q3} {
		require.NoError(t, s.CreateQuestion(ctx, q))
	}
	require.NoError(t, s.IncrementQuestionCounter(ctx, q1.ID, store.CounterViews, 10))
	require.NoError(t, s.IncrementQuestionCounter(ctx, q3.ID, store.CounterViews, 5))

	ids := func(qs []*model.Question) []string {
		out := make([]string, 0, len(qs))
		for _, q := range qs {
			out = append(out, q.ID)
		}
		return out
	}

	tests := []struct {
		name      string
		filter    store.QuestionFilter
		wantIDs   []string
		wantTotal int
	}{
		{
			name:      "既定は新しい順",
			filter:    store.QuestionFilter{},
			wantIDs:   []string{q3.ID, q2.ID, q1.ID},
			wantTotal: 3,
		},
		{
			name:      "閲覧数順",
			filter:    store.QuestionFilter{Sort: store.SortViews},
			wantIDs:   []string{q1.ID, q3.ID, q2.ID},
			wantTotal: 3,
		},
		{
			name:      "大文字小文字を区別しない検索",
			filter:    store.QuestionFilter{Search: "FOURIER"},
			wantIDs:   []string{q1.ID},
			wantTotal: 1,
		},
		{
			name:      "本文も検索対象",
			filter:    store.QuestionFilter{Search: "design の本文"},
			wantIDs:   []string{q2.ID},
			wantTotal: 1,
		},
		{
			name:      "大学で絞り込み",
			filter:    store.QuestionFilter{University: "Kyoto"},
			wantIDs:   []string{q3.ID},
			wantTotal: 1,
		},
		{
			name:      "専攻タグで絞り込み",
			filter:    store.QuestionFilter{Major: "math"},
			wantIDs:   []string{q1.ID},
			wantTotal: 1,
		},
		{
			name:      "タグは専攻タグと一般タグの両方を対象にする",
			filter:    store.QuestionFilter{Tag: "math"},
			wantIDs:   []string{q2.ID, q1.ID},
			wantTotal: 2,
		},
		{
			name:      "投稿者で絞り込み",
			filter:    store.QuestionFilter{AuthorID: bob.ID},
			wantIDs:   []string{q3.ID},
			wantTotal: 1,
		},
		{
			name:      "条件はANDで結合する",
			filter:    store.QuestionFilter{AuthorID: alice.ID, Search: "kyoto"},
			wantIDs:   []string{},
			wantTotal: 0,
		},
		{
			name:      "ページング",
			filter:    store.QuestionFilter{Limit: 2, Offset: 2},
			wantIDs:   []string{q1.ID},
			wantTotal: 3,
		},
		{
			name:      "LIKEのワイルドカードは文字として扱う",
			filter:    store.QuestionFilter{Search: "%"},
			wantIDs:   []string{},
			wantTotal: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := s.ListQuestions(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, total)
			assert.Equal(t, tt.wantIDs, ids(got))
		})
	}

	t.Run("一覧にも投稿者の概要を含む", func(t *testing.T) {
		got, _, err := s.ListQuestions(ctx, store.QuestionFilter{AuthorID: bob.ID})
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.NotNil(t, got[0].Author)
		assert.Equal(t, "bob", got[0].Author.Username)
	})
}

func testAnswers(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	alice := NewUser("alice")
	bob := NewUser("bob")
	carol := NewUser("carol")
	for _, u := range []*model.User{alice, bob, carol} {
		require.NoError(t, s.CreateUser(ctx, u))
	}
	q := NewQuestion(alice, "質問", base)
	require.NoError(t, s.CreateQuestion(ctx, q))

	t.Run("存在しない質問への回答はErrNotFound", func(t *testing.T) {
		orphan := NewAnswer(&model.Question{ID: uuid.NewString()}, bob, base)
		assert.ErrorIs(t, s.CreateAnswer(ctx, orphan), store.ErrNotFound)
	})

	a1 := NewAnswer(q, bob, base.Add(2*time.Second))
	a2 := NewAnswer(q, carol, base.Add(1*time.Second))
	a3 := NewAnswer(q, bob, base.Add(3*time.Second))
	for _, a := range []*model.Answer{a1, a2, a3} {
		require.NoError(t, s.CreateAnswer(ctx, a))
	}

	t.Run("古い順に投稿者の概要付きで返す", func(t *testing.T) {
		got, err := s.ListAnswersByQuestion(ctx, q.ID)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{a2.ID, a1.ID, a3.ID}, []string{got[0].ID, got[1].ID, got[2].ID})
		require.NotNil(t, got[0].Author)
		assert.Equal(t, "carol", got[0].Author.Username)
	})

	t.Run("回答のない質問は空のスライス", func(t *testing.T) {
		got, err := s.ListAnswersByQuestion(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("一括削除は投稿者ごとの件数を返す", func(t *testing.T) {
		byAuthor, err := s.DeleteAnswersByQuestion(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{bob.ID: 2, carol.ID: 1}, byAuthor)

		got, err := s.ListAnswersByQuestion(ctx, q.ID)
		require.NoError(t, err)
		assert.Empty(t, got)

		byAuthor, err = s.DeleteAnswersByQuestion(ctx, q.ID)
		require.NoError(t, err)
		assert.Empty(t, byAuthor)
	})
}

func testConcurrentCounters(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	alice := NewUser("alice")
	require.NoError(t, s.CreateUser(ctx, alice))
	q := NewQuestion(alice, "質問", base)
	require.NoError(t, s.CreateQuestion(ctx, q))

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, 3*n)
	for range n {
		wg.Add(3)
		go func() {
			defer wg.Done()
			errs <- s.IncrementUserCounter(ctx, alice.ID, store.CounterAnswersGiven, 1)
		}()
		go func() {
			defer wg.Done()
			errs <- s.IncrementQuestionCounter(ctx, q.ID, store.CounterAnswersCount, 1)
		}()
		go func() {
			defer wg.Done()
			_, err := s.RecordView(ctx, q.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	u, err := s.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), u.AnswersGiven)

	got, err := s.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.AnswersCount)
	assert.Equal(t, int64(n), got.Views)
}

func testRepairs(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	userID := uuid.NewString()
	first, err := event.UserCounterSkipped(userID, string(store.CounterQuestionsAsked), 1, errors.New("timeout"))
	require.NoError(t, err)
	first.CreatedAt = base
	second, err := event.AnswerCascadeIncomplete(uuid.NewString(), errors.New("locked"))
	require.NoError(t, err)
	second.CreatedAt = base.Add(time.Second)

	require.NoError(t, s.AppendRepair(ctx, second))
	require.NoError(t, s.AppendRepair(ctx, first))

	pending, err := s.PendingRepairs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, event.TypeUserCounterSkipped, pending[0].EventType)
	assert.Equal(t, userID, pending[0].AggregateID)

	data, err := event.DecodeData[event.CounterSkippedData](pending[0])
	require.NoError(t, err)
	assert.Equal(t, int64(1), data.Delta)

	limited, err := s.PendingRepairs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, s.ResolveRepair(ctx, first.ID))
	pending, err = s.PendingRepairs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	assert.ErrorIs(t, s.ResolveRepair(ctx, uuid.NewString()), store.ErrNotFound)
}

func testReconcile(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	alice := NewUser("alice")
	bob := NewUser("bob")
	require.NoError(t, s.CreateUser(ctx, alice))
	require.NoError(t, s.CreateUser(ctx, bob))

	q := NewQuestion(alice, "質問", base)
	require.NoError(t, s.CreateQuestion(ctx, q))
	for i := range 3 {
		require.NoError(t, s.CreateAnswer(ctx, NewAnswer(q, bob, base.Add(time.Duration(i)*time.Second))))
	}

	// 副作用が失われた状態を作る
	require.NoError(t, s.IncrementUserCounter(ctx, bob.ID, store.CounterAnswersGiven, 2))
	require.NoError(t, s.IncrementQuestionCounter(ctx, q.ID, store.CounterAnswersCount, 1))

	t.Run("個別の再計算", func(t *testing.T) {
		require.NoError(t, s.RecountQuestion(ctx, q.ID))
		got, err := s.GetQuestion(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), got.AnswersCount)

		assert.ErrorIs(t, s.RecountUser(ctx, uuid.NewString()), store.ErrNotFound)
		assert.ErrorIs(t, s.RecountQuestion(ctx, uuid.NewString()), store.ErrNotFound)
	})

	t.Run("全体の再計算", func(t *testing.T) {
		require.NoError(t, s.IncrementQuestionCounter(ctx, q.ID, store.CounterAnswersCount, -2))

		res, err := s.Reconcile(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), res.OrphanAnswersDeleted)
		// aliceは質問1件に対してカウンタ0、bobは回答3件に対してカウンタ2
		assert.Equal(t, int64(2), res.UsersRepaired)
		assert.Equal(t, int64(1), res.QuestionsRepaired)

		a, err := s.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), a.QuestionsAsked)
		b, err := s.GetUserByID(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), b.AnswersGiven)
		got, err := s.GetQuestion(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), got.AnswersCount)
	})

	t.Run("整合済みなら何も変更しない", func(t *testing.T) {
		res, err := s.Reconcile(ctx)
		require.NoError(t, err)
		assert.Equal(t, store.ReconcileResult{}, res, fmt.Sprintf("%+v", res))
	})
}

package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/campusqa/internal/logging"
	"github.com/nao1215/campusqa/internal/store"
	"github.com/nao1215/campusqa/internal/store/memstore"
	"github.com/nao1215/campusqa/internal/store/storetest"
	"github.com/nao1215/campusqa/pkg/event"
)

func TestRunOnce_ジャーナルを再適用して解決済みにする(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	r := New(s, logging.Discard(), 0)

	alice := storetest.NewUser("alice")
	require.NoError(t, s.CreateUser(ctx, alice))
	q := storetest.NewQuestion(alice, "質問", time.Now().UTC())
	require.NoError(t, s.CreateQuestion(ctx, q))
	require.NoError(t, s.CreateAnswer(ctx, storetest.NewAnswer(q, alice, time.Now().UTC())))

	// 質問数と回答数の加算が失敗した状態
	userEv, err := event.UserCounterSkipped(alice.ID, string(store.CounterQuestionsAsked), 1, errors.New("timeout"))
	require.NoError(t, err)
	questionEv, err := event.QuestionCounterSkipped(q.ID, string(store.CounterAnswersCount), 1, errors.New("timeout"))
	require.NoError(t, err)
	goneEv, err := event.UserCounterSkipped(uuid.NewString(), string(store.CounterAnswersGiven), 1, errors.New("timeout"))
	require.NoError(t, err)
	for _, ev := range []*event.Event{userEv, questionEv, goneEv} {
		require.NoError(t, s.AppendRepair(ctx, ev))
	}

	report, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.RepairsReplayed, "存在しない対象のジャーナルも解決する")
	assert.Equal(t, 0, report.RepairsFailed)
	assert.False(t, report.FinishedAt.IsZero())

	u, err := s.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.QuestionsAsked)
	assert.Equal(t, int64(1), u.AnswersGiven)
	got, err := s.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.AnswersCount)

	pending, err := s.PendingRepairs(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	t.Run("2回目は何も変更しない", func(t *testing.T) {
		report, err := r.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, report.RepairsReplayed)
		assert.Equal(t, store.ReconcileResult{}, report.ReconcileResult)
	})
}

func TestRunOnce_連鎖削除の失敗は孤立回答を削除して解決する(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	r := New(s, logging.Discard(), 0)

	alice := storetest.NewUser("alice")
	require.NoError(t, s.CreateUser(ctx, alice))
	q := storetest.NewQuestion(alice, "質問", time.Now().UTC())
	require.NoError(t, s.CreateQuestion(ctx, q))
	require.NoError(t, s.CreateAnswer(ctx, storetest.NewAnswer(q, alice, time.Now().UTC())))
	require.NoError(t, s.DeleteQuestion(ctx, q.ID))

	ev, err := event.AnswerCascadeIncomplete(q.ID, errors.New("locked"))
	require.NoError(t, err)
	require.NoError(t, s.AppendRepair(ctx, ev))

	report, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.OrphanAnswersDeleted)
	assert.Equal(t, 1, report.RepairsReplayed)

	answers, err := s.ListAnswersByQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Empty(t, answers)
}

// flakyRecount は再計算を失敗させるストア。
type flakyRecount struct {
	*memstore.Store
}

func (f *flakyRecount) RecountUser(context.Context, string) error {
	return errors.New("connection reset")
}

func TestRunOnce_再適用に失敗したジャーナルは未解決のまま残る(t *testing.T) {
	ctx := context.Background()
	s := &flakyRecount{Store: memstore.New()}
	r := New(s, logging.Discard(), 0)

	ev, err := event.UserCounterSkipped(uuid.NewString(), string(store.CounterQuestionsAsked), 1, errors.New("timeout"))
	require.NoError(t, err)
	require.NoError(t, s.AppendRepair(ctx, ev))

	report, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RepairsFailed)
	assert.Equal(t, 0, report.RepairsReplayed)

	pending, err := s.PendingRepairs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

// countingStore はReconcileの呼び出し回数を数える。
type countingStore struct {
	*memstore.Store
	calls atomic.Int32
}

func (c *countingStore) Reconcile(ctx context.Context) (store.ReconcileResult, error) {
	c.calls.Add(1)
	return c.Store.Reconcile(ctx)
}

func TestStartStop(t *testing.T) {
	s := &countingStore{Store: memstore.New()}
	r := New(s, logging.Discard(), 10*time.Millisecond)

	r.Start(context.Background())
	assert.Eventually(t, func() bool { return s.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	r.Stop()

	after := s.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, s.calls.Load(), "停止後は実行されない")
}

func TestStart_間隔が0なら実行しない(t *testing.T) {
	s := &countingStore{Store: memstore.New()}
	r := New(s, logging.Discard(), 0)

	r.Start(context.Background())
	r.Stop()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), s.calls.Load())
}

func TestRunOnce_書き込み途中の再計算は次のパスで収束する(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	r := New(s, logging.Discard(), 0)

	alice := storetest.NewUser("alice")
	require.NoError(t, s.CreateUser(ctx, alice))
	q := storetest.NewQuestion(alice, "質問", time.Now().UTC())
	require.NoError(t, s.CreateQuestion(ctx, q))
	require.NoError(t, s.IncrementUserCounter(ctx, alice.ID, store.CounterQuestionsAsked, 1))

	// 回答の挿入後、回答数の加算より前に修復パスが走る
	require.NoError(t, s.CreateAnswer(ctx, storetest.NewAnswer(q, alice, time.Now().UTC())))
	_, err := r.RunOnce(ctx)
	require.NoError(t, err)
	require.NoError(t, s.IncrementQuestionCounter(ctx, q.ID, store.CounterAnswersCount, 1))
	require.NoError(t, s.IncrementUserCounter(ctx, alice.ID, store.CounterAnswersGiven, 1))

	got, err := s.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.AnswersCount, "遅れて届いた加算で一時的にずれる")

	report, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.QuestionsRepaired)
	assert.Equal(t, int64(1), report.UsersRepaired)

	got, err = s.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.AnswersCount)
	u, err := s.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.AnswersGiven)
}
